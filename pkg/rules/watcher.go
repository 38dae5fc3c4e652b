package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// shortVersionLen is how many hex characters of the artifact content hash
// form the version identifier.
const shortVersionLen = 12

// VersionFromArtifact derives a content-addressed RuleSetVersion for an
// artifact file. Identical artifact bytes always produce the same version,
// so republishing an unchanged file is a no-op at the registry.
func VersionFromArtifact(pkg, path string) (RuleSetVersion, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSetVersion{}, fmt.Errorf("failed to read rule artifact %q: %w", path, err)
	}
	sum := sha256.Sum256(data)
	return RuleSetVersion{
		Package:     pkg,
		Version:     hex.EncodeToString(sum[:])[:shortVersionLen],
		ArtifactRef: path,
	}, nil
}

// WatcherConfig contains configuration for the rule artifact watcher.
type WatcherConfig struct {
	// Dir is the directory containing rule artifacts.
	Dir string

	// Package is the rule package to watch; its artifact is the file
	// "<package>.yaml" (or .yml) inside Dir.
	Package string

	// DebounceInterval absorbs editor write bursts before republishing.
	DebounceInterval time.Duration
}

// Watcher watches a rule-artifact directory and publishes content-addressed
// versions to a Registry as artifacts appear or change. Publishing through
// the registry drives the coordinated hot-swap: subscribers invalidate pool
// sessions and cache entries for the superseded version.
type Watcher struct {
	config   WatcherConfig
	registry *Registry
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher creates a watcher for the configured package's artifact.
func NewWatcher(config WatcherConfig, registry *Registry, logger *slog.Logger) (*Watcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		config:   config,
		registry: registry,
		watcher:  fsw,
		logger:   logger.With("component", "rules.watcher"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start publishes the current artifact version (if the artifact exists) and
// begins watching for changes. It returns immediately; Stop shuts the
// watcher down.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.config.Dir); err != nil {
		return fmt.Errorf("failed to watch %q: %w", w.config.Dir, err)
	}

	// Initial publish so the runtime has a version before the first event.
	if path, ok := w.artifactPath(); ok {
		w.publish(path)
	} else {
		w.logger.Warn("no rule artifact present yet",
			"dir", w.config.Dir,
			"package", w.config.Package,
		)
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("rule artifact watcher started",
		"dir", w.config.Dir,
		"package", w.config.Package,
		"debounce_ms", w.config.DebounceInterval.Milliseconds(),
	)
	return nil
}

// Stop shuts down the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.stopCh)
	w.watcher.Close()
	w.wg.Wait()
	w.logger.Info("rule artifact watcher stopped")
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isArtifactEvent(event) {
				continue
			}
			w.logger.Debug("rule artifact event",
				"path", event.Name,
				"op", event.Op.String(),
			)
			w.debounce(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("rule artifact watcher error", "error", err)
		}
	}
}

// debounce schedules a publish after the debounce interval, resetting the
// timer on every intervening event.
func (w *Watcher) debounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.config.DebounceInterval, func() {
		w.publish(path)
	})
}

func (w *Watcher) publish(path string) {
	version, err := VersionFromArtifact(w.config.Package, path)
	if err != nil {
		w.logger.Error("failed to version rule artifact",
			"path", path,
			"error", err,
		)
		return
	}
	w.registry.Publish(version)
}

// isArtifactEvent reports whether the event concerns this package's artifact.
func (w *Watcher) isArtifactEvent(event fsnotify.Event) bool {
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	ext := strings.ToLower(filepath.Ext(base))
	if ext != ".yaml" && ext != ".yml" {
		return false
	}
	return strings.TrimSuffix(base, ext) == w.config.Package
}

// artifactPath locates the package's artifact file inside the watched dir.
func (w *Watcher) artifactPath() (string, bool) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(w.config.Dir, w.config.Package+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}
