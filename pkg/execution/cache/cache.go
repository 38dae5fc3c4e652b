package cache

import (
	"container/list"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/themis/pkg/execution/fingerprint"
	"mercator-hq/themis/pkg/rules"
)

// entry is a single cached result. Owned exclusively by the cache; the
// encoded bytes are decoded into fresh values on every hit.
type entry struct {
	fp             fingerprint.Fingerprint
	versionKey     string
	encoded        []byte
	createdAt      time.Time
	lastAccessedAt time.Time
	expiresAt      time.Time
	elem           *list.Element
}

// Cache maps execution fingerprints to encoded results with combined
// LRU + TTL eviction. All methods are safe for concurrent use.
type Cache struct {
	config Config
	logger *slog.Logger

	// mu guards entries, order, and bytes. Lookup reads take the read
	// lock; the write lock is held only around structural mutation.
	mu      sync.RWMutex
	entries map[fingerprint.Fingerprint]*entry
	order   *list.List // front = most recently accessed
	bytes   int64

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a result cache and starts its background sweeper when a sweep
// interval is configured.
func New(config Config, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Cache{
		config:  config,
		logger:  logger.With("component", "execution.cache"),
		entries: make(map[fingerprint.Fingerprint]*entry),
		order:   list.New(),
		stopCh:  make(chan struct{}),
	}

	if config.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop()
	}

	return c
}

// Get returns the cached result for a fingerprint, or (nil, false) on miss.
// An expired entry is a miss even if the sweeper has not removed it yet.
func (c *Cache) Get(fp fingerprint.Fingerprint) (*rules.Result, bool) {
	now := time.Now()

	c.mu.RLock()
	e, ok := c.entries[fp]
	if !ok {
		c.mu.RUnlock()
		c.misses.Add(1)
		return nil, false
	}
	if now.After(e.expiresAt) {
		c.mu.RUnlock()
		c.misses.Add(1)
		c.removeExpiredEntry(fp)
		return nil, false
	}
	encoded := e.encoded
	c.mu.RUnlock()

	// Bump recency under the write lock; the entry may have been removed
	// between the two lock acquisitions, so re-check.
	c.mu.Lock()
	if e, ok := c.entries[fp]; ok {
		e.lastAccessedAt = now
		c.order.MoveToFront(e.elem)
	}
	c.mu.Unlock()

	var result rules.Result
	if err := json.Unmarshal(encoded, &result); err != nil {
		// Entries are written by Put from a marshaled Result, so this
		// indicates corruption; treat as a miss and drop the entry.
		c.logger.Error("dropping undecodable cache entry", "fingerprint", string(fp), "error", err)
		c.Remove(fp)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &result, true
}

// Put inserts or refreshes the result for a fingerprint with the configured
// TTL. Inserting past a size bound evicts least-recently-accessed entries
// until the insert fits.
func (c *Cache) Put(fp fingerprint.Fingerprint, version rules.RuleSetVersion, result *rules.Result) {
	encoded, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("result not cacheable", "fingerprint", string(fp), "error", err)
		return
	}

	// A single result larger than the whole byte budget can never fit.
	if c.config.MaxBytes > 0 && int64(len(encoded)) > c.config.MaxBytes {
		c.logger.Warn("result exceeds cache byte budget, not cached",
			"fingerprint", string(fp),
			"size_bytes", len(encoded),
		)
		return
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[fp]; ok {
		c.bytes += int64(len(encoded)) - int64(len(e.encoded))
		e.encoded = encoded
		e.versionKey = version.Key()
		e.lastAccessedAt = now
		e.expiresAt = now.Add(c.config.TTL)
		c.order.MoveToFront(e.elem)
		c.evictOverflowLocked(e)
		return
	}

	e := &entry{
		fp:             fp,
		versionKey:     version.Key(),
		encoded:        encoded,
		createdAt:      now,
		lastAccessedAt: now,
		expiresAt:      now.Add(c.config.TTL),
	}
	e.elem = c.order.PushFront(e)
	c.entries[fp] = e
	c.bytes += int64(len(encoded))

	c.evictOverflowLocked(e)
}

// Remove deletes a single entry if present.
func (c *Cache) Remove(fp fingerprint.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fp]; ok {
		c.removeLocked(e)
	}
}

// InvalidateVersion removes every entry derived from the given rule-set
// version. Used when a rule set is hot-swapped so a superseded version can
// never serve a hit again.
func (c *Cache) InvalidateVersion(version rules.RuleSetVersion) int {
	key := version.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, e := range c.entries {
		if e.versionKey == key {
			c.removeLocked(e)
			c.evicted("invalidated")
			removed++
		}
	}

	if removed > 0 {
		c.logger.Info("cache entries invalidated for superseded version",
			"version", key,
			"removed", removed,
		)
	}
	return removed
}

// Stats returns a point-in-time snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	bytes := c.bytes
	c.mu.RUnlock()

	return Stats{
		Entries:     entries,
		Bytes:       bytes,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
	}
}

// Close stops the background sweeper. The cache remains usable afterwards;
// only lazy expiry applies.
func (c *Cache) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
}

// evictOverflowLocked evicts from the LRU tail until both bounds hold.
// The keep entry (the one just inserted or refreshed) is never evicted.
func (c *Cache) evictOverflowLocked(keep *entry) {
	for c.overLimitLocked() {
		tail := c.order.Back()
		if tail == nil {
			return
		}
		victim := tail.Value.(*entry)
		if victim == keep {
			return
		}
		c.removeLocked(victim)
		c.evictions.Add(1)
		c.evicted("capacity")
	}
}

func (c *Cache) overLimitLocked() bool {
	if c.config.MaxEntries > 0 && len(c.entries) > c.config.MaxEntries {
		return true
	}
	if c.config.MaxBytes > 0 && c.bytes > c.config.MaxBytes {
		return true
	}
	return false
}

func (c *Cache) removeLocked(e *entry) {
	c.order.Remove(e.elem)
	delete(c.entries, e.fp)
	c.bytes -= int64(len(e.encoded))
}

// removeExpiredEntry removes an entry observed expired during a read,
// re-checking expiry under the write lock.
func (c *Cache) removeExpiredEntry(fp fingerprint.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[fp]; ok && time.Now().After(e.expiresAt) {
		c.removeLocked(e)
		c.expirations.Add(1)
		c.evicted("expired")
	}
}

func (c *Cache) sweepLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

// sweep removes all expired entries.
func (c *Cache) sweep() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			c.removeLocked(e)
			c.expirations.Add(1)
			c.evicted("expired")
		}
	}
}

// evicted reports one eviction to the configured observer.
func (c *Cache) evicted(reason string) {
	if c.config.Observer != nil {
		c.config.Observer.RecordCacheEviction(reason)
	}
}
