// Package retention enforces audit retention policies.
//
// The Pruner deletes execution records past a configured age or beyond a
// configured total count, either on demand through Prune or recurring on a
// cron schedule through Start.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/themis/pkg/audit"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// RetentionDays is the number of days to retain records.
	// 0 means keep records forever (no age-based pruning).
	RetentionDays int

	// MaxRecords is the maximum number of records to keep.
	// 0 means unlimited.
	MaxRecords int64

	// PruneSchedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM). Empty disables scheduling.
	PruneSchedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		RetentionDays: 0,
		MaxRecords:    0,
		PruneSchedule: "",
	}
}

// oldestDeleter is implemented by storage backends that can delete the n
// oldest records directly, avoiding a full query.
type oldestDeleter interface {
	DeleteOldest(ctx context.Context, n int64) (int64, error)
}

// Pruner enforces retention policies on execution records.
type Pruner struct {
	storage audit.Storage
	config  *Config
	logger  *slog.Logger

	mu    sync.Mutex
	cron  *cron.Cron
	entry cron.EntryID
}

// NewPruner creates a new retention pruner.
func NewPruner(storage audit.Storage, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	return &Pruner{
		storage: storage,
		config:  config,
		logger:  slog.Default().With("component", "audit.retention"),
	}
}

// Prune deletes execution records older than the retention period or
// exceeding the max record count.
//
// Pruning happens in two phases:
//  1. Age-based: delete records older than RetentionDays
//  2. Count-based: if total records > MaxRecords, delete oldest
//
// Both can run together. Returns the total number of records deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var totalDeleted int64

	if p.config.RetentionDays > 0 {
		deleted, err := p.pruneByAge(ctx)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by age failed: %w", err)
		}
		totalDeleted += deleted
		p.logger.Info("pruned records by age",
			"deleted_count", deleted,
			"retention_days", p.config.RetentionDays,
		)
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.pruneByCount(ctx)
		if err != nil {
			return totalDeleted, fmt.Errorf("prune by count failed: %w", err)
		}
		totalDeleted += deleted
		p.logger.Info("pruned records by count",
			"deleted_count", deleted,
			"max_records", p.config.MaxRecords,
		)
	}

	if totalDeleted == 0 {
		p.logger.Debug("no records pruned",
			"retention_days", p.config.RetentionDays,
			"max_records", p.config.MaxRecords,
		)
	} else {
		p.logger.Info("audit pruning completed",
			"total_deleted", totalDeleted,
		)
	}

	return totalDeleted, nil
}

// pruneByAge deletes records older than the retention period.
func (p *Pruner) pruneByAge(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -p.config.RetentionDays)

	p.logger.Debug("pruning by age",
		"cutoff_time", cutoff,
		"retention_days", p.config.RetentionDays,
	)

	deleted, err := p.storage.Delete(ctx, &audit.Query{EndDate: &cutoff})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// pruneByCount deletes oldest records if total count exceeds MaxRecords.
func (p *Pruner) pruneByCount(ctx context.Context) (int64, error) {
	count, err := p.storage.Count(ctx, &audit.Query{})
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}

	if count <= p.config.MaxRecords {
		p.logger.Debug("record count within limit",
			"current", count,
			"max", p.config.MaxRecords,
		)
		return 0, nil
	}

	toDelete := count - p.config.MaxRecords

	p.logger.Info("record count exceeds limit, pruning oldest",
		"current_count", count,
		"max_records", p.config.MaxRecords,
		"to_delete", toDelete,
	)

	// Fast path for backends that can delete the oldest n directly
	if od, ok := p.storage.(oldestDeleter); ok {
		return od.DeleteOldest(ctx, toDelete)
	}

	// Fallback: query all records (newest first) and derive a date cutoff
	// from the newest record that should be deleted.
	allRecords, err := p.storage.Query(ctx, &audit.Query{Limit: int(count)})
	if err != nil {
		return 0, fmt.Errorf("failed to query records: %w", err)
	}

	actualToDelete := int64(len(allRecords)) - p.config.MaxRecords
	if actualToDelete <= 0 {
		p.logger.Debug("record count within limit after query")
		return 0, nil
	}

	cutoffTime := allRecords[int64(len(allRecords))-actualToDelete].ExecutionDate

	deleted, err := p.storage.Delete(ctx, &audit.Query{EndDate: &cutoffTime})
	if err != nil {
		return 0, fmt.Errorf("delete failed: %w", err)
	}

	return deleted, nil
}

// Start schedules recurring pruning per the configured cron expression and
// returns immediately. An empty expression leaves pruning manual. Scheduled
// pruning stops when ctx is canceled or Stop is called.
func (p *Pruner) Start(ctx context.Context) error {
	schedule := p.config.PruneSchedule
	if schedule == "" {
		p.logger.Debug("no prune schedule configured, pruning is manual")
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return nil
	}

	c := cron.New()
	entry, err := c.AddFunc(schedule, func() { p.runScheduled(ctx) })
	if err != nil {
		return fmt.Errorf("unusable prune schedule %q: %w", schedule, err)
	}
	c.Start()

	p.cron = c
	p.entry = entry
	p.logger.Info("prune schedule active",
		"schedule", schedule,
		"retention_days", p.config.RetentionDays,
		"max_records", p.config.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// runScheduled is one timer-driven pruning cycle.
func (p *Pruner) runScheduled(ctx context.Context) {
	deleted, err := p.Prune(ctx)
	if err != nil {
		p.logger.Error("scheduled pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("scheduled pruning completed", "deleted", deleted)
	}
}

// Stop halts scheduled pruning, waiting for an in-flight cycle to finish.
// Pruner remains usable through Prune afterwards.
func (p *Pruner) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	p.logger.Info("prune schedule stopped")
}

// IsRunning reports whether scheduled pruning is active.
func (p *Pruner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cron != nil
}

// NextPruning returns when the next scheduled cycle fires, or nil when no
// schedule is active.
func (p *Pruner) NextPruning() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron == nil {
		return nil
	}

	next := p.cron.Entry(p.entry).Next
	if next.IsZero() {
		return nil
	}
	return &next
}
