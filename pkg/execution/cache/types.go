package cache

import "time"

// Config contains configuration for the result cache.
type Config struct {
	// MaxEntries bounds the number of entries (0 = unlimited).
	MaxEntries int

	// MaxBytes bounds the aggregate encoded result size (0 = unlimited).
	MaxBytes int64

	// TTL is how long an entry is servable after insertion.
	TTL time.Duration

	// SweepInterval is how often the background sweeper removes expired
	// entries. Zero disables the sweeper; lazy expiry on read still applies.
	SweepInterval time.Duration

	// Observer receives eviction events. Nil disables reporting.
	Observer Observer
}

// Observer receives cache eviction events with their cause: "capacity",
// "expired", or "invalidated". The metrics collector satisfies it directly.
type Observer interface {
	RecordCacheEviction(reason string)
}

// Stats is a point-in-time snapshot of cache counters. Hit and miss counts
// are cumulative over the process lifetime; they are not reset on rule-set
// hot-swap.
type Stats struct {
	Entries     int
	Bytes       int64
	Hits        uint64
	Misses      uint64
	Evictions   uint64
	Expirations uint64
}

// HitRatio returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
