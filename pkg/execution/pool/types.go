package pool

import (
	"time"

	"mercator-hq/themis/pkg/rules"
)

// State is the lifecycle state of a session.
type State int32

const (
	// StateIdle means the session is in the pool awaiting checkout.
	StateIdle State = iota

	// StateInUse means the session is borrowed by exactly one caller.
	StateInUse

	// StateInvalid means the session is retired and awaiting destruction.
	StateInvalid
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInUse:
		return "in_use"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Config contains configuration for the session pool.
type Config struct {
	// MaxTotal is the maximum number of sessions, idle and in-use combined.
	MaxTotal int

	// MinIdle is how many idle sessions the reaper leaves warm.
	MinIdle int

	// IdleTimeout is how long an idle session beyond MinIdle may sit
	// unused before the reaper destroys it.
	IdleTimeout time.Duration

	// CheckoutTimeout bounds how long Checkout waits for a slot.
	CheckoutTimeout time.Duration

	// ErrorThreshold is the number of evaluation errors at which a session
	// is invalidated on Return instead of going back to the pool.
	ErrorThreshold int

	// ReapInterval is how often the idle reaper runs. Zero disables it.
	ReapInterval time.Duration

	// Observer receives session lifecycle events. Nil disables reporting.
	Observer Observer
}

// Observer receives session lifecycle events off the checkout hot path. The
// metrics collector satisfies it directly.
type Observer interface {
	RecordSessionCreated()

	// RecordSessionDestroyed reports a destruction with its cause:
	// "superseded", "error_threshold", "idle_timeout", or "closed".
	RecordSessionDestroyed(reason string)
}

// Session is one pooled evaluation context bound to exactly one rule-set
// version at creation time. Field mutation is guarded by the pool's lock;
// callers only read the accessors.
type Session struct {
	id         string
	version    rules.RuleSetVersion
	engine     rules.EngineSession
	state      State
	createdAt  time.Time
	lastUsedAt time.Time
	useCount   int64
	errorCount int
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Version returns the rule-set version the session is bound to.
func (s *Session) Version() rules.RuleSetVersion { return s.version }

// Engine returns the underlying engine session for evaluation. Valid only
// between Checkout and Return.
func (s *Session) Engine() rules.EngineSession { return s.engine }

// UseCount returns how many times the session has been checked out.
func (s *Session) UseCount() int64 { return s.useCount }

// Stats is a point-in-time snapshot of pool accounting. Idle + InUse always
// equals Total, which is the slot-accounting check leak tests rely on.
type Stats struct {
	Idle      int
	InUse     int
	Total     int
	MaxTotal  int
	Created   uint64
	Destroyed uint64
}
