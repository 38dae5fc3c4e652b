package pool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"mercator-hq/themis/pkg/rules"
)

// Pool manages a bounded set of reusable evaluation sessions bound to the
// currently active rule-set version. All methods are safe for concurrent
// use; the pool lock is never held across engine calls (session creation and
// destruction), so slow engine initialization cannot stall other checkouts
// or returns.
type Pool struct {
	config    Config
	evaluator rules.Evaluator
	logger    *slog.Logger

	// sem bounds concurrently borrowed sessions. Idle sessions do not
	// hold permits; a permit is acquired per checkout and released on
	// return, which is what gives total <= MaxTotal:
	// a creating caller holds a permit and only creates when no idle
	// session exists, so live sessions never outnumber permits.
	sem *semaphore.Weighted

	mu      sync.Mutex
	idle    []*Session // LIFO: most recently returned last
	total   int        // idle + in-use
	version rules.RuleSetVersion
	closed  bool

	created   atomic.Uint64
	destroyed atomic.Uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a session pool. The pool has no active version until Swap is
// called; WarmUp pre-creates MinIdle sessions for the active version.
func New(config Config, evaluator rules.Evaluator, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		config:    config,
		evaluator: evaluator,
		logger:    logger.With("component", "execution.pool"),
		sem:       semaphore.NewWeighted(int64(config.MaxTotal)),
		stopCh:    make(chan struct{}),
	}

	if config.ReapInterval > 0 && config.IdleTimeout > 0 {
		p.wg.Add(1)
		go p.reapLoop()
	}

	return p
}

// Swap makes version the active one and invalidates idle sessions bound to
// any other version. In-flight sessions self-discard on Return; no further
// checkouts of a superseded version are issued.
func (p *Pool) Swap(version rules.RuleSetVersion) {
	p.mu.Lock()
	superseded := p.version
	p.version = version
	stale := p.takeIdleNotBoundToLocked(version)
	p.mu.Unlock()

	p.destroyAll(stale, "superseded")

	if !superseded.IsZero() && superseded != version {
		p.logger.Info("pool rebound to new rule-set version",
			"superseded", superseded.Key(),
			"active", version.Key(),
			"idle_discarded", len(stale),
		)
	}
}

// InvalidateAll invalidates every session bound to the given version. Idle
// sessions are destroyed immediately; in-flight ones are allowed to finish
// and self-discard when returned.
func (p *Pool) InvalidateAll(version rules.RuleSetVersion) {
	p.mu.Lock()
	var stale []*Session
	keep := p.idle[:0]
	for _, s := range p.idle {
		if s.version == version {
			s.state = StateInvalid
			p.total--
			stale = append(stale, s)
		} else {
			keep = append(keep, s)
		}
	}
	p.idle = keep
	p.mu.Unlock()

	p.destroyAll(stale, "superseded")
}

// Checkout borrows a session bound to the given version, blocking up to the
// configured checkout timeout for a slot. The version must be the one the
// caller captured at the start of its execution; if it has been superseded
// in the meantime, Checkout fails with ErrVersionSuperseded rather than
// handing out a mixed-version session.
//
// The caller must pass every borrowed session to Return on every path,
// including cancellation.
func (p *Pool) Checkout(ctx context.Context, version rules.RuleSetVersion) (*Session, error) {
	if version.IsZero() {
		return nil, ErrNoActiveVersion
	}

	start := time.Now()
	if p.config.CheckoutTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.CheckoutTimeout)
		defer cancel()
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, &ExhaustedError{
			Timeout: p.config.CheckoutTimeout,
			Waited:  time.Since(start),
		}
	}
	// Permit held from here: every exit either returns a session (the
	// permit travels with it until Return) or releases the permit.

	now := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrClosed
	}
	if p.version != version {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrVersionSuperseded
	}

	var s *Session
	var stale []*Session
	for len(p.idle) > 0 {
		cand := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if cand.version != version {
			cand.state = StateInvalid
			p.total--
			stale = append(stale, cand)
			continue
		}
		s = cand
		break
	}

	if s != nil {
		s.state = StateInUse
		s.useCount++
		s.lastUsedAt = now
	} else {
		// Reserve the slot; creation happens outside the lock.
		p.total++
	}
	p.mu.Unlock()

	p.destroyAll(stale, "superseded")

	if s != nil {
		return s, nil
	}

	engine, err := p.evaluator.NewSession(ctx, version)
	if err != nil {
		p.mu.Lock()
		p.total--
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, &CreateError{Version: version.Key(), Cause: err}
	}

	s = &Session{
		id:         uuid.NewString(),
		version:    version,
		engine:     engine,
		state:      StateInUse,
		createdAt:  now,
		lastUsedAt: now,
		useCount:   1,
	}
	p.created.Add(1)
	if p.config.Observer != nil {
		p.config.Observer.RecordSessionCreated()
	}

	p.logger.Debug("session created",
		"session_id", s.id,
		"version", version.Key(),
	)
	return s, nil
}

// Return releases a borrowed session. evalFailed marks the evaluation as
// having errored, incrementing the session's error count. The session goes
// back to the idle pool unless its error count reached the threshold, its
// version was superseded, or the pool is closed, in which case it is
// destroyed and a replacement is created lazily on next demand.
func (p *Pool) Return(s *Session, evalFailed bool) {
	if s == nil {
		return
	}

	p.mu.Lock()
	if evalFailed {
		s.errorCount++
	}
	s.lastUsedAt = time.Now()

	var reason string
	switch {
	case p.closed:
		reason = "closed"
	case s.state == StateInvalid || s.version != p.version:
		reason = "superseded"
	case p.config.ErrorThreshold > 0 && s.errorCount >= p.config.ErrorThreshold:
		reason = "error_threshold"
	}

	if reason != "" {
		s.state = StateInvalid
		p.total--
	} else {
		s.state = StateIdle
		p.idle = append(p.idle, s)
	}
	p.mu.Unlock()

	if reason != "" {
		p.destroy(s, reason)
	}
	p.sem.Release(1)
}

// WarmUp creates idle sessions for the active version until MinIdle are
// present, respecting MaxTotal. Creation errors abort the warm-up but leave
// already-created sessions in place.
func (p *Pool) WarmUp(ctx context.Context) error {
	for {
		p.mu.Lock()
		version := p.version
		if p.closed || version.IsZero() || len(p.idle) >= p.config.MinIdle || p.total >= p.config.MaxTotal {
			p.mu.Unlock()
			return nil
		}
		p.total++
		p.mu.Unlock()

		engine, err := p.evaluator.NewSession(ctx, version)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return &CreateError{Version: version.Key(), Cause: err}
		}

		now := time.Now()
		s := &Session{
			id:         uuid.NewString(),
			version:    version,
			engine:     engine,
			state:      StateIdle,
			createdAt:  now,
			lastUsedAt: now,
		}
		p.created.Add(1)
		if p.config.Observer != nil {
			p.config.Observer.RecordSessionCreated()
		}

		p.mu.Lock()
		if p.closed || p.version != version {
			closed := p.closed
			p.total--
			p.mu.Unlock()
			if closed {
				p.destroy(s, "closed")
			} else {
				p.destroy(s, "superseded")
			}
			return nil
		}
		p.idle = append(p.idle, s)
		p.mu.Unlock()
	}
}

// Stats returns a point-in-time snapshot of pool accounting.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	idle := len(p.idle)
	total := p.total
	p.mu.Unlock()

	return Stats{
		Idle:      idle,
		InUse:     total - idle,
		Total:     total,
		MaxTotal:  p.config.MaxTotal,
		Created:   p.created.Load(),
		Destroyed: p.destroyed.Load(),
	}
}

// Close shuts the pool down: the reaper stops, idle sessions are destroyed,
// and in-flight sessions are destroyed as they are returned. Further
// checkouts fail with ErrClosed.
func (p *Pool) Close() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()

	p.mu.Lock()
	p.closed = true
	stale := p.idle
	p.total -= len(stale)
	p.idle = nil
	for _, s := range stale {
		s.state = StateInvalid
	}
	p.mu.Unlock()

	p.destroyAll(stale, "closed")
	p.logger.Info("session pool closed")
}

// takeIdleNotBoundToLocked removes idle sessions not bound to version.
// Must be called with the pool lock held.
func (p *Pool) takeIdleNotBoundToLocked(version rules.RuleSetVersion) []*Session {
	var stale []*Session
	keep := p.idle[:0]
	for _, s := range p.idle {
		if s.version != version {
			s.state = StateInvalid
			p.total--
			stale = append(stale, s)
		} else {
			keep = append(keep, s)
		}
	}
	p.idle = keep
	return stale
}

func (p *Pool) destroyAll(sessions []*Session, reason string) {
	for _, s := range sessions {
		p.destroy(s, reason)
	}
}

// destroy closes the engine session. Never called with the pool lock held.
func (p *Pool) destroy(s *Session, reason string) {
	if err := s.engine.Close(); err != nil {
		p.logger.Warn("failed to close engine session",
			"session_id", s.id,
			"error", err,
		)
	}
	p.destroyed.Add(1)
	if p.config.Observer != nil {
		p.config.Observer.RecordSessionDestroyed(reason)
	}
	p.logger.Debug("session destroyed",
		"session_id", s.id,
		"version", s.version.Key(),
		"reason", reason,
		"use_count", s.useCount,
		"error_count", s.errorCount,
	)
}

func (p *Pool) reapLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.reap()
		case <-p.stopCh:
			return
		}
	}
}

// reap destroys idle sessions beyond MinIdle that have been unused longer
// than the idle timeout. Oldest sessions sit at the front of the LIFO idle
// slice, so reaping scans from the front.
func (p *Pool) reap() {
	cutoff := time.Now().Add(-p.config.IdleTimeout)

	p.mu.Lock()
	var reaped []*Session
	for len(p.idle) > p.config.MinIdle && p.idle[0].lastUsedAt.Before(cutoff) {
		s := p.idle[0]
		p.idle = p.idle[1:]
		s.state = StateInvalid
		p.total--
		reaped = append(reaped, s)
	}
	p.mu.Unlock()

	if len(reaped) > 0 {
		p.destroyAll(reaped, "idle_timeout")
		p.logger.Debug("idle sessions reaped", "count", len(reaped))
	}
}
