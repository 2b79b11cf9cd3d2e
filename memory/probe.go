package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ProbeState is the AvailabilityProbe state machine.
type ProbeState int32

const (
	ProbeUnchecked ProbeState = iota
	ProbeAvailable
	ProbeUnavailable
)

func (s ProbeState) String() string {
	switch s {
	case ProbeAvailable:
		return "available"
	case ProbeUnavailable:
		return "unavailable"
	default:
		return "unchecked"
	}
}

// AvailabilityProbe checks the backing store once, on first use, and latches
// the outcome until ForceRecheck. A nil checker is always available.
type AvailabilityProbe struct {
	checker HealthChecker
	grace   time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	state atomic.Int32
	// graceDone is set once the startup grace has been waited out; a
	// forced recheck doesn't wait again.
	graceDone bool
}

// NewAvailabilityProbe creates a probe in the unchecked state.
func NewAvailabilityProbe(checker HealthChecker, grace, timeout time.Duration, logger *slog.Logger) *AvailabilityProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &AvailabilityProbe{
		checker: checker,
		grace:   grace,
		timeout: timeout,
		logger:  logger,
	}
}

// State returns the current state without triggering a check.
func (p *AvailabilityProbe) State() ProbeState {
	return ProbeState(p.state.Load())
}

// Check runs the health check if it hasn't run yet and returns the resulting
// state. Concurrent first callers share one check. If ctx ends before the
// check completes, the probe stays unchecked.
func (p *AvailabilityProbe) Check(ctx context.Context) ProbeState {
	if s := p.State(); s != ProbeUnchecked {
		return s
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if s := p.State(); s != ProbeUnchecked {
		return s
	}

	if !p.graceDone && p.grace > 0 {
		if err := sleepContext(ctx, p.grace); err != nil {
			return ProbeUnchecked
		}
	}
	p.graceDone = true

	if p.checker == nil {
		p.state.Store(int32(ProbeAvailable))
		return ProbeAvailable
	}

	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.checker.HealthCheck(checkCtx)
	cancel()

	if err != nil && ctx.Err() != nil {
		// Caller gave up; that says nothing about the store.
		return ProbeUnchecked
	}

	next := ProbeAvailable
	if err != nil {
		next = ProbeUnavailable
		p.logger.Warn("memory store unavailable, degrading", "error", err)
	} else {
		p.logger.Debug("memory store available")
	}
	p.state.Store(int32(next))
	return next
}

// Available runs Check and reports whether the store is known reachable.
func (p *AvailabilityProbe) Available(ctx context.Context) bool {
	return p.Check(ctx) == ProbeAvailable
}

// ForceRecheck returns the probe to the unchecked state so the next use
// probes again.
func (p *AvailabilityProbe) ForceRecheck() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Store(int32(ProbeUnchecked))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
