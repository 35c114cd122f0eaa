// Package resilience guards calls to the remote embedding provider and the
// backing stores: a circuit breaker that stops hammering a failing
// provider, exponential-backoff retry, and a timeout wrapper for pings.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker's phase. The numeric values are exported as the
// circuit_breaker_state gauge.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig controls when the breaker trips and recovers.
//
// IsFailure decides which errors count against the provider; by default a
// cancelled caller context does not, since an abandoned search says nothing
// about provider health. OnStateChange runs with the breaker lock held and
// must not call back into the breaker.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	IsFailure           func(error) bool
	OnStateChange       func(name string, to State)
}

// Snapshot is a point-in-time view of a breaker, used for health output.
type Snapshot struct {
	State               State
	ConsecutiveFailures int
	RetryIn             time.Duration
}

func defaultIsFailure(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// CircuitBreaker opens after FailureThreshold consecutive failures, rejects
// calls for ResetTimeout, then lets HalfOpenMaxRequests probes through.
// One successful probe closes it again; a failed probe reopens it.
type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	halfOpenRequests    int
}

// NewCircuitBreaker fills zero config fields with 5 failures, 30s reset and
// one half-open probe.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = defaultIsFailure
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		state:  StateClosed,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn if the breaker admits it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// GetState returns the current state.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the state, failure streak and, when open, the time left
// before a probe is allowed.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	snap := Snapshot{State: cb.state, ConsecutiveFailures: cb.consecutiveFailures}
	if cb.state == StateOpen {
		if left := cb.cfg.ResetTimeout - cb.now().Sub(cb.openedAt); left > 0 {
			snap.RetryIn = left
		}
	}
	return snap
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		elapsed := cb.now().Sub(cb.openedAt)
		if elapsed < cb.cfg.ResetTimeout {
			return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, cb.cfg.ResetTimeout-elapsed)
		}
		cb.setState(StateHalfOpen)
		cb.halfOpenRequests = 1
		cb.logger.Info("circuit half-open, probing", "after", elapsed.Round(time.Millisecond))
	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.halfOpenRequests++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil && !cb.cfg.IsFailure(err) {
		if cb.state == StateHalfOpen {
			cb.halfOpenRequests--
		}
		return
	}
	if err == nil {
		switch cb.state {
		case StateClosed:
			cb.consecutiveFailures = 0
		case StateHalfOpen:
			cb.setState(StateClosed)
			cb.consecutiveFailures = 0
			cb.halfOpenRequests = 0
			cb.logger.Info("circuit closed, provider recovered")
		}
		return
	}

	cb.consecutiveFailures++
	switch cb.state {
	case StateClosed:
		if cb.consecutiveFailures >= cb.cfg.FailureThreshold {
			cb.trip()
			cb.logger.Warn("circuit opened",
				"consecutive_failures", cb.consecutiveFailures,
				"threshold", cb.cfg.FailureThreshold,
				"error", err,
			)
		}
	case StateHalfOpen:
		cb.trip()
		cb.logger.Warn("circuit re-opened, probe failed", "error", err)
	}
}

func (cb *CircuitBreaker) trip() {
	cb.openedAt = cb.now()
	cb.halfOpenRequests = 0
	cb.setState(StateOpen)
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.consecutiveFailures = 0
	cb.halfOpenRequests = 0
	cb.logger.Info("circuit manually reset")
}

func (cb *CircuitBreaker) setState(to State) {
	if cb.state == to {
		return
	}
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, to)
	}
}
