// Package resilience provides the failover primitives the decision and
// output layers use to keep speaking through backend outages: a three-state
// [CircuitBreaker] (closed, open, half-open) and a [FallbackGroup] that
// chains any provider type behind per-entry breakers, so a dead LLM or TTS
// vendor is bypassed instead of stalling the pipeline.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] while the breaker
// is open and its reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is a breaker's operating mode.
type State int

const (
	// StateClosed forwards every call; consecutive failures are counted.
	StateClosed State = iota

	// StateOpen rejects every call with [ErrCircuitOpen] until the reset
	// timeout elapses.
	StateOpen

	// StateHalfOpen lets a bounded number of probe calls through; enough
	// successes close the breaker, any failure re-opens it.
	StateHalfOpen
)

// String returns the state's lowercase name.
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

// CircuitBreakerConfig tunes a [CircuitBreaker]. Zero values select the
// defaults noted per field.
type CircuitBreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// MaxFailures is the consecutive-failure count that trips the breaker
	// open. Default 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before probing.
	// Default 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the probe budget in the half-open state; that many
	// consecutive probe successes close the breaker. Default 3.
	HalfOpenMax int
}

func (c CircuitBreakerConfig) normalized() CircuitBreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 3
	}
	return c
}

// CircuitBreaker keeps a run of backend failures from turning into a run
// of slow timeouts: after MaxFailures consecutive errors it fails fast,
// then periodically probes until the backend proves healthy again.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu           sync.Mutex
	state        State
	failureRun   int       // consecutive failures while closed
	openedAt     time.Time // when the breaker last tripped
	probesUsed   int       // probe calls spent this half-open episode
	probesPassed int       // probe successes this half-open episode
}

// NewCircuitBreaker returns a closed breaker with cfg's defaults applied.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg.normalized()}
}

// Execute runs fn unless the breaker disallows it, and feeds the outcome
// back into the state machine. fn's own error is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.settle(err == nil)
	return err
}

// admit decides whether one call may proceed, performing the open →
// half-open transition when the reset timeout has elapsed.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.openedAt) < cb.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probesUsed = 0
		cb.probesPassed = 0
		slog.Info("circuit breaker probing", "name", cb.cfg.Name)
	case StateHalfOpen:
		if cb.probesUsed >= cb.cfg.HalfOpenMax {
			return ErrCircuitOpen
		}
	}

	if cb.state == StateHalfOpen {
		// Count the probe on admission so concurrent callers cannot
		// overspend the budget.
		cb.probesUsed++
	}
	return nil
}

// settle records one call outcome.
func (cb *CircuitBreaker) settle(succeeded bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateHalfOpen:
		if !succeeded {
			cb.trip()
			slog.Warn("circuit breaker re-opened by failed probe", "name", cb.cfg.Name)
			return
		}
		cb.probesPassed++
		if cb.probesPassed >= cb.cfg.HalfOpenMax {
			cb.state = StateClosed
			cb.failureRun = 0
			slog.Info("circuit breaker closed", "name", cb.cfg.Name)
		}

	case StateClosed:
		if succeeded {
			cb.failureRun = 0
			return
		}
		cb.failureRun++
		if cb.failureRun >= cb.cfg.MaxFailures {
			cb.trip()
			slog.Warn("circuit breaker opened", "name", cb.cfg.Name, "consecutive_failures", cb.failureRun)
		}
	}
}

// trip moves to the open state. Callers hold cb.mu.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.failureRun = cb.cfg.MaxFailures
}

// State reports the effective state: an open breaker whose reset timeout
// has elapsed reads as half-open (the transition itself happens on the
// next Execute).
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker closed and clears every counter.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.failureRun = 0
	cb.probesUsed = 0
	cb.probesPassed = 0
	slog.Info("circuit breaker reset", "name", cb.cfg.Name)
}
