package resilience

import (
	"errors"
	"testing"
	"time"
)

var errTest = errors.New("backend down")

func TestCircuitBreakerDefaults(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm"})
	if cb.cfg.MaxFailures != 5 || cb.cfg.ResetTimeout != 30*time.Second || cb.cfg.HalfOpenMax != 3 {
		t.Errorf("defaults not applied: %+v", cb.cfg)
	}
	if cb.State() != StateClosed {
		t.Errorf("new breaker state = %s, want closed", cb.State())
	}
}

func TestClosedForwardsCalls(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm"})

	var calls int
	for range 10 {
		if err := cb.Execute(func() error { calls++; return nil }); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm", MaxFailures: 3, ResetTimeout: time.Hour})

	for range 3 {
		if err := cb.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
			t.Fatalf("failure should pass through, got %v", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open after 3 failures", cb.State())
	}

	err := cb.Execute(func() error {
		t.Error("open breaker must not forward calls")
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestSuccessBreaksTheFailureRun(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm", MaxFailures: 3})

	cb.Execute(func() error { return errTest })
	cb.Execute(func() error { return errTest })
	cb.Execute(func() error { return nil }) // run resets
	cb.Execute(func() error { return errTest })
	cb.Execute(func() error { return errTest })

	if cb.State() != StateClosed {
		t.Errorf("state = %s, non-consecutive failures must not trip", cb.State())
	}
}

func TestHalfOpenAfterResetTimeout(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm", MaxFailures: 1, ResetTimeout: 10 * time.Millisecond})

	cb.Execute(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state = %s, want half-open after the reset timeout", cb.State())
	}
}

func TestProbeSuccessesCloseTheBreaker(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 2})

	cb.Execute(func() error { return errTest })
	time.Sleep(5 * time.Millisecond)

	for range 2 {
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("probe: %v", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed after successful probes", cb.State())
	}
}

func TestProbeFailureReopens(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm", MaxFailures: 1, ResetTimeout: time.Hour})

	cb.Execute(func() error { return errTest })

	// Force the probe window without waiting an hour.
	cb.mu.Lock()
	cb.openedAt = time.Now().Add(-2 * time.Hour)
	cb.mu.Unlock()

	if err := cb.Execute(func() error { return errTest }); !errors.Is(err, errTest) {
		t.Fatalf("probe error should pass through, got %v", err)
	}
	if cb.State() != StateOpen {
		t.Errorf("state = %s, want open after a failed probe", cb.State())
	}
}

func TestProbeBudgetIsBounded(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm", MaxFailures: 1, ResetTimeout: time.Millisecond, HalfOpenMax: 2})

	cb.Execute(func() error { return errTest })
	time.Sleep(5 * time.Millisecond)

	// Hold the first probe open and ask for more probes from inside it:
	// the nested probe takes the second slot, and a third call exceeds
	// the budget of two and is refused without running.
	var overBudget error
	cb.Execute(func() error {
		cb.Execute(func() error { return nil })
		overBudget = cb.Execute(func() error {
			t.Error("a probe beyond HalfOpenMax ran")
			return nil
		})
		return nil
	})
	if overBudget != ErrCircuitOpen {
		t.Fatalf("probe beyond the budget: err = %v, want ErrCircuitOpen", overBudget)
	}
	if cb.State() != StateClosed {
		t.Fatalf("two successful probes should close (HalfOpenMax=2), state = %s", cb.State())
	}
}

func TestResetForcesClosed(t *testing.T) {
	t.Parallel()
	cb := NewCircuitBreaker(CircuitBreakerConfig{Name: "llm", MaxFailures: 1, ResetTimeout: time.Hour})

	cb.Execute(func() error { return errTest })
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("state = %s, want closed after Reset", cb.State())
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Errorf("Execute after Reset: %v", err)
	}
}

func TestStateStrings(t *testing.T) {
	t.Parallel()
	if StateClosed.String() != "closed" || StateOpen.String() != "open" || StateHalfOpen.String() != "half-open" {
		t.Error("state names changed")
	}
	if State(42).String() != "unknown" {
		t.Error("unknown state should read unknown")
	}
}
