package resilience

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterFailures(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute})
	cb.now = func() time.Time { return now }

	fail := errors.New("down")
	_ = cb.Execute(func() error { return fail })
	if cb.State() != StateClosed {
		t.Fatal("expected closed after one failure")
	}
	_ = cb.Execute(func() error { return fail })
	if cb.State() != StateOpen {
		t.Fatal("expected open after two failures")
	}
	if err := cb.Execute(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}

	now = now.Add(time.Minute)
	if cb.State() != StateHalfOpen {
		t.Fatal("expected half-open after timeout")
	}
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if cb.State() != StateClosed {
		t.Error("expected closed after successful probe")
	}
}

func TestCircuitBreaker_ShouldTrip(t *testing.T) {
	ignored := errors.New("client error")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1,
		ShouldTrip:  func(err error) bool { return !errors.Is(err, ignored) },
	})
	for i := 0; i < 5; i++ {
		_ = cb.Execute(func() error { return ignored })
	}
	if cb.State() != StateClosed {
		t.Error("errors excluded by ShouldTrip must not open the circuit")
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	now := time.Unix(0, 0)
	var transitions []State
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		MaxFailures: 1, OpenTimeout: time.Second,
		OnStateChange: func(name string, from, to State) { transitions = append(transitions, to) },
	})
	cb.now = func() time.Time { return now }

	_ = cb.Execute(func() error { return errors.New("x") })
	now = now.Add(time.Second)
	_ = cb.Execute(func() error { return errors.New("still down") })
	if cb.State() != StateOpen {
		t.Fatalf("expected re-open, got %s", cb.State())
	}
	want := []State{StateOpen, StateHalfOpen, StateOpen}
	if len(transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d: expected %s, got %s", i, want[i], transitions[i])
		}
	}
}
