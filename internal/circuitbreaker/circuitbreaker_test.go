package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fail() error    { return errBoom }
func succeed() error { return nil }

// TestCircuitBreaker_OpensAfterThreshold verifies consecutive failures open
// the circuit and subsequent calls are rejected without running fn.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{Name: "places", FailureThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("call %d error = %v, want errBoom", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	ran := false
	err := cb.Call(ctx, func() error { ran = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() while open = %v, want ErrOpen", err)
	}
	if ran {
		t.Error("fn should not run while open")
	}
}

// TestCircuitBreaker_HalfOpenRecovery verifies the breaker probes after the
// timeout and closes after SuccessThreshold successes.
func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	var transitions []string
	cb := New(Config{
		Name:             "weather",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Second,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	now := time.Now()
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	now = now.Add(2 * time.Second)

	if err := cb.Call(ctx, succeed); err != nil {
		t.Fatalf("probe error = %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half_open", cb.State())
	}
	_ = cb.Call(ctx, succeed)
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want closed", cb.State())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, Timeout: time.Second})
	now := time.Now()
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	now = now.Add(2 * time.Second)
	_ = cb.Call(ctx, fail)

	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open after failed probe", cb.State())
	}
}

// TestCircuitBreaker_IgnoresNonFailures verifies IsFailure filters errors
// that should not trip the breaker.
func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	errMissingKey := errors.New("missing key")
	cb := New(Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return err != nil && !errors.Is(err, errMissingKey) },
	})
	_ = cb.Call(context.Background(), func() error { return errMissingKey })
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cb.Call(ctx, succeed); !errors.Is(err, context.Canceled) {
		t.Errorf("Call() = %v, want context.Canceled", err)
	}
}
