package http

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInFlightTracker_Count(t *testing.T) {
	tracker := &InFlightTracker{}
	steps := []struct {
		op   func()
		want int64
	}{
		{tracker.Increment, 1},
		{tracker.Increment, 2},
		{tracker.Decrement, 1},
		{tracker.Decrement, 0},
	}
	for i, s := range steps {
		s.op()
		if got := tracker.Count(); got != s.want {
			t.Fatalf("step %d: Count() = %d, want %d", i, got, s.want)
		}
	}
}

// TestInFlightTracker_WaitForZero verifies the wait returns once the last
// request finishes.
func TestInFlightTracker_WaitForZero(t *testing.T) {
	// Arrange
	tracker := &InFlightTracker{}
	tracker.Increment()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan error, 1)

	// Act
	go func() { done <- tracker.WaitForZero(ctx, time.Millisecond) }()
	time.Sleep(5 * time.Millisecond)
	tracker.Decrement()

	// Assert
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForZero() = %v, want nil", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitForZero did not return after count reached zero")
	}
}

func TestInFlightTracker_WaitForZero_Deadline(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := tracker.WaitForZero(ctx, time.Millisecond)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitForZero() = %v, want deadline exceeded", err)
	}
}
