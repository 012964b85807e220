package sched

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestLoopRunsAndStops(t *testing.T) {
	var runs atomic.Int32
	l := NewLoop("test", FixedDelay(time.Millisecond), func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	l.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", runs.Load())
	}
	l.Stop()
	after := runs.Load()
	time.Sleep(20 * time.Millisecond)
	if runs.Load() != after {
		t.Fatal("loop kept running after Stop")
	}
	// Stop is idempotent.
	l.Stop()
}

func TestLoopRunAtStart(t *testing.T) {
	var runs atomic.Int32
	l := NewLoop("test", FixedDelay(time.Hour), func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	l.RunAtStart = true
	l.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if runs.Load() != 1 {
		t.Fatalf("expected one immediate run, got %d", runs.Load())
	}
	l.Stop()
}

func TestLoopContainsErrors(t *testing.T) {
	var runs atomic.Int32
	l := NewLoop("test", FixedDelay(time.Millisecond), func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("always fails")
	})
	l.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	l.Stop()
	if runs.Load() < 3 {
		t.Fatalf("errors should not stop the loop, got %d runs", runs.Load())
	}
}

func TestLoopStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop("test", FixedDelay(time.Hour), func(ctx context.Context) error { return nil })
	l.Start(ctx)
	cancel()
	select {
	case <-l.done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on context cancellation")
	}
}

func TestRandomDelayBounds(t *testing.T) {
	delay := RandomDelay(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 100; i++ {
		d := delay()
		if d < 10*time.Millisecond || d > 20*time.Millisecond {
			t.Fatalf("delay out of bounds: %v", d)
		}
	}
	// Degenerate range returns min.
	if d := RandomDelay(time.Second, time.Second)(); d != time.Second {
		t.Fatalf("got %v", d)
	}
}

func TestRunWhileHonorsPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var runs atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunWhile(ctx, "test", func(ctx context.Context) (time.Duration, error) {
			if runs.Add(1) >= 3 {
				cancel()
			}
			return time.Millisecond, nil
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunWhile did not exit after cancel")
	}
	if runs.Load() < 3 {
		t.Fatalf("expected 3 iterations, got %d", runs.Load())
	}
}

func TestRunWhileCancelDuringErrorBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunWhile(ctx, "test", func(ctx context.Context) (time.Duration, error) {
			return 0, errors.New("boom")
		})
	}()
	time.Sleep(10 * time.Millisecond) // let it enter the 30s backoff
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunWhile did not exit promptly from error backoff")
	}
}
