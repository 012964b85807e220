// Package sched provides the self-rescheduling timer loops the features
// run on: a single-shot timer re-armed after each run (so a long action
// pushes out the next schedule point rather than compounding), paired
// with an explicit stop signal.
package sched

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"petrel/internal/logging"
	"petrel/internal/metrics"
)

// DelayFunc computes the delay before the next run.
type DelayFunc func() time.Duration

// FixedDelay returns d every time.
func FixedDelay(d time.Duration) DelayFunc {
	return func() time.Duration { return d }
}

// RandomDelay returns a uniform-random duration in [min, max].
func RandomDelay(min, max time.Duration) DelayFunc {
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	var mu sync.Mutex
	return func() time.Duration {
		if max <= min {
			return min
		}
		mu.Lock()
		defer mu.Unlock()
		return min + time.Duration(rnd.Int63n(int64(max-min)+1))
	}
}

// Loop runs fn, then re-arms a single-shot timer with a fresh delay, until
// stopped. Errors from fn are logged and contained; the loop re-arms on
// its normal schedule.
type Loop struct {
	Name       string
	Delay      DelayFunc
	Fn         func(ctx context.Context) error
	RunAtStart bool

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewLoop(name string, delay DelayFunc, fn func(ctx context.Context) error) *Loop {
	return &Loop{
		Name:  name,
		Delay: delay,
		Fn:    fn,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Start launches the loop goroutine. Stop (or ctx cancellation) ends it;
// a run already in progress finishes first.
func (l *Loop) Start(ctx context.Context) {
	go func() {
		defer close(l.done)
		if l.RunAtStart {
			l.runOnce(ctx)
		}
		for {
			d := l.Delay()
			t := time.NewTimer(d)
			select {
			case <-t.C:
				l.runOnce(ctx)
			case <-l.stop:
				t.Stop()
				return
			case <-ctx.Done():
				t.Stop()
				return
			}
		}
	}()
}

// Stop signals the loop to exit at the next reschedule boundary and waits
// for it.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
	<-l.done
}

func (l *Loop) runOnce(ctx context.Context) {
	metrics.LoopRuns.WithLabelValues(l.Name).Inc()
	if err := l.Fn(ctx); err != nil {
		metrics.LoopErrors.WithLabelValues(l.Name).Inc()
		logging.Error("loop_run_error", map[string]any{"loop": l.Name, "error": err.Error()})
	}
}

// errBackoff is the fixed pause after a failed RunWhile iteration.
const errBackoff = 30 * time.Second

// RunWhile iterates fn until ctx is done. iter returns the pause before
// the next iteration; on error the pause is a fixed 30s instead.
func RunWhile(ctx context.Context, name string, iter func(ctx context.Context) (time.Duration, error)) {
	for {
		if ctx.Err() != nil {
			logging.Info("while_loop_stop", map[string]any{"loop": name})
			return
		}
		metrics.LoopRuns.WithLabelValues(name).Inc()
		pause, err := iter(ctx)
		if err != nil {
			metrics.LoopErrors.WithLabelValues(name).Inc()
			logging.Error("while_loop_error", map[string]any{"loop": name, "error": err.Error()})
			pause = errBackoff
		}
		if pause <= 0 {
			continue
		}
		t := time.NewTimer(pause)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			logging.Info("while_loop_stop", map[string]any{"loop": name})
			return
		}
	}
}
