// Package scheduler runs periodic background work without ever overlapping a run.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Keeydi/LedgerMonitor-sub000/metrics"
	"github.com/sirupsen/logrus"
)

// ErrBusy is returned by RunOnce while another run of the same task is in progress
var ErrBusy = errors.New("task already running")

// Func is one bounded unit of work
type Func func(ctx context.Context) error

// Task runs fn every interval. The next tick is armed only after the
// previous run returns, so a slow run delays the schedule instead of stacking.
type Task struct {
	name     string
	interval time.Duration
	fn       Func

	running sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(name string, interval time.Duration, fn Func) *Task {
	return &Task{name: name, interval: interval, fn: fn}
}

func (t *Task) Name() string {
	return t.name
}

// Start launches the loop. Calling Start on a started task is a no-op.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.loop(ctx, t.done)

	logrus.Infof("⏱️  [SCHEDULER] %s started (every %s)", t.name, t.interval)
}

// Stop cancels the loop and waits for an in-flight run to return
func (t *Task) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logrus.Infof("🛑 [SCHEDULER] %s stopped", t.name)
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(t.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := t.RunOnce(ctx); err != nil && !errors.Is(err, ErrBusy) && ctx.Err() == nil {
				logrus.WithError(err).Errorf("❌ [SCHEDULER] %s run failed", t.name)
			}
			timer.Reset(t.interval)
		}
	}
}

// RunOnce executes one unit of work now. It returns ErrBusy instead of
// waiting when a run is already in progress.
func (t *Task) RunOnce(ctx context.Context) error {
	if !t.running.TryLock() {
		return ErrBusy
	}
	defer t.running.Unlock()

	start := time.Now()
	err := t.fn(ctx)
	metrics.TaskDurationSeconds.WithLabelValues(t.name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TaskErrors.WithLabelValues(t.name).Inc()
	}
	return err
}
