package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrQueueFull is returned when the sink is too far behind to take another event
var ErrQueueFull = errors.New("events: publish queue full")

// Async hands events to a slow sink through a bounded queue drained by one
// goroutine. Publish never waits on the sink; a full queue drops the event.
type Async struct {
	next    Publisher
	queue   chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsync(next Publisher, size int, timeout time.Duration) *Async {
	if size <= 0 {
		size = 1024
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	a := &Async{next: next, queue: make(chan Event, size), timeout: timeout}
	a.wg.Add(1)
	go a.drain()
	return a
}

func (a *Async) Publish(ctx context.Context, e Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrQueueFull
	}
	select {
	case a.queue <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) drain() {
	defer a.wg.Done()
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Publish(ctx, e); err != nil {
			logrus.WithError(err).WithField("event", e.Type).Warn("⚠️ [EVENTS] Export failed")
		}
		cancel()
	}
}

// Close stops accepting events, flushes what is queued and closes the sink
func (a *Async) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
	return a.next.Close()
}
