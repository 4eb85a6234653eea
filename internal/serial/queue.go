// Package serial provides the single ordered execution context every session
// mutation runs on.
package serial

import (
	"context"
	"sync"

	errs "github.com/jrsteele09/go-auth-client/internal/errors"
)

// ErrClosed is returned by RunSync once the queue has been closed.
var ErrClosed = errs.Wrapf(errs.ErrClosed, "serial queue")

// Queue runs submitted work one item at a time, in submission order, on a
// dedicated goroutine. Work must not call RunSync on its own queue.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	closed  bool
	done    chan struct{}
}

// New starts the queue goroutine.
func New() *Queue {
	q := &Queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go q.run()
	return q
}

// RunAsync enqueues work without waiting. Work submitted after Close is dropped.
func (q *Queue) RunAsync(work func()) {
	q.enqueue(work)
}

// RunSync enqueues work and waits for it to finish. If ctx ends before the
// work starts, the work is skipped and the context error returned; work that
// has started always runs to completion.
func (q *Queue) RunSync(ctx context.Context, work func()) error {
	var (
		once     sync.Once
		started  = make(chan struct{})
		finished = make(chan struct{})
	)
	claim := func() bool {
		won := false
		once.Do(func() { won = true })
		return won
	}

	if !q.enqueue(func() {
		if !claim() {
			return
		}
		close(started)
		defer close(finished)
		work()
	}) {
		return ErrClosed
	}

	select {
	case <-started:
		<-finished
		return nil
	case <-ctx.Done():
		if claim() {
			return ctx.Err()
		}
		// The queue claimed the work first; wait for it.
		<-finished
		return nil
	}
}

// Close stops accepting work, runs everything already queued and waits for
// the goroutine to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	q.mu.Unlock()
	q.signal()
	<-q.done
}

func (q *Queue) enqueue(work func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, work)
	q.mu.Unlock()
	q.signal()
	return true
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		closed := q.closed
		q.mu.Unlock()

		for _, work := range batch {
			work()
		}

		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}
