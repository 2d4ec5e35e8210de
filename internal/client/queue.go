package client

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/asterisk-popup/internal/ami"
)

// Queue is an unbounded FIFO of events between the reader and the
// dispatcher. Push never blocks.
type Queue struct {
	mu     sync.Mutex
	events []ami.Event
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Push appends evt to the tail of the queue.
func (q *Queue) Push(evt ami.Event) {
	q.mu.Lock()
	q.events = append(q.events, evt)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop removes the head of the queue, waiting up to timeout for one to
// arrive. It returns false on timeout or when ctx is done.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (ami.Event, bool) {
	if evt, ok := q.tryPop(); ok {
		return evt, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-q.notify:
			if evt, ok := q.tryPop(); ok {
				return evt, true
			}
		case <-timer.C:
			return q.tryPop()
		case <-ctx.Done():
			return ami.Event{}, false
		}
	}
}

func (q *Queue) tryPop() (ami.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return ami.Event{}, false
	}
	evt := q.events[0]
	q.events[0] = ami.Event{}
	q.events = q.events[1:]
	if len(q.events) == 0 {
		q.events = nil
	}
	return evt, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
