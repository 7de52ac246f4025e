package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/marcus/prep/internal/models"
)

// ErrQueueClosed is returned by Next once the queue is closed and drained.
var ErrQueueClosed = errors.New("event queue closed")

// Queue is an unbounded FIFO of change events. Push never blocks, so
// transport callbacks can hand events over from any goroutine.
type Queue struct {
	mu     sync.Mutex
	items  []models.ChangeEvent
	ready  chan struct{}
	done   chan struct{}
	closed bool
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends ev. Events pushed after Close are discarded.
func (q *Queue) Push(ev models.ChangeEvent) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Next blocks until an event is available, ctx is done, or the queue is
// closed and empty.
func (q *Queue) Next(ctx context.Context) (models.ChangeEvent, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = models.ChangeEvent{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return models.ChangeEvent{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return models.ChangeEvent{}, ctx.Err()
		case <-q.done:
		case <-q.ready:
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting events. Queued events can still be drained.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
}
