package webhooks

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// deliveryQueue is the hand-off between producers (trigger, scheduler,
// manual retry) and the worker pool. It carries delivery ids, not payloads:
// the Delivery record holds the payload, so queue memory stays bounded and
// nothing is lost on restart.
//
// The queue is unbounded so producers never block, FIFO per producer, and
// deduplicating: an id already waiting is not enqueued twice, which keeps a
// delivery in the queue at most once per logical attempt even when the
// sweep and a producer race.
type deliveryQueue struct {
	mu     sync.Mutex
	items  []uuid.UUID
	queued map[uuid.UUID]struct{}
	closed bool

	signal chan struct{} // nudges one blocked consumer
	done   chan struct{} // closed on Close, wakes all consumers
}

func newDeliveryQueue() *deliveryQueue {
	return &deliveryQueue{
		queued: make(map[uuid.UUID]struct{}),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Enqueue adds a delivery id unless it is already waiting.
func (q *deliveryQueue) Enqueue(id uuid.UUID) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	if _, dup := q.queued[id]; dup {
		q.mu.Unlock()
		return nil
	}
	q.items = append(q.items, id)
	q.queued[id] = struct{}{}
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue blocks until an id is available, the context is cancelled, or the
// queue is closed and drained.
func (q *deliveryQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items = q.items[1:]
			delete(q.queued, id)
			remaining := len(q.items)
			q.mu.Unlock()

			// Pass the baton so other blocked consumers see the backlog
			if remaining > 0 {
				select {
				case q.signal <- struct{}{}:
				default:
				}
			}
			return id, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return uuid.Nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return uuid.Nil, ctx.Err()
		case <-q.done:
			// Loop once more to drain anything enqueued before Close
		case <-q.signal:
		}
	}
}

// Close stops accepting new ids and wakes all blocked consumers. Items
// already queued can still be dequeued; durable state makes any remainder
// recoverable by the sweep after restart.
func (q *deliveryQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.done)
}

// Len returns the number of waiting ids.
func (q *deliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
