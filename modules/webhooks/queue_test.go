package webhooks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryQueue_FIFO(t *testing.T) {
	t.Parallel()

	q := newDeliveryQueue()
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(id))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range ids {
		got, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Len())
}

func TestDeliveryQueue_Dedupe(t *testing.T) {
	t.Parallel()

	q := newDeliveryQueue()
	id := uuid.New()

	require.NoError(t, q.Enqueue(id))
	require.NoError(t, q.Enqueue(id))
	require.NoError(t, q.Enqueue(id))
	assert.Equal(t, 1, q.Len(), "duplicate ids must not be queued twice")

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	// After dequeue the id may be enqueued again
	require.NoError(t, q.Enqueue(id))
	assert.Equal(t, 1, q.Len())
}

func TestDeliveryQueue_BlockingDequeue(t *testing.T) {
	t.Parallel()

	q := newDeliveryQueue()
	id := uuid.New()

	got := make(chan uuid.UUID, 1)
	go func() {
		v, err := q.Dequeue(context.Background())
		if err == nil {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Enqueue(id))

	select {
	case v := <-got:
		assert.Equal(t, id, v)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not wake up after enqueue")
	}
}

func TestDeliveryQueue_ContextCancel(t *testing.T) {
	t.Parallel()

	q := newDeliveryQueue()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after context cancellation")
	}
}

func TestDeliveryQueue_CloseDrains(t *testing.T) {
	t.Parallel()

	q := newDeliveryQueue()
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	for _, id := range ids {
		require.NoError(t, q.Enqueue(id))
	}

	q.Close()

	assert.ErrorIs(t, q.Enqueue(uuid.New()), ErrQueueClosed)

	// Items enqueued before Close remain dequeueable
	for _, want := range ids {
		got, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := q.Dequeue(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestDeliveryQueue_CloseWakesBlockedConsumers(t *testing.T) {
	t.Parallel()

	q := newDeliveryQueue()

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Dequeue(context.Background())
			errs <- err
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked consumers were not woken by Close")
	}
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrQueueClosed)
	}
}

func TestDeliveryQueue_ConcurrentProducersConsumers(t *testing.T) {
	t.Parallel()

	q := newDeliveryQueue()
	const producers, perProducer, consumers = 4, 50, 3

	var produced sync.Map
	var pwg sync.WaitGroup
	for range producers {
		pwg.Add(1)
		go func() {
			defer pwg.Done()
			for range perProducer {
				id := uuid.New()
				produced.Store(id, struct{}{})
				_ = q.Enqueue(id)
			}
		}()
	}

	var mu sync.Mutex
	consumed := make(map[uuid.UUID]int)
	var cwg sync.WaitGroup
	for range consumers {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for {
				id, err := q.Dequeue(context.Background())
				if err != nil {
					return
				}
				mu.Lock()
				consumed[id]++
				mu.Unlock()
			}
		}()
	}

	pwg.Wait()
	require.Eventually(t, func() bool { return q.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	q.Close()
	cwg.Wait()

	assert.Len(t, consumed, producers*perProducer, "every enqueued id must be consumed")
	for id, n := range consumed {
		assert.Equal(t, 1, n, "id %s consumed more than once", id)
	}
}
