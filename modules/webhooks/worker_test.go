package webhooks

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSchedulerService(t *testing.T) *Service {
	t.Helper()
	backend := NewMemoryCache()
	t.Cleanup(backend.Close)
	return New(NewMemoryStore(), backend, WithConfig(Config{
		RetryBaseDelay: time.Minute,
	}))
}

func TestScheduleRetry_ExponentialDelays(t *testing.T) {
	t.Parallel()

	s := newSchedulerService(t)
	sub := &Subscription{ID: uuid.New(), RetryEnabled: true, MaxRetries: 3}
	now := time.Now().UTC()

	// delay before retry k doubles: 1m, 2m, 4m
	for attempt, want := range map[int]time.Duration{
		1: time.Minute,
		2: 2 * time.Minute,
		3: 4 * time.Minute,
	} {
		d := &Delivery{ID: uuid.New(), AttemptCount: attempt}
		s.scheduleRetry(d, sub, now)

		assert.Equal(t, DeliveryRetrying, d.Status)
		require.NotNil(t, d.NextRetryAt)
		assert.Equal(t, now.Add(want), *d.NextRetryAt, "attempt %d", attempt)
	}
}

func TestScheduleRetry_ExhaustedRetries(t *testing.T) {
	t.Parallel()

	s := newSchedulerService(t)
	sub := &Subscription{ID: uuid.New(), RetryEnabled: true, MaxRetries: 3}

	d := &Delivery{ID: uuid.New(), AttemptCount: 4}
	s.scheduleRetry(d, sub, time.Now().UTC())

	assert.Equal(t, DeliveryFailed, d.Status)
	assert.Nil(t, d.NextRetryAt)
}

func TestScheduleRetry_RetriesDisabled(t *testing.T) {
	t.Parallel()

	s := newSchedulerService(t)
	sub := &Subscription{ID: uuid.New(), RetryEnabled: false, MaxRetries: 3}

	d := &Delivery{ID: uuid.New(), AttemptCount: 1}
	s.scheduleRetry(d, sub, time.Now().UTC())

	assert.Equal(t, DeliveryFailed, d.Status)
	assert.Nil(t, d.NextRetryAt)
}

func TestScheduleRetry_ZeroMaxRetriesFailsAfterFirstAttempt(t *testing.T) {
	t.Parallel()

	s := newSchedulerService(t)
	sub := &Subscription{ID: uuid.New(), RetryEnabled: true, MaxRetries: 0}

	d := &Delivery{ID: uuid.New(), AttemptCount: 1}
	s.scheduleRetry(d, sub, time.Now().UTC())

	assert.Equal(t, DeliveryFailed, d.Status)
}
