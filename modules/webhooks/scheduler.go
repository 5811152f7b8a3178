package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// sweepLoop is the retry scheduler: a periodic sweep re-enqueues retrying
// deliveries whose next_retry_at has passed and pending deliveries older
// than the grace period (lost enqueues, restarts). A sweep instead of
// per-delivery timers keeps scheduling state in the store, so nothing is
// lost when the process restarts.
func (s *Service) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	ids, err := s.store.ListDueDeliveryIDs(ctx, time.Now().UTC(), s.cfg.PendingGrace, s.cfg.SweepBatch)
	if err != nil {
		s.log.Error("delivery sweep failed", slog.String("error", err.Error()))
		return
	}

	enqueued := 0
	for _, id := range ids {
		if err := s.queue.Enqueue(id); err != nil {
			// Queue closed during shutdown; the deliveries stay durable
			return
		}
		enqueued++
	}
	if enqueued > 0 {
		s.log.Debug("sweep re-enqueued deliveries", slog.Int("count", enqueued))
	}
}

// RetryDelivery is the manual "retry now" operation: it resets a failed
// delivery to a fresh pending state and enqueues it immediately, bypassing
// both the backoff schedule and the subscription's circuit breaker gate for
// that one attempt. The breaker itself is not reset; its state still
// records the attempt's outcome. Only failed deliveries can be retried.
func (s *Service) RetryDelivery(ctx context.Context, deliveryID, ownerID uuid.UUID) (*Delivery, error) {
	delivery, err := s.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	// Owner scope via the parent subscription
	if _, err := s.store.GetOwnedSubscription(ctx, delivery.SubscriptionID, ownerID); err != nil {
		return nil, ErrDeliveryNotFound
	}
	if delivery.Status != DeliveryFailed {
		return nil, ErrDeliveryNotRetryable
	}

	delivery.AttemptCount = 0
	delivery.Status = DeliveryPending
	delivery.NextRetryAt = nil
	delivery.ErrorMessage = ""
	delivery.ResponseStatus = 0
	delivery.ResponseBody = ""

	if err := s.store.UpdateDelivery(ctx, delivery); err != nil {
		return nil, err
	}

	s.markBreakerBypass(delivery.ID)
	if err := s.queue.Enqueue(delivery.ID); err != nil {
		// Durable pending state; the sweep picks it up once running
		s.log.Warn("manual retry enqueue failed, leaving for sweep",
			slog.String("delivery_id", delivery.ID.String()),
			slog.String("error", err.Error()))
	}

	s.log.Info("manual delivery retry requested",
		slog.String("delivery_id", delivery.ID.String()))
	return delivery, nil
}
