package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hookrelay/hookrelay/pkg/webhook"
)

// Reserved outbound headers; subscriber-configured custom headers cannot
// override these.
const (
	headerWebhookID        = "X-Webhook-ID"
	headerWebhookEvent     = "X-Webhook-Event"
	headerWebhookDelivery  = "X-Webhook-Delivery"
	headerWebhookSignature = "X-Webhook-Signature"
)

// workerLoop is one member of the fixed-size pool: dequeue, process, loop.
func (s *Service) workerLoop(ctx context.Context, n int) {
	log := s.log.With(slog.Int("worker", n))
	for {
		id, err := s.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || errors.Is(err, context.Canceled) {
				return
			}
			log.Error("failed to dequeue delivery", slog.String("error", err.Error()))
			continue
		}

		// Processing is not tied to the worker context so graceful shutdown
		// lets the in-flight delivery finish; the subscription timeout
		// bounds the HTTP call either way.
		procCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		if err := s.processDelivery(procCtx, id); err != nil {
			log.Error("failed to process delivery",
				slog.String("delivery_id", id.String()),
				slog.String("error", err.Error()))
		}
		cancel()
	}
}

// processDelivery runs the full lifecycle of one delivery attempt.
func (s *Service) processDelivery(ctx context.Context, id uuid.UUID) error {
	// Manual retries force an attempt through an open breaker. The flag is
	// consumed unconditionally so it cannot leak onto a later attempt.
	forced := s.takeBreakerBypass(id)

	delivery, err := s.store.GetDelivery(ctx, id)
	if err != nil {
		return fmt.Errorf("load delivery: %w", err)
	}
	// Terminal deliveries are never reprocessed; a stale queue entry after
	// a manual retry race is dropped here.
	if delivery.Status.Terminal() {
		return nil
	}

	sub, err := s.store.GetSubscription(ctx, delivery.SubscriptionID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return fmt.Errorf("load subscription: %w", err)
	}
	if sub == nil || sub.Status != SubscriptionActive {
		delivery.Status = DeliveryFailed
		delivery.ErrorMessage = "subscription inactive"
		delivery.NextRetryAt = nil
		return s.store.UpdateDelivery(ctx, delivery)
	}

	// Breaker gate: no attempt is consumed and no HTTP happens while the
	// endpoint is known broken; the delivery just waits for the recovery
	// window. A forced attempt skips the gate but still records its
	// outcome below.
	breaker := s.breakers.Get(sub.ID.String())
	if !forced && !breaker.Allow() {
		recovery := breaker.RecoveryTime()
		if recovery.IsZero() {
			recovery = time.Now().Add(s.cfg.BreakerRecoveryTimeout)
		}
		delivery.Status = DeliveryRetrying
		delivery.NextRetryAt = &recovery
		return s.store.UpdateDelivery(ctx, delivery)
	}

	delivery.AttemptCount++

	result := s.attempt(ctx, delivery, sub)

	if result.Delivered {
		breaker.RecordSuccess()
	} else {
		breaker.RecordFailure()
	}

	now := time.Now().UTC()
	streak, err := s.store.RecordAttempt(ctx, sub.ID, result.Delivered, now)
	if err != nil {
		s.log.Warn("failed to record attempt counters",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("error", err.Error()))
	}

	delivery.ResponseStatus = result.StatusCode
	delivery.ResponseBody = result.BodyExcerpt
	if result.Err != nil {
		delivery.ErrorMessage = result.Err.Error()
	} else {
		delivery.ErrorMessage = ""
	}

	if result.Delivered {
		delivery.Status = DeliveryDelivered
		delivery.DeliveredAt = &now
		delivery.NextRetryAt = nil
	} else {
		s.scheduleRetry(delivery, sub, now)
	}

	if err := s.store.UpdateDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("finalize delivery: %w", err)
	}

	if !result.Delivered && streak >= int64(s.cfg.DisableThreshold) {
		s.disableSubscription(ctx, sub, streak)
	}

	s.log.Debug("delivery processed",
		slog.String("delivery_id", delivery.ID.String()),
		slog.String("status", string(delivery.Status)),
		slog.Int("attempt", delivery.AttemptCount),
		slog.Int("response_status", result.StatusCode))
	return nil
}

// attempt builds the signed envelope and performs the HTTP POST.
func (s *Service) attempt(ctx context.Context, delivery *Delivery, sub *Subscription) webhook.Result {
	created := delivery.CreatedAt
	if event, err := s.store.GetEvent(ctx, delivery.EventID); err == nil {
		created = event.CreatedAt
	}

	envelope := Envelope{
		ID:      delivery.ID.String(),
		Event:   delivery.EventType,
		Created: created,
		Data:    delivery.Payload,
	}
	canonical, err := webhook.CanonicalJSON(envelope)
	if err != nil {
		return webhook.Result{Class: webhook.ClassPermanent, Err: err}
	}

	// Custom headers first so the reserved set always wins.
	headers := make(map[string]string, len(sub.CustomHeaders)+4)
	for k, v := range sub.CustomHeaders {
		if strings.HasPrefix(strings.ToLower(k), "x-webhook-") {
			continue
		}
		headers[k] = v
	}
	headers[headerWebhookID] = sub.ID.String()
	headers[headerWebhookEvent] = delivery.EventType
	headers[headerWebhookDelivery] = delivery.ID.String()
	headers[headerWebhookSignature] = webhook.Sign(sub.Secret, canonical)

	return s.sender.Attempt(ctx, webhook.Request{
		URL:     sub.TargetURL,
		Payload: canonical,
		Headers: headers,
		Timeout: sub.Timeout,
	})
}

// scheduleRetry decides between retrying and failed for an unsuccessful
// attempt. Every non-2xx outcome is retried, including 4xx client errors,
// until retries exhaust.
func (s *Service) scheduleRetry(delivery *Delivery, sub *Subscription, now time.Time) {
	if !sub.RetryEnabled || delivery.AttemptCount > sub.MaxRetries {
		delivery.Status = DeliveryFailed
		delivery.NextRetryAt = nil
		return
	}

	delay := s.backoff.NextInterval(delivery.AttemptCount)
	next := now.Add(delay)
	delivery.Status = DeliveryRetrying
	delivery.NextRetryAt = &next
}

// disableSubscription is the long-term counterpart of the circuit breaker:
// after the consecutive-failure threshold the subscription is switched off
// entirely and only an explicit owner re-activation brings it back.
func (s *Service) disableSubscription(ctx context.Context, sub *Subscription, streak int64) {
	if sub.Status == SubscriptionDisabled {
		return
	}
	sub.Status = SubscriptionDisabled
	sub.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		s.log.Error("failed to disable subscription",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("error", err.Error()))
		return
	}
	s.invalidate(ctx, sub)

	s.log.Warn("subscription disabled after consecutive failures",
		slog.String("subscription_id", sub.ID.String()),
		slog.Int64("consecutive_failures", streak))
}
