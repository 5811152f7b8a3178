package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// TriggerOption configures a single Trigger call.
type TriggerOption func(*triggerOptions)

type triggerOptions struct {
	resourceID string
}

// WithResourceID attaches a platform resource reference to the event.
func WithResourceID(resourceID string) TriggerOption {
	return func(o *triggerOptions) {
		o.resourceID = resourceID
	}
}

// Trigger publishes an event: it persists an immutable Event record,
// resolves matching active subscriptions through the cache, creates one
// pending Delivery per match, and enqueues each for asynchronous delivery.
//
// Trigger returns as soon as all Delivery records are durable and enqueued;
// no HTTP happens on this path, so callers are never exposed to endpoint
// latency. A failed enqueue is not an error: the delivery stays pending and
// the scheduler's sweep picks it up.
func (s *Service) Trigger(ctx context.Context, ownerID uuid.UUID, eventType string, payload any, opts ...TriggerOption) (*Event, error) {
	var options triggerOptions
	for _, opt := range opts {
		opt(&options)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	event := &Event{
		ID:         uuid.New(),
		EventType:  eventType,
		OwnerID:    ownerID,
		ResourceID: options.resourceID,
		Payload:    raw,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to persist event: %w", err)
	}

	subs, err := s.subCache.Lookup(ctx, ownerID, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subscriptions: %w", err)
	}

	for i := range subs {
		delivery := &Delivery{
			ID:             uuid.New(),
			SubscriptionID: subs[i].ID,
			EventID:        event.ID,
			EventType:      eventType,
			Payload:        raw,
			Status:         DeliveryPending,
			CreatedAt:      time.Now().UTC(),
		}
		if err := s.store.CreateDelivery(ctx, delivery); err != nil {
			// Partial fan-out must not silently drop the rest; surface the
			// store failure to the caller.
			return nil, fmt.Errorf("failed to create delivery for subscription %s: %w", subs[i].ID, err)
		}

		if err := s.queue.Enqueue(delivery.ID); err != nil {
			// Delivery is durable and pending; the sweep re-enqueues it.
			s.log.Warn("failed to enqueue delivery, leaving for sweep",
				slog.String("delivery_id", delivery.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	s.log.Debug("event triggered",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", eventType),
		slog.Int("deliveries", len(subs)))
	return event, nil
}
