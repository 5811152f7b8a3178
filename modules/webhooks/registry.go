package webhooks

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// CreateSubscriptionRequest is the registry's creation input. Optional
// fields fall back to the service defaults.
type CreateSubscriptionRequest struct {
	URL            string            `json:"url"`
	Events         []string          `json:"events"`
	Description    string            `json:"description,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
	RetryEnabled   *bool             `json:"retry_enabled,omitempty"`
	MaxRetries     *int              `json:"max_retries,omitempty"`
	TimeoutSeconds *int              `json:"timeout_seconds,omitempty"`
}

// UpdateSubscriptionRequest is a partial update; nil fields keep their
// current values. Events replaces the whole set when non-nil.
type UpdateSubscriptionRequest struct {
	URL            *string             `json:"url,omitempty"`
	Events         []string            `json:"events,omitempty"`
	Description    *string             `json:"description,omitempty"`
	Headers        map[string]string   `json:"headers,omitempty"`
	RetryEnabled   *bool               `json:"retry_enabled,omitempty"`
	MaxRetries     *int                `json:"max_retries,omitempty"`
	TimeoutSeconds *int                `json:"timeout_seconds,omitempty"`
	Status         *SubscriptionStatus `json:"status,omitempty"`
}

// CreateSubscription registers a new webhook endpoint for ownerID. The
// returned subscription carries the signing secret; this is the only time
// it is ever exposed.
func (s *Service) CreateSubscription(ctx context.Context, ownerID uuid.UUID, req CreateSubscriptionRequest) (*Subscription, error) {
	if err := validateEventTypes(req.Events); err != nil {
		return nil, err
	}
	if err := s.validateTargetURL(ctx, req.URL); err != nil {
		return nil, err
	}
	if req.MaxRetries != nil && *req.MaxRetries < 0 {
		return nil, ErrInvalidMaxRetries
	}

	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &Subscription{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		TargetURL:     req.URL,
		EventTypes:    slices.Clone(req.Events),
		Secret:        secret,
		Description:   req.Description,
		CustomHeaders: maps.Clone(req.Headers),
		RetryEnabled:  true,
		MaxRetries:    s.cfg.DefaultMaxRetries,
		Timeout:       s.cfg.DefaultTimeout,
		Status:        SubscriptionActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.RetryEnabled != nil {
		sub.RetryEnabled = *req.RetryEnabled
	}
	if req.MaxRetries != nil {
		sub.MaxRetries = *req.MaxRetries
	}
	if req.TimeoutSeconds != nil && *req.TimeoutSeconds > 0 {
		sub.Timeout = time.Duration(*req.TimeoutSeconds) * time.Second
	}

	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to create subscription: %w", err)
	}

	// A lookup may have cached the empty result for these event types
	// before this subscription existed; clear it before returning so the
	// next trigger sees the new subscription.
	s.invalidate(ctx, sub)

	s.log.Info("webhook subscription created",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("owner_id", ownerID.String()),
		slog.Any("event_types", sub.EventTypes))
	return sub, nil
}

// UpdateSubscription applies a partial update. Cache entries for both the
// old and new event-type sets are invalidated before the call returns, so
// a successful mutation is never followed by a stale read.
func (s *Service) UpdateSubscription(ctx context.Context, id, ownerID uuid.UUID, req UpdateSubscriptionRequest) (*Subscription, error) {
	sub, err := s.store.GetOwnedSubscription(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	oldEventTypes := slices.Clone(sub.EventTypes)

	if req.URL != nil {
		if err := s.validateTargetURL(ctx, *req.URL); err != nil {
			return nil, err
		}
		sub.TargetURL = *req.URL
	}
	if req.Events != nil {
		if err := validateEventTypes(req.Events); err != nil {
			return nil, err
		}
		sub.EventTypes = slices.Clone(req.Events)
	}
	if req.Description != nil {
		sub.Description = *req.Description
	}
	if req.Headers != nil {
		sub.CustomHeaders = maps.Clone(req.Headers)
	}
	if req.RetryEnabled != nil {
		sub.RetryEnabled = *req.RetryEnabled
	}
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			return nil, ErrInvalidMaxRetries
		}
		sub.MaxRetries = *req.MaxRetries
	}
	if req.TimeoutSeconds != nil && *req.TimeoutSeconds > 0 {
		sub.Timeout = time.Duration(*req.TimeoutSeconds) * time.Second
	}
	if req.Status != nil {
		// Disablement is automatic-only; owners can activate or pause.
		if *req.Status != SubscriptionActive && *req.Status != SubscriptionPaused {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status)
		}
		if *req.Status == SubscriptionActive && sub.Status == SubscriptionDisabled {
			// Explicit owner re-activation: give the endpoint a clean slate
			s.breakers.Get(sub.ID.String()).Reset()
			sub.ConsecutiveFailures = 0
		}
		sub.Status = *req.Status
	}
	sub.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to update subscription: %w", err)
	}

	s.invalidate(ctx, sub, oldEventTypes...)

	s.log.Info("webhook subscription updated",
		slog.String("subscription_id", sub.ID.String()),
		slog.String("status", string(sub.Status)))
	return sub, nil
}

// DeleteSubscription removes a subscription, its cache entries, and its
// circuit breaker state.
func (s *Service) DeleteSubscription(ctx context.Context, id, ownerID uuid.UUID) error {
	sub, err := s.store.GetOwnedSubscription(ctx, id, ownerID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteSubscription(ctx, id, ownerID); err != nil {
		return err
	}

	s.invalidate(ctx, sub)
	s.breakers.Forget(id.String())

	s.log.Info("webhook subscription deleted",
		slog.String("subscription_id", id.String()))
	return nil
}

// GetSubscription loads an owner's subscription. The secret is never
// included.
func (s *Service) GetSubscription(ctx context.Context, id, ownerID uuid.UUID) (*Subscription, error) {
	sub, err := s.store.GetOwnedSubscription(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	redacted := sub.Redacted()
	return &redacted, nil
}

// ListSubscriptions pages through an owner's subscriptions, newest first,
// with secrets omitted.
func (s *Service) ListSubscriptions(ctx context.Context, ownerID uuid.UUID, page Page) ([]Subscription, int, error) {
	subs, total, err := s.store.ListSubscriptions(ctx, ownerID, page)
	if err != nil {
		return nil, 0, err
	}
	for i := range subs {
		subs[i] = subs[i].Redacted()
	}
	return subs, total, nil
}

// ListDeliveries pages through the delivery history of an owner's
// subscription.
func (s *Service) ListDeliveries(ctx context.Context, subscriptionID, ownerID uuid.UUID, page Page) ([]Delivery, int, error) {
	if _, err := s.store.GetOwnedSubscription(ctx, subscriptionID, ownerID); err != nil {
		return nil, 0, err
	}
	return s.store.ListDeliveries(ctx, subscriptionID, page)
}

// invalidate clears cache entries and logs on failure; a failed
// invalidation is not fatal because the index TTL bounds staleness.
func (s *Service) invalidate(ctx context.Context, sub *Subscription, extraEventTypes ...string) {
	if err := s.subCache.Invalidate(ctx, sub, extraEventTypes...); err != nil {
		s.log.Warn("failed to invalidate subscription cache",
			slog.String("subscription_id", sub.ID.String()),
			slog.String("error", err.Error()))
	}
}
