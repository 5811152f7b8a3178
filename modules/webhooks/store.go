package webhooks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable record interface the subsystem runs against. The
// relational schema behind it is an external concern; two adapters ship
// with the module: MemoryStore (tests, local development) and PostgresStore.
//
// Counter updates must be atomic at the store level: concurrent workers
// deliver to the same subscription and a read-modify-write would lose
// updates.
type Store interface {
	// Subscriptions

	CreateSubscription(ctx context.Context, sub *Subscription) error
	// UpdateSubscription replaces the mutable fields of the subscription.
	// Returns ErrSubscriptionNotFound if it does not exist.
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	// DeleteSubscription removes the subscription if it belongs to ownerID.
	// Returns ErrSubscriptionNotFound if no such row existed.
	DeleteSubscription(ctx context.Context, id, ownerID uuid.UUID) error
	// GetSubscription loads a subscription by id regardless of owner (the
	// delivery path has no owner in hand).
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// GetOwnedSubscription loads a subscription scoped to its owner.
	GetOwnedSubscription(ctx context.Context, id, ownerID uuid.UUID) (*Subscription, error)
	// ListSubscriptions pages through an owner's subscriptions, newest
	// first. The second return value is the total count.
	ListSubscriptions(ctx context.Context, ownerID uuid.UUID, page Page) ([]Subscription, int, error)
	// ListActiveSubscriptions returns the owner's active subscriptions
	// registered for eventType. This is the cache-fill query.
	ListActiveSubscriptions(ctx context.Context, ownerID uuid.UUID, eventType string) ([]Subscription, error)
	// RecordAttempt atomically bumps success_count or failure_count,
	// updates the consecutive-failure streak (reset on success), and sets
	// last_triggered_at. It returns the streak after the update so callers
	// can apply the disable threshold without a second read.
	RecordAttempt(ctx context.Context, id uuid.UUID, success bool, at time.Time) (consecutiveFailures int64, err error)

	// Events

	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*Event, error)

	// Deliveries

	CreateDelivery(ctx context.Context, delivery *Delivery) error
	GetDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error)
	// UpdateDelivery replaces the mutable fields of the delivery.
	UpdateDelivery(ctx context.Context, delivery *Delivery) error
	// ListDeliveries pages through a subscription's delivery history,
	// newest first. The second return value is the total count.
	ListDeliveries(ctx context.Context, subscriptionID uuid.UUID, page Page) ([]Delivery, int, error)
	// ListDueDeliveryIDs returns ids of retrying deliveries whose
	// next_retry_at is at or before now, plus pending deliveries created
	// before now minus pendingGrace (recovering lost enqueues), up to
	// limit. This is the sweep query.
	ListDueDeliveryIDs(ctx context.Context, now time.Time, pendingGrace time.Duration, limit int) ([]uuid.UUID, error)
}
