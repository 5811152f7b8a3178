package webhooks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hookrelay/hookrelay/pkg/pg"
)

// PostgresStore is the production Store backed by a pgx connection pool.
// The schema lives in the migrations directory at the repository root.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an established pool. The caller owns the pool's
// lifecycle.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const subscriptionColumns = `id, owner_id, target_url, event_types, secret, description,
	custom_headers, retry_enabled, max_retries, timeout_seconds, status,
	success_count, failure_count, consecutive_failures,
	last_triggered_at, created_at, updated_at`

func (s *PostgresStore) scanSubscription(row interface{ Scan(...any) error }) (*Subscription, error) {
	var (
		sub            Subscription
		timeoutSeconds int
	)
	err := row.Scan(
		&sub.ID, &sub.OwnerID, &sub.TargetURL, &sub.EventTypes, &sub.Secret,
		&sub.Description, &sub.CustomHeaders, &sub.RetryEnabled, &sub.MaxRetries,
		&timeoutSeconds, &sub.Status,
		&sub.SuccessCount, &sub.FailureCount, &sub.ConsecutiveFailures,
		&sub.LastTriggeredAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to scan subscription: %w", err)
	}
	sub.Timeout = time.Duration(timeoutSeconds) * time.Second
	return &sub, nil
}

func (s *PostgresStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	const q = `
INSERT INTO webhook_subscriptions (
	id, owner_id, target_url, event_types, secret, description,
	custom_headers, retry_enabled, max_retries, timeout_seconds, status,
	created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := s.pool.Exec(ctx, q,
		sub.ID, sub.OwnerID, sub.TargetURL, sub.EventTypes, sub.Secret,
		sub.Description, sub.CustomHeaders, sub.RetryEnabled, sub.MaxRetries,
		int(sub.Timeout/time.Second), sub.Status,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	const q = `
UPDATE webhook_subscriptions SET
	target_url = $2, event_types = $3, description = $4, custom_headers = $5,
	retry_enabled = $6, max_retries = $7, timeout_seconds = $8, status = $9,
	consecutive_failures = $10, updated_at = $11
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q,
		sub.ID, sub.TargetURL, sub.EventTypes, sub.Description, sub.CustomHeaders,
		sub.RetryEnabled, sub.MaxRetries, int(sub.Timeout/time.Second), sub.Status,
		sub.ConsecutiveFailures, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSubscription(ctx context.Context, id, ownerID uuid.UUID) error {
	const q = `DELETE FROM webhook_subscriptions WHERE id = $1 AND owner_id = $2`
	tag, err := s.pool.Exec(ctx, q, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1`
	return s.scanSubscription(s.pool.QueryRow(ctx, q, id))
}

func (s *PostgresStore) GetOwnedSubscription(ctx context.Context, id, ownerID uuid.UUID) (*Subscription, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM webhook_subscriptions WHERE id = $1 AND owner_id = $2`
	return s.scanSubscription(s.pool.QueryRow(ctx, q, id, ownerID))
}

func (s *PostgresStore) ListSubscriptions(ctx context.Context, ownerID uuid.UUID, page Page) ([]Subscription, int, error) {
	page = page.Normalize()

	var total int
	const countQ = `SELECT count(*) FROM webhook_subscriptions WHERE owner_id = $1`
	if err := s.pool.QueryRow(ctx, countQ, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	q := `SELECT ` + subscriptionColumns + `
FROM webhook_subscriptions
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, q, ownerID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := make([]Subscription, 0, page.PerPage)
	for rows.Next() {
		sub, err := s.scanSubscription(rows)
		if err != nil {
			return nil, 0, err
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, total, nil
}

func (s *PostgresStore) ListActiveSubscriptions(ctx context.Context, ownerID uuid.UUID, eventType string) ([]Subscription, error) {
	q := `SELECT ` + subscriptionColumns + `
FROM webhook_subscriptions
WHERE owner_id = $1 AND status = 'active' AND $2 = ANY(event_types)
ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, ownerID, eventType)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := s.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	return subs, nil
}

// RecordAttempt runs the counter update as a single statement so concurrent
// workers never lose increments, and returns the post-update streak.
func (s *PostgresStore) RecordAttempt(ctx context.Context, id uuid.UUID, success bool, at time.Time) (int64, error) {
	const q = `
UPDATE webhook_subscriptions SET
	success_count = success_count + CASE WHEN $2 THEN 1 ELSE 0 END,
	failure_count = failure_count + CASE WHEN $2 THEN 0 ELSE 1 END,
	consecutive_failures = CASE WHEN $2 THEN 0 ELSE consecutive_failures + 1 END,
	last_triggered_at = $3,
	updated_at = $3
WHERE id = $1
RETURNING consecutive_failures`
	var streak int64
	if err := s.pool.QueryRow(ctx, q, id, success, at).Scan(&streak); err != nil {
		if pg.IsNotFoundError(err) {
			return 0, ErrSubscriptionNotFound
		}
		return 0, fmt.Errorf("failed to record delivery attempt: %w", err)
	}
	return streak, nil
}

func (s *PostgresStore) CreateEvent(ctx context.Context, event *Event) error {
	const q = `
INSERT INTO webhook_events (id, event_type, owner_id, resource_id, payload, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, q,
		event.ID, event.EventType, event.OwnerID, event.ResourceID,
		event.Payload, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	const q = `
SELECT id, event_type, owner_id, resource_id, payload, created_at
FROM webhook_events WHERE id = $1`
	var event Event
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&event.ID, &event.EventType, &event.OwnerID, &event.ResourceID,
		&event.Payload, &event.CreatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &event, nil
}

const deliveryColumns = `id, subscription_id, event_id, event_type, payload,
	attempt_count, status, response_status, response_body, error_message,
	created_at, delivered_at, next_retry_at`

func (s *PostgresStore) scanDelivery(row interface{ Scan(...any) error }) (*Delivery, error) {
	var d Delivery
	err := row.Scan(
		&d.ID, &d.SubscriptionID, &d.EventID, &d.EventType, &d.Payload,
		&d.AttemptCount, &d.Status, &d.ResponseStatus, &d.ResponseBody,
		&d.ErrorMessage, &d.CreatedAt, &d.DeliveredAt, &d.NextRetryAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("failed to scan delivery: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) CreateDelivery(ctx context.Context, delivery *Delivery) error {
	const q = `
INSERT INTO webhook_deliveries (
	id, subscription_id, event_id, event_type, payload,
	attempt_count, status, created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, q,
		delivery.ID, delivery.SubscriptionID, delivery.EventID, delivery.EventType,
		delivery.Payload, delivery.AttemptCount, delivery.Status, delivery.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	q := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`
	return s.scanDelivery(s.pool.QueryRow(ctx, q, id))
}

func (s *PostgresStore) UpdateDelivery(ctx context.Context, delivery *Delivery) error {
	const q = `
UPDATE webhook_deliveries SET
	attempt_count = $2, status = $3, response_status = $4, response_body = $5,
	error_message = $6, delivered_at = $7, next_retry_at = $8
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q,
		delivery.ID, delivery.AttemptCount, delivery.Status, delivery.ResponseStatus,
		delivery.ResponseBody, delivery.ErrorMessage, delivery.DeliveredAt,
		delivery.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDeliveryNotFound
	}
	return nil
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, subscriptionID uuid.UUID, page Page) ([]Delivery, int, error) {
	page = page.Normalize()

	var total int
	const countQ = `SELECT count(*) FROM webhook_deliveries WHERE subscription_id = $1`
	if err := s.pool.QueryRow(ctx, countQ, subscriptionID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count deliveries: %w", err)
	}

	q := `SELECT ` + deliveryColumns + `
FROM webhook_deliveries
WHERE subscription_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	rows, err := s.pool.Query(ctx, q, subscriptionID, page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list deliveries: %w", err)
	}
	defer rows.Close()

	deliveries := make([]Delivery, 0, page.PerPage)
	for rows.Next() {
		d, err := s.scanDelivery(rows)
		if err != nil {
			return nil, 0, err
		}
		deliveries = append(deliveries, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return deliveries, total, nil
}

func (s *PostgresStore) ListDueDeliveryIDs(ctx context.Context, now time.Time, pendingGrace time.Duration, limit int) ([]uuid.UUID, error) {
	const q = `
SELECT id FROM webhook_deliveries
WHERE (status = 'retrying' AND next_retry_at <= $1)
   OR (status = 'pending' AND created_at <= $2)
ORDER BY created_at
LIMIT $3`
	rows, err := s.pool.Query(ctx, q, now, now.Add(-pendingGrace), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due deliveries: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan delivery id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list due deliveries: %w", err)
	}
	return ids, nil
}

var _ Store = (*PostgresStore)(nil)
