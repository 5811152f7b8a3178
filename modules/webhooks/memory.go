package webhooks

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store in memory for tests and local development.
// All operations are safe for concurrent use; records are cloned on the way
// in and out so callers cannot mutate stored state.
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]*Subscription
	events        map[uuid.UUID]*Event
	deliveries    map[uuid.UUID]*Delivery

	// Insertion order per owner/subscription for stable listing
	subsByOwner     map[uuid.UUID][]uuid.UUID
	deliveriesBySub map[uuid.UUID][]uuid.UUID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscriptions:   make(map[uuid.UUID]*Subscription),
		events:          make(map[uuid.UUID]*Event),
		deliveries:      make(map[uuid.UUID]*Delivery),
		subsByOwner:     make(map[uuid.UUID][]uuid.UUID),
		deliveriesBySub: make(map[uuid.UUID][]uuid.UUID),
	}
}

func cloneSubscription(s *Subscription) *Subscription {
	c := *s
	c.EventTypes = slices.Clone(s.EventTypes)
	if s.CustomHeaders != nil {
		c.CustomHeaders = maps.Clone(s.CustomHeaders)
	}
	if s.LastTriggeredAt != nil {
		t := *s.LastTriggeredAt
		c.LastTriggeredAt = &t
	}
	return &c
}

func cloneDelivery(d *Delivery) *Delivery {
	c := *d
	c.Payload = slices.Clone(d.Payload)
	if d.DeliveredAt != nil {
		t := *d.DeliveredAt
		c.DeliveredAt = &t
	}
	if d.NextRetryAt != nil {
		t := *d.NextRetryAt
		c.NextRetryAt = &t
	}
	return &c
}

func cloneEvent(e *Event) *Event {
	c := *e
	c.Payload = slices.Clone(e.Payload)
	return &c
}

// CreateSubscription implements Store.
func (ms *MemoryStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.subscriptions[sub.ID] = cloneSubscription(sub)
	ms.subsByOwner[sub.OwnerID] = append(ms.subsByOwner[sub.OwnerID], sub.ID)
	return nil
}

// UpdateSubscription implements Store. Lifetime counters are owned by
// RecordAttempt and preserved across updates; the failure streak is written
// from the given subscription so callers can reset it.
func (ms *MemoryStore) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	existing, ok := ms.subscriptions[sub.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}

	updated := cloneSubscription(sub)
	updated.SuccessCount = existing.SuccessCount
	updated.FailureCount = existing.FailureCount
	updated.LastTriggeredAt = existing.LastTriggeredAt
	ms.subscriptions[sub.ID] = updated
	return nil
}

// DeleteSubscription implements Store.
func (ms *MemoryStore) DeleteSubscription(ctx context.Context, id, ownerID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	sub, ok := ms.subscriptions[id]
	if !ok || sub.OwnerID != ownerID {
		return ErrSubscriptionNotFound
	}

	delete(ms.subscriptions, id)
	ms.subsByOwner[ownerID] = slices.DeleteFunc(ms.subsByOwner[ownerID], func(sid uuid.UUID) bool {
		return sid == id
	})
	return nil
}

// GetSubscription implements Store.
func (ms *MemoryStore) GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	sub, ok := ms.subscriptions[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(sub), nil
}

// GetOwnedSubscription implements Store.
func (ms *MemoryStore) GetOwnedSubscription(ctx context.Context, id, ownerID uuid.UUID) (*Subscription, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	sub, ok := ms.subscriptions[id]
	if !ok || sub.OwnerID != ownerID {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(sub), nil
}

// ListSubscriptions implements Store.
func (ms *MemoryStore) ListSubscriptions(ctx context.Context, ownerID uuid.UUID, page Page) ([]Subscription, int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := ms.subsByOwner[ownerID]
	total := len(ids)

	// Newest first
	ordered := make([]*Subscription, 0, total)
	for _, id := range ids {
		ordered = append(ordered, ms.subscriptions[id])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	page = page.Normalize()
	start := page.Offset()
	if start >= len(ordered) {
		return []Subscription{}, total, nil
	}
	end := min(start+page.PerPage, len(ordered))

	out := make([]Subscription, 0, end-start)
	for _, sub := range ordered[start:end] {
		out = append(out, *cloneSubscription(sub))
	}
	return out, total, nil
}

// ListActiveSubscriptions implements Store.
func (ms *MemoryStore) ListActiveSubscriptions(ctx context.Context, ownerID uuid.UUID, eventType string) ([]Subscription, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Subscription
	for _, id := range ms.subsByOwner[ownerID] {
		sub := ms.subscriptions[id]
		if sub.Status == SubscriptionActive && sub.WantsEvent(eventType) {
			out = append(out, *cloneSubscription(sub))
		}
	}
	return out, nil
}

// RecordAttempt implements Store.
func (ms *MemoryStore) RecordAttempt(ctx context.Context, id uuid.UUID, success bool, at time.Time) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	sub, ok := ms.subscriptions[id]
	if !ok {
		return 0, ErrSubscriptionNotFound
	}

	if success {
		sub.SuccessCount++
		sub.ConsecutiveFailures = 0
	} else {
		sub.FailureCount++
		sub.ConsecutiveFailures++
	}
	t := at
	sub.LastTriggeredAt = &t
	return sub.ConsecutiveFailures, nil
}

// CreateEvent implements Store.
func (ms *MemoryStore) CreateEvent(ctx context.Context, event *Event) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.events[event.ID] = cloneEvent(event)
	return nil
}

// GetEvent implements Store.
func (ms *MemoryStore) GetEvent(ctx context.Context, id uuid.UUID) (*Event, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	event, ok := ms.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return cloneEvent(event), nil
}

// CreateDelivery implements Store.
func (ms *MemoryStore) CreateDelivery(ctx context.Context, delivery *Delivery) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.deliveries[delivery.ID] = cloneDelivery(delivery)
	ms.deliveriesBySub[delivery.SubscriptionID] = append(ms.deliveriesBySub[delivery.SubscriptionID], delivery.ID)
	return nil
}

// GetDelivery implements Store.
func (ms *MemoryStore) GetDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	delivery, ok := ms.deliveries[id]
	if !ok {
		return nil, ErrDeliveryNotFound
	}
	return cloneDelivery(delivery), nil
}

// UpdateDelivery implements Store.
func (ms *MemoryStore) UpdateDelivery(ctx context.Context, delivery *Delivery) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.deliveries[delivery.ID]; !ok {
		return ErrDeliveryNotFound
	}
	ms.deliveries[delivery.ID] = cloneDelivery(delivery)
	return nil
}

// ListDeliveries implements Store.
func (ms *MemoryStore) ListDeliveries(ctx context.Context, subscriptionID uuid.UUID, page Page) ([]Delivery, int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := ms.deliveriesBySub[subscriptionID]
	total := len(ids)

	ordered := make([]*Delivery, 0, total)
	for _, id := range ids {
		ordered = append(ordered, ms.deliveries[id])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	page = page.Normalize()
	start := page.Offset()
	if start >= len(ordered) {
		return []Delivery{}, total, nil
	}
	end := min(start+page.PerPage, len(ordered))

	out := make([]Delivery, 0, end-start)
	for _, d := range ordered[start:end] {
		out = append(out, *cloneDelivery(d))
	}
	return out, total, nil
}

// ListDueDeliveryIDs implements Store.
func (ms *MemoryStore) ListDueDeliveryIDs(ctx context.Context, now time.Time, pendingGrace time.Duration, limit int) ([]uuid.UUID, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	pendingCutoff := now.Add(-pendingGrace)

	var due []uuid.UUID
	for id, d := range ms.deliveries {
		switch d.Status {
		case DeliveryRetrying:
			if d.NextRetryAt != nil && !d.NextRetryAt.After(now) {
				due = append(due, id)
			}
		case DeliveryPending:
			if d.CreatedAt.Before(pendingCutoff) {
				due = append(due, id)
			}
		}
		if limit > 0 && len(due) >= limit {
			break
		}
	}
	return due, nil
}
