package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hookrelay/hookrelay/pkg/cache"
)

// Cache is the shared low-latency byte store behind the subscription cache.
// Implementations must treat a missing key as (nil, false, nil), not an
// error.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryCache implements Cache over an in-process TTL map. Suitable for
// tests and single-instance deployments.
type MemoryCache struct {
	c *cache.TTLCache[string, []byte]
}

// NewMemoryCache creates an in-process cache backend.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{c: cache.NewTTLCache[string, []byte]()}
}

// Close stops the underlying janitor.
func (m *MemoryCache) Close() {
	m.c.Close()
}

// Get implements Cache.
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	return v, ok, nil
}

// Set implements Cache.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.c.Set(key, value, ttl)
	return nil
}

// Delete implements Cache.
func (m *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		m.c.Delete(key)
	}
	return nil
}

// RedisCache implements Cache over a shared Redis instance, so invalidation
// performed by one replica is visible to all.
type RedisCache struct {
	client goredis.UniversalClient
}

// NewRedisCache creates a Redis-backed cache backend.
func NewRedisCache(client goredis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

// Get implements Cache.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// Set implements Cache.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete implements Cache.
func (r *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// Cache key layout. The index maps (owner, event type) to subscription ids;
// each subscription is stored once under its id so index entries stay small.
func indexKey(ownerID uuid.UUID, eventType string) string {
	return fmt.Sprintf("wh:idx:%s:%s", ownerID, eventType)
}

func entryKey(id uuid.UUID) string {
	return fmt.Sprintf("wh:sub:%s", id)
}

// subscriptionCache is the read-through cache between the event trigger and
// the store. The index TTL bounds the staleness window even when an
// invalidation is missed; the per-entry TTL may be longer since entries are
// invalidated directly on mutation.
type subscriptionCache struct {
	cache    Cache
	store    Store
	indexTTL time.Duration
	entryTTL time.Duration
}

// Lookup returns the owner's active subscriptions registered for eventType,
// serving from cache when possible. Cache errors degrade to a store read;
// the cache is an optimization, never a source of truth.
func (sc *subscriptionCache) Lookup(ctx context.Context, ownerID uuid.UUID, eventType string) ([]Subscription, error) {
	if subs, ok := sc.fromCache(ctx, ownerID, eventType); ok {
		return subs, nil
	}

	subs, err := sc.store.ListActiveSubscriptions(ctx, ownerID, eventType)
	if err != nil {
		return nil, err
	}
	sc.fill(ctx, ownerID, eventType, subs)
	return subs, nil
}

func (sc *subscriptionCache) fromCache(ctx context.Context, ownerID uuid.UUID, eventType string) ([]Subscription, bool) {
	raw, ok, err := sc.cache.Get(ctx, indexKey(ownerID, eventType))
	if err != nil || !ok {
		return nil, false
	}

	var ids []uuid.UUID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, false
	}

	subs := make([]Subscription, 0, len(ids))
	for _, id := range ids {
		entry, ok, err := sc.cache.Get(ctx, entryKey(id))
		if err != nil || !ok {
			// A single evicted entry invalidates the whole hit; refill
			// from the store rather than serving a partial result.
			return nil, false
		}
		var sub Subscription
		if err := json.Unmarshal(entry, &sub); err != nil {
			return nil, false
		}
		subs = append(subs, sub)
	}
	return subs, true
}

func (sc *subscriptionCache) fill(ctx context.Context, ownerID uuid.UUID, eventType string, subs []Subscription) {
	ids := make([]uuid.UUID, 0, len(subs))
	for i := range subs {
		ids = append(ids, subs[i].ID)
		if entry, err := json.Marshal(subs[i]); err == nil {
			_ = sc.cache.Set(ctx, entryKey(subs[i].ID), entry, sc.entryTTL)
		}
	}
	if raw, err := json.Marshal(ids); err == nil {
		_ = sc.cache.Set(ctx, indexKey(ownerID, eventType), raw, sc.indexTTL)
	}
}

// Invalidate removes the subscription's entry and every owner+event-type
// index it appears in. Extra event types cover the pre-mutation state so an
// update that drops an event type still clears its old index.
func (sc *subscriptionCache) Invalidate(ctx context.Context, sub *Subscription, extraEventTypes ...string) error {
	keys := []string{entryKey(sub.ID)}
	seen := make(map[string]struct{})
	for _, et := range sub.EventTypes {
		seen[et] = struct{}{}
	}
	for _, et := range extraEventTypes {
		seen[et] = struct{}{}
	}
	for et := range seen {
		keys = append(keys, indexKey(sub.OwnerID, et))
	}
	return sc.cache.Delete(ctx, keys...)
}
