// Package webhooks is a complete webhook management subsystem: subscription
// CRUD with cache coordination, event triggering with per-subscription
// fan-out, an asynchronous delivery pipeline with a fixed worker pool,
// per-subscription circuit breaking, exponential-backoff retries, and a
// chi-based management API.
//
// It builds on pkg/webhook for the delivery mechanics (signing, single
// attempt HTTP, circuit breakers, backoff) and adds persistence, delivery
// lifecycle state, and scheduling on top.
//
// # Architecture
//
// A triggered event flows through the subsystem as follows:
//
//	Trigger -> subscription cache lookup -> one pending Delivery per match
//	        -> delivery queue -> worker pool -> signed HTTP POST
//	        -> delivered | retrying (scheduler re-enqueues when due) | failed
//
// All durable state lives in the Store; the queue holds only delivery IDs,
// so nothing is lost if the process restarts: the scheduler's periodic
// sweep re-enqueues pending and due retrying deliveries.
//
// # Usage
//
//	store := webhooks.NewMemoryStore()
//	cache := webhooks.NewMemoryCache()
//	svc := webhooks.New(store, cache)
//
//	ctx, cancel := context.WithCancel(context.Background())
//	if err := svc.Start(ctx); err != nil {
//	    // handle
//	}
//	defer svc.Stop()
//
//	// Register a subscription
//	sub, err := svc.CreateSubscription(ctx, ownerID, webhooks.CreateSubscriptionRequest{
//	    URL:    "https://api.example.com/hooks",
//	    Events: []string{"order.created"},
//	})
//
//	// Fire an event; delivery happens asynchronously
//	_, err = svc.Trigger(ctx, ownerID, "order.created", map[string]any{"amount": 10})
//
//	// Mount the management API
//	r := chi.NewRouter()
//	r.Mount("/", svc.Router())
//
// Delivery is at-least-once: receivers must deduplicate using the
// X-Webhook-Delivery header. No ordering is guaranteed across deliveries.
package webhooks
