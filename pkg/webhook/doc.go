// Package webhook provides the low-level mechanics of outbound webhook
// delivery: a single-attempt HTTP sender with outcome classification,
// HMAC-SHA256 payload signing over a canonical JSON encoding, circuit
// breaker protection, and backoff strategies.
//
// This package is deliberately free of persistence and business logic.
// It performs exactly one delivery attempt per call and reports a typed
// Result; retry scheduling, attempt accounting, and delivery state live
// in the modules/webhooks package which builds on this foundation.
//
// # Sending
//
//	sender := webhook.NewSender()
//	result := sender.Attempt(ctx, webhook.Request{
//	    URL:     "https://api.example.com/hooks",
//	    Payload: body,
//	    Headers: map[string]string{"X-Webhook-Event": "order.created"},
//	    Timeout: 10 * time.Second,
//	})
//	if result.Delivered {
//	    // 2xx response
//	}
//
// # Signing
//
// Payloads are signed with HMAC-SHA256 over a canonical (recursively
// key-sorted) JSON encoding, producing signatures in the widely used
// "sha256=<hex>" form:
//
//	canonical, _ := webhook.CanonicalJSON(envelope)
//	sig := webhook.Sign(secret, canonical)
//
// Receivers verify with constant-time comparison:
//
//	ok := webhook.Verify(secret, canonical, sig)
//
// # Circuit breaking
//
// A CircuitBreaker tracks consecutive failures for one endpoint and
// short-circuits attempts while the endpoint is considered broken. The
// Registry keys breakers by an opaque id (one per subscription) so that
// concurrent workers share failure state:
//
//	breakers := webhook.NewRegistry(5, 30*time.Second)
//	cb := breakers.Get(subscriptionID)
//	if !cb.Allow() {
//	    // skip the HTTP call, reschedule for cb.RecoveryTime()
//	}
package webhook
