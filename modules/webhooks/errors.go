package webhooks

import "errors"

// Stable error identities for subsystem operations. Validation errors are
// rejected synchronously at registry-mutation time and never reach the
// delivery queue; store errors surface to management API callers as
// retryable 503-class failures.
var (
	ErrSubscriptionNotFound = errors.New("webhook subscription not found")
	ErrDeliveryNotFound     = errors.New("webhook delivery not found")
	ErrEventNotFound        = errors.New("webhook event not found")

	ErrInvalidTargetURL  = errors.New("invalid target URL")
	ErrDisallowedHost    = errors.New("target host is not allowed")
	ErrEmptyEventTypes   = errors.New("at least one event type is required")
	ErrInvalidStatus     = errors.New("invalid subscription status")
	ErrInvalidMaxRetries = errors.New("max retries must not be negative")

	// ErrDeliveryNotRetryable is returned when a manual retry targets a
	// delivery that is not in the failed state.
	ErrDeliveryNotRetryable = errors.New("delivery is not retryable")

	ErrQueueClosed = errors.New("delivery queue is closed")

	ErrAlreadyStarted = errors.New("webhook service already started")
	ErrNotStarted     = errors.New("webhook service not started")
)

// IsValidationError reports whether err is a synchronous validation failure
// of a registry mutation, as opposed to an internal fault.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidTargetURL) ||
		errors.Is(err, ErrDisallowedHost) ||
		errors.Is(err, ErrEmptyEventTypes) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidMaxRetries) ||
		errors.Is(err, ErrDeliveryNotRetryable)
}
