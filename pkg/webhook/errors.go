package webhook

import "errors"

// Stable error identities for attempt outcomes. Detailed context is wrapped
// with fmt.Errorf("%w: ...") so callers can classify with errors.Is while
// keeping the underlying cause for logging.
var (
	ErrInvalidURL     = errors.New("invalid webhook URL")
	ErrInvalidPayload = errors.New("invalid webhook payload")
	ErrInvalidSecret  = errors.New("invalid webhook secret")
	ErrTimeout        = errors.New("webhook request timeout")
	ErrConnection     = errors.New("webhook connection failed")
	ErrCircuitOpen    = errors.New("webhook circuit breaker is open")
)

// IsCircuitOpen checks if an error indicates the circuit breaker is open.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}
