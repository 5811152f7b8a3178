package webhooks

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the lifecycle state of a subscription.
// Only active subscriptions receive new deliveries.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionPaused   SubscriptionStatus = "paused"
	SubscriptionDisabled SubscriptionStatus = "disabled"
)

// Valid checks if the status is one of the known states.
func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionPaused, SubscriptionDisabled:
		return true
	default:
		return false
	}
}

// DeliveryStatus is the lifecycle state of a delivery.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryRetrying  DeliveryStatus = "retrying"
	DeliveryFailed    DeliveryStatus = "failed"
)

// Terminal reports whether the status permits no further automatic
// processing. Only a manual retry can resurrect a failed delivery.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// Subscription is a tenant's registration for a URL to receive events of
// certain types. The signing secret is generated at creation and returned
// exactly once; list and get responses omit it.
type Subscription struct {
	ID            uuid.UUID          `json:"id"`
	OwnerID       uuid.UUID          `json:"owner_id"`
	TargetURL     string             `json:"target_url"`
	EventTypes    []string           `json:"event_types"`
	Secret        string             `json:"secret,omitempty"`
	Description   string             `json:"description,omitempty"`
	CustomHeaders map[string]string  `json:"custom_headers,omitempty"`
	RetryEnabled  bool               `json:"retry_enabled"`
	MaxRetries    int                `json:"max_retries"`
	Timeout       time.Duration      `json:"timeout"`
	Status        SubscriptionStatus `json:"status"`

	SuccessCount int64 `json:"success_count"`
	FailureCount int64 `json:"failure_count"`
	// ConsecutiveFailures drives automatic disablement; it resets on any
	// successful delivery and is not part of the API surface.
	ConsecutiveFailures int64 `json:"-"`

	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// WantsEvent reports whether the subscription is registered for eventType.
func (s *Subscription) WantsEvent(eventType string) bool {
	return slices.Contains(s.EventTypes, eventType)
}

// Redacted returns a copy with the signing secret cleared, for API
// responses after creation.
func (s Subscription) Redacted() Subscription {
	s.Secret = ""
	return s
}

// Event is an immutable record of something that happened in the platform.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	EventType  string          `json:"event_type"`
	OwnerID    uuid.UUID       `json:"owner_id"`
	ResourceID string          `json:"resource_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Delivery is one attempted transmission of one event to one subscription.
// It carries its own copy of the event payload so its lifecycle is decoupled
// from the event record.
type Delivery struct {
	ID             uuid.UUID       `json:"id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	EventID        uuid.UUID       `json:"event_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	AttemptCount   int             `json:"attempt_count"`
	Status         DeliveryStatus  `json:"status"`
	ResponseStatus int             `json:"response_status,omitempty"`
	ResponseBody   string          `json:"response_body,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	NextRetryAt    *time.Time      `json:"next_retry_at,omitempty"`
}

// Envelope is the outbound wire format POSTed to subscriber endpoints.
// Its canonical JSON encoding is the HMAC signing input and the request
// body, byte for byte.
type Envelope struct {
	ID      string          `json:"id"`      // delivery id: receivers deduplicate on this
	Event   string          `json:"event"`   // event type
	Created time.Time       `json:"created"` // event creation time, RFC 3339
	Data    json.RawMessage `json:"data"`    // event payload, arbitrary shape
}

// Page describes a pagination request for list operations.
type Page struct {
	Page    int
	PerPage int
}

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Normalize clamps the page parameters to sane bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = defaultPerPage
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

// Offset returns the record offset for the normalized page.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PerPage
}
