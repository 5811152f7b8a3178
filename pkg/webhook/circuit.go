package webhook

import (
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows requests to pass through
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks all requests until the recovery timeout elapses
	CircuitOpen
	// CircuitHalfOpen allows one probe request to test recovery
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker tracks consecutive failures for a single endpoint and
// short-circuits attempts while the endpoint is considered broken.
// Safe for concurrent use by multiple delivery workers.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration

	state           CircuitState
	failures        int
	lastFailureTime time.Time
	probing         bool
}

// NewCircuitBreaker creates a circuit breaker that opens after
// failureThreshold consecutive failures and allows a probe once
// recoveryTimeout has elapsed since the last failure.
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            CircuitClosed,
	}
}

// Allow reports whether an attempt should proceed. An open breaker
// transitions to half-open once the recovery timeout elapses; in half-open
// exactly one caller is admitted as the probe until its outcome is recorded.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if time.Since(cb.lastFailureTime) > cb.recoveryTimeout {
			cb.state = CircuitHalfOpen
			cb.probing = true
			return true
		}
		return false

	case CircuitHalfOpen:
		// Only one in-flight probe; concurrent workers are held back until
		// the probe reports success or failure.
		if cb.probing {
			return false
		}
		cb.probing = true
		return true

	default:
		return false
	}
}

// RecordSuccess records a successful attempt. A successful half-open probe
// fully closes the circuit and resets the failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.state = CircuitClosed
		cb.failures = 0
		cb.probing = false
	}
}

// RecordFailure records a failed attempt and may open the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = time.Now()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		// Probe failed, reopen and restart the recovery timer
		cb.state = CircuitOpen
		cb.failures = cb.failureThreshold
		cb.probing = false
	}
}

// State returns the current state, accounting for the automatic
// open-to-half-open transition that Allow would perform.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && time.Since(cb.lastFailureTime) > cb.recoveryTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

// RecoveryTime returns when an open breaker will admit its next probe.
// For closed or half-open breakers it returns the zero time.
func (cb *CircuitBreaker) RecoveryTime() time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return time.Time{}
	}
	return cb.lastFailureTime.Add(cb.recoveryTimeout)
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.probing = false
	cb.lastFailureTime = time.Time{}
}

// Registry holds one circuit breaker per key so that concurrent workers
// delivering to the same subscription share failure state. Breakers are
// created lazily and should be dropped with Forget when the subscription
// is deleted.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker

	failureThreshold int
	recoveryTimeout  time.Duration
}

// NewRegistry creates a breaker registry; every breaker it creates uses the
// given threshold and recovery timeout.
func NewRegistry(failureThreshold int, recoveryTimeout time.Duration) *Registry {
	return &Registry{
		breakers:         make(map[string]*CircuitBreaker),
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
	}
}

// Get returns the breaker for key, creating it in closed state on first use.
func (r *Registry) Get(key string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(r.failureThreshold, r.recoveryTimeout)
		r.breakers[key] = cb
	}
	return cb
}

// Forget drops the breaker for key, releasing its state.
func (r *Registry) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, key)
}

// Len returns the number of tracked breakers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.breakers)
}
