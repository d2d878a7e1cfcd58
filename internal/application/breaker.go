package application

import (
	"sync"
	"time"
)

// Circuit breaker defaults.
const (
	DefaultBreakerFailureThreshold = 10
	DefaultBreakerCooldown         = 5 * time.Minute
)

// BreakerState is the admission state of one breaker key.
type BreakerState int

// BreakerState values.
const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

// String returns a human-readable name for the breaker state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type breakerEntry struct {
	state       BreakerState
	failures    int
	lastFailure time.Time
}

// CircuitBreaker is a keyed registry of three-state admission filters.
// A key trips open after threshold consecutive failures; once the cooldown
// has elapsed the next admission check transitions it to half-open, where a
// single probe decides between closing and re-opening.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	entries   map[string]*breakerEntry
	now       func() time.Time
}

// NewCircuitBreaker creates a CircuitBreaker. Zero values fall back to the
// defaults (threshold 10, cooldown 5m).
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultBreakerFailureThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultBreakerCooldown
	}
	return &CircuitBreaker{
		threshold: threshold,
		cooldown:  cooldown,
		entries:   make(map[string]*breakerEntry),
		now:       time.Now,
	}
}

// CanAttempt reports whether an attempt against the key is admitted.
// In the open state it returns true only once the cooldown has elapsed since
// the last failure, transitioning the key to half-open.
func (cb *CircuitBreaker) CanAttempt(key string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	entry, ok := cb.entries[key]
	if !ok {
		return true
	}

	switch entry.state {
	case BreakerOpen:
		if cb.now().Sub(entry.lastFailure) >= cb.cooldown {
			entry.state = BreakerHalfOpen
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess closes the key and clears its failure count.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	entry, ok := cb.entries[key]
	if !ok {
		return
	}
	entry.state = BreakerClosed
	entry.failures = 0
}

// RecordFailure increments the key's failure count and stamps the failure
// time. Reaching the threshold, or failing the half-open probe, opens the
// key and restarts the cooldown.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	entry, ok := cb.entries[key]
	if !ok {
		entry = &breakerEntry{}
		cb.entries[key] = entry
	}

	entry.failures++
	entry.lastFailure = cb.now()

	if entry.state == BreakerHalfOpen || entry.failures >= cb.threshold {
		entry.state = BreakerOpen
	}
}

// State returns the key's current state without side effects.
func (cb *CircuitBreaker) State(key string) BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	entry, ok := cb.entries[key]
	if !ok {
		return BreakerClosed
	}
	return entry.state
}

// Remove discards a key's state entirely.
func (cb *CircuitBreaker) Remove(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	delete(cb.entries, key)
}
