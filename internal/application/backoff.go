// Package application contains the polling core: scheduler, per-service
// poller, admission guards, parser, upsert engine, and history recorders.
package application

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff defaults.
const (
	DefaultBackoffBase       = 1 * time.Second
	DefaultBackoffMax        = 5 * time.Minute
	DefaultBackoffMultiplier = 2.0
)

// Backoff produces exponential retry delays with a ceiling:
// min(base * multiplier^attempt, max). It is not safe for concurrent use;
// each poller owns one and polls are serialized per service.
type Backoff struct {
	exp *backoff.ExponentialBackOff
}

// NewBackoff creates a Backoff with the given base delay, ceiling, and
// multiplier. Zero values fall back to the defaults.
func NewBackoff(base, max time.Duration, multiplier float64) *Backoff {
	if base <= 0 {
		base = DefaultBackoffBase
	}
	if max <= 0 {
		max = DefaultBackoffMax
	}
	if multiplier <= 1 {
		multiplier = DefaultBackoffMultiplier
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.RandomizationFactor = 0
	exp.Multiplier = multiplier
	exp.MaxInterval = max
	exp.MaxElapsedTime = 0
	exp.Reset()

	return &Backoff{exp: exp}
}

// NextDelay returns the delay for the current attempt and advances to the
// next one.
func (b *Backoff) NextDelay() time.Duration {
	return b.exp.NextBackOff()
}

// Reset returns the next delay to the base value.
func (b *Backoff) Reset() {
	b.exp.Reset()
}
