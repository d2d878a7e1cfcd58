package application

import (
	"net/url"
	"sync"
)

// DefaultMaxConcurrentPerHost bounds concurrent fetches sharing a host.
const DefaultMaxConcurrentPerHost = 10

// HostRateLimiter is a per-hostname in-flight counter with admission and
// release. Admission is an atomic check-and-increment; entries disappear
// when their count returns to zero.
type HostRateLimiter struct {
	mu       sync.Mutex
	max      int
	inflight map[string]int
}

// NewHostRateLimiter creates a limiter admitting up to max concurrent
// requests per host. Non-positive max falls back to the default.
func NewHostRateLimiter(max int) *HostRateLimiter {
	if max <= 0 {
		max = DefaultMaxConcurrentPerHost
	}
	return &HostRateLimiter{
		max:      max,
		inflight: make(map[string]int),
	}
}

// Acquire admits a request for the host, returning false at capacity.
func (l *HostRateLimiter) Acquire(host string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inflight[host] >= l.max {
		return false
	}
	l.inflight[host]++
	return true
}

// Release returns a slot for the host. Releasing an unknown host is a no-op.
func (l *HostRateLimiter) Release(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, ok := l.inflight[host]
	if !ok {
		return
	}
	if count <= 1 {
		delete(l.inflight, host)
		return
	}
	l.inflight[host] = count - 1
}

// InFlight returns the current in-flight count for the host.
func (l *HostRateLimiter) InFlight(host string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inflight[host]
}

// HostFromURL extracts the hostname from a URL, falling back to the raw
// string when the input is not parseable as a URL.
func HostFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
