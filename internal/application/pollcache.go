package application

import (
	"sync"
	"time"
)

// PollCache maps service IDs to absolute expiry times so the cycle loop can
// honor per-service intervals longer than the cycle width.
type PollCache struct {
	mu     sync.Mutex
	expiry map[string]time.Time
	now    func() time.Time
}

// NewPollCache creates an empty cache.
func NewPollCache() *PollCache {
	return &PollCache{
		expiry: make(map[string]time.Time),
		now:    time.Now,
	}
}

// ShouldPoll reports whether the service is due: no entry, or expiry at or
// before now.
func (c *PollCache) ShouldPoll(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	exp, ok := c.expiry[id]
	if !ok {
		return true
	}
	return !exp.After(c.now())
}

// MarkPolled sets the service's expiry to now + ttl.
func (c *PollCache) MarkPolled(id string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiry[id] = c.now().Add(ttl)
}

// Invalidate makes the service due immediately without removing its entry.
func (c *PollCache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.expiry[id]; ok {
		c.expiry[id] = time.Time{}
	}
}

// Remove deletes the service's entry.
func (c *PollCache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.expiry, id)
}

// Clear empties the cache.
func (c *PollCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expiry = make(map[string]time.Time)
}

// Len returns the number of tracked services.
func (c *PollCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.expiry)
}
