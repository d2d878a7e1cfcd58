package application

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// PollDeduplicator coalesces concurrent fetches of identical endpoint URLs.
// The first caller for a URL executes the fetch; concurrent callers block on
// the same in-flight call and receive its result. The entry is cleared on
// completion regardless of outcome.
type PollDeduplicator struct {
	mu    sync.Mutex
	group *singleflight.Group
}

// NewPollDeduplicator creates an empty deduplicator.
func NewPollDeduplicator() *PollDeduplicator {
	return &PollDeduplicator{group: &singleflight.Group{}}
}

// Do executes fn for the URL, sharing the result with concurrent callers of
// the same URL. The shared flag reports whether the result was given to more
// than one caller.
func (d *PollDeduplicator) Do(url string, fn func() ([]byte, error)) (body []byte, shared bool, err error) {
	d.mu.Lock()
	group := d.group
	d.mu.Unlock()

	v, err, shared := group.Do(url, func() (any, error) {
		return fn()
	})
	if v != nil {
		body = v.([]byte)
	}
	return body, shared, err
}

// Clear resets the key space without cancelling outstanding fetches:
// in-flight calls complete against the old group while new callers start
// fresh.
func (d *PollDeduplicator) Clear() {
	d.mu.Lock()
	d.group = &singleflight.Group{}
	d.mu.Unlock()
}
