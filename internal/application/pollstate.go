package application

import (
	"sync"
	"time"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
)

// PollState is a snapshot of one service's polling state.
type PollState struct {
	ServiceID           string
	ServiceName         string
	HealthEndpoint      string
	LastPolled          time.Time
	ConsecutiveFailures int
	IsPolling           bool
}

// PollStateManager is the authoritative in-memory map of per-service polling
// state. The scheduler owns all mutations; readers observe snapshots.
type PollStateManager struct {
	mu     sync.RWMutex
	states map[string]*PollState
}

// NewPollStateManager creates an empty manager.
func NewPollStateManager() *PollStateManager {
	return &PollStateManager{states: make(map[string]*PollState)}
}

// Add tracks a service, snapshotting its name and endpoint. Adding an
// already-tracked service is a no-op.
func (m *PollStateManager) Add(svc model.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.states[svc.ID]; ok {
		return
	}
	m.states[svc.ID] = &PollState{
		ServiceID:      svc.ID,
		ServiceName:    svc.Name,
		HealthEndpoint: svc.HealthEndpoint,
	}
}

// Remove untracks a service. It refuses while a poll is in progress and
// returns false; the caller retries after the lock is released.
func (m *PollStateManager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[id]
	if !ok {
		return true
	}
	if state.IsPolling {
		return false
	}
	delete(m.states, id)
	return true
}

// Get returns a snapshot of a service's state.
func (m *PollStateManager) Get(id string) (PollState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[id]
	if !ok {
		return PollState{}, false
	}
	return *state, true
}

// Has reports whether the service is tracked.
func (m *PollStateManager) Has(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.states[id]
	return ok
}

// IDs returns the tracked service IDs.
func (m *PollStateManager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of tracked services.
func (m *PollStateManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

// TryLock flips IsPolling to true iff it is currently false, returning
// whether the lock was taken. This is the single-flight gate shared by the
// cycle loop and on-demand polls.
func (m *PollStateManager) TryLock(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[id]
	if !ok || state.IsPolling {
		return false
	}
	state.IsPolling = true
	return true
}

// Unlock releases the polling lock. Unlocking an untracked service is a no-op.
func (m *PollStateManager) Unlock(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.states[id]; ok {
		state.IsPolling = false
	}
}

// ActivePollingCount returns how many services are mid-poll.
func (m *PollStateManager) ActivePollingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var n int
	for _, state := range m.states {
		if state.IsPolling {
			n++
		}
	}
	return n
}

// UpdateEndpoint refreshes the endpoint snapshot when the registry row
// changes. In-flight polls keep the old URL; the next poll uses the new one.
func (m *PollStateManager) UpdateEndpoint(id, endpoint string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[id]
	if !ok {
		return false
	}
	state.HealthEndpoint = endpoint
	return true
}

// RecordResult stamps LastPolled and updates the consecutive-failure count:
// reset on success, incremented on failure. Returns the new count.
func (m *PollStateManager) RecordResult(id string, success bool, at time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.states[id]
	if !ok {
		return 0
	}
	state.LastPolled = at
	if success {
		state.ConsecutiveFailures = 0
	} else {
		state.ConsecutiveFailures++
	}
	return state.ConsecutiveFailures
}

// Clear drops all tracked state.
func (m *PollStateManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = make(map[string]*PollState)
}
