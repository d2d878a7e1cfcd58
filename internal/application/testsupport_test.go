package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// memStores is an in-memory implementation of the transactional store ports
// used by application tests.
type memStores struct {
	mu       sync.Mutex
	deps     map[string]*model.Dependency // keyed by serviceID + "\x00" + name
	aliases  map[string]model.DependencyAlias
	latency  []model.LatencySample
	errHist  map[string][]model.ErrorHistoryEntry
	pollHist map[string][]model.ServicePollHistoryEntry
}

func newMemStores() *memStores {
	return &memStores{
		deps:     make(map[string]*model.Dependency),
		aliases:  make(map[string]model.DependencyAlias),
		errHist:  make(map[string][]model.ErrorHistoryEntry),
		pollHist: make(map[string][]model.ServicePollHistoryEntry),
	}
}

func depKey(serviceID, name string) string { return serviceID + "\x00" + name }

func (m *memStores) asStores() driven.Stores {
	return driven.Stores{Dependencies: m, Aliases: m, Latency: m, ErrorHistory: memErrorHistory{m: m}}
}

func (m *memStores) GetByServiceAndName(_ context.Context, serviceID, name string) (*model.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dep, ok := m.deps[depKey(serviceID, name)]
	if !ok {
		return nil, nil
	}
	cp := *dep
	return &cp, nil
}

func (m *memStores) ListByService(_ context.Context, serviceID string) ([]model.Dependency, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Dependency
	for _, dep := range m.deps {
		if dep.ServiceID == serviceID {
			out = append(out, *dep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStores) Insert(_ context.Context, dep model.Dependency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := depKey(dep.ServiceID, dep.Name)
	if _, ok := m.deps[key]; ok {
		return fmt.Errorf("duplicate dependency %s", dep.Name)
	}
	cp := dep
	m.deps[key] = &cp
	return nil
}

// UpdatePolled mirrors the SQL column list: the override columns are
// preserved from the existing row no matter what the caller passed.
func (m *memStores) UpdatePolled(_ context.Context, dep model.Dependency) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := depKey(dep.ServiceID, dep.Name)
	existing, ok := m.deps[key]
	if !ok {
		return fmt.Errorf("no such dependency %s", dep.ID)
	}
	cp := dep
	cp.ContactOverride = existing.ContactOverride
	cp.ImpactOverride = existing.ImpactOverride
	cp.CreatedAt = existing.CreatedAt
	m.deps[key] = &cp
	return nil
}

func (m *memStores) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, dep := range m.deps {
		if dep.ID == id {
			delete(m.deps, key)
		}
	}
	return nil
}

func (m *memStores) Upsert(_ context.Context, alias model.DependencyAlias) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aliases[alias.Alias] = alias
	return nil
}

func (m *memStores) GetByAlias(_ context.Context, alias string) (*model.DependencyAlias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.aliases[alias]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memStores) ListAll(_ context.Context) ([]model.DependencyAlias, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DependencyAlias
	for _, a := range m.aliases {
		out = append(out, a)
	}
	return out, nil
}

func (m *memStores) DeleteAlias(_ context.Context, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.aliases, alias)
	return nil
}

func (m *memStores) Append(_ context.Context, sample model.LatencySample) error {
	if sample.LatencyMS <= 0 {
		return fmt.Errorf("latency must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}
	m.latency = append(m.latency, sample)
	return nil
}

func (m *memStores) ListRecent(_ context.Context, dependencyID string, limit int) ([]model.LatencySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LatencySample
	for i := len(m.latency) - 1; i >= 0 && len(out) < limit; i-- {
		if m.latency[i].DependencyID == dependencyID {
			out = append(out, m.latency[i])
		}
	}
	return out, nil
}

func (m *memStores) AverageSince(_ context.Context, dependencyID string, since time.Time) (float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum, count int64
	for _, s := range m.latency {
		if s.DependencyID == dependencyID && !s.RecordedAt.Before(since) {
			sum += s.LatencyMS
			count++
		}
	}
	if count == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(count), int(count), nil
}

func (m *memStores) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (m *memStores) Latest(_ context.Context, dependencyID string) (*model.ErrorHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.errHist[dependencyID]
	if len(entries) == 0 {
		return nil, nil
	}
	cp := entries[len(entries)-1]
	return &cp, nil
}

func (m *memStores) AppendError(ctx context.Context, entry model.ErrorHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.errHist[entry.DependencyID] = append(m.errHist[entry.DependencyID], entry)
	return nil
}

func (m *memStores) ListByDependency(_ context.Context, dependencyID string, limit int) ([]model.ErrorHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.errHist[dependencyID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]model.ErrorHistoryEntry(nil), entries...), nil
}

func (m *memStores) latencyCount(dependencyID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, s := range m.latency {
		if s.DependencyID == dependencyID {
			n++
		}
	}
	return n
}

// memErrorHistory adapts memStores to the ErrorHistoryStore port (its
// Append collides with the latency store's).
type memErrorHistory struct{ m *memStores }

func (e memErrorHistory) Latest(ctx context.Context, dependencyID string) (*model.ErrorHistoryEntry, error) {
	return e.m.Latest(ctx, dependencyID)
}

func (e memErrorHistory) Append(ctx context.Context, entry model.ErrorHistoryEntry) error {
	return e.m.AppendError(ctx, entry)
}

func (e memErrorHistory) ListByDependency(ctx context.Context, dependencyID string, limit int) ([]model.ErrorHistoryEntry, error) {
	return e.m.ListByDependency(ctx, dependencyID, limit)
}

func (e memErrorHistory) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// memPollHistory implements the PollHistoryStore port.
type memPollHistory struct {
	mu      sync.Mutex
	entries map[string][]model.ServicePollHistoryEntry
}

func newMemPollHistory() *memPollHistory {
	return &memPollHistory{entries: make(map[string][]model.ServicePollHistoryEntry)}
}

func (p *memPollHistory) Latest(_ context.Context, serviceID string) (*model.ServicePollHistoryEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.entries[serviceID]
	if len(entries) == 0 {
		return nil, nil
	}
	cp := entries[len(entries)-1]
	return &cp, nil
}

func (p *memPollHistory) Append(_ context.Context, entry model.ServicePollHistoryEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	p.entries[entry.ServiceID] = append(p.entries[entry.ServiceID], entry)
	return nil
}

func (p *memPollHistory) ListByService(_ context.Context, serviceID string, limit int) ([]model.ServicePollHistoryEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.entries[serviceID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return append([]model.ServicePollHistoryEntry(nil), entries...), nil
}

func (p *memPollHistory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (p *memPollHistory) count(serviceID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries[serviceID])
}

// memTxManager runs transaction closures against memStores. Rollback is
// emulated by snapshotting the dependency and history maps.
type memTxManager struct {
	stores   *memStores
	failWith error
}

func (m *memTxManager) WithTransaction(_ context.Context, fn func(driven.Stores) error) error {
	if m.failWith != nil {
		return m.failWith
	}

	snapshot := m.stores.clone()
	if err := fn(m.stores.asStores()); err != nil {
		m.stores.restore(snapshot)
		return err
	}
	return nil
}

func (m *memStores) clone() *memStores {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := newMemStores()
	for k, v := range m.deps {
		d := *v
		cp.deps[k] = &d
	}
	for k, v := range m.aliases {
		cp.aliases[k] = v
	}
	cp.latency = append([]model.LatencySample(nil), m.latency...)
	for k, v := range m.errHist {
		cp.errHist[k] = append([]model.ErrorHistoryEntry(nil), v...)
	}
	return cp
}

func (m *memStores) restore(snapshot *memStores) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps = snapshot.deps
	m.aliases = snapshot.aliases
	m.latency = snapshot.latency
	m.errHist = snapshot.errHist
}

// memServiceStore implements the ServiceStore port.
type memServiceStore struct {
	mu       sync.Mutex
	services map[string]model.Service
}

func newMemServiceStore(services ...model.Service) *memServiceStore {
	s := &memServiceStore{services: make(map[string]model.Service)}
	for _, svc := range services {
		s.services[svc.ID] = svc
	}
	return s
}

func (s *memServiceStore) Insert(_ context.Context, svc model.Service) error {
	if err := model.ValidatePollInterval(svc.PollIntervalMS); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
	return nil
}

func (s *memServiceStore) Update(_ context.Context, svc model.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[svc.ID]; !ok {
		return fmt.Errorf("no such service %s", svc.ID)
	}
	s.services[svc.ID] = svc
	return nil
}

func (s *memServiceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.services, id)
	return nil
}

func (s *memServiceStore) GetByID(_ context.Context, id string) (*model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, nil
	}
	return &svc, nil
}

func (s *memServiceStore) ListAll(_ context.Context) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Service
	for _, svc := range s.services {
		out = append(out, svc)
	}
	return out, nil
}

func (s *memServiceStore) ListActiveNonExternal(_ context.Context) ([]model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Service
	for _, svc := range s.services {
		if svc.IsActive && !svc.IsExternal {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memServiceStore) UpdatePollResult(_ context.Context, id string, success bool, pollError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return fmt.Errorf("no such service %s", id)
	}
	svc.LastPollSuccess = &success
	svc.LastPollError = pollError
	s.services[id] = svc
	return nil
}

// fakeFetcher implements the HealthFetcher port with canned responses and
// per-URL call counting.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	delay   time.Duration
	respond func(url string) ([]byte, error)
}

func newFakeFetcher(respond func(url string) ([]byte, error)) *fakeFetcher {
	return &fakeFetcher{calls: make(map[string]int), respond: respond}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	delay := f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return f.respond(url)
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	for _, c := range f.calls {
		n += c
	}
	return n
}

func jsonBody(s string) func(string) ([]byte, error) {
	return func(string) ([]byte, error) { return []byte(s), nil }
}

func testService(id, name, endpoint string) model.Service {
	return model.Service{
		ID:             id,
		Name:           name,
		HealthEndpoint: endpoint,
		PollIntervalMS: 5_000,
		IsActive:       true,
	}
}
