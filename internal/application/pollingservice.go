package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// Scheduler defaults.
const (
	DefaultPollCycle        = 30 * time.Second
	shutdownDrainTimeout    = 5 * time.Second
	shutdownDrainResolution = 100 * time.Millisecond
)

// PollingConfig tunes the scheduler. Zero values fall back to defaults.
type PollingConfig struct {
	Cycle                time.Duration
	MaxConcurrentPerHost int
	BreakerThreshold     int
	BreakerCooldown      time.Duration
}

// HealthPollingService drives health acquisition end-to-end: it syncs the
// tracked set with the registry each cycle, fans polls out concurrently, and
// persists outcomes. The application's composition root holds the single
// instance; tests construct their own with injected collaborators.
type HealthPollingService struct {
	services    driven.ServiceStore
	pollHistory driven.PollHistoryStore

	states  *PollStateManager
	cache   *PollCache
	breaker *CircuitBreaker
	limiter *HostRateLimiter
	dedup   *PollDeduplicator
	emitter *EventEmitter

	fetcher  driven.HealthFetcher
	parser   *DependencyParser
	upserter *DependencyUpsertEngine
	recorder *ServicePollHistoryRecorder

	cycle time.Duration
	now   func() time.Time

	mu           sync.Mutex
	pollers      map[string]*ServicePoller
	stopped      map[string]bool // explicitly stopped; skipped by sync until restarted
	started      bool
	shuttingDown bool
	cancelRun    context.CancelFunc
	runDone      chan struct{}
}

// NewHealthPollingService wires a scheduler from its collaborators.
func NewHealthPollingService(
	cfg PollingConfig,
	services driven.ServiceStore,
	pollHistory driven.PollHistoryStore,
	tx driven.TxManager,
	fetcher driven.HealthFetcher,
	suggestions driven.SuggestionNotifier,
) *HealthPollingService {
	if cfg.Cycle <= 0 {
		cfg.Cycle = DefaultPollCycle
	}

	return &HealthPollingService{
		services:    services,
		pollHistory: pollHistory,
		states:      NewPollStateManager(),
		cache:       NewPollCache(),
		breaker:     NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		limiter:     NewHostRateLimiter(cfg.MaxConcurrentPerHost),
		dedup:       NewPollDeduplicator(),
		emitter:     NewEventEmitter(),
		fetcher:     fetcher,
		parser:      NewDependencyParser(),
		upserter:    NewDependencyUpsertEngine(tx, suggestions),
		recorder:    NewServicePollHistoryRecorder(),
		cycle:       cfg.Cycle,
		now:         time.Now,
		pollers:     make(map[string]*ServicePoller),
		stopped:     make(map[string]bool),
	}
}

// On registers a listener for a named event.
func (s *HealthPollingService) On(name EventName, fn EventListener) {
	s.emitter.On(name, fn)
}

// StartAll starts the cycle loop and adds every active service. It is
// idempotent; calling it on a running scheduler only re-syncs.
func (s *HealthPollingService) StartAll(ctx context.Context) error {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return fmt.Errorf("polling service is shut down")
	}
	alreadyStarted := s.started
	if !alreadyStarted {
		s.started = true
		runCtx, cancel := context.WithCancel(ctx)
		s.cancelRun = cancel
		s.runDone = make(chan struct{})
		go s.run(runCtx)
	}
	s.mu.Unlock()

	if alreadyStarted {
		s.syncServices(ctx)
	}
	return nil
}

// run is the cycle loop: an immediate cycle, then one per tick until the
// context is canceled.
func (s *HealthPollingService) run(ctx context.Context) {
	defer close(s.runDone)

	s.RunPollCycle(ctx)

	ticker := time.NewTicker(s.cycle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("polling service stopped")
			return
		case <-ticker.C:
			s.RunPollCycle(ctx)
		}
	}
}

// RunPollCycle executes one scheduler cycle: registry sync, snapshot of due
// unlocked states, concurrent fan-out, and per-result bookkeeping. One
// poll's failure never aborts the cycle.
func (s *HealthPollingService) RunPollCycle(ctx context.Context) {
	if s.isShuttingDown() {
		return
	}

	start := s.now()
	s.syncServices(ctx)

	var due []string
	for _, id := range s.states.IDs() {
		if !s.cache.ShouldPoll(id) {
			continue
		}
		if s.states.TryLock(id) {
			due = append(due, id)
		}
	}

	var wg sync.WaitGroup
	for _, id := range due {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.pollLocked(ctx, id)
		}(id)
	}
	wg.Wait()

	slog.Info("poll cycle complete",
		"tracked", s.states.Len(),
		"polled", len(due),
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// pollLocked polls one service whose is_polling lock the caller holds, then
// releases the lock.
func (s *HealthPollingService) pollLocked(ctx context.Context, id string) {
	defer s.unlockAndReap(id)

	s.mu.Lock()
	poller, ok := s.pollers[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	result := poller.Poll(ctx)
	s.cache.MarkPolled(id, poller.NextPollDelay())
	s.finishPoll(ctx, result)
}

// unlockAndReap releases the polling lock and completes a removal that was
// deferred while the poll was in flight.
func (s *HealthPollingService) unlockAndReap(id string) {
	s.states.Unlock(id)

	s.mu.Lock()
	wasStopped := s.stopped[id]
	s.mu.Unlock()
	if wasStopped {
		s.forget(id)
	}
}

// finishPoll persists a poll outcome and emits its events. Persistence
// failures here are logged; the poll result itself stands.
func (s *HealthPollingService) finishPoll(ctx context.Context, result model.PollResult) {
	now := s.now().UTC()
	failures := s.states.RecordResult(result.ServiceID, result.Success, now)

	if err := s.services.UpdatePollResult(ctx, result.ServiceID, result.Success, result.Error); err != nil {
		slog.Error("persist poll result failed", "service_id", result.ServiceID, "error", err)
	}
	if _, err := s.recorder.Record(ctx, s.pollHistory, result.ServiceID, result.Success, result.Error, now); err != nil {
		slog.Error("record poll history failed", "service_id", result.ServiceID, "error", err)
	}

	for i := range result.StatusChanges {
		change := result.StatusChanges[i]
		s.emitter.Emit(Event{
			Name:        EventStatusChange,
			ServiceID:   change.ServiceID,
			ServiceName: change.ServiceName,
			Change:      &change,
		})
	}

	if result.Success {
		s.emitter.Emit(Event{
			Name:        EventPollComplete,
			ServiceID:   result.ServiceID,
			ServiceName: result.ServiceName,
			Result:      &result,
		})
	} else {
		slog.Debug("poll failed",
			"service_id", result.ServiceID,
			"service", result.ServiceName,
			"consecutive_failures", failures,
			"error", result.Error,
		)
		s.emitter.Emit(Event{
			Name:        EventPollError,
			ServiceID:   result.ServiceID,
			ServiceName: result.ServiceName,
			Result:      &result,
			Err:         result.Error,
		})
	}
}

// syncServices reconciles the tracked set against the registry. Services no
// longer active are removed unless mid-poll (deferred to the next cycle);
// new active services are added; endpoint changes refresh the snapshots.
func (s *HealthPollingService) syncServices(ctx context.Context) {
	active, err := s.services.ListActiveNonExternal(ctx)
	if err != nil {
		slog.Error("sync: list active services failed", "error", err)
		return
	}

	activeByID := make(map[string]model.Service, len(active))
	for _, svc := range active {
		if svc.HealthEndpoint == "" {
			continue
		}
		activeByID[svc.ID] = svc
	}

	for _, id := range s.states.IDs() {
		if _, stillActive := activeByID[id]; stillActive {
			continue
		}
		if s.states.Remove(id) {
			s.forget(id)
			s.emitServiceStopped(id)
		}
		// Removal refused: the poll in flight finishes first; the next
		// sync retries.
	}

	for id, svc := range activeByID {
		s.mu.Lock()
		explicitlyStopped := s.stopped[id]
		s.mu.Unlock()
		if explicitlyStopped {
			continue
		}

		if !s.states.Has(id) {
			s.track(svc)
			s.emitter.Emit(Event{Name: EventServiceStarted, ServiceID: svc.ID, ServiceName: svc.Name})
			continue
		}

		state, _ := s.states.Get(id)
		if state.HealthEndpoint != svc.HealthEndpoint {
			s.states.UpdateEndpoint(id, svc.HealthEndpoint)
			s.cache.Invalidate(id)
			slog.Info("service endpoint updated", "service_id", id, "service", svc.Name)
		}

		s.mu.Lock()
		if poller, ok := s.pollers[id]; ok {
			poller.UpdateService(svc)
		}
		s.mu.Unlock()
	}
}

// track adds state and a poller for a service.
func (s *HealthPollingService) track(svc model.Service) {
	s.states.Add(svc)

	s.mu.Lock()
	if _, ok := s.pollers[svc.ID]; !ok {
		s.pollers[svc.ID] = NewServicePoller(svc, s.fetcher, s.parser, s.upserter, s.breaker, s.limiter, s.dedup)
	}
	s.mu.Unlock()
}

// forget drops every scheduler-side trace of a service.
func (s *HealthPollingService) forget(id string) {
	s.states.Remove(id)
	s.cache.Remove(id)
	s.breaker.Remove(id)

	s.mu.Lock()
	delete(s.pollers, id)
	s.mu.Unlock()
}

func (s *HealthPollingService) emitServiceStopped(id string) {
	s.emitter.Emit(Event{Name: EventServiceStopped, ServiceID: id})
}

// StartService begins tracking one service immediately. It is idempotent
// and clears any explicit stop.
func (s *HealthPollingService) StartService(ctx context.Context, id string) error {
	if s.isShuttingDown() {
		return fmt.Errorf("polling service is shut down")
	}

	svc, err := s.services.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("start service %s: %w", id, err)
	}
	if svc == nil {
		return fmt.Errorf("start service %s: no such service", id)
	}
	if !svc.Pollable() {
		return fmt.Errorf("start service %s: not pollable (inactive, external, or no health endpoint)", id)
	}

	s.mu.Lock()
	delete(s.stopped, id)
	s.mu.Unlock()

	if s.states.Has(id) {
		return nil
	}

	s.track(*svc)
	s.emitter.Emit(Event{Name: EventServiceStarted, ServiceID: svc.ID, ServiceName: svc.Name})
	return nil
}

// StopService stops tracking one service immediately. A currently-running
// poll completes; its state is reaped when the lock is released. Safe to
// call repeatedly.
func (s *HealthPollingService) StopService(id string) {
	s.mu.Lock()
	s.stopped[id] = true
	s.mu.Unlock()

	if s.states.Remove(id) {
		s.forget(id)
	}
	s.emitServiceStopped(id)
}

// RestartService is stop followed by start.
func (s *HealthPollingService) RestartService(ctx context.Context, id string) error {
	s.StopService(id)
	return s.StartService(ctx, id)
}

// PollNow triggers a single on-demand poll. A poll already in flight for
// the service is refused without any I/O. Services not continuously tracked
// are polled with a temporary poller built from the registry row.
func (s *HealthPollingService) PollNow(ctx context.Context, id string) (model.PollResult, error) {
	if s.isShuttingDown() {
		return model.PollResult{}, fmt.Errorf("polling service is shut down")
	}

	if s.states.Has(id) {
		if !s.states.TryLock(id) {
			state, _ := s.states.Get(id)
			return model.PollResult{
				ServiceID:   id,
				ServiceName: state.ServiceName,
				Success:     false,
				Error:       "Service is currently being polled",
			}, nil
		}

		s.mu.Lock()
		poller, ok := s.pollers[id]
		s.mu.Unlock()
		if !ok {
			s.states.Unlock(id)
			return model.PollResult{}, fmt.Errorf("poll now %s: no poller tracked", id)
		}

		defer s.unlockAndReap(id)
		result := poller.Poll(ctx)
		s.cache.MarkPolled(id, poller.NextPollDelay())
		s.finishPoll(ctx, result)
		return result, nil
	}

	// Untracked service: one-shot poller straight from the registry.
	svc, err := s.services.GetByID(ctx, id)
	if err != nil {
		return model.PollResult{}, fmt.Errorf("poll now %s: %w", id, err)
	}
	if svc == nil {
		return model.PollResult{}, fmt.Errorf("poll now %s: no such service", id)
	}

	poller := NewServicePoller(*svc, s.fetcher, s.parser, s.upserter, s.breaker, s.limiter, s.dedup)
	result := poller.Poll(ctx)
	s.finishPoll(ctx, result)
	return result, nil
}

// Shutdown stops the cycle loop, drains in-flight polls for up to 5 s, and
// clears all scheduler state and listeners. Idempotent.
func (s *HealthPollingService) Shutdown() {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return
	}
	s.shuttingDown = true
	cancel := s.cancelRun
	done := s.runDone
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	deadline := time.Now().Add(shutdownDrainTimeout)
	for s.states.ActivePollingCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(shutdownDrainResolution)
	}
	if n := s.states.ActivePollingCount(); n > 0 {
		slog.Warn("shutdown drain timed out", "in_flight", n)
	}

	s.states.Clear()
	s.cache.Clear()
	s.dedup.Clear()
	s.emitter.RemoveAll()

	s.mu.Lock()
	s.pollers = make(map[string]*ServicePoller)
	s.stopped = make(map[string]bool)
	s.mu.Unlock()

	slog.Info("polling service shut down")
}

func (s *HealthPollingService) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// ActivePollers returns the tracked service IDs.
func (s *HealthPollingService) ActivePollers() []string {
	return s.states.IDs()
}

// IsPolling reports whether a poll is in flight for the service.
func (s *HealthPollingService) IsPolling(id string) bool {
	state, ok := s.states.Get(id)
	return ok && state.IsPolling
}

// PollState returns a snapshot of the service's polling state.
func (s *HealthPollingService) PollState(id string) (PollState, bool) {
	return s.states.Get(id)
}
