package application

import (
	"context"
	"sync"
	"time"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// DefaultFetchTimeout is the absolute ceiling on one health fetch.
const DefaultFetchTimeout = 30 * time.Second

// ServicePoller performs one-shot polls of a single service: SSRF
// validation, breaker and host-limiter admission, coalesced fetch, parse,
// and transactional upsert. Polls against one poller are serialized by the
// scheduler's is_polling lock.
type ServicePoller struct {
	mu      sync.Mutex
	service model.Service

	fetcher  driven.HealthFetcher
	parser   *DependencyParser
	upserter *DependencyUpsertEngine
	breaker  *CircuitBreaker
	limiter  *HostRateLimiter
	dedup    *PollDeduplicator
	backoff  *Backoff
	timeout  time.Duration

	consecutiveFailures int
}

// NewServicePoller creates a poller for svc sharing the scheduler's guards.
func NewServicePoller(
	svc model.Service,
	fetcher driven.HealthFetcher,
	parser *DependencyParser,
	upserter *DependencyUpsertEngine,
	breaker *CircuitBreaker,
	limiter *HostRateLimiter,
	dedup *PollDeduplicator,
) *ServicePoller {
	return &ServicePoller{
		service:  svc,
		fetcher:  fetcher,
		parser:   parser,
		upserter: upserter,
		breaker:  breaker,
		limiter:  limiter,
		dedup:    dedup,
		backoff:  NewBackoff(DefaultBackoffBase, DefaultBackoffMax, DefaultBackoffMultiplier),
		timeout:  DefaultFetchTimeout,
	}
}

// Poll performs one poll attempt. Failures surface in the result's Error
// field, already sanitized; Poll itself never returns an error.
func (p *ServicePoller) Poll(ctx context.Context) model.PollResult {
	start := time.Now()
	svc := p.Service()

	// SSRF violations are fatal for this poll and must not cause an
	// outbound fetch. They bypass breaker accounting.
	if err := ValidateEndpointURL(svc.HealthEndpoint); err != nil {
		return p.fail(svc, start, "endpoint blocked: "+err.Error(), false)
	}

	if !p.breaker.CanAttempt(svc.ID) {
		return p.fail(svc, start, "circuit breaker open", false)
	}

	host := HostFromURL(svc.HealthEndpoint)
	if !p.limiter.Acquire(host) {
		// Limiter refusals are local congestion, not target failures; they
		// bypass breaker accounting too.
		return p.fail(svc, start, "rate limited: too many concurrent requests for host", false)
	}
	defer p.limiter.Release(host)

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, _, err := p.dedup.Do(svc.HealthEndpoint, func() ([]byte, error) {
		return p.fetcher.Fetch(fetchCtx, svc.HealthEndpoint)
	})
	if err != nil {
		return p.fail(svc, start, err.Error(), true)
	}

	statuses, err := p.parser.Parse(body, svc.SchemaConfig)
	if err != nil {
		return p.fail(svc, start, err.Error(), true)
	}

	changes, err := p.upserter.UpsertAll(ctx, svc, statuses)
	if err != nil {
		// A store failure rolls the poll's transaction back; the target host
		// answered fine, so the breaker is not charged.
		return p.fail(svc, start, err.Error(), false)
	}

	p.mu.Lock()
	p.consecutiveFailures = 0
	p.mu.Unlock()
	p.backoff.Reset()
	p.breaker.RecordSuccess(svc.ID)

	return model.PollResult{
		ServiceID:           svc.ID,
		ServiceName:         svc.Name,
		Success:             true,
		DependenciesUpdated: len(statuses),
		StatusChanges:       changes,
		LatencyMS:           time.Since(start).Milliseconds(),
	}
}

func (p *ServicePoller) fail(svc model.Service, start time.Time, rawMsg string, chargeBreaker bool) model.PollResult {
	if chargeBreaker {
		p.breaker.RecordFailure(svc.ID)
	}

	p.mu.Lock()
	p.consecutiveFailures++
	p.mu.Unlock()

	return model.PollResult{
		ServiceID:   svc.ID,
		ServiceName: svc.Name,
		Success:     false,
		Error:       SanitizeErrorMessage(rawMsg),
		LatencyMS:   time.Since(start).Milliseconds(),
	}
}

// NextPollDelay returns the backoff delay while failures are outstanding,
// otherwise the service's configured interval.
func (p *ServicePoller) NextPollDelay() time.Duration {
	p.mu.Lock()
	failures := p.consecutiveFailures
	svc := p.service
	p.mu.Unlock()

	if failures > 0 {
		return p.backoff.NextDelay()
	}
	return svc.PollInterval()
}

// ConsecutiveFailures returns the poller's failure streak.
func (p *ServicePoller) ConsecutiveFailures() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.consecutiveFailures
}

// Service returns the current service snapshot.
func (p *ServicePoller) Service() model.Service {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.service
}

// UpdateService replaces the service snapshot. In-flight fetches keep the
// old endpoint; the next poll uses the new one.
func (p *ServicePoller) UpdateService(svc model.Service) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.service = svc
}
