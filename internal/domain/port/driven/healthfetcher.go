package driven

import "context"

// HealthFetcher is the driven port for retrieving a health endpoint's raw
// payload. Implementations own HTTP transport concerns (headers, status
// handling, redirect validation); callers own the request deadline via ctx.
type HealthFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// SuggestionNotifier receives the IDs of freshly inserted dependencies so
// the association-matching subsystem can generate grouping suggestions in
// the background. Calls are best-effort: failures are logged by the caller
// and never fail a poll.
type SuggestionNotifier interface {
	DependenciesDiscovered(ctx context.Context, serviceID string, dependencyIDs []string) error
}
