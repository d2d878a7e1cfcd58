package driven

import (
	"context"
	"time"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
)

// LatencyHistoryStore is the driven port for the append-only latency log.
type LatencyHistoryStore interface {
	Append(ctx context.Context, sample model.LatencySample) error
	ListRecent(ctx context.Context, dependencyID string, limit int) ([]model.LatencySample, error)
	// AverageSince returns the mean latency of samples recorded at or after
	// since. The second return is the sample count; zero means no samples.
	AverageSince(ctx context.Context, dependencyID string, since time.Time) (float64, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ErrorHistoryStore is the driven port for the dependency-level
// transition-only error log.
type ErrorHistoryStore interface {
	// Latest returns nil, nil when the dependency has no history.
	Latest(ctx context.Context, dependencyID string) (*model.ErrorHistoryEntry, error)
	Append(ctx context.Context, entry model.ErrorHistoryEntry) error
	ListByDependency(ctx context.Context, dependencyID string, limit int) ([]model.ErrorHistoryEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PollHistoryStore is the driven port for the service-level transition-only
// poll outcome log.
type PollHistoryStore interface {
	// Latest returns nil, nil when the service has no history.
	Latest(ctx context.Context, serviceID string) (*model.ServicePollHistoryEntry, error)
	Append(ctx context.Context, entry model.ServicePollHistoryEntry) error
	ListByService(ctx context.Context, serviceID string, limit int) ([]model.ServicePollHistoryEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
