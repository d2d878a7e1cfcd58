package driven

import (
	"context"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
)

// DependencyStore is the driven port for dependency persistence.
type DependencyStore interface {
	// GetByServiceAndName returns nil, nil when no row exists.
	GetByServiceAndName(ctx context.Context, serviceID, name string) (*model.Dependency, error)
	ListByService(ctx context.Context, serviceID string) ([]model.Dependency, error)
	Insert(ctx context.Context, dep model.Dependency) error
	// UpdatePolled writes only the polled columns. The override columns
	// (contact_override, impact_override) are outside its column list and
	// can never be touched by the polling path.
	UpdatePolled(ctx context.Context, dep model.Dependency) error
	Delete(ctx context.Context, id string) error
}

// AliasStore is the driven port for dependency-name aliases.
type AliasStore interface {
	Upsert(ctx context.Context, alias model.DependencyAlias) error
	// GetByAlias returns nil, nil when no alias exists.
	GetByAlias(ctx context.Context, alias string) (*model.DependencyAlias, error)
	ListAll(ctx context.Context) ([]model.DependencyAlias, error)
	Delete(ctx context.Context, alias string) error
}
