// Package driven defines the driven ports (outbound interfaces) of the
// application core.
package driven

import (
	"context"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
)

// ServiceStore is the driven port for the service registry.
type ServiceStore interface {
	Insert(ctx context.Context, svc model.Service) error
	Update(ctx context.Context, svc model.Service) error
	Delete(ctx context.Context, id string) error
	// GetByID returns nil, nil when the service does not exist.
	GetByID(ctx context.Context, id string) (*model.Service, error)
	ListAll(ctx context.Context) ([]model.Service, error)
	// ListActiveNonExternal returns the services the scheduler tracks:
	// is_active=true and is_external=false.
	ListActiveNonExternal(ctx context.Context) ([]model.Service, error)
	// UpdatePollResult persists the service-level poll outcome. pollError
	// must already be sanitized; it is stored verbatim.
	UpdatePollResult(ctx context.Context, id string, success bool, pollError string) error
}
