package application

import (
	"context"
	"log/slog"

	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SuggestionNotifier = (*LoggingSuggestionNotifier)(nil)

// LoggingSuggestionNotifier is the default SuggestionNotifier: it logs newly
// discovered dependencies for the association-matching subsystem to pick up
// out of band.
type LoggingSuggestionNotifier struct{}

// DependenciesDiscovered logs the fresh dependency IDs.
func (n *LoggingSuggestionNotifier) DependenciesDiscovered(_ context.Context, serviceID string, dependencyIDs []string) error {
	slog.Debug("new dependencies discovered",
		"service_id", serviceID,
		"count", len(dependencyIDs),
	)
	return nil
}
