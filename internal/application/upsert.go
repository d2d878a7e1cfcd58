package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// DependencyUpsertEngine commits one poll's parsed dependency statuses:
// alias resolution, insert-or-update by (service_id, name), transition
// detection, error-history recording, and latency sampling — all inside a
// single transaction. Freshly inserted dependency IDs are handed to the
// suggestion notifier after commit, best-effort.
type DependencyUpsertEngine struct {
	tx          driven.TxManager
	suggestions driven.SuggestionNotifier
	recorder    *ErrorHistoryRecorder
	now         func() time.Time
}

// NewDependencyUpsertEngine creates an engine. suggestions may be nil, in
// which case the new-arrival hook is skipped.
func NewDependencyUpsertEngine(tx driven.TxManager, suggestions driven.SuggestionNotifier) *DependencyUpsertEngine {
	return &DependencyUpsertEngine{
		tx:          tx,
		suggestions: suggestions,
		recorder:    NewErrorHistoryRecorder(),
		now:         time.Now,
	}
}

// UpsertAll commits the statuses for one poll of svc and returns the
// accumulated status changes. On error the transaction has rolled back and
// no rows were written.
func (e *DependencyUpsertEngine) UpsertAll(ctx context.Context, svc model.Service, statuses []model.DependencyStatus) ([]model.StatusChange, error) {
	now := e.now().UTC()
	var (
		changes []model.StatusChange
		newIDs  []string
	)

	err := e.tx.WithTransaction(ctx, func(stores driven.Stores) error {
		for _, status := range statuses {
			depID, change, inserted, err := e.upsertOne(ctx, stores, svc, status, now)
			if err != nil {
				return err
			}
			if change != nil {
				changes = append(changes, *change)
			}
			if inserted {
				newIDs = append(newIDs, depID)
			}

			if _, err := e.recorder.Record(ctx, stores.ErrorHistory, depID, status.Healthy, status.Error, status.ErrorMessage, now); err != nil {
				return err
			}

			if status.LatencyMS > 0 {
				sample := model.LatencySample{
					DependencyID: depID,
					LatencyMS:    status.LatencyMS,
					RecordedAt:   now,
				}
				if err := stores.Latency.Append(ctx, sample); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// The suggestion hook runs after commit so a failure can never roll back
	// the poll. Its errors are logged and swallowed.
	if len(newIDs) > 0 && e.suggestions != nil {
		if err := e.suggestions.DependenciesDiscovered(ctx, svc.ID, newIDs); err != nil {
			slog.Error("suggestion notification failed", "service_id", svc.ID, "error", err)
		}
	}

	return changes, nil
}

// upsertOne writes a single dependency and reports its row ID, an optional
// status change, and whether the row was freshly inserted.
func (e *DependencyUpsertEngine) upsertOne(
	ctx context.Context,
	stores driven.Stores,
	svc model.Service,
	status model.DependencyStatus,
	now time.Time,
) (string, *model.StatusChange, bool, error) {
	var canonicalName *string
	alias, err := stores.Aliases.GetByAlias(ctx, status.Name)
	if err != nil {
		return "", nil, false, err
	}
	if alias != nil {
		canonicalName = &alias.CanonicalName
	}

	existing, err := stores.Dependencies.GetByServiceAndName(ctx, svc.ID, status.Name)
	if err != nil {
		return "", nil, false, err
	}

	healthy := status.Healthy
	if existing == nil {
		dep := model.Dependency{
			ID:               uuid.NewString(),
			ServiceID:        svc.ID,
			Name:             status.Name,
			CanonicalName:    canonicalName,
			Description:      status.Description,
			Impact:           status.Impact,
			Type:             status.Type,
			Healthy:          &healthy,
			HealthState:      status.HealthState,
			HealthCode:       status.HealthCode,
			LatencyMS:        status.LatencyMS,
			CheckDetails:     status.CheckDetails,
			Error:            status.Error,
			ErrorMessage:     status.ErrorMessage,
			LastChecked:      status.LastChecked,
			LastStatusChange: now,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := stores.Dependencies.Insert(ctx, dep); err != nil {
			return "", nil, false, err
		}
		return dep.ID, nil, true, nil
	}

	// last_status_change advances only when healthy actually flipped (or on
	// the first non-null observation).
	flipped := existing.Healthy != nil && *existing.Healthy != healthy
	lastStatusChange := existing.LastStatusChange
	if existing.Healthy == nil || flipped {
		lastStatusChange = now
	}

	dep := *existing
	dep.CanonicalName = canonicalName
	dep.Description = status.Description
	dep.Impact = status.Impact
	dep.Type = status.Type
	dep.Healthy = &healthy
	dep.HealthState = status.HealthState
	dep.HealthCode = status.HealthCode
	dep.LatencyMS = status.LatencyMS
	dep.CheckDetails = status.CheckDetails
	dep.Error = status.Error
	dep.ErrorMessage = status.ErrorMessage
	dep.LastChecked = status.LastChecked
	dep.LastStatusChange = lastStatusChange
	dep.UpdatedAt = now

	if err := stores.Dependencies.UpdatePolled(ctx, dep); err != nil {
		return "", nil, false, err
	}

	var change *model.StatusChange
	if flipped {
		change = &model.StatusChange{
			ServiceID:       svc.ID,
			ServiceName:     svc.Name,
			DependencyName:  status.Name,
			PreviousHealthy: existing.Healthy,
			CurrentHealthy:  healthy,
			Timestamp:       now,
		}
	}
	return dep.ID, change, false, nil
}
