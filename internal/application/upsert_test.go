package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
)

type capturedSuggestions struct {
	serviceID string
	ids       []string
	calls     int
	err       error
}

func (c *capturedSuggestions) DependenciesDiscovered(_ context.Context, serviceID string, ids []string) error {
	c.serviceID = serviceID
	c.ids = append([]string(nil), ids...)
	c.calls++
	return c.err
}

func healthyStatus(name string, latency int64) model.DependencyStatus {
	return model.DependencyStatus{
		Name:        name,
		Type:        model.DependencyTypeDatabase,
		Healthy:     true,
		HealthState: model.HealthStateOK,
		HealthCode:  200,
		LatencyMS:   latency,
		LastChecked: time.Now().UTC(),
	}
}

func unhealthyStatus(name string, errJSON string) model.DependencyStatus {
	return model.DependencyStatus{
		Name:         name,
		Type:         model.DependencyTypeAPI,
		Healthy:      false,
		HealthState:  model.HealthStateCritical,
		HealthCode:   503,
		Error:        json.RawMessage(errJSON),
		ErrorMessage: "unavailable",
		LastChecked:  time.Now().UTC(),
	}
}

func TestUpsertEngine_InsertsNewDependency(t *testing.T) {
	ms := newMemStores()
	suggestions := &capturedSuggestions{}
	e := NewDependencyUpsertEngine(&memTxManager{stores: ms}, suggestions)
	svc := testService("svc-1", "billing", "https://billing.example.com/health")
	ctx := context.Background()

	changes, err := e.UpsertAll(ctx, svc, []model.DependencyStatus{healthyStatus("db", 42)})
	require.NoError(t, err)
	assert.Empty(t, changes, "first observation is not a status change")

	dep, err := ms.GetByServiceAndName(ctx, "svc-1", "db")
	require.NoError(t, err)
	require.NotNil(t, dep)
	require.NotNil(t, dep.Healthy)
	assert.True(t, *dep.Healthy)
	assert.False(t, dep.LastStatusChange.IsZero())
	assert.Equal(t, 1, ms.latencyCount(dep.ID))

	// New-arrival hook sees the fresh row.
	assert.Equal(t, 1, suggestions.calls)
	assert.Equal(t, "svc-1", suggestions.serviceID)
	assert.Equal(t, []string{dep.ID}, suggestions.ids)
}

func TestUpsertEngine_UnchangedPayloadIsIdempotent(t *testing.T) {
	ms := newMemStores()
	e := NewDependencyUpsertEngine(&memTxManager{stores: ms}, nil)
	svc := testService("svc-1", "billing", "https://billing.example.com/health")
	ctx := context.Background()

	statuses := []model.DependencyStatus{healthyStatus("db", 42)}

	_, err := e.UpsertAll(ctx, svc, statuses)
	require.NoError(t, err)
	first, _ := ms.GetByServiceAndName(ctx, "svc-1", "db")

	changes, err := e.UpsertAll(ctx, svc, statuses)
	require.NoError(t, err)
	assert.Empty(t, changes)

	second, _ := ms.GetByServiceAndName(ctx, "svc-1", "db")
	assert.Equal(t, first.LastStatusChange, second.LastStatusChange, "no flip, no advance")
	assert.Len(t, ms.errHist[first.ID], 0, "error history stays empty for healthy polls")
	assert.Equal(t, 2, ms.latencyCount(first.ID), "latency appends per sample")
}

func TestUpsertEngine_TransitionDetectedAndStatusChangeEmitted(t *testing.T) {
	ms := newMemStores()
	e := NewDependencyUpsertEngine(&memTxManager{stores: ms}, nil)
	svc := testService("svc-1", "billing", "https://billing.example.com/health")
	ctx := context.Background()

	_, err := e.UpsertAll(ctx, svc, []model.DependencyStatus{healthyStatus("db", 42)})
	require.NoError(t, err)
	before, _ := ms.GetByServiceAndName(ctx, "svc-1", "db")

	changes, err := e.UpsertAll(ctx, svc, []model.DependencyStatus{unhealthyStatus("db", `{"code": "DOWN"}`)})
	require.NoError(t, err)
	require.Len(t, changes, 1)

	change := changes[0]
	assert.Equal(t, "svc-1", change.ServiceID)
	assert.Equal(t, "billing", change.ServiceName)
	assert.Equal(t, "db", change.DependencyName)
	require.NotNil(t, change.PreviousHealthy)
	assert.True(t, *change.PreviousHealthy)
	assert.False(t, change.CurrentHealthy)

	after, _ := ms.GetByServiceAndName(ctx, "svc-1", "db")
	assert.True(t, after.LastStatusChange.After(before.LastStatusChange) || after.LastStatusChange.Equal(before.LastStatusChange))
	assert.NotEqual(t, before.LastStatusChange, after.LastStatusChange)

	// The flip also produced an error-history row.
	assert.Len(t, ms.errHist[after.ID], 1)
}

func TestUpsertEngine_AliasResolution(t *testing.T) {
	ms := newMemStores()
	require.NoError(t, ms.Upsert(context.Background(), model.DependencyAlias{
		Alias:         "pg-primary",
		CanonicalName: "postgres",
	}))
	e := NewDependencyUpsertEngine(&memTxManager{stores: ms}, nil)
	svc := testService("svc-1", "billing", "https://billing.example.com/health")
	ctx := context.Background()

	_, err := e.UpsertAll(ctx, svc, []model.DependencyStatus{healthyStatus("pg-primary", 0)})
	require.NoError(t, err)

	dep, _ := ms.GetByServiceAndName(ctx, "svc-1", "pg-primary")
	require.NotNil(t, dep.CanonicalName)
	assert.Equal(t, "postgres", *dep.CanonicalName)

	// Unaliased names resolve to nil.
	_, err = e.UpsertAll(ctx, svc, []model.DependencyStatus{healthyStatus("redis", 0)})
	require.NoError(t, err)
	dep, _ = ms.GetByServiceAndName(ctx, "svc-1", "redis")
	assert.Nil(t, dep.CanonicalName)
}

func TestUpsertEngine_OverridesNeverTouched(t *testing.T) {
	ms := newMemStores()
	e := NewDependencyUpsertEngine(&memTxManager{stores: ms}, nil)
	svc := testService("svc-1", "billing", "https://billing.example.com/health")
	ctx := context.Background()

	_, err := e.UpsertAll(ctx, svc, []model.DependencyStatus{healthyStatus("db", 0)})
	require.NoError(t, err)

	// Simulate a user edit between polls.
	contact := "team-data@corp"
	impact := "critical path"
	ms.mu.Lock()
	row := ms.deps[depKey("svc-1", "db")]
	row.ContactOverride = &contact
	row.ImpactOverride = &impact
	ms.mu.Unlock()

	_, err = e.UpsertAll(ctx, svc, []model.DependencyStatus{unhealthyStatus("db", `{"code": "DOWN"}`)})
	require.NoError(t, err)

	dep, _ := ms.GetByServiceAndName(ctx, "svc-1", "db")
	require.NotNil(t, dep.ContactOverride)
	assert.Equal(t, "team-data@corp", *dep.ContactOverride)
	require.NotNil(t, dep.ImpactOverride)
	assert.Equal(t, "critical path", *dep.ImpactOverride)
}

func TestUpsertEngine_NoLatencySampleForZeroLatency(t *testing.T) {
	ms := newMemStores()
	e := NewDependencyUpsertEngine(&memTxManager{stores: ms}, nil)
	svc := testService("svc-1", "billing", "https://billing.example.com/health")
	ctx := context.Background()

	_, err := e.UpsertAll(ctx, svc, []model.DependencyStatus{healthyStatus("db", 0)})
	require.NoError(t, err)

	dep, _ := ms.GetByServiceAndName(ctx, "svc-1", "db")
	assert.Equal(t, 0, ms.latencyCount(dep.ID))
}

func TestUpsertEngine_TxFailureRollsBack(t *testing.T) {
	ms := newMemStores()
	e := NewDependencyUpsertEngine(&memTxManager{stores: ms, failWith: errors.New("db locked")}, nil)
	svc := testService("svc-1", "billing", "https://billing.example.com/health")

	_, err := e.UpsertAll(context.Background(), svc, []model.DependencyStatus{healthyStatus("db", 42)})
	require.Error(t, err)

	dep, _ := ms.GetByServiceAndName(context.Background(), "svc-1", "db")
	assert.Nil(t, dep, "nothing committed")
}

func TestUpsertEngine_SuggestionFailureDoesNotFailPoll(t *testing.T) {
	ms := newMemStores()
	suggestions := &capturedSuggestions{err: errors.New("matcher offline")}
	e := NewDependencyUpsertEngine(&memTxManager{stores: ms}, suggestions)
	svc := testService("svc-1", "billing", "https://billing.example.com/health")

	_, err := e.UpsertAll(context.Background(), svc, []model.DependencyStatus{healthyStatus("db", 1)})
	assert.NoError(t, err)
	assert.Equal(t, 1, suggestions.calls)
}

func TestUpsertEngine_SuggestionOnlyForFreshInserts(t *testing.T) {
	ms := newMemStores()
	suggestions := &capturedSuggestions{}
	e := NewDependencyUpsertEngine(&memTxManager{stores: ms}, suggestions)
	svc := testService("svc-1", "billing", "https://billing.example.com/health")
	ctx := context.Background()

	_, err := e.UpsertAll(ctx, svc, []model.DependencyStatus{healthyStatus("db", 1)})
	require.NoError(t, err)
	_, err = e.UpsertAll(ctx, svc, []model.DependencyStatus{healthyStatus("db", 1)})
	require.NoError(t, err)

	assert.Equal(t, 1, suggestions.calls, "updates do not re-notify")
}
