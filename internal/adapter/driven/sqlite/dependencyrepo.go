package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DependencyStore = (*DependencyRepo)(nil)

// DependencyRepo is the SQLite implementation of the DependencyStore port.
type DependencyRepo struct {
	w dbtx
	r dbtx
}

// NewDependencyRepo creates a DependencyRepo backed by the given DB.
func NewDependencyRepo(db *DB) *DependencyRepo {
	return &DependencyRepo{w: db.Writer, r: db.Reader}
}

const dependencyColumns = `
	id, service_id, name, canonical_name, description, impact, type,
	healthy, health_state, health_code, latency_ms, check_details,
	error, error_message, contact_override, impact_override,
	last_checked, last_status_change, created_at, updated_at
`

// GetByServiceAndName retrieves a dependency by its unique key.
// Returns nil, nil if no row exists.
func (r *DependencyRepo) GetByServiceAndName(ctx context.Context, serviceID, name string) (*model.Dependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM dependencies WHERE service_id = ? AND name = ?`

	dep, err := scanDependency(r.r.QueryRowContext(ctx, query, serviceID, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dependency %s/%s: %w", serviceID, name, err)
	}
	return dep, nil
}

// ListByService returns all dependencies of a service ordered by name.
func (r *DependencyRepo) ListByService(ctx context.Context, serviceID string) ([]model.Dependency, error) {
	query := `SELECT ` + dependencyColumns + ` FROM dependencies WHERE service_id = ? ORDER BY name`

	rows, err := r.r.QueryContext(ctx, query, serviceID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies for %s: %w", serviceID, err)
	}
	defer rows.Close()

	var deps []model.Dependency
	for rows.Next() {
		dep, err := scanDependency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, *dep)
	}
	return deps, rows.Err()
}

// Insert adds a freshly observed dependency row.
func (r *DependencyRepo) Insert(ctx context.Context, dep model.Dependency) error {
	const query = `
		INSERT INTO dependencies (
			id, service_id, name, canonical_name, description, impact, type,
			healthy, health_state, health_code, latency_ms, check_details,
			error, error_message, last_checked, last_status_change,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.w.ExecContext(ctx, query,
		dep.ID, dep.ServiceID, dep.Name, nullStr(dep.CanonicalName),
		dep.Description, dep.Impact, string(dep.Type),
		nullBool(dep.Healthy), int(dep.HealthState), dep.HealthCode, dep.LatencyMS,
		nullRaw(dep.CheckDetails), nullRaw(dep.Error), dep.ErrorMessage,
		fmtTime(dep.LastChecked), fmtTime(dep.LastStatusChange),
		fmtTime(dep.CreatedAt), fmtTime(dep.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert dependency %s/%s: %w", dep.ServiceID, dep.Name, err)
	}
	return nil
}

// UpdatePolled rewrites the polled columns of an existing row. The column
// list is explicit: contact_override and impact_override are user-owned and
// deliberately absent, so the polling path cannot clobber them.
func (r *DependencyRepo) UpdatePolled(ctx context.Context, dep model.Dependency) error {
	const query = `
		UPDATE dependencies SET
			canonical_name = ?,
			description = ?,
			impact = ?,
			type = ?,
			healthy = ?,
			health_state = ?,
			health_code = ?,
			latency_ms = ?,
			check_details = ?,
			error = ?,
			error_message = ?,
			last_checked = ?,
			last_status_change = ?,
			updated_at = ?
		WHERE id = ?
	`

	res, err := r.w.ExecContext(ctx, query,
		nullStr(dep.CanonicalName), dep.Description, dep.Impact, string(dep.Type),
		nullBool(dep.Healthy), int(dep.HealthState), dep.HealthCode, dep.LatencyMS,
		nullRaw(dep.CheckDetails), nullRaw(dep.Error), dep.ErrorMessage,
		fmtTime(dep.LastChecked), fmtTime(dep.LastStatusChange), fmtTime(dep.UpdatedAt),
		dep.ID,
	)
	if err != nil {
		return fmt.Errorf("update dependency %s: %w", dep.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update dependency %s: no such dependency", dep.ID)
	}
	return nil
}

// Delete removes a dependency row. History rows cascade.
func (r *DependencyRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.w.ExecContext(ctx, `DELETE FROM dependencies WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete dependency %s: %w", id, err)
	}
	return nil
}

func scanDependency(row rowScanner) (*model.Dependency, error) {
	var (
		dep                              model.Dependency
		canonicalName                    sql.NullString
		typ                              string
		healthy                          sql.NullInt64
		healthState                      int
		checkDetails, errJSON            sql.NullString
		contactOverride, impactOverride  sql.NullString
		lastChecked, lastStatusChange    string
		createdAt, updatedAt             string
	)

	err := row.Scan(
		&dep.ID, &dep.ServiceID, &dep.Name, &canonicalName,
		&dep.Description, &dep.Impact, &typ,
		&healthy, &healthState, &dep.HealthCode, &dep.LatencyMS,
		&checkDetails, &errJSON, &dep.ErrorMessage,
		&contactOverride, &impactOverride,
		&lastChecked, &lastStatusChange, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if canonicalName.Valid {
		dep.CanonicalName = &canonicalName.String
	}
	dep.Type = model.DependencyType(typ)
	if healthy.Valid {
		v := healthy.Int64 != 0
		dep.Healthy = &v
	}
	dep.HealthState = model.HealthState(healthState)
	if checkDetails.Valid && checkDetails.String != "" {
		dep.CheckDetails = []byte(checkDetails.String)
	}
	if errJSON.Valid && errJSON.String != "" {
		dep.Error = []byte(errJSON.String)
	}
	if contactOverride.Valid {
		dep.ContactOverride = &contactOverride.String
	}
	if impactOverride.Valid {
		dep.ImpactOverride = &impactOverride.String
	}
	dep.LastChecked = parseTime(lastChecked)
	dep.LastStatusChange = parseTime(lastStatusChange)
	dep.CreatedAt = parseTime(createdAt)
	dep.UpdatedAt = parseTime(updatedAt)

	return &dep, nil
}
