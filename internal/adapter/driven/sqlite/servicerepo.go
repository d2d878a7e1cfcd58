package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ServiceStore = (*ServiceRepo)(nil)

// ServiceRepo is the SQLite implementation of the ServiceStore port.
type ServiceRepo struct {
	w dbtx
	r dbtx
}

// NewServiceRepo creates a ServiceRepo backed by the given DB.
func NewServiceRepo(db *DB) *ServiceRepo {
	return &ServiceRepo{w: db.Writer, r: db.Reader}
}

const serviceColumns = `
	id, name, team_id, health_endpoint, metrics_endpoint, poll_interval_ms,
	is_active, is_external, schema_config, last_poll_success, last_poll_error,
	created_at, updated_at
`

// Insert adds a new registry row. A missing ID is generated; the poll
// interval is validated against the registry bounds.
func (r *ServiceRepo) Insert(ctx context.Context, svc model.Service) error {
	if err := model.ValidatePollInterval(svc.PollIntervalMS); err != nil {
		return err
	}
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO services (
			id, name, team_id, health_endpoint, metrics_endpoint, poll_interval_ms,
			is_active, is_external, schema_config, last_poll_success, last_poll_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.w.ExecContext(ctx, query,
		svc.ID, svc.Name, svc.TeamID, svc.HealthEndpoint, svc.MetricsEndpoint, svc.PollIntervalMS,
		boolToInt(svc.IsActive), boolToInt(svc.IsExternal), nullRaw(svc.SchemaConfig),
		nullBool(svc.LastPollSuccess), svc.LastPollError,
		fmtTime(svc.CreatedAt), fmtTime(svc.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert service %s: %w", svc.Name, err)
	}
	return nil
}

// Update rewrites the CRUD-owned columns of an existing registry row.
// The poll-result columns are owned by UpdatePollResult.
func (r *ServiceRepo) Update(ctx context.Context, svc model.Service) error {
	if err := model.ValidatePollInterval(svc.PollIntervalMS); err != nil {
		return err
	}

	const query = `
		UPDATE services SET
			name = ?,
			team_id = ?,
			health_endpoint = ?,
			metrics_endpoint = ?,
			poll_interval_ms = ?,
			is_active = ?,
			is_external = ?,
			schema_config = ?,
			updated_at = ?
		WHERE id = ?
	`

	res, err := r.w.ExecContext(ctx, query,
		svc.Name, svc.TeamID, svc.HealthEndpoint, svc.MetricsEndpoint, svc.PollIntervalMS,
		boolToInt(svc.IsActive), boolToInt(svc.IsExternal), nullRaw(svc.SchemaConfig),
		fmtTime(svc.UpdatedAt), svc.ID,
	)
	if err != nil {
		return fmt.Errorf("update service %s: %w", svc.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update service %s: no such service", svc.ID)
	}
	return nil
}

// Delete removes a registry row. Dependency and history rows cascade.
func (r *ServiceRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.w.ExecContext(ctx, `DELETE FROM services WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete service %s: %w", id, err)
	}
	return nil
}

// GetByID retrieves a single service. Returns nil, nil if it does not exist.
func (r *ServiceRepo) GetByID(ctx context.Context, id string) (*model.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE id = ?`

	svc, err := scanService(r.r.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", id, err)
	}
	return svc, nil
}

// ListAll returns every registry row ordered by name.
func (r *ServiceRepo) ListAll(ctx context.Context) ([]model.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services ORDER BY name`
	return r.queryServices(ctx, query)
}

// ListActiveNonExternal returns the services the scheduler tracks.
func (r *ServiceRepo) ListActiveNonExternal(ctx context.Context) ([]model.Service, error) {
	query := `SELECT ` + serviceColumns + ` FROM services WHERE is_active = 1 AND is_external = 0 ORDER BY name`
	return r.queryServices(ctx, query)
}

// UpdatePollResult persists the service-level poll outcome.
func (r *ServiceRepo) UpdatePollResult(ctx context.Context, id string, success bool, pollError string) error {
	const query = `
		UPDATE services SET last_poll_success = ?, last_poll_error = ? WHERE id = ?
	`
	var errVal any
	if pollError != "" {
		errVal = pollError
	}
	if _, err := r.w.ExecContext(ctx, query, boolToInt(success), errVal, id); err != nil {
		return fmt.Errorf("update poll result for service %s: %w", id, err)
	}
	return nil
}

func (r *ServiceRepo) queryServices(ctx context.Context, query string, args ...any) ([]model.Service, error) {
	rows, err := r.r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	var services []model.Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, *svc)
	}
	return services, rows.Err()
}

// rowScanner lets scan helpers work for both QueryRow and Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*model.Service, error) {
	var (
		svc                         model.Service
		isActive, isExternal        int
		schemaConfig, lastPollError sql.NullString
		lastPollSuccess             sql.NullInt64
		createdAt, updatedAt        string
	)

	err := row.Scan(
		&svc.ID, &svc.Name, &svc.TeamID, &svc.HealthEndpoint, &svc.MetricsEndpoint,
		&svc.PollIntervalMS, &isActive, &isExternal, &schemaConfig,
		&lastPollSuccess, &lastPollError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	svc.IsActive = isActive != 0
	svc.IsExternal = isExternal != 0
	if schemaConfig.Valid && schemaConfig.String != "" {
		svc.SchemaConfig = []byte(schemaConfig.String)
	}
	if lastPollSuccess.Valid {
		v := lastPollSuccess.Int64 != 0
		svc.LastPollSuccess = &v
	}
	if lastPollError.Valid {
		svc.LastPollError = lastPollError.String
	}
	svc.CreatedAt = parseTime(createdAt)
	svc.UpdatedAt = parseTime(updatedAt)

	return &svc, nil
}

func nullRaw(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return boolToInt(*b)
}

func nullStr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
