package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/copperbox/depsera-sub003/internal/domain/model"
	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.LatencyHistoryStore = (*LatencyHistoryRepo)(nil)
	_ driven.ErrorHistoryStore   = (*ErrorHistoryRepo)(nil)
	_ driven.PollHistoryStore    = (*PollHistoryRepo)(nil)
)

// LatencyHistoryRepo is the SQLite implementation of the LatencyHistoryStore port.
type LatencyHistoryRepo struct {
	w dbtx
	r dbtx
}

// NewLatencyHistoryRepo creates a LatencyHistoryRepo backed by the given DB.
func NewLatencyHistoryRepo(db *DB) *LatencyHistoryRepo {
	return &LatencyHistoryRepo{w: db.Writer, r: db.Reader}
}

// Append adds a latency sample. Samples with latency_ms <= 0 are rejected.
func (r *LatencyHistoryRepo) Append(ctx context.Context, sample model.LatencySample) error {
	if sample.LatencyMS <= 0 {
		return fmt.Errorf("latency sample for %s must be positive, got %d", sample.DependencyID, sample.LatencyMS)
	}
	if sample.ID == "" {
		sample.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO dependency_latency_history (id, dependency_id, latency_ms, recorded_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.w.ExecContext(ctx, query, sample.ID, sample.DependencyID, sample.LatencyMS, fmtTime(sample.RecordedAt))
	if err != nil {
		return fmt.Errorf("append latency sample for %s: %w", sample.DependencyID, err)
	}
	return nil
}

// ListRecent returns up to limit samples for a dependency, newest first.
func (r *LatencyHistoryRepo) ListRecent(ctx context.Context, dependencyID string, limit int) ([]model.LatencySample, error) {
	const query = `
		SELECT id, dependency_id, latency_ms, recorded_at
		FROM dependency_latency_history
		WHERE dependency_id = ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`

	rows, err := r.r.QueryContext(ctx, query, dependencyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list latency samples for %s: %w", dependencyID, err)
	}
	defer rows.Close()

	var samples []model.LatencySample
	for rows.Next() {
		var (
			s          model.LatencySample
			recordedAt string
		)
		if err := rows.Scan(&s.ID, &s.DependencyID, &s.LatencyMS, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan latency sample: %w", err)
		}
		s.RecordedAt = parseTime(recordedAt)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// AverageSince returns the mean latency and sample count since the cutoff.
func (r *LatencyHistoryRepo) AverageSince(ctx context.Context, dependencyID string, since time.Time) (float64, int, error) {
	const query = `
		SELECT COALESCE(AVG(latency_ms), 0), COUNT(*)
		FROM dependency_latency_history
		WHERE dependency_id = ? AND recorded_at >= ?
	`

	var (
		avg   float64
		count int
	)
	err := r.r.QueryRowContext(ctx, query, dependencyID, fmtTime(since)).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("average latency for %s: %w", dependencyID, err)
	}
	return avg, count, nil
}

// DeleteOlderThan prunes samples recorded before the cutoff.
func (r *LatencyHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.w.ExecContext(ctx, `DELETE FROM dependency_latency_history WHERE recorded_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune latency history: %w", err)
	}
	return res.RowsAffected()
}

// ErrorHistoryRepo is the SQLite implementation of the ErrorHistoryStore port.
type ErrorHistoryRepo struct {
	w dbtx
	r dbtx
}

// NewErrorHistoryRepo creates an ErrorHistoryRepo backed by the given DB.
func NewErrorHistoryRepo(db *DB) *ErrorHistoryRepo {
	return &ErrorHistoryRepo{w: db.Writer, r: db.Reader}
}

// Latest returns the most recent entry for a dependency, or nil, nil when
// no history exists.
func (r *ErrorHistoryRepo) Latest(ctx context.Context, dependencyID string) (*model.ErrorHistoryEntry, error) {
	const query = `
		SELECT id, dependency_id, error, error_message, recorded_at
		FROM dependency_error_history
		WHERE dependency_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`

	entry, err := scanErrorHistoryEntry(r.r.QueryRowContext(ctx, query, dependencyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest error history for %s: %w", dependencyID, err)
	}
	return entry, nil
}

// Append adds an error-history entry.
func (r *ErrorHistoryRepo) Append(ctx context.Context, entry model.ErrorHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO dependency_error_history (id, dependency_id, error, error_message, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.w.ExecContext(ctx, query,
		entry.ID, entry.DependencyID, nullRaw(entry.Error), nullStr(entry.ErrorMessage), fmtTime(entry.RecordedAt))
	if err != nil {
		return fmt.Errorf("append error history for %s: %w", entry.DependencyID, err)
	}
	return nil
}

// ListByDependency returns up to limit entries for a dependency, newest first.
func (r *ErrorHistoryRepo) ListByDependency(ctx context.Context, dependencyID string, limit int) ([]model.ErrorHistoryEntry, error) {
	const query = `
		SELECT id, dependency_id, error, error_message, recorded_at
		FROM dependency_error_history
		WHERE dependency_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.r.QueryContext(ctx, query, dependencyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list error history for %s: %w", dependencyID, err)
	}
	defer rows.Close()

	var entries []model.ErrorHistoryEntry
	for rows.Next() {
		entry, err := scanErrorHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan error history entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// DeleteOlderThan prunes entries recorded before the cutoff.
func (r *ErrorHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.w.ExecContext(ctx, `DELETE FROM dependency_error_history WHERE recorded_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune error history: %w", err)
	}
	return res.RowsAffected()
}

func scanErrorHistoryEntry(row rowScanner) (*model.ErrorHistoryEntry, error) {
	var (
		entry               model.ErrorHistoryEntry
		errJSON, errMessage sql.NullString
		recordedAt          string
	)
	if err := row.Scan(&entry.ID, &entry.DependencyID, &errJSON, &errMessage, &recordedAt); err != nil {
		return nil, err
	}
	if errJSON.Valid {
		entry.Error = []byte(errJSON.String)
	}
	if errMessage.Valid {
		entry.ErrorMessage = &errMessage.String
	}
	entry.RecordedAt = parseTime(recordedAt)
	return &entry, nil
}

// PollHistoryRepo is the SQLite implementation of the PollHistoryStore port.
type PollHistoryRepo struct {
	w dbtx
	r dbtx
}

// NewPollHistoryRepo creates a PollHistoryRepo backed by the given DB.
func NewPollHistoryRepo(db *DB) *PollHistoryRepo {
	return &PollHistoryRepo{w: db.Writer, r: db.Reader}
}

// Latest returns the most recent entry for a service, or nil, nil when no
// history exists.
func (r *PollHistoryRepo) Latest(ctx context.Context, serviceID string) (*model.ServicePollHistoryEntry, error) {
	const query = `
		SELECT id, service_id, error, recorded_at
		FROM service_poll_history
		WHERE service_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`

	entry, err := scanPollHistoryEntry(r.r.QueryRowContext(ctx, query, serviceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest poll history for %s: %w", serviceID, err)
	}
	return entry, nil
}

// Append adds a service-poll-history entry.
func (r *PollHistoryRepo) Append(ctx context.Context, entry model.ServicePollHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO service_poll_history (id, service_id, error, recorded_at)
		VALUES (?, ?, ?, ?)
	`
	_, err := r.w.ExecContext(ctx, query, entry.ID, entry.ServiceID, nullStr(entry.Error), fmtTime(entry.RecordedAt))
	if err != nil {
		return fmt.Errorf("append poll history for %s: %w", entry.ServiceID, err)
	}
	return nil
}

// ListByService returns up to limit entries for a service, newest first.
func (r *PollHistoryRepo) ListByService(ctx context.Context, serviceID string, limit int) ([]model.ServicePollHistoryEntry, error) {
	const query = `
		SELECT id, service_id, error, recorded_at
		FROM service_poll_history
		WHERE service_id = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.r.QueryContext(ctx, query, serviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list poll history for %s: %w", serviceID, err)
	}
	defer rows.Close()

	var entries []model.ServicePollHistoryEntry
	for rows.Next() {
		entry, err := scanPollHistoryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan poll history entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// DeleteOlderThan prunes entries recorded before the cutoff.
func (r *PollHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.w.ExecContext(ctx, `DELETE FROM service_poll_history WHERE recorded_at < ?`, fmtTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune poll history: %w", err)
	}
	return res.RowsAffected()
}

func scanPollHistoryEntry(row rowScanner) (*model.ServicePollHistoryEntry, error) {
	var (
		entry      model.ServicePollHistoryEntry
		errMessage sql.NullString
		recordedAt string
	)
	if err := row.Scan(&entry.ID, &entry.ServiceID, &errMessage, &recordedAt); err != nil {
		return nil, err
	}
	if errMessage.Valid {
		entry.Error = &errMessage.String
	}
	entry.RecordedAt = parseTime(recordedAt)
	return &entry, nil
}
