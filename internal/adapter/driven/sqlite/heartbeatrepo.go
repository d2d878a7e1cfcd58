package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// HeartbeatRepo persists a single liveness row the daemon touches each
// cycle. The container healthcheck reads it and fails when it goes stale.
type HeartbeatRepo struct {
	w dbtx
	r dbtx
}

// NewHeartbeatRepo creates a HeartbeatRepo backed by the given DB.
func NewHeartbeatRepo(db *DB) *HeartbeatRepo {
	return &HeartbeatRepo{w: db.Writer, r: db.Reader}
}

// Touch records the current time as the latest heartbeat.
func (r *HeartbeatRepo) Touch(ctx context.Context, now time.Time) error {
	const query = `
		INSERT INTO heartbeat (id, beat_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET beat_at = excluded.beat_at
	`
	if _, err := r.w.ExecContext(ctx, query, fmtTime(now)); err != nil {
		return fmt.Errorf("touch heartbeat: %w", err)
	}
	return nil
}

// Last returns the most recent heartbeat time, or the zero time when the
// daemon has never beaten.
func (r *HeartbeatRepo) Last(ctx context.Context) (time.Time, error) {
	var beatAt string
	err := r.r.QueryRowContext(ctx, `SELECT beat_at FROM heartbeat WHERE id = 1`).Scan(&beatAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read heartbeat: %w", err)
	}
	return parseTime(beatAt), nil
}
