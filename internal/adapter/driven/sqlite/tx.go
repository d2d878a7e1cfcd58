package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/copperbox/depsera-sub003/internal/domain/port/driven"
)

// dbtx abstracts over *sql.DB and *sql.Tx so repo code is shared between
// direct access and transaction scope.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Compile-time interface satisfaction check.
var _ driven.TxManager = (*TxManager)(nil)

// TxManager implements driven.TxManager over the writer connection.
type TxManager struct {
	db *DB
}

// NewTxManager creates a TxManager backed by the given DB.
func NewTxManager(db *DB) *TxManager {
	return &TxManager{db: db}
}

// WithTransaction begins a transaction on the writer connection, hands
// transaction-scoped stores to fn, and commits when fn returns nil.
// Any error from fn or commit rolls the transaction back.
func (m *TxManager) WithTransaction(ctx context.Context, fn func(driven.Stores) error) error {
	tx, err := m.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stores := driven.Stores{
		Dependencies: &DependencyRepo{w: tx, r: tx},
		Aliases:      &AliasRepo{w: tx, r: tx},
		Latency:      &LatencyHistoryRepo{w: tx, r: tx},
		ErrorHistory: &ErrorHistoryRepo{w: tx, r: tx},
	}

	if err := fn(stores); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback after %v: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Time columns are stored as ISO-8601 strings in UTC.

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", s); err == nil {
		return t
	}
	return time.Time{}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
