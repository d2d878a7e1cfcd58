// Package sqlite implements the driven store ports on SQLite.
package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

// connPragmas are applied to every connection. WAL keeps the lone writer
// from starving readers during poll-cycle commits; foreign keys must be ON
// for service deletion to cascade into dependency and history rows.
var connPragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
	"cache_size(-64000)",
}

// Pool sizes. A single writer connection sidesteps SQLITE_BUSY between
// concurrent poll transactions; readers get a small pool of their own.
const (
	writerPoolSize = 1
	readerPoolSize = 4
)

// DB is the split connection pair the repos run on: Writer carries every
// mutation (and all transactions), Reader serves queries outside them.
type DB struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

// NewDB opens the writer and reader pools against dbPath, verifying both
// before returning.
func NewDB(dbPath string) (*DB, error) {
	dsn := dsnFor(dbPath)

	writer, err := openPool(dsn, writerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}

	reader, err := openPool(dsn, readerPoolSize)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &DB{Writer: writer, Reader: reader, path: dbPath}, nil
}

// dsnFor renders the file DSN with each connection pragma as a _pragma
// query parameter.
func dsnFor(dbPath string) string {
	params := make([]string, len(connPragmas))
	for i, pragma := range connPragmas {
		params[i] = "_pragma=" + pragma
	}
	return "file:" + dbPath + "?" + strings.Join(params, "&")
}

func openPool(dsn string, size int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(size)

	if err := pool.Ping(); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Close shuts both pools down.
func (db *DB) Close() error {
	return errors.Join(db.Reader.Close(), db.Writer.Close())
}

// schemaFS embeds the migration set so the binary carries its own schema.
//
//go:embed migrations/*.sql
var schemaFS embed.FS

// Migrate brings the schema up to date from the embedded migration set,
// running against the writer connection. It is safe on every startup:
// already-applied versions are skipped.
func (db *DB) Migrate() error {
	src, err := iofs.New(schemaFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded schema: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.Writer, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("bind schema driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply schema migrations: %w", err)
	}
	return nil
}
