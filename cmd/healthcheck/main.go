package main

import (
	"context"
	"os"
	"time"

	sqliteadapter "github.com/copperbox/depsera-sub003/internal/adapter/driven/sqlite"
)

// staleAfter is how long the daemon's heartbeat may lag before the probe
// fails. Three poll cycles at the default width plus slack.
const staleAfter = 2 * time.Minute

func main() {
	os.Exit(check())
}

func check() int {
	dbPath := os.Getenv("DEPSERA_DB_PATH")
	if dbPath == "" {
		dbPath = "depsera.db"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	db, err := sqliteadapter.NewDB(dbPath)
	if err != nil {
		return 1
	}
	defer db.Close()

	last, err := sqliteadapter.NewHeartbeatRepo(db).Last(ctx)
	if err != nil || last.IsZero() {
		return 1
	}
	if time.Since(last) > staleAfter {
		return 1
	}
	return 0
}
