package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/copperbox/depsera-sub003/internal/adapter/driven/healthhttp"
	sqliteadapter "github.com/copperbox/depsera-sub003/internal/adapter/driven/sqlite"
	"github.com/copperbox/depsera-sub003/internal/application"
	"github.com/copperbox/depsera-sub003/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
	slog.Info("config loaded",
		"db_path", cfg.DBPath,
		"poll_cycle", cfg.PollCycle,
		"max_concurrent_per_host", cfg.MaxConcurrentPerHost,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on the writer connection.
	if err := db.Migrate(); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	serviceStore := sqliteadapter.NewServiceRepo(db)
	pollHistoryStore := sqliteadapter.NewPollHistoryRepo(db)
	latencyStore := sqliteadapter.NewLatencyHistoryRepo(db)
	errorHistoryStore := sqliteadapter.NewErrorHistoryRepo(db)
	heartbeat := sqliteadapter.NewHeartbeatRepo(db)
	txManager := sqliteadapter.NewTxManager(db)
	fetcher := healthhttp.NewClient(cfg.HTTPTimeout, application.ValidateEndpointURL)

	// 6. Create and start the polling service.
	pollSvc := application.NewHealthPollingService(
		application.PollingConfig{
			Cycle:                cfg.PollCycle,
			MaxConcurrentPerHost: cfg.MaxConcurrentPerHost,
		},
		serviceStore,
		pollHistoryStore,
		txManager,
		fetcher,
		&application.LoggingSuggestionNotifier{},
	)
	if err := pollSvc.StartAll(ctx); err != nil {
		return err
	}

	// 7. Liveness heartbeat for the container healthcheck.
	go func() {
		ticker := time.NewTicker(cfg.PollCycle)
		defer ticker.Stop()
		for {
			if err := heartbeat.Touch(ctx, time.Now()); err != nil && ctx.Err() == nil {
				slog.Error("heartbeat failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	// 8. Daily history pruning.
	go pruneLoop(ctx, latencyStore, errorHistoryStore, pollHistoryStore)

	slog.Info("depsera started", "poll_cycle", cfg.PollCycle)

	// 9. Wait for shutdown signal, then drain.
	<-ctx.Done()
	slog.Info("shutting down")
	pollSvc.Shutdown()
	slog.Info("shutdown complete")
	return nil
}

// historyRetention bounds how much append-only history is kept.
const historyRetention = 90 * 24 * time.Hour

type pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// pruneLoop prunes aged history rows once per day. Failures are logged and
// retried on the next tick.
func pruneLoop(ctx context.Context, pruners ...pruner) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-historyRetention)
			var pruned int64
			for _, p := range pruners {
				n, err := p.DeleteOlderThan(ctx, cutoff)
				if err != nil {
					slog.Error("history prune failed", "error", err)
					continue
				}
				pruned += n
			}
			slog.Info("history pruned", "rows", pruned, "cutoff", cutoff.Format(time.RFC3339))
		}
	}
}
