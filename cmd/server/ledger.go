package main

import (
	"context"
	"fmt"
	"log/slog"

	"landregistry/internal/platform/config"
	"landregistry/internal/platform/sqldb"
	"landregistry/internal/registry/store"
	httptransport "landregistry/internal/transport/http"
)

// openLedger builds the configured ledger backend and its health check.
func openLedger(ctx context.Context, cfg config.LedgerConfig, log *slog.Logger) (store.Ledger, httptransport.HealthCheck, error) {
	var (
		dialect sqldb.Dialect
		dsn     string
	)
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory ledger; state is lost on restart")
		return store.NewInMemoryLedger(), func(context.Context) error { return nil }, nil
	case config.BackendSQLite:
		dialect, dsn = sqldb.SQLite, cfg.SQLitePath
	case config.BackendPostgres:
		dialect, dsn = sqldb.Postgres, cfg.PostgresDSN
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}

	db, err := sqldb.Open(ctx, dialect, dsn)
	if err != nil {
		return nil, nil, err
	}
	ledger, err := store.NewSQLLedger(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log.Info("ledger ready", "backend", cfg.Backend)
	return ledger, ledger.Ping, nil
}
