package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/getpup/pupsourcing/es"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// OpenConfig configures Open.
type OpenConfig struct {
	// Dialect selects the database driver (required).
	Dialect Dialect

	// DSN is the driver-specific data source name (required).
	DSN string

	// PingTimeout bounds how long Open keeps retrying the initial ping (default: 30s).
	PingTimeout time.Duration

	// Migrate runs MigrationUp after connecting.
	Migrate bool

	// Table overrides the state table name.
	Table TableConfig

	// Logger is for observability (optional).
	Logger es.Logger
}

// Open connects to the database, retries the initial ping with exponential
// backoff and returns a ready Store.
func Open(ctx context.Context, cfg OpenConfig) (*Store, *sql.DB, error) {
	if cfg.PingTimeout == 0 {
		cfg.PingTimeout = 30 * time.Second
	}
	if cfg.Table.StateTable == "" {
		cfg.Table = DefaultTableConfig()
	}

	db, err := sql.Open(cfg.Dialect.DriverName(), cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s database: %w", cfg.Dialect, err)
	}

	if cfg.Dialect == DialectSQLite {
		// A single connection keeps :memory: databases shared and serializes writers.
		db.SetMaxOpenConns(1)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.PingTimeout

	err = backoff.RetryNotify(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		if cfg.Logger != nil {
			cfg.Logger.Info(ctx, "database not ready, retrying", "dialect", string(cfg.Dialect), "wait", wait, "error", err)
		}
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to ping %s database: %w", cfg.Dialect, err)
	}

	if cfg.Migrate {
		if _, err := db.ExecContext(ctx, MigrationUp(cfg.Dialect, cfg.Table)); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to migrate state table: %w", err)
		}
	}

	return NewWithConfig(db, cfg.Dialect, cfg.Table), db, nil
}
