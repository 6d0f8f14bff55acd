//go:build integration

package integration_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/getpup/fanout-orchestrator/store"
	"github.com/getpup/fanout-orchestrator/store/sqlstore"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openFromEnv returns a database connection for the dialect, reading its DSN
// from envVar and skipping the test if it is not set.
func openFromEnv(t *testing.T, dialect sqlstore.Dialect, envVar string) *sql.DB {
	t.Helper()

	dsn := os.Getenv(envVar)
	if dsn == "" {
		t.Skipf("%s not set, skipping integration test", envVar)
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

// setupTable recreates the state table so every test starts clean.
func setupTable(t *testing.T, db *sql.DB, dialect sqlstore.Dialect) {
	t.Helper()

	config := sqlstore.DefaultTableConfig()

	if _, err := db.Exec(sqlstore.MigrationDown(config)); err != nil {
		t.Fatalf("failed to drop state table: %v", err)
	}
	if _, err := db.Exec(sqlstore.MigrationUp(dialect, config)); err != nil {
		t.Fatalf("failed to create state table: %v", err)
	}
}

func runStoreSuite(t *testing.T, s store.StateStore) {
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := s.Load(ctx, "fanout/report")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("save and overwrite", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "fanout/status/run-1", []byte(`{"state":"RUNNING"}`)))
		require.NoError(t, s.Save(ctx, "fanout/status/run-1", []byte(`{"state":"FAILED"}`)))

		value, err := s.Load(ctx, "fanout/status/run-1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"state":"FAILED"}`, string(value))
	})

	t.Run("concurrent writers", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Save(ctx, fmt.Sprintf("fanout/ledger/%d", i), []byte(`{}`)))
			}(i)
		}
		wg.Wait()

		for i := 0; i < 20; i++ {
			_, err := s.Load(ctx, fmt.Sprintf("fanout/ledger/%d", i))
			assert.NoError(t, err)
		}
	})
}

func TestPostgresStore(t *testing.T) {
	db := openFromEnv(t, sqlstore.DialectPostgres, "DATABASE_URL")
	defer db.Close()
	setupTable(t, db, sqlstore.DialectPostgres)

	runStoreSuite(t, sqlstore.New(db, sqlstore.DialectPostgres))
}

func TestMySQLStore(t *testing.T) {
	db := openFromEnv(t, sqlstore.DialectMySQL, "MYSQL_DSN")
	defer db.Close()
	setupTable(t, db, sqlstore.DialectMySQL)

	runStoreSuite(t, sqlstore.New(db, sqlstore.DialectMySQL))
}
