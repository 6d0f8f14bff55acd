//go:build integration

package migrations_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/getpup/fanout-orchestrator/pkg/migrations"
	"github.com/getpup/fanout-orchestrator/store/sqlstore"
)

// NOTE: Integration tests use string interpolation for SQL queries with validated
// configuration values. This is acceptable in test code as all config values are
// controlled by the test and have been validated by the migrations package.

// applyMigration executes the generated file statement by statement, so that
// drivers without multi-statement support can run it too.
func applyMigration(t *testing.T, db *sql.DB, path string) {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	for _, stmt := range strings.Split(string(content), ";\n") {
		lines := []string{}
		for _, line := range strings.Split(stmt, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), "--") {
				lines = append(lines, line)
			}
		}
		if q := strings.TrimSpace(strings.Join(lines, "\n")); q != "" {
			if _, err := db.Exec(q); err != nil {
				t.Fatalf("Failed to execute migration statement %q: %v", q, err)
			}
		}
	}
}

// verifyStateStore round-trips a value through the migrated table.
func verifyStateStore(t *testing.T, db *sql.DB, dialect sqlstore.Dialect, table string) {
	t.Helper()

	st := sqlstore.NewWithConfig(db, dialect, sqlstore.TableConfig{StateTable: table})
	ctx := context.Background()

	if err := st.Save(ctx, "it/report", []byte(`{"outcome":"SUCCEEDED"}`)); err != nil {
		t.Fatalf("Failed to save state: %v", err)
	}
	if err := st.Save(ctx, "it/report", []byte(`{"outcome":"FAILED"}`)); err != nil {
		t.Fatalf("Failed to overwrite state: %v", err)
	}

	got, err := st.Load(ctx, "it/report")
	if err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}
	if string(got) != `{"outcome":"FAILED"}` {
		t.Errorf("unexpected state value %s", got)
	}
}

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	config := migrations.Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "postgres_integration.sql",
		SchemaName:     "fanout_test",
		StateTable:     "state",
	}
	if err := migrations.GeneratePostgres(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	applyMigration(t, db, filepath.Join(config.OutputFolder, config.OutputFilename))
	defer func() {
		if _, err := db.Exec(fmt.Sprintf("DROP SCHEMA %s CASCADE", config.SchemaName)); err != nil {
			t.Logf("Warning: Failed to clean up schema: %v", err)
		}
	}()

	var exists bool
	err = db.QueryRow(fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_schema = '%s' AND table_name = '%s')",
		config.SchemaName, config.StateTable)).Scan(&exists)
	if err != nil {
		t.Fatalf("Failed to check state table: %v", err)
	}
	if !exists {
		t.Fatal("state table was not created")
	}

	verifyStateStore(t, db, sqlstore.DialectPostgres, config.TableName("postgres"))
}

func TestIntegrationMySQL(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set, skipping MySQL integration test")
	}

	config := migrations.Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "mysql_integration.sql",
		SchemaName:     "fanout_test",
		StateTable:     "state",
	}
	if err := migrations.GenerateMySQL(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer db.Close()
	// USE only applies to one connection.
	db.SetMaxOpenConns(1)

	applyMigration(t, db, filepath.Join(config.OutputFolder, config.OutputFilename))
	defer func() {
		if _, err := db.Exec(fmt.Sprintf("DROP DATABASE %s", config.SchemaName)); err != nil {
			t.Logf("Warning: Failed to clean up database: %v", err)
		}
	}()

	verifyStateStore(t, db, sqlstore.DialectMySQL, config.TableName("mysql"))
}

func TestIntegrationSQLite(t *testing.T) {
	config := migrations.Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "sqlite_integration.sql",
		SchemaName:     "fanout",
		StateTable:     "state",
	}
	if err := migrations.GenerateSQLite(&config); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite: %v", err)
	}
	defer db.Close()

	applyMigration(t, db, filepath.Join(config.OutputFolder, config.OutputFilename))

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", config.TableName("sqlite")).Scan(&name)
	if err != nil {
		t.Fatalf("state table was not created: %v", err)
	}

	verifyStateStore(t, db, sqlstore.DialectSQLite, config.TableName("sqlite"))
}
