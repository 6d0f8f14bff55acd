package migrations

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func generateAndRead(t *testing.T, generate func(*Config) error, config Config) string {
	t.Helper()

	if err := generate(&config); err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(config.OutputFolder, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read generated file: %v", err)
	}
	return string(content)
}

func TestGeneratePostgres(t *testing.T) {
	sql := generateAndRead(t, GeneratePostgres, Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "test_migration.sql",
		SchemaName:     "fanout",
		StateTable:     "state",
	})

	required := []string{
		"CREATE SCHEMA IF NOT EXISTS fanout",
		"CREATE TABLE IF NOT EXISTS fanout.state",
		"state_key TEXT PRIMARY KEY",
		"state_value BYTEA NOT NULL",
		"updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		"CREATE INDEX IF NOT EXISTS idx_state_updated",
		"ON fanout.state (updated_at DESC)",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
}

func TestGeneratePostgres_CustomNames(t *testing.T) {
	sql := generateAndRead(t, GeneratePostgres, Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "custom.sql",
		SchemaName:     "jobs",
		StateTable:     "crawl_state",
	})

	if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS jobs.crawl_state") {
		t.Error("Missing custom state table")
	}
	if strings.Contains(sql, "fanout") {
		t.Error("Default names leaked into custom migration")
	}
}

func TestGenerateMySQL(t *testing.T) {
	sql := generateAndRead(t, GenerateMySQL, Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "mysql.sql",
		SchemaName:     "fanout",
		StateTable:     "state",
	})

	required := []string{
		"CREATE DATABASE IF NOT EXISTS fanout",
		"USE fanout;",
		"CREATE TABLE IF NOT EXISTS state",
		"state_key VARCHAR(512) PRIMARY KEY",
		"state_value LONGBLOB NOT NULL",
		"ENGINE=InnoDB",
		"CREATE INDEX idx_state_updated",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
}

func TestGenerateSQLite(t *testing.T) {
	sql := generateAndRead(t, GenerateSQLite, Config{
		OutputFolder:   t.TempDir(),
		OutputFilename: "sqlite.sql",
		SchemaName:     "fanout",
		StateTable:     "state",
	})

	required := []string{
		"CREATE TABLE IF NOT EXISTS fanout_state",
		"state_key TEXT PRIMARY KEY",
		"state_value BLOB NOT NULL",
		"CREATE INDEX IF NOT EXISTS idx_fanout_state_updated",
	}
	for _, s := range required {
		if !strings.Contains(sql, s) {
			t.Errorf("migration missing required string: %s", s)
		}
	}
	if strings.Contains(sql, "CREATE SCHEMA") {
		t.Error("SQLite migration must not create a schema")
	}
}

func TestGenerate_CreatesOutputFolder(t *testing.T) {
	folder := filepath.Join(t.TempDir(), "nested", "migrations")
	config := Config{OutputFolder: folder, OutputFilename: "init.sql", SchemaName: "fanout", StateTable: "state"}

	if err := GenerateSQLite(&config); err != nil {
		t.Fatalf("GenerateSQLite failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(folder, "init.sql")); err != nil {
		t.Fatalf("migration file not created: %v", err)
	}
}

func TestGenerate_RejectsUnsafeIdentifiers(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"empty schema", Config{SchemaName: "", StateTable: "state"}},
		{"empty table", Config{SchemaName: "fanout", StateTable: ""}},
		{"injection in schema", Config{SchemaName: "fanout; DROP TABLE x", StateTable: "state"}},
		{"leading digit", Config{SchemaName: "fanout", StateTable: "1state"}},
		{"dotted table", Config{SchemaName: "fanout", StateTable: "a.b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.OutputFolder = t.TempDir()
			tt.config.OutputFilename = "x.sql"

			for _, generate := range []func(*Config) error{GeneratePostgres, GenerateMySQL, GenerateSQLite} {
				if err := generate(&tt.config); err == nil {
					t.Error("expected validation error")
				}
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.OutputFolder != "migrations" {
		t.Errorf("unexpected output folder %q", config.OutputFolder)
	}
	if !strings.HasSuffix(config.OutputFilename, "_init_fanout_state.sql") {
		t.Errorf("unexpected filename %q", config.OutputFilename)
	}
	if got := config.TableName("postgres"); got != "fanout.state" {
		t.Errorf("unexpected postgres table %q", got)
	}
	if got := config.TableName("sqlite"); got != "fanout_state" {
		t.Errorf("unexpected sqlite table %q", got)
	}
}
