package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// validateIdentifier ensures an identifier contains only safe characters for SQL.
// Returns an error if the identifier contains characters that could be used for SQL injection.
func validateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := validateIdentifier(config.SchemaName, "SchemaName"); err != nil {
		return err
	}
	if err := validateIdentifier(config.StateTable, "StateTable"); err != nil {
		return err
	}
	return nil
}

// Config configures migration generation for the orchestrator state table.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// SchemaName is the database schema name (PostgreSQL) or database name (MySQL)
	// For SQLite, table name prefixes are used instead of schemas (e.g., fanout_state)
	SchemaName string

	// StateTable is the name of the key/value state table
	StateTable string
}

// DefaultConfig returns the default configuration for orchestrator migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_fanout_state.sql", timestamp),
		SchemaName:     "fanout",
		StateTable:     "state",
	}
}

// TableName returns the table name the state store must be configured with
// for the given adapter ("postgres", "mysql" or "sqlite").
func (c Config) TableName(adapter string) string {
	if adapter == "sqlite" {
		return c.SchemaName + "_" + c.StateTable
	}
	return c.SchemaName + "." + c.StateTable
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return generate(config, generatePostgresSQL)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return generate(config, generateMySQLSQL)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return generate(config, generateSQLiteSQL)
}

func generate(config *Config, render func(*Config) string) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure output folder exists
	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	sql := render(config)

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

func generatePostgresSQL(config *Config) string {
	table := config.TableName("postgres")

	return fmt.Sprintf(`-- Fan-out Orchestrator State Migration
-- Generated: %s
-- Database: PostgreSQL

-- Create schema for orchestrator state
CREATE SCHEMA IF NOT EXISTS %s;

-- State table holds one row per job entry:
--   <prefix>/ledger/<slot>    launch records, written once
--   <prefix>/status/<handle>  last observed run status
--   <prefix>/report           final job report
CREATE TABLE IF NOT EXISTS %s (
    state_key TEXT PRIMARY KEY,
    state_value BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Index for observability
CREATE INDEX IF NOT EXISTS idx_%s_updated
    ON %s (updated_at DESC);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		table,
		config.StateTable, table,
	)
}

func generateMySQLSQL(config *Config) string {
	return fmt.Sprintf(`-- Fan-out Orchestrator State Migration
-- Generated: %s
-- Database: MySQL/MariaDB

-- Create database for orchestrator state if it doesn't exist
-- In MySQL, we use a separate database instead of schema
CREATE DATABASE IF NOT EXISTS %s
    DEFAULT CHARACTER SET utf8mb4
    DEFAULT COLLATE utf8mb4_bin;

-- Switch to orchestrator database
USE %s;

-- State table holds one row per job entry:
--   <prefix>/ledger/<slot>    launch records, written once
--   <prefix>/status/<handle>  last observed run status
--   <prefix>/report           final job report
CREATE TABLE IF NOT EXISTS %s (
    state_key VARCHAR(512) PRIMARY KEY,
    state_value LONGBLOB NOT NULL,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;

-- Index for observability
CREATE INDEX idx_%s_updated
    ON %s (updated_at DESC);
`,
		time.Now().Format(time.RFC3339),
		config.SchemaName,
		config.SchemaName,
		config.StateTable,
		config.StateTable, config.StateTable,
	)
}

func generateSQLiteSQL(config *Config) string {
	// SQLite doesn't support schemas, so we use table name prefixes instead
	table := config.TableName("sqlite")

	return fmt.Sprintf(`-- Fan-out Orchestrator State Migration
-- Generated: %s
-- Database: SQLite

-- State table holds one row per job entry:
--   <prefix>/ledger/<slot>    launch records, written once
--   <prefix>/status/<handle>  last observed run status
--   <prefix>/report           final job report
CREATE TABLE IF NOT EXISTS %s (
    state_key TEXT PRIMARY KEY,
    state_value BLOB NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

-- Index for observability
CREATE INDEX IF NOT EXISTS idx_%s_updated
    ON %s (updated_at DESC);
`,
		time.Now().Format(time.RFC3339),
		table,
		table, table,
	)
}
