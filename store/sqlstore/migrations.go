package sqlstore

import "fmt"

// TableConfig configures the table name used by the state store.
type TableConfig struct {
	// StateTable is the name of the key/value table holding ledger, status and report entries.
	StateTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		StateTable: "fanout_state",
	}
}

// MigrationUp returns the SQL to create the state table for the given dialect.
func MigrationUp(dialect Dialect, config TableConfig) string {
	switch dialect {
	case DialectMySQL:
		return fmt.Sprintf(`-- Create %s table
CREATE TABLE IF NOT EXISTS %s (
    state_key VARCHAR(512) PRIMARY KEY,
    state_value LONGBLOB NOT NULL,
    updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin;
`, config.StateTable, config.StateTable)
	case DialectSQLite:
		return fmt.Sprintf(`-- Create %s table
CREATE TABLE IF NOT EXISTS %s (
    state_key TEXT PRIMARY KEY,
    state_value BLOB NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`, config.StateTable, config.StateTable)
	default:
		return fmt.Sprintf(`-- Create %s table
CREATE TABLE IF NOT EXISTS %s (
    state_key TEXT PRIMARY KEY,
    state_value BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`, config.StateTable, config.StateTable)
	}
}

// MigrationDown returns the SQL to drop the state table.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop %s table
DROP TABLE IF EXISTS %s;
`, config.StateTable, config.StateTable)
}
