package sqlstore

import (
	"fmt"
	"strings"
)

// Dialect names a supported SQL database.
type Dialect string

const (
	// DialectPostgres targets PostgreSQL through github.com/lib/pq.
	DialectPostgres Dialect = "postgres"

	// DialectMySQL targets MySQL/MariaDB through github.com/go-sql-driver/mysql.
	DialectMySQL Dialect = "mysql"

	// DialectSQLite targets SQLite through github.com/mattn/go-sqlite3.
	DialectSQLite Dialect = "sqlite"
)

// ParseDialect returns the Dialect for a name, accepting common aliases.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, nil
	case "mysql", "mariadb":
		return DialectMySQL, nil
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	default:
		return "", fmt.Errorf("unsupported dialect %q", name)
	}
}

// DriverName returns the database/sql driver name registered for the dialect.
func (d Dialect) DriverName() string {
	switch d {
	case DialectMySQL:
		return "mysql"
	case DialectSQLite:
		return "sqlite3"
	default:
		return "postgres"
	}
}

func (d Dialect) selectQuery(table string) string {
	if d == DialectPostgres {
		return fmt.Sprintf(`SELECT state_value FROM %s WHERE state_key = $1`, table)
	}
	return fmt.Sprintf(`SELECT state_value FROM %s WHERE state_key = ?`, table)
}

func (d Dialect) upsertQuery(table string) string {
	switch d {
	case DialectMySQL:
		return fmt.Sprintf(`
		INSERT INTO %s (state_key, state_value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP(6))
		ON DUPLICATE KEY UPDATE state_value = VALUES(state_value), updated_at = CURRENT_TIMESTAMP(6)
	`, table)
	case DialectSQLite:
		return fmt.Sprintf(`
		INSERT INTO %s (state_key, state_value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT (state_key) DO UPDATE SET state_value = excluded.state_value, updated_at = excluded.updated_at
	`, table)
	default:
		return fmt.Sprintf(`
		INSERT INTO %s (state_key, state_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (state_key) DO UPDATE SET state_value = EXCLUDED.state_value, updated_at = NOW()
	`, table)
	}
}
