package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/getpup/fanout-orchestrator/store"
)

// Store is a SQL implementation of StateStore.
// It keeps every entry as one row keyed by state_key.
type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
}

// New creates a new SQL store with the default table name.
func New(db *sql.DB, dialect Dialect) *Store {
	return NewWithConfig(db, dialect, DefaultTableConfig())
}

// NewWithConfig creates a new SQL store with a custom table name.
func NewWithConfig(db *sql.DB, dialect Dialect, config TableConfig) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		table:   config.StateTable,
	}
}

// Load returns the value stored under key.
// Returns store.ErrNotFound if the key does not exist.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, store.ErrEmptyKey
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, s.dialect.selectQuery(s.table), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", key, err)
	}

	return value, nil
}

// Save inserts or replaces the value stored under key.
func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return store.ErrEmptyKey
	}
	if value == nil {
		value = []byte{}
	}

	result, err := s.db.ExecContext(ctx, s.dialect.upsertQuery(s.table), key, value)
	if err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}

	// MySQL reports 0 when an upsert rewrites identical bytes.
	if rowsAffected == 0 && s.dialect != DialectMySQL {
		return fmt.Errorf("failed to save %q: no rows affected", key)
	}

	return nil
}
