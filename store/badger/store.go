package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/getpup/fanout-orchestrator/store"
)

// Store is an embedded, file-backed implementation of StateStore on BadgerDB.
// It lets a single orchestrator process resume after a crash without an
// external database.
type Store struct {
	db     *badger.DB
	prefix string
}

// Config configures the Badger store.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory (tests only).
	InMemory bool

	// KeyPrefix namespaces keys inside a shared database (optional).
	KeyPrefix string
}

// Open opens or creates a Badger database and wraps it in a Store.
// The caller must Close the returned store.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, errors.New("badger path is required")
	}

	db, err := badger.Open(options(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return New(db, cfg.KeyPrefix), nil
}

// options syncs every write to disk before it returns, so a saved ledger
// entry survives a power loss and not only a process crash.
func options(cfg Config) badger.Options {
	if cfg.InMemory {
		return badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	return badger.DefaultOptions(cfg.Path).WithSyncWrites(true).WithLogger(nil)
}

// New wraps an already opened Badger database.
func New(db *badger.DB, keyPrefix string) *Store {
	return &Store{
		db:     db,
		prefix: keyPrefix,
	}
}

// Load returns the value stored under key.
// Returns store.ErrNotFound if the key does not exist.
func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, store.ErrEmptyKey
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", key, err)
	}

	return value, nil
}

// Save stores value under key in its own transaction.
func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return store.ErrEmptyKey
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(key), append([]byte(nil), value...))
	})
	if err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) key(key string) []byte {
	return []byte(s.prefix + key)
}
