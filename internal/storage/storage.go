// Package storage persists UCI engine options across process runs using an
// embedded BadgerDB, so a GUI that sends "setoption" once doesn't need to
// resend it on every launch.
package storage

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"
)

const keyEngineOptions = "engine_options"

// EngineOptions holds the subset of UCI options Barbel exposes that are
// worth remembering between runs.
type EngineOptions struct {
	HashMB int  `json:"hash_mb"`
	Debug  bool `json:"debug"`
}

// DefaultEngineOptions returns the options a fresh engine starts with.
func DefaultEngineOptions() *EngineOptions {
	return &EngineOptions{
		HashMB: 64,
		Debug:  false,
	}
}

// Storage wraps BadgerDB for persistent storage of engine options.
type Storage struct {
	db *badger.DB
}

// NewStorage opens (creating if necessary) the options database in the
// platform's standard application data directory.
func NewStorage() (*Storage, error) {
	dbDir, err := GetDatabaseDir()
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = nil // Badger's internal logger is noisy on stdout/stderr,
	// which the UCI protocol reserves for engine output.

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

// Close closes the database.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveOptions persists the current engine options.
func (s *Storage) SaveOptions(opts *EngineOptions) error {
	data, err := json.Marshal(opts)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyEngineOptions), data)
	})
}

// LoadOptions loads previously persisted engine options, returning defaults
// if none have been saved yet.
func (s *Storage) LoadOptions() (*EngineOptions, error) {
	opts := DefaultEngineOptions()

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyEngineOptions))
		if err == badger.ErrKeyNotFound {
			return nil // Use defaults
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, opts)
		})
	})

	return opts, err
}
