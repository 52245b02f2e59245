// Package badgerstore implements types.KVStore on BadgerDB, for durable cache
// entries kept outside the record database.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// DirName is the directory created under the data directory.
const DirName = "cache"

// Store is a types.KVStore backed by a badger database.
type Store struct {
	db *badger.DB
}

// Open opens or creates the badger database in dir. An empty dir opens an
// in-memory database.
func Open(dir string, log zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &Store{db: db}, nil
}

// Get implements types.KVStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return types.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Set implements types.KVStore.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	})
}

// Delete implements types.KVStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}

// Scan implements types.KVStore. Matching entries are copied out of the read
// transaction before fn runs, so fn may write to the store.
func (s *Store) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	type entry struct {
		key   string
		value []byte
	}
	var entries []entry

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s: %w", item.Key(), err)
			}
			entries = append(entries, entry{key: string(item.KeyCopy(nil)), value: val})
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %q: %w", prefix, err)
	}

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

// Close implements types.KVStore.
func (s *Store) Close() error {
	return s.db.Close()
}

// badgerLogger routes badger's internal logging through zerolog. Badger's
// info output is demoted to debug.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any)   { l.log.Error().Msgf(trim(f), v...) }
func (l badgerLogger) Warningf(f string, v ...any) { l.log.Warn().Msgf(trim(f), v...) }
func (l badgerLogger) Infof(f string, v ...any)    { l.log.Debug().Msgf(trim(f), v...) }
func (l badgerLogger) Debugf(f string, v ...any)   { l.log.Trace().Msgf(trim(f), v...) }

func trim(f string) string { return strings.TrimSuffix(f, "\n") }
