package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/mesh-intelligence/larder/pkg/types"
)

const kvTable = "kv_entries"

func createKVDDL(d dialect) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (cache_key TEXT PRIMARY KEY, payload %s NOT NULL)", kvTable, d.blob)
}

// KV is a types.KVStore kept in the backend's database, so cache entries
// persist next to the rows they mirror.
type KV struct {
	b *Backend
}

// KV returns the backend's key-value store. Closing it does not close the
// backend.
func (b *Backend) KV() *KV { return &KV{b: b} }

// Get implements types.KVStore.
func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	kv.b.mu.RLock()
	defer kv.b.mu.RUnlock()
	if kv.b.db == nil {
		return nil, errClosed
	}
	var value []byte
	q := kv.b.dialect.rebind("SELECT payload FROM " + kvTable + " WHERE cache_key = ?")
	err := kv.b.db.QueryRowContext(ctx, q, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading kv %s: %w", key, err)
	}
	return value, nil
}

// Set implements types.KVStore.
func (kv *KV) Set(ctx context.Context, key string, value []byte) error {
	kv.b.mu.Lock()
	defer kv.b.mu.Unlock()
	if kv.b.db == nil {
		return errClosed
	}
	q := kv.b.dialect.rebind("INSERT INTO " + kvTable + " (cache_key, payload) VALUES (?, ?) " +
		"ON CONFLICT (cache_key) DO UPDATE SET payload = excluded.payload")
	if _, err := kv.b.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("writing kv %s: %w", key, err)
	}
	return nil
}

// Delete implements types.KVStore.
func (kv *KV) Delete(ctx context.Context, key string) error {
	kv.b.mu.Lock()
	defer kv.b.mu.Unlock()
	if kv.b.db == nil {
		return errClosed
	}
	q := kv.b.dialect.rebind("DELETE FROM " + kvTable + " WHERE cache_key = ?")
	if _, err := kv.b.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("deleting kv %s: %w", key, err)
	}
	return nil
}

// Scan implements types.KVStore. Entries are read before fn is called, so
// fn may write to the store.
func (kv *KV) Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	type entry struct {
		key   string
		value []byte
	}
	var entries []entry

	err := func() error {
		kv.b.mu.RLock()
		defer kv.b.mu.RUnlock()
		if kv.b.db == nil {
			return errClosed
		}
		q := kv.b.dialect.rebind("SELECT cache_key, payload FROM " + kvTable +
			" WHERE substr(cache_key, 1, ?) = ? ORDER BY cache_key")
		rows, err := kv.b.db.QueryContext(ctx, q, utf8.RuneCountInString(prefix), prefix)
		if err != nil {
			return fmt.Errorf("scanning kv %q: %w", prefix, err)
		}
		defer rows.Close()
		for rows.Next() {
			var e entry
			if err := rows.Scan(&e.key, &e.value); err != nil {
				return fmt.Errorf("scanning kv row: %w", err)
			}
			entries = append(entries, e)
		}
		return rows.Err()
	}()
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

// Close implements types.KVStore. The backend stays open.
func (kv *KV) Close() error { return nil }
