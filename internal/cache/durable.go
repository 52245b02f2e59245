package cache

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
)

// Hydrate loads every durable entry under the cache's prefix into memory.
// Entries that fail to decode are removed from the store. Stale entries are
// loaded as they are; freshness is checked on read. The write sequence
// resumes above the highest sequence loaded. Hydrate is a no-op without a
// store.
func (c *Cache[V]) Hydrate(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	loaded := make(map[string]Entry[V])
	var corrupt []string
	err := c.store.Scan(ctx, c.prefix, func(key string, value []byte) error {
		var e Entry[V]
		if err := json.Unmarshal(value, &e); err != nil {
			corrupt = append(corrupt, key)
			return nil
		}
		loaded[key] = e
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("hydrating cache %q: %w", c.prefix, err)
	}

	c.storeMu.Lock()
	for _, key := range corrupt {
		c.log.Warn().Str("key", key).Msg("dropping undecodable durable cache entry")
		if err := c.store.Delete(ctx, key); err != nil {
			c.storeMu.Unlock()
			return 0, fmt.Errorf("deleting corrupt entry %s: %w", key, err)
		}
	}
	c.storeMu.Unlock()

	c.mu.Lock()
	for k, e := range loaded {
		c.entries[k] = e
		if e.Seq > c.seq {
			c.seq = e.Seq
		}
	}
	c.mu.Unlock()
	return len(loaded), nil
}

func (c *Cache[V]) persist(key string, e Entry[V], write uint64) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("encoding durable cache entry")
		return
	}
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if !c.claimLocked(key, write) {
		return
	}
	if err := c.store.Set(context.Background(), key, data); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("writing durable cache entry")
	}
}

func (c *Cache[V]) unpersist(key string, write uint64) {
	if c.store == nil {
		return
	}
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if !c.claimLocked(key, write) {
		return
	}
	if err := c.store.Delete(context.Background(), key); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("deleting durable cache entry")
	}
}

// claimLocked reports whether write is newer than the last durable write to
// key and records it if so.
func (c *Cache[V]) claimLocked(key string, write uint64) bool {
	if write <= c.written[key] {
		return false
	}
	c.written[key] = write
	return true
}
