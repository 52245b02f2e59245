package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// Entry is one cached value with its capture time in unix milliseconds and
// the write sequence it was stored under.
type Entry[V any] struct {
	Data      V      `json:"data"`
	Timestamp int64  `json:"timestamp"`
	Seq       uint64 `json:"seq"`
}

// Cache is a mutex-guarded map of entries with an injected clock and an
// optional durable backing store.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]Entry[V]
	seq     uint64

	clock  Clock
	store  types.KVStore
	prefix string
	log    zerolog.Logger

	// writes counts mutations in the order they reached entries. Durable
	// writes carry it so a slower, older write never lands over a newer one.
	writes  uint64
	storeMu sync.Mutex
	written map[string]uint64
}

type options struct {
	clock  Clock
	store  types.KVStore
	prefix string
	log    zerolog.Logger
}

// Option configures a Cache.
type Option func(*options)

// WithClock sets the clock used for timestamps and freshness.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStore writes every entry through to store. prefix selects which durable
// keys Hydrate loads; every key this cache writes must start with it.
func WithStore(store types.KVStore, prefix string) Option {
	return func(o *options) {
		o.store = store
		o.prefix = prefix
	}
}

// WithLogger sets the logger for durable-store failures.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// New returns an empty cache.
func New[V any](opts ...Option) *Cache[V] {
	o := options{clock: SystemClock{}, log: zerolog.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	return &Cache[V]{
		entries: make(map[string]Entry[V]),
		clock:   o.clock,
		store:   o.store,
		prefix:  o.prefix,
		log:     o.log,
		written: make(map[string]uint64),
	}
}

// Now returns the cache clock's current time.
func (c *Cache[V]) Now() time.Time { return c.clock.Now() }

// Get returns the entry stored under key, fresh or not.
func (c *Cache[V]) Get(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	return e, ok
}

// Fresh returns the data under key when the entry exists and is fresh for ttl.
func (c *Cache[V]) Fresh(key string, ttl time.Duration) (V, bool) {
	e, ok := c.Get(key)
	if !ok || !c.IsFresh(e, ttl) {
		var zero V
		return zero, false
	}
	return e.Data, true
}

// IsFresh reports whether e is younger than ttl. A ttl of zero or less is
// always stale.
func (c *Cache[V]) IsFresh(e Entry[V], ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return c.clock.Now().UnixMilli()-e.Timestamp < ttl.Milliseconds()
}

// Set stores data under key stamped with the current time and advances the
// write sequence, so reads that started earlier cannot overwrite it.
func (c *Cache[V]) Set(key string, data V) Entry[V] {
	c.mu.Lock()
	c.seq++
	e := Entry[V]{Data: data, Timestamp: c.clock.Now().UnixMilli(), Seq: c.seq}
	c.entries[key] = e
	w := c.nextWrite()
	c.mu.Unlock()

	c.persist(key, e, w)
	return e
}

// Ticket returns the current write sequence. A read takes a ticket before
// going to the backend and passes it to SetIfCurrent.
func (c *Cache[V]) Ticket() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// SetIfCurrent stores data under key only if no Set, Update, Delete or
// Invalidate has happened since ticket was taken. It reports whether the
// value was stored. Accepted reads do not advance the sequence.
func (c *Cache[V]) SetIfCurrent(key string, data V, ticket uint64) bool {
	c.mu.Lock()
	if c.seq != ticket {
		c.mu.Unlock()
		return false
	}
	e := Entry[V]{Data: data, Timestamp: c.clock.Now().UnixMilli(), Seq: c.seq}
	c.entries[key] = e
	w := c.nextWrite()
	c.mu.Unlock()

	c.persist(key, e, w)
	return true
}

// Update calls fn for every entry. When fn reports a change the entry's data
// is replaced and its timestamp kept. The write sequence advances even when
// nothing changed. Update returns the number of entries changed.
func (c *Cache[V]) Update(fn func(key string, data V) (V, bool)) int {
	c.mu.Lock()
	c.seq++
	changed := make(map[string]Entry[V])
	for k, e := range c.entries {
		next, ok := fn(k, e.Data)
		if !ok {
			continue
		}
		e.Data = next
		e.Seq = c.seq
		c.entries[k] = e
		changed[k] = e
	}
	w := c.nextWrite()
	c.mu.Unlock()

	for k, e := range changed {
		c.persist(k, e, w)
	}
	return len(changed)
}

// Delete drops the entry under key and advances the write sequence.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	c.seq++
	delete(c.entries, key)
	w := c.nextWrite()
	c.mu.Unlock()

	c.unpersist(key, w)
}

// Invalidate drops every entry whose key satisfies pred, advances the write
// sequence, and returns the number dropped.
func (c *Cache[V]) Invalidate(pred func(key string) bool) int {
	c.mu.Lock()
	c.seq++
	var dropped []string
	for k := range c.entries {
		if pred(k) {
			delete(c.entries, k)
			dropped = append(dropped, k)
		}
	}
	w := c.nextWrite()
	c.mu.Unlock()

	for _, k := range dropped {
		c.unpersist(k, w)
	}
	return len(dropped)
}

// nextWrite must be called with c.mu held.
func (c *Cache[V]) nextWrite() uint64 {
	c.writes++
	return c.writes
}

// Keys returns the keys currently cached.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// HasPrefix returns a predicate for Invalidate matching keys with prefix.
func HasPrefix(prefix string) func(string) bool {
	return func(key string) bool { return strings.HasPrefix(key, prefix) }
}
