package resource

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// fakeBackend is an in-memory types.Backend that evaluates queries with
// Query.Apply and counts calls.
type fakeBackend struct {
	mu      sync.Mutex
	tables  map[string]map[string]types.Row
	calls   map[string]int
	nextID  int
	failErr error

	// beforeSelectReturn runs after Select has computed its result and
	// before it returns, outside the lock.
	beforeSelectReturn func(ctx context.Context)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		tables: make(map[string]map[string]types.Row),
		calls:  make(map[string]int),
	}
}

func (b *fakeBackend) seed(table string, rows ...types.Row) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.table(table)
	for _, r := range rows {
		t[r.ID()] = r.Clone()
	}
}

func (b *fakeBackend) table(name string) map[string]types.Row {
	t, ok := b.tables[name]
	if !ok {
		t = make(map[string]types.Row)
		b.tables[name] = t
	}
	return t
}

func (b *fakeBackend) failWith(err error) {
	b.mu.Lock()
	b.failErr = err
	b.mu.Unlock()
}

func (b *fakeBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *fakeBackend) Select(ctx context.Context, table string, q types.Query) ([]types.Row, error) {
	b.mu.Lock()
	b.calls["select"]++
	if b.failErr != nil {
		err := b.failErr
		b.mu.Unlock()
		return nil, err
	}
	all := make([]types.Row, 0, len(b.tables[table]))
	for _, r := range b.tables[table] {
		all = append(all, r.Clone())
	}
	hook := b.beforeSelectReturn
	b.mu.Unlock()

	out := q.Apply(all)
	if hook != nil {
		hook(ctx)
	}
	return out, nil
}

func (b *fakeBackend) Insert(_ context.Context, table string, row types.Row) (types.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["insert"]++
	if b.failErr != nil {
		return nil, b.failErr
	}
	row = row.Clone()
	if row.ID() == "" {
		b.nextID++
		row["id"] = fmt.Sprintf("gen-%03d", b.nextID)
	}
	if _, ok := row["created_at"]; !ok {
		row["created_at"] = types.FormatTime(time.Date(2026, 7, 1, 0, 0, b.nextID, 0, time.UTC))
	}
	b.table(table)[row.ID()] = row
	return row.Clone(), nil
}

func (b *fakeBackend) Update(_ context.Context, table, id string, patch types.Row) (types.Row, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["update"]++
	if b.failErr != nil {
		return nil, b.failErr
	}
	cur, ok := b.table(table)[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	next := types.MergeRows(cur, patch)
	b.table(table)[id] = next
	return next.Clone(), nil
}

func (b *fakeBackend) Delete(_ context.Context, table, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["delete"]++
	if b.failErr != nil {
		return b.failErr
	}
	if _, ok := b.table(table)[id]; !ok {
		return types.ErrNotFound
	}
	delete(b.table(table), id)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: make(map[string][]byte)} }

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, types.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memKV) Scan(_ context.Context, prefix string, fn func(string, []byte) error) error {
	m.mu.Lock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	vals := make([][]byte, len(keys))
	for i, k := range keys {
		vals[i] = m.data[k]
	}
	m.mu.Unlock()
	for i, k := range keys {
		if err := fn(k, vals[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memKV) Close() error { return nil }
