package resource

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/larder/internal/cache"
	"github.com/mesh-intelligence/larder/internal/metrics"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// List is a cached collection together with the query that produced it, so
// the reconciler can decide membership and order without the backend.
type List struct {
	Query types.Query `json:"query"`
	Rows  []types.Row `json:"rows"`
}

// Resource is the cached view of one table, decoded into records of type T.
type Resource[T types.Record] struct {
	table    string
	backend  types.Backend
	lists    *cache.Cache[List]
	records  *cache.Cache[types.Row]
	ttl      time.Duration
	cols     columns
	validate *validator.Validate
	log      zerolog.Logger
}

// New returns a Resource for table backed by backend.
func New[T types.Record](table string, backend types.Backend, opts ...Option) *Resource[T] {
	o := options{
		ttl:   types.DefaultCacheTTL,
		clock: cache.SystemClock{},
		log:   zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.validate == nil {
		o.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	log := o.log.With().Str("resource", table).Logger()

	listOpts := []cache.Option{cache.WithClock(o.clock), cache.WithLogger(log)}
	recordOpts := []cache.Option{cache.WithClock(o.clock), cache.WithLogger(log)}
	if o.store != nil {
		listOpts = append(listOpts, cache.WithStore(o.store, table+":"))
		recordOpts = append(recordOpts, cache.WithStore(o.store, table+"-"))
	}

	return &Resource[T]{
		table:    table,
		backend:  backend,
		lists:    cache.New[List](listOpts...),
		records:  cache.New[types.Row](recordOpts...),
		ttl:      o.ttl,
		cols:     columnsOf[T](),
		validate: o.validate,
		log:      log,
	}
}

// Table returns the backend table name.
func (r *Resource[T]) Table() string { return r.table }

// TTL returns the freshness window.
func (r *Resource[T]) TTL() time.Duration { return r.ttl }

// Hydrate loads durable cache entries left by an earlier process.
func (r *Resource[T]) Hydrate(ctx context.Context) error {
	nl, err := r.lists.Hydrate(ctx)
	if err != nil {
		return err
	}
	nr, err := r.records.Hydrate(ctx)
	if err != nil {
		return err
	}
	r.log.Debug().Int("lists", nl).Int("records", nr).Msg("hydrated cache")
	return nil
}

// List returns the records matching f. A fresh cached result is returned
// without calling the backend.
func (r *Resource[T]) List(ctx context.Context, f types.Filter) ([]T, error) {
	if f.Resource() != r.table {
		return nil, fmt.Errorf("%w: filter for %s used on %s", types.ErrUnknownResource, f.Resource(), r.table)
	}
	q := f.Query()
	if err := r.checkQuery(q); err != nil {
		return nil, err
	}
	key := cache.KeyOf(f)

	if list, ok := r.lists.Fresh(key, r.ttl); ok {
		metrics.RecordCacheRead(r.table, true)
		r.log.Debug().Str("key", key).Int("rows", len(list.Rows)).Msg("cache hit")
		return r.decodeAll(list.Rows)
	}
	metrics.RecordCacheRead(r.table, false)
	r.log.Debug().Str("key", key).Msg("cache miss")

	ticket := r.lists.Ticket()
	start := time.Now()
	rows, err := r.backend.Select(ctx, r.table, q)
	metrics.RecordBackendCall(r.table, "select", time.Since(start), err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.RecordRejectedWrite(r.table, metrics.RejectCancelled)
		return nil, ctxErr
	}
	if err != nil {
		return nil, &types.FetchError{Resource: r.table, Err: err}
	}

	out, err := r.decodeAll(rows)
	if err != nil {
		return nil, err
	}
	if !r.lists.SetIfCurrent(key, List{Query: q, Rows: rows}, ticket) {
		metrics.RecordRejectedWrite(r.table, metrics.RejectSuperseded)
		r.log.Debug().Str("key", key).Msg("read superseded by a newer write; not cached")
	}
	return out, nil
}

// Get returns the record with the given id.
func (r *Resource[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, types.ErrInvalidID
	}
	key := cache.RecordKey(r.table, id)

	if row, ok := r.records.Fresh(key, r.ttl); ok {
		metrics.RecordCacheRead(r.table, true)
		r.log.Debug().Str("key", key).Msg("cache hit")
		return r.decode(row)
	}
	metrics.RecordCacheRead(r.table, false)
	r.log.Debug().Str("key", key).Msg("cache miss")
	return r.load(ctx, id)
}

// Fetch reads the record from the backend even when a fresh copy is cached,
// and refreshes the single-record entry.
func (r *Resource[T]) Fetch(ctx context.Context, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, types.ErrInvalidID
	}
	return r.load(ctx, id)
}

func (r *Resource[T]) load(ctx context.Context, id string) (T, error) {
	var zero T
	ticket := r.records.Ticket()
	row, err := r.fetchOne(ctx, id)
	if ctxErr := ctx.Err(); ctxErr != nil {
		metrics.RecordRejectedWrite(r.table, metrics.RejectCancelled)
		return zero, ctxErr
	}
	if err != nil {
		return zero, &types.FetchError{Resource: r.table, ID: id, Err: err}
	}

	out, err := r.decode(row)
	if err != nil {
		return zero, err
	}
	if !r.records.SetIfCurrent(cache.RecordKey(r.table, id), row, ticket) {
		metrics.RecordRejectedWrite(r.table, metrics.RejectSuperseded)
	}
	return out, nil
}

// Create inserts v and reconciles it into every cached list it matches.
func (r *Resource[T]) Create(ctx context.Context, v T) (T, error) {
	var zero T
	if err := r.validate.Struct(v); err != nil {
		return zero, &types.MutationError{Resource: r.table, Op: types.OpCreate, Err: fmt.Errorf("%w: %v", types.ErrInvalidData, err)}
	}
	row, err := types.RowOf(v)
	if err != nil {
		return zero, &types.MutationError{Resource: r.table, Op: types.OpCreate, Err: err}
	}

	start := time.Now()
	stored, err := r.backend.Insert(ctx, r.table, row)
	metrics.RecordBackendCall(r.table, types.OpCreate, time.Since(start), err)
	if err != nil {
		return zero, &types.MutationError{Resource: r.table, Op: types.OpCreate, Err: err}
	}
	out, err := r.decode(stored)
	if err != nil {
		return zero, &types.MutationError{Resource: r.table, Op: types.OpCreate, ID: stored.ID(), Err: err}
	}

	r.reconcileUpsert(stored, types.OpCreate)
	return out, nil
}

// Update applies patch to the record with the given id. Only the columns in
// patch change. The id column cannot be changed.
func (r *Resource[T]) Update(ctx context.Context, id string, patch types.Row) (T, error) {
	return r.update(ctx, types.OpUpdate, id, patch)
}

// Save writes every field of v over the stored record with v's id.
func (r *Resource[T]) Save(ctx context.Context, v T) (T, error) {
	var zero T
	id := v.RecordID()
	if id == "" {
		return zero, types.ErrInvalidID
	}
	if err := r.validate.Struct(v); err != nil {
		return zero, &types.MutationError{Resource: r.table, Op: types.OpUpdate, ID: id, Err: fmt.Errorf("%w: %v", types.ErrInvalidData, err)}
	}
	row, err := types.RowOf(v)
	if err != nil {
		return zero, &types.MutationError{Resource: r.table, Op: types.OpUpdate, ID: id, Err: err}
	}
	delete(row, "id")
	delete(row, "created_at")
	return r.update(ctx, types.OpUpdate, id, row)
}

// Toggle flips a boolean column. The current value is read from the backend,
// not the cache, so a stale cached copy cannot flip the wrong way.
func (r *Resource[T]) Toggle(ctx context.Context, id, field string) (T, error) {
	var zero T
	if id == "" {
		return zero, types.ErrInvalidID
	}
	if !r.cols.has(field) {
		return zero, &types.MutationError{Resource: r.table, Op: types.OpToggle, ID: id, Err: fmt.Errorf("%w: %s", types.ErrUnknownField, field)}
	}
	if !r.cols.isBool(field) {
		return zero, &types.MutationError{Resource: r.table, Op: types.OpToggle, ID: id, Err: fmt.Errorf("%w: %s", types.ErrNotToggleable, field)}
	}

	current, err := r.fetchOne(ctx, id)
	if err != nil {
		return zero, &types.MutationError{Resource: r.table, Op: types.OpToggle, ID: id, Err: err}
	}
	on, _ := current[field].(bool)
	return r.update(ctx, types.OpToggle, id, types.Row{field: !on})
}

// Delete removes the record and drops it from every cache entry.
func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	start := time.Now()
	err := r.backend.Delete(ctx, r.table, id)
	metrics.RecordBackendCall(r.table, types.OpDelete, time.Since(start), err)
	if err != nil {
		return &types.MutationError{Resource: r.table, Op: types.OpDelete, ID: id, Err: err}
	}
	r.reconcileDelete(id)
	return nil
}

// InvalidateLists drops every cached list, leaving single-record entries.
func (r *Resource[T]) InvalidateLists() int {
	n := r.lists.Invalidate(cache.HasPrefix(r.table + ":"))
	metrics.RecordInvalidation(r.table, n)
	r.log.Debug().Int("entries", n).Msg("invalidated lists")
	return n
}

// Invalidate drops every cache entry of the resource.
func (r *Resource[T]) Invalidate() int {
	n := r.lists.Invalidate(func(string) bool { return true })
	n += r.records.Invalidate(func(string) bool { return true })
	metrics.RecordInvalidation(r.table, n)
	r.log.Debug().Int("entries", n).Msg("invalidated resource")
	return n
}

// InvalidateRecord drops the single-record entry for id and every list.
func (r *Resource[T]) InvalidateRecord(id string) int {
	n := r.lists.Invalidate(func(string) bool { return true })
	n += r.records.Invalidate(func(k string) bool { return k == cache.RecordKey(r.table, id) })
	metrics.RecordInvalidation(r.table, n)
	return n
}

func (r *Resource[T]) update(ctx context.Context, op, id string, patch types.Row) (T, error) {
	var zero T
	if id == "" {
		return zero, types.ErrInvalidID
	}
	patch = patch.Clone()
	if pid, ok := patch["id"]; ok {
		if pid != id {
			return zero, &types.MutationError{Resource: r.table, Op: op, ID: id, Err: fmt.Errorf("%w: id cannot change", types.ErrInvalidData)}
		}
		delete(patch, "id")
	}
	for col := range patch {
		if !r.cols.has(col) {
			return zero, &types.MutationError{Resource: r.table, Op: op, ID: id, Err: fmt.Errorf("%w: %s", types.ErrUnknownField, col)}
		}
	}
	var check T
	if err := patch.Decode(&check); err != nil {
		return zero, &types.MutationError{Resource: r.table, Op: op, ID: id, Err: err}
	}

	start := time.Now()
	stored, err := r.backend.Update(ctx, r.table, id, patch)
	metrics.RecordBackendCall(r.table, op, time.Since(start), err)
	if err != nil {
		return zero, &types.MutationError{Resource: r.table, Op: op, ID: id, Err: err}
	}
	stored = types.MergeRows(patch, stored)
	stored["id"] = id

	merged := r.reconcileUpsert(stored, op)
	out, err := r.decode(merged)
	if err != nil {
		return zero, &types.MutationError{Resource: r.table, Op: op, ID: id, Err: err}
	}
	return out, nil
}

func (r *Resource[T]) fetchOne(ctx context.Context, id string) (types.Row, error) {
	start := time.Now()
	rows, err := r.backend.Select(ctx, r.table, types.ByID(id))
	metrics.RecordBackendCall(r.table, "select", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, types.ErrNotFound
	}
	return rows[0], nil
}

func (r *Resource[T]) checkQuery(q types.Query) error {
	if err := q.Validate(); err != nil {
		return err
	}
	if q.Sort != nil && !r.cols.has(q.Sort.Field) {
		return fmt.Errorf("%w: sort by %s", types.ErrUnknownField, q.Sort.Field)
	}
	for _, p := range q.Predicates {
		if p.Field != "" && !r.cols.has(p.Field) {
			return fmt.Errorf("%w: %s", types.ErrUnknownField, p.Field)
		}
		for _, f := range p.Fields {
			if !r.cols.has(f) {
				return fmt.Errorf("%w: %s", types.ErrUnknownField, f)
			}
		}
	}
	return nil
}

func (r *Resource[T]) decode(row types.Row) (T, error) {
	var out T
	if err := row.Decode(&out); err != nil {
		return out, fmt.Errorf("decoding %s row %s: %w", r.table, row.ID(), err)
	}
	return out, nil
}

func (r *Resource[T]) decodeAll(rows []types.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := r.decode(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
