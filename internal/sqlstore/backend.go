// Package sqlstore implements types.Backend over database/sql, for a local
// SQLite file (modernc.org/sqlite) or a Postgres database (lib/pq). It owns
// the schema of the resource tables, publishes every committed change to an
// optional change feed, and provides a durable key-value store for cache
// entries in the same database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// DBFile is the SQLite database file created in the data directory.
const DBFile = "larder.db"

// Publisher receives committed changes.
type Publisher interface {
	Publish(ev types.ChangeEvent)
}

// Config selects the database.
type Config struct {
	// Dialect is DialectSQLite or DialectPostgres.
	Dialect string

	// DataDir holds the SQLite file. Ignored for Postgres.
	DataDir string

	// DSN is the Postgres connection string. Ignored for SQLite.
	DSN string
}

// Backend implements types.Backend over a SQL database.
type Backend struct {
	mu      sync.RWMutex
	db      *sql.DB
	dialect dialect
	pub     Publisher
	now     func() time.Time
	log     zerolog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithPublisher sends every committed insert, update and delete to p.
func WithPublisher(p Publisher) Option {
	return func(b *Backend) { b.pub = p }
}

// WithLogger sets the backend's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) { b.log = l }
}

// WithNow overrides the clock used for created_at and updated_at.
func WithNow(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// Open connects to the database described by cfg and creates any missing
// resource tables.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Backend, error) {
	d, err := dialectFor(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	var dsn string
	switch d.name {
	case DialectSQLite:
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "."
		}
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, DBFile)
	case DialectPostgres:
		if cfg.DSN == "" {
			return nil, types.ErrDSNRequired
		}
		dsn = cfg.DSN
	}

	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", d.name, err)
	}
	if d.name == DialectSQLite {
		// One connection keeps writes serialized and avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	b := &Backend{
		db:      db,
		dialect: d,
		now:     time.Now,
		log:     zerolog.Nop(),
	}
	for _, fn := range opts {
		fn(b)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	b.log.Debug().Str("dialect", d.name).Msg("database ready")
	return b, nil
}

func (b *Backend) migrate(ctx context.Context) error {
	for _, s := range schemas {
		if _, err := b.db.ExecContext(ctx, createTableDDL(b.dialect, s)); err != nil {
			return fmt.Errorf("creating table %s: %w", s.name, err)
		}
		for _, ddl := range createIndexDDL(s) {
			if _, err := b.db.ExecContext(ctx, ddl); err != nil {
				return fmt.Errorf("creating index on %s: %w", s.name, err)
			}
		}
	}
	if _, err := b.db.ExecContext(ctx, createKVDDL(b.dialect)); err != nil {
		return fmt.Errorf("creating kv table: %w", err)
	}
	return nil
}

// DB exposes the underlying handle.
func (b *Backend) DB() *sql.DB { return b.db }

// Close closes the database.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

// Select implements types.Backend.
func (b *Backend) Select(ctx context.Context, table string, q types.Query) ([]types.Row, error) {
	s, err := schemaFor(table)
	if err != nil {
		return nil, err
	}
	query, args, err := buildSelect(s, q)
	if err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.db == nil {
		return nil, errClosed
	}
	rows, err := b.db.QueryContext(ctx, b.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(s, rows)
}

// Insert implements types.Backend. A missing id is filled with a UUID v7 and
// missing created_at and updated_at columns with the current time.
func (b *Backend) Insert(ctx context.Context, table string, row types.Row) (types.Row, error) {
	s, err := schemaFor(table)
	if err != nil {
		return nil, err
	}
	row = row.Clone()
	if row.ID() == "" {
		row["id"] = newUUID()
	}
	now := types.FormatTime(b.now())
	for _, col := range []string{"created_at", "updated_at"} {
		if _, ok := row[col]; !ok && s.has(col) {
			row[col] = now
		}
	}

	cols, args, err := bindColumns(s, row)
	if err != nil {
		return nil, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", s.name, strings.Join(cols, ", "), placeholders)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil, errClosed
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning insert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, b.dialect.rebind(stmt), args...); err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}
	stored, err := b.getTx(ctx, tx, s, row.ID())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing insert: %w", err)
	}

	b.publish(types.ChangeEvent{Table: table, Op: types.ChangeInsert, New: stored})
	return stored, nil
}

// Update implements types.Backend. updated_at is set to the current time
// unless the patch sets it.
func (b *Backend) Update(ctx context.Context, table, id string, patch types.Row) (types.Row, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	s, err := schemaFor(table)
	if err != nil {
		return nil, err
	}
	patch = patch.Clone()
	delete(patch, "id")
	if _, ok := patch["updated_at"]; !ok && s.has("updated_at") {
		patch["updated_at"] = types.FormatTime(b.now())
	}

	cols, args, err := bindColumns(s, patch)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil, errClosed
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning update: %w", err)
	}
	defer tx.Rollback()

	old, err := b.getTx(ctx, tx, s, id)
	if err != nil {
		return nil, err
	}
	if len(cols) > 0 {
		sets := make([]string, len(cols))
		for i, c := range cols {
			sets[i] = c + " = ?"
		}
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", s.name, strings.Join(sets, ", "))
		if _, err := tx.ExecContext(ctx, b.dialect.rebind(stmt), append(args, id)...); err != nil {
			return nil, fmt.Errorf("updating %s %s: %w", table, id, err)
		}
	}
	stored, err := b.getTx(ctx, tx, s, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}

	b.publish(types.ChangeEvent{Table: table, Op: types.ChangeUpdate, Old: old, New: stored})
	return stored, nil
}

// Delete implements types.Backend.
func (b *Backend) Delete(ctx context.Context, table, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	s, err := schemaFor(table)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return errClosed
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	old, err := b.getTx(ctx, tx, s, id)
	if err != nil {
		return err
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.name)
	if _, err := tx.ExecContext(ctx, b.dialect.rebind(stmt), id); err != nil {
		return fmt.Errorf("deleting %s %s: %w", table, id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	b.publish(types.ChangeEvent{Table: table, Op: types.ChangeDelete, Old: old})
	return nil
}

func (b *Backend) getTx(ctx context.Context, tx *sql.Tx, s tableSchema, id string) (types.Row, error) {
	query, args, err := buildSelect(s, types.ByID(id))
	if err != nil {
		return nil, err
	}
	rows, err := tx.QueryContext(ctx, b.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("reading %s %s: %w", s.name, id, err)
	}
	defer rows.Close()
	out, err := scanRows(s, rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, types.ErrNotFound
	}
	return out[0], nil
}

func (b *Backend) publish(ev types.ChangeEvent) {
	if b.pub == nil {
		return
	}
	b.pub.Publish(ev)
}

// bindColumns returns the row's columns in schema order with their driver
// arguments. Unknown columns are rejected.
func bindColumns(s tableSchema, row types.Row) ([]string, []any, error) {
	for k := range row {
		if !s.has(k) {
			return nil, nil, fmt.Errorf("%w: %s.%s", types.ErrUnknownField, s.name, k)
		}
	}
	var cols []string
	var args []any
	for _, c := range s.columns {
		v, ok := row[c.name]
		if !ok {
			continue
		}
		arg, err := toArg(c, v)
		if err != nil {
			return nil, nil, err
		}
		cols = append(cols, c.name)
		args = append(args, arg)
	}
	return cols, args, nil
}

func scanRows(s tableSchema, rows *sql.Rows) ([]types.Row, error) {
	var out []types.Row
	for rows.Next() {
		values := make([]any, len(s.columns))
		ptrs := make([]any, len(s.columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.name, err)
		}
		row := make(types.Row, len(s.columns))
		for i, c := range s.columns {
			v, err := fromDB(c, values[i])
			if err != nil {
				return nil, fmt.Errorf("%s row: %w", s.name, err)
			}
			row[c.name] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", s.name, err)
	}
	if out == nil {
		out = []types.Row{}
	}
	return out, nil
}

var errClosed = errors.New("sqlstore: backend closed")

// newUUID generates a UUID v7 string, falling back to v4.
func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
