// Package larder is the entry point for applications: it opens the configured
// backend, wires one cached resource per table, and adds the typed
// operations of the admin console on top of them.
package larder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/larder/internal/badgerstore"
	"github.com/mesh-intelligence/larder/internal/cache"
	"github.com/mesh-intelligence/larder/internal/feed"
	"github.com/mesh-intelligence/larder/internal/localfs"
	"github.com/mesh-intelligence/larder/internal/logging"
	"github.com/mesh-intelligence/larder/internal/paths"
	"github.com/mesh-intelligence/larder/internal/postgrest"
	"github.com/mesh-intelligence/larder/internal/realtime"
	"github.com/mesh-intelligence/larder/internal/resource"
	"github.com/mesh-intelligence/larder/internal/sqlstore"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// ErrUnsupported is returned for operations the configured backend cannot
// perform, such as importing into a hosted project.
var ErrUnsupported = errors.New("operation not supported by this backend")

// Options carries dependencies that are not part of types.Config. Zero
// values select the defaults for the configured backend.
type Options struct {
	Logger  zerolog.Logger
	Now     func() time.Time
	Session types.Session
	Feed    types.Feed
	Storage types.FileStorage
}

// Larder holds one cached resource per table.
type Larder struct {
	Restaurants    *resource.Resource[types.Restaurant]
	MenuItems      *resource.Resource[types.MenuItem]
	MenuCategories *resource.Resource[types.MenuCategory]
	Locations      *resource.Resource[types.Location]
	Orders         *resource.Resource[types.Order]
	Users          *resource.Resource[types.User]
	TravelTimes    *resource.Resource[types.TravelTime]

	cfg     types.Config
	backend types.Backend
	sql     *sqlstore.Backend
	feed    types.Feed
	storage types.FileStorage
	session types.Session
	now     func() time.Time
	closers []io.Closer
	log     zerolog.Logger
}

// Open validates cfg, connects the backend and its companions, and hydrates
// the durable cache when one is configured.
func Open(ctx context.Context, cfg types.Config, opts Options) (*Larder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Larder{
		cfg: cfg,
		now: opts.Now,
		log: logging.Component(opts.Logger, "larder"),
	}
	if l.now == nil {
		l.now = time.Now
	}

	if err := l.openBackend(ctx, opts); err != nil {
		l.Close()
		return nil, err
	}
	store, err := l.openCacheStore(ctx, opts.Logger)
	if err != nil {
		l.Close()
		return nil, err
	}

	if opts.Feed != nil {
		l.feed = opts.Feed
	}
	if opts.Storage != nil {
		l.storage = opts.Storage
	}
	if opts.Session != nil {
		l.session = opts.Session
	}
	if l.session == nil {
		l.session = types.StaticSession{}
	}

	ropts := []resource.Option{
		resource.WithTTL(cfg.EffectiveCacheTTL()),
		resource.WithClock(cache.ClockFunc(l.now)),
		resource.WithLogger(logging.Component(opts.Logger, "cache")),
	}
	if store != nil {
		ropts = append(ropts, resource.WithStore(store))
	}
	l.Restaurants = resource.New[types.Restaurant](types.TableRestaurants, l.backend, ropts...)
	l.MenuItems = resource.New[types.MenuItem](types.TableMenuItems, l.backend, ropts...)
	l.MenuCategories = resource.New[types.MenuCategory](types.TableMenuCategories, l.backend, ropts...)
	l.Locations = resource.New[types.Location](types.TableLocations, l.backend, ropts...)
	l.Orders = resource.New[types.Order](types.TableOrders, l.backend, ropts...)
	l.Users = resource.New[types.User](types.TableUsers, l.backend, ropts...)
	l.TravelTimes = resource.New[types.TravelTime](types.TableTravelTimes, l.backend, ropts...)

	if store != nil {
		for _, h := range l.hydrators() {
			if err := h.Hydrate(ctx); err != nil {
				l.Close()
				return nil, fmt.Errorf("hydrating cache: %w", err)
			}
		}
	}
	l.log.Info().Str("backend", cfg.Backend).Str("cache_store", cfg.CacheStore).
		Dur("ttl", cfg.EffectiveCacheTTL()).Msg("larder opened")
	return l, nil
}

func (l *Larder) openBackend(ctx context.Context, opts Options) error {
	log := opts.Logger
	switch l.cfg.Backend {
	case types.BackendSQLite, types.BackendPostgres:
		hub := feed.NewHub(logging.Component(log, "feed"))
		b, err := sqlstore.Open(ctx, sqlstore.Config{
			Dialect: l.cfg.Backend,
			DataDir: l.cfg.DataDir,
			DSN:     l.cfg.PostgresDSN,
		}, sqlstore.WithPublisher(hub), sqlstore.WithLogger(logging.Component(log, "sqlstore")), sqlstore.WithNow(l.now))
		if err != nil {
			return err
		}
		l.closers = append(l.closers, b)
		l.backend, l.sql, l.feed = b, b, hub
		l.storage = localfs.New(filepath.Join(l.dataDir(), localfs.DirName), "")
	case types.BackendSupabase:
		client, err := postgrest.NewClient(postgrest.Config{
			URL:         l.cfg.SupabaseURL,
			Key:         l.cfg.SupabaseKey,
			AccessToken: l.cfg.AccessToken,
		}, logging.Component(log, "supabase"))
		if err != nil {
			return err
		}
		rt, err := realtime.New(realtime.Config{
			URL:         l.cfg.SupabaseURL,
			Key:         l.cfg.SupabaseKey,
			AccessToken: l.cfg.AccessToken,
		}, logging.Component(log, "realtime"))
		if err != nil {
			return err
		}
		l.backend, l.feed, l.storage = client.Backend(), rt, client.Storage()
		if opts.Session == nil {
			s, err := client.Session(ctx, l.cfg.AccessToken)
			if err != nil {
				return err
			}
			l.session = s
		}
	}
	return nil
}

func (l *Larder) openCacheStore(ctx context.Context, log zerolog.Logger) (types.KVStore, error) {
	switch l.cfg.CacheStore {
	case types.CacheStoreSQLite:
		if l.sql != nil && l.cfg.Backend == types.BackendSQLite {
			return l.sql.KV(), nil
		}
		b, err := sqlstore.Open(ctx, sqlstore.Config{Dialect: sqlstore.DialectSQLite, DataDir: l.dataDir()},
			sqlstore.WithLogger(logging.Component(log, "kv")))
		if err != nil {
			return nil, err
		}
		l.closers = append(l.closers, b)
		return b.KV(), nil
	case types.CacheStoreBadger:
		s, err := badgerstore.Open(paths.CacheDir(l.dataDir()), logging.Component(log, "badger"))
		if err != nil {
			return nil, err
		}
		l.closers = append(l.closers, s)
		return s, nil
	}
	return nil, nil
}

func (l *Larder) dataDir() string {
	if l.cfg.DataDir != "" {
		return l.cfg.DataDir
	}
	return "."
}

type hydrator interface {
	Hydrate(ctx context.Context) error
}

func (l *Larder) hydrators() []hydrator {
	return []hydrator{l.Restaurants, l.MenuItems, l.MenuCategories, l.Locations, l.Orders, l.Users, l.TravelTimes}
}

// Backend returns the row backend.
func (l *Larder) Backend() types.Backend { return l.backend }

// Feed returns the change feed.
func (l *Larder) Feed() types.Feed { return l.feed }

// Session returns the signed-in identity.
func (l *Larder) Session() types.Session { return l.session }

// Import loads JSONL files from dir into a SQL backend and drops every cache
// entry.
func (l *Larder) Import(ctx context.Context, dir string) (map[string]int, error) {
	if l.sql == nil {
		return nil, ErrUnsupported
	}
	counts, err := l.sql.Import(ctx, dir)
	if err != nil {
		return nil, err
	}
	l.InvalidateAll()
	return counts, nil
}

// Export writes every table of a SQL backend to JSONL files in dir.
func (l *Larder) Export(ctx context.Context, dir string) (map[string]int, error) {
	if l.sql == nil {
		return nil, ErrUnsupported
	}
	return l.sql.Export(ctx, dir)
}

// InvalidateAll drops every cache entry of every resource.
func (l *Larder) InvalidateAll() {
	l.Restaurants.Invalidate()
	l.MenuItems.Invalidate()
	l.MenuCategories.Invalidate()
	l.Locations.Invalidate()
	l.Orders.Invalidate()
	l.Users.Invalidate()
	l.TravelTimes.Invalidate()
}

// Close releases the backend and the durable cache store, in reverse order
// of opening.
func (l *Larder) Close() error {
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	return errors.Join(errs...)
}
