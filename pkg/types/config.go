package types

import (
	"errors"
	"time"
)

// Config holds backend selection and cache parameters for larder.Open.
type Config struct {
	Backend     string        `json:"backend" yaml:"backend"`
	DataDir     string        `json:"data_dir" yaml:"data_dir"`
	PostgresDSN string        `json:"postgres_dsn" yaml:"postgres_dsn"`
	SupabaseURL string        `json:"supabase_url" yaml:"supabase_url"`
	SupabaseKey string        `json:"supabase_key" yaml:"supabase_key"`
	AccessToken string        `json:"access_token" yaml:"access_token"`
	CacheTTL    time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	CacheStore  string        `json:"cache_store" yaml:"cache_store"`
}

// Supported backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
)

// Supported cache stores.
const (
	CacheStoreMemory = "memory"
	CacheStoreSQLite = "sqlite"
	CacheStoreBadger = "badger"
)

// DefaultCacheTTL is the freshness window used when Config.CacheTTL is zero.
const DefaultCacheTTL = 5 * time.Minute

// Config validation errors.
var (
	ErrBackendEmpty      = errors.New("backend must not be empty")
	ErrBackendUnknown    = errors.New("unknown backend")
	ErrDSNRequired       = errors.New("postgres backend requires a DSN")
	ErrSupabaseRequired  = errors.New("supabase backend requires url and key")
	ErrCacheStoreUnknown = errors.New("unknown cache store")
	ErrCacheTTLInvalid   = errors.New("cache ttl must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite:   true,
	BackendPostgres: true,
	BackendSupabase: true,
}

var knownCacheStores = map[string]bool{
	"":               true,
	CacheStoreMemory: true,
	CacheStoreSQLite: true,
	CacheStoreBadger: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	switch c.Backend {
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return ErrDSNRequired
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return ErrSupabaseRequired
		}
	}
	if !knownCacheStores[c.CacheStore] {
		return ErrCacheStoreUnknown
	}
	if c.CacheTTL < 0 {
		return ErrCacheTTLInvalid
	}
	return nil
}

// EffectiveCacheTTL returns CacheTTL, or DefaultCacheTTL when unset.
func (c Config) EffectiveCacheTTL() time.Duration {
	if c.CacheTTL == 0 {
		return DefaultCacheTTL
	}
	return c.CacheTTL
}
