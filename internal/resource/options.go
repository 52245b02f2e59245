package resource

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/larder/internal/cache"
	"github.com/mesh-intelligence/larder/pkg/types"
)

type options struct {
	ttl      time.Duration
	clock    cache.Clock
	store    types.KVStore
	log      zerolog.Logger
	validate *validator.Validate
}

// Option configures a Resource.
type Option func(*options)

// WithTTL sets the freshness window. Zero makes every read go to the
// backend.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) { o.ttl = ttl }
}

// WithClock injects the clock used by both caches.
func WithClock(c cache.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithStore writes cache entries through to a durable store.
func WithStore(s types.KVStore) Option {
	return func(o *options) { o.store = s }
}

// WithLogger sets the resource's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithValidator shares a validator between resources.
func WithValidator(v *validator.Validate) Option {
	return func(o *options) { o.validate = v }
}
