package cache

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// KeyOf maps a filter to its cache key: the resource name, a colon, and the
// filter's canonical JSON. Filters serialize with omitempty on every optional
// field and maps marshal with sorted keys, so structurally equal filters give
// equal keys. A filter that cannot be marshaled falls back to its Go syntax
// representation.
func KeyOf(f types.Filter) string {
	return Key(f.Resource(), f)
}

// Key builds a cache key for resource from an arbitrary spec value.
func Key(resource string, spec any) string {
	data, err := json.Marshal(spec)
	if err != nil {
		return fmt.Sprintf("%s:%#v", resource, spec)
	}
	return resource + ":" + string(data)
}

// RecordKey is the key of a single-record entry.
func RecordKey(resource, id string) string {
	return resource + "-" + id
}
