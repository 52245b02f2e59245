package types

import "fmt"

// FetchError reports a failed backend read. The cache is never written when
// a FetchError is returned.
type FetchError struct {
	Resource string
	ID       string // empty for collection reads
	Err      error
}

func (e *FetchError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("fetching %s %s: %v", e.Resource, e.ID, e.Err)
	}
	return fmt.Sprintf("fetching %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Mutation kinds reported by MutationError.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpToggle = "toggle"
	OpDelete = "delete"
)

// MutationError reports a failed backend write. No cache entry is touched
// when a MutationError is returned.
type MutationError struct {
	Resource string
	Op       string
	ID       string
	Err      error
}

func (e *MutationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Resource, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
