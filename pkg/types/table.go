package types

import (
	"context"
	"errors"
)

// Backend provides uniform row operations over the named resource tables of
// the hosted backend. Rows are untyped; the resource layer decodes them into
// the concrete record structs.
type Backend interface {
	// Select returns every row of table matching q, ordered by q.Sort with
	// id ascending as the secondary key, truncated to q.Limit when positive.
	Select(ctx context.Context, table string, q Query) ([]Row, error)

	// Insert creates a row. When the row has no id the backend assigns one.
	// Returns the row as stored.
	Insert(ctx context.Context, table string, row Row) (Row, error)

	// Update applies patch to the row with the given id and returns the row
	// as stored. Returns ErrNotFound if no row has that id.
	Update(ctx context.Context, table, id string, patch Row) (Row, error)

	// Delete removes the row with the given id.
	// Returns ErrNotFound if no row has that id.
	Delete(ctx context.Context, table, id string) error
}

// Row and record errors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidID       = errors.New("invalid record ID")
	ErrInvalidData     = errors.New("invalid record data")
	ErrInvalidFilter   = errors.New("invalid filter value type")
	ErrUnknownResource = errors.New("unknown resource")
	ErrUnknownField    = errors.New("unknown field")
)

// Domain errors.
var (
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNotToggleable     = errors.New("field is not a boolean")
)
