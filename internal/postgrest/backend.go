package postgrest

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	pg "github.com/supabase-community/postgrest-go"

	"github.com/mesh-intelligence/larder/pkg/types"
)

const returnRepresentation = "representation"

// Backend implements types.Backend over PostgREST. The client library takes
// no context, so ctx is checked before each request only.
type Backend struct {
	c *Client
}

// Backend returns the row backend for this project.
func (c *Client) Backend() *Backend { return &Backend{c: c} }

// Select implements types.Backend.
func (b *Backend) Select(ctx context.Context, table string, q types.Query) ([]types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fb := b.c.sb.From(table).Select("*", "", false)
	fb, err := applyPredicates(fb, q.Predicates)
	if err != nil {
		return nil, err
	}
	if q.Sort != nil && q.Sort.Field != "id" {
		fb = fb.Order(q.Sort.Field, &pg.OrderOpts{Ascending: !q.Sort.Descending, NullsFirst: !q.Sort.Descending})
	}
	// Order appends, so id settles ties before the server applies the limit.
	fb = fb.Order("id", &pg.OrderOpts{Ascending: q.Sort == nil || q.Sort.Field != "id" || !q.Sort.Descending})
	if q.Limit > 0 && !widened(q) {
		fb = fb.Limit(q.Limit, "")
	}

	body, _, err := fb.Execute()
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", table, err)
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", table, err)
	}
	return q.Apply(rows), nil
}

// Insert implements types.Backend.
func (b *Backend) Insert(ctx context.Context, table string, row types.Row) (types.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, _, err := b.c.sb.From(table).Insert(row, false, "", returnRepresentation, "").Execute()
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}
	return single(body, table, "")
}

// Update implements types.Backend.
func (b *Backend) Update(ctx context.Context, table, id string, patch types.Row) (types.Row, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	patch = patch.Clone()
	delete(patch, "id")
	body, _, err := b.c.sb.From(table).Update(patch, returnRepresentation, "").Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("updating %s %s: %w", table, id, err)
	}
	return single(body, table, id)
}

// Delete implements types.Backend.
func (b *Backend) Delete(ctx context.Context, table, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	body, _, err := b.c.sb.From(table).Delete(returnRepresentation, "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", table, id, err)
	}
	_, err = single(body, table, id)
	return err
}

func decodeRows(body []byte) ([]types.Row, error) {
	var rows []types.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidData, err)
	}
	if rows == nil {
		rows = []types.Row{}
	}
	return rows, nil
}

// single returns the one row a write affected. An empty representation means
// the filter matched nothing.
func single(body []byte, table, id string) (types.Row, error) {
	rows, err := decodeRows(body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %s: %w", table, id, types.ErrNotFound)
	}
	return rows[0], nil
}
