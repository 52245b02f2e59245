package resource

import (
	"github.com/mesh-intelligence/larder/internal/cache"
	"github.com/mesh-intelligence/larder/internal/metrics"
	"github.com/mesh-intelligence/larder/pkg/types"
)

// reconcileUpsert folds a created or updated row into every cache entry and
// returns the row as it now stands in the single-record entry.
func (r *Resource[T]) reconcileUpsert(row types.Row, op string) types.Row {
	id := row.ID()
	key := cache.RecordKey(r.table, id)

	merged := row
	if prev, ok := r.records.Get(key); ok {
		merged = types.MergeRows(prev.Data, row)
	}

	changed := r.lists.Update(func(_ string, l List) (List, bool) {
		return spliceRow(l, merged, row)
	})
	r.records.Set(key, merged)

	metrics.RecordReconciliation(r.table, op)
	r.log.Debug().Str("op", op).Str("id", id).Int("lists", changed).Msg("reconciled mutation")
	return merged
}

func (r *Resource[T]) reconcileDelete(id string) {
	changed := r.lists.Update(func(_ string, l List) (List, bool) {
		idx := indexOf(l.Rows, id)
		if idx < 0 {
			return l, false
		}
		rows := make([]types.Row, 0, len(l.Rows)-1)
		rows = append(rows, l.Rows[:idx]...)
		rows = append(rows, l.Rows[idx+1:]...)
		return List{Query: l.Query, Rows: rows}, true
	})
	r.records.Delete(cache.RecordKey(r.table, id))

	metrics.RecordReconciliation(r.table, types.OpDelete)
	r.log.Debug().Str("op", types.OpDelete).Str("id", id).Int("lists", changed).Msg("reconciled mutation")
}

// spliceRow places a mutated record in one cached list. A list that holds
// the record merges the backend row over its own copy; a list that does not
// uses fallback. The record then stays, leaves or joins the list according
// to the list's query. Lists the record neither was in nor now matches are
// reported unchanged.
func spliceRow(l List, fallback, row types.Row) (List, bool) {
	id := row.ID()
	idx := indexOf(l.Rows, id)

	next := fallback
	if idx >= 0 {
		next = types.MergeRows(l.Rows[idx], row)
	}
	matches := l.Query.Match(next)

	switch {
	case idx < 0 && !matches:
		return l, false
	case idx >= 0 && !matches:
		rows := make([]types.Row, 0, len(l.Rows)-1)
		rows = append(rows, l.Rows[:idx]...)
		rows = append(rows, l.Rows[idx+1:]...)
		return List{Query: l.Query, Rows: rows}, true
	}

	rows := make([]types.Row, 0, len(l.Rows)+1)
	for i, existing := range l.Rows {
		if i != idx {
			rows = append(rows, existing)
		}
	}
	rows = append(rows, next)
	return List{Query: l.Query, Rows: l.Query.Apply(rows)}, true
}

func indexOf(rows []types.Row, id string) int {
	for i, row := range rows {
		if row.ID() == id {
			return i
		}
	}
	return -1
}
