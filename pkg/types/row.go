package types

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Row is one backend row keyed by column name. Values are JSON scalars,
// nested JSON values, or nil.
type Row map[string]any

// TimeLayout is the fixed-width UTC layout used for timestamp columns and
// timestamp predicate values, so that lexicographic and chronological order
// agree.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// zeroTimeJSON is how an unset time.Time field marshals.
const zeroTimeJSON = "0001-01-01T00:00:00Z"

// FormatTime renders t in TimeLayout in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// RowOf converts a record into a Row through its JSON form. An empty id and
// unset timestamps are dropped so the backend can assign them.
func RowOf(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("unmarshaling row: %w", err)
	}
	if id, ok := row["id"].(string); ok && id == "" {
		delete(row, "id")
	}
	for k, val := range row {
		if s, ok := val.(string); ok && s == zeroTimeJSON {
			delete(row, k)
		}
	}
	return row, nil
}

// Decode unmarshals the row into dst, which must be a pointer to a record.
func (r Row) Decode(dst any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling row: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return nil
}

// ID returns the row's id column, or "" when absent.
func (r Row) ID() string {
	id, _ := r["id"].(string)
	return id
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// MergeRows returns base with every column of patch written over it.
// Neither argument is modified.
func MergeRows(base, patch Row) Row {
	out := base.Clone()
	for k, v := range patch {
		out[k] = v
	}
	return out
}
