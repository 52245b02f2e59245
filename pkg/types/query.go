package types

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Op is a predicate kind.
type Op string

// Supported predicate kinds.
const (
	OpEq     Op = "eq"     // exact equality
	OpGte    Op = "gte"    // value >= bound
	OpLte    Op = "lte"    // value <= bound
	OpILike  Op = "ilike"  // case-insensitive substring on Field
	OpSearch Op = "search" // case-insensitive substring on any of Fields
)

// Predicate constrains one column (or, for OpSearch, several).
type Predicate struct {
	Field  string   `json:"field,omitempty"`
	Op     Op       `json:"op"`
	Value  any      `json:"value"`
	Fields []string `json:"fields,omitempty"`
}

// Sort orders a result set by one column.
type Sort struct {
	Field      string `json:"field"`
	Descending bool   `json:"desc,omitempty"`
}

// Query is the backend-neutral form of a filter specification. The same
// Query runs on the backend (Select) and on cached rows (Match, Less), so
// the cache can place a mutated record without asking the backend.
type Query struct {
	Predicates []Predicate `json:"predicates,omitempty"`
	Sort       *Sort       `json:"sort,omitempty"`
	Limit      int         `json:"limit,omitempty"`
}

// ByID returns the query selecting the single row with the given id.
func ByID(id string) Query {
	return Query{
		Predicates: []Predicate{{Field: "id", Op: OpEq, Value: id}},
		Limit:      1,
	}
}

// Validate checks predicate shapes and value types.
func (q Query) Validate() error {
	for _, p := range q.Predicates {
		switch p.Op {
		case OpEq:
			if p.Field == "" {
				return fmt.Errorf("%w: eq without field", ErrInvalidFilter)
			}
		case OpGte, OpLte:
			if p.Field == "" {
				return fmt.Errorf("%w: %s without field", ErrInvalidFilter, p.Op)
			}
			if _, ok := toFloat(p.Value); !ok {
				if _, ok := p.Value.(string); !ok {
					return fmt.Errorf("%w: %s on %s needs a number or timestamp", ErrInvalidFilter, p.Op, p.Field)
				}
			}
		case OpILike:
			if p.Field == "" {
				return fmt.Errorf("%w: ilike without field", ErrInvalidFilter)
			}
			if _, ok := p.Value.(string); !ok {
				return fmt.Errorf("%w: ilike on %s needs a string", ErrInvalidFilter, p.Field)
			}
		case OpSearch:
			if len(p.Fields) == 0 {
				return fmt.Errorf("%w: search without fields", ErrInvalidFilter)
			}
			if _, ok := p.Value.(string); !ok {
				return fmt.Errorf("%w: search needs a string", ErrInvalidFilter)
			}
		default:
			return fmt.Errorf("%w: unknown op %q", ErrInvalidFilter, p.Op)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidFilter)
	}
	return nil
}

// Match reports whether row satisfies every predicate.
func (q Query) Match(row Row) bool {
	for _, p := range q.Predicates {
		if !p.match(row) {
			return false
		}
	}
	return true
}

func (p Predicate) match(row Row) bool {
	switch p.Op {
	case OpEq:
		return equalValues(row[p.Field], p.Value)
	case OpGte:
		c, ok := compareValues(row[p.Field], p.Value)
		return ok && row[p.Field] != nil && c >= 0
	case OpLte:
		c, ok := compareValues(row[p.Field], p.Value)
		return ok && row[p.Field] != nil && c <= 0
	case OpILike:
		return containsFold(row[p.Field], p.Value)
	case OpSearch:
		for _, f := range p.Fields {
			if containsFold(row[f], p.Value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Less orders two rows by the query's sort, then by id ascending. A query
// without a sort orders by id ascending only.
func (q Query) Less(a, b Row) bool {
	if q.Sort != nil {
		c, _ := compareValues(a[q.Sort.Field], b[q.Sort.Field])
		if q.Sort.Descending {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
	}
	return a.ID() < b.ID()
}

// Apply filters, sorts and truncates rows in memory. The input slice is not
// modified.
func (q Query) Apply(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if q.Match(r) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return q.Less(out[i], out[j]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// CompareValues orders two column values: numbers numerically, timestamps
// chronologically, strings lexicographically, false before true, nil first.
func CompareValues(a, b any) int {
	c, _ := compareValues(a, b)
	return c
}

func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			switch {
			case ba == bb:
				return 0, true
			case !ba:
				return -1, true
			}
			return 1, true
		}
	}
	sa, okA := toString(a)
	sb, okB := toString(b)
	if !okA || !okB {
		return 0, false
	}
	if ta, err := time.Parse(time.RFC3339Nano, sa); err == nil {
		if tb, err := time.Parse(time.RFC3339Nano, sb); err == nil {
			return ta.Compare(tb), true
		}
	}
	return strings.Compare(sa, sb), true
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := compareValues(a, b)
	return ok && c == 0
}

func containsFold(v, needle any) bool {
	s, ok := toString(v)
	if !ok {
		return false
	}
	n, ok := toString(needle)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(n))
}

func toFloat(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f, !math.IsNaN(f)
	default:
		return 0, false
	}
}

// toString accepts string-kinded values (including named types such as
// OrderStatus) and time.Time.
func toString(v any) (string, bool) {
	if t, ok := v.(time.Time); ok {
		return FormatTime(t), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.String {
		return rv.String(), true
	}
	return "", false
}
