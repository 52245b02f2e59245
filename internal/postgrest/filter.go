package postgrest

import (
	"fmt"
	"strconv"
	"strings"

	pg "github.com/supabase-community/postgrest-go"

	"github.com/mesh-intelligence/larder/pkg/types"
)

func applyPredicates(fb *pg.FilterBuilder, preds []types.Predicate) (*pg.FilterBuilder, error) {
	for _, p := range preds {
		switch p.Op {
		case types.OpEq:
			if p.Value == nil {
				fb = fb.Is(p.Field, "null")
				continue
			}
			v, err := formatValue(p.Value)
			if err != nil {
				return nil, err
			}
			fb = fb.Eq(p.Field, v)
		case types.OpGte, types.OpLte:
			v, err := formatValue(p.Value)
			if err != nil {
				return nil, err
			}
			if p.Op == types.OpGte {
				fb = fb.Gte(p.Field, v)
			} else {
				fb = fb.Lte(p.Field, v)
			}
		case types.OpILike:
			term, ok := p.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: ilike on %s needs a string", types.ErrInvalidFilter, p.Field)
			}
			fb = fb.Ilike(p.Field, ilikePattern(term))
		case types.OpSearch:
			term, ok := p.Value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: search needs a string", types.ErrInvalidFilter)
			}
			fb = fb.Or(searchFilter(term, p.Fields), "")
		default:
			return nil, fmt.Errorf("%w: unknown op %q", types.ErrInvalidFilter, p.Op)
		}
	}
	return fb, nil
}

var ilikeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, `_`)

// ilikePattern renders a substring pattern for ilike with LIKE wildcards in
// term escaped. PostgREST reads every * as %, so a literal * is sent as the
// single character wildcard and the results need refiltering.
func ilikePattern(term string) string {
	return "*" + ilikeEscaper.Replace(term) + "*"
}

// searchFilter renders the or=(...) body matching term in any field. The
// pattern is quoted when it contains characters reserved by the or syntax.
func searchFilter(term string, fields []string) string {
	pattern := ilikePattern(term)
	if strings.ContainsAny(pattern, ",.:()\"\\") {
		pattern = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(pattern) + `"`
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ".ilike." + pattern
	}
	return strings.Join(parts, ",")
}

// widened reports whether q has a text pattern the server can only match
// loosely, so a server side limit could cut rows the local filter keeps.
func widened(q types.Query) bool {
	for _, p := range q.Predicates {
		if p.Op != types.OpILike && p.Op != types.OpSearch {
			continue
		}
		if term, ok := p.Value.(string); ok && strings.Contains(term, "*") {
			return true
		}
	}
	return false
}

func formatValue(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return "", fmt.Errorf("%w: unsupported value %T", types.ErrInvalidFilter, v)
}
