package sqlstore

import (
	"fmt"
	"strings"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// buildSelect translates q into a SELECT over s. Every column referenced by
// q must exist in s. Results are ordered by the sort column, then id.
func buildSelect(s tableSchema, q types.Query) (string, []any, error) {
	var conditions []string
	var args []any

	for _, p := range q.Predicates {
		switch p.Op {
		case types.OpSearch:
			term, ok := p.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: search needs a string", types.ErrInvalidFilter)
			}
			ors := make([]string, 0, len(p.Fields))
			for _, f := range p.Fields {
				if !s.has(f) {
					return "", nil, fmt.Errorf("%w: %s", types.ErrUnknownField, f)
				}
				ors = append(ors, "LOWER("+f+") LIKE LOWER(?) "+likeEscape)
				args = append(args, likePattern(term))
			}
			conditions = append(conditions, "("+strings.Join(ors, " OR ")+")")
			continue
		}

		c, ok := s.column(p.Field)
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", types.ErrUnknownField, p.Field)
		}
		switch p.Op {
		case types.OpEq:
			if p.Value == nil {
				conditions = append(conditions, c.name+" IS NULL")
				continue
			}
			arg, err := predicateArg(c, p.Value)
			if err != nil {
				return "", nil, err
			}
			conditions = append(conditions, c.name+" = ?")
			args = append(args, arg)
		case types.OpGte, types.OpLte:
			arg, err := predicateArg(c, p.Value)
			if err != nil {
				return "", nil, err
			}
			op := ">="
			if p.Op == types.OpLte {
				op = "<="
			}
			conditions = append(conditions, c.name+" "+op+" ?")
			args = append(args, arg)
		case types.OpILike:
			term, ok := p.Value.(string)
			if !ok {
				return "", nil, fmt.Errorf("%w: ilike on %s needs a string", types.ErrInvalidFilter, c.name)
			}
			conditions = append(conditions, "LOWER("+c.name+") LIKE LOWER(?) "+likeEscape)
			args = append(args, likePattern(term))
		default:
			return "", nil, fmt.Errorf("%w: unknown op %q", types.ErrInvalidFilter, p.Op)
		}
	}

	query := "SELECT " + strings.Join(s.names(), ", ") + " FROM " + s.name
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	order := "id ASC"
	if q.Sort != nil {
		if !s.has(q.Sort.Field) {
			return "", nil, fmt.Errorf("%w: sort by %s", types.ErrUnknownField, q.Sort.Field)
		}
		dir := "ASC NULLS FIRST"
		if q.Sort.Descending {
			dir = "DESC NULLS LAST"
		}
		if q.Sort.Field != "id" {
			order = q.Sort.Field + " " + dir + ", id ASC"
		} else if q.Sort.Descending {
			order = "id DESC"
		}
	}
	query += " ORDER BY " + order

	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return query, args, nil
}

const likeEscape = `ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps term for a substring LIKE. Wildcards in term match
// themselves.
func likePattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
