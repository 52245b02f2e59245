package sqlstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/mesh-intelligence/larder/pkg/types"
)

// toArg converts a row value into a driver argument for a column of kind k.
func toArg(c column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.kind {
	case kindJSON:
		if s, ok := v.(string); ok && json.Valid([]byte(s)) {
			return s, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidData, c.name, err)
		}
		return string(data), nil
	case kindTime:
		switch t := v.(type) {
		case time.Time:
			return types.FormatTime(t), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", types.ErrInvalidData, c.name, err)
			}
			return types.FormatTime(parsed), nil
		}
		return nil, fmt.Errorf("%w: %s must be a timestamp", types.ErrInvalidData, c.name)
	case kindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a boolean", types.ErrInvalidData, c.name)
		}
		return b, nil
	case kindInt:
		switch n := v.(type) {
		case float64:
			return int64(n), nil
		case int:
			return int64(n), nil
		case int64:
			return n, nil
		case json.Number:
			return n.Int64()
		}
		return nil, fmt.Errorf("%w: %s must be an integer", types.ErrInvalidData, c.name)
	case kindReal:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case json.Number:
			return n.Float64()
		}
		return nil, fmt.Errorf("%w: %s must be a number", types.ErrInvalidData, c.name)
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s must be a string", types.ErrInvalidData, c.name)
		}
		return s, nil
	}
}

// fromDB converts a scanned driver value into the row form used by the rest
// of larder: strings, float64/int64 numbers, bools, decoded JSON, and
// timestamps in types.TimeLayout.
func fromDB(c column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	switch c.kind {
	case kindJSON:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", c.name, err)
		}
		return out, nil
	case kindTime:
		switch t := v.(type) {
		case time.Time:
			return types.FormatTime(t), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return t, nil
			}
			return types.FormatTime(parsed), nil
		}
		return v, nil
	case kindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		case string:
			return strconv.ParseBool(b)
		}
		return v, nil
	case kindInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		}
		return v, nil
	case kindReal:
		switch n := v.(type) {
		case float64:
			return n, nil
		case int64:
			return float64(n), nil
		case string:
			return strconv.ParseFloat(n, 64)
		}
		return v, nil
	default:
		return v, nil
	}
}

// predicateArg converts a predicate bound for column c. Bounds on timestamp
// columns are normalized the same way stored values are.
func predicateArg(c column, v any) (any, error) {
	arg, err := toArg(c, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidFilter, err)
	}
	return arg, nil
}
