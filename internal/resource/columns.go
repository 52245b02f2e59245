package resource

import (
	"reflect"
	"strings"
)

// columns maps each JSON column of a record struct to its Go kind.
type columns map[string]reflect.Kind

func columnsOf[T any]() columns {
	cols := make(columns)
	rt := reflect.TypeOf((*T)(nil)).Elem()
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return cols
	}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = f.Name
		}
		cols[name] = f.Type.Kind()
	}
	return cols
}

func (c columns) has(name string) bool {
	_, ok := c[name]
	return ok
}

func (c columns) isBool(name string) bool {
	return c[name] == reflect.Bool
}
