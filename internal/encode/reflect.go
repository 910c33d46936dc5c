package encode

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Marshal renders a tagged struct as one record in the compact
// notation, with an optional `_type:` tag; a top-level map or slice is
// not expanded into fields. Field
// order follows struct declaration order, so identical inputs yield
// identical output.
func Marshal(kind string, v any) string {
	rec := RecordOf(kind, v)
	return Format(rec)
}

// RecordOf converts a tagged struct into a Record: scalar fields render
// as scalars, string slices as arrays, homogeneous struct slices as
// tables, count maps as {key,value} tables.
func RecordOf(kind string, v any) *Record {
	var rec *Record
	if kind != "" {
		rec = Typed(kind)
	} else {
		rec = &Record{}
	}
	appendValue(rec, "", reflect.ValueOf(v))
	return rec
}

func appendValue(rec *Record, prefix string, rv reflect.Value) {
	rv = deref(rv)
	if !rv.IsValid() {
		return
	}
	if rv.Kind() != reflect.Struct {
		if v, ok := scalarOf(rv); ok {
			rec.Add(prefix, v)
		}
		return
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		ft := rt.Field(i)
		if !ft.IsExported() {
			continue
		}
		name, omitEmpty, skip := fieldName(ft)
		if skip {
			continue
		}
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		fv := deref(rv.Field(i))
		if !fv.IsValid() {
			continue
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		appendField(rec, key, fv)
	}
}

func appendField(rec *Record, key string, fv reflect.Value) {
	if v, ok := scalarOf(fv); ok {
		rec.Add(key, v)
		return
	}
	switch fv.Kind() {
	case reflect.Slice, reflect.Array:
		appendSlice(rec, key, fv)
	case reflect.Map:
		appendMap(rec, key, fv)
	case reflect.Struct:
		appendValue(rec, key, fv)
	}
}

func appendSlice(rec *Record, key string, fv reflect.Value) {
	n := fv.Len()
	elem := fv.Type().Elem()
	for elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	if elem.Kind() == reflect.Struct && !isStringerType(elem) {
		if hasComplexFields(elem) {
			// Deep records can't live in a flat table; each element
			// flattens under an index-suffixed key instead.
			rec.Add(key+"_count", int64(n))
			for i := 0; i < n; i++ {
				ev := deref(fv.Index(i))
				if ev.IsValid() {
					appendValue(rec, fmt.Sprintf("%s.%d", key, i), ev)
				}
			}
			return
		}
		rec.Add(key, tableOf(elem, fv))
		return
	}
	list := make(List, 0, n)
	for i := 0; i < n; i++ {
		if v, ok := scalarOf(deref(fv.Index(i))); ok {
			list = append(list, v)
		}
	}
	rec.Add(key, list)
}

// hasComplexFields reports whether a struct type carries any exported
// non-scalar field, which rules out flat tabular rendering.
func hasComplexFields(t reflect.Type) bool {
	for i := 0; i < t.NumField(); i++ {
		ft := t.Field(i)
		if !ft.IsExported() {
			continue
		}
		if _, _, skip := fieldName(ft); skip {
			continue
		}
		if !isScalarField(ft.Type) {
			return true
		}
	}
	return false
}

func tableOf(elem reflect.Type, fv reflect.Value) *Table {
	var cols []string
	var fields []int
	for i := 0; i < elem.NumField(); i++ {
		ft := elem.Field(i)
		if !ft.IsExported() {
			continue
		}
		name, _, skip := fieldName(ft)
		if skip || !isScalarField(ft.Type) {
			continue
		}
		cols = append(cols, name)
		fields = append(fields, i)
	}
	t := &Table{Cols: cols}
	for i := 0; i < fv.Len(); i++ {
		ev := deref(fv.Index(i))
		if !ev.IsValid() {
			continue
		}
		row := make([]any, 0, len(fields))
		for _, fi := range fields {
			v, ok := scalarOf(deref(ev.Field(fi)))
			if !ok {
				v = ""
			}
			row = append(row, v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func appendMap(rec *Record, key string, fv reflect.Value) {
	keys := make([]string, 0, fv.Len())
	byKey := make(map[string]reflect.Value, fv.Len())
	iter := fv.MapRange()
	for iter.Next() {
		k := fmt.Sprint(iter.Key().Interface())
		keys = append(keys, k)
		byKey[k] = iter.Value()
	}
	sort.Strings(keys)
	t := &Table{Cols: []string{"key", "value"}}
	for _, k := range keys {
		v, ok := scalarOf(deref(byKey[k]))
		if !ok {
			continue
		}
		t.Rows = append(t.Rows, []any{k, v})
	}
	rec.Add(key, t)
}

var stringerIface = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()

func isStringerType(t reflect.Type) bool {
	return t.Implements(stringerIface) || reflect.PointerTo(t).Implements(stringerIface)
}

func isScalarField(t reflect.Type) bool {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return isStringerType(t)
}

// scalarOf converts a reflect value into one of the four cell kinds,
// preferring fmt.Stringer for struct-valued identifiers (SymbolID).
func scalarOf(rv reflect.Value) (any, bool) {
	if !rv.IsValid() {
		return nil, false
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	if rv.CanInterface() && isStringerType(rv.Type()) {
		if s, ok := rv.Interface().(fmt.Stringer); ok {
			return s.String(), true
		}
		if rv.CanAddr() {
			if s, ok := rv.Addr().Interface().(fmt.Stringer); ok {
				return s.String(), true
			}
		}
	}
	return nil, false
}

func deref(rv reflect.Value) reflect.Value {
	for rv.IsValid() && (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) {
		if rv.IsNil() {
			return reflect.Value{}
		}
		rv = rv.Elem()
	}
	return rv
}

func fieldName(ft reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := ft.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name = ft.Name
	if tag != "" {
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			name = parts[0]
		}
		for _, opt := range parts[1:] {
			if opt == "omitempty" {
				omitEmpty = true
			}
		}
	}
	return name, omitEmpty, false
}
