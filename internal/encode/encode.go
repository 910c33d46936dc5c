// Package encode implements the compact textual notation every query
// response renders as, plus a matching parser accepting
// exactly that grammar. JSON is the alternative per-request encoding;
// it is produced by encoding/json directly, not here.
package encode

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// A cell value is one of: string, int64, float64, bool.

// List is an array of scalar cells, rendered inline when short and as
// a newline-indented block otherwise.
type List []any

// Table is a homogeneous array of records with a declared column
// schema: `name[n]{col1,col2}:` followed by one comma-separated row
// per line.
type Table struct {
	Cols []string
	Rows [][]any
}

// Field is one key/value pair in a Record. Value is a scalar cell, a
// List, or a *Table.
type Field struct {
	Key   string
	Value any
}

// Record is one top-level record: an ordered field list. Order is
// significant: identical cache state must yield identical output.
type Record struct {
	Fields []Field
}

// Add appends a field and returns the record for chaining.
func (r *Record) Add(key string, value any) *Record {
	r.Fields = append(r.Fields, Field{Key: key, Value: value})
	return r
}

// Typed starts a record with the `_type:` routing tag.
func Typed(kind string) *Record {
	r := &Record{}
	return r.Add("_type", kind)
}

const indent = "  "

// inlineListMax bounds the rendered length above which a list falls
// back to block form.
const inlineListMax = 60

// Format renders records in sequence, separated by a blank line; no
// document delimiters, whitespace only.
func Format(records ...*Record) string {
	var b strings.Builder
	for i, rec := range records {
		if i > 0 {
			b.WriteByte('\n')
		}
		writeRecord(&b, rec)
	}
	return b.String()
}

func writeRecord(b *strings.Builder, rec *Record) {
	for _, f := range rec.Fields {
		switch v := f.Value.(type) {
		case List:
			writeList(b, f.Key, v)
		case *Table:
			writeTable(b, f.Key, v)
		default:
			b.WriteString(f.Key)
			b.WriteString(": ")
			b.WriteString(cell(v))
			b.WriteByte('\n')
		}
	}
}

func writeList(b *strings.Builder, key string, list List) {
	cells := make([]string, len(list))
	total := 0
	multiline := false
	for i, v := range list {
		cells[i] = cell(v)
		total += len(cells[i]) + 1
		if strings.Contains(cells[i], "\n") {
			multiline = true
		}
	}
	fmt.Fprintf(b, "%s[%d]:", key, len(list))
	if len(list) > 0 && total <= inlineListMax && !multiline {
		b.WriteByte(' ')
		b.WriteString(strings.Join(cells, ","))
		b.WriteByte('\n')
		return
	}
	b.WriteByte('\n')
	for _, c := range cells {
		b.WriteString(indent)
		b.WriteString(c)
		b.WriteByte('\n')
	}
}

func writeTable(b *strings.Builder, key string, t *Table) {
	fmt.Fprintf(b, "%s[%d]{%s}:\n", key, len(t.Rows), strings.Join(t.Cols, ","))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = cell(v)
		}
		b.WriteString(indent)
		b.WriteString(strings.Join(cells, ","))
		b.WriteByte('\n')
	}
}

// cell renders one scalar. Strings that could be misread (containing
// commas, braces or newlines per the grammar, or that would parse back
// as a number, boolean or quoted form) are double-quoted with internal
// quotes escaped.
func cell(v any) string {
	switch x := v.(type) {
	case string:
		if needsQuoting(x) {
			return quote(x)
		}
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	default:
		return quote(fmt.Sprint(x))
	}
}

func needsQuoting(s string) bool {
	if s == "" {
		return true
	}
	if strings.ContainsAny(s, ",{}\"\n") {
		return true
	}
	if s != strings.TrimSpace(s) {
		return true
	}
	if s == "true" || s == "false" {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	return false
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// SortedCountTable renders a map of counts as a deterministic
// {key,count} table, the shape used for language and risk histograms.
func SortedCountTable[K ~string](m map[K]int) *Table {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	t := &Table{Cols: []string{"key", "count"}}
	for _, k := range keys {
		t.Rows = append(t.Rows, []any{k, int64(m[K(k)])})
	}
	return t
}

// Strings converts a string slice to a List.
func Strings(ss []string) List {
	l := make(List, len(ss))
	for i, s := range ss {
		l[i] = s
	}
	return l
}
