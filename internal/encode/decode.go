package encode

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	scalarLineRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*): (.*)$`)
	arrayHeadRe  = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_.]*)\[(\d+)\](?:\{([^}]*)\})?:(.*)$`)
)

// Parse accepts exactly the grammar produced by Format: a sequence of
// records separated by blank lines, each a list of scalar, array and
// table fields.
func Parse(input string) ([]*Record, error) {
	lines := strings.Split(input, "\n")
	var records []*Record
	var cur *Record

	i := 0
	for i < len(lines) {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			cur = nil
			i++
			continue
		}
		if strings.HasPrefix(line, indent) {
			return nil, fmt.Errorf("encode: unexpected indented line %d: %q", i+1, line)
		}
		if cur == nil {
			cur = &Record{}
			records = append(records, cur)
		}

		if m := arrayHeadRe.FindStringSubmatch(line); m != nil {
			key, countStr, schema, rest := m[1], m[2], m[3], m[4]
			n, err := strconv.Atoi(countStr)
			if err != nil {
				return nil, fmt.Errorf("encode: bad element count on line %d: %w", i+1, err)
			}
			if schema != "" {
				t := &Table{Cols: splitCols(schema)}
				i++
				for len(t.Rows) < n {
					if i >= len(lines) || !strings.HasPrefix(lines[i], indent) {
						return nil, fmt.Errorf("encode: table %q expects %d rows, got %d", key, n, len(t.Rows))
					}
					row, err := splitCells(strings.TrimPrefix(lines[i], indent))
					if err != nil {
						return nil, fmt.Errorf("encode: line %d: %w", i+1, err)
					}
					if len(row) != len(t.Cols) {
						return nil, fmt.Errorf("encode: table %q row has %d cells, schema has %d", key, len(row), len(t.Cols))
					}
					t.Rows = append(t.Rows, row)
					i++
				}
				cur.Add(key, t)
				continue
			}
			if rest != "" {
				// Inline short array: `key[n]: a,b,c`.
				cells, err := splitCells(strings.TrimPrefix(rest, " "))
				if err != nil {
					return nil, fmt.Errorf("encode: line %d: %w", i+1, err)
				}
				if len(cells) != n {
					return nil, fmt.Errorf("encode: array %q declares %d elements, has %d", key, n, len(cells))
				}
				cur.Add(key, List(cells))
				i++
				continue
			}
			list := make(List, 0, n)
			i++
			for len(list) < n {
				if i >= len(lines) || !strings.HasPrefix(lines[i], indent) {
					return nil, fmt.Errorf("encode: array %q expects %d elements, got %d", key, n, len(list))
				}
				v, err := parseCell(strings.TrimPrefix(lines[i], indent))
				if err != nil {
					return nil, fmt.Errorf("encode: line %d: %w", i+1, err)
				}
				list = append(list, v)
				i++
			}
			cur.Add(key, list)
			continue
		}

		if m := scalarLineRe.FindStringSubmatch(line); m != nil {
			v, err := parseCell(m[2])
			if err != nil {
				return nil, fmt.Errorf("encode: line %d: %w", i+1, err)
			}
			cur.Add(m[1], v)
			i++
			continue
		}

		return nil, fmt.Errorf("encode: malformed line %d: %q", i+1, line)
	}
	return records, nil
}

func splitCols(schema string) []string {
	parts := strings.Split(schema, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// splitCells splits a comma-separated cell line, honoring quoted cells.
func splitCells(line string) ([]any, error) {
	var cells []any
	rest := line
	for {
		cellText, remainder, err := takeCell(rest)
		if err != nil {
			return nil, err
		}
		v, err := parseCell(cellText)
		if err != nil {
			return nil, err
		}
		cells = append(cells, v)
		if remainder == "" {
			return cells, nil
		}
		rest = remainder
	}
}

// takeCell consumes one cell off the front of line, returning the raw
// cell text and the remainder after the separating comma ("" at end of
// line).
func takeCell(line string) (cellText, remainder string, err error) {
	if strings.HasPrefix(line, `"`) {
		end := closingQuote(line)
		if end < 0 {
			return "", "", fmt.Errorf("unterminated quoted cell: %q", line)
		}
		cellText = line[:end+1]
		rest := line[end+1:]
		if rest == "" {
			return cellText, "", nil
		}
		if !strings.HasPrefix(rest, ",") {
			return "", "", fmt.Errorf("trailing content after quoted cell: %q", line)
		}
		return cellText, rest[1:], nil
	}
	if i := strings.IndexByte(line, ','); i >= 0 {
		return line[:i], line[i+1:], nil
	}
	return line, "", nil
}

func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

// parseCell converts one rendered cell back into its scalar value:
// quoted cells are strings, "true"/"false" are booleans, cells with a
// mantissa or exponent are floats, digit runs are integers, anything
// else is a bare string.
func parseCell(text string) (any, error) {
	if strings.HasPrefix(text, `"`) {
		return unquote(text)
	}
	switch text {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if strings.ContainsAny(text, ".eE") {
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f, nil
		}
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return n, nil
	}
	return text, nil
}

func unquote(text string) (string, error) {
	if len(text) < 2 || !strings.HasSuffix(text, `"`) {
		return "", fmt.Errorf("malformed quoted string: %q", text)
	}
	body := text[1 : len(text)-1]
	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("dangling escape in %q", text)
		}
		switch body[i] {
		case '"':
			b.WriteByte('"')
		case '\\':
			b.WriteByte('\\')
		case 'n':
			b.WriteByte('\n')
		default:
			return "", fmt.Errorf("unknown escape \\%c in %q", body[i], text)
		}
	}
	return b.String(), nil
}
