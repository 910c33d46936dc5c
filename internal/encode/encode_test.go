package encode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarRendering(t *testing.T) {
	rec := Typed("context").
		Add("branch", "main").
		Add("symbols", int64(42)).
		Add("ratio", 0.5).
		Add("fresh", true)
	out := Format(rec)
	assert.Equal(t, "_type: context\nbranch: main\nsymbols: 42\nratio: 0.5\nfresh: true\n", out)
}

func TestInlineShortArray(t *testing.T) {
	rec := (&Record{}).Add("tags", List{"react", "nextjs"})
	assert.Equal(t, "tags[2]: react,nextjs\n", Format(rec))
}

func TestBlockArrayWhenLong(t *testing.T) {
	long := List{
		strings.Repeat("a", 40),
		strings.Repeat("b", 40),
	}
	out := Format((&Record{}).Add("items", long))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "items[2]:", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "  "))
}

func TestTableRendering(t *testing.T) {
	table := &Table{
		Cols: []string{"name", "line", "risk"},
		Rows: [][]any{
			{"handleLogin", int64(12), "high"},
			{"renderHeader", int64(40), "low"},
		},
	}
	out := Format((&Record{}).Add("symbols", table))
	assert.Equal(t, "symbols[2]{name,line,risk}:\n  handleLogin,12,high\n  renderHeader,40,low\n", out)
}

func TestQuotingRules(t *testing.T) {
	rec := (&Record{}).
		Add("comma", "a,b").
		Add("brace", "f{x}").
		Add("newline", "one\ntwo").
		Add("numberish", "123").
		Add("boolish", "true").
		Add("empty", "")
	out := Format(rec)
	assert.Contains(t, out, `comma: "a,b"`)
	assert.Contains(t, out, `brace: "f{x}"`)
	assert.Contains(t, out, `newline: "one\ntwo"`)
	assert.Contains(t, out, `numberish: "123"`)
	assert.Contains(t, out, `boolish: "true"`)
	assert.Contains(t, out, `empty: ""`)
}

// decode(encode(x)) == x for well-formed records.
func TestRoundTrip(t *testing.T) {
	records := []*Record{
		Typed("overview").
			Add("total_files", int64(1204)).
			Add("tags", List{"react", "express"}).
			Add("modules", &Table{
				Cols: []string{"module", "symbols"},
				Rows: [][]any{
					{"auth.login", int64(4)},
					{"ui.header", int64(2)},
				},
			}),
		Typed("search_results").
			Add("query", "handleLogin").
			Add("score", 1.5).
			Add("awkward", "value, with: {stuff}\nand lines").
			Add("hits", List{int64(1), int64(2), int64(3)}),
	}
	out := Format(records...)
	parsed, err := Parse(out)
	require.NoError(t, err)
	require.Equal(t, records, parsed)
}

func TestRoundTripScalarKinds(t *testing.T) {
	rec := (&Record{}).
		Add("s", "plain").
		Add("quoted_number", "42").
		Add("i", int64(42)).
		Add("f", 42.0).
		Add("neg", int64(-7)).
		Add("b", false)
	parsed, err := Parse(Format(rec))
	require.NoError(t, err)
	require.Len(t, parsed, 1)
	assert.Equal(t, rec, parsed[0])
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("  indented first line\n")
	assert.Error(t, err)

	_, err = Parse("items[3]:\n  only\n  two\n")
	assert.Error(t, err)

	_, err = Parse("bad line without separator\n")
	assert.Error(t, err)
}

func TestRecordSeparation(t *testing.T) {
	out := Format(
		Typed("a").Add("x", int64(1)),
		Typed("b").Add("y", int64(2)),
	)
	parsed, err := Parse(out)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, Field{Key: "_type", Value: "a"}, parsed[0].Fields[0])
	assert.Equal(t, Field{Key: "_type", Value: "b"}, parsed[1].Fields[0])
}

func TestMarshalReflectsStructs(t *testing.T) {
	type row struct {
		Name string `json:"name"`
		Line int    `json:"line"`
	}
	type payload struct {
		Query   string         `json:"query"`
		Total   int            `json:"total"`
		Skipped string         `json:"skipped,omitempty"`
		Rows    []row          `json:"rows"`
		Langs   map[string]int `json:"langs"`
	}
	out := Marshal("search_results", payload{
		Query: "login",
		Total: 2,
		Rows:  []row{{Name: "handleLogin", Line: 10}, {Name: "loginForm", Line: 30}},
		Langs: map[string]int{"ts": 2, "go": 1},
	})
	assert.Contains(t, out, "_type: search_results\n")
	assert.Contains(t, out, "query: login\n")
	assert.Contains(t, out, "total: 2\n")
	assert.NotContains(t, out, "skipped")
	assert.Contains(t, out, "rows[2]{name,line}:\n  handleLogin,10\n  loginForm,30\n")
	assert.Contains(t, out, "langs[2]{key,value}:\n  go,1\n  ts,2\n")

	// The rendered form parses back under the grammar.
	_, err := Parse(out)
	assert.NoError(t, err)
}
