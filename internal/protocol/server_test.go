package protocol

import (
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semidx/internal/encode"
	"github.com/standardbeagle/semidx/internal/errs"
	"github.com/standardbeagle/semidx/internal/fresh"
)

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestRespondDefaultsToCompactNotation(t *testing.T) {
	payload := struct {
		Branch  string `json:"branch"`
		Symbols int    `json:"symbols"`
	}{"main", 42}

	res, err := respond("context", "", payload, nil)
	require.NoError(t, err)
	text := textOf(t, res)
	assert.Contains(t, text, "_type: context\n")
	assert.Contains(t, text, "branch: main\n")
	assert.Contains(t, text, "symbols: 42\n")

	// The rendered text parses under the compact-notation grammar.
	_, parseErr := encode.Parse(text)
	assert.NoError(t, parseErr)
}

func TestRespondJSONMode(t *testing.T) {
	payload := struct {
		Branch string `json:"branch"`
	}{"main"}
	res, err := respond("context", "json", payload, nil)
	require.NoError(t, err)
	text := textOf(t, res)
	assert.Contains(t, text, `"_type":"context"`)
	assert.Contains(t, text, `"branch":"main"`)
}

func TestRespondAttachesRefreshNote(t *testing.T) {
	note := &fresh.Note{Status: "refreshed", FilesUpdated: 3, DurationMs: 12}
	res, err := respond("search_results", "", struct {
		Total int `json:"total"`
	}{1}, note)
	require.NoError(t, err)
	text := textOf(t, res)
	assert.Contains(t, text, "refreshed.status: refreshed\n")
	assert.Contains(t, text, "refreshed.files_updated: 3\n")
}

func TestRespondDropsFreshNote(t *testing.T) {
	res, err := respond("search_results", "", struct {
		Total int `json:"total"`
	}{1}, &fresh.Note{Status: "fresh"})
	require.NoError(t, err)
	assert.NotContains(t, textOf(t, res), "refreshed")
}

func TestFailureMapsTypedErrors(t *testing.T) {
	res, err := failure(errs.SymbolNotFound("abcd:ef01"))
	require.NoError(t, err)
	require.True(t, res.IsError)
	text := textOf(t, res)
	assert.Contains(t, text, "_type: error\n")
	assert.Contains(t, text, "code: symbol_not_found\n")
	assert.Contains(t, text, "use full shardHash:symbolHash")
}

func TestFailureWrapsUnknownErrors(t *testing.T) {
	res, err := failure(assert.AnError)
	require.NoError(t, err)
	require.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "code: internal\n")
}
