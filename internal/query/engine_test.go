package query

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semidx/internal/config"
	"github.com/standardbeagle/semidx/internal/errs"
	"github.com/standardbeagle/semidx/internal/gitutil"
	"github.com/standardbeagle/semidx/internal/langregistry"
	"github.com/standardbeagle/semidx/internal/shard"
	"github.com/standardbeagle/semidx/internal/types"
)

var langs = langregistry.New()

const authFile = `export function handleLogin(user) {
  const [state, setState] = useState(null);
  return fetch("/login");
}
`

const uiFile = `export function renderHeader(props) {
  return header(props);
}

export function loginButton(props) {
  return handleLogin(props.user);
}
`

func newEngine(t *testing.T) *Engine {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"src/auth/login.ts": authFile,
		"src/ui/header.ts":  uiFile,
	}
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	cfg := config.Default(root)
	w, err := shard.Open(root, filepath.Join(t.TempDir(), "cache"), cfg, langs)
	require.NoError(t, err)
	_, err = w.FullWrite("sha-1")
	require.NoError(t, err)

	repo, err := gitutil.Open(root)
	require.NoError(t, err)
	return New(root, cfg, langs, w, repo)
}

func entryByName(t *testing.T, e *Engine, name string) types.SymbolIndexEntry {
	t.Helper()
	entries, err := e.Reader().SymbolIndex()
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.Name == name {
			return entry
		}
	}
	t.Fatalf("symbol %q not indexed", name)
	return types.SymbolIndexEntry{}
}

func TestSymbolSearchExactMatch(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Search(context.Background(), SearchOptions{Query: "handleLogin", Mode: ModeSymbols})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	top := resp.Results[0]
	assert.Equal(t, "handleLogin", top.Name)
	assert.Equal(t, types.KindFunction, top.Kind)
	assert.Equal(t, "src.auth.login", top.Module)
	assert.Equal(t, types.RiskHigh, top.Risk)
}

func TestHybridSearchDeduplicates(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Search(context.Background(), SearchOptions{Query: "login"})
	require.NoError(t, err)
	seen := make(map[types.SymbolID]bool)
	for _, r := range resp.Results {
		require.False(t, seen[r.Hash], "duplicate hash %s", r.Hash)
		seen[r.Hash] = true
	}
}

func TestSearchPagination(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Search(context.Background(), SearchOptions{Query: "login", Mode: ModeSymbols, Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	if resp.Total > 1 {
		assert.Equal(t, 1, resp.NextOffset)
	}
}

func TestGetSymbolByFullHash(t *testing.T) {
	e := newEngine(t)
	entry := entryByName(t, e, "handleLogin")

	shards, err := e.Symbols(SymbolLocator{Hashes: []string{entry.Hash.String()}})
	require.NoError(t, err)
	require.Len(t, shards, 1)
	assert.Equal(t, "handleLogin", shards[0].Summary.Name)
	assert.Equal(t, "src/auth/login.ts", shards[0].Summary.FilePath)
}

func TestGetSymbolRejectsShortHash(t *testing.T) {
	e := newEngine(t)
	_, err := e.Symbols(SymbolLocator{Hashes: []string{"0f0b8f30:56f1b1cb"}})
	require.Error(t, err)
	var typed *errs.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, errs.KindSymbolNotFound, typed.Kind)
	assert.Contains(t, typed.Hint, "shardHash:symbolHash")
}

func TestGetSymbolByFileLine(t *testing.T) {
	e := newEngine(t)
	entry := entryByName(t, e, "handleLogin")
	shards, err := e.Symbols(SymbolLocator{FilePath: "src/auth/login.ts", Line: entry.StartLine})
	require.NoError(t, err)
	require.NotEmpty(t, shards)
	assert.Equal(t, "handleLogin", shards[0].Summary.Name)
}

func TestGetSourceByHash(t *testing.T) {
	e := newEngine(t)
	entry := entryByName(t, e, "handleLogin")
	blocks, err := e.Source(SymbolLocator{Hashes: []string{entry.Hash.String()}}, 0, 0)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Contains(t, blocks[0].Text, "handleLogin")
}

func TestGetFileListsSymbols(t *testing.T) {
	e := newEngine(t)
	entries, err := e.File("src/ui/header.ts")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "renderHeader", entries[0].Name)
	assert.Equal(t, "loginButton", entries[1].Name)

	_, err = e.File("src/ui/missing.ts")
	var typed *errs.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, errs.KindFileNotFound, typed.Kind)
}

func TestCallersFindsReverseEdge(t *testing.T) {
	e := newEngine(t)
	target := entryByName(t, e, "handleLogin")
	resp, err := e.Callers(target.Hash.String(), 1, 20)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Callers)
	assert.Equal(t, "loginButton", resp.Callers[0].Name)
	assert.Equal(t, 1, resp.Callers[0].Depth)
}

func TestCallGraphSummary(t *testing.T) {
	e := newEngine(t)
	resp, err := e.CallGraph(GraphOptions{SummaryOnly: true})
	require.NoError(t, err)
	require.NotNil(t, resp.Summary)
	assert.Greater(t, resp.Summary.EdgeCount, 0)
	assert.Greater(t, resp.Summary.SymbolCount, 0)
}

func TestValidateMetrics(t *testing.T) {
	e := newEngine(t)
	resp, err := e.Validate(ValidateOptions{FilePath: "src/auth/login.ts"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Metrics)
	m := resp.Metrics[0]
	assert.Equal(t, "handleLogin", m.Name)
	assert.GreaterOrEqual(t, m.Cyclomatic, 1)
	assert.Greater(t, m.LOC, 0)
}

func TestModuleNotFound(t *testing.T) {
	e := newEngine(t)
	_, err := e.Validate(ValidateOptions{Module: "no.such.module"})
	var typed *errs.Error
	require.True(t, errors.As(err, &typed))
	assert.Equal(t, errs.KindModuleNotFound, typed.Kind)
}

func TestAnalyzeArbitraryFile(t *testing.T) {
	e := newEngine(t)
	outside := filepath.Join(t.TempDir(), "loose.go")
	require.NoError(t, os.WriteFile(outside, []byte("package loose\n\nfunc Solo() {}\n"), 0o644))

	resp, err := e.Analyze(AnalyzeOptions{Path: outside})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Symbols)
	assert.Equal(t, "Solo", resp.Symbols[0].Name)
}

func TestOverviewCap(t *testing.T) {
	e := newEngine(t)
	overview, err := e.Overview(1)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(overview.Modules), 1)
	assert.Equal(t, 2, overview.ModulesTotal)
}
