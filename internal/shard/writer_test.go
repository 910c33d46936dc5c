package shard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semidx/internal/config"
	"github.com/standardbeagle/semidx/internal/langregistry"
	"github.com/standardbeagle/semidx/internal/types"
)

var langs = langregistry.New()

func newRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func openWriter(t *testing.T, root string) *Writer {
	t.Helper()
	w, err := Open(root, filepath.Join(t.TempDir(), "cache"), config.Default(root), langs)
	require.NoError(t, err)
	return w
}

const fileA = `package core

func Alpha(n int) int {
	if n > 1 {
		return beta(n)
	}
	return n
}

func beta(n int) int {
	return n - 1
}
`

const fileB = `package util

func Helper(s string) string {
	return s
}
`

func TestFullWritePersistsAllArtifacts(t *testing.T) {
	root := newRepo(t, map[string]string{
		"src/core/alpha.go": fileA,
		"src/util/help.go":  fileB,
	})
	w := openWriter(t, root)

	report, err := w.FullWrite("sha-1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesProcessed)

	store := w.Store()
	for _, path := range []string{
		store.SymbolIndexPath(),
		store.BM25IndexPath(),
		store.OverviewPath(),
		store.MetaPath(),
		store.CallGraphPath(),
		store.ImportGraphPath(),
		store.ModuleGraphPath(),
		store.ModuleRegistryPath(),
	} {
		_, statErr := os.Stat(path)
		assert.NoError(t, statErr, path)
	}

	reader := NewReader(store)
	entries, err := reader.SymbolIndex()
	require.NoError(t, err)
	names := make(map[string]types.SymbolIndexEntry)
	for _, e := range entries {
		names[e.Name] = e
	}
	require.Contains(t, names, "Alpha")
	require.Contains(t, names, "beta")
	require.Contains(t, names, "Helper")
	assert.Equal(t, "src.core.alpha", names["Alpha"].Module)

	// Every index row has a resolvable symbol shard (index consistency).
	for _, e := range entries {
		_, found, err := reader.SymbolShard(e.Hash)
		require.NoError(t, err)
		assert.True(t, found, e.Name)
	}

	meta, found, err := reader.Meta()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "sha-1", meta.IndexedSHA)
}

func TestCallEdgesResolveInternally(t *testing.T) {
	root := newRepo(t, map[string]string{"src/core/alpha.go": fileA})
	w := openWriter(t, root)
	_, err := w.FullWrite("sha-1")
	require.NoError(t, err)

	reader := NewReader(w.Store())
	entries, err := reader.SymbolIndex()
	require.NoError(t, err)
	var alphaID, betaID types.SymbolID
	for _, e := range entries {
		switch e.Name {
		case "Alpha":
			alphaID = e.Hash
		case "beta":
			betaID = e.Hash
		}
	}
	require.False(t, alphaID.IsZero())
	require.False(t, betaID.IsZero())

	edges, err := reader.CallGraph()
	require.NoError(t, err)
	foundEdge := false
	for _, edge := range edges {
		if edge.From == alphaID && edge.To == betaID {
			foundEdge = true
		}
		if edge.To.IsZero() {
			assert.Contains(t, edge.ExternalName, "ext:")
		}
	}
	assert.True(t, foundEdge, "Alpha -> beta edge must resolve internally")
}

func TestPartialReindexLeavesOtherShardsUntouched(t *testing.T) {
	root := newRepo(t, map[string]string{
		"src/core/alpha.go": fileA,
		"src/util/help.go":  fileB,
	})
	w := openWriter(t, root)
	_, err := w.FullWrite("sha-1")
	require.NoError(t, err)

	reader := NewReader(w.Store())
	entries, err := reader.SymbolIndex()
	require.NoError(t, err)
	var helperID types.SymbolID
	for _, e := range entries {
		if e.Name == "Helper" {
			helperID = e.Hash
		}
	}
	require.False(t, helperID.IsZero())
	helperShardPath := w.Store().SymbolShardPath(hex16(helperID.ShardHash), hex16(helperID.SymbolHash))
	before, err := os.ReadFile(helperShardPath)
	require.NoError(t, err)

	// Edit alpha.go: rename Alpha to Gamma.
	edited := `package core

func Gamma(n int) int {
	if n > 1 {
		return beta(n)
	}
	return n
}

func beta(n int) int {
	return n - 1
}
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "src/core/alpha.go"), []byte(edited), 0o644))

	report, err := w.PartialReindex([]string{"src/core/alpha.go"}, "sha-2")
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesProcessed)

	// Untouched file's shard is byte-identical.
	after, err := os.ReadFile(helperShardPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	entries, err = reader.SymbolIndex()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["Gamma"])
	assert.False(t, names["Alpha"], "stale rows for changed files are removed")
	assert.True(t, names["Helper"], "rows for unchanged files survive")

	meta, _, err := reader.Meta()
	require.NoError(t, err)
	assert.Equal(t, "sha-2", meta.IndexedSHA)
}

func TestPartialReindexHandlesDeletedFile(t *testing.T) {
	root := newRepo(t, map[string]string{
		"src/core/alpha.go": fileA,
		"src/util/help.go":  fileB,
	})
	w := openWriter(t, root)
	_, err := w.FullWrite("sha-1")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(root, "src/util/help.go")))
	report, err := w.PartialReindex([]string{"src/util/help.go"}, "sha-2")
	require.NoError(t, err)
	assert.Equal(t, 1, report.FilesDeleted)

	reader := NewReader(w.Store())
	entries, err := reader.SymbolIndex()
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "Helper", e.Name)
	}

	// The module's registry entry went with its last file.
	_, ok := w.Registry().Resolve("src.util.help")
	assert.False(t, ok)
}

func TestOverviewBounded(t *testing.T) {
	root := newRepo(t, map[string]string{
		"src/core/alpha.go": fileA,
		"src/util/help.go":  fileB,
	})
	w := openWriter(t, root)
	_, err := w.FullWrite("sha-1")
	require.NoError(t, err)

	overview, found, err := NewReader(w.Store()).Overview()
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, overview.TotalFiles)
	assert.Equal(t, 2, overview.ModulesTotal)
	assert.LessOrEqual(t, len(overview.Modules), 100)
	assert.NotEmpty(t, overview.RiskHistogram)
}
