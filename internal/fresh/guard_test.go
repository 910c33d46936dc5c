package fresh

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semidx/internal/config"
	"github.com/standardbeagle/semidx/internal/drift"
	"github.com/standardbeagle/semidx/internal/gitutil"
	"github.com/standardbeagle/semidx/internal/langregistry"
	"github.com/standardbeagle/semidx/internal/query"
	"github.com/standardbeagle/semidx/internal/shard"
)

var langs = langregistry.New()

func newGuard(t *testing.T) (*Guard, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "src"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "src/one.go"),
		[]byte("package src\n\nfunc One() int { return 1 }\n"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "src/two.go"),
		[]byte("package src\n\nfunc Two() int { return 2 }\n"), 0o644))

	cfg := config.Default(root)
	w, err := shard.Open(root, filepath.Join(t.TempDir(), "cache"), cfg, langs)
	require.NoError(t, err)
	repo, err := gitutil.Open(root)
	require.NoError(t, err)
	engine := query.New(root, cfg, langs, w, repo)
	return New(engine), root
}

func TestFirstEnsureIndexes(t *testing.T) {
	g, _ := newGuard(t)
	note, err := g.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "indexed", note.Status)
	assert.Equal(t, 2, note.FilesUpdated)
}

func TestSecondEnsureIsFresh(t *testing.T) {
	g, _ := newGuard(t)
	_, err := g.Ensure(context.Background())
	require.NoError(t, err)

	note, err := g.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", note.Status)
	assert.Zero(t, note.FilesUpdated)
}

func TestEditTriggersPartialRefresh(t *testing.T) {
	g, root := newGuard(t)
	_, err := g.Ensure(context.Background())
	require.NoError(t, err)

	path := filepath.Join(root, "src/one.go")
	require.NoError(t, os.WriteFile(path, []byte("package src\n\nfunc OneEdited() int { return 11 }\n"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	note, err := g.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed", note.Status)
	assert.Equal(t, 1, note.FilesUpdated)

	// The refreshed content is queryable.
	engine := g.engine
	entries, err := engine.Reader().SymbolIndex()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["OneEdited"])
	assert.False(t, names["One"])
}

func TestCheckReportsDrift(t *testing.T) {
	g, root := newGuard(t)
	_, err := g.Ensure(context.Background())
	require.NoError(t, err)

	res, err := g.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, drift.StatusFresh, res.Status)

	path := filepath.Join(root, "src/two.go")
	require.NoError(t, os.WriteFile(path, []byte("package src\n\nfunc TwoEdited() int { return 22 }\n"), 0o644))
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	res, err = g.Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, drift.StatusIncremental, res.Status)
	assert.Equal(t, []string{"src/two.go"}, res.ChangedFiles)
}

func TestForceRefreshRebuilds(t *testing.T) {
	g, _ := newGuard(t)
	_, err := g.Ensure(context.Background())
	require.NoError(t, err)

	note, err := g.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "rebuilt", note.Status)
	assert.Equal(t, 2, note.FilesUpdated)
}

func TestClearRemovesCache(t *testing.T) {
	g, _ := newGuard(t)
	_, err := g.Ensure(context.Background())
	require.NoError(t, err)

	cacheRoot := g.engine.Reader().Store().Root
	require.NoError(t, g.Clear())
	_, statErr := os.Stat(cacheRoot)
	assert.True(t, os.IsNotExist(statErr))
}
