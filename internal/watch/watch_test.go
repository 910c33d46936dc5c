package watch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitBatch(t *testing.T, w *Watcher) []Event {
	t.Helper()
	select {
	case batch := <-w.Batches():
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("no batch arrived")
		return nil
	}
}

func TestWriteProducesBatch(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.go"), []byte("package a\n"), 0o644))

	batch := waitBatch(t, w)
	require.NotEmpty(t, batch)
	found := false
	for _, ev := range batch {
		if ev.Path == "a.go" && ev.Op == OpModify {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRapidEditsCoalesce(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.go")
	require.NoError(t, os.WriteFile(path, []byte("v0"), 0o644))

	w, err := New(root, 200*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("x", i+1)), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	batch := waitBatch(t, w)
	count := 0
	for _, ev := range batch {
		if ev.Path == "a.go" {
			count++
		}
	}
	assert.Equal(t, 1, count, "rapid edits to one file coalesce into one event")
}

func TestRemoveReportsRemoveOp(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "gone.go")
	require.NoError(t, os.WriteFile(path, []byte("package gone\n"), 0o644))

	w, err := New(root, 50*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.Remove(path))

	batch := waitBatch(t, w)
	found := false
	for _, ev := range batch {
		if ev.Path == "gone.go" && ev.Op == OpRemove {
			found = true
		}
	}
	assert.True(t, found)
}

func TestAcceptFilters(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 50*time.Millisecond, func(rel string) bool {
		return !strings.HasSuffix(rel, ".tmp")
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(root, "junk.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "real.go"), []byte("package real\n"), 0o644))

	batch := waitBatch(t, w)
	for _, ev := range batch {
		assert.NotEqual(t, "junk.tmp", ev.Path)
	}
}

func TestCloseClosesBatchChannel(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, 50*time.Millisecond, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, open := <-w.Batches()
	assert.False(t, open, "batch channel closes on shutdown")
}
