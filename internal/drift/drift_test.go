package drift

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTable(t *testing.T) {
	tests := []struct {
		name    string
		changed int
		total   int
		want    Status
	}{
		{"no changes", 0, 1000, StatusFresh},
		{"one file", 1, 1000, StatusIncremental},
		{"nine files", 9, 1000, StatusIncremental},
		{"ten files under ratio", 10, 1000, StatusRebase},
		{"under thirty percent", 290, 1000, StatusRebase},
		{"thirty percent", 300, 1000, StatusFullRebuild},
		{"everything", 1000, 1000, StatusFullRebuild},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.changed, tt.total))
		})
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func snapshotOf(t *testing.T, dir string, names ...string) map[string]WorkingSnapshot {
	t.Helper()
	snap := make(map[string]WorkingSnapshot)
	for _, name := range names {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		snap[name] = WorkingSnapshot{ModTime: info.ModTime().Unix(), Size: info.Size()}
	}
	return snap
}

func TestCheckWorkingFresh(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")
	writeFile(t, dir, "b.go", "package b\n")
	snap := snapshotOf(t, dir, "a.go", "b.go")

	res, err := CheckWorking(dir, snap)
	require.NoError(t, err)
	assert.Equal(t, StatusFresh, res.Status)
	assert.Empty(t, res.ChangedFiles)
}

func TestCheckWorkingDetectsEdit(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "package a\n")
	writeFile(t, dir, "b.go", "package b\n")
	snap := snapshotOf(t, dir, "a.go", "b.go")

	require.NoError(t, os.WriteFile(path, []byte("package a // edited\n"), 0o644))
	past := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, past, past))

	res, err := CheckWorking(dir, snap)
	require.NoError(t, err)
	assert.Equal(t, StatusIncremental, res.Status)
	assert.Equal(t, []string{"a.go"}, res.ChangedFiles)
}

func TestCheckWorkingCountsDeletions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.go", "package a\n")
	writeFile(t, dir, "b.go", "package b\n")
	snap := snapshotOf(t, dir, "a.go", "b.go")

	require.NoError(t, os.Remove(path))

	res, err := CheckWorking(dir, snap)
	require.NoError(t, err)
	assert.Equal(t, StatusIncremental, res.Status)
	assert.Contains(t, res.ChangedFiles, "a.go")
}

func TestToMetaPreservesCreatedAt(t *testing.T) {
	prior := ToMeta(nil, "sha1", "hash", 100)
	assert.EqualValues(t, 100, prior.CreatedAt)

	next := ToMeta(prior, "sha2", "hash", 200)
	assert.EqualValues(t, 100, next.CreatedAt)
	assert.Equal(t, "sha2", next.IndexedSHA)
	assert.EqualValues(t, 200, next.IndexedMtime)
}
