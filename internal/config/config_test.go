package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default("/repo")
	assert.EqualValues(t, 10*1024*1024, cfg.Index.MaxFileSize)
	assert.Equal(t, 500, cfg.Index.WatchDebounceMs)
	assert.Equal(t, 4, cfg.Perf.MaxGoroutines)
	assert.NotEmpty(t, cfg.Exclude)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default("").Index.MaxFileCount, cfg.Index.MaxFileCount)
}

func TestLoadOverlaysKDL(t *testing.T) {
	dir := t.TempDir()
	doc := `
index {
    max_file_size "2MB"
    max_file_count 1234
    follow_symlinks true
    watch_debounce_ms 250
}
performance {
    max_goroutines 8
}
include "src/**/*.ts" "src/**/*.go"
exclude "**/generated/**"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(doc), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.EqualValues(t, 2*1024*1024, cfg.Index.MaxFileSize)
	assert.Equal(t, 1234, cfg.Index.MaxFileCount)
	assert.True(t, cfg.Index.FollowSymlinks)
	assert.Equal(t, 250, cfg.Index.WatchDebounceMs)
	assert.Equal(t, 8, cfg.Perf.MaxGoroutines)
	assert.Equal(t, []string{"src/**/*.ts", "src/**/*.go"}, cfg.Include)
	assert.Contains(t, cfg.Exclude, "**/generated/**")
	// Built-in exclusions survive the overlay.
	assert.Contains(t, cfg.Exclude, "**/node_modules/**")
}

func TestMatches(t *testing.T) {
	cfg := Default("/repo")
	assert.True(t, cfg.Matches("src/auth/login.ts"))
	assert.False(t, cfg.Matches("node_modules/react/index.js"))
	assert.False(t, cfg.Matches("dist/bundle.min.js"))
	assert.False(t, cfg.Matches(".git/HEAD"))

	cfg.Include = []string{"src/**"}
	assert.True(t, cfg.Matches("src/main.go"))
	assert.False(t, cfg.Matches("tools/gen.go"))
}

func TestParseSize(t *testing.T) {
	for in, want := range map[string]int64{
		"512":  512,
		"4KB":  4096,
		"2MB":  2 * 1024 * 1024,
		"1GB":  1024 * 1024 * 1024,
		"100B": 100,
	} {
		got, err := parseSize(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseSize("lots")
	assert.Error(t, err)
}
