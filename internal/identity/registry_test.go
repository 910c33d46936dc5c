package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAssignsLeafName(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.jsonl"))
	res := r.Add("src.core.indexer", "src/core/indexer.go")
	assert.False(t, res.Conflict)
	assert.Equal(t, "indexer", res.Short)
}

func TestConflictAwareShortening(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.jsonl"))

	first := r.Add("src.game.player", "src/game/player.ts")
	assert.Equal(t, "player", first.Short)

	second := r.Add("src.ui.player", "src/ui/player.ts")
	assert.True(t, second.Conflict)
	assert.Equal(t, "ui.player", second.Short)

	// The colliding module was re-lengthened in place.
	short, ok := r.Resolve("src.game.player")
	require.True(t, ok)
	assert.Equal(t, "game.player", short)

	// A third collision doesn't perturb the first two.
	third := r.Add("src.audio.player", "src/audio/player.ts")
	assert.Equal(t, "audio.player", third.Short)
	short, _ = r.Resolve("src.game.player")
	assert.Equal(t, "game.player", short)
	short, _ = r.Resolve("src.ui.player")
	assert.Equal(t, "ui.player", short)
}

// Short-name uniqueness must hold after any add/remove sequence.
func TestShortNameUniqueness(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.jsonl"))
	modules := []string{
		"src.game.player", "src.ui.player", "src.audio.player",
		"src.game.world", "lib.game.world", "src.core.index",
	}
	for _, m := range modules {
		r.Add(m, "")
	}
	r.Remove("src.audio.player")
	r.Add("pkg.audio.player", "")

	seen := make(map[string]string)
	for _, e := range r.All() {
		prev, dup := seen[e.ShortName]
		require.False(t, dup, "short %q maps to both %q and %q", e.ShortName, prev, e.FullPath)
		seen[e.ShortName] = e.FullPath
	}
}

func TestRegistryPersistRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.jsonl")
	r := NewRegistry(path)
	r.Add("src.game.player", "src/game/player.ts")
	r.Add("src.ui.player", "src/ui/player.ts")
	require.NoError(t, r.Flush())

	loaded, err := Load(path)
	require.NoError(t, err)

	short, ok := loaded.Resolve("src.game.player")
	require.True(t, ok)
	assert.Equal(t, "game.player", short)

	full, ok := loaded.ResolveShort("ui.player")
	require.True(t, ok)
	assert.Equal(t, "src.ui.player", full)
}

func TestResolveShortBothDirections(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.jsonl"))
	r.Add("src.api.routes", "src/api/routes.ts")

	short, ok := r.Resolve("src.api.routes")
	require.True(t, ok)
	full, ok := r.ResolveShort(short)
	require.True(t, ok)
	assert.Equal(t, "src.api.routes", full)

	_, ok = r.ResolveShort("nonexistent")
	assert.False(t, ok)
}
