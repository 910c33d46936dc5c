package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semidx/internal/types"
)

func TestSymbolIDDeterministic(t *testing.T) {
	a := SymbolIDFor("src.auth.login", "handleLogin", types.KindFunction, 1)
	b := SymbolIDFor("src.auth.login", "handleLogin", types.KindFunction, 1)
	assert.Equal(t, a, b)
	assert.Equal(t, a.String(), b.String())
	assert.Len(t, a.String(), 33) // 16 hex + ':' + 16 hex
}

func TestSymbolIDDiscriminates(t *testing.T) {
	base := SymbolIDFor("src.auth.login", "handleLogin", types.KindFunction, 1)

	otherName := SymbolIDFor("src.auth.login", "handleLogout", types.KindFunction, 1)
	assert.NotEqual(t, base.SymbolHash, otherName.SymbolHash)
	assert.Equal(t, base.ShardHash, otherName.ShardHash, "same module shares the shard hash")

	otherKind := SymbolIDFor("src.auth.login", "handleLogin", types.KindMethod, 1)
	assert.NotEqual(t, base.SymbolHash, otherKind.SymbolHash)

	otherArity := SymbolIDFor("src.auth.login", "handleLogin", types.KindFunction, 2)
	assert.NotEqual(t, base.SymbolHash, otherArity.SymbolHash)

	otherModule := SymbolIDFor("src.auth.logout", "handleLogin", types.KindFunction, 1)
	assert.NotEqual(t, base.ShardHash, otherModule.ShardHash)
}

func TestParseSymbolIDRoundTrip(t *testing.T) {
	id := SymbolIDFor("src.game.player", "Player", types.KindStruct, 0)
	parsed, err := ParseSymbolID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseSymbolIDRejectsShortHashes(t *testing.T) {
	cases := []string{
		"0f0b8f30:56f1b1cb752f07e9",  // short first half
		"0f0b8f30aabbccdd:56f1b1cb", // short second half
		"0f0b8f30aabbccdd",          // no separator
		"",
		"zzzzzzzzzzzzzzzz:0000000000000000", // non-hex
	}
	for _, in := range cases {
		_, err := ParseSymbolID(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestCanonicalModulePath(t *testing.T) {
	assert.Equal(t, "src.game.player", CanonicalModulePath("src/game/player.ts"))
	assert.Equal(t, "main", CanonicalModulePath("main.go"))
	assert.Equal(t, "lib.util", CanonicalModulePath("lib/util.rs"))
}
