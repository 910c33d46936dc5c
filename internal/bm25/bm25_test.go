package bm25

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semidx/internal/types"
)

func id(n uint64) types.SymbolID {
	return types.SymbolID{ShardHash: n, SymbolHash: n * 31}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"handle", "login"}, Tokenize("handleLogin"))
	assert.Equal(t, []string{"handle", "login"}, Tokenize("handle_login"))
	assert.Equal(t, []string{"http", "server"}, Tokenize("HTTPServer"))
	assert.Equal(t, []string{"src", "auth", "login"}, Tokenize("src.auth.login"))
}

func TestStemExclusions(t *testing.T) {
	assert.Equal(t, "api", Stem("API"))
	assert.Equal(t, "id", Stem("id"))
	// Regular words do get stemmed.
	assert.Equal(t, Stem("fetching"), Stem("fetched"))
}

func TestSearchRanksMatchingDoc(t *testing.T) {
	idx := New()
	idx.Add(id(1), []string{"handleLogin", "src/auth/login.ts", "network call introduced"})
	idx.Add(id(2), []string{"renderHeader", "src/ui/header.tsx"})
	idx.Add(id(3), []string{"loginForm", "src/ui/login_form.tsx"})

	results := idx.Search("login", 10)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, id(2), r.ID)
	}
	assert.Greater(t, results[0].Score, 0.0)
}

func TestRemoveDropsPostings(t *testing.T) {
	idx := New()
	idx.Add(id(1), []string{"handleLogin"})
	idx.Add(id(2), []string{"handleLogout"})
	require.Equal(t, 2, idx.Len())

	idx.Remove(id(1))
	assert.Equal(t, 1, idx.Len())
	for _, r := range idx.Search("login", 10) {
		assert.NotEqual(t, id(1), r.ID)
	}
}

func TestAddReplacesExistingDoc(t *testing.T) {
	idx := New()
	idx.Add(id(1), []string{"oldName"})
	idx.Add(id(1), []string{"newName"})
	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.Search("old", 10))
	assert.NotEmpty(t, idx.Search("newName", 10))
}

func TestEqualScoresTieBreakByID(t *testing.T) {
	idx := New()
	idx.Add(id(2), []string{"fetchUser"})
	idx.Add(id(1), []string{"fetchUser"})

	results := idx.Search("fetchUser", 10)
	require.Len(t, results, 2)
	assert.Equal(t, results[0].ID.String(), min(results[0].ID.String(), results[1].ID.String()))
}

func TestPersistRoundTrip(t *testing.T) {
	idx := New()
	idx.Add(id(1), []string{"handleLogin", "network call introduced"})
	idx.Add(id(2), []string{"renderHeader"})

	data, err := json.Marshal(idx)
	require.NoError(t, err)

	loaded := New()
	require.NoError(t, json.Unmarshal(data, loaded))
	assert.Equal(t, idx.Len(), loaded.Len())

	before := idx.Search("login", 10)
	after := loaded.Search("login", 10)
	assert.Equal(t, before, after)
}

func min(a, b string) string {
	if a < b {
		return a
	}
	return b
}
