package cachepath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoHashEquatesRemoteForms(t *testing.T) {
	ssh, err := RepoHash("/repo", "git@github.com:acme/widgets.git")
	require.NoError(t, err)
	https, err := RepoHash("/repo", "https://github.com/acme/widgets")
	require.NoError(t, err)
	assert.Equal(t, ssh, https)
	assert.Len(t, ssh, 16)
}

func TestRepoHashFallsBackToPath(t *testing.T) {
	a, err := RepoHash("/repo/a", "")
	require.NoError(t, err)
	b, err := RepoHash("/repo/b", "")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	again, err := RepoHash("/repo/a", "")
	require.NoError(t, err)
	assert.Equal(t, a, again)
}

func TestRootIsScopedPerRepo(t *testing.T) {
	hash, err := RepoHash("/repo", "https://github.com/acme/widgets")
	require.NoError(t, err)
	root, err := Root(hash)
	require.NoError(t, err)
	assert.Contains(t, root, "semidx")
	assert.Contains(t, root, hash)
}
