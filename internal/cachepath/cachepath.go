// Package cachepath resolves the on-disk root for one repository's
// sharded index cache: the XDG cache directory, a
// per-repo subdirectory keyed by a 64-bit hash of the canonicalized
// git remote URL, falling back to the absolute repo path when there is
// no remote.
package cachepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const appDirName = "semidx"

// RepoHash computes the 16-hex-character identity key for a
// repository: the remote URL when non-empty (trailing ".git" and
// scheme/auth normalized away so "git@host:org/repo.git" and
// "https://host/org/repo" hash identically), otherwise the absolute
// repo path.
func RepoHash(repoRoot, remoteURL string) (string, error) {
	key := canonicalizeRemote(remoteURL)
	if key == "" {
		abs, err := filepath.Abs(repoRoot)
		if err != nil {
			return "", fmt.Errorf("cachepath: resolve repo root: %w", err)
		}
		key = abs
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(key)), nil
}

func canonicalizeRemote(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return ""
	}
	url = strings.TrimSuffix(url, ".git")
	url = strings.TrimPrefix(url, "https://")
	url = strings.TrimPrefix(url, "http://")
	url = strings.TrimPrefix(url, "git@")
	url = strings.TrimPrefix(url, "ssh://git@")
	return strings.Replace(url, ":", "/", 1)
}

// Root returns the cache directory for a repository identified by
// repoHash (as produced by RepoHash).
func Root(repoHash string) (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("cachepath: resolve user cache dir: %w", err)
	}
	return filepath.Join(base, appDirName, repoHash), nil
}

// Ensure creates the cache root (and any missing parents) and returns
// it.
func Ensure(repoHash string) (string, error) {
	root, err := Root(repoHash)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("cachepath: create %s: %w", root, err)
	}
	return root, nil
}
