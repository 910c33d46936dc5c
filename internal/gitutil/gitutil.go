// Package gitutil shells out to the git binary for the plumbing the
// Drift Detector needs: the current HEAD SHA, the merge-base
// against a branch ancestor, and the set of files git considers
// changed. No git library is used; the dependency surface stays at
// the git binary itself.
package gitutil

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repo wraps git commands scoped to one repository root.
type Repo struct {
	root string
}

// Open resolves dir's git root via `git rev-parse --show-toplevel`. A
// directory outside any git repository is not an error; Open still
// returns a Repo, and IsGitRepo reports false for it.
func Open(dir string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("gitutil: resolve root: %w", err)
	}
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = abs
	out, err := cmd.Output()
	if err != nil {
		return &Repo{root: abs}, nil
	}
	return &Repo{root: strings.TrimSpace(string(out))}, nil
}

// Root returns the resolved repository root (or the original directory
// if it isn't inside a git repository).
func (r *Repo) Root() string { return r.root }

// RemoteURL returns the "origin" remote URL as git reports it (only
// trimmed; the cachepath package canonicalizes it), or "" if the
// repository has no such remote. The cache root is keyed by a
// hash of the remote URL, falling back to the absolute repo path when
// there isn't one.
func (r *Repo) RemoteURL(ctx context.Context) string {
	out, err := r.run(ctx, "remote", "get-url", "origin")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// HeadSHA returns the current HEAD commit hash.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitutil: rev-parse HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when
// detached.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitutil: rev-parse --abbrev-ref HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// IsGitRepo reports whether the root actually resolved to a git
// repository.
func (r *Repo) IsGitRepo(ctx context.Context) bool {
	_, err := r.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// MergeBase returns the merge-base commit of base and target, used to
// classify a drifted branch layer.
func (r *Repo) MergeBase(ctx context.Context, base, target string) (string, error) {
	out, err := r.run(ctx, "merge-base", base, target)
	if err != nil {
		return "", fmt.Errorf("gitutil: merge-base %s %s: %w", base, target, err)
	}
	return strings.TrimSpace(out), nil
}

// ChangedFiles returns the paths that differ between two refs
// (working tree counted as "" target), relative to the repo root.
func (r *Repo) ChangedFiles(ctx context.Context, fromRef, toRef string) ([]string, error) {
	args := []string{"diff", "--name-only", "--no-renames", fromRef}
	if toRef != "" {
		args = append(args, toRef)
	}
	out, err := r.run(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("gitutil: diff --name-only: %w", err)
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// FileAtRef returns a file's content as it existed at ref, used by
// analyze_diff to read a file's version at the base ref without
// checking it out.
func (r *Repo) FileAtRef(ctx context.Context, ref, relPath string) ([]byte, error) {
	out, err := r.runBytes(ctx, "show", ref+":"+relPath)
	if err != nil {
		return nil, fmt.Errorf("gitutil: show %s:%s: %w", ref, relPath, err)
	}
	return out, nil
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	out, err := r.runBytes(ctx, args...)
	return string(out), err
}

func (r *Repo) runBytes(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.root
	return cmd.Output()
}
