// Package drift implements the Drift Detector: SHA- and
// mtime-based staleness classification for the layered index. Time-based
// freshness is deliberately not used; only committed SHAs, git diffs,
// and file mtime/size snapshots decide whether a layer is stale.
package drift

import (
	"context"
	"os"
	"path/filepath"

	"github.com/standardbeagle/semidx/internal/gitutil"
	"github.com/standardbeagle/semidx/internal/types"
)

// Status is the classification produced by Check.
type Status string

const (
	StatusFresh       Status = "fresh"
	StatusIncremental Status = "incremental"
	StatusRebase      Status = "rebase"
	StatusFullRebuild Status = "full_rebuild"
)

// incrementalMax is K from the classification table: 1..K-1 changed
// files stays Incremental; at K or more the ratio test takes over.
const incrementalMax = 10

// rebaseRatio is the changed/total ratio below which a drifted branch
// or base layer reconciles incrementally (Rebase) rather than forcing a
// FullRebuild.
const rebaseRatio = 0.30

// Result is the outcome of a drift check for one layer.
type Result struct {
	Status           Status
	IndexedSHA       string
	CurrentSHA       string
	ChangedFiles     []string
	DriftRatio       float64
	MergeBaseChanged bool
}

// CheckCommitted classifies drift for the Base or Branch layer: the
// indexed SHA against current HEAD, sized against totalFiles.
func CheckCommitted(ctx context.Context, repo *gitutil.Repo, priorSHA string, totalFiles int, priorMergeBase string) (Result, error) {
	current, err := repo.HeadSHA(ctx)
	if err != nil {
		return Result{}, err
	}
	if priorSHA == current {
		return Result{Status: StatusFresh, IndexedSHA: priorSHA, CurrentSHA: current}, nil
	}

	changed, err := repo.ChangedFiles(ctx, priorSHA, current)
	if err != nil {
		return Result{}, err
	}

	mergeBaseChanged := false
	if priorMergeBase != "" {
		newBase, err := repo.MergeBase(ctx, priorSHA, current)
		if err == nil && newBase != priorMergeBase {
			mergeBaseChanged = true
		}
	}

	res := Result{
		IndexedSHA: priorSHA, CurrentSHA: current,
		ChangedFiles: changed, MergeBaseChanged: mergeBaseChanged,
	}
	res.Status = classify(len(changed), totalFiles)
	res.DriftRatio = ratio(len(changed), totalFiles)
	if mergeBaseChanged && res.Status != StatusFresh {
		res.Status = StatusRebase
	}
	return res, nil
}

// WorkingSnapshot is the per-file mtime/size record taken at index time,
// what the Working layer's staleness check compares against.
type WorkingSnapshot struct {
	ModTime int64
	Size    int64
}

// CheckWorking classifies drift for the Working layer: current on-disk
// mtime/size against the indexed snapshot, for every tracked file.
func CheckWorking(repoRoot string, tracked map[string]WorkingSnapshot) (Result, error) {
	var changed []string
	for rel, snap := range tracked {
		info, err := os.Stat(filepath.Join(repoRoot, rel))
		if err != nil {
			changed = append(changed, rel) // deleted, counts as changed
			continue
		}
		if info.ModTime().Unix() != snap.ModTime || info.Size() != snap.Size {
			changed = append(changed, rel)
		}
	}
	total := len(tracked)
	return Result{
		Status:       classify(len(changed), total),
		ChangedFiles: changed,
		DriftRatio:   ratio(len(changed), total),
	}, nil
}

// Classify reduces a changed-file count to the four-way reindex
// strategy.
func Classify(changed, total int) Status {
	return classify(changed, total)
}

func classify(changed, total int) Status {
	switch {
	case changed == 0:
		return StatusFresh
	case changed < incrementalMax:
		return StatusIncremental
	case ratio(changed, total) < rebaseRatio:
		return StatusRebase
	default:
		return StatusFullRebuild
	}
}

func ratio(changed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(changed) / float64(total)
}

// ToMeta builds a types.Meta snapshot to persist after a successful
// reindex against sha.
func ToMeta(prior *types.Meta, sha, repoHash string, nowUnix int64) *types.Meta {
	created := nowUnix
	if prior != nil && prior.CreatedAt != 0 {
		created = prior.CreatedAt
	}
	return &types.Meta{
		SchemaVersion: 1,
		IndexedSHA:    sha,
		IndexedMtime:  nowUnix,
		RepoHash:      repoHash,
		CreatedAt:     created,
	}
}
