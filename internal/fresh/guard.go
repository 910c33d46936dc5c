// Package fresh implements the Freshness Guard: on every query
// admission it reconciles the persisted index against the source tree
// via the drift detector and triggers a partial or full reindex before
// the query is served. Stale data is never served silently; a failed
// reindex surfaces as a StaleIndex error.
package fresh

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/standardbeagle/semidx/internal/drift"
	"github.com/standardbeagle/semidx/internal/errs"
	"github.com/standardbeagle/semidx/internal/query"
	"github.com/standardbeagle/semidx/internal/shard"
)

// DefaultPartialLimit is K: the most changed files a partial reindex
// will take on before escalating to a full rebuild.
const DefaultPartialLimit = 50

// DefaultCheckBudget bounds the staleness check itself; the reindex it
// triggers may run longer.
const DefaultCheckBudget = 5 * time.Second

// Note describes what the guard did before admitting a query; it is
// attached to responses that triggered a refresh.
type Note struct {
	Status       string `json:"status"`
	FilesUpdated int    `json:"files_updated,omitempty"`
	DurationMs   int64  `json:"duration_ms,omitempty"`
}

// Guard wraps one repository's engine with admission-time freshness.
type Guard struct {
	engine       *query.Engine
	PartialLimit int
	CheckBudget  time.Duration
}

// New builds a Guard over engine with the default limits.
func New(engine *query.Engine) *Guard {
	return &Guard{engine: engine, PartialLimit: DefaultPartialLimit, CheckBudget: DefaultCheckBudget}
}

// Ensure reconciles the index with the source tree, reindexing as
// needed, and reports what happened. It is called on every query entry
// point except operations that are stateless relative to the index.
func (g *Guard) Ensure(ctx context.Context) (*Note, error) {
	checkCtx, cancel := context.WithTimeout(ctx, g.CheckBudget)
	defer cancel()

	res, firstIndex, err := g.classify(checkCtx)
	if err != nil {
		return nil, err
	}
	if !firstIndex && res.Status == drift.StatusFresh {
		return &Note{Status: "fresh"}, nil
	}

	note := &Note{}
	start := time.Now()
	err = g.engine.WithWriteLock(func() error {
		writer := g.engine.Writer()
		sha := res.CurrentSHA

		var report *shard.WriteReport
		var werr error
		switch {
		case !firstIndex && res.Status == drift.StatusIncremental && len(res.ChangedFiles) <= g.PartialLimit:
			note.Status = "refreshed"
			report, werr = writer.PartialReindex(res.ChangedFiles, sha)
		default:
			if firstIndex {
				note.Status = "indexed"
			} else {
				note.Status = "rebuilt"
			}
			report, werr = writer.FullWrite(sha)
		}
		if werr != nil {
			return werr
		}
		note.FilesUpdated = report.FilesProcessed + report.FilesDeleted
		return g.writeSnapshot()
	})
	if err != nil {
		return nil, errs.StaleIndex("reindex failed; refusing to serve stale data", err)
	}
	note.DurationMs = time.Since(start).Milliseconds()
	slog.Debug("freshness guard reconciled", "status", note.Status, "files", note.FilesUpdated, "ms", note.DurationMs)
	return note, nil
}

// Check classifies drift without reindexing (the index check
// operation).
func (g *Guard) Check(ctx context.Context) (drift.Result, error) {
	res, firstIndex, err := g.classify(ctx)
	if err != nil {
		return drift.Result{}, err
	}
	if firstIndex {
		res.Status = drift.StatusFullRebuild
	}
	return res, nil
}

// Refresh forces a reconcile (the index refresh operation). With force
// set, a full rebuild runs regardless of drift state.
func (g *Guard) Refresh(ctx context.Context, force bool) (*Note, error) {
	if !force {
		return g.Ensure(ctx)
	}
	note := &Note{Status: "rebuilt"}
	start := time.Now()
	err := g.engine.WithWriteLock(func() error {
		sha := ""
		if g.engine.Repo().IsGitRepo(ctx) {
			if head, err := g.engine.Repo().HeadSHA(ctx); err == nil {
				sha = head
			}
		}
		report, err := g.engine.Writer().FullWrite(sha)
		if err != nil {
			return err
		}
		note.FilesUpdated = report.FilesProcessed + report.FilesDeleted
		return g.writeSnapshot()
	})
	if err != nil {
		return nil, errs.StaleIndex("full rebuild failed", err)
	}
	note.DurationMs = time.Since(start).Milliseconds()
	return note, nil
}

// Clear removes the repository's entire cache directory (the index
// clear operation).
func (g *Guard) Clear() error {
	return g.engine.WithWriteLock(func() error {
		return os.RemoveAll(g.engine.Reader().Store().Root)
	})
}

// classify decides the drift status for the repository. Git
// repositories compare the indexed SHA to HEAD and the working tree;
// everything else falls back to the persisted mtime/size snapshot.
func (g *Guard) classify(ctx context.Context) (drift.Result, bool, error) {
	meta, found, err := g.engine.Reader().Meta()
	if err != nil {
		return drift.Result{}, false, err
	}

	repo := g.engine.Repo()
	isGit := repo.IsGitRepo(ctx)

	if !found {
		res := drift.Result{Status: drift.StatusFullRebuild}
		if isGit {
			if head, err := repo.HeadSHA(ctx); err == nil {
				res.CurrentSHA = head
			}
		}
		return res, true, nil
	}

	if isGit && meta.IndexedSHA != "" {
		head, err := repo.HeadSHA(ctx)
		if err != nil {
			return drift.Result{}, false, errs.GitError("rev-parse", err)
		}
		// A single diff against the indexed SHA covers both new commits
		// and uncommitted edits.
		changed, err := repo.ChangedFiles(ctx, meta.IndexedSHA, "")
		if err != nil {
			return drift.Result{}, false, errs.GitError("diff", err)
		}
		changed = g.filterIndexable(changed)
		total := g.totalFiles()
		res := drift.Result{
			IndexedSHA:   meta.IndexedSHA,
			CurrentSHA:   head,
			ChangedFiles: changed,
			Status:       drift.Classify(len(changed), total),
		}
		if total > 0 {
			res.DriftRatio = float64(len(changed)) / float64(total)
		}
		return res, false, nil
	}

	snapshot, err := g.loadSnapshot()
	if err != nil {
		return drift.Result{}, false, err
	}
	res, err := drift.CheckWorking(g.engine.RepoRoot(), snapshot)
	return res, false, err
}

// filterIndexable drops changed paths the config excludes or whose
// language the registry doesn't know, so a touched lockfile doesn't
// trigger a reindex.
func (g *Guard) filterIndexable(changed []string) []string {
	cfg := g.engine.Config()
	out := changed[:0:0]
	for _, rel := range changed {
		if !cfg.Matches(rel) {
			continue
		}
		if _, err := g.engine.Langs().LanguageFor(filepath.Ext(rel)); err != nil {
			continue
		}
		out = append(out, rel)
	}
	return out
}

func (g *Guard) totalFiles() int {
	entries, err := g.engine.Reader().SymbolIndex()
	if err != nil {
		return 0
	}
	files := make(map[string]bool, len(entries))
	for _, e := range entries {
		files[e.File] = true
	}
	return len(files)
}

func (g *Guard) snapshotPath() string {
	return g.engine.Reader().Store().WorkingSnapshotPath()
}

func (g *Guard) loadSnapshot() (map[string]drift.WorkingSnapshot, error) {
	data, err := os.ReadFile(g.snapshotPath())
	if os.IsNotExist(err) {
		return map[string]drift.WorkingSnapshot{}, nil
	}
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]drift.WorkingSnapshot)
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// writeSnapshot records the indexed files' current mtime/size, the
// Working layer's drift baseline. Runs inside the writer lock after a
// successful reindex.
func (g *Guard) writeSnapshot() error {
	entries, err := g.engine.Reader().SymbolIndex()
	if err != nil {
		return err
	}
	snapshot := make(map[string]drift.WorkingSnapshot)
	for _, e := range entries {
		if _, seen := snapshot[e.File]; seen {
			continue
		}
		info, err := os.Stat(filepath.Join(g.engine.RepoRoot(), e.File))
		if err != nil {
			continue
		}
		snapshot[e.File] = drift.WorkingSnapshot{ModTime: info.ModTime().Unix(), Size: info.Size()}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	path := g.snapshotPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
