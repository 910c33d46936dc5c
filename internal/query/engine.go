// Package query implements the Query Engine: every operation in
// the request/response protocol, resolved over the layered shard store.
// Admission-time freshness is the Freshness Guard's job (internal/fresh);
// the engine assumes the caller has already reconciled drift.
package query

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/standardbeagle/semidx/internal/config"
	"github.com/standardbeagle/semidx/internal/errs"
	"github.com/standardbeagle/semidx/internal/gitutil"
	"github.com/standardbeagle/semidx/internal/identity"
	"github.com/standardbeagle/semidx/internal/langregistry"
	"github.com/standardbeagle/semidx/internal/layer"
	"github.com/standardbeagle/semidx/internal/shard"
	"github.com/standardbeagle/semidx/internal/types"
)

// MaxHashesPerRequest caps get_symbol/get_source batch lookups.
const MaxHashesPerRequest = 20

// DefaultLimit bounds list responses when the request doesn't say.
const DefaultLimit = 20

// Engine resolves queries over one repository's persisted shards. All
// read operations take the shared half of the per-repository
// readers-writer lock; reindexing (via the freshness guard) takes the
// exclusive half through WithWriteLock.
type Engine struct {
	mu sync.RWMutex

	repoRoot string
	cfg      *config.Config
	langs    *langregistry.Registry
	writer   *shard.Writer
	reader   *shard.Reader
	repo     *gitutil.Repo
	stack    *layer.Stack
}

// New builds an Engine over an opened Writer.
func New(repoRoot string, cfg *config.Config, langs *langregistry.Registry, w *shard.Writer, repo *gitutil.Repo) *Engine {
	e := &Engine{
		repoRoot: repoRoot,
		cfg:      cfg,
		langs:    langs,
		writer:   w,
		reader:   shard.NewReader(w.Store()),
		repo:     repo,
	}
	e.stack = layer.NewStack(func(id types.SymbolID) (*types.SemanticSummary, bool) {
		rec, found, err := e.reader.SymbolShard(id)
		if err != nil || !found {
			return nil, false
		}
		return &rec.Summary, true
	})
	return e
}

func (e *Engine) Writer() *shard.Writer        { return e.writer }
func (e *Engine) Reader() *shard.Reader        { return e.reader }
func (e *Engine) Layers() *layer.Stack         { return e.stack }
func (e *Engine) Repo() *gitutil.Repo          { return e.repo }
func (e *Engine) RepoRoot() string             { return e.repoRoot }
func (e *Engine) Config() *config.Config       { return e.cfg }
func (e *Engine) Langs() *langregistry.Registry { return e.langs }

// WithWriteLock serializes index mutation against concurrent readers
// through the single per-repository writer lock.
func (e *Engine) WithWriteLock(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

func (e *Engine) rlock() func() {
	e.mu.RLock()
	return e.mu.RUnlock
}

// ContextInfo is the get_context response.
type ContextInfo struct {
	Branch     string `json:"branch"`
	Head       string `json:"head"`
	IndexedSHA string `json:"indexed_sha"`
	Status     string `json:"status"`
	RepoRoot   string `json:"repo_root"`
	Modules    int    `json:"modules"`
	Symbols    int    `json:"symbols"`
}

// Context implements get_context.
func (e *Engine) Context(ctx context.Context) (*ContextInfo, error) {
	defer e.rlock()()

	info := &ContextInfo{RepoRoot: e.repoRoot, Status: "unindexed"}
	if e.repo.IsGitRepo(ctx) {
		if branch, err := e.repo.CurrentBranch(ctx); err == nil {
			info.Branch = branch
		}
		if head, err := e.repo.HeadSHA(ctx); err == nil {
			info.Head = head
		}
	}
	meta, found, err := e.reader.Meta()
	if err != nil {
		return nil, err
	}
	if found {
		info.IndexedSHA = meta.IndexedSHA
		if info.Head == "" || meta.IndexedSHA == info.Head {
			info.Status = "indexed"
		} else {
			info.Status = "drifted"
		}
	}
	entries, err := e.reader.SymbolIndex()
	if err != nil {
		return nil, err
	}
	info.Symbols = len(entries)
	info.Modules = len(e.writer.Registry().All())
	return info, nil
}

// Overview implements get_overview: the persisted bounded aggregate,
// optionally re-capped to maxModules (≤ the fixed cap of 100).
func (e *Engine) Overview(maxModules int) (*types.Overview, error) {
	defer e.rlock()()

	o, found, err := e.reader.Overview()
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.StaleIndex("repository has no index; run index refresh", nil)
	}
	moduleCap := 100
	if maxModules > 0 && maxModules < moduleCap {
		moduleCap = maxModules
	}
	if len(o.Modules) > moduleCap {
		o.Modules = o.Modules[:moduleCap]
	}
	return o, nil
}

// SymbolLocator is the union input of get_symbol/get_source: either
// full hashes or a file position.
type SymbolLocator struct {
	Hashes   []string
	FilePath string
	Line     int
}

// Symbols implements get_symbol.
func (e *Engine) Symbols(loc SymbolLocator) ([]*types.SymbolShard, error) {
	defer e.rlock()()
	return e.resolveSymbols(loc)
}

func (e *Engine) resolveSymbols(loc SymbolLocator) ([]*types.SymbolShard, error) {
	if len(loc.Hashes) > MaxHashesPerRequest {
		return nil, fmt.Errorf("query: at most %d hashes per request, got %d", MaxHashesPerRequest, len(loc.Hashes))
	}

	var ids []types.SymbolID
	switch {
	case len(loc.Hashes) > 0:
		for _, h := range loc.Hashes {
			id, err := identity.ParseSymbolID(h)
			if err != nil {
				return nil, errs.SymbolNotFound(h)
			}
			ids = append(ids, id)
		}
	case loc.FilePath != "":
		entries, err := e.reader.SymbolIndex()
		if err != nil {
			return nil, err
		}
		rel := filepath.ToSlash(loc.FilePath)
		for _, entry := range entries {
			if entry.File == rel && entry.StartLine <= loc.Line && loc.Line <= entry.EndLine {
				ids = append(ids, entry.Hash)
			}
		}
		if len(ids) == 0 {
			return nil, errs.SymbolNotFound(fmt.Sprintf("%s:%d", loc.FilePath, loc.Line))
		}
	default:
		return nil, errs.SymbolNotFound("")
	}

	out := make([]*types.SymbolShard, 0, len(ids))
	for _, id := range ids {
		summary, ok := e.stack.Resolve(id)
		if !ok {
			return nil, errs.SymbolNotFound(id.String())
		}
		out = append(out, &types.SymbolShard{ID: id, Summary: *summary})
	}
	return out, nil
}

// SourceBlock is one get_source result.
type SourceBlock struct {
	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Text      string `json:"text"`
}

// Source implements get_source: raw source ranges by hash or by
// explicit file position.
func (e *Engine) Source(loc SymbolLocator, startLine, endLine int) ([]*SourceBlock, error) {
	defer e.rlock()()

	if len(loc.Hashes) == 0 && loc.FilePath != "" && startLine > 0 {
		block, err := e.readRange(loc.FilePath, startLine, endLine)
		if err != nil {
			return nil, err
		}
		return []*SourceBlock{block}, nil
	}

	shards, err := e.resolveSymbols(loc)
	if err != nil {
		return nil, err
	}
	out := make([]*SourceBlock, 0, len(shards))
	for _, sh := range shards {
		block, err := e.readRange(sh.Summary.FilePath, sh.Summary.StartLine, sh.Summary.EndLine)
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}
	return out, nil
}

func (e *Engine) readRange(rel string, startLine, endLine int) (*SourceBlock, error) {
	abs := filepath.Join(e.repoRoot, rel)
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, errs.FileNotFound(rel, err)
	}
	lines := strings.Split(string(data), "\n")
	if startLine < 1 {
		startLine = 1
	}
	if endLine < startLine || endLine > len(lines) {
		endLine = len(lines)
	}
	return &SourceBlock{
		File:      filepath.ToSlash(rel),
		StartLine: startLine,
		EndLine:   endLine,
		Text:      strings.Join(lines[startLine-1:endLine], "\n"),
	}, nil
}

// File implements get_file: every symbol index entry for one file.
func (e *Engine) File(relPath string) ([]types.SymbolIndexEntry, error) {
	defer e.rlock()()

	rel := filepath.ToSlash(relPath)
	entries, err := e.reader.SymbolIndex()
	if err != nil {
		return nil, err
	}
	var out []types.SymbolIndexEntry
	for _, entry := range entries {
		if entry.File == rel {
			out = append(out, entry)
		}
	}
	if len(out) == 0 {
		if _, statErr := os.Stat(filepath.Join(e.repoRoot, rel)); statErr != nil {
			return nil, errs.FileNotFound(rel, statErr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartLine < out[j].StartLine })
	return out, nil
}

// indexByID loads the symbol index into an ID-keyed map for graph and
// metrics operations.
func (e *Engine) indexByID() (map[types.SymbolID]types.SymbolIndexEntry, []types.SymbolIndexEntry, error) {
	entries, err := e.reader.SymbolIndex()
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[types.SymbolID]types.SymbolIndexEntry, len(entries))
	for _, entry := range entries {
		byID[entry.Hash] = entry
	}
	return byID, entries, nil
}

// moduleFullPath resolves a module argument given as either the full
// dotted path or a registry short name.
func (e *Engine) moduleFullPath(module string) (string, error) {
	reg := e.writer.Registry()
	if _, ok := reg.Resolve(module); ok {
		return module, nil
	}
	if full, ok := reg.ResolveShort(module); ok {
		return full, nil
	}
	return "", errs.ModuleNotFound(module)
}
