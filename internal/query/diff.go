package query

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/standardbeagle/semidx/internal/errs"
	"github.com/standardbeagle/semidx/internal/extract"
	"github.com/standardbeagle/semidx/internal/identity"
	"github.com/standardbeagle/semidx/internal/types"
)

// DiffOptions carries analyze_diff parameters. An empty TargetRef means
// the working tree.
type DiffOptions struct {
	BaseRef     string
	TargetRef   string
	Limit       int
	Offset      int
	SummaryOnly bool
}

// DiffSummary aggregates delta counts per kind.
type DiffSummary struct {
	FilesChanged int                           `json:"files_changed"`
	Counts       map[types.DiffDeltaKind]int   `json:"counts"`
}

// DiffResponse is the analyze_diff payload.
type DiffResponse struct {
	BaseRef    string            `json:"base_ref"`
	TargetRef  string            `json:"target_ref,omitempty"`
	Deltas     []types.DiffDelta `json:"deltas,omitempty"`
	Summary    *DiffSummary      `json:"summary,omitempty"`
	Total      int               `json:"total,omitempty"`
	NextOffset int               `json:"next_offset,omitempty"`
}

// AnalyzeDiff computes typed deltas between two commits (or the
// working tree): symbols added/removed/modified, dependency changes,
// control-flow complexity shifts, and public-API changes.
func (e *Engine) AnalyzeDiff(ctx context.Context, opts DiffOptions) (*DiffResponse, error) {
	defer e.rlock()()

	if opts.BaseRef == "" {
		return nil, errs.GitError("analyze_diff", fmt.Errorf("base_ref is required"))
	}
	changed, err := e.repo.ChangedFiles(ctx, opts.BaseRef, opts.TargetRef)
	if err != nil {
		return nil, errs.GitError("diff", err)
	}

	var deltas []types.DiffDelta
	filesChanged := 0
	for _, rel := range changed {
		oldSyms := e.extractAtRef(ctx, opts.BaseRef, rel)
		var newSyms []*types.SemanticSummary
		if opts.TargetRef == "" {
			newSyms = e.extractWorking(rel)
		} else {
			newSyms = e.extractAtRef(ctx, opts.TargetRef, rel)
		}
		if oldSyms == nil && newSyms == nil {
			continue
		}
		filesChanged++
		deltas = append(deltas, diffFile(rel, oldSyms, newSyms)...)
	}

	resp := &DiffResponse{BaseRef: opts.BaseRef, TargetRef: opts.TargetRef}
	if opts.SummaryOnly {
		summary := &DiffSummary{FilesChanged: filesChanged, Counts: make(map[types.DiffDeltaKind]int)}
		for _, d := range deltas {
			summary.Counts[d.Kind]++
		}
		resp.Summary = summary
		return resp, nil
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	resp.Total = len(deltas)
	end := opts.Offset + opts.Limit
	if opts.Offset < len(deltas) {
		if end < len(deltas) {
			resp.NextOffset = end
		} else {
			end = len(deltas)
		}
		resp.Deltas = deltas[opts.Offset:end]
	}
	return resp, nil
}

// extractAtRef parses one file's content as of ref. A file absent at
// that ref (added/deleted across the diff) yields nil.
func (e *Engine) extractAtRef(ctx context.Context, ref, rel string) []*types.SemanticSummary {
	source, err := e.repo.FileAtRef(ctx, ref, rel)
	if err != nil {
		return nil
	}
	return e.extractSource(rel, source)
}

func (e *Engine) extractWorking(rel string) []*types.SemanticSummary {
	source, err := os.ReadFile(filepath.Join(e.repoRoot, rel))
	if err != nil {
		return nil
	}
	return e.extractSource(rel, source)
}

func (e *Engine) extractSource(rel string, source []byte) []*types.SemanticSummary {
	entry, err := e.langs.LanguageFor(filepath.Ext(rel))
	if err != nil {
		return nil
	}
	modulePath := identity.CanonicalModulePath(rel)
	ex := extract.New(rel, modulePath, source, entry.Grammar)
	var summaries []*types.SemanticSummary
	if entry.Grammar.TSLanguage == nil || entry.Parser == nil {
		summaries, err = ex.Extract(nil)
	} else {
		parser := entry.Parser()
		defer parser.Close()
		tree := parser.Parse(source, nil)
		if tree != nil {
			defer tree.Close()
		}
		summaries, err = ex.Extract(tree)
	}
	if err != nil {
		return nil
	}
	return summaries
}

// diffFile compares the two symbol sets of one file, keyed by
// name+kind, and emits typed deltas.
func diffFile(rel string, oldSyms, newSyms []*types.SemanticSummary) []types.DiffDelta {
	module := identity.CanonicalModulePath(rel)
	key := func(s *types.SemanticSummary) string { return s.Name + "\x00" + string(s.Kind) }

	oldByKey := make(map[string]*types.SemanticSummary)
	for _, s := range oldSyms {
		if !s.IsRaw() {
			oldByKey[key(s)] = s
		}
	}
	newByKey := make(map[string]*types.SemanticSummary)
	var order []string
	for _, s := range newSyms {
		if !s.IsRaw() {
			k := key(s)
			newByKey[k] = s
			order = append(order, k)
		}
	}

	var deltas []types.DiffDelta
	for _, k := range order {
		n := newByKey[k]
		o, existed := oldByKey[k]
		if !existed {
			deltas = append(deltas, types.DiffDelta{
				Kind: types.DeltaSymbolAdded, Symbol: n.ID, Module: module,
				Detail: fmt.Sprintf("%s %s", n.Kind, n.Name),
			})
			continue
		}
		if sigChanged(o, n) {
			deltas = append(deltas, types.DiffDelta{
				Kind: types.DeltaSymbolModified, Symbol: n.ID, Module: module,
				Detail: fmt.Sprintf("%s %s signature changed", n.Kind, n.Name),
			})
			if n.Exported {
				n.PublicSurfaceChanged = true
				deltas = append(deltas, types.DiffDelta{
					Kind: types.DeltaPublicAPIChange, Symbol: n.ID, Module: module,
					Detail: fmt.Sprintf("exported %s %s changed signature", n.Kind, n.Name),
				})
			}
		} else if bodyChanged(o, n) {
			deltas = append(deltas, types.DiffDelta{
				Kind: types.DeltaSymbolModified, Symbol: n.ID, Module: module,
				Detail: fmt.Sprintf("%s %s body changed", n.Kind, n.Name),
			})
		}
		if d := cfTotal(n) - cfTotal(o); d != 0 {
			deltas = append(deltas, types.DiffDelta{
				Kind: types.DeltaComplexityChange, Symbol: n.ID, Module: module,
				Detail: fmt.Sprintf("%s control-flow %+d", n.Name, d),
			})
		}
	}
	removedKeys := make([]string, 0)
	for k := range oldByKey {
		if _, still := newByKey[k]; !still {
			removedKeys = append(removedKeys, k)
		}
	}
	sort.Strings(removedKeys)
	for _, k := range removedKeys {
		o := oldByKey[k]
		deltas = append(deltas, types.DiffDelta{
			Kind: types.DeltaSymbolRemoved, Symbol: o.ID, Module: module,
			Detail: fmt.Sprintf("%s %s", o.Kind, o.Name),
		})
	}

	for _, dep := range depDiff(oldSyms, newSyms) {
		deltas = append(deltas, types.DiffDelta{Kind: types.DeltaDependencyAdded, Module: module, Detail: dep})
	}
	for _, dep := range depDiff(newSyms, oldSyms) {
		deltas = append(deltas, types.DiffDelta{Kind: types.DeltaDependencyRemoved, Module: module, Detail: dep})
	}
	return deltas
}

func sigChanged(o, n *types.SemanticSummary) bool {
	return len(o.Params) != len(n.Params) || o.ReturnType != n.ReturnType
}

func bodyChanged(o, n *types.SemanticSummary) bool {
	return o.CallFingerprint != n.CallFingerprint ||
		o.FlowFingerprint != n.FlowFingerprint ||
		o.StateFingerprint != n.StateFingerprint
}

func cfTotal(s *types.SemanticSummary) int {
	total := 0
	for _, n := range s.ControlFlow {
		total += n
	}
	return total
}

// depDiff returns file-level dependencies present in b but not a,
// sorted.
func depDiff(a, b []*types.SemanticSummary) []string {
	has := make(map[string]bool)
	for _, s := range a {
		for _, dep := range s.AddedDependencies {
			has[dep] = true
		}
	}
	added := make(map[string]bool)
	for _, s := range b {
		for _, dep := range s.AddedDependencies {
			if !has[dep] && !added[dep] {
				added[dep] = true
			}
		}
	}
	out := make([]string, 0, len(added))
	for dep := range added {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

// AnalyzeOptions carries the analyze operation's parameters: a path
// (file, possibly outside the indexed root) or module, with an
// optional focus range.
type AnalyzeOptions struct {
	Path       string
	Module     string
	StartLine  int
	EndLine    int
	OutputMode string // "summary" (default) or "list"
}

// AnalyzeResponse is the analyze payload: extracted symbols for the
// requested scope.
type AnalyzeResponse struct {
	Path    string                   `json:"path,omitempty"`
	Module  string                   `json:"module,omitempty"`
	Symbols []*types.SemanticSummary `json:"symbols"`
}

// Analyze extracts a path on demand, without touching the index;
// this is the one operation the freshness guard short-circuits for
// paths outside the indexed root.
func (e *Engine) Analyze(opts AnalyzeOptions) (*AnalyzeResponse, error) {
	if opts.Module != "" {
		defer e.rlock()()
		full, err := e.moduleFullPath(opts.Module)
		if err != nil {
			return nil, err
		}
		_, entries, err := e.indexByID()
		if err != nil {
			return nil, err
		}
		resp := &AnalyzeResponse{Module: full}
		for _, entry := range entries {
			if entry.Module != full {
				continue
			}
			if summary, ok := e.stack.Resolve(entry.Hash); ok {
				resp.Symbols = append(resp.Symbols, summary)
			}
		}
		return resp, nil
	}

	abs := opts.Path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(e.repoRoot, opts.Path)
	}
	source, err := os.ReadFile(abs)
	if err != nil {
		return nil, errs.FileNotFound(opts.Path, err)
	}
	rel := filepath.ToSlash(opts.Path)
	if filepath.IsAbs(opts.Path) {
		if r, err := filepath.Rel(e.repoRoot, opts.Path); err == nil && !strings.HasPrefix(r, "..") {
			rel = filepath.ToSlash(r)
		} else {
			rel = filepath.Base(opts.Path)
		}
	}
	symbols := e.extractSource(rel, source)
	if symbols == nil {
		ext := filepath.Ext(rel)
		if _, langErr := e.langs.LanguageFor(ext); langErr != nil {
			return nil, errs.UnsupportedLanguage(rel, ext)
		}
		return nil, errs.ExtractionFailure(rel, fmt.Errorf("no symbols extracted"))
	}
	resp := &AnalyzeResponse{Path: rel}
	for _, s := range symbols {
		if opts.StartLine > 0 && (s.EndLine < opts.StartLine || (opts.EndLine > 0 && s.StartLine > opts.EndLine)) {
			continue
		}
		resp.Symbols = append(resp.Symbols, s)
	}
	return resp, nil
}
