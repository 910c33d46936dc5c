package shard

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/semidx/internal/bm25"
	"github.com/standardbeagle/semidx/internal/config"
	"github.com/standardbeagle/semidx/internal/errs"
	"github.com/standardbeagle/semidx/internal/extract"
	"github.com/standardbeagle/semidx/internal/identity"
	"github.com/standardbeagle/semidx/internal/langregistry"
	"github.com/standardbeagle/semidx/internal/types"
)

const metaSchemaVersion = 1

// fileResult is one parsed file's extraction output, kept in memory
// during a write so module shards can be assembled once every file in
// the batch has been processed. A deleted file produces a result with
// deleted=true and no symbols, so its stale records are purged by the
// same merge path that handles edits.
type fileResult struct {
	path       string
	modulePath string
	symbols    []*types.SemanticSummary
	deleted    bool
}

// WriteReport summarizes one full or partial write, for the freshness
// guard's "refreshed" note and the CLI's progress output.
type WriteReport struct {
	FilesProcessed int
	FilesDeleted   int
	FilesSkipped   []string
	DurationMs     int64
}

// Writer owns one repository's persisted cache: the Store layout, the
// module identity registry, and the in-memory BM25 index that is
// serialized alongside the shards.
type Writer struct {
	store    *Store
	registry *identity.Registry
	bm25     *bm25.Index
	langs    *langregistry.Registry
	cfg      *config.Config
	repoRoot string
}

// Open loads (or initializes) a Writer for repoRoot, backed by
// cacheRoot.
func Open(repoRoot, cacheRoot string, cfg *config.Config, langs *langregistry.Registry) (*Writer, error) {
	store := NewStore(cacheRoot)
	reg, err := identity.Load(store.ModuleRegistryPath())
	if err != nil {
		return nil, err
	}
	bmIdx := bm25.New()
	if _, err := readJSON(store.BM25IndexPath(), bmIdx); err != nil {
		return nil, err
	}
	return &Writer{store: store, registry: reg, bm25: bmIdx, langs: langs, cfg: cfg, repoRoot: repoRoot}, nil
}

func (w *Writer) Store() *Store                { return w.store }
func (w *Writer) Registry() *identity.Registry { return w.registry }
func (w *Writer) BM25() *bm25.Index            { return w.bm25 }
func (w *Writer) RepoRoot() string             { return w.repoRoot }

// FullWrite walks repoRoot under cfg's include/exclude rules, extracts
// every matched file, and writes the complete shard set in the fixed
// order the concurrency model requires: symbol shards, module shards,
// symbol index, BM25, graphs, overview, meta.
func (w *Writer) FullWrite(indexedSHA string) (*WriteReport, error) {
	var rels []string
	err := filepath.Walk(w.repoRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if info.Size() > w.cfg.Index.MaxFileSize {
			return nil
		}
		rel, relErr := filepath.Rel(w.repoRoot, path)
		if relErr != nil {
			return relErr
		}
		if w.cfg.Matches(rel) {
			rels = append(rels, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Stale rows for files that vanished since the last write are
	// purged by passing them through as part of the changed set.
	prior, err := NewReader(w.store).SymbolIndex()
	if err != nil {
		return nil, err
	}
	present := make(map[string]bool, len(rels))
	for _, rel := range rels {
		present[rel] = true
	}
	for _, e := range prior {
		if !present[e.File] {
			rels = append(rels, e.File)
			present[e.File] = true
		}
	}
	return w.writeFiles(rels, indexedSHA)
}

// PartialReindex re-extracts only the given repo-relative paths and
// rewrites the affected shards, leaving everything else untouched
// except the always-fully-regenerated overview.
func (w *Writer) PartialReindex(changedRelPaths []string, indexedSHA string) (*WriteReport, error) {
	return w.writeFiles(changedRelPaths, indexedSHA)
}

// writeFiles is the shared write path: a partial reindex passes only
// the changed paths; a full write is the same algorithm with every
// indexed path in the changed set.
func (w *Writer) writeFiles(changedRelPaths []string, indexedSHA string) (*WriteReport, error) {
	start := time.Now()
	report := &WriteReport{}

	prior, err := NewReader(w.store).SymbolIndex()
	if err != nil {
		return nil, err
	}

	changedSet := make(map[string]bool, len(changedRelPaths))
	for _, rel := range changedRelPaths {
		changedSet[filepath.ToSlash(rel)] = true
	}

	results := w.extractAll(changedRelPaths, report)

	// A file that failed to extract this run keeps its prior records;
	// per-file errors never abort the batch, and dropping the old rows
	// would make a transient failure look like a deletion.
	for _, rel := range report.FilesSkipped {
		delete(changedSet, rel)
	}

	// Rows for files outside the changed set carry over untouched;
	// everything inside it is replaced by the fresh extraction.
	var staleRows []types.SymbolIndexEntry
	merged := make([]types.SymbolIndexEntry, 0, len(prior))
	for _, row := range prior {
		if changedSet[row.File] {
			staleRows = append(staleRows, row)
			continue
		}
		merged = append(merged, row)
	}

	newRows := indexRows(results)
	merged = append(merged, newRows...)

	newIDs := make(map[types.SymbolID]bool, len(newRows))
	for _, row := range newRows {
		newIDs[row.Hash] = true
	}

	// 1: symbol shards. Stale shards for symbols that no longer exist
	// are removed; fresh ones written; BM25 postings swapped per doc.
	staleIDs := make(map[types.SymbolID]bool, len(staleRows))
	for _, row := range staleRows {
		staleIDs[row.Hash] = true
		w.bm25.Remove(row.Hash)
		if !newIDs[row.Hash] {
			shardHash, symbolHash := hashPair(row.Hash)
			_ = os.Remove(w.store.SymbolShardPath(shardHash, symbolHash))
		}
	}
	for _, r := range results {
		for _, sym := range r.symbols {
			if sym.IsRaw() {
				continue
			}
			rec := types.SymbolShard{ID: sym.ID, Summary: *sym}
			shardHash, symbolHash := hashPair(sym.ID)
			if err := writeJSONAtomic(w.store.SymbolShardPath(shardHash, symbolHash), rec); err != nil {
				return nil, err
			}
			w.bm25.Add(sym.ID, bm25Tokens(sym))
		}
	}

	// 2: module shards for every affected module, rebuilt from the
	// merged row set so unchanged files in a touched module survive.
	affected := make(map[string]bool)
	for _, row := range staleRows {
		affected[row.Module] = true
	}
	for _, r := range results {
		if !r.deleted {
			affected[r.modulePath] = true
		}
	}
	if err := w.rewriteModuleShards(affected, merged, results, changedSet); err != nil {
		return nil, err
	}
	if err := w.registry.Flush(); err != nil {
		return nil, err
	}

	// 3: symbol index, rewritten whole from the merged row set.
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].File != merged[j].File {
			return merged[i].File < merged[j].File
		}
		return merged[i].StartLine < merged[j].StartLine
	})
	if err := writeJSONLines(w.store.SymbolIndexPath(), merged); err != nil {
		return nil, err
	}

	// 4: BM25 index persisted whole.
	if err := writeJSONAtomic(w.store.BM25IndexPath(), w.bm25); err != nil {
		return nil, err
	}

	// 5: graphs, merging fresh edges for changed symbols over the
	// retained ones.
	if err := w.rewriteGraphs(results, merged, staleIDs, affected); err != nil {
		return nil, err
	}

	// 6: overview, fully regenerated from the registry and module
	// shards, bounded at O(modules).
	if err := w.rewriteOverview(); err != nil {
		return nil, err
	}

	// 7: meta, written last so no reader observes it ahead of its
	// dependents.
	if err := w.writeMeta(indexedSHA); err != nil {
		return nil, err
	}

	report.DurationMs = time.Since(start).Milliseconds()
	return report, nil
}

// extractAll parses and extracts the changed paths in a bounded worker
// pool. Per-file failures never abort the batch: missing files become
// deletions, unsupported or unreadable files are skipped and
// reported.
func (w *Writer) extractAll(relPaths []string, report *WriteReport) []*fileResult {
	results := make([]*fileResult, len(relPaths))
	g := new(errgroup.Group)
	limit := w.cfg.Perf.MaxGoroutines
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)

	for i, rel := range relPaths {
		i, rel := i, rel
		g.Go(func() error {
			results[i] = w.extractFile(filepath.ToSlash(rel))
			return nil
		})
	}
	_ = g.Wait()

	out := results[:0]
	for _, r := range results {
		if r == nil {
			continue
		}
		switch {
		case r.deleted:
			report.FilesDeleted++
		case r.symbols == nil:
			report.FilesSkipped = append(report.FilesSkipped, r.path)
			continue
		default:
			report.FilesProcessed++
		}
		out = append(out, r)
	}
	return out
}

func (w *Writer) extractFile(rel string) *fileResult {
	abs := filepath.Join(w.repoRoot, rel)
	modulePath := identity.CanonicalModulePath(rel)

	source, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return &fileResult{path: rel, modulePath: modulePath, deleted: true}
	}
	if err != nil {
		slog.Warn("read failed, skipping", "file", rel, "err", err)
		return &fileResult{path: rel, modulePath: modulePath}
	}

	entry, langErr := w.langs.LanguageFor(filepath.Ext(rel))
	if langErr != nil {
		return &fileResult{path: rel, modulePath: modulePath}
	}

	var summaries []*types.SemanticSummary
	ex := extract.New(rel, modulePath, source, entry.Grammar)
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
		slog.Warn("extraction failed, skipping", "file", rel, "err", errs.ExtractionFailure(rel, err))
		return &fileResult{path: rel, modulePath: modulePath}
	}
	return &fileResult{path: rel, modulePath: modulePath, symbols: summaries}
}

func indexRows(results []*fileResult) []types.SymbolIndexEntry {
	var rows []types.SymbolIndexEntry
	for _, r := range results {
		for _, sym := range r.symbols {
			if sym.IsRaw() {
				continue
			}
			rows = append(rows, types.SymbolIndexEntry{
				Name: sym.Name, Hash: sym.ID, Kind: sym.Kind, Module: r.modulePath,
				File: r.path, StartLine: sym.StartLine, EndLine: sym.EndLine, Risk: sym.Risk,
				CallFP: sym.CallFingerprint, FlowFP: sym.FlowFingerprint, StateFP: sym.StateFingerprint,
			})
		}
	}
	return rows
}

// rewriteModuleShards rebuilds every affected module's shard from the
// merged row set. Modules whose last file was deleted lose their shard
// and registry entry; new modules get a
// conflict-aware short name, renaming the colliding module's shard on
// disk when the registry re-lengthens it.
func (w *Writer) rewriteModuleShards(affected map[string]bool, merged []types.SymbolIndexEntry, results []*fileResult, changedSet map[string]bool) error {
	byModule := make(map[string][]types.SymbolIndexEntry)
	for _, row := range merged {
		byModule[row.Module] = append(byModule[row.Module], row)
	}

	// Fresh high-risk insertions per module, for the security-findings
	// list; retained findings for unchanged files come from the prior
	// shard below.
	freshFindings := make(map[string][]string)
	fileByModule := make(map[string]string)
	for _, r := range results {
		if r.deleted {
			continue
		}
		if _, ok := fileByModule[r.modulePath]; !ok {
			fileByModule[r.modulePath] = r.path
		}
		for _, sym := range r.symbols {
			if sym.IsRaw() || sym.Risk != types.RiskHigh {
				continue
			}
			for _, ins := range sym.Insertions {
				freshFindings[r.modulePath] = append(freshFindings[r.modulePath], r.path+": "+ins)
			}
		}
	}

	modules := make([]string, 0, len(affected))
	for m := range affected {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	reader := NewReader(w.store)
	for _, modulePath := range modules {
		rows := byModule[modulePath]
		if len(rows) == 0 {
			if short, ok := w.registry.Resolve(modulePath); ok {
				_ = os.Remove(w.store.ModuleShardPath(short))
				w.registry.Remove(modulePath)
			}
			continue
		}

		filePath := fileByModule[modulePath]
		if filePath == "" {
			filePath = rows[0].File
		}
		add := w.registry.Add(modulePath, filePath)
		if add.Conflict {
			oldPath := w.store.ModuleShardPath(add.CollidingOldShort)
			newPath := w.store.ModuleShardPath(add.CollidingShort)
			if oldPath != newPath {
				_ = os.Rename(oldPath, newPath)
			}
		}

		var retained []string
		if existing, found, err := reader.ModuleShard(add.Short); err != nil {
			return err
		} else if found {
			for _, finding := range existing.SecurityFindings {
				file, _, ok := strings.Cut(finding, ": ")
				if ok && !changedSet[file] {
					retained = append(retained, finding)
				}
			}
		}

		ms := &types.ModuleShard{Module: modulePath, RiskSummary: make(map[types.RiskLevel]int)}
		ms.Symbols = append(ms.Symbols, rows...)
		sort.Slice(ms.Symbols, func(i, j int) bool { return ms.Symbols[i].Name < ms.Symbols[j].Name })
		for _, row := range rows {
			ms.RiskSummary[row.Risk]++
		}
		ms.SecurityFindings = append(retained, freshFindings[modulePath]...)

		if err := writeJSONAtomic(w.store.ModuleShardPath(add.Short), ms); err != nil {
			return err
		}
	}
	return nil
}

// rewriteGraphs recomputes call/import edges for changed symbols and
// merges them over the retained edge set. Call names resolve against
// the merged symbol row set; anything unresolved keeps the ext: tag.
func (w *Writer) rewriteGraphs(results []*fileResult, merged []types.SymbolIndexEntry, staleIDs map[types.SymbolID]bool, affectedModules map[string]bool) error {
	byName := make(map[string]types.SymbolID, len(merged))
	names := make([]string, 0, len(merged))
	for _, row := range merged {
		names = append(names, row.Name)
	}
	sort.Strings(names)
	nameRows := make(map[string][]types.SymbolIndexEntry)
	for _, row := range merged {
		nameRows[row.Name] = append(nameRows[row.Name], row)
	}
	for name, rows := range nameRows {
		// Deterministic pick when a name is declared in several
		// modules: lowest module path wins.
		sort.Slice(rows, func(i, j int) bool { return rows[i].Module < rows[j].Module })
		byName[name] = rows[0].Hash
	}

	priorCall, err := NewReader(w.store).CallGraph()
	if err != nil {
		return err
	}
	var callEdges []types.CallGraphEdge
	for _, e := range priorCall {
		if !staleIDs[e.From] {
			callEdges = append(callEdges, e)
		}
	}

	priorImport, err := NewReader(w.store).ImportGraph()
	if err != nil {
		return err
	}
	var importEdges []types.ImportGraphEdge
	for _, e := range priorImport {
		if !affectedModules[e.FromModule] {
			importEdges = append(importEdges, e)
		}
	}

	for _, r := range results {
		importsSeen := make(map[string]bool)
		for _, sym := range r.symbols {
			if sym.IsRaw() {
				continue
			}
			for _, c := range sym.Calls {
				bare := strings.TrimPrefix(c.Name, "ext:")
				edge := types.CallGraphEdge{From: sym.ID, Kind: "call"}
				if to, ok := byName[bare]; ok && !c.IsExternal() {
					if to == sym.ID {
						continue
					}
					edge.To = to
				} else {
					edge.ExternalName = "ext:" + bare
				}
				callEdges = append(callEdges, edge)
			}
			for _, imp := range sym.LocalImports {
				if !importsSeen[imp] {
					importsSeen[imp] = true
					importEdges = append(importEdges, types.ImportGraphEdge{FromModule: r.modulePath, ToModule: imp})
				}
			}
			for _, dep := range sym.AddedDependencies {
				key := "ext:" + dep
				if !importsSeen[key] {
					importsSeen[key] = true
					importEdges = append(importEdges, types.ImportGraphEdge{FromModule: r.modulePath, ToModule: key})
				}
			}
		}
	}

	if err := writeJSONLines(w.store.CallGraphPath(), callEdges); err != nil {
		return err
	}
	if err := writeJSONLines(w.store.ImportGraphPath(), importEdges); err != nil {
		return err
	}
	return w.rewriteModuleGraph(importEdges)
}

// rewriteModuleGraph collapses the import graph to distinct
// module-to-module edges.
func (w *Writer) rewriteModuleGraph(importEdges []types.ImportGraphEdge) error {
	seen := make(map[types.ImportGraphEdge]bool, len(importEdges))
	var edges []types.ImportGraphEdge
	for _, e := range importEdges {
		if !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromModule != edges[j].FromModule {
			return edges[i].FromModule < edges[j].FromModule
		}
		return edges[i].ToModule < edges[j].ToModule
	})
	return writeJSONLines(w.store.ModuleGraphPath(), edges)
}

func hashPair(id types.SymbolID) (string, string) {
	return hex16(id.ShardHash), hex16(id.SymbolHash)
}

func hex16(v uint64) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		buf[i] = hexDigits[v&0xf]
		v >>= 4
	}
	return string(buf)
}

func bm25Tokens(s *types.SemanticSummary) []string {
	tokens := append([]string{s.Name, s.FilePath}, s.Insertions...)
	return append(tokens, s.Tokens...)
}

func (w *Writer) rewriteOverview() error {
	entries := w.registry.All()
	sort.Slice(entries, func(i, j int) bool { return entries[i].FullPath < entries[j].FullPath })

	overview := &types.Overview{
		LanguageCounts: make(map[string]int),
		RiskHistogram:  make(map[types.RiskLevel]int),
		ModulesTotal:   len(entries),
	}
	files := make(map[string]bool)
	reader := NewReader(w.store)
	for _, e := range entries {
		ms, found, err := reader.ModuleShard(e.ShortName)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		overview.Modules = append(overview.Modules, types.ModuleSummary{
			Module: e.FullPath, SymbolCount: len(ms.Symbols), RiskCounts: ms.RiskSummary,
		})
		for _, row := range ms.Symbols {
			files[row.File] = true
			if ext := filepath.Ext(row.File); ext != "" {
				overview.LanguageCounts[strings.TrimPrefix(ext, ".")]++
			}
			if row.Name == "main" || strings.HasSuffix(row.File, "main.go") {
				if len(overview.EntryPoints) < 10 && !contains(overview.EntryPoints, row.File) {
					overview.EntryPoints = append(overview.EntryPoints, row.File)
				}
			}
		}
		for level, n := range ms.RiskSummary {
			overview.RiskHistogram[level] += n
		}
	}
	overview.TotalFiles = len(files)

	// The module list is capped so the overview stays bounded no
	// matter how many modules the repository grows; the biggest
	// modules make the cut, and ModulesTotal still reports the full
	// count.
	if len(overview.Modules) > overviewModuleCap {
		sort.SliceStable(overview.Modules, func(i, j int) bool {
			return overview.Modules[i].SymbolCount > overview.Modules[j].SymbolCount
		})
		overview.Modules = overview.Modules[:overviewModuleCap]
		sort.Slice(overview.Modules, func(i, j int) bool {
			return overview.Modules[i].Module < overview.Modules[j].Module
		})
	}
	return writeJSONAtomic(w.store.OverviewPath(), overview)
}

// overviewModuleCap bounds the module summaries kept in the persisted
// overview.
const overviewModuleCap = 100

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (w *Writer) writeMeta(indexedSHA string) error {
	existing := &types.Meta{}
	found, err := readTOML(w.store.MetaPath(), existing)
	if err != nil {
		return err
	}
	createdAt := time.Now().Unix()
	if found {
		createdAt = existing.CreatedAt
	}
	meta := &types.Meta{
		SchemaVersion: metaSchemaVersion,
		IndexedSHA:    indexedSHA,
		IndexedMtime:  time.Now().Unix(),
		RepoHash:      filepath.Base(w.store.Root),
		CreatedAt:     createdAt,
	}
	return writeTOMLAtomic(w.store.MetaPath(), meta)
}
