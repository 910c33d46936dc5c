package query

import (
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/hbollon/go-edlib"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/semidx/internal/types"
)

// SearchMode selects the retrieval strategy.
type SearchMode string

const (
	ModeSymbols  SearchMode = "symbols"
	ModeSemantic SearchMode = "semantic"
	ModeRaw      SearchMode = "raw"
	ModeHybrid   SearchMode = "hybrid"
)

// SearchOptions carries the search request parameters.
type SearchOptions struct {
	Query         string
	Mode          SearchMode
	Kind          types.SymbolKind
	Risk          types.RiskLevel
	Module        string
	Limit         int
	Offset        int
	IncludeSource bool
}

// SearchResult is one scored hit.
type SearchResult struct {
	Name   string           `json:"name,omitempty"`
	Hash   types.SymbolID   `json:"hash,omitempty"`
	Kind   types.SymbolKind `json:"kind,omitempty"`
	Module string           `json:"module,omitempty"`
	File   string           `json:"file"`
	Line   int              `json:"line"`
	Risk   types.RiskLevel  `json:"risk,omitempty"`
	Score  float64          `json:"score"`
	Source string           `json:"source,omitempty"`
}

// SearchResponse is the search operation's payload.
type SearchResponse struct {
	Query      string         `json:"query"`
	Mode       SearchMode     `json:"mode"`
	Results    []SearchResult `json:"results"`
	Total      int            `json:"total"`
	NextOffset int            `json:"next_offset,omitempty"`
}

// Search implements the search operation. Hybrid mode runs the symbol
// and semantic passes in parallel and merges by rank with symbol
// matches prioritized, de-duplicated by SymbolId.
func (e *Engine) Search(ctx context.Context, opts SearchOptions) (*SearchResponse, error) {
	defer e.rlock()()

	if opts.Mode == "" {
		opts.Mode = ModeHybrid
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	var results []SearchResult
	var err error
	switch opts.Mode {
	case ModeSymbols:
		results, err = e.symbolSearch(opts)
	case ModeSemantic:
		results, err = e.semanticSearch(opts)
	case ModeRaw:
		results, err = e.rawSearch(ctx, opts)
	case ModeHybrid:
		var symHits, semHits []SearchResult
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			symHits, err = e.symbolSearch(opts)
			return err
		})
		g.Go(func() error {
			var err error
			semHits, err = e.semanticSearch(opts)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		results = mergeHybrid(symHits, semHits)
	default:
		results, err = e.symbolSearch(opts)
	}
	if err != nil {
		return nil, err
	}

	resp := &SearchResponse{Query: opts.Query, Mode: opts.Mode, Total: len(results)}
	end := opts.Offset + opts.Limit
	if opts.Offset < len(results) {
		if end < len(results) {
			resp.NextOffset = end
		} else {
			end = len(results)
		}
		resp.Results = results[opts.Offset:end]
	}

	if opts.IncludeSource {
		for i := range resp.Results {
			r := &resp.Results[i]
			if r.Hash.IsZero() {
				continue
			}
			if summary, ok := e.stack.Resolve(r.Hash); ok {
				if block, err := e.readRange(summary.FilePath, summary.StartLine, summary.EndLine); err == nil {
					r.Source = truncateLines(block.Text, 20)
				}
			}
		}
	}
	return resp, nil
}

func truncateLines(text string, max int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= max {
		return text
	}
	return strings.Join(lines[:max], "\n")
}

func (e *Engine) matchesFilters(entry types.SymbolIndexEntry, opts SearchOptions, moduleFull string) bool {
	if opts.Kind != "" && entry.Kind != opts.Kind {
		return false
	}
	if opts.Risk != "" && entry.Risk != opts.Risk {
		return false
	}
	if moduleFull != "" && entry.Module != moduleFull {
		return false
	}
	return true
}

func (e *Engine) filterModule(opts SearchOptions) (string, error) {
	if opts.Module == "" {
		return "", nil
	}
	return e.moduleFullPath(opts.Module)
}

// symbolSearch does exact/substring matching over symbol names,
// index-backed: exact 2.0, prefix 1.5, substring 1.0.
func (e *Engine) symbolSearch(opts SearchOptions) ([]SearchResult, error) {
	moduleFull, err := e.filterModule(opts)
	if err != nil {
		return nil, err
	}
	_, entries, err := e.indexByID()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(opts.Query)
	var out []SearchResult
	for _, entry := range entries {
		if !e.matchesFilters(entry, opts, moduleFull) {
			continue
		}
		name := strings.ToLower(entry.Name)
		var score float64
		switch {
		case name == needle:
			score = 2.0
		case strings.HasPrefix(name, needle):
			score = 1.5
		case strings.Contains(name, needle):
			score = 1.0
		default:
			continue
		}
		out = append(out, resultOf(entry, score))
	}
	sortResults(out)
	return out, nil
}

// semanticSearch ranks with BM25 and re-ranks the hits with a
// Jaro-Winkler similarity between the query and the symbol name, so
// near-miss identifier spellings still surface.
func (e *Engine) semanticSearch(opts SearchOptions) ([]SearchResult, error) {
	moduleFull, err := e.filterModule(opts)
	if err != nil {
		return nil, err
	}
	byID, _, err := e.indexByID()
	if err != nil {
		return nil, err
	}
	hits := e.writer.BM25().Search(opts.Query, (opts.Offset+opts.Limit)*4)
	var out []SearchResult
	for _, hit := range hits {
		entry, ok := byID[hit.ID]
		if !ok || !e.matchesFilters(entry, opts, moduleFull) {
			continue
		}
		score := hit.Score
		if sim, err := edlib.StringsSimilarity(opts.Query, entry.Name, edlib.JaroWinkler); err == nil {
			score *= 1 + 0.25*float64(sim)
		}
		out = append(out, resultOf(entry, score))
	}
	sortResults(out)
	return out, nil
}

// rawSearch delegates to the external grep collaborator:
// a regex scan over source content, outside the index entirely.
func (e *Engine) rawSearch(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	max := opts.Offset + opts.Limit
	if max <= 0 {
		max = DefaultLimit
	}
	cmd := exec.CommandContext(ctx, "grep", "-rnE",
		"--exclude-dir=.git", "--exclude-dir=node_modules", "--exclude-dir=vendor",
		"-m", strconv.Itoa(max), opts.Query, ".")
	cmd.Dir = e.repoRoot
	outBytes, err := cmd.Output()
	if err != nil {
		// grep exits 1 on no matches.
		if ee, ok := err.(*exec.ExitError); ok && ee.ExitCode() == 1 {
			return nil, nil
		}
		return nil, err
	}
	var out []SearchResult
	for _, line := range strings.Split(strings.TrimRight(string(outBytes), "\n"), "\n") {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		lineNo, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		out = append(out, SearchResult{
			File:   strings.TrimPrefix(parts[0], "./"),
			Line:   lineNo,
			Score:  1.0,
			Source: strings.TrimSpace(parts[2]),
		})
		if len(out) >= max {
			break
		}
	}
	return out, nil
}

func resultOf(entry types.SymbolIndexEntry, score float64) SearchResult {
	return SearchResult{
		Name:   entry.Name,
		Hash:   entry.Hash,
		Kind:   entry.Kind,
		Module: entry.Module,
		File:   entry.File,
		Line:   entry.StartLine,
		Risk:   entry.Risk,
		Score:  score,
	}
}

// sortResults orders by score descending, ties broken by symbol name
// ascending.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Name != results[j].Name {
			return results[i].Name < results[j].Name
		}
		return results[i].Hash.String() < results[j].Hash.String()
	})
}

// mergeHybrid concatenates the two passes: every symbol match first,
// in its own rank order, then the semantic matches not already
// present, de-duplicated by SymbolId.
func mergeHybrid(symHits, semHits []SearchResult) []SearchResult {
	seen := make(map[types.SymbolID]bool, len(symHits))
	out := make([]SearchResult, 0, len(symHits)+len(semHits))
	for _, r := range symHits {
		seen[r.Hash] = true
		out = append(out, r)
	}
	for _, r := range semHits {
		if !seen[r.Hash] {
			seen[r.Hash] = true
			out = append(out, r)
		}
	}
	return out
}
