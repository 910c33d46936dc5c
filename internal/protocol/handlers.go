package protocol

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/semidx/internal/fresh"
	"github.com/standardbeagle/semidx/internal/query"
	"github.com/standardbeagle/semidx/internal/types"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_context",
		Description: "Current branch, HEAD, index status, and minimal project metadata.",
		InputSchema: objectSchema(nil),
	}, s.handleGetContext)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_overview",
		Description: "Bounded repository overview: language histogram, module summaries, risk histogram.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"max_modules": num("Cap on returned module summaries (≤ 100)"),
		}),
	}, s.handleGetOverview)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "search",
		Description: "Hybrid symbol + BM25 search over the index. Modes: symbols, semantic, raw, hybrid (default).",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"query":          str("Search query"),
			"mode":           str("symbols | semantic | raw | hybrid"),
			"kind":           str("Filter by symbol kind"),
			"risk":           str("Filter by risk level: low | medium | high"),
			"module":         str("Filter by module (short or full name)"),
			"limit":          num("Max results (default 20)"),
			"offset":         num("Pagination offset"),
			"include_source": flag("Attach the symbol's source text to each hit"),
		}),
	}, s.handleSearch)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_symbol",
		Description: "Full symbol shard(s) by hash (shardHash:symbolHash), hashes[] (≤ 20), or file_path+line.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"symbol_hash": str("Full shardHash:symbolHash"),
			"hashes":      {Type: "array", Items: str("Full shardHash:symbolHash")},
			"file_path":   str("Repo-relative file path"),
			"line":        num("1-based line inside the symbol"),
		}),
	}, s.handleGetSymbol)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_source",
		Description: "Raw source range(s) by symbol hash or by file_path+start_line+end_line.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"symbol_hash": str("Full shardHash:symbolHash"),
			"hashes":      {Type: "array", Items: str("Full shardHash:symbolHash")},
			"file_path":   str("Repo-relative file path"),
			"start_line":  num("1-based start line"),
			"end_line":    num("1-based end line (inclusive)"),
		}),
	}, s.handleGetSource)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_file",
		Description: "Symbol index entries for one file, with line ranges.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"file_path": str("Repo-relative file path"),
		}),
	}, s.handleGetFile)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_callers",
		Description: "Reverse call-graph traversal: who calls this symbol, breadth-first up to depth (≤ 5).",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"symbol_hash": str("Full shardHash:symbolHash"),
			"depth":       num("Traversal depth, 1-5 (default 1)"),
			"limit":       num("Max callers returned (default 20)"),
		}),
	}, s.handleGetCallers)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "get_callgraph",
		Description: "Call-graph edges (paginated) or aggregate stats with summary_only.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"symbol_hash":  str("Restrict to edges touching this symbol"),
			"module":       str("Restrict to edges from this module"),
			"summary_only": flag("Return aggregate stats instead of edges"),
			"limit":        num("Edges per page (default 50)"),
			"offset":       num("Pagination offset"),
		}),
	}, s.handleGetCallgraph)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "validate",
		Description: "Complexity metrics (cognitive, cyclomatic, nesting, params, LOC) per symbol with risk classification.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"module":      str("Scope to one module"),
			"file_path":   str("Scope to one file"),
			"symbol_hash": str("Scope to one symbol"),
			"limit":       num("Max rows (default 20)"),
			"offset":      num("Pagination offset"),
		}),
	}, s.handleValidate)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "find_duplicates",
		Description: "Symbol clusters with fingerprint similarity ≥ threshold.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"threshold": {Type: "number", Description: "Similarity floor 0-1 (default 0.85)"},
			"min_lines": num("Smallest symbol considered (default 5)"),
			"module":    str("Scope to one module"),
			"limit":     num("Max clusters (default 20)"),
			"offset":    num("Pagination offset"),
			"sort_by":   str("similarity (default) | size | count"),
		}),
	}, s.handleFindDuplicates)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "analyze",
		Description: "On-demand semantic extraction of a file or module, without touching the index.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"path":        str("File path (may be outside the indexed root)"),
			"module":      str("Module name to list indexed symbols for"),
			"start_line":  num("Focus range start"),
			"end_line":    num("Focus range end"),
			"output_mode": str("summary (default) | list"),
		}),
	}, s.handleAnalyze)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "analyze_diff",
		Description: "Typed deltas between two commits (or the working tree): symbols, dependencies, complexity, public API.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"base_ref":     str("Base commit/ref (required)"),
			"target_ref":   str("Target commit/ref; empty means the working tree"),
			"limit":        num("Max deltas (default 50)"),
			"offset":       num("Pagination offset"),
			"summary_only": flag("Return per-kind counts only"),
		}),
	}, s.handleAnalyzeDiff)

	s.mcp.AddTool(&mcp.Tool{
		Name:        "index",
		Description: "Index management: refresh, check, or clear.",
		InputSchema: objectSchema(map[string]*jsonschema.Schema{
			"operation": str("refresh | check | clear"),
			"force":     flag("With refresh: force a full rebuild"),
		}),
	}, s.handleIndex)
}

// admit runs the freshness guard for index-backed operations.
func (s *Server) admit(ctx context.Context) (*fresh.Note, error) {
	return s.guard.Ensure(ctx)
}

func (s *Server) handleGetContext(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p formatParams
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	info, err := s.engine.Context(ctx)
	if err != nil {
		return failure(err)
	}
	return respond("context", p.Format, info, note)
}

func (s *Server) handleGetOverview(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		formatParams
		MaxModules int `json:"max_modules,omitempty"`
	}
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	overview, err := s.engine.Overview(p.MaxModules)
	if err != nil {
		return failure(err)
	}
	return respond("overview", p.Format, overview, note)
}

func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		formatParams
		Query         string `json:"query"`
		Mode          string `json:"mode,omitempty"`
		Kind          string `json:"kind,omitempty"`
		Risk          string `json:"risk,omitempty"`
		Module        string `json:"module,omitempty"`
		Limit         int    `json:"limit,omitempty"`
		Offset        int    `json:"offset,omitempty"`
		IncludeSource bool   `json:"include_source,omitempty"`
	}
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	resp, err := s.engine.Search(ctx, query.SearchOptions{
		Query:         p.Query,
		Mode:          query.SearchMode(p.Mode),
		Kind:          types.SymbolKind(p.Kind),
		Risk:          types.RiskLevel(p.Risk),
		Module:        p.Module,
		Limit:         p.Limit,
		Offset:        p.Offset,
		IncludeSource: p.IncludeSource,
	})
	if err != nil {
		return failure(err)
	}
	return respond("search_results", p.Format, resp, note)
}

// locatorParams is the shared hash/file+line union for
// get_symbol/get_source.
type locatorParams struct {
	formatParams
	SymbolHash string   `json:"symbol_hash,omitempty"`
	Hashes     []string `json:"hashes,omitempty"`
	FilePath   string   `json:"file_path,omitempty"`
	Line       int      `json:"line,omitempty"`
	StartLine  int      `json:"start_line,omitempty"`
	EndLine    int      `json:"end_line,omitempty"`
}

func (p *locatorParams) locator() query.SymbolLocator {
	hashes := p.Hashes
	if p.SymbolHash != "" {
		hashes = append([]string{p.SymbolHash}, hashes...)
	}
	return query.SymbolLocator{Hashes: hashes, FilePath: p.FilePath, Line: p.Line}
}

func (s *Server) handleGetSymbol(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p locatorParams
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	shards, err := s.engine.Symbols(p.locator())
	if err != nil {
		return failure(err)
	}
	return respond("symbols", p.Format, struct {
		Symbols []*types.SymbolShard `json:"symbols"`
	}{shards}, note)
}

func (s *Server) handleGetSource(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p locatorParams
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	blocks, err := s.engine.Source(p.locator(), p.StartLine, p.EndLine)
	if err != nil {
		return failure(err)
	}
	return respond("source", p.Format, struct {
		Blocks []*query.SourceBlock `json:"blocks"`
	}{blocks}, note)
}

func (s *Server) handleGetFile(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		formatParams
		FilePath string `json:"file_path"`
	}
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	entries, err := s.engine.File(p.FilePath)
	if err != nil {
		return failure(err)
	}
	return respond("file_symbols", p.Format, struct {
		File    string                   `json:"file"`
		Symbols []types.SymbolIndexEntry `json:"symbols"`
	}{p.FilePath, entries}, note)
}

func (s *Server) handleGetCallers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		formatParams
		SymbolHash string `json:"symbol_hash"`
		Depth      int    `json:"depth,omitempty"`
		Limit      int    `json:"limit,omitempty"`
	}
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	resp, err := s.engine.Callers(p.SymbolHash, p.Depth, p.Limit)
	if err != nil {
		return failure(err)
	}
	return respond("callers", p.Format, resp, note)
}

func (s *Server) handleGetCallgraph(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		formatParams
		SymbolHash  string `json:"symbol_hash,omitempty"`
		Module      string `json:"module,omitempty"`
		SummaryOnly bool   `json:"summary_only,omitempty"`
		Limit       int    `json:"limit,omitempty"`
		Offset      int    `json:"offset,omitempty"`
	}
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	resp, err := s.engine.CallGraph(query.GraphOptions{
		SymbolHash:  p.SymbolHash,
		Module:      p.Module,
		SummaryOnly: p.SummaryOnly,
		Limit:       p.Limit,
		Offset:      p.Offset,
	})
	if err != nil {
		return failure(err)
	}
	return respond("callgraph", p.Format, resp, note)
}

func (s *Server) handleValidate(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		formatParams
		Module     string `json:"module,omitempty"`
		FilePath   string `json:"file_path,omitempty"`
		SymbolHash string `json:"symbol_hash,omitempty"`
		Limit      int    `json:"limit,omitempty"`
		Offset     int    `json:"offset,omitempty"`
	}
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	resp, err := s.engine.Validate(query.ValidateOptions{
		Module:     p.Module,
		FilePath:   p.FilePath,
		SymbolHash: p.SymbolHash,
		Limit:      p.Limit,
		Offset:     p.Offset,
	})
	if err != nil {
		return failure(err)
	}
	return respond("metrics", p.Format, resp, note)
}

func (s *Server) handleFindDuplicates(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		formatParams
		Threshold float64 `json:"threshold,omitempty"`
		MinLines  int     `json:"min_lines,omitempty"`
		Module    string  `json:"module,omitempty"`
		Limit     int     `json:"limit,omitempty"`
		Offset    int     `json:"offset,omitempty"`
		SortBy    string  `json:"sort_by,omitempty"`
	}
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	resp, err := s.engine.FindDuplicates(query.DuplicateOptions{
		Threshold: p.Threshold,
		MinLines:  p.MinLines,
		Module:    p.Module,
		Limit:     p.Limit,
		Offset:    p.Offset,
		SortBy:    p.SortBy,
	})
	if err != nil {
		return failure(err)
	}
	return respond("duplicates", p.Format, resp, note)
}

func (s *Server) handleAnalyze(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		formatParams
		Path       string `json:"path,omitempty"`
		Module     string `json:"module,omitempty"`
		StartLine  int    `json:"start_line,omitempty"`
		EndLine    int    `json:"end_line,omitempty"`
		OutputMode string `json:"output_mode,omitempty"`
	}
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	// The guard is short-circuited for paths outside the indexed
	// root; extraction there never reads the index.
	var note *fresh.Note
	if p.Module != "" || s.insideRoot(p.Path) {
		var err error
		note, err = s.admit(ctx)
		if err != nil {
			return failure(err)
		}
	}
	resp, err := s.engine.Analyze(query.AnalyzeOptions{
		Path:       p.Path,
		Module:     p.Module,
		StartLine:  p.StartLine,
		EndLine:    p.EndLine,
		OutputMode: p.OutputMode,
	})
	if err != nil {
		return failure(err)
	}
	return respond("analysis", p.Format, resp, note)
}

func (s *Server) insideRoot(path string) bool {
	if path == "" || !filepath.IsAbs(path) {
		return true
	}
	rel, err := filepath.Rel(s.engine.RepoRoot(), path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

func (s *Server) handleAnalyzeDiff(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		formatParams
		BaseRef     string `json:"base_ref"`
		TargetRef   string `json:"target_ref,omitempty"`
		Limit       int    `json:"limit,omitempty"`
		Offset      int    `json:"offset,omitempty"`
		SummaryOnly bool   `json:"summary_only,omitempty"`
	}
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	note, err := s.admit(ctx)
	if err != nil {
		return failure(err)
	}
	resp, err := s.engine.AnalyzeDiff(ctx, query.DiffOptions{
		BaseRef:     p.BaseRef,
		TargetRef:   p.TargetRef,
		Limit:       p.Limit,
		Offset:      p.Offset,
		SummaryOnly: p.SummaryOnly,
	})
	if err != nil {
		return failure(err)
	}
	return respond("diff", p.Format, resp, note)
}

func (s *Server) handleIndex(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var p struct {
		formatParams
		Operation string `json:"operation"`
		Force     bool   `json:"force,omitempty"`
	}
	if err := unmarshalArgs(req, &p); err != nil {
		return failure(err)
	}
	switch p.Operation {
	case "refresh", "":
		note, err := s.guard.Refresh(ctx, p.Force)
		if err != nil {
			return failure(err)
		}
		return respond("index_status", p.Format, note, nil)
	case "check":
		res, err := s.guard.Check(ctx)
		if err != nil {
			return failure(err)
		}
		return respond("index_status", p.Format, struct {
			Status       string   `json:"status"`
			IndexedSHA   string   `json:"indexed_sha,omitempty"`
			CurrentSHA   string   `json:"current_sha,omitempty"`
			ChangedFiles []string `json:"changed_files,omitempty"`
			DriftRatio   float64  `json:"drift_ratio,omitempty"`
		}{string(res.Status), res.IndexedSHA, res.CurrentSHA, res.ChangedFiles, res.DriftRatio}, nil)
	case "clear":
		if err := s.guard.Clear(); err != nil {
			return failure(err)
		}
		return respond("index_status", p.Format, struct {
			Status string `json:"status"`
		}{"cleared"}, nil)
	default:
		return failure(fmt.Errorf("protocol: unknown index operation %q", p.Operation))
	}
}
