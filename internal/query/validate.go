package query

import (
	"path/filepath"
	"sort"

	"github.com/standardbeagle/semidx/internal/errs"
	"github.com/standardbeagle/semidx/internal/identity"
	"github.com/standardbeagle/semidx/internal/types"
)

// ValidateOptions selects the validate operation's scope: exactly one
// of Module, FilePath, or SymbolHash.
type ValidateOptions struct {
	Module     string
	FilePath   string
	SymbolHash string
	Limit      int
	Offset     int
}

// ValidateResponse is the validate payload: per-symbol complexity
// metrics plus the risk classification.
type ValidateResponse struct {
	Metrics    []types.ComplexityMetrics `json:"metrics"`
	Total      int                       `json:"total"`
	NextOffset int                       `json:"next_offset,omitempty"`
}

// Validate implements the validate operation.
func (e *Engine) Validate(opts ValidateOptions) (*ValidateResponse, error) {
	defer e.rlock()()

	_, entries, err := e.indexByID()
	if err != nil {
		return nil, err
	}

	var selected []types.SymbolIndexEntry
	switch {
	case opts.SymbolHash != "":
		id, err := identity.ParseSymbolID(opts.SymbolHash)
		if err != nil {
			return nil, errs.SymbolNotFound(opts.SymbolHash)
		}
		for _, entry := range entries {
			if entry.Hash == id {
				selected = append(selected, entry)
			}
		}
		if len(selected) == 0 {
			return nil, errs.SymbolNotFound(opts.SymbolHash)
		}
	case opts.FilePath != "":
		rel := filepath.ToSlash(opts.FilePath)
		for _, entry := range entries {
			if entry.File == rel {
				selected = append(selected, entry)
			}
		}
		if len(selected) == 0 {
			return nil, errs.FileNotFound(opts.FilePath, nil)
		}
	case opts.Module != "":
		full, err := e.moduleFullPath(opts.Module)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.Module == full {
				selected = append(selected, entry)
			}
		}
	default:
		selected = entries
	}

	metrics := make([]types.ComplexityMetrics, 0, len(selected))
	for _, entry := range selected {
		summary, ok := e.stack.Resolve(entry.Hash)
		if !ok {
			continue
		}
		metrics = append(metrics, metricsOf(entry, summary))
	}
	sort.Slice(metrics, func(i, j int) bool {
		if metrics[i].Cognitive != metrics[j].Cognitive {
			return metrics[i].Cognitive > metrics[j].Cognitive
		}
		return metrics[i].Name < metrics[j].Name
	})

	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	resp := &ValidateResponse{Total: len(metrics)}
	end := opts.Offset + opts.Limit
	if opts.Offset < len(metrics) {
		if end < len(metrics) {
			resp.NextOffset = end
		} else {
			end = len(metrics)
		}
		resp.Metrics = metrics[opts.Offset:end]
	}
	return resp, nil
}

// metricsOf derives complexity metrics from a summary: cyclomatic is
// 1 + branch points; cognitive adds a nesting surcharge the way the
// standard cognitive-complexity definition weights deeper structures.
func metricsOf(entry types.SymbolIndexEntry, s *types.SemanticSummary) types.ComplexityMetrics {
	branches := 0
	for kind, n := range s.ControlFlow {
		if kind == types.CFAwait {
			continue
		}
		branches += n
	}
	cognitive := branches
	if s.NestingDepth > 1 {
		cognitive += (s.NestingDepth - 1) * 2
	}
	return types.ComplexityMetrics{
		Symbol:       entry.Hash,
		Name:         entry.Name,
		Cognitive:    cognitive,
		Cyclomatic:   branches + 1,
		NestingDepth: s.NestingDepth,
		ParamCount:   len(s.Params),
		LOC:          s.LineCount(),
		Risk:         s.Risk,
	}
}
