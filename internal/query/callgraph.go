package query

import (
	"sort"

	"github.com/standardbeagle/semidx/internal/errs"
	"github.com/standardbeagle/semidx/internal/identity"
	"github.com/standardbeagle/semidx/internal/types"
)

// MaxCallerDepth caps get_callers traversal.
const MaxCallerDepth = 5

// Caller is one get_callers hit: a calling symbol plus its distance
// from the queried symbol.
type Caller struct {
	Name   string           `json:"name"`
	Hash   types.SymbolID   `json:"hash"`
	Kind   types.SymbolKind `json:"kind,omitempty"`
	Module string           `json:"module"`
	File   string           `json:"file"`
	Line   int              `json:"line"`
	Depth  int              `json:"depth"`
}

// CallersResponse is the get_callers payload.
type CallersResponse struct {
	Target  types.SymbolID `json:"target"`
	Callers []Caller       `json:"callers"`
	Total   int            `json:"total"`
}

// Callers implements get_callers: breadth-first traversal over the
// call graph in reverse, level-stable, up to depth (≤ 5), capped at
// limit (default 20).
func (e *Engine) Callers(hash string, depth, limit int) (*CallersResponse, error) {
	defer e.rlock()()

	target, err := identity.ParseSymbolID(hash)
	if err != nil {
		return nil, errs.SymbolNotFound(hash)
	}
	if depth <= 0 {
		depth = 1
	}
	if depth > MaxCallerDepth {
		depth = MaxCallerDepth
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	byID, _, err := e.indexByID()
	if err != nil {
		return nil, err
	}
	if _, ok := byID[target]; !ok {
		if _, found, err := e.reader.SymbolShard(target); err != nil {
			return nil, err
		} else if !found {
			return nil, errs.SymbolNotFound(hash)
		}
	}

	edges, err := e.reader.CallGraph()
	if err != nil {
		return nil, err
	}
	// Reverse adjacency: callee -> callers, in edge insertion order so
	// BFS emission is deterministic.
	reverse := make(map[types.SymbolID][]types.SymbolID)
	for _, edge := range edges {
		if edge.To.IsZero() {
			continue
		}
		reverse[edge.To] = append(reverse[edge.To], edge.From)
	}

	resp := &CallersResponse{Target: target}
	visited := map[types.SymbolID]bool{target: true}
	frontier := []types.SymbolID{target}
	for level := 1; level <= depth && len(frontier) > 0; level++ {
		var next []types.SymbolID
		for _, id := range frontier {
			for _, from := range reverse[id] {
				if visited[from] {
					continue
				}
				visited[from] = true
				next = append(next, from)
				resp.Total++
				if len(resp.Callers) < limit {
					entry := byID[from]
					resp.Callers = append(resp.Callers, Caller{
						Name: entry.Name, Hash: from, Kind: entry.Kind, Module: entry.Module,
						File: entry.File, Line: entry.StartLine, Depth: level,
					})
				}
			}
		}
		frontier = next
	}
	return resp, nil
}

// GraphEdge is one rendered call-graph edge.
type GraphEdge struct {
	From         types.SymbolID `json:"from"`
	FromName     string         `json:"from_name,omitempty"`
	To           types.SymbolID `json:"to,omitempty"`
	ToName       string         `json:"to_name,omitempty"`
	ExternalName string         `json:"external_name,omitempty"`
	Kind         string         `json:"kind"`
}

// GraphSummary is the summary_only payload of get_callgraph.
type GraphSummary struct {
	EdgeCount     int      `json:"edge_count"`
	SymbolCount   int      `json:"symbol_count"`
	ExternalCount int      `json:"external_count"`
	AvgFanOut     float64  `json:"avg_fan_out"`
	MaxFanOut     int      `json:"max_fan_out"`
	TopCallers    []string `json:"top_callers,omitempty"`
	TopCallees    []string `json:"top_callees,omitempty"`
	OrphanCount   int      `json:"orphan_count"`
	CycleCount    int      `json:"cycle_count"`
}

// GraphResponse is the get_callgraph payload: either a summary or a
// paginated edge list.
type GraphResponse struct {
	Summary    *GraphSummary `json:"summary,omitempty"`
	Edges      []GraphEdge   `json:"edges,omitempty"`
	Total      int           `json:"total,omitempty"`
	NextOffset int           `json:"next_offset,omitempty"`
}

// GraphOptions selects the get_callgraph scope.
type GraphOptions struct {
	SymbolHash  string
	Module      string
	SummaryOnly bool
	Limit       int
	Offset      int
}

// CallGraph implements get_callgraph.
func (e *Engine) CallGraph(opts GraphOptions) (*GraphResponse, error) {
	defer e.rlock()()

	byID, _, err := e.indexByID()
	if err != nil {
		return nil, err
	}
	edges, err := e.reader.CallGraph()
	if err != nil {
		return nil, err
	}

	if opts.SymbolHash != "" {
		id, err := identity.ParseSymbolID(opts.SymbolHash)
		if err != nil {
			return nil, errs.SymbolNotFound(opts.SymbolHash)
		}
		edges = filterEdges(edges, func(edge types.CallGraphEdge) bool {
			return edge.From == id || edge.To == id
		})
	}
	if opts.Module != "" {
		full, err := e.moduleFullPath(opts.Module)
		if err != nil {
			return nil, err
		}
		edges = filterEdges(edges, func(edge types.CallGraphEdge) bool {
			return byID[edge.From].Module == full
		})
	}

	if opts.SummaryOnly {
		return &GraphResponse{Summary: summarize(edges, byID)}, nil
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	resp := &GraphResponse{Total: len(edges)}
	end := opts.Offset + opts.Limit
	if opts.Offset < len(edges) {
		if end < len(edges) {
			resp.NextOffset = end
		} else {
			end = len(edges)
		}
		for _, edge := range edges[opts.Offset:end] {
			ge := GraphEdge{From: edge.From, FromName: byID[edge.From].Name, Kind: edge.Kind}
			if edge.To.IsZero() {
				ge.ExternalName = edge.ExternalName
			} else {
				ge.To = edge.To
				ge.ToName = byID[edge.To].Name
			}
			resp.Edges = append(resp.Edges, ge)
		}
	}
	return resp, nil
}

func filterEdges(edges []types.CallGraphEdge, keep func(types.CallGraphEdge) bool) []types.CallGraphEdge {
	out := edges[:0:0]
	for _, edge := range edges {
		if keep(edge) {
			out = append(out, edge)
		}
	}
	return out
}

func summarize(edges []types.CallGraphEdge, byID map[types.SymbolID]types.SymbolIndexEntry) *GraphSummary {
	s := &GraphSummary{EdgeCount: len(edges), SymbolCount: len(byID)}

	fanOut := make(map[types.SymbolID]int)
	fanIn := make(map[types.SymbolID]int)
	touched := make(map[types.SymbolID]bool)
	adj := make(map[types.SymbolID][]types.SymbolID)
	for _, edge := range edges {
		fanOut[edge.From]++
		touched[edge.From] = true
		if edge.To.IsZero() {
			s.ExternalCount++
			continue
		}
		fanIn[edge.To]++
		touched[edge.To] = true
		adj[edge.From] = append(adj[edge.From], edge.To)
	}

	if len(fanOut) > 0 {
		total := 0
		for _, n := range fanOut {
			total += n
			if n > s.MaxFanOut {
				s.MaxFanOut = n
			}
		}
		s.AvgFanOut = float64(total) / float64(len(fanOut))
	}
	for id := range byID {
		if !touched[id] {
			s.OrphanCount++
		}
	}
	s.TopCallers = topNames(fanOut, byID, 5)
	s.TopCallees = topNames(fanIn, byID, 5)
	s.CycleCount = countCycles(adj)
	return s
}

func topNames(degree map[types.SymbolID]int, byID map[types.SymbolID]types.SymbolIndexEntry, n int) []string {
	type pair struct {
		name  string
		count int
	}
	pairs := make([]pair, 0, len(degree))
	for id, count := range degree {
		name := byID[id].Name
		if name == "" {
			name = id.String()
		}
		pairs = append(pairs, pair{name: name, count: count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].name < pairs[j].name
	})
	if len(pairs) > n {
		pairs = pairs[:n]
	}
	names := make([]string, len(pairs))
	for i, p := range pairs {
		names[i] = p.name
	}
	return names
}

// countCycles counts strongly connected components with more than one
// node (plus self-loops) using an iterative Tarjan walk; the graph can
// be cyclic, and traversal state lives in side arrays rather than the
// records themselves.
func countCycles(adj map[types.SymbolID][]types.SymbolID) int {
	index := make(map[types.SymbolID]int)
	low := make(map[types.SymbolID]int)
	onStack := make(map[types.SymbolID]bool)
	var stack []types.SymbolID
	counter := 0
	cycles := 0

	nodes := make([]types.SymbolID, 0, len(adj))
	for n := range adj {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].String() < nodes[j].String() })

	type frame struct {
		node types.SymbolID
		next int
	}
	for _, root := range nodes {
		if _, seen := index[root]; seen {
			continue
		}
		work := []frame{{node: root}}
		for len(work) > 0 {
			f := &work[len(work)-1]
			if f.next == 0 {
				index[f.node] = counter
				low[f.node] = counter
				counter++
				stack = append(stack, f.node)
				onStack[f.node] = true
			}
			advanced := false
			for f.next < len(adj[f.node]) {
				child := adj[f.node][f.next]
				f.next++
				if _, seen := index[child]; !seen {
					work = append(work, frame{node: child})
					advanced = true
					break
				}
				if onStack[child] && index[child] < low[f.node] {
					low[f.node] = index[child]
				}
			}
			if advanced {
				continue
			}
			// Node finished: pop an SCC if this is its root.
			if low[f.node] == index[f.node] {
				size := 0
				selfLoop := false
				for {
					top := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[top] = false
					size++
					if top == f.node {
						break
					}
				}
				for _, child := range adj[f.node] {
					if child == f.node {
						selfLoop = true
					}
				}
				if size > 1 || selfLoop {
					cycles++
				}
			}
			done := f.node
			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := &work[len(work)-1]
				if low[done] < low[parent.node] {
					low[parent.node] = low[done]
				}
			}
		}
	}
	return cycles
}
