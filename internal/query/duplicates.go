package query

import (
	"fmt"
	"math/bits"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/semidx/internal/types"
)

// DuplicateOptions carries find_duplicates parameters.
type DuplicateOptions struct {
	Threshold float64 // similarity floor, default 0.85
	MinLines  int     // smallest symbol considered, default 5
	Module    string
	Limit     int
	Offset    int
	SortBy    string // "similarity" (default), "size", "count"
}

// DuplicatesResponse is the find_duplicates payload.
type DuplicatesResponse struct {
	Clusters   []types.DuplicateCluster `json:"clusters"`
	Total      int                      `json:"total"`
	NextOffset int                      `json:"next_offset,omitempty"`
}

// FindDuplicates groups symbols by fingerprint similarity: Hamming
// distance over the three 64-bit fingerprints as the coarse filter,
// Jaccard over token sets as the fine confirmation. The
// fingerprints ride on the symbol index rows, so the coarse pass never
// loads a shard.
func (e *Engine) FindDuplicates(opts DuplicateOptions) (*DuplicatesResponse, error) {
	defer e.rlock()()

	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = 0.85
	}
	if opts.MinLines <= 0 {
		opts.MinLines = 5
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	moduleFull := ""
	if opts.Module != "" {
		full, err := e.moduleFullPath(opts.Module)
		if err != nil {
			return nil, err
		}
		moduleFull = full
	}

	_, entries, err := e.indexByID()
	if err != nil {
		return nil, err
	}
	var candidates []types.SymbolIndexEntry
	for _, entry := range entries {
		if entry.EndLine-entry.StartLine+1 < opts.MinLines {
			continue
		}
		if moduleFull != "" && entry.Module != moduleFull {
			continue
		}
		candidates = append(candidates, entry)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Hash.String() < candidates[j].Hash.String() })

	// Union-find over confirmed pairs.
	parent := make([]int, len(candidates))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	pairSim := make(map[[2]int]float64)
	tokenCache := make(map[int]string)
	tokensFor := func(i int) string {
		if cached, ok := tokenCache[i]; ok {
			return cached
		}
		joined := ""
		if summary, ok := e.stack.Resolve(candidates[i].Hash); ok {
			joined = strings.Join(summaryTokens(summary), " ")
		}
		tokenCache[i] = joined
		return joined
	}

	coarseFloor := opts.Threshold - 0.1
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			coarse := fingerprintSimilarity(candidates[i], candidates[j])
			if coarse < coarseFloor {
				continue
			}
			ta, tb := tokensFor(i), tokensFor(j)
			fine := coarse
			if ta != "" && tb != "" {
				if sim, err := edlib.StringsSimilarity(ta, tb, edlib.Jaccard); err == nil {
					fine = (coarse + float64(sim)) / 2
				}
			}
			if fine < opts.Threshold {
				continue
			}
			union(i, j)
			pairSim[[2]int{i, j}] = fine
		}
	}

	groups := make(map[int][]int)
	for i := range candidates {
		root := find(i)
		groups[root] = append(groups[root], i)
	}

	var clusters []types.DuplicateCluster
	for root, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Ints(members)
		cluster := types.DuplicateCluster{
			Fingerprint: fmt.Sprintf("%016x", candidates[root].CallFP),
			Similarity:  clusterSimilarity(pairSim, members),
		}
		for _, m := range members {
			cluster.Members = append(cluster.Members, candidates[m].Hash)
			cluster.LineCount += candidates[m].EndLine - candidates[m].StartLine + 1
		}
		clusters = append(clusters, cluster)
	}

	switch opts.SortBy {
	case "size":
		sort.Slice(clusters, func(i, j int) bool {
			if clusters[i].LineCount != clusters[j].LineCount {
				return clusters[i].LineCount > clusters[j].LineCount
			}
			return clusters[i].Fingerprint < clusters[j].Fingerprint
		})
	case "count":
		sort.Slice(clusters, func(i, j int) bool {
			if len(clusters[i].Members) != len(clusters[j].Members) {
				return len(clusters[i].Members) > len(clusters[j].Members)
			}
			return clusters[i].Fingerprint < clusters[j].Fingerprint
		})
	default:
		sort.Slice(clusters, func(i, j int) bool {
			if clusters[i].Similarity != clusters[j].Similarity {
				return clusters[i].Similarity > clusters[j].Similarity
			}
			return clusters[i].Fingerprint < clusters[j].Fingerprint
		})
	}

	resp := &DuplicatesResponse{Total: len(clusters)}
	end := opts.Offset + opts.Limit
	if opts.Offset < len(clusters) {
		if end < len(clusters) {
			resp.NextOffset = end
		} else {
			end = len(clusters)
		}
		resp.Clusters = clusters[opts.Offset:end]
	}
	return resp, nil
}

// fingerprintSimilarity is the coarse filter: 1 minus the normalized
// total Hamming distance across the three 64-bit fingerprints. An
// identical fingerprint triple scores 1.0.
func fingerprintSimilarity(a, b types.SymbolIndexEntry) float64 {
	ham := bits.OnesCount64(a.CallFP^b.CallFP) +
		bits.OnesCount64(a.FlowFP^b.FlowFP) +
		bits.OnesCount64(a.StateFP^b.StateFP)
	return 1 - float64(ham)/192
}

func clusterSimilarity(pairSim map[[2]int]float64, members []int) float64 {
	inCluster := make(map[int]bool, len(members))
	for _, m := range members {
		inCluster[m] = true
	}
	total, n := 0.0, 0
	for pair, sim := range pairSim {
		if inCluster[pair[0]] && inCluster[pair[1]] {
			total += sim
			n++
		}
	}
	if n == 0 {
		return 1.0
	}
	return total / float64(n)
}

// summaryTokens re-derives the Jaccard token set from a persisted
// summary: call names plus control-flow kinds plus state-op kinds.
func summaryTokens(s *types.SemanticSummary) []string {
	tokens := make([]string, 0, len(s.Calls)+len(s.ControlFlow)+len(s.StateChanges))
	for _, c := range s.Calls {
		tokens = append(tokens, strings.TrimPrefix(c.Name, "ext:"))
	}
	kinds := make([]string, 0, len(s.ControlFlow))
	for k := range s.ControlFlow {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	tokens = append(tokens, kinds...)
	for _, sc := range s.StateChanges {
		tokens = append(tokens, sc.InitKind)
	}
	return tokens
}
