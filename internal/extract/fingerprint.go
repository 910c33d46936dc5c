package extract

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/semidx/internal/types"
)

// computeFingerprints derives the three fingerprints used by duplicate
// detection: a call-sequence hash, a control-flow shape hash, and a
// state-operation hash, plus the token set used for the Jaccard
// confirmation pass. All of them are computed from already-normalized
// fields on s and none includes the symbol's own name, so two
// structurally identical symbols under different names collide on the
// fingerprints and have the same token set.
func computeFingerprints(s *types.SemanticSummary) {
	callNames := make([]string, 0, len(s.Calls))
	for _, c := range s.Calls {
		callNames = append(callNames, strings.TrimPrefix(c.Name, "ext:"))
	}
	s.CallFingerprint = xxhash.Sum64String(strings.Join(callNames, "|"))

	flowKinds := make([]string, 0, len(s.ControlFlow))
	for k := range s.ControlFlow {
		flowKinds = append(flowKinds, string(k))
	}
	sort.Strings(flowKinds)
	var flowShape strings.Builder
	for _, k := range flowKinds {
		flowShape.WriteString(k)
		flowShape.WriteByte(':')
		flowShape.WriteString(strconv.Itoa(s.ControlFlow[types.ControlFlowKind(k)]))
		flowShape.WriteByte('|')
	}
	s.FlowFingerprint = xxhash.Sum64String(flowShape.String())

	stateOps := make([]string, 0, len(s.StateChanges))
	for _, sc := range s.StateChanges {
		stateOps = append(stateOps, sc.InitKind)
	}
	s.StateFingerprint = xxhash.Sum64String(strings.Join(stateOps, "|"))

	tokens := make([]string, 0, len(callNames)+len(flowKinds))
	tokens = append(tokens, callNames...)
	tokens = append(tokens, flowKinds...)
	s.Tokens = tokens
}
