package extract

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/semidx/internal/langregistry"
	"github.com/standardbeagle/semidx/internal/types"
)

// stateHookNames are the React-style state-producing call names that
// promote a local declaration to a StateChange.
var stateHookNames = map[string]bool{
	"useState": true, "useReducer": true, "useRef": true, "useMemo": true, "useCallback": true,
}

// walkBody traverses one symbol's body, recording calls, control-flow
// tallies and state changes directly onto s.
func walkBody(body *tree_sitter.Node, g *langregistry.Grammar, source []byte, s *types.SemanticSummary) {
	var insideTry bool
	depth := 0

	var visit func(n *tree_sitter.Node, awaited bool)
	visit = func(n *tree_sitter.Node, awaited bool) {
		if n == nil {
			return
		}
		kind := n.Kind()

		if cfKind, ok := g.ControlFlow[kind]; ok {
			s.ControlFlow[types.ControlFlowKind(cfKind)]++
			depth++
			if depth > s.NestingDepth {
				s.NestingDepth = depth
			}
			if types.ControlFlowKind(cfKind) == types.CFTry {
				prevInsideTry := insideTry
				insideTry = true
				for i := uint(0); i < n.ChildCount(); i++ {
					visit(n.Child(i), false)
				}
				insideTry = prevInsideTry
				depth--
				return
			}
			defer func() { depth-- }()
		}

		childAwaited := false
		if g.AwaitLike[kind] {
			childAwaited = true
		}

		if g.CallLike[kind] {
			recordCall(n, g, source, s, awaited || childAwaited, insideTry)
		}

		if g.AssignLike[kind] || g.VarDeclLike[kind] {
			recordStateChange(n, g, source, s)
		}

		for i := uint(0); i < n.ChildCount(); i++ {
			visit(n.Child(i), childAwaited)
		}
	}
	visit(body, false)
}

func recordCall(n *tree_sitter.Node, g *langregistry.Grammar, source []byte, s *types.SemanticSummary, awaited, insideTry bool) {
	funcNode := n.ChildByFieldName("function")
	if funcNode == nil {
		funcNode = n.Child(0)
	}
	if funcNode == nil {
		return
	}
	name, object := splitCallTarget(nodeText(funcNode, source))
	if name == "" {
		return
	}
	call := types.Call{
		Name:      name,
		Object:    object,
		Awaited:   awaited,
		InsideTry: insideTry,
		Hook:      stateHookNames[name],
	}
	if !isLocalName(name, object) {
		call.Name = "ext:" + name
	}
	s.Calls = append(s.Calls, call)
}

func splitCallTarget(text string) (name, object string) {
	text = strings.TrimSpace(text)
	if i := strings.LastIndexAny(text, ".:"); i >= 0 {
		return text[i+1:], text[:i]
	}
	return text, ""
}

// isLocalName is a conservative heuristic: calls through an object
// receiver read as external unless the receiver is a known local
// marker (self/this). A namespaced path (contains "::") counts as an
// object receiver, so such calls are tagged external as well and the
// call-graph linking stage leaves them unresolved.
func isLocalName(name, object string) bool {
	if object == "" {
		return true
	}
	switch object {
	case "self", "this", "Self":
		return true
	}
	return false
}

func recordStateChange(n *tree_sitter.Node, g *langregistry.Grammar, source []byte, s *types.SemanticSummary) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		nameNode = n.ChildByFieldName(g.Fields.Name)
	}
	valueNode := n.ChildByFieldName(g.Fields.Value)
	if nameNode == nil || valueNode == nil {
		return
	}
	name := nodeText(nameNode, source)
	initText := nodeText(valueNode, source)
	initKind := "var"
	callName, _ := splitCallTarget(initText[:minInt(len(initText), indexOfParen(initText))])
	if stateHookNames[callName] {
		initKind = callName
	} else if !strings.Contains(initText, "(") {
		return
	}
	s.StateChanges = append(s.StateChanges, types.StateChange{
		Name:        name,
		InitKind:    initKind,
		Initializer: truncate(initText, 120),
	})
}

func indexOfParen(s string) int {
	if i := strings.IndexByte(s, '('); i >= 0 {
		return i
	}
	return len(s)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
