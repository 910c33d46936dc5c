// Package extract implements the Extractor: a single
// generic AST walker, polymorphic over a langregistry.Grammar
// descriptor.
package extract

import (
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/semidx/internal/identity"
	"github.com/standardbeagle/semidx/internal/langregistry"
	"github.com/standardbeagle/semidx/internal/risk"
	"github.com/standardbeagle/semidx/internal/types"
)

const rawFallbackMaxLen = 400

// Extractor walks one parsed file and produces its SemanticSummary
// records. It is stateless across files; a new walk is created per
// file.
type Extractor struct {
	path       string
	modulePath string
	source     []byte
	grammar    *langregistry.Grammar
	lines      []string
}

// New creates an Extractor for one file.
func New(path, modulePath string, source []byte, grammar *langregistry.Grammar) *Extractor {
	return &Extractor{
		path:       path,
		modulePath: modulePath,
		source:     source,
		grammar:    grammar,
		lines:      strings.Split(string(source), "\n"),
	}
}

// candidate is one extractable symbol found during the walk, before
// ranking and identity assignment.
type candidate struct {
	node       *tree_sitter.Node
	name       string
	kind       types.SymbolKind
	exported   bool
	declOrder  int
	params     []types.Param
	props      []types.Param
	returnType string
}

// Extract walks tree (nil for raw-only languages) and returns one or
// more SemanticSummary records; each record carries the import, call
// and state data the caller uses to build call-graph and import-graph
// edges.
func (e *Extractor) Extract(tree *tree_sitter.Tree) ([]*types.SemanticSummary, error) {
	if tree == nil || e.grammar.TSLanguage == nil {
		return []*types.SemanticSummary{e.rawSummary()}, nil
	}
	root := tree.RootNode()

	w := &walk{e: e, handled: make(map[uintptr]bool)}
	w.collectImports(root)
	w.collectCandidates(root)

	if len(w.candidates) == 0 {
		return []*types.SemanticSummary{e.rawSummary()}, nil
	}

	primary := selectPrimary(w.candidates, e.path)
	summaries := make([]*types.SemanticSummary, 0, len(w.candidates))
	for _, c := range w.candidates {
		s := e.summaryFor(c, w, c.node == primary.node)
		summaries = append(summaries, s)
	}
	return summaries, nil
}

func (e *Extractor) rawSummary() *types.SemanticSummary {
	text := string(e.source)
	if len(text) > rawFallbackMaxLen {
		text = text[:rawFallbackMaxLen]
	}
	s := &types.SemanticSummary{
		FilePath:           e.path,
		Language:           e.grammar.Language,
		StartLine:          1,
		EndLine:            len(e.lines),
		RawFallback:        text,
		ExtractionComplete: len(strings.TrimSpace(string(e.source))) == 0,
	}
	risk.Annotate(s)
	return s
}

// walk carries traversal-scoped state: the collected candidates, the
// file-scope imports and the declaration-order counter. The handled map
// is allocated but not consulted by the traversal.
type walk struct {
	e          *Extractor
	candidates []*candidate
	imports    []fileImport
	handled    map[uintptr]bool

	declOrder int
}

// fileImport is a file-scope import edge, classified local vs external.
type fileImport struct {
	Path    string
	IsLocal bool
}

func (w *walk) collectImports(root *tree_sitter.Node) {
	var visit func(n *tree_sitter.Node)
	visit = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		if w.e.grammar.ImportLike[n.Kind()] {
			w.imports = append(w.imports, w.extractImport(n))
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
}

func (w *walk) extractImport(n *tree_sitter.Node) fileImport {
	text := nodeText(n, w.e.source)
	path := extractImportPath(text)
	return fileImport{Path: path, IsLocal: isLocalImportPath(path)}
}

func (w *walk) collectCandidates(root *tree_sitter.Node) {
	var visit func(n *tree_sitter.Node)
	visit = func(n *tree_sitter.Node) {
		if n == nil {
			return
		}
		kind := n.Kind()
		g := w.e.grammar
		switch {
		case g.ClassLike[kind] || g.InterfaceLike[kind] || g.EnumLike[kind]:
			w.addCandidate(n, classifyContainerKind(g, kind))
		case g.FunctionLike[kind]:
			w.addCandidate(n, classifyFunctionKind(n, g))
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			visit(n.Child(i))
		}
	}
	visit(root)
}

func classifyContainerKind(g *langregistry.Grammar, kind string) types.SymbolKind {
	switch {
	case g.InterfaceLike[kind]:
		return types.KindInterface
	case g.EnumLike[kind]:
		return types.KindEnum
	default:
		if g.Language == "rust" && kind == "impl_item" {
			return types.KindStruct
		}
		return types.KindStruct
	}
}

func classifyFunctionKind(n *tree_sitter.Node, g *langregistry.Grammar) types.SymbolKind {
	// Heuristic: a function-like node nested directly inside a
	// class-like node, or inside that node's body, is a method.
	if p := n.Parent(); p != nil {
		if g.ClassLike[p.Kind()] {
			return types.KindMethod
		}
		if gp := p.Parent(); gp != nil && g.ClassLike[gp.Kind()] {
			return types.KindMethod
		}
	}
	return types.KindFunction
}

func (w *walk) addCandidate(n *tree_sitter.Node, kind types.SymbolKind) {
	name := symbolName(n, w.e.grammar, w.e.source)
	if name == "" && kind != types.KindFunction {
		return
	}
	c := &candidate{
		node:      n,
		name:      name,
		kind:      kind,
		exported:  isExported(n, name, w.e.grammar, w.e.source),
		declOrder: w.declOrder,
	}
	w.declOrder++
	c.params, c.props = extractParams(n, w.e.grammar, w.e.source)
	c.returnType = extractReturnType(n, w.e.grammar, w.e.source)
	w.candidates = append(w.candidates, c)
}

func nodeText(n *tree_sitter.Node, source []byte) string {
	if n == nil {
		return ""
	}
	start, end := n.StartByte(), n.EndByte()
	if end > uint(len(source)) {
		end = uint(len(source))
	}
	if start > end {
		return ""
	}
	return string(source[start:end])
}

func symbolName(n *tree_sitter.Node, g *langregistry.Grammar, source []byte) string {
	if g.Fields.Name != "" {
		if nameNode := n.ChildByFieldName(g.Fields.Name); nameNode != nil {
			return declaratorName(nodeText(nameNode, source))
		}
	}
	// Fallback: first identifier-ish child.
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if strings.Contains(child.Kind(), "identifier") {
			return nodeText(child, source)
		}
	}
	return ""
}

// declaratorName strips parameter lists and pointer/reference markers
// off a C/C++-style declarator so a "name" field that actually points
// at a full function_declarator node (e.g. "*foo(int x)") still yields
// the bare symbol name.
func declaratorName(text string) string {
	if i := strings.IndexByte(text, '('); i >= 0 {
		text = text[:i]
	}
	return strings.TrimLeft(strings.TrimSpace(text), "*&")
}

func isExported(n *tree_sitter.Node, name string, g *langregistry.Grammar, source []byte) bool {
	if g.IsExported == nil {
		return false
	}
	if g.UppercaseIsExport {
		return g.IsExported(n.Kind(), name, source)
	}
	// For keyword/decorator-based exports, check the node itself, its
	// parent and its direct children for the marking node kind.
	if g.IsExported(n.Kind(), name, source) {
		return true
	}
	parent := n.Parent()
	if parent != nil && g.IsExported(parent.Kind(), name, source) {
		return true
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child != nil && g.IsExported(child.Kind(), name, source) {
			return true
		}
	}
	return false
}

func extractParams(n *tree_sitter.Node, g *langregistry.Grammar, source []byte) (params, props []types.Param) {
	if g.Fields.Params == "" {
		return nil, nil
	}
	paramsNode := n.ChildByFieldName(g.Fields.Params)
	if paramsNode == nil {
		return nil, nil
	}
	for i := uint(0); i < paramsNode.ChildCount(); i++ {
		child := paramsNode.Child(i)
		if child == nil || !child.IsNamed() {
			continue
		}
		p := types.Param{}
		if nameNode := child.ChildByFieldName("name"); nameNode != nil {
			p.Name = nodeText(nameNode, source)
		} else {
			p.Name = nodeText(child, source)
		}
		if typeNode := child.ChildByFieldName("type"); typeNode != nil {
			p.Type = nodeText(typeNode, source)
		}
		if p.Name == "" {
			continue
		}
		params = append(params, p)
	}
	return params, nil
}

func extractReturnType(n *tree_sitter.Node, g *langregistry.Grammar, source []byte) string {
	if retNode := n.ChildByFieldName("return_type"); retNode != nil {
		return nodeText(retNode, source)
	}
	if g.Fields.Type != "" {
		if typeNode := n.ChildByFieldName(g.Fields.Type); typeNode != nil {
			return nodeText(typeNode, source)
		}
	}
	return ""
}

// selectPrimary ranks candidates: exported over private, kind
// priority, filename-stem match, then declaration order.
func selectPrimary(cands []*candidate, path string) *candidate {
	stem := filenameStem(path)
	best := cands[0]
	for _, c := range cands[1:] {
		if primaryLess(best, c, stem) {
			best = c
		}
	}
	return best
}

// primaryLess reports whether candidate b ranks ahead of a.
func primaryLess(a, b *candidate, stem string) bool {
	if a.exported != b.exported {
		return b.exported
	}
	pa, pb := kindPriority(a.kind), kindPriority(b.kind)
	if pa != pb {
		return pb > pa
	}
	sa := strings.EqualFold(a.name, stem)
	sb := strings.EqualFold(b.name, stem)
	if sa != sb {
		return sb
	}
	return b.declOrder < a.declOrder
}

func kindPriority(k types.SymbolKind) int {
	switch k {
	case types.KindStruct, types.KindClass, types.KindTrait:
		return 2
	case types.KindFunction, types.KindComponent:
		return 1
	default:
		return 0
	}
}

func filenameStem(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return base
}

func (e *Extractor) summaryFor(c *candidate, w *walk, isPrimary bool) *types.SemanticSummary {
	s := &types.SemanticSummary{
		FilePath:           e.path,
		Language:           e.grammar.Language,
		Name:               c.name,
		Kind:               c.kind,
		Exported:           c.exported,
		StartLine:          int(c.node.StartPosition().Row) + 1,
		EndLine:            int(c.node.EndPosition().Row) + 1,
		Params:             c.params,
		Properties:         c.props,
		ReturnType:         c.returnType,
		ExtractionComplete: true,
		ControlFlow:        make(map[types.ControlFlowKind]int),
	}

	for _, imp := range w.imports {
		if imp.IsLocal {
			s.LocalImports = append(s.LocalImports, imp.Path)
		} else {
			s.AddedDependencies = append(s.AddedDependencies, imp.Path)
		}
	}

	body := c.node
	walkBody(body, e.grammar, e.source, s)

	s.ID = identity.SymbolIDFor(e.modulePath, s.Name, s.Kind, len(s.Params))

	applyInsertionRules(s)
	applyFrameworkEnhancements(e.grammar.Language, e.source, s)
	computeFingerprints(s)
	risk.Annotate(s)
	_ = isPrimary
	return s
}
