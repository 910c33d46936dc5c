// Package langregistry maps a file extension to a tree-sitter parser
// plus a Grammar descriptor table that the generic Extractor walker
// (internal/extract) is polymorphic over: one walker, N descriptors,
// instead of a virtual-dispatch hierarchy per language.
package langregistry

import (
	tree_sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeKindSet is a set of tree-sitter node-type strings belonging to one
// grammar-level concept (e.g. every node type that is "function-like"
// in this language).
type NodeKindSet map[string]bool

func kindSet(kinds ...string) NodeKindSet {
	s := make(NodeKindSet, len(kinds))
	for _, k := range kinds {
		s[k] = true
	}
	return s
}

// FieldNames holds the tree-sitter field names used to pull structured
// data (name, value, type, body, params, condition) off a node, since
// these field names vary per grammar.
type FieldNames struct {
	Name      string
	Value     string
	Type      string
	Body      string
	Params    string
	Condition string
}

// Grammar is the per-language descriptor consumed by the generic
// extractor walker. It replaces a virtual-dispatch class hierarchy with
// data: one generic walker, N descriptors.
type Grammar struct {
	Language string

	FunctionLike  NodeKindSet
	ClassLike     NodeKindSet
	InterfaceLike NodeKindSet
	EnumLike      NodeKindSet
	ControlFlow   map[string]string // node type -> ControlFlowKind string
	CallLike      NodeKindSet
	AwaitLike     NodeKindSet
	ImportLike    NodeKindSet
	AssignLike    NodeKindSet
	VarDeclLike   NodeKindSet

	Fields FieldNames

	// UppercaseIsExport is true for Go-style languages where an
	// uppercase leading rune marks an exported identifier instead of a
	// keyword/decorator.
	UppercaseIsExport bool

	// ModuleBodyKindPriority is not set by any registered grammar and
	// is not read by the extractor: primary symbol selection ranks a
	// class/struct/trait above a bare function for every language, and
	// does not vary that order per language.
	ModuleBodyKindPriority bool

	// IsExported evaluates the language's export predicate for a given
	// node's kind and text. Source is the full file content, used for
	// decorator/modifier lookups that the grammar table alone can't
	// answer context-free.
	IsExported func(nodeKind, nodeText string, source []byte) bool

	// TSLanguage is the compiled tree-sitter language, or nil for
	// extensions that are recognized but always take the raw-fallback
	// path (markup/config files).
	TSLanguage *tree_sitter.Language
}

// Entry is what language_for returns: a ready parser plus its grammar.
type Entry struct {
	Grammar *Grammar
	Parser  func() *tree_sitter.Parser // factory; tree-sitter parsers are not goroutine-safe
}
