// Package types holds the data model shared by every stage of the
// indexing and query pipeline: extraction output, shard records, and
// layer overlays.
package types

import "fmt"

// SymbolKind enumerates the primary-symbol kinds the Extractor can
// produce.
type SymbolKind string

const (
	KindFunction   SymbolKind = "function"
	KindClass      SymbolKind = "class"
	KindMethod     SymbolKind = "method"
	KindInterface  SymbolKind = "interface"
	KindTrait      SymbolKind = "trait"
	KindStruct     SymbolKind = "struct"
	KindEnum       SymbolKind = "enum"
	KindModule     SymbolKind = "module"
	KindTypeAlias  SymbolKind = "type-alias"
	KindComponent  SymbolKind = "component"
)

// RiskLevel is the output of the Risk Scorer.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// SymbolID is the two-hash stable symbol identity: a module-scope hash
// and a fully-qualified symbol hash, rendered
// as "shardHash:symbolHash" with each half a 16-hex-character uint64.
type SymbolID struct {
	ShardHash  uint64
	SymbolHash uint64
}

// String renders the canonical "shardHash:symbolHash" form. Both halves
// are always rendered at full width (16 hex chars); short hashes are a
// query-time validation error, never a storage-time shortcut.
func (id SymbolID) String() string {
	return fmt.Sprintf("%016x:%016x", id.ShardHash, id.SymbolHash)
}

// IsZero reports whether id is the unset value.
func (id SymbolID) IsZero() bool {
	return id.ShardHash == 0 && id.SymbolHash == 0
}

// Param is one entry in a symbol's parameter or component-prop list.
type Param struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Default  string `json:"default,omitempty"`
	Required bool   `json:"required,omitempty"` // only meaningful for Properties
}

// StateChange records a local declaration whose initializer is a
// state-producing call (useState, useReducer, useRef, ...) or a
// top-level variable declaration.
type StateChange struct {
	Name        string `json:"name"`
	InitKind    string `json:"init_kind"` // e.g. "useState", "useRef", "var"
	Initializer string `json:"initializer"`
}

// ControlFlowKind enumerates the control-flow node kinds tallied per
// symbol.
type ControlFlowKind string

const (
	CFIf     ControlFlowKind = "if"
	CFFor    ControlFlowKind = "for"
	CFWhile  ControlFlowKind = "while"
	CFSwitch ControlFlowKind = "switch"
	CFMatch  ControlFlowKind = "match"
	CFTry    ControlFlowKind = "try"
	CFLoop   ControlFlowKind = "loop"
	CFAwait  ControlFlowKind = "await"
)

// Call records one call-like node encountered inside a symbol body.
// Unresolved targets are tagged with the "ext:" prefix by the
// Extractor before the Call is ever stored.
type Call struct {
	Name       string `json:"name"`
	Object     string `json:"object,omitempty"`
	Awaited    bool   `json:"awaited,omitempty"`
	InsideTry  bool   `json:"inside_try,omitempty"`
	Hook       bool   `json:"hook,omitempty"`
}

// IsExternal reports whether the call target could not be resolved to a
// repo-internal symbol.
func (c Call) IsExternal() bool {
	return len(c.Name) > 4 && c.Name[:4] == "ext:"
}

// SemanticSummary is the unit of extraction: one per symbol, or one per
// file when no symbol is extractable (the "raw" fallback).
type SemanticSummary struct {
	FilePath string     `json:"file_path"`
	Language string     `json:"language"`
	Name     string     `json:"name,omitempty"`
	Kind     SymbolKind `json:"kind,omitempty"`
	ID       SymbolID   `json:"-"`

	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	Exported bool `json:"exported,omitempty"`

	Params     []Param `json:"params,omitempty"`
	Properties []Param `json:"properties,omitempty"`
	ReturnType string  `json:"return_type,omitempty"`

	Insertions        []string      `json:"insertions,omitempty"`
	AddedDependencies []string      `json:"added_dependencies,omitempty"`
	LocalImports      []string      `json:"local_imports,omitempty"`
	StateChanges      []StateChange `json:"state_changes,omitempty"`
	ControlFlow       map[ControlFlowKind]int `json:"control_flow,omitempty"`
	Calls             []Call        `json:"calls,omitempty"`

	PublicSurfaceChanged bool      `json:"public_surface_changed"`
	Risk                 RiskLevel `json:"risk"`

	// NestingDepth is the maximum control-flow nesting observed in the
	// symbol body, kept for the validate operation's metrics.
	NestingDepth int `json:"nesting_depth,omitempty"`

	RawFallback        string `json:"raw_fallback,omitempty"`
	ExtractionComplete bool   `json:"extraction_complete"`

	// Fingerprint components for duplicate detection: xxhash
	// 64-bit hashes over call-name sequence, control-flow pattern, and
	// state-op sequence, plus the token set used for Jaccard
	// confirmation.
	CallFingerprint  uint64   `json:"-"`
	FlowFingerprint  uint64   `json:"-"`
	StateFingerprint uint64   `json:"-"`
	Tokens           []string `json:"-"`
}

// IsRaw reports whether this summary is a file-level raw fallback rather
// than an extracted symbol.
func (s *SemanticSummary) IsRaw() bool {
	return s.Name == "" && s.Kind == ""
}

// LineCount returns the inclusive line span of the symbol.
func (s *SemanticSummary) LineCount() int {
	if s.EndLine < s.StartLine {
		return 0
	}
	return s.EndLine - s.StartLine + 1
}

// SymbolIndexEntry is the lightweight per-symbol row kept in the symbol
// index: small enough that the whole set can be scanned for
// exact/substring symbol search without touching symbol shards.
type SymbolIndexEntry struct {
	Name      string     `json:"name"`
	Hash      SymbolID   `json:"hash"`
	Kind      SymbolKind `json:"kind,omitempty"`
	Module    string     `json:"module"`
	File      string     `json:"file"`
	StartLine int        `json:"start_line"`
	EndLine   int        `json:"end_line"`
	Risk      RiskLevel  `json:"risk"`

	// Duplicate-detection fingerprints ride on the index row so bulk
	// duplicate queries never reload symbol shards.
	CallFP  uint64 `json:"call_fp,omitempty"`
	FlowFP  uint64 `json:"flow_fp,omitempty"`
	StateFP uint64 `json:"state_fp,omitempty"`
}

// CallGraphEdge is one directed edge in the call graph.
type CallGraphEdge struct {
	From SymbolID `json:"from"`
	To   SymbolID `json:"to"` // zero value + ExternalName set means unresolved
	Kind string   `json:"kind"` // call, read, write, readwrite, alias, pass, return, store, escape
	ExternalName string `json:"external_name,omitempty"`
}

// ImportGraphEdge is one directed edge in the module import graph.
type ImportGraphEdge struct {
	FromModule string `json:"from_module"`
	ToModule   string `json:"to_module"` // "ext:<name>" for externals
}
