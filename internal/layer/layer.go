// Package layer implements the Layered Index: an {AI, Working,
// Branch, Base} overlay stack over the shard store, with top-down
// first-match-wins symbol lookup and deletion-marker short-circuiting.
package layer

import (
	"sync"

	"github.com/standardbeagle/semidx/internal/types"
)

// entry is one overlay record: either a live replacement summary or a
// deletion marker (Summary == nil, Deleted == true).
type entry struct {
	Summary *types.SemanticSummary
	Deleted bool
}

// Overlay is one layer's in-memory symbol map. Base is expected to be
// backed by the on-disk shard store instead (see the BaseLookup held
// in Stack.base);
// AI/Working/Branch live entirely in memory here.
type Overlay struct {
	mu      sync.RWMutex
	symbols map[types.SymbolID]entry
}

func newOverlay() *Overlay {
	return &Overlay{symbols: make(map[types.SymbolID]entry)}
}

// Put records a live replacement for id.
func (o *Overlay) Put(id types.SymbolID, s *types.SemanticSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.symbols[id] = entry{Summary: s}
}

// Delete records a deletion marker for id.
func (o *Overlay) Delete(id types.SymbolID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.symbols[id] = entry{Deleted: true}
}

// Clear empties the overlay (used when the AI layer is discarded or
// committed).
func (o *Overlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.symbols = make(map[types.SymbolID]entry)
}

func (o *Overlay) get(id types.SymbolID) (entry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.symbols[id]
	return e, ok
}

// BaseLookup resolves a symbol from the Base layer's backing store
// (the on-disk shard set), invoked only when no overlay above it has an
// entry for that id.
type BaseLookup func(id types.SymbolID) (*types.SemanticSummary, bool)

// Stack is the four-level overlay: AI over Working over Branch over
// Base. Base reads through BaseLookup rather than keeping its own
// in-memory copy of every symbol; Base is the on-disk cache itself.
type Stack struct {
	AI, Working, Branch *Overlay
	base                BaseLookup
}

// NewStack builds an empty AI/Working/Branch overlay stack over base.
func NewStack(base BaseLookup) *Stack {
	return &Stack{AI: newOverlay(), Working: newOverlay(), Branch: newOverlay(), base: base}
}

// Resolve performs the top-down first-match-wins lookup: AI, then
// Working, then Branch, then Base. A deletion marker at any level
// short-circuits to "not found" without consulting the levels below it.
func (s *Stack) Resolve(id types.SymbolID) (*types.SemanticSummary, bool) {
	for _, o := range []*Overlay{s.AI, s.Working, s.Branch} {
		if e, ok := o.get(id); ok {
			if e.Deleted {
				return nil, false
			}
			return e.Summary, true
		}
	}
	if s.base == nil {
		return nil, false
	}
	return s.base(id)
}

// DiscardAI clears the AI layer, e.g. on explicit discard of an
// agent-proposed edit session.
func (s *Stack) DiscardAI() { s.AI.Clear() }

// CommitAI merges the AI layer's entries into Working (what happens
// when an agent-proposed edit session is accepted) and clears AI.
func (s *Stack) CommitAI() {
	s.AI.mu.Lock()
	entries := s.AI.symbols
	s.AI.symbols = make(map[types.SymbolID]entry)
	s.AI.mu.Unlock()

	s.Working.mu.Lock()
	for id, e := range entries {
		s.Working.symbols[id] = e
	}
	s.Working.mu.Unlock()
}

// ReconcileBranch replays the Branch layer's entries against a new
// Base: called when the branch's merge-base shifts. The
// replay function maps each retained symbol's ID to either a fresh
// summary (re-derived against the new Base) or a removal; unresolved
// ids are dropped from Branch rather than carried forward incorrectly.
func (s *Stack) ReconcileBranch(replay func(id types.SymbolID, old *types.SemanticSummary) (*types.SemanticSummary, bool)) {
	s.Branch.mu.Lock()
	defer s.Branch.mu.Unlock()
	next := make(map[types.SymbolID]entry, len(s.Branch.symbols))
	for id, e := range s.Branch.symbols {
		if e.Deleted {
			next[id] = e
			continue
		}
		fresh, keep := replay(id, e.Summary)
		if keep {
			next[id] = entry{Summary: fresh}
		}
	}
	s.Branch.symbols = next
}
