package layer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/semidx/internal/types"
)

func summary(file string, start, end int) *types.SemanticSummary {
	return &types.SemanticSummary{FilePath: file, StartLine: start, EndLine: end}
}

func id(n uint64) types.SymbolID {
	return types.SymbolID{ShardHash: n, SymbolHash: n}
}

func TestResolveFallsThroughToBase(t *testing.T) {
	base := map[types.SymbolID]*types.SemanticSummary{
		id(1): summary("a.go", 10, 20),
	}
	s := NewStack(func(sid types.SymbolID) (*types.SemanticSummary, bool) {
		rec, ok := base[sid]
		return rec, ok
	})

	got, ok := s.Resolve(id(1))
	require.True(t, ok)
	assert.Equal(t, 10, got.StartLine)

	_, ok = s.Resolve(id(2))
	assert.False(t, ok)
}

// The top-most non-deletion record wins: a working-tree edit that
// moves a symbol from 10-20 to 12-25 shadows the base record.
func TestWorkingShadowsBase(t *testing.T) {
	s := NewStack(func(types.SymbolID) (*types.SemanticSummary, bool) {
		return summary("foo.go", 10, 20), true
	})
	s.Working.Put(id(1), summary("foo.go", 12, 25))

	got, ok := s.Resolve(id(1))
	require.True(t, ok)
	assert.Equal(t, 12, got.StartLine)
	assert.Equal(t, 25, got.EndLine)

	// Promoting the edit into Branch leaves the result unchanged.
	s.Branch.Put(id(1), summary("foo.go", 12, 25))
	s.Working.Clear()
	got, ok = s.Resolve(id(1))
	require.True(t, ok)
	assert.Equal(t, 12, got.StartLine)
}

func TestAIShadowsEverything(t *testing.T) {
	s := NewStack(func(types.SymbolID) (*types.SemanticSummary, bool) {
		return summary("foo.go", 1, 5), true
	})
	s.Branch.Put(id(1), summary("foo.go", 2, 6))
	s.Working.Put(id(1), summary("foo.go", 3, 7))
	s.AI.Put(id(1), summary("foo.go", 4, 8))

	got, ok := s.Resolve(id(1))
	require.True(t, ok)
	assert.Equal(t, 4, got.StartLine)
}

func TestDeletionMarkerShortCircuits(t *testing.T) {
	baseCalled := false
	s := NewStack(func(types.SymbolID) (*types.SemanticSummary, bool) {
		baseCalled = true
		return summary("foo.go", 1, 5), true
	})
	s.Working.Delete(id(1))

	_, ok := s.Resolve(id(1))
	assert.False(t, ok)
	assert.False(t, baseCalled, "a deletion marker must not consult lower layers")
}

func TestCommitAIMergesIntoWorking(t *testing.T) {
	s := NewStack(nil)
	s.AI.Put(id(1), summary("foo.go", 1, 2))
	s.AI.Delete(id(2))
	s.CommitAI()

	got, ok := s.Resolve(id(1))
	require.True(t, ok)
	assert.Equal(t, "foo.go", got.FilePath)

	_, ok = s.Resolve(id(2))
	assert.False(t, ok)

	// AI layer is empty after commit.
	s.Working.Clear()
	_, ok = s.Resolve(id(1))
	assert.False(t, ok)
}

func TestDiscardAI(t *testing.T) {
	s := NewStack(func(types.SymbolID) (*types.SemanticSummary, bool) {
		return summary("base.go", 1, 1), true
	})
	s.AI.Put(id(1), summary("edited.go", 9, 9))
	s.DiscardAI()

	got, ok := s.Resolve(id(1))
	require.True(t, ok)
	assert.Equal(t, "base.go", got.FilePath)
}

func TestReconcileBranchReplays(t *testing.T) {
	s := NewStack(nil)
	s.Branch.Put(id(1), summary("keep.go", 1, 2))
	s.Branch.Put(id(2), summary("drop.go", 3, 4))
	s.Branch.Delete(id(3))

	s.ReconcileBranch(func(sid types.SymbolID, old *types.SemanticSummary) (*types.SemanticSummary, bool) {
		if old.FilePath == "drop.go" {
			return nil, false
		}
		moved := *old
		moved.StartLine++
		return &moved, true
	})

	got, ok := s.Resolve(id(1))
	require.True(t, ok)
	assert.Equal(t, 2, got.StartLine)

	_, ok = s.Resolve(id(2))
	assert.False(t, ok)

	// Deletion markers survive the replay.
	_, ok = s.Resolve(id(3))
	assert.False(t, ok)
}
