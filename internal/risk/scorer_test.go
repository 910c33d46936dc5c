package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/standardbeagle/semidx/internal/types"
)

func TestScoreTable(t *testing.T) {
	tests := []struct {
		name string
		s    types.SemanticSummary
		want int
	}{
		{
			name: "empty",
			s:    types.SemanticSummary{},
			want: 0,
		},
		{
			name: "imports capped at three",
			s: types.SemanticSummary{
				AddedDependencies: []string{"a", "b", "c", "d", "e"},
			},
			want: 3,
		},
		{
			name: "state changes count individually",
			s: types.SemanticSummary{
				StateChanges: []types.StateChange{{Name: "a"}, {Name: "b"}},
			},
			want: 2,
		},
		{
			name: "control flow with volume bonuses",
			s: types.SemanticSummary{
				ControlFlow: map[types.ControlFlowKind]int{types.CFIf: 4, types.CFFor: 3},
			},
			want: 8, // 7 + 1 for >5
		},
		{
			name: "network insertion",
			s: types.SemanticSummary{
				Insertions: []string{"network call introduced"},
			},
			want: 2,
		},
		{
			name: "public surface change",
			s:    types.SemanticSummary{PublicSurfaceChanged: true},
			want: 3,
		},
		{
			name: "exported symbol counts as public surface",
			s:    types.SemanticSummary{Exported: true},
			want: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(&tt.s))
		})
	}
}

func TestLevelThresholds(t *testing.T) {
	assert.Equal(t, types.RiskLow, Level(0))
	assert.Equal(t, types.RiskLow, Level(1))
	assert.Equal(t, types.RiskMedium, Level(2))
	assert.Equal(t, types.RiskMedium, Level(3))
	assert.Equal(t, types.RiskHigh, Level(4))
	assert.Equal(t, types.RiskHigh, Level(11))
}

// Adding any risk-contributing signal must never lower the level.
func TestRiskMonotonicity(t *testing.T) {
	base := types.SemanticSummary{
		ControlFlow: map[types.ControlFlowKind]int{types.CFIf: 1},
	}
	baseScore := Score(&base)

	grown := base
	grown.AddedDependencies = []string{"axios"}
	assert.GreaterOrEqual(t, Score(&grown), baseScore)

	grown.StateChanges = []types.StateChange{{Name: "count", InitKind: "useState"}}
	prev := Score(&grown)
	grown.Insertions = []string{"network call introduced"}
	assert.GreaterOrEqual(t, Score(&grown), prev)

	prev = Score(&grown)
	grown.PublicSurfaceChanged = true
	assert.GreaterOrEqual(t, Score(&grown), prev)
}

func TestExportedNetworkCallIsHigh(t *testing.T) {
	// An exported function with a state hook and a fetch call
	// classifies high.
	s := types.SemanticSummary{
		Exported:     true,
		StateChanges: []types.StateChange{{Name: "user", InitKind: "useState"}},
		Insertions:   []string{"network call introduced"},
	}
	assert.Equal(t, types.RiskHigh, Annotate(&s))
	assert.Equal(t, types.RiskHigh, s.Risk)
}
