// Package risk implements the Risk Scorer: a deterministic
// score derived from a SemanticSummary, mapped to a RiskLevel.
package risk

import (
	"strings"

	"github.com/standardbeagle/semidx/internal/types"
)

var persistenceKeywords = []string{"save", "commit", "persist", "write", "store", "flush", "sync"}

var ioSignals = []string{"network", "fetch", "i/o", "storage", "invoke"}

// Score computes the deterministic risk score for s. It never reads
// anything but s, so identical input always yields the identical
// score, and adding a contributing signal never decreases it.
func Score(s *types.SemanticSummary) int {
	score := 0

	deps := len(s.AddedDependencies)
	if deps > 3 {
		deps = 3
	}
	score += deps

	score += len(s.StateChanges)

	cfTotal := 0
	for _, n := range s.ControlFlow {
		cfTotal += n
	}
	if cfTotal > 0 {
		score += cfTotal
		if cfTotal > 5 {
			score++
		}
		if cfTotal > 15 {
			score++
		}
	}

	for _, insertion := range s.Insertions {
		lower := strings.ToLower(insertion)
		for _, sig := range ioSignals {
			if strings.Contains(lower, sig) {
				score += 2
				break
			}
		}
	}

	// Exported symbols carry the public-surface weight even outside
	// diff mode, where the changed flag stays false: an exported
	// symbol with risky behavior is public surface regardless of
	// whether a prior snapshot exists to diff against.
	if s.PublicSurfaceChanged || s.Exported {
		score += 3
	}

	lowerAll := strings.ToLower(strings.Join(append(append([]string{}, s.Insertions...), s.RawFallback), " "))
	for _, kw := range persistenceKeywords {
		if strings.Contains(lowerAll, kw) {
			score += 3
		}
	}

	return score
}

// Level maps a score to the three-tier RiskLevel.
func Level(score int) types.RiskLevel {
	switch {
	case score >= 4:
		return types.RiskHigh
	case score >= 2:
		return types.RiskMedium
	default:
		return types.RiskLow
	}
}

// Annotate computes and assigns s.Risk in place, returning the level for
// convenience.
func Annotate(s *types.SemanticSummary) types.RiskLevel {
	level := Level(Score(s))
	s.Risk = level
	return level
}
