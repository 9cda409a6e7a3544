package comparator

import (
	"github.com/evaldash/engine/types"
)

// classifyOutcomes derives a row's status and score deltas from its
// outcome sequence. Pass/fail transitions always dominate score-only
// fluctuation: a test that keeps passing but swings in score beyond the
// variance threshold is "changed", never "stable".
func classifyOutcomes(outcomes []types.TestOutcome, varianceThreshold float64) (types.TestStatus, float64, float64) {
	if len(outcomes) < 2 {
		return types.StatusStable, 0, 0
	}

	scoreDelta := outcomes[len(outcomes)-1].Score - outcomes[0].Score

	minScore, maxScore := outcomes[0].Score, outcomes[0].Score
	transitions := 0
	var firstTransitionUp bool
	for i := 1; i < len(outcomes); i++ {
		if outcomes[i].Score < minScore {
			minScore = outcomes[i].Score
		}
		if outcomes[i].Score > maxScore {
			maxScore = outcomes[i].Score
		}
		if outcomes[i].Pass != outcomes[i-1].Pass {
			if transitions == 0 {
				firstTransitionUp = outcomes[i].Pass
			}
			transitions++
		}
	}
	scoreVariance := maxScore - minScore

	switch {
	case transitions > 1:
		return types.StatusVolatile, scoreDelta, scoreVariance
	case transitions == 1 && firstTransitionUp:
		return types.StatusImproved, scoreDelta, scoreVariance
	case transitions == 1:
		return types.StatusRegressed, scoreDelta, scoreVariance
	case scoreVariance > varianceThreshold:
		return types.StatusChanged, scoreDelta, scoreVariance
	default:
		return types.StatusStable, scoreDelta, scoreVariance
	}
}
