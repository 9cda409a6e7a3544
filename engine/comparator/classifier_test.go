package comparator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evaldash/engine/types"
)

func outcomes(states ...types.TestOutcome) []types.TestOutcome {
	return states
}

func o(pass bool, score float64) types.TestOutcome {
	return types.TestOutcome{Pass: pass, Score: score}
}

func TestClassifyOutcomes(t *testing.T) {
	threshold := DefaultThresholds().ScoreVariance

	tests := []struct {
		name     string
		outcomes []types.TestOutcome
		want     types.TestStatus
	}{
		{"single outcome", outcomes(o(true, 1)), types.StatusStable},
		{"all passing steady", outcomes(o(true, 0.9), o(true, 0.9)), types.StatusStable},
		{"all failing steady", outcomes(o(false, 0.1), o(false, 0.1)), types.StatusStable},
		{"fail to pass", outcomes(o(false, 0.2), o(true, 0.9)), types.StatusImproved},
		{"pass to fail", outcomes(o(true, 0.9), o(false, 0.2)), types.StatusRegressed},
		{"fail to pass late", outcomes(o(false, 0.2), o(false, 0.2), o(true, 0.9)), types.StatusImproved},
		{"double flip", outcomes(o(true, 0.9), o(false, 0.2), o(true, 0.9)), types.StatusVolatile},
		{"double flip inverse", outcomes(o(false, 0.2), o(true, 0.9), o(false, 0.2)), types.StatusVolatile},
		{"score swing while passing", outcomes(o(true, 0.5), o(true, 0.9)), types.StatusChanged},
		{"score swing while failing", outcomes(o(false, 0.0), o(false, 0.3)), types.StatusChanged},
		{"small fluctuation stays stable", outcomes(o(true, 0.8), o(true, 0.9)), types.StatusStable},
		{"at-threshold fluctuation stays stable", outcomes(o(true, 0.8), o(true, 1.0)), types.StatusStable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, _ := classifyOutcomes(tt.outcomes, threshold)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyOutcomesTransitionsDominateVariance(t *testing.T) {
	// A big score swing alongside a pass/fail transition reports the
	// transition, not "changed".
	status, _, variance := classifyOutcomes(outcomes(o(false, 0.1), o(true, 0.95)), 0.2)
	assert.Equal(t, types.StatusImproved, status)
	assert.InDelta(t, 0.85, variance, 1e-9)
}

func TestClassifyOutcomesDeltas(t *testing.T) {
	status, delta, variance := classifyOutcomes(outcomes(o(true, 0.4), o(true, 0.9), o(true, 0.6)), 0.2)
	assert.Equal(t, types.StatusChanged, status)
	assert.InDelta(t, 0.2, delta, 1e-9, "delta is last minus first")
	assert.InDelta(t, 0.5, variance, 1e-9, "variance is max minus min")
}

func TestClassifyOutcomesAbsentSentinel(t *testing.T) {
	// An absent run carries the sentinel fail outcome, so a test that
	// appears in a later run and passes classifies as improved.
	status, _, _ := classifyOutcomes(outcomes(types.TestOutcome{Absent: true}, o(true, 0.9)), 0.2)
	assert.Equal(t, types.StatusImproved, status)
}

func TestClassifyOutcomesCustomThreshold(t *testing.T) {
	// A tighter variance threshold reclassifies a small swing.
	status, _, _ := classifyOutcomes(outcomes(o(true, 0.8), o(true, 0.9)), 0.05)
	assert.Equal(t, types.StatusChanged, status)
}
