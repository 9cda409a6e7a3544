package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evaldash/engine/types"
)

func TestAnalyzeMetricDirections(t *testing.T) {
	tests := []struct {
		name          string
		values        []float64
		lowerIsBetter bool
		want          types.TrendDirection
		improvement   bool
	}{
		{"higher-better increase", []float64{70, 80}, false, types.TrendImproving, true},
		{"higher-better decrease", []float64{80, 70}, false, types.TrendDegrading, false},
		{"lower-better increase", []float64{100, 120}, true, types.TrendDegrading, false},
		{"lower-better decrease", []float64{120, 100}, true, types.TrendImproving, true},
		{"within stable band", []float64{100, 100.5}, false, types.TrendStable, false},
		{"flat series", []float64{50, 50, 50}, false, types.TrendStable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeMetric("m", tt.values, tt.lowerIsBetter)
			assert.Equal(t, tt.want, got.Direction)
			assert.Equal(t, tt.improvement, got.IsImprovement)
		})
	}
}

func TestAnalyzeMetricNoiseGate(t *testing.T) {
	// The net change says "improving" but the oscillation is too wide
	// for the series to be called a trend.
	got := AnalyzeMetric("m", []float64{10, 100, 12}, false)
	assert.Equal(t, types.TrendVariable, got.Direction)
	assert.False(t, got.IsImprovement)
}

func TestAnalyzeMetricDeltaFields(t *testing.T) {
	got := AnalyzeMetric("Pass Rate", []float64{70, 75, 80}, false)
	assert.Equal(t, "Pass Rate", got.Name)
	assert.InDelta(t, 10, got.Delta, 1e-9)
	assert.InDelta(t, 14.2857, got.DeltaPercentage, 1e-3)
	assert.Equal(t, types.TrendImproving, got.Direction)
}

func TestAnalyzeMetricShortSeries(t *testing.T) {
	got := AnalyzeMetric("m", []float64{42}, false)
	assert.Equal(t, types.TrendStable, got.Direction)
	assert.Zero(t, got.Delta)
	assert.Zero(t, got.DeltaPercentage)

	got = AnalyzeMetric("m", nil, false)
	assert.Equal(t, types.TrendStable, got.Direction)
}

func TestAnalyzeMetricZeroBaseline(t *testing.T) {
	// A zero first value cannot produce a percentage.
	got := AnalyzeMetric("m", []float64{0, 10}, false)
	assert.Zero(t, got.DeltaPercentage)
	assert.InDelta(t, 10, got.Delta, 1e-9)
	assert.Equal(t, types.TrendVariable, got.Direction, "a jump from zero is noise, not a trend")
}

func TestAnalyzeMetricCopiesValues(t *testing.T) {
	values := []float64{70, 80}
	got := AnalyzeMetric("m", values, false)
	values[0] = 999
	assert.Equal(t, []float64{70, 80}, got.Values)
}

func TestAnalyzeMetricWithCustomThresholds(t *testing.T) {
	cfg := TrendConfig{CoVThreshold: 0.5, StableBandPct: 5}

	// Wider noise gate lets a moderately noisy series through.
	got := AnalyzeMetricWith(cfg, "m", []float64{50, 80}, false)
	assert.Equal(t, types.TrendImproving, got.Direction)

	// Wider stable band swallows a small change.
	got = AnalyzeMetricWith(cfg, "m", []float64{100, 103}, false)
	assert.Equal(t, types.TrendStable, got.Direction)
}

func TestCoefficientOfVariation(t *testing.T) {
	assert.Zero(t, coefficientOfVariation([]float64{5, 5, 5}))
	assert.Zero(t, coefficientOfVariation(nil))

	// Mean 50, stddev 30: CoV 0.6.
	assert.InDelta(t, 0.6, coefficientOfVariation([]float64{20, 80}), 1e-9)
}

func TestPercentChange(t *testing.T) {
	assert.InDelta(t, 20, percentChange(50, 60), 1e-9)
	assert.InDelta(t, -50, percentChange(60, 30), 1e-9)
	assert.Zero(t, percentChange(0, 10))
}
