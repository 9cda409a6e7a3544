// Package analysis computes cross-run analytics: metric trend
// classification for run comparisons and longitudinal aggregates over
// an arbitrary-length run history. Everything in this package is a pure
// function of its inputs; no state is shared across invocations.
package analysis

import (
	"math"

	"github.com/evaldash/engine/types"
)

// TrendConfig holds the tunable thresholds of the trend analyzer. The
// defaults are product decisions, not derived invariants, so they are
// kept configurable rather than hard-coded.
type TrendConfig struct {
	// CoVThreshold is the coefficient-of-variation ceiling above which
	// a series is classified as variable regardless of its net change.
	CoVThreshold float64 `yaml:"cov_threshold"`

	// StableBandPct is the percentage-delta band inside which a series
	// is classified as stable.
	StableBandPct float64 `yaml:"stable_band_pct"`
}

// DefaultTrendConfig returns the default trend thresholds.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		CoVThreshold:  0.2,
		StableBandPct: 1.0,
	}
}

// AnalyzeMetric classifies a metric series with the default thresholds.
func AnalyzeMetric(name string, values []float64, lowerIsBetter bool) types.MetricSeries {
	return AnalyzeMetricWith(DefaultTrendConfig(), name, values, lowerIsBetter)
}

// AnalyzeMetricWith classifies the trend of a metric across runs. The
// noise gate runs first: a series whose coefficient of variation
// exceeds the threshold is variable, never a trend, so a metric that
// oscillates wildly is not reported as improving or degrading.
func AnalyzeMetricWith(cfg TrendConfig, name string, values []float64, lowerIsBetter bool) types.MetricSeries {
	series := types.MetricSeries{
		Name:          name,
		Values:        append([]float64(nil), values...),
		LowerIsBetter: lowerIsBetter,
		Direction:     types.TrendStable,
	}

	if len(values) < 2 {
		return series
	}

	first := values[0]
	last := values[len(values)-1]
	series.Delta = last - first
	if first != 0 {
		series.DeltaPercentage = series.Delta / first * 100
	}

	if coefficientOfVariation(values) > cfg.CoVThreshold {
		series.Direction = types.TrendVariable
		return series
	}

	if math.Abs(series.DeltaPercentage) < cfg.StableBandPct {
		return series
	}

	if (series.Delta > 0 && !lowerIsBetter) || (series.Delta < 0 && lowerIsBetter) {
		series.Direction = types.TrendImproving
		series.IsImprovement = true
	} else {
		series.Direction = types.TrendDegrading
	}

	return series
}

// coefficientOfVariation returns stddev/mean, or 0 for a zero mean.
func coefficientOfVariation(values []float64) float64 {
	m := mean(values)
	if m == 0 {
		return 0
	}
	return stddev(values, m) / m
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	if len(values) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}

// percentChange returns the percentage change from old to new, 0 when
// old is zero.
func percentChange(old, new float64) float64 {
	if old == 0 {
		return 0
	}
	return (new - old) / old * 100
}
