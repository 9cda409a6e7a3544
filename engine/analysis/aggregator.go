package analysis

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/evaldash/engine/normalize"
	"github.com/evaldash/engine/types"
)

// failScoreCeiling is the score below which a non-passing test counts
// as a failure for top-failure ranking.
const failScoreCeiling = 0.5

// regression window sizes: the latest runs form the recent window, the
// runs immediately before them form the baseline window.
const (
	recentWindowSize    = 2
	baselineWindowSize  = 3
	minRunsForDetection = 3
)

// RegressionThresholds holds the alerting cut-points. The values are
// empirically chosen product decisions and can be overridden from
// configuration.
type RegressionThresholds struct {
	PassRateDropPoints float64 `yaml:"pass_rate_drop_points"`
	PassRateHighPoints float64 `yaml:"pass_rate_high_points"`
	CostIncreasePct    float64 `yaml:"cost_increase_pct"`
	CostMediumPct      float64 `yaml:"cost_medium_pct"`
	CostHighPct        float64 `yaml:"cost_high_pct"`
	LatencyIncreasePct float64 `yaml:"latency_increase_pct"`
	LatencyHighPct     float64 `yaml:"latency_high_pct"`
}

// DefaultRegressionThresholds returns the default alerting cut-points.
func DefaultRegressionThresholds() RegressionThresholds {
	return RegressionThresholds{
		PassRateDropPoints: 10,
		PassRateHighPoints: 20,
		CostIncreasePct:    20,
		CostMediumPct:      30,
		CostHighPct:        50,
		LatencyIncreasePct: 50,
		LatencyHighPct:     100,
	}
}

// Aggregator computes longitudinal analytics over an unordered history
// of runs. It is stateless per call and safe for concurrent use.
type Aggregator struct {
	log        logrus.FieldLogger
	trend      TrendConfig
	thresholds RegressionThresholds
}

// NewAggregator creates an aggregator with default thresholds.
func NewAggregator(log logrus.FieldLogger) *Aggregator {
	return NewAggregatorWith(log, DefaultTrendConfig(), DefaultRegressionThresholds())
}

// NewAggregatorWith creates an aggregator with explicit thresholds.
func NewAggregatorWith(log logrus.FieldLogger, trend TrendConfig, thresholds RegressionThresholds) *Aggregator {
	return &Aggregator{
		log:        log.WithField("component", "aggregator"),
		trend:      trend,
		thresholds: thresholds,
	}
}

// AggregateStats summarizes the full history. Trend fields compare the
// mean of the first chronological half against the second half.
func (a *Aggregator) AggregateStats(history []*types.RunRecord) types.AggregateStats {
	stats := types.AggregateStats{TotalEvaluations: len(history)}
	if len(history) == 0 {
		return stats
	}

	runs := sortedAscending(history)

	var passed, total int
	var scoreSum, latencySum float64
	for _, run := range runs {
		passed += run.Stats.PassedTests
		total += run.Stats.TotalTests
		stats.TotalCost += run.Stats.TotalCost
		scoreSum += run.Stats.AverageScore
		latencySum += avgLatency(run)
		stats.TotalTokens += normalize.TokenTotal(run)
	}
	stats.TotalTests = total
	if total > 0 {
		stats.OverallPassRate = float64(passed) / float64(total) * 100
	}
	stats.AverageScore = scoreSum / float64(len(runs))
	stats.AverageLatencyMs = latencySum / float64(len(runs))

	if len(runs) >= 2 {
		mid := len(runs) / 2
		stats.PassRateTrend = percentChange(
			meanOf(runs[:mid], passRate), meanOf(runs[mid:], passRate))
		stats.CostTrend = percentChange(
			meanOf(runs[:mid], totalCost), meanOf(runs[mid:], totalCost))
	}

	a.log.WithFields(logrus.Fields{
		"evaluations": stats.TotalEvaluations,
		"pass_rate":   stats.OverallPassRate,
	}).Debug("Aggregated history stats")

	return stats
}

// TrendSeries returns per-run headline metrics for the runs inside the
// given window, anchored at the most recent run. A non-positive window
// includes the whole history.
func (a *Aggregator) TrendSeries(history []*types.RunRecord, window time.Duration) []types.TrendPoint {
	if len(history) == 0 {
		return nil
	}

	runs := sortedAscending(history)
	cutoff := time.Time{}
	if window > 0 {
		cutoff = runs[len(runs)-1].Timestamp.Add(-window)
	}

	points := make([]types.TrendPoint, 0, len(runs))
	for _, run := range runs {
		if run.Timestamp.Before(cutoff) {
			continue
		}
		points = append(points, types.TrendPoint{
			RunID:        run.ID,
			Timestamp:    run.Timestamp,
			PassRate:     passRate(run),
			AverageScore: run.Stats.AverageScore,
			TotalCost:    run.Stats.TotalCost,
			AvgLatencyMs: avgLatency(run),
		})
	}
	return points
}

// TopFailingTests ranks logical tests by failure rate across the whole
// history, tie-breaking on absolute failure count.
func (a *Aggregator) TopFailingTests(history []*types.RunRecord, limit int) []types.TopFailingTest {
	type tally struct {
		promptLabel string
		varsSummary string
		failures    int
		runs        int
	}
	tallies := make(map[string]*tally)

	for _, run := range history {
		for _, rec := range normalize.NormalizeRun(run) {
			summary := normalize.VarsSummary(rec.Vars)
			key := rec.PromptLabel + "\x00" + summary
			t, ok := tallies[key]
			if !ok {
				t = &tally{promptLabel: rec.PromptLabel, varsSummary: summary}
				tallies[key] = t
			}
			t.runs++
			if !rec.Pass && rec.Score < failScoreCeiling {
				t.failures++
			}
		}
	}

	ranked := make([]types.TopFailingTest, 0, len(tallies))
	for _, t := range tallies {
		if t.failures == 0 {
			continue
		}
		ranked = append(ranked, types.TopFailingTest{
			PromptLabel: t.promptLabel,
			VarsSummary: t.varsSummary,
			Failures:    t.failures,
			Runs:        t.runs,
			FailureRate: float64(t.failures) / float64(t.runs) * 100,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FailureRate != ranked[j].FailureRate {
			return ranked[i].FailureRate > ranked[j].FailureRate
		}
		if ranked[i].Failures != ranked[j].Failures {
			return ranked[i].Failures > ranked[j].Failures
		}
		return ranked[i].PromptLabel < ranked[j].PromptLabel
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// DetectRegressions compares the two most recent runs against the up to
// three runs before them and emits alerts for pass-rate, cost, and
// latency degradations. Improvements never produce alerts.
func (a *Aggregator) DetectRegressions(history []*types.RunRecord) []types.RegressionAlert {
	if len(history) < minRunsForDetection {
		return nil
	}

	runs := sortedAscending(history)
	// Newest first for window slicing.
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}

	recent := runs[:recentWindowSize]
	baselineEnd := recentWindowSize + baselineWindowSize
	if baselineEnd > len(runs) {
		baselineEnd = len(runs)
	}
	baseline := runs[recentWindowSize:baselineEnd]

	var alerts []types.RegressionAlert

	basePass := meanOf(baseline, passRate)
	recentPass := meanOf(recent, passRate)
	if drop := basePass - recentPass; drop > a.thresholds.PassRateDropPoints {
		severity := types.SeverityMedium
		if drop > a.thresholds.PassRateHighPoints {
			severity = types.SeverityHigh
		}
		alerts = append(alerts, a.newAlert(types.AlertPassRate, severity,
			fmt.Sprintf("Pass rate dropped %.1f points (%.1f%% to %.1f%%)", drop, basePass, recentPass),
			recentPass-basePass, percentChange(basePass, recentPass)))
	}

	baseCost := meanOf(baseline, totalCost)
	recentCost := meanOf(recent, totalCost)
	if inc := percentChange(baseCost, recentCost); inc > a.thresholds.CostIncreasePct {
		severity := types.SeverityLow
		if inc > a.thresholds.CostHighPct {
			severity = types.SeverityHigh
		} else if inc > a.thresholds.CostMediumPct {
			severity = types.SeverityMedium
		}
		alerts = append(alerts, a.newAlert(types.AlertCost, severity,
			fmt.Sprintf("Cost increased %.1f%% ($%.4f to $%.4f)", inc, baseCost, recentCost),
			recentCost-baseCost, inc))
	}

	baseLatency := meanOf(baseline, avgLatency)
	recentLatency := meanOf(recent, avgLatency)
	if inc := percentChange(baseLatency, recentLatency); inc > a.thresholds.LatencyIncreasePct {
		severity := types.SeverityMedium
		if inc > a.thresholds.LatencyHighPct {
			severity = types.SeverityHigh
		}
		alerts = append(alerts, a.newAlert(types.AlertLatency, severity,
			fmt.Sprintf("Latency increased %.1f%% (%.0fms to %.0fms)", inc, baseLatency, recentLatency),
			recentLatency-baseLatency, inc))
	}

	if len(alerts) > 0 {
		a.log.WithField("alerts", len(alerts)).Info("Regression alerts detected")
	}
	return alerts
}

// CompareProjects groups the history by project and summarizes each
// group, most recently active project first.
func (a *Aggregator) CompareProjects(history []*types.RunRecord) []types.ProjectSummary {
	type group struct {
		runs   int
		passed int
		total  int
		cost   float64
		last   time.Time
	}
	groups := make(map[string]*group)

	for _, run := range history {
		g, ok := groups[run.ProjectName]
		if !ok {
			g = &group{}
			groups[run.ProjectName] = g
		}
		g.runs++
		g.passed += run.Stats.PassedTests
		g.total += run.Stats.TotalTests
		g.cost += run.Stats.TotalCost
		if run.Timestamp.After(g.last) {
			g.last = run.Timestamp
		}
	}

	summaries := make([]types.ProjectSummary, 0, len(groups))
	for name, g := range groups {
		s := types.ProjectSummary{
			ProjectName: name,
			RunCount:    g.runs,
			TotalCost:   g.cost,
			LastRunAt:   g.last,
		}
		if g.total > 0 {
			s.PassRate = float64(g.passed) / float64(g.total) * 100
		}
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastRunAt.After(summaries[j].LastRunAt)
	})
	return summaries
}

func (a *Aggregator) newAlert(alertType types.AlertType, severity types.AlertSeverity, message string, change, pct float64) types.RegressionAlert {
	return types.RegressionAlert{
		ID:            uuid.New().String(),
		Type:          alertType,
		Severity:      severity,
		Message:       message,
		Change:        change,
		PercentChange: pct,
		DetectedAt:    time.Now(),
	}
}

// sortedAscending returns a chronologically sorted copy; the input
// history is never reordered in place.
func sortedAscending(history []*types.RunRecord) []*types.RunRecord {
	runs := append([]*types.RunRecord(nil), history...)
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs
}

func meanOf(runs []*types.RunRecord, f func(*types.RunRecord) float64) float64 {
	if len(runs) == 0 {
		return 0
	}
	sum := 0.0
	for _, run := range runs {
		sum += f(run)
	}
	return sum / float64(len(runs))
}

// passRate returns a run's pass rate in percentage points.
func passRate(run *types.RunRecord) float64 {
	if run.Stats.TotalTests == 0 {
		return 0
	}
	return float64(run.Stats.PassedTests) / float64(run.Stats.TotalTests) * 100
}

// avgLatency returns a run's mean per-test latency in milliseconds.
func avgLatency(run *types.RunRecord) float64 {
	if run.Stats.TotalTests == 0 {
		return 0
	}
	return run.Stats.TotalLatencyMs / float64(run.Stats.TotalTests)
}

func totalCost(run *types.RunRecord) float64 {
	return run.Stats.TotalCost
}
