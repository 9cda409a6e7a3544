// Package comparator aligns tests across 2-3 evaluation runs by
// semantic identity and produces the full structured comparison: per-
// test status classification, metric trends, configuration deltas, and
// a summary. It performs no I/O; inputs are read-only and outputs share
// no memory with them, so a Comparator is safe for concurrent use.
package comparator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/evaldash/engine/analysis"
	"github.com/evaldash/engine/normalize"
	"github.com/evaldash/engine/types"
)

// ErrInvalidComparisonInput is returned for a wrong run count or runs
// from different projects, before any computation happens.
var ErrInvalidComparisonInput = errors.New("invalid comparison input")

const (
	minRuns = 2
	maxRuns = 3
)

// metric names for the five fixed comparison metrics.
const (
	MetricPassRate   = "Pass Rate"
	MetricAvgScore   = "Average Score"
	MetricTotalCost  = "Total Cost"
	MetricAvgLatency = "Average Latency"
	MetricTokenUsage = "Token Usage"
)

// Thresholds holds the comparator's tunable cut-points.
type Thresholds struct {
	// ScoreVariance is the max-minus-min score spread above which a
	// test with constant pass/fail state is classified as changed.
	ScoreVariance float64 `yaml:"score_variance"`

	// MinRegressionDelta is the minimum score-delta magnitude for a
	// test to be reported as the comparison's most regressed; smaller
	// drops are treated as noise.
	MinRegressionDelta float64 `yaml:"min_regression_delta"`

	Trend analysis.TrendConfig `yaml:"trend"`
}

// DefaultThresholds returns the default comparator thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ScoreVariance:      0.2,
		MinRegressionDelta: 0.1,
		Trend:              analysis.DefaultTrendConfig(),
	}
}

// Comparator produces run comparisons.
type Comparator struct {
	log        logrus.FieldLogger
	thresholds Thresholds
}

// New creates a comparator with default thresholds.
func New(log logrus.FieldLogger) *Comparator {
	return NewWith(log, DefaultThresholds())
}

// NewWith creates a comparator with explicit thresholds.
func NewWith(log logrus.FieldLogger, thresholds Thresholds) *Comparator {
	return &Comparator{
		log:        log.WithField("component", "comparator"),
		thresholds: thresholds,
	}
}

// CompareRuns compares 2 or 3 runs of the same project. Runs are
// processed in ascending timestamp order regardless of input order.
// Zero matched tests is not an error; the summary reports zero counts.
func (c *Comparator) CompareRuns(runs []*types.RunRecord) (*types.ComparisonData, error) {
	if len(runs) < minRuns || len(runs) > maxRuns {
		return nil, fmt.Errorf("%w: expected %d-%d runs, got %d",
			ErrInvalidComparisonInput, minRuns, maxRuns, len(runs))
	}
	for _, run := range runs[1:] {
		if run.ProjectName != runs[0].ProjectName {
			return nil, fmt.Errorf("%w: runs belong to different projects (%q and %q)",
				ErrInvalidComparisonInput, runs[0].ProjectName, run.ProjectName)
		}
	}

	ordered := append([]*types.RunRecord(nil), runs...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})

	normalized := make([][]types.NormalizedTestRecord, len(ordered))
	for i, run := range ordered {
		normalized[i] = normalize.NormalizeRun(run)
	}

	rows := alignRecords(normalized)
	for i := range rows {
		rows[i].Status, rows[i].ScoreDelta, rows[i].ScoreVariance =
			classifyOutcomes(rows[i].Outcomes, c.thresholds.ScoreVariance)
	}

	data := &types.ComparisonData{
		Runs:    runHeaders(ordered),
		Metrics: c.buildMetrics(ordered),
		Tests:   rows,
		Config:  diffConfigs(ordered),
		Summary: c.buildSummary(rows),
	}

	c.log.WithFields(logrus.Fields{
		"project": ordered[0].ProjectName,
		"runs":    len(ordered),
		"tests":   len(rows),
	}).Debug("Comparison computed")

	return data, nil
}

// FilterTests returns the order-preserving subset of rows matching the
// filter kind and the case-insensitive search query. The query matches
// against the prompt label and the variable text.
func FilterTests(tests []types.ComparisonRow, filter types.FilterType, query string) []types.ComparisonRow {
	filtered := make([]types.ComparisonRow, 0, len(tests))
	for _, row := range tests {
		if !matchesFilter(row, filter) {
			continue
		}
		if !matchesQuery(row, query) {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered
}

func (c *Comparator) buildMetrics(runs []*types.RunRecord) []types.MetricSeries {
	passRates := make([]float64, len(runs))
	avgScores := make([]float64, len(runs))
	costs := make([]float64, len(runs))
	latencies := make([]float64, len(runs))
	tokens := make([]float64, len(runs))
	for i, run := range runs {
		passRates[i] = runPassRate(run)
		avgScores[i] = run.Stats.AverageScore
		costs[i] = run.Stats.TotalCost
		latencies[i] = runAvgLatency(run)
		tokens[i] = float64(normalize.TokenTotal(run))
	}

	return []types.MetricSeries{
		analysis.AnalyzeMetricWith(c.thresholds.Trend, MetricPassRate, passRates, false),
		analysis.AnalyzeMetricWith(c.thresholds.Trend, MetricAvgScore, avgScores, false),
		analysis.AnalyzeMetricWith(c.thresholds.Trend, MetricTotalCost, costs, true),
		analysis.AnalyzeMetricWith(c.thresholds.Trend, MetricAvgLatency, latencies, true),
		analysis.AnalyzeMetricWith(c.thresholds.Trend, MetricTokenUsage, tokens, true),
	}
}

func (c *Comparator) buildSummary(rows []types.ComparisonRow) types.ComparisonSummary {
	summary := types.ComparisonSummary{
		TotalTests: len(rows),
		StatusCounts: map[types.TestStatus]int{
			types.StatusStable:    0,
			types.StatusImproved:  0,
			types.StatusRegressed: 0,
			types.StatusChanged:   0,
			types.StatusVolatile:  0,
		},
	}

	var best, worst *types.ComparisonRow
	for i := range rows {
		row := &rows[i]
		summary.StatusCounts[row.Status]++
		if row.ScoreDelta > 0 && (best == nil || row.ScoreDelta > best.ScoreDelta) {
			best = row
		}
		if row.ScoreDelta <= -c.thresholds.MinRegressionDelta &&
			(worst == nil || row.ScoreDelta < worst.ScoreDelta) {
			worst = row
		}
	}

	if len(rows) > 0 {
		summary.ConsistencyPercentage =
			float64(summary.StatusCounts[types.StatusStable]) / float64(len(rows)) * 100
	}
	if best != nil {
		summary.MostImproved = highlight(best)
	}
	if worst != nil {
		summary.MostRegressed = highlight(worst)
	}
	return summary
}

func highlight(row *types.ComparisonRow) *types.TestHighlight {
	return &types.TestHighlight{
		PromptLabel: row.PromptLabel,
		Provider:    row.Provider,
		VarsSummary: normalize.VarsSummary(row.Vars),
		ScoreDelta:  row.ScoreDelta,
	}
}

func runHeaders(runs []*types.RunRecord) []types.RunHeader {
	headers := make([]types.RunHeader, 0, len(runs))
	for _, run := range runs {
		headers = append(headers, types.RunHeader{
			ID:          run.ID,
			ProjectName: run.ProjectName,
			Timestamp:   run.Timestamp,
			Stats:       run.Stats,
		})
	}
	return headers
}

func runPassRate(run *types.RunRecord) float64 {
	if run.Stats.TotalTests == 0 {
		return 0
	}
	return float64(run.Stats.PassedTests) / float64(run.Stats.TotalTests) * 100
}

func runAvgLatency(run *types.RunRecord) float64 {
	if run.Stats.TotalTests == 0 {
		return 0
	}
	return run.Stats.TotalLatencyMs / float64(run.Stats.TotalTests)
}
