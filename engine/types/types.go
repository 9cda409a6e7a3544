package types

import (
	"time"
)

// RunRecord represents one completed evaluation run as stored by the
// history store. Created once on ingest and immutable thereafter.
type RunRecord struct {
	ID          string        `json:"id"`
	ProjectName string        `json:"project_name"`
	Timestamp   time.Time     `json:"timestamp"`
	Stats       RunStats      `json:"stats"`
	Config      ProjectConfig `json:"config"`

	// RawResults is the evaluation runtime's result payload. Its shape
	// varies by runtime version; only the normalizer looks inside it.
	RawResults map[string]interface{} `json:"raw_results,omitempty"`
}

// RunStats holds the aggregate statistics of a single run.
type RunStats struct {
	TotalTests     int     `json:"total_tests"`
	PassedTests    int     `json:"passed_tests"`
	FailedTests    int     `json:"failed_tests"`
	AverageScore   float64 `json:"average_score"`
	TotalCost      float64 `json:"total_cost"`
	TotalLatencyMs float64 `json:"total_latency_ms"`
	TotalTokens    int64   `json:"total_tokens,omitempty"`
}

// ProjectConfig is the snapshot of the project configuration at run time.
type ProjectConfig struct {
	Providers  []string            `json:"providers,omitempty"`
	Prompts    []PromptConfig      `json:"prompts,omitempty"`
	Dataset    []map[string]string `json:"dataset,omitempty"`
	Assertions []AssertionConfig   `json:"assertions,omitempty"`
}

// PromptConfig is one prompt in a project configuration.
type PromptConfig struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// AssertionConfig is one assertion in a project configuration.
type AssertionConfig struct {
	ID        string      `json:"id"`
	Type      string      `json:"type,omitempty"`
	Value     interface{} `json:"value,omitempty"`
	Threshold float64     `json:"threshold,omitempty"`
}

// NormalizedTestRecord is one test execution extracted from a run's raw
// payload. Derived on demand, never persisted.
type NormalizedTestRecord struct {
	Vars        map[string]string `json:"vars"`
	Provider    string            `json:"provider"`
	PromptLabel string            `json:"prompt_label"`

	Pass          bool    `json:"pass"`
	Score         float64 `json:"score"`
	LatencyMs     float64 `json:"latency_ms"`
	Cost          float64 `json:"cost"`
	Output        string  `json:"output,omitempty"`
	GradingDetail string  `json:"grading_detail,omitempty"`
}

// TestOutcome holds the outcome fields of one test in one run. An
// absent outcome (Absent=true, Pass=false, Score=0) marks a run in
// which no matching test existed.
type TestOutcome struct {
	Pass      bool    `json:"pass"`
	Score     float64 `json:"score"`
	LatencyMs float64 `json:"latency_ms"`
	Cost      float64 `json:"cost"`
	Output    string  `json:"output,omitempty"`
	Absent    bool    `json:"absent,omitempty"`
}

// TestStatus classifies how a test changed across the compared runs.
type TestStatus string

const (
	StatusStable    TestStatus = "stable"
	StatusImproved  TestStatus = "improved"
	StatusRegressed TestStatus = "regressed"
	StatusChanged   TestStatus = "changed"
	StatusVolatile  TestStatus = "volatile"
)

// ComparisonRow is one test aligned across 2-3 runs by semantic
// identity. Outcomes holds exactly one entry per compared run, in
// chronological order.
type ComparisonRow struct {
	Key         string            `json:"key"`
	Vars        map[string]string `json:"vars"`
	Provider    string            `json:"provider"`
	PromptLabel string            `json:"prompt_label"`
	Outcomes    []TestOutcome     `json:"outcomes"`

	Status        TestStatus `json:"status"`
	ScoreDelta    float64    `json:"score_delta"`
	ScoreVariance float64    `json:"score_variance"`
}

// TrendDirection classifies a metric's movement across runs.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDegrading TrendDirection = "degrading"
	TrendStable    TrendDirection = "stable"
	TrendVariable  TrendDirection = "variable"
)

// MetricSeries is a named metric with one value per compared run and
// its derived trend fields.
type MetricSeries struct {
	Name            string         `json:"name"`
	Values          []float64      `json:"values"`
	LowerIsBetter   bool           `json:"lower_is_better"`
	Direction       TrendDirection `json:"direction"`
	Delta           float64        `json:"delta"`
	DeltaPercentage float64        `json:"delta_percentage"`
	IsImprovement   bool           `json:"is_improvement"`
}

// ChangeKind is the kind of configuration change detected between runs.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// ConfigEntity names the configuration entity a change applies to.
type ConfigEntity string

const (
	EntityPrompt    ConfigEntity = "prompt"
	EntityAssertion ConfigEntity = "assertion"
)

// ConfigChangeRecord is one detected change between consecutive runs.
// RunIndex is the index of the later run of the pair.
type ConfigChangeRecord struct {
	Entity   ConfigEntity `json:"entity"`
	EntityID string       `json:"entity_id"`
	Kind     ChangeKind   `json:"kind"`
	OldValue string       `json:"old_value,omitempty"`
	NewValue string       `json:"new_value,omitempty"`
	RunIndex int          `json:"run_index"`
}

// ScalarDiff tracks a scalar configuration value across the compared
// runs, one rendered value per run in chronological order.
type ScalarDiff struct {
	Values  []string `json:"values"`
	Changed bool     `json:"changed"`
}

// ConfigDiff is the full configuration delta across the compared runs.
type ConfigDiff struct {
	PromptChanges    []ConfigChangeRecord `json:"prompt_changes"`
	AssertionChanges []ConfigChangeRecord `json:"assertion_changes"`
	PromptCount      ScalarDiff           `json:"prompt_count"`
	Provider         ScalarDiff           `json:"provider"`
	DatasetRows      ScalarDiff           `json:"dataset_rows"`
	AssertionCount   ScalarDiff           `json:"assertion_count"`
}

// RunHeader identifies one compared run in a comparison result.
type RunHeader struct {
	ID          string    `json:"id"`
	ProjectName string    `json:"project_name"`
	Timestamp   time.Time `json:"timestamp"`
	Stats       RunStats  `json:"stats"`
}

// TestHighlight points at the single most improved or most regressed
// test of a comparison.
type TestHighlight struct {
	PromptLabel string  `json:"prompt_label"`
	Provider    string  `json:"provider"`
	VarsSummary string  `json:"vars_summary"`
	ScoreDelta  float64 `json:"score_delta"`
}

// ComparisonSummary aggregates the per-test classifications.
type ComparisonSummary struct {
	TotalTests            int                `json:"total_tests"`
	StatusCounts          map[TestStatus]int `json:"status_counts"`
	ConsistencyPercentage float64            `json:"consistency_percentage"`
	MostImproved          *TestHighlight     `json:"most_improved,omitempty"`
	MostRegressed         *TestHighlight     `json:"most_regressed,omitempty"`
}

// ComparisonData is the complete result of comparing 2-3 runs. It is a
// plain serializable structure; the presentation layer only renders it.
type ComparisonData struct {
	Runs    []RunHeader       `json:"runs"`
	Metrics []MetricSeries    `json:"metrics"`
	Tests   []ComparisonRow   `json:"tests"`
	Config  ConfigDiff        `json:"config"`
	Summary ComparisonSummary `json:"summary"`
}

// AlertType names the metric a regression alert is about.
type AlertType string

const (
	AlertPassRate AlertType = "pass_rate"
	AlertCost     AlertType = "cost"
	AlertLatency  AlertType = "latency"
)

// AlertSeverity grades a regression alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// RegressionAlert is emitted when the recent window of history degrades
// against the baseline window.
type RegressionAlert struct {
	ID            string        `json:"id"`
	Type          AlertType     `json:"type"`
	Severity      AlertSeverity `json:"severity"`
	Message       string        `json:"message"`
	Change        float64       `json:"change"`
	PercentChange float64       `json:"percent_change"`
	DetectedAt    time.Time     `json:"detected_at"`
}

// AggregateStats summarizes an arbitrary-length run history.
type AggregateStats struct {
	TotalEvaluations int     `json:"total_evaluations"`
	TotalTests       int     `json:"total_tests"`
	OverallPassRate  float64 `json:"overall_pass_rate"`
	TotalCost        float64 `json:"total_cost"`
	AverageScore     float64 `json:"average_score"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	TotalTokens      int64   `json:"total_tokens"`

	// Percentage change between the first and second half of the
	// chronologically sorted history.
	PassRateTrend float64 `json:"pass_rate_trend"`
	CostTrend     float64 `json:"cost_trend"`
}

// TrendPoint is one run's headline metrics on a dashboard time series.
type TrendPoint struct {
	RunID        string    `json:"run_id"`
	Timestamp    time.Time `json:"timestamp"`
	PassRate     float64   `json:"pass_rate"`
	AverageScore float64   `json:"average_score"`
	TotalCost    float64   `json:"total_cost"`
	AvgLatencyMs float64   `json:"avg_latency_ms"`
}

// TopFailingTest ranks a logical test by how often it fails across the
// run history.
type TopFailingTest struct {
	PromptLabel string  `json:"prompt_label"`
	VarsSummary string  `json:"vars_summary"`
	Failures    int     `json:"failures"`
	Runs        int     `json:"runs"`
	FailureRate float64 `json:"failure_rate"`
}

// ProjectSummary compares one project's history against the others.
type ProjectSummary struct {
	ProjectName string    `json:"project_name"`
	RunCount    int       `json:"run_count"`
	PassRate    float64   `json:"pass_rate"`
	TotalCost   float64   `json:"total_cost"`
	LastRunAt   time.Time `json:"last_run_at"`
}

// FilterType selects a subset of comparison rows for display.
type FilterType string

const (
	FilterAll                FilterType = "all"
	FilterRegressions        FilterType = "regressions"
	FilterImprovements       FilterType = "improvements"
	FilterChanges            FilterType = "changes"
	FilterConsistentFailures FilterType = "consistent-failures"
	FilterVolatile           FilterType = "volatile"
)
