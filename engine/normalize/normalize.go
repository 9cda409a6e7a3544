// Package normalize extracts a canonical flat list of test records from
// the loosely-typed result payloads attached to evaluation runs. Payload
// shapes vary by evaluation-runtime version, so every field is read
// through an ordered list of resolution paths with documented defaults;
// nothing in here returns an error for a missing field.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/evaldash/engine/types"
)

// promptExcerptLen bounds the prompt excerpt used as a label fallback.
const promptExcerptLen = 40

// resultPaths are the known locations of the flat result array, in
// priority order. A payload matching none of them is the legacy
// table-only shape and normalizes to an empty list.
var resultPaths = []string{"results.results", "results"}

// tokenPaths are the known locations of the run's total token count.
var tokenPaths = []string{
	"results.stats.tokenUsage.total",
	"stats.tokenUsage.total",
	"tokenUsage.total",
}

// ResolvePath walks a dot-separated path through nested
// map[string]interface{} values and reports whether it resolved.
func ResolvePath(payload map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// firstSlice returns the first path that resolves to an array.
func firstSlice(payload map[string]interface{}, paths []string) []interface{} {
	for _, path := range paths {
		if v, ok := ResolvePath(payload, path); ok {
			if arr, ok := v.([]interface{}); ok {
				return arr
			}
		}
	}
	return nil
}

// NormalizeRun extracts the normalized test records from a run's raw
// payload. Malformed entries are skipped; an unrecognized payload shape
// yields an empty list rather than an error.
func NormalizeRun(run *types.RunRecord) []types.NormalizedTestRecord {
	if run == nil || run.RawResults == nil {
		return nil
	}

	raw := firstSlice(run.RawResults, resultPaths)
	records := make([]types.NormalizedTestRecord, 0, len(raw))

	for _, entry := range raw {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		records = append(records, normalizeEntry(m))
	}

	return records
}

// TokenTotal resolves the run's total token usage, preferring the typed
// stats field and falling back to the raw payload. Runs predating token
// accounting report zero.
func TokenTotal(run *types.RunRecord) int64 {
	if run.Stats.TotalTokens > 0 {
		return run.Stats.TotalTokens
	}
	for _, path := range tokenPaths {
		if v, ok := ResolvePath(run.RawResults, path); ok {
			if n, ok := asFloat(v); ok {
				return int64(n)
			}
		}
	}
	return 0
}

// VarsSummary renders up to the first two variables (by sorted key) of
// a variable mapping, the form used for failure grouping and display.
func VarsSummary(vars map[string]string) string {
	if len(vars) == 0 {
		return ""
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 2 {
		keys = keys[:2]
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+vars[k])
	}
	return strings.Join(parts, ", ")
}

func normalizeEntry(m map[string]interface{}) types.NormalizedTestRecord {
	rec := types.NormalizedTestRecord{
		Vars:        extractVars(m),
		Provider:    extractProvider(m),
		PromptLabel: extractPromptLabel(m),
		Pass:        extractPass(m),
	}

	if score, ok := resolveFloat(m, "score", "gradingResult.score"); ok {
		rec.Score = score
	}
	if latency, ok := resolveFloat(m, "latencyMs", "latency", "response.latencyMs"); ok {
		rec.LatencyMs = latency
	}
	if cost, ok := resolveFloat(m, "cost", "response.cost"); ok {
		rec.Cost = cost
	}
	if out, ok := resolveString(m, "response.output", "output"); ok {
		rec.Output = out
	}
	if detail, ok := resolveString(m, "gradingResult.reason", "gradingResult.comment"); ok {
		rec.GradingDetail = detail
	}

	return rec
}

// extractPass resolves the pass flag by priority: explicit success flag,
// then the grading result, then a bare pass field, then false.
func extractPass(m map[string]interface{}) bool {
	for _, path := range []string{"success", "gradingResult.pass", "pass"} {
		if v, ok := ResolvePath(m, path); ok {
			if b, ok := v.(bool); ok {
				return b
			}
		}
	}
	return false
}

func extractProvider(m map[string]interface{}) string {
	if v, ok := ResolvePath(m, "provider.id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	if v, ok := ResolvePath(m, "provider"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func extractPromptLabel(m map[string]interface{}) string {
	if s, ok := resolveString(m, "prompt.label"); ok && s != "" {
		return s
	}
	if s, ok := resolveString(m, "prompt.raw", "prompt"); ok {
		return excerpt(s)
	}
	return ""
}

// excerpt truncates prompt text for use as a display label.
func excerpt(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= promptExcerptLen {
		return s
	}
	return string(runes[:promptExcerptLen]) + "..."
}

func extractVars(m map[string]interface{}) map[string]string {
	var raw map[string]interface{}
	for _, path := range []string{"vars", "testCase.vars"} {
		if v, ok := ResolvePath(m, path); ok {
			if vm, ok := v.(map[string]interface{}); ok {
				raw = vm
				break
			}
		}
	}
	if len(raw) == 0 {
		return map[string]string{}
	}
	vars := make(map[string]string, len(raw))
	for k, v := range raw {
		vars[k] = fmt.Sprintf("%v", v)
	}
	return vars
}

func resolveString(m map[string]interface{}, paths ...string) (string, bool) {
	for _, path := range paths {
		if v, ok := ResolvePath(m, path); ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

func resolveFloat(m map[string]interface{}, paths ...string) (float64, bool) {
	for _, path := range paths {
		if v, ok := ResolvePath(m, path); ok {
			if f, ok := asFloat(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
