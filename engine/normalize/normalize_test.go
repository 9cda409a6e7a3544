package normalize

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evaldash/engine/types"
)

func runWithPayload(t *testing.T, payload string) *types.RunRecord {
	t.Helper()
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(payload), &raw))
	return &types.RunRecord{
		ID:          "run-1",
		ProjectName: "demo",
		Timestamp:   time.Now(),
		RawResults:  raw,
	}
}

func TestNormalizeRunNestedResults(t *testing.T) {
	run := runWithPayload(t, `{
		"results": {
			"results": [
				{
					"vars": {"topic": "weather", "lang": "en"},
					"provider": {"id": "openai:gpt-4"},
					"prompt": {"label": "Summarize"},
					"success": true,
					"score": 0.9,
					"latencyMs": 120,
					"cost": 0.002,
					"response": {"output": "Sunny."}
				}
			]
		}
	}`)

	records := NormalizeRun(run)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, map[string]string{"topic": "weather", "lang": "en"}, rec.Vars)
	assert.Equal(t, "openai:gpt-4", rec.Provider)
	assert.Equal(t, "Summarize", rec.PromptLabel)
	assert.True(t, rec.Pass)
	assert.Equal(t, 0.9, rec.Score)
	assert.Equal(t, 120.0, rec.LatencyMs)
	assert.Equal(t, 0.002, rec.Cost)
	assert.Equal(t, "Sunny.", rec.Output)
}

func TestNormalizeRunTopLevelResults(t *testing.T) {
	run := runWithPayload(t, `{
		"results": [
			{"provider": "anthropic:claude", "prompt": "Translate to French", "pass": true, "score": 1}
		]
	}`)

	records := NormalizeRun(run)
	require.Len(t, records, 1)
	assert.Equal(t, "anthropic:claude", records[0].Provider)
	assert.Equal(t, "Translate to French", records[0].PromptLabel)
	assert.True(t, records[0].Pass)
}

func TestNormalizeRunPassPriority(t *testing.T) {
	// An explicit success flag overrides a contradicting grading result.
	run := runWithPayload(t, `{
		"results": [
			{"success": false, "gradingResult": {"pass": true}},
			{"gradingResult": {"pass": true}},
			{"pass": true},
			{}
		]
	}`)

	records := NormalizeRun(run)
	require.Len(t, records, 4)
	assert.False(t, records[0].Pass)
	assert.True(t, records[1].Pass)
	assert.True(t, records[2].Pass)
	assert.False(t, records[3].Pass, "missing pass information defaults to false")
}

func TestNormalizeRunDefaults(t *testing.T) {
	run := runWithPayload(t, `{"results": [{}]}`)

	records := NormalizeRun(run)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Empty(t, rec.Vars)
	assert.NotNil(t, rec.Vars)
	assert.Equal(t, "", rec.Provider)
	assert.Equal(t, "", rec.PromptLabel)
	assert.False(t, rec.Pass)
	assert.Zero(t, rec.Score)
	assert.Zero(t, rec.LatencyMs)
	assert.Zero(t, rec.Cost)
}

func TestNormalizeRunPromptExcerptFallback(t *testing.T) {
	long := "Write a detailed, thorough and complete analysis of the following text"
	run := runWithPayload(t, `{
		"results": [
			{"prompt": {"raw": "`+long+`"}}
		]
	}`)

	records := NormalizeRun(run)
	require.Len(t, records, 1)
	assert.Equal(t, long[:40]+"...", records[0].PromptLabel)
}

func TestNormalizeRunPromptExcerptMultibyte(t *testing.T) {
	long := strings.Repeat("次のテキストを分析してください。", 5)
	run := runWithPayload(t, `{
		"results": [
			{"prompt": {"raw": "`+long+`"}}
		]
	}`)

	records := NormalizeRun(run)
	require.Len(t, records, 1)
	assert.True(t, utf8.ValidString(records[0].PromptLabel))
	assert.Equal(t, string([]rune(long)[:40])+"...", records[0].PromptLabel)
}

func TestNormalizeRunGradingScoreFallback(t *testing.T) {
	run := runWithPayload(t, `{
		"results": [
			{"gradingResult": {"pass": true, "score": 0.75, "reason": "matched rubric"}}
		]
	}`)

	records := NormalizeRun(run)
	require.Len(t, records, 1)
	assert.Equal(t, 0.75, records[0].Score)
	assert.Equal(t, "matched rubric", records[0].GradingDetail)
}

func TestNormalizeRunSkipsMalformedEntries(t *testing.T) {
	run := runWithPayload(t, `{
		"results": ["not-an-object", 42, {"success": true}]
	}`)

	records := NormalizeRun(run)
	require.Len(t, records, 1)
	assert.True(t, records[0].Pass)
}

func TestNormalizeRunUnknownShape(t *testing.T) {
	run := runWithPayload(t, `{"table": {"head": [], "body": []}}`)
	assert.Empty(t, NormalizeRun(run))

	assert.Nil(t, NormalizeRun(nil))
	assert.Nil(t, NormalizeRun(&types.RunRecord{}))
}

func TestNormalizeRunVarsStringification(t *testing.T) {
	run := runWithPayload(t, `{
		"results": [
			{"testCase": {"vars": {"count": 3, "strict": true}}}
		]
	}`)

	records := NormalizeRun(run)
	require.Len(t, records, 1)
	assert.Equal(t, map[string]string{"count": "3", "strict": "true"}, records[0].Vars)
}

func TestTokenTotal(t *testing.T) {
	run := runWithPayload(t, `{
		"results": {"stats": {"tokenUsage": {"total": 1234}}, "results": []}
	}`)
	assert.Equal(t, int64(1234), TokenTotal(run))

	// Typed stats win over the payload.
	run.Stats.TotalTokens = 99
	assert.Equal(t, int64(99), TokenTotal(run))

	// Runs predating token accounting report zero.
	old := runWithPayload(t, `{"results": []}`)
	assert.Equal(t, int64(0), TokenTotal(old))
}

func TestVarsSummary(t *testing.T) {
	assert.Equal(t, "", VarsSummary(nil))
	assert.Equal(t, "a=1", VarsSummary(map[string]string{"a": "1"}))
	assert.Equal(t, "a=1, b=2", VarsSummary(map[string]string{"b": "2", "a": "1"}))
	// Only the first two sorted keys are rendered.
	assert.Equal(t, "a=1, b=2", VarsSummary(map[string]string{"c": "3", "a": "1", "b": "2"}))
}

func TestResolvePath(t *testing.T) {
	payload := map[string]interface{}{
		"a": map[string]interface{}{"b": map[string]interface{}{"c": 7.0}},
	}

	v, ok := ResolvePath(payload, "a.b.c")
	require.True(t, ok)
	assert.Equal(t, 7.0, v)

	_, ok = ResolvePath(payload, "a.b.missing")
	assert.False(t, ok)
	_, ok = ResolvePath(payload, "a.b.c.d")
	assert.False(t, ok)
}
