package comparator

import (
	"sort"
	"strings"

	"github.com/evaldash/engine/types"
)

// identityKey builds the canonical composite key that identifies the
// same logical test across runs: the variable mapping serialized with
// sorted keys, the provider id, and the prompt label. Matching by this
// key instead of list position keeps rows aligned when tests are added
// or removed between runs.
func identityKey(rec types.NormalizedTestRecord) string {
	keys := make([]string, 0, len(rec.Vars))
	for k := range rec.Vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(rec.Vars[k])
		b.WriteByte('\x1e')
	}
	b.WriteByte('\x1f')
	b.WriteString(rec.Provider)
	b.WriteByte('\x1f')
	b.WriteString(rec.PromptLabel)
	return b.String()
}

// alignRecords groups normalized records from N chronologically ordered
// runs into comparison rows. Every row carries exactly one outcome per
// run; runs lacking a matching test receive the sentinel absent outcome
// (pass=false, score=0). Rows are emitted in order of first appearance,
// which is stable but not otherwise significant.
func alignRecords(runRecords [][]types.NormalizedTestRecord) []types.ComparisonRow {
	runCount := len(runRecords)
	rows := make(map[string]*types.ComparisonRow)
	var order []string

	for runIdx, records := range runRecords {
		for _, rec := range records {
			key := identityKey(rec)
			row, ok := rows[key]
			if !ok {
				outcomes := make([]types.TestOutcome, runCount)
				for i := range outcomes {
					outcomes[i] = types.TestOutcome{Absent: true}
				}
				vars := make(map[string]string, len(rec.Vars))
				for k, v := range rec.Vars {
					vars[k] = v
				}
				row = &types.ComparisonRow{
					Key:         key,
					Vars:        vars,
					Provider:    rec.Provider,
					PromptLabel: rec.PromptLabel,
					Outcomes:    outcomes,
				}
				rows[key] = row
				order = append(order, key)
			}
			row.Outcomes[runIdx] = types.TestOutcome{
				Pass:      rec.Pass,
				Score:     rec.Score,
				LatencyMs: rec.LatencyMs,
				Cost:      rec.Cost,
				Output:    rec.Output,
			}
		}
	}

	aligned := make([]types.ComparisonRow, 0, len(order))
	for _, key := range order {
		aligned = append(aligned, *rows[key])
	}
	return aligned
}
