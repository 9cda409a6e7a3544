package comparator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/evaldash/engine/types"
)

// diffConfigs computes the configuration delta across the compared runs
// (already in chronological order): per-pair added/removed/modified
// change records for prompts and assertions, plus scalar change
// tracking for prompt count, provider string, dataset size, and
// assertion count. Entities without a stable id cannot be matched
// reliably and are excluded from diffing.
func diffConfigs(runs []*types.RunRecord) types.ConfigDiff {
	diff := types.ConfigDiff{
		PromptChanges:    []types.ConfigChangeRecord{},
		AssertionChanges: []types.ConfigChangeRecord{},
	}

	for i := 1; i < len(runs); i++ {
		diff.PromptChanges = append(diff.PromptChanges,
			diffPrompts(runs[i-1].Config.Prompts, runs[i].Config.Prompts, i)...)
		diff.AssertionChanges = append(diff.AssertionChanges,
			diffAssertions(runs[i-1].Config.Assertions, runs[i].Config.Assertions, i)...)
	}

	diff.PromptCount = scalarDiff(runs, func(r *types.RunRecord) string {
		return strconv.Itoa(len(r.Config.Prompts))
	})
	diff.Provider = scalarDiff(runs, providerString)
	diff.DatasetRows = scalarDiff(runs, func(r *types.RunRecord) string {
		return strconv.Itoa(len(r.Config.Dataset))
	})
	diff.AssertionCount = scalarDiff(runs, func(r *types.RunRecord) string {
		return strconv.Itoa(len(r.Config.Assertions))
	})

	return diff
}

func diffPrompts(before, after []types.PromptConfig, runIndex int) []types.ConfigChangeRecord {
	oldByID := make(map[string]types.PromptConfig)
	for _, p := range before {
		if p.ID != "" {
			oldByID[p.ID] = p
		}
	}
	newByID := make(map[string]types.PromptConfig)
	for _, p := range after {
		if p.ID != "" {
			newByID[p.ID] = p
		}
	}

	var changes []types.ConfigChangeRecord
	for _, id := range sortedIDs(oldByID, newByID) {
		oldP, inOld := oldByID[id]
		newP, inNew := newByID[id]
		switch {
		case inOld && !inNew:
			changes = append(changes, types.ConfigChangeRecord{
				Entity: types.EntityPrompt, EntityID: id, Kind: types.ChangeRemoved,
				OldValue: oldP.Text, RunIndex: runIndex,
			})
		case !inOld && inNew:
			changes = append(changes, types.ConfigChangeRecord{
				Entity: types.EntityPrompt, EntityID: id, Kind: types.ChangeAdded,
				NewValue: newP.Text, RunIndex: runIndex,
			})
		case oldP.Text != newP.Text:
			changes = append(changes, types.ConfigChangeRecord{
				Entity: types.EntityPrompt, EntityID: id, Kind: types.ChangeModified,
				OldValue: oldP.Text, NewValue: newP.Text, RunIndex: runIndex,
			})
		}
	}
	return changes
}

func diffAssertions(before, after []types.AssertionConfig, runIndex int) []types.ConfigChangeRecord {
	oldByID := make(map[string]types.AssertionConfig)
	for _, a := range before {
		if a.ID != "" {
			oldByID[a.ID] = a
		}
	}
	newByID := make(map[string]types.AssertionConfig)
	for _, a := range after {
		if a.ID != "" {
			newByID[a.ID] = a
		}
	}

	var changes []types.ConfigChangeRecord
	for _, id := range sortedAssertionIDs(oldByID, newByID) {
		oldA, inOld := oldByID[id]
		newA, inNew := newByID[id]
		switch {
		case inOld && !inNew:
			changes = append(changes, types.ConfigChangeRecord{
				Entity: types.EntityAssertion, EntityID: id, Kind: types.ChangeRemoved,
				OldValue: renderAssertion(oldA), RunIndex: runIndex,
			})
		case !inOld && inNew:
			changes = append(changes, types.ConfigChangeRecord{
				Entity: types.EntityAssertion, EntityID: id, Kind: types.ChangeAdded,
				NewValue: renderAssertion(newA), RunIndex: runIndex,
			})
		case assertionContent(oldA) != assertionContent(newA):
			changes = append(changes, types.ConfigChangeRecord{
				Entity: types.EntityAssertion, EntityID: id, Kind: types.ChangeModified,
				OldValue: renderAssertion(oldA), NewValue: renderAssertion(newA), RunIndex: runIndex,
			})
		}
	}
	return changes
}

// assertionContent serializes the comparable content of an assertion.
func assertionContent(a types.AssertionConfig) string {
	b, err := json.Marshal(struct {
		Value     interface{} `json:"value"`
		Threshold float64     `json:"threshold"`
	}{a.Value, a.Threshold})
	if err != nil {
		return fmt.Sprintf("%v|%v", a.Value, a.Threshold)
	}
	return string(b)
}

// renderAssertion produces the human-readable before/after text carried
// by change records.
func renderAssertion(a types.AssertionConfig) string {
	value := fmt.Sprintf("%v", a.Value)
	if a.Threshold != 0 {
		return fmt.Sprintf("%s (threshold %g)", value, a.Threshold)
	}
	return value
}

// providerString renders a run's providers as a single comparable
// string, sorted and joined when there are several.
func providerString(r *types.RunRecord) string {
	providers := append([]string(nil), r.Config.Providers...)
	sort.Strings(providers)
	return strings.Join(providers, ", ")
}

func scalarDiff(runs []*types.RunRecord, render func(*types.RunRecord) string) types.ScalarDiff {
	d := types.ScalarDiff{Values: make([]string, 0, len(runs))}
	for _, run := range runs {
		d.Values = append(d.Values, render(run))
	}
	for i := 1; i < len(d.Values); i++ {
		if d.Values[i] != d.Values[0] {
			d.Changed = true
			break
		}
	}
	return d
}

func sortedIDs(a, b map[string]types.PromptConfig) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var ids []string
	for id := range a {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range b {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func sortedAssertionIDs(a, b map[string]types.AssertionConfig) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var ids []string
	for id := range a {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range b {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
