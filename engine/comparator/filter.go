package comparator

import (
	"strings"

	"github.com/evaldash/engine/types"
)

func matchesFilter(row types.ComparisonRow, filter types.FilterType) bool {
	switch filter {
	case types.FilterAll, "":
		return true
	case types.FilterRegressions:
		return row.Status == types.StatusRegressed
	case types.FilterImprovements:
		return row.Status == types.StatusImproved
	case types.FilterChanges:
		return row.Status == types.StatusChanged
	case types.FilterVolatile:
		return row.Status == types.StatusVolatile
	case types.FilterConsistentFailures:
		return failsEveryRun(row)
	default:
		return false
	}
}

// failsEveryRun reports whether the test failed in every compared run;
// sentinel absent outcomes count as failures.
func failsEveryRun(row types.ComparisonRow) bool {
	for _, o := range row.Outcomes {
		if o.Pass {
			return false
		}
	}
	return len(row.Outcomes) > 0
}

func matchesQuery(row types.ComparisonRow, query string) bool {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(row.PromptLabel), query) {
		return true
	}
	for k, v := range row.Vars {
		if strings.Contains(strings.ToLower(k+"="+v), query) {
			return true
		}
	}
	return false
}
