// Package ranking turns a raw score list into ranked views.
//
// Both functions are pure: they never mutate their input and yield the same
// output for the same input. Ties preserve the original relative order.
package ranking

import (
	"sort"

	"github.com/frostline/scoreboard/internal/domain/model"
)

// TopPerCategory groups records by their time category, keeps the top limit
// of each group by score descending, and returns the union sorted by score
// descending across all groups.
func TopPerCategory(records []model.ScoreRecord, limit int) []model.ScoreRecord {
	if len(records) == 0 || limit <= 0 {
		return []model.ScoreRecord{}
	}

	groups := make(map[string][]model.ScoreRecord)
	order := make([]string, 0)
	for _, r := range records {
		key := r.Category()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	out := make([]model.ScoreRecord, 0, len(records))
	for _, key := range order {
		g := sortedByScore(groups[key])
		if len(g) > limit {
			g = g[:limit]
		}
		out = append(out, g...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// All returns every record sorted by score descending, no truncation.
func All(records []model.ScoreRecord) []model.ScoreRecord {
	if len(records) == 0 {
		return []model.ScoreRecord{}
	}
	return sortedByScore(records)
}

// sortedByScore returns a score-descending stable-sorted copy.
func sortedByScore(records []model.ScoreRecord) []model.ScoreRecord {
	out := make([]model.ScoreRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
