// Package model contains domain models passed between layers.
package model

import "strconv"

// UnknownCategory groups records whose time value is absent or invalid.
const UnknownCategory = "unknown"

// ScoreRecord is a single persisted leaderboard entry.
// Timestamp is server-assigned epoch milliseconds; it is never client-supplied.
type ScoreRecord struct {
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Time      *int   `json:"time,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Category returns the game-duration category key for ranking.
func (r ScoreRecord) Category() string {
	if r.Time == nil {
		return UnknownCategory
	}
	return strconv.Itoa(*r.Time)
}

// Submission is a validated, sanitized score submission ready for the store.
type Submission struct {
	Name  string
	Score int
	Time  *int
}
