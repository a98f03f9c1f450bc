package model

import "time"

// Unscored is the score value of an author whose evaluation did not complete.
const Unscored = -1.0

// ScoreStatus tells scored and unscored results apart.
type ScoreStatus string

const (
	StatusScored   ScoreStatus = "scored"
	StatusUnscored ScoreStatus = "unscored"
)

// CredibilityScore is the terminal result for one author.
type CredibilityScore struct {
	Author        string
	Score         float64 // in [0,1], or Unscored
	Status        ScoreStatus
	Rationale     string
	EvidenceCount int
	MemoCount     int
	FirstMemoAt   time.Time
	LastMemoAt    time.Time
	TimespanDays  int
}

// Scored reports whether the score carries a real value.
func (s CredibilityScore) Scored() bool { return s.Status == StatusScored }

// TimespanDays returns the whole days between first and last.
func TimespanDays(first, last time.Time) int {
	if last.Before(first) {
		return 0
	}
	return int(last.Sub(first) / (24 * time.Hour))
}
