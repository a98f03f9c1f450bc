// Package repository holds the terminal credibility score of each author for
// the duration of a run.
package repository

import (
	"context"

	"github.com/okian/memocred/internal/domain/model"
)

// Store provides read/write access to scores.
type Store interface {
	// Record stores the terminal score for an author. The first score wins;
	// Record returns false when the author already has one.
	Record(ctx context.Context, score model.CredibilityScore) (bool, error)

	// Get returns the score of an author or ErrNotFound.
	Get(ctx context.Context, author string) (model.CredibilityScore, error)

	// All returns every score ordered by author.
	All(ctx context.Context) []model.CredibilityScore

	// Ranked returns up to n scored authors ordered by score desc, then
	// author asc. n <= 0 returns all of them.
	Ranked(ctx context.Context, n int) []model.CredibilityScore

	// Count returns the number of authors with a score.
	Count(ctx context.Context) int
}
