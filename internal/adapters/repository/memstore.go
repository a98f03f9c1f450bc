package repository

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/errors"
)

// MemoryStore is an in-memory Store safe for concurrent workers.
type MemoryStore struct {
	mu     sync.RWMutex
	scores map[string]model.CredibilityScore
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scores: make(map[string]model.CredibilityScore)}
}

func (s *MemoryStore) Record(_ context.Context, score model.CredibilityScore) (bool, error) {
	if score.Author == "" {
		return false, errors.Mark(errors.New("score without author"), ErrInvalidScore)
	}
	if score.Scored() && (math.IsNaN(score.Score) || score.Score < 0 || score.Score > 1) {
		return false, errors.Mark(errors.Newf("score %v outside [0,1]", score.Score), ErrInvalidScore)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.scores[score.Author]; exists {
		return false, nil
	}
	s.scores[score.Author] = score
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, author string) (model.CredibilityScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[author]
	if !ok {
		return model.CredibilityScore{}, errors.Wrapf(ErrNotFound, "author %s", author)
	}
	return score, nil
}

func (s *MemoryStore) All(_ context.Context) []model.CredibilityScore {
	out := s.snapshot()
	sort.Slice(out, func(i, j int) bool { return out[i].Author < out[j].Author })
	return out
}

func (s *MemoryStore) Ranked(_ context.Context, n int) []model.CredibilityScore {
	all := s.snapshot()
	out := all[:0]
	for _, sc := range all {
		if sc.Scored() {
			out = append(out, sc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Author < out[j].Author
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scores)
}

func (s *MemoryStore) snapshot() []model.CredibilityScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.CredibilityScore, 0, len(s.scores))
	for _, sc := range s.scores {
		out = append(out, sc)
	}
	return out
}
