package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/memocred/internal/adapters/repository"
	"github.com/okian/memocred/internal/domain/types"
	"github.com/okian/memocred/pkg/errors"
)

// rankedScore is one row of GET /scores.
type rankedScore struct {
	Rank int `json:"rank"`
	types.ScoreEntry
}

// ScoresHandler serves recorded credibility scores.
type ScoresHandler struct {
	provider ScoresProvider
	maxLimit int
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(provider ScoresProvider, maxLimit int) *ScoresHandler {
	if maxLimit < 1 {
		maxLimit = 100
	}
	return &ScoresHandler{provider: provider, maxLimit: maxLimit}
}

// HandleTopScores handles GET /scores?limit=N. Only scored authors are
// listed, best first.
func (h *ScoresHandler) HandleTopScores(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", errors.Wrapf(ErrBadRequest, "limit %q", raw))
			return
		}
		n = v
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded",
			errors.Wrapf(ErrBadRequest, "limit %d above %d", n, h.maxLimit))
		return
	}

	scores := h.provider.TopScores(r.Context(), n)
	out := make([]rankedScore, 0, len(scores))
	for i, s := range scores {
		out = append(out, rankedScore{Rank: i + 1, ScoreEntry: types.NewScoreEntry(s)})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleAuthorScore handles GET /scores/{author}.
func (h *ScoresHandler) HandleAuthorScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	author := strings.TrimPrefix(r.URL.Path, "/scores/")
	if author == "" || strings.Contains(author, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	score, err := h.provider.AuthorScore(r.Context(), author)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, types.NewScoreEntry(score))
}
