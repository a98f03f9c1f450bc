// Package api serves the run-time monitoring endpoints of a pipeline run.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/memocred/internal/app"
	"github.com/okian/memocred/internal/domain/model"
)

// StatsProvider exposes run progress.
type StatsProvider interface {
	Stats() app.Stats
}

// ScoresProvider exposes the scores recorded so far.
type ScoresProvider interface {
	TopScores(ctx context.Context, n int) []model.CredibilityScore
	AuthorScore(ctx context.Context, author string) (model.CredibilityScore, error)
}

// Server wires the monitoring routes.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	scoresHandler *ScoresHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// limit accepted by /scores.
func NewServer(stats StatsProvider, scores ScoresProvider, maxLimit int) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(stats),
		scoresHandler: NewScoresHandler(scores, maxLimit),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/scores", MetricsMiddleware(s.scoresHandler.HandleTopScores, "scores"))
	mux.HandleFunc("/scores/", MetricsMiddleware(s.scoresHandler.HandleAuthorScore, "author_score"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
