package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/memocred/internal/domain/scoring"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"choices": []interface{}{
			map[string]interface{}{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	require.NoError(t, logger.Init())
	return NewClient("test-key", append([]Option{WithEndpoint(srv.URL), WithHTTPClient(srv.Client())}, opts...)...)
}

func TestRequestScoreSendsChatCompletion(t *testing.T) {
	type seen struct{ path, auth string }
	requests := make(chan seen, 1)
	bodies := make(chan chatRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cr chatRequest
		_ = json.NewDecoder(r.Body).Decode(&cr)
		requests <- seen{r.URL.Path, r.Header.Get("Authorization")}
		bodies <- cr
		_, _ = io.WriteString(w, completion(`{"score": 0.8, "rationale": "consistent, detailed analysis"}`))
	}))
	defer srv.Close()

	reply, err := newTestClient(t, srv, WithModel("test/model")).RequestScore(context.Background(), "evidence")
	require.NoError(t, err)
	assert.Equal(t, 0.8, reply.Score)
	assert.Equal(t, "consistent, detailed analysis", reply.Rationale)

	r := <-requests
	assert.Equal(t, "/chat/completions", r.path)
	assert.Equal(t, "Bearer test-key", r.auth)
	cr := <-bodies
	assert.Equal(t, "test/model", cr.Model)
	require.Len(t, cr.Messages, 1)
	assert.Equal(t, "user", cr.Messages[0].Role)
	assert.Equal(t, "evidence", cr.Messages[0].Content)
}

func TestRequestScoreStatusClassification(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{http.StatusTooManyRequests, scoring.ErrTransient},
		{http.StatusBadGateway, scoring.ErrTransient},
		{http.StatusUnauthorized, scoring.ErrScoring},
		{http.StatusBadRequest, scoring.ErrScoring},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, `{"error":{"message":"nope"}}`)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).RequestScore(context.Background(), "evidence")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "status %d: %v", tc.status, err)
		})
	}
}

func TestRequestScoreProviderErrorInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error":{"code":502,"message":"upstream overloaded"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).RequestScore(context.Background(), "evidence")
	assert.True(t, errors.Is(err, scoring.ErrTransient))
}

func TestRequestScoreEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).RequestScore(context.Background(), "evidence")
	assert.True(t, errors.Is(err, scoring.ErrInvalidReply))
}

func TestRequestScoreWithoutKey(t *testing.T) {
	require.NoError(t, logger.Init())
	_, err := NewClient("").RequestScore(context.Background(), "evidence")
	assert.True(t, errors.Is(err, scoring.ErrScoring))
}

func TestParseReply(t *testing.T) {
	t.Run("fenced json", func(t *testing.T) {
		r, err := ParseReply("Here you go:\n```json\n{\"score\": 0.35, \"rationale\": \"thin {evidence}\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, 0.35, r.Score)
		assert.Equal(t, "thin {evidence}", r.Rationale)
	})

	t.Run("above one is rejected", func(t *testing.T) {
		for _, in := range []string{`{"score": 1.5, "rationale": "strong"}`, `{"score": 2}`, `{"score": 72}`} {
			r, err := ParseReply(in)
			assert.True(t, errors.Is(err, scoring.ErrInvalidReply), "input %s gave %v", in, r.Score)
		}
	})

	t.Run("negative is rejected", func(t *testing.T) {
		_, err := ParseReply(`{"score": -0.1}`)
		assert.True(t, errors.Is(err, scoring.ErrInvalidReply))
	})

	t.Run("prose before object", func(t *testing.T) {
		r, err := ParseReply(`I would rate {this author} as follows {"score": 1}`)
		require.NoError(t, err)
		assert.Equal(t, 1.0, r.Score)
		assert.NotEmpty(t, r.Rationale)
	})

	t.Run("no object", func(t *testing.T) {
		_, err := ParseReply("Credibility: 80/100")
		assert.True(t, errors.Is(err, scoring.ErrInvalidReply))
	})

	t.Run("missing score", func(t *testing.T) {
		_, err := ParseReply(`{"rationale": "no number"}`)
		assert.True(t, errors.Is(err, scoring.ErrInvalidReply))
	})

	t.Run("out of range", func(t *testing.T) {
		_, err := ParseReply(`{"score": 250}`)
		assert.True(t, errors.Is(err, scoring.ErrInvalidReply))
	})

	t.Run("wrong type", func(t *testing.T) {
		_, err := ParseReply(`{"score": "high"}`)
		assert.True(t, errors.Is(err, scoring.ErrInvalidReply))
	})
}
