package docs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
)

func newTestFetcher(t *testing.T, srv *httptest.Server, opts ...Option) *GoogleFetcher {
	t.Helper()
	require.NoError(t, logger.Init())
	return NewGoogleFetcher(append([]Option{WithEndpoint(srv.URL), WithHTTPClient(srv.Client())}, opts...)...)
}

func TestFetchTextUsesExportURL(t *testing.T) {
	type seen struct{ path, query, auth string }
	got := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- seen{r.URL.Path, r.URL.RawQuery, r.Header.Get("Authorization")}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "\xEF\xBB\xBFWeekly report\r\nline two\r\n")
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv, WithToken("secret"))
	text, err := f.FetchText(context.Background(), "https://docs.google.com/document/d/abc123/edit?usp=sharing")
	require.NoError(t, err)

	s := <-got
	assert.Equal(t, "/document/d/abc123/export", s.path)
	assert.Equal(t, "format=txt", s.query)
	assert.Equal(t, "Bearer secret", s.auth)
	assert.Equal(t, "Weekly report\nline two", text)
}

func TestFetchTextStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{http.StatusNotFound, ErrNotFound},
		{http.StatusUnauthorized, ErrAccessDenied},
		{http.StatusForbidden, ErrAccessDenied},
		{http.StatusTooManyRequests, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := newTestFetcher(t, srv).FetchText(context.Background(), "https://docs.google.com/document/d/x")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.kind), "status %d: %v", tc.status, err)
		})
	}
}

func TestFetchTextSignInPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "<html>Sign in</html>")
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, srv).FetchText(context.Background(), "https://docs.google.com/document/d/private")
	assert.True(t, errors.Is(err, ErrAccessDenied))
}

func TestFetchTextTruncatesLargeDocuments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, strings.Repeat("é", 100))
	}))
	defer srv.Close()

	text, err := newTestFetcher(t, srv, WithMaxBytes(11)).FetchText(context.Background(), "https://docs.google.com/document/d/big")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 5), text)
}

func TestFetchTextTruncationKeepsTextAfterInvalidByte(t *testing.T) {
	body := "hello \xffworld " + strings.Repeat("a", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, body)
	}))
	defer srv.Close()

	text, err := newTestFetcher(t, srv, WithMaxBytes(1000)).FetchText(context.Background(), "https://docs.google.com/document/d/mixed")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "hello \uFFFDworld "), "got %q", text)
	assert.Equal(t, strings.Repeat("a", 1000-len("hello \xffworld ")), strings.TrimPrefix(text, "hello \uFFFDworld "))
}

func TestFetchTextTruncationDropsOnlyCutRune(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "x\xffy"+strings.Repeat("€", 10))
	}))
	defer srv.Close()

	// 3 leading bytes plus two full euro signs and one byte of the third.
	text, err := newTestFetcher(t, srv, WithMaxBytes(10)).FetchText(context.Background(), "https://docs.google.com/document/d/cut")
	require.NoError(t, err)
	assert.Equal(t, "x\uFFFDy€€", text)
}

func TestTrimPartialRune(t *testing.T) {
	assert.Equal(t, []byte("ab"), trimPartialRune([]byte("ab")))
	assert.Equal(t, []byte("a"), trimPartialRune([]byte("a\xe2\x82")))
	assert.Equal(t, []byte("a€"), trimPartialRune([]byte("a€")))
	assert.Equal(t, []byte("a\xff"), trimPartialRune([]byte("a\xff")))
	assert.Empty(t, trimPartialRune(nil))
}

func TestFetchTextNonGoogleURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notes.txt", r.URL.Path)
		_, _ = io.WriteString(w, "plain notes")
	}))
	defer srv.Close()

	f := newTestFetcher(t, srv)
	assert.Equal(t, srv.URL+"/notes.txt", f.ExportURL(srv.URL+"/notes.txt#top"))

	text, err := f.FetchText(context.Background(), srv.URL+"/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "plain notes", text)
}

func TestFetchTextConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	f := newTestFetcher(t, srv)
	srv.Close()

	_, err := f.FetchText(context.Background(), "https://docs.google.com/document/d/x")
	assert.True(t, errors.Is(err, ErrTransient))
}
