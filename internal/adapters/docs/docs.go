// Package docs fetches the plain text of linked documents.
package docs

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/okian/memocred/internal/domain/links"
	"github.com/okian/memocred/internal/domain/resolver"
	"github.com/okian/memocred/pkg/errors"
	"github.com/okian/memocred/pkg/logger"
)

const (
	defaultEndpoint = "https://docs.google.com"
	defaultMaxBytes = 5 << 20
)

// Failure kinds shared with the resolver so it can decide what to retry.
var (
	ErrNotFound     = resolver.ErrNotFound
	ErrAccessDenied = resolver.ErrAccessDenied
	ErrTransient    = resolver.ErrTransient
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Option configures a GoogleFetcher.
type Option func(*GoogleFetcher)

// WithEndpoint overrides the docs base URL.
func WithEndpoint(endpoint string) Option {
	return func(f *GoogleFetcher) {
		if endpoint != "" {
			f.endpoint = strings.TrimRight(endpoint, "/")
		}
	}
}

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(f *GoogleFetcher) { f.token = token }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *GoogleFetcher) {
		if hc != nil {
			f.http = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *GoogleFetcher) {
		if d > 0 {
			f.http.Timeout = d
		}
	}
}

// WithMaxBytes caps the size of a fetched document.
func WithMaxBytes(n int64) Option {
	return func(f *GoogleFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(f *GoogleFetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// GoogleFetcher reads Google Docs through their plain-text export. Other
// URLs are fetched as they are and must serve text.
type GoogleFetcher struct {
	endpoint string
	token    string
	maxBytes int64
	http     *http.Client
	log      logger.Logger
}

// NewGoogleFetcher creates a fetcher with defaults.
func NewGoogleFetcher(opts ...Option) *GoogleFetcher {
	f := &GoogleFetcher{
		endpoint: defaultEndpoint,
		maxBytes: defaultMaxBytes,
		http:     &http.Client{Timeout: 60 * time.Second},
		log:      logger.Get().Named("docs"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ExportURL returns the URL actually requested for a document link.
func (f *GoogleFetcher) ExportURL(rawURL string) string {
	normalized := links.Normalize(rawURL)
	if id, ok := links.GoogleDocID(normalized); ok {
		return f.endpoint + "/document/d/" + id + "/export?format=txt"
	}
	return normalized
}

// FetchText implements resolver.Fetcher.
func (f *GoogleFetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	target := f.ExportURL(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", errors.Wrapf(err, "build request for %s", rawURL)
	}
	req.Header.Set("Accept", "text/plain")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrap(context.Cause(ctx), "fetch cancelled")
		}
		return "", errors.Mark(errors.Wrapf(err, "fetch %s", rawURL), ErrTransient)
	}
	defer resp.Body.Close()

	if err := classify(resp.StatusCode); err != nil {
		f.log.Debug(ctx, "document fetch rejected",
			logger.String("url", rawURL),
			logger.Int("status", resp.StatusCode))
		return "", err
	}

	// A private document answers the export with a sign-in page.
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt == "text/html" {
		return "", errors.Mark(errors.Newf("%s served html instead of text", rawURL), ErrAccessDenied)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "read %s", rawURL), ErrTransient)
	}
	if int64(len(body)) > f.maxBytes {
		body = trimPartialRune(body[:f.maxBytes])
		f.log.Warn(ctx, "document truncated", logger.String("url", rawURL), logger.Int64("max_bytes", f.maxBytes))
	}

	body = bytes.TrimPrefix(body, utf8BOM)
	if !utf8.Valid(body) {
		body = bytes.ToValidUTF8(body, []byte("�"))
	}
	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}

// trimPartialRune drops a multi-byte sequence cut short at the end of b.
// Invalid bytes elsewhere are left for the ToValidUTF8 pass.
func trimPartialRune(b []byte) []byte {
	for back := 1; back < utf8.UTFMax && back <= len(b); back++ {
		i := len(b) - back
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if !utf8.FullRune(b[i:]) {
			return b[:i]
		}
		return b
	}
	return b
}

func classify(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusNotFound || status == http.StatusGone:
		return errors.Mark(errors.Newf("status %d", status), ErrNotFound)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Mark(errors.Newf("status %d", status), ErrAccessDenied)
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return errors.Mark(errors.Newf("status %d", status), ErrTransient)
	default:
		return errors.Newf("unexpected status %d", status)
	}
}
