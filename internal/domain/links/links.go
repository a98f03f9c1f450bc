// Package links finds document links in memo text.
package links

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/okian/memocred/internal/domain/model"
	"github.com/okian/memocred/pkg/errors"
)

// DefaultPattern matches Google Docs document links.
const DefaultPattern = `https://docs\.google\.com/document/[^\s<>"]+`

// trailingPunct is stripped from the end of a match; memos often end a
// sentence right after a link.
const trailingPunct = ".,;:!?)]}>'\"”’"

var googleDocID = regexp.MustCompile(`^/document/(?:u/\d+/)?d/([A-Za-z0-9_-]+)`)

// Extractor is a pure, reusable link finder.
type Extractor struct {
	patterns []*regexp.Regexp
}

// New compiles the default pattern plus any extra expressions.
func New(extra ...string) (*Extractor, error) {
	e := &Extractor{patterns: []*regexp.Regexp{regexp.MustCompile(DefaultPattern)}}
	for _, expr := range extra {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.Wrapf(err, "compile link pattern %q", expr)
		}
		e.patterns = append(e.patterns, re)
	}
	return e, nil
}

// Extract returns the distinct normalized links of one memo in order of
// first occurrence.
func (e *Extractor) Extract(memo model.MemoRecord) []model.LinkReference {
	return e.ExtractText(memo.Author, memo.Sequence, memo.RawText)
}

// ExtractText is Extract for arbitrary text attributed to author and seq.
func (e *Extractor) ExtractText(author string, seq int64, text string) []model.LinkReference {
	type hit struct {
		at  int
		url string
	}
	var hits []hit
	for _, re := range e.patterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			raw := strings.TrimRight(text[loc[0]:loc[1]], trailingPunct)
			if raw == "" {
				continue
			}
			hits = append(hits, hit{at: loc[0], url: Normalize(raw)})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].at < hits[j].at })

	seen := make(map[string]struct{}, len(hits))
	refs := make([]model.LinkReference, 0, len(hits))
	for _, h := range hits {
		if _, dup := seen[h.url]; dup {
			continue
		}
		seen[h.url] = struct{}{}
		refs = append(refs, model.LinkReference{SourceSequence: seq, Author: author, URL: h.url})
	}
	return refs
}

// Normalize maps equivalent URLs to one cache key. Google Docs links collapse
// to https://docs.google.com/document/d/<id>; other URLs get a lower-case
// scheme and host and lose their fragment.
func Normalize(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return strings.TrimSpace(raw)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.Host == "docs.google.com" {
		if m := googleDocID.FindStringSubmatch(u.Path); m != nil {
			return "https://docs.google.com/document/d/" + m[1]
		}
	}
	return u.String()
}

// GoogleDocID returns the document id of a normalized Google Docs URL.
func GoogleDocID(normalized string) (string, bool) {
	const prefix = "https://docs.google.com/document/d/"
	if !strings.HasPrefix(normalized, prefix) {
		return "", false
	}
	id := strings.TrimPrefix(normalized, prefix)
	return id, id != "" && !strings.ContainsAny(id, "/?#")
}
