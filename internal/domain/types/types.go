// Package types contains the wire types written to output snapshots.
package types

import (
	"sort"
	"time"

	"github.com/okian/memocred/internal/domain/model"
)

// TimeLayout is used for every timestamp in a snapshot.
const TimeLayout = time.RFC3339

// MemoSnapshot lists every decoded memo with its linked content.
type MemoSnapshot struct {
	Token string      `json:"token" yaml:"token"`
	Memos []MemoEntry `json:"memos" yaml:"memos"`
}

// MemoEntry is one memo in a MemoSnapshot. LinkedContent holds null for
// links that failed to resolve.
type MemoEntry struct {
	Author        string             `json:"author" yaml:"author"`
	Sequence      int64              `json:"sequence" yaml:"sequence"`
	Timestamp     string             `json:"timestamp" yaml:"timestamp"`
	RawText       string             `json:"raw_text" yaml:"raw_text"`
	TxHash        string             `json:"tx_hash" yaml:"tx_hash"`
	MemoIndex     int                `json:"memo_index" yaml:"memo_index"`
	LedgerIndex   int64              `json:"ledger_index" yaml:"ledger_index"`
	LinkedContent map[string]*string `json:"linked_content" yaml:"linked_content"`
	LinkStatus    map[string]string  `json:"link_status" yaml:"link_status"`
}

// CredibilitySnapshot lists the terminal score of every author.
type CredibilitySnapshot struct {
	Token         string       `json:"token" yaml:"token"`
	Model         string       `json:"model" yaml:"model"`
	TotalAuthors  int          `json:"total_authors" yaml:"total_authors"`
	ScoredAuthors int          `json:"scored_authors" yaml:"scored_authors"`
	AverageScore  *float64     `json:"average_score" yaml:"average_score"`
	Scores        []ScoreEntry `json:"scores" yaml:"scores"`
}

// ScoreEntry is one author's score. Unscored authors carry -1.
type ScoreEntry struct {
	Author        string  `json:"author" yaml:"author"`
	Score         float64 `json:"score" yaml:"score"`
	Status        string  `json:"status" yaml:"status"`
	Rationale     string  `json:"rationale" yaml:"rationale"`
	EvidenceCount int     `json:"evidence_count" yaml:"evidence_count"`
	MemoCount     int     `json:"memo_count" yaml:"memo_count"`
	FirstMemoAt   string  `json:"first_memo_at" yaml:"first_memo_at"`
	LastMemoAt    string  `json:"last_memo_at" yaml:"last_memo_at"`
	TimespanDays  int     `json:"timespan_days" yaml:"timespan_days"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// NewMemoSnapshot flattens bundles into memo entries ordered by author then
// sequence. Each memo lists the links found in the document it belongs to.
func NewMemoSnapshot(token string, bundles []model.AuthorBundle) MemoSnapshot {
	snap := MemoSnapshot{Token: token, Memos: []MemoEntry{}}
	for _, b := range bundles {
		linksBySeq := linksByMemo(b)
		for _, m := range b.Memos {
			e := MemoEntry{
				Author:        m.Author,
				Sequence:      m.Sequence,
				Timestamp:     formatTime(m.Timestamp),
				RawText:       m.RawText,
				TxHash:        m.TxHash,
				MemoIndex:     m.MemoIndex,
				LedgerIndex:   m.LedgerIndex,
				LinkedContent: map[string]*string{},
				LinkStatus:    map[string]string{},
			}
			for _, url := range linksBySeq[m.Sequence] {
				rc := b.ResolvedLinks[url]
				if rc.OK() {
					text := rc.Text
					e.LinkedContent[url] = &text
					e.LinkStatus[url] = string(model.ContentOK)
				} else {
					e.LinkedContent[url] = nil
					e.LinkStatus[url] = string(model.ContentFailed)
				}
			}
			snap.Memos = append(snap.Memos, e)
		}
	}
	sort.SliceStable(snap.Memos, func(i, j int) bool {
		if snap.Memos[i].Author != snap.Memos[j].Author {
			return snap.Memos[i].Author < snap.Memos[j].Author
		}
		return snap.Memos[i].Sequence < snap.Memos[j].Sequence
	})
	return snap
}

// linksByMemo attaches each link to the first memo of the document that
// contains it.
func linksByMemo(b model.AuthorBundle) map[int64][]string {
	out := make(map[int64][]string)
	for _, ref := range b.Links {
		out[ref.SourceSequence] = append(out[ref.SourceSequence], ref.URL)
	}
	return out
}

// ResolvedContents recovers successfully resolved links from a snapshot so a
// later run can seed its cache. Failed links are left out and fetched again.
func (s MemoSnapshot) ResolvedContents() []model.ResolvedContent {
	seen := make(map[string]struct{})
	var out []model.ResolvedContent
	for _, m := range s.Memos {
		for url, text := range m.LinkedContent {
			if text == nil || m.LinkStatus[url] != string(model.ContentOK) {
				continue
			}
			if _, dup := seen[url]; dup {
				continue
			}
			seen[url] = struct{}{}
			out = append(out, model.ResolvedContent{URL: url, Text: *text, Status: model.ContentOK})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// NewCredibilitySnapshot sorts scores by author and computes the average
// over scored authors. The average is nil when nobody was scored.
func NewCredibilitySnapshot(token, modelName string, scores []model.CredibilityScore) CredibilitySnapshot {
	snap := CredibilitySnapshot{
		Token:        token,
		Model:        modelName,
		TotalAuthors: len(scores),
		Scores:       make([]ScoreEntry, 0, len(scores)),
	}
	sum := 0.0
	for _, s := range scores {
		if s.Scored() {
			snap.ScoredAuthors++
			sum += s.Score
		}
		snap.Scores = append(snap.Scores, NewScoreEntry(s))
	}
	if snap.ScoredAuthors > 0 {
		avg := sum / float64(snap.ScoredAuthors)
		snap.AverageScore = &avg
	}
	sort.SliceStable(snap.Scores, func(i, j int) bool { return snap.Scores[i].Author < snap.Scores[j].Author })
	return snap
}

// NewScoreEntry converts a domain score into its wire form.
func NewScoreEntry(s model.CredibilityScore) ScoreEntry {
	return ScoreEntry{
		Author:        s.Author,
		Score:         s.Score,
		Status:        string(s.Status),
		Rationale:     s.Rationale,
		EvidenceCount: s.EvidenceCount,
		MemoCount:     s.MemoCount,
		FirstMemoAt:   formatTime(s.FirstMemoAt),
		LastMemoAt:    formatTime(s.LastMemoAt),
		TimespanDays:  s.TimespanDays,
	}
}
