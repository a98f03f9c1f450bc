package model

import "time"

// MemoRecord is one decoded memo attributed to its sender.
type MemoRecord struct {
	Author    string
	Sequence  int64 // 1-based ordinal in the decoded ledger stream, gaps allowed
	Timestamp time.Time
	RawText   string

	TxHash      string
	MemoIndex   int
	LedgerIndex int64
	MemoType    string
}

// LinkReference points at a document link found in a memo. The memo is
// referenced weakly by sequence.
type LinkReference struct {
	SourceSequence int64
	Author         string
	URL            string // normalized
}

// ContentStatus is the outcome of resolving a link.
type ContentStatus string

const (
	ContentOK     ContentStatus = "ok"
	ContentFailed ContentStatus = "failed"
)

// ResolvedContent is the fetched text for a normalized URL. Failed entries
// carry empty text and a reason.
type ResolvedContent struct {
	URL       string
	Text      string
	FetchedAt time.Time
	Status    ContentStatus
	Reason    string
}

// OK reports whether the content was fetched successfully.
func (r ResolvedContent) OK() bool { return r.Status == ContentOK }

// Document is the concatenation of one or more consecutive memo fragments.
type Document struct {
	Author    string
	Sequences []int64
	StartedAt time.Time
	EndedAt   time.Time
	Text      string
}

// AuthorBundle holds everything known about one author, ready for scoring.
type AuthorBundle struct {
	Author    string
	Memos     []MemoRecord // sequence ascending
	Documents []Document   // sequence ascending
	Links     []LinkReference
	// ResolvedLinks is keyed by normalized URL.
	ResolvedLinks map[string]ResolvedContent
}

// FirstMemoAt returns the timestamp of the earliest memo.
func (b AuthorBundle) FirstMemoAt() time.Time {
	if len(b.Memos) == 0 {
		return time.Time{}
	}
	return b.Memos[0].Timestamp
}

// LastMemoAt returns the timestamp of the latest memo.
func (b AuthorBundle) LastMemoAt() time.Time {
	if len(b.Memos) == 0 {
		return time.Time{}
	}
	return b.Memos[len(b.Memos)-1].Timestamp
}

// ResolvedOK counts links that resolved successfully.
func (b AuthorBundle) ResolvedOK() int {
	n := 0
	for _, rc := range b.ResolvedLinks {
		if rc.OK() {
			n++
		}
	}
	return n
}
