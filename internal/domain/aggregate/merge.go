package aggregate

import (
	"strings"
	"time"

	"github.com/okian/memocred/internal/domain/model"
)

// MergeFragments joins consecutive memos of one author into documents.
// memos must belong to a single author and be sorted by sequence. Two memos
// join when their sequences are adjacent and, for a positive window, the
// second follows the first within window. A negative window disables merging.
// Texts are concatenated without a separator.
func MergeFragments(memos []model.MemoRecord, window time.Duration) []model.Document {
	docs := make([]model.Document, 0, len(memos))
	var sb strings.Builder

	flush := func(d *model.Document) {
		d.Text = sb.String()
		docs = append(docs, *d)
		sb.Reset()
	}

	var cur *model.Document
	var prev model.MemoRecord
	for i, m := range memos {
		if cur != nil && !joins(prev, m, window) {
			flush(cur)
			cur = nil
		}
		if cur == nil {
			cur = &model.Document{Author: m.Author, StartedAt: m.Timestamp}
		}
		cur.Sequences = append(cur.Sequences, m.Sequence)
		cur.EndedAt = m.Timestamp
		sb.WriteString(m.RawText)
		prev = memos[i]
	}
	if cur != nil {
		flush(cur)
	}
	return docs
}

func joins(prev, next model.MemoRecord, window time.Duration) bool {
	if window < 0 || next.Sequence != prev.Sequence+1 {
		return false
	}
	return window == 0 || next.Timestamp.Sub(prev.Timestamp) <= window
}
