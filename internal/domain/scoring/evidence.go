package scoring

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/okian/memocred/internal/domain/model"
)

const documentSeparator = "\n---\n"

const promptTemplate = `Based on the following set of memos from a single user, assess their credibility regarding %s. Consider factors like:
- Quality and depth of analysis
- Consistency in their views
- Professional knowledge demonstrated
- Objectivity and lack of bias

Recognize that what they are saying is very likely not directly related to the token.

Reply with a single JSON object and nothing else:
{"score": <number between 0 and 1>, "rationale": "<brief explanation of the score>"}

Author: %s
Memos: %d, from %s to %s

User's memos:
`

// Summary renders the evidence submitted for one author: the prompt, the
// merged documents in sequence order and every linked document. The result
// is cut to maxChars runes when maxChars > 0.
func Summary(token string, b model.AuthorBundle, maxChars int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, promptTemplate, token, b.Author, len(b.Memos),
		b.FirstMemoAt().Format("2006-01-02"), b.LastMemoAt().Format("2006-01-02"))

	for i, d := range b.Documents {
		if i > 0 {
			sb.WriteString(documentSeparator)
		}
		sb.WriteString(d.Text)
	}
	for _, ref := range b.Links {
		rc, ok := b.ResolvedLinks[ref.URL]
		if !ok || !rc.OK() {
			fmt.Fprintf(&sb, "\n[linked document unavailable: %s]", ref.URL)
			continue
		}
		fmt.Fprintf(&sb, "\n--- Linked Document %s ---\n%s", ref.URL, rc.Text)
	}
	return truncateRunes(sb.String(), maxChars)
}

// EvidenceCount is the number of merged documents plus resolved links.
func EvidenceCount(b model.AuthorBundle) int {
	return len(b.Documents) + b.ResolvedOK()
}

func truncateRunes(s string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(s) <= maxChars {
		return s
	}
	n := 0
	for i := range s {
		if n == maxChars {
			return s[:i]
		}
		n++
	}
	return s
}
