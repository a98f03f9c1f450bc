package llm

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/okian/memocred/internal/domain/scoring"
	"github.com/okian/memocred/pkg/errors"
)

// replySchema accepts a score in [0,1], matching the prompt. Anything outside
// that range is an invalid reply rather than something to rescale.
const replySchema = `{
  "type": "object",
  "required": ["score"],
  "properties": {
    "score": {"type": "number", "minimum": 0, "maximum": 1},
    "rationale": {"type": "string"}
  }
}`

var compiledReplySchema = mustSchema(replySchema)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(err)
	}
	return schema
}

type replyJSON struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// ParseReply extracts the JSON object from a model answer and validates it.
func ParseReply(content string) (scoring.Reply, error) {
	obj, ok := extractObject(content)
	if !ok {
		return scoring.Reply{}, errors.Mark(errors.Newf("no JSON object in reply: %q", clip(content)), scoring.ErrInvalidReply)
	}

	res, err := compiledReplySchema.Validate(gojsonschema.NewBytesLoader(obj))
	if err != nil {
		return scoring.Reply{}, errors.Mark(errors.Wrap(err, "decode reply"), scoring.ErrInvalidReply)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return scoring.Reply{}, errors.Mark(errors.Newf("reply does not match schema: %s", strings.Join(msgs, "; ")), scoring.ErrInvalidReply)
	}

	var r replyJSON
	if err := json.Unmarshal(obj, &r); err != nil {
		return scoring.Reply{}, errors.Mark(errors.Wrap(err, "decode reply"), scoring.ErrInvalidReply)
	}
	rationale := strings.TrimSpace(r.Rationale)
	if rationale == "" {
		rationale = strings.TrimSpace(content)
	}
	return scoring.Reply{Score: r.Score, Rationale: rationale}, nil
}

// extractObject returns the first balanced JSON object in s, skipping code
// fences and prose around it.
func extractObject(s string) ([]byte, bool) {
	b := []byte(s)
	for start := 0; start < len(b); start++ {
		if b[start] != '{' {
			continue
		}
		end := closingBrace(b, start)
		if end < 0 {
			return nil, false
		}
		if candidate := b[start : end+1]; json.Valid(candidate) {
			return candidate, true
		}
	}
	return nil, false
}

// closingBrace returns the index of the brace closing b[start], or -1.
func closingBrace(b []byte, start int) int {
	depth, inString, escaped := 0, false, false
	for i := start; i < len(b); i++ {
		c := b[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func clip(s string) string {
	const limit = 120
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return s
}
