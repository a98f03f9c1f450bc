package scoring

import "github.com/okian/memocred/pkg/errors"

// Sentinel error kinds for scoring clients.
var (
	// ErrTransient marks failures worth retrying: rate limits, timeouts, 5xx.
	ErrTransient = errors.New("transient scoring failure")
	// ErrInvalidReply marks replies that cannot be turned into a score.
	ErrInvalidReply = errors.New("invalid scoring reply")
	// ErrScoring marks any other permanent scoring failure.
	ErrScoring = errors.New("scoring failed")
)

// errPacing marks a rate limiter wait that cannot finish before the
// context deadline.
var errPacing = errors.New("rate limit wait exceeds deadline")

// Failure kinds recorded in metrics.
const (
	kindCancelled = "cancelled"
	kindTransient = "transient"
	kindInvalid   = "invalid_reply"
	kindPermanent = "permanent"
)

func classify(err error) string {
	switch {
	case errors.Is(err, ErrInvalidReply):
		return kindInvalid
	case errors.Is(err, ErrTransient):
		return kindTransient
	default:
		return kindPermanent
	}
}
