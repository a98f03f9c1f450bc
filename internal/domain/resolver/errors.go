package resolver

import (
	"context"

	"github.com/okian/memocred/pkg/errors"
)

// Fetch failure kinds. Fetchers mark their errors with these so the resolver
// can tell retryable failures apart.
var (
	ErrNotFound     = errors.New("document not found")
	ErrAccessDenied = errors.New("document access denied")
	ErrTransient    = errors.New("transient fetch failure")
)

// errPacing marks a rate limiter wait that cannot finish before the
// context deadline.
var errPacing = errors.New("rate limit wait exceeds deadline")

// cancelCause returns why a fetch was abandoned on the caller's behalf, or
// nil when err is a real fetch outcome.
func cancelCause(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	if errors.Is(err, errPacing) {
		return err
	}
	return nil
}

// reasonFor renders a short, stable failure reason for snapshots.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found: " + errors.Reason(err)
	case errors.Is(err, ErrAccessDenied):
		return "access_denied: " + errors.Reason(err)
	case errors.Is(err, ErrTransient):
		return "unavailable: " + errors.Reason(err)
	default:
		return "error: " + errors.Reason(err)
	}
}
