package ledger

import "github.com/okian/memocred/pkg/errors"

// Sentinel kinds for ledger errors.
var (
	// ErrLedgerUnavailable means the ledger could not be read after retries
	// or while the breaker is open. It aborts the run.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	ErrInvalidResponse   = errors.New("invalid ledger response")
	ErrInvalidQuery      = errors.New("invalid ledger query")
)

// transientCodes are rippled error tokens worth retrying.
var transientCodes = map[string]bool{
	"slowDown":  true,
	"tooBusy":   true,
	"noNetwork": true,
	"noCurrent": true,
	"noClosed":  true,
	"internal":  true,
}
