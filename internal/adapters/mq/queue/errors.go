package queue

import "github.com/okian/memocred/pkg/errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)
