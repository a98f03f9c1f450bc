package api

import "github.com/okian/memocred/pkg/errors"

// Sentinel kinds for API errors.
var (
	ErrServe      = errors.New("monitoring server failed")
	ErrBadRequest = errors.New("bad request")
)
