package repository

import "github.com/okian/memocred/pkg/errors"

// Sentinel kinds for score store errors.
var (
	ErrNotFound     = errors.New("author not found")
	ErrInvalidScore = errors.New("invalid score")
)
