package decoder

import "github.com/okian/memocred/pkg/errors"

// ErrDecode marks a memo field that could not be turned into text. It is
// reported through skip hooks only.
var ErrDecode = errors.New("memo decode failed")
