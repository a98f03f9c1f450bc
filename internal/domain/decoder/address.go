package decoder

import (
	"bytes"
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

// rippleAlphabet is the base58 alphabet used by classic ledger addresses.
var rippleAlphabet = base58.NewAlphabet("rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz")

const (
	addressLen     = 25 // version + 20 byte account id + 4 byte checksum
	accountVersion = 0x00
)

// ValidAddress reports whether s is a classic address with a valid checksum.
func ValidAddress(s string) bool {
	if len(s) < 25 || len(s) > 35 || s[0] != 'r' {
		return false
	}
	raw, err := base58.DecodeAlphabet(s, rippleAlphabet)
	if err != nil || len(raw) != addressLen || raw[0] != accountVersion {
		return false
	}
	first := sha256.Sum256(raw[:21])
	second := sha256.Sum256(first[:])
	return bytes.Equal(second[:4], raw[21:])
}
