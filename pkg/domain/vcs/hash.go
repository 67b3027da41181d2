// Package vcs holds version control value objects shared by the notifier.
package vcs

import (
	"errors"
	"fmt"
	"strings"
)

// HashLength is the number of hex characters in a full commit id.
const HashLength = 40

// ErrMalformedHash is returned when text does not hold a full hex commit id.
var ErrMalformedHash = errors.New("malformed commit hash")

// Hash is a validated, lower-case, 40 character commit id.
// The zero value is not a valid hash; use ParseHash or ZeroHash.
type Hash struct {
	hex string
}

var zeroHash = Hash{hex: strings.Repeat("0", HashLength)}

// ParseHash validates s and returns it as a Hash.
func ParseHash(s string) (Hash, error) {
	if len(s) != HashLength {
		return Hash{}, fmt.Errorf("%w: %q has %d characters, want %d", ErrMalformedHash, s, len(s), HashLength)
	}
	for i := 0; i < len(s); i++ {
		if !isHex(s[i]) {
			return Hash{}, fmt.Errorf("%w: %q contains non-hex character %q", ErrMalformedHash, s, s[i])
		}
	}
	return Hash{hex: strings.ToLower(s)}, nil
}

// ZeroHash returns the all-zero hash. Legacy history records use it as a
// placeholder for "commit never recorded".
func ZeroHash() Hash {
	return zeroHash
}

// Hex returns the hash as 40 lower-case hex characters.
func (h Hash) Hex() string { return h.hex }

func (h Hash) String() string { return h.hex }

// IsZero reports whether h is the all-zero placeholder hash.
func (h Hash) IsZero() bool { return h == zeroHash }

// IsValid reports whether h was produced by ParseHash or ZeroHash.
func (h Hash) IsValid() bool { return len(h.hex) == HashLength }

// Abbrev returns the first n characters, or the full hash if n is out of range.
func (h Hash) Abbrev(n int) string {
	if n <= 0 || n >= len(h.hex) {
		return h.hex
	}
	return h.hex[:n]
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
