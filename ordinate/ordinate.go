// Package ordinate implements the total order used throughout the CU to
// compare positions in a process's message log.
//
// An Ordinate is either a pure integer string ("0", "42", "1000000") or a
// composite string of the form "block:ordinate:hash". Comparison is
// big-integer-then-suffix: the numeric prefix is compared as an arbitrary
// precision integer, and only on a tie does the remaining suffix break it
// lexicographically. This lets a scheduler unit mix plain sequence numbers
// with block-qualified ones without the CU caring which scheme a given
// process uses.
package ordinate

import (
	"math/big"
	"strings"
)

// Ordinate is a lexicographically-comparable process log position.
type Ordinate string

// Zero is the cold-start ordinate: no evaluations applied yet.
const Zero Ordinate = "0"

// Compare returns -1, 0, or 1 the way bytes.Compare does, but under the
// big-integer-then-suffix order instead of raw byte order.
func Compare(a, b Ordinate) int {
	an, as := split(a)
	bn, bs := split(b)
	if c := an.Cmp(bn); c != 0 {
		return c
	}
	return strings.Compare(as, bs)
}

// Before reports whether a sorts strictly before b.
func Before(a, b Ordinate) bool { return Compare(a, b) < 0 }

// After reports whether a sorts strictly after b.
func After(a, b Ordinate) bool { return Compare(a, b) > 0 }

// LessEq reports whether a sorts at or before b.
func LessEq(a, b Ordinate) bool { return Compare(a, b) <= 0 }

// Max returns the greater of a and b.
func Max(a, b Ordinate) Ordinate {
	if After(a, b) {
		return a
	}
	return b
}

// split separates the leading numeric run (block height or bare ordinate)
// from the trailing ":ordinate:hash" (or empty) suffix.
func split(o Ordinate) (*big.Int, string) {
	s := string(o)
	i := strings.IndexByte(s, ':')
	numPart := s
	suffix := ""
	if i >= 0 {
		numPart = s[:i]
		suffix = s[i:]
	}
	n, ok := new(big.Int).SetString(numPart, 10)
	if !ok {
		// non-numeric prefix: treat the whole thing as suffix-only, sorts
		// below every well-formed ordinate.
		return big.NewInt(-1), s
	}
	return n, suffix
}

// IsZero reports whether o is the cold-start ordinate.
func (o Ordinate) IsZero() bool { return Compare(o, Zero) == 0 }

// sortKeyWidth bounds the zero-padded numeric prefix used by SortKey.
// 40 decimal digits comfortably exceeds any realistic block height or
// message sequence number while keeping keys a fixed, comparable width.
const sortKeyWidth = 40

// SortKey renders o as a fixed-width, zero-padded string whose ordinary
// byte-lexicographic order matches Compare's big-integer-then-suffix
// order. Persistence layers that only offer lexicographic range scans
// (e.g. an embedded KV store) index on SortKey rather than on the raw
// Ordinate string.
func SortKey(o Ordinate) string {
	n, suffix := split(o)
	padded := n.String()
	if n.Sign() < 0 {
		// non-numeric prefix: sorts below everything, use an all-zero key.
		padded = "0"
	}
	if len(padded) < sortKeyWidth {
		padded = strings.Repeat("0", sortKeyWidth-len(padded)) + padded
	}
	return padded + suffix
}

// String implements fmt.Stringer.
func (o Ordinate) String() string { return string(o) }
