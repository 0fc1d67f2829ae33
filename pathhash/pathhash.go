// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

// Package pathhash implements the fixed-width path-hash identity used as
// the hash component of a store path.
package pathhash

import (
	"cmp"
	"fmt"

	"zombiezen.com/go/nix"
	"zombiezen.com/go/nix/nixbase32"
)

// Width is the number of textual characters in a [Hash]'s base-32
// encoding. It corresponds to a compressed 20-byte binary digest.
const Width = 32

// Hash is a fixed-width, opaque path-hash identity. The zero value is
// [Null].
type Hash struct {
	s string // empty or Width nixbase32 characters; "" is treated as Null
}

// Null is the distinguished all-zero hash, used as a rewrite target that
// erases a prefix.
var Null = Hash{}

// nullText is the Width-character textual form of the all-zero digest.
var nullText = nixbase32.EncodeToString(make([]byte, 20))

// FromDigest truncates a wide content digest to 20 bytes using the
// store's compression scheme and re-encodes it in base-32 of width
// [Width]. This mirrors internal/storepath.MakeDigest in the teacher
// repository's store-path computation.
func FromDigest(wide []byte) Hash {
	compressed := make([]byte, 20)
	nix.CompressHash(compressed, wide)
	s := nixbase32.EncodeToString(compressed)
	if s == nullText {
		return Null
	}
	return Hash{s: s}
}

// Parse validates a pre-validated Width-character string and returns the
// corresponding [Hash]. It rejects inputs of the wrong width or outside
// the base-32 alphabet.
func Parse(s string) (Hash, error) {
	if len(s) != Width {
		return Hash{}, fmt.Errorf("parse path hash %q: want %d characters, got %d", s, Width, len(s))
	}
	if err := nixbase32.ValidateString(s); err != nil {
		return Hash{}, fmt.Errorf("parse path hash %q: %v", s, err)
	}
	if s == nullText {
		return Null, nil
	}
	return Hash{s: s}, nil
}

// IsNull reports whether h is the distinguished null value.
func (h Hash) IsNull() bool {
	return h.s == ""
}

// String returns the Width-character textual form of h.
func (h Hash) String() string {
	if h.IsNull() {
		return nullText
	}
	return h.s
}

// Compare orders hashes by their textual (and therefore byte-lexicographic,
// since the base-32 alphabet is order-preserving) representation.
func Compare(a, b Hash) int {
	return cmp.Compare(a.String(), b.String())
}

// Equal reports whether a and b are the same hash.
func Equal(a, b Hash) bool {
	return a.String() == b.String()
}

// MarshalText implements [encoding.TextMarshaler].
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (h *Hash) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
