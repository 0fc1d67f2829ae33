// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package rewrite

import (
	"fmt"
	"strconv"

	"lattice.build/corestore/pathhash"
	"zombiezen.com/go/nix"
)

// Modulo computes the content hash of blob "modulo" self-references to
// modulus: occurrences of modulus are zeroed out before hashing, and the
// list of positions where they occurred is mixed into the hash so that
// two blobs differing only in where the self-reference falls do not
// collapse to the same digest (spec.md §4.C).
//
// If modulus is [pathhash.Null], blob is hashed unmodified (after the
// empty position-prefix "||").
func Modulo(blob []byte, modulus pathhash.Hash) (digest [32]byte, positions []int) {
	body := blob
	if !modulus.IsNull() {
		m := NewMap(Pair{From: modulus, To: pathhash.Null})
		body, positions = Rewrite(blob, m)
	}

	h := nix.NewHasher(nix.SHA256)
	writePositionPrefix(h, positions)
	h.Write(body)
	sum := h.SumHash()
	copy(digest[:], sum.Bytes(nil))
	return digest, positions
}

func writePositionPrefix(w interface{ WriteString(string) (int, error) }, positions []int) {
	for _, p := range positions {
		w.WriteString("|")
		w.WriteString(strconv.Itoa(p))
	}
	w.WriteString("||")
}

// FormatPositionPrefix renders the position-prefix exactly as [Modulo]
// hashes it, for tests and diagnostics that need to reproduce the digest
// without a modulus rewrite (e.g. verifying the no-self-reference
// identity in spec.md §8: hashModulo(c, anyNull) == SHA256("||" + c)).
func FormatPositionPrefix(positions []int) string {
	var s string
	for _, p := range positions {
		s += fmt.Sprintf("|%d", p)
	}
	return s + "||"
}
