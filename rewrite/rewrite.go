// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

// Package rewrite implements the hash-rewrite engine (spec component B)
// and the hash-modulo content digest (spec component C) that the
// equivalence-class consolidator builds on.
//
// The algorithm is carried over byte for byte from the original
// implementation's hashrewrite.cc and the teacher repository's
// zbstore/rewrite.go / internal/detect package, adapted to operate on a
// single in-memory blob rather than a NAR byte stream, since the
// consolidator always has an object's full bytes in hand.
package rewrite

import (
	"bytes"
	"fmt"

	"lattice.build/corestore/pathhash"
)

// A Pair is one entry of a [Map]: replace From with To wherever it
// occurs.
type Pair struct {
	From pathhash.Hash
	To   pathhash.Hash
}

// Map is an ordered mapping from one [pathhash.Hash] to another. Unlike
// a Go map, iteration order is exactly insertion order, because the
// rewrite algorithm's semantics depend on the order patterns are
// processed in when patterns overlap (spec.md §4.B).
type Map struct {
	pairs []Pair
}

// NewMap returns a [Map] containing the given pairs in order. It panics
// if any From value repeats.
func NewMap(pairs ...Pair) Map {
	seen := make(map[pathhash.Hash]bool, len(pairs))
	for _, p := range pairs {
		if seen[p.From] {
			panic(fmt.Sprintf("rewrite: duplicate key %v in map", p.From))
		}
		seen[p.From] = true
	}
	return Map{pairs: append([]Pair(nil), pairs...)}
}

// Len returns the number of pairs in m.
func (m Map) Len() int {
	return len(m.pairs)
}

// All returns the pairs of m in insertion order.
func (m Map) All() []Pair {
	return m.pairs
}

// IsEmpty reports whether m has no pairs.
func (m Map) IsEmpty() bool {
	return len(m.pairs) == 0
}

// Rewrite applies m to blob, replacing each occurrence of a From value
// with its corresponding To value, and returns the resulting bytes along
// with the starting offset of every occurrence replaced, in scan order.
//
// Patterns are processed one at a time, in m's iteration order, each to
// completion (left to right, advancing past each just-written
// replacement so that a replacement is never itself re-matched) before
// the next pattern begins. This makes the result deterministic given m's
// order but means overlapping distinct patterns are resolved by that
// order rather than by a single simultaneous pass; callers that need
// single-pass semantics must supply pairwise-disjoint patterns.
func Rewrite(blob []byte, m Map) (out []byte, positions []int) {
	out = append([]byte(nil), blob...)
	for _, pair := range m.pairs {
		from := []byte(pair.From.String())
		to := []byte(pair.To.String())
		if len(from) != len(to) {
			panic("rewrite: From and To must be the same width")
		}
		pos := 0
		for {
			i := bytes.Index(out[pos:], from)
			if i < 0 {
				break
			}
			start := pos + i
			positions = append(positions, start)
			copy(out[start:start+len(to)], to)
			pos = start + len(to)
		}
	}
	return out, positions
}

// RewritePaths applies m to the hash component of each path in paths,
// returning a new slice with hashes rewritten; paths not starting with
// one of m's From hashes are left unchanged. It corresponds to the
// original's rewriteHashes(PathSet) helper, kept separate from
// [Rewrite] because callers rewriting a reference set never need
// occurrence positions.
func RewritePaths(paths []string, m Map) []string {
	lookup := make(map[pathhash.Hash]pathhash.Hash, m.Len())
	for _, p := range m.pairs {
		lookup[p.From] = p.To
	}
	out := make([]string, len(paths))
	copy(out, paths)
	for i, p := range out {
		if len(p) < pathhash.Width {
			continue
		}
		// The hash occupies the first Width characters of the store
		// object's basename; find the basename by the last slash.
		slash := bytes.LastIndexByte([]byte(p), '/')
		nameStart := slash + 1
		if nameStart+pathhash.Width > len(p) {
			continue
		}
		h, err := pathhash.Parse(p[nameStart : nameStart+pathhash.Width])
		if err != nil {
			continue
		}
		if to, ok := lookup[h]; ok {
			out[i] = p[:nameStart] + to.String() + p[nameStart+pathhash.Width:]
		}
	}
	return out
}
