// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package corebuild

import (
	"testing"

	"lattice.build/corestore/memstore"
	"lattice.build/corestore/pathhash"
	"lattice.build/corestore/storepath"
)

// mustOutput returns a deterministic store path for the given seed byte
// and name, used throughout this package's tests to build small object
// graphs without the weight of a real content hash.
func mustOutput(t *testing.T, seed byte, name string) storepath.Path {
	t.Helper()
	digest := make([]byte, 32)
	digest[0] = seed
	h := pathhash.FromDigest(digest)
	p, err := storepath.DefaultDirectory.Object(h.String() + "-" + name)
	if err != nil {
		t.Fatalf("build test path: %v", err)
	}
	return p
}

func refs(others ...storepath.Path) storepath.References {
	r := storepath.References{}
	for _, o := range others {
		r.AddOther(o)
	}
	return r
}

func newMemStore() *memstore.Store {
	return memstore.New()
}
