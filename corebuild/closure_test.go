// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package corebuild

import (
	"context"
	"testing"

	"lattice.build/corestore/storepath"
)

func TestClosureForward(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	c := mustOutput(t, 1, "c")
	b := mustOutput(t, 2, "b")
	a := mustOutput(t, 3, "a")
	store.Put(c, refs(), "")
	store.Put(b, refs(c), "")
	store.Put(a, refs(b), "")

	got, err := Closure(ctx, store, []storepath.Path{a}, ClosureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 3 || !got.Has(a) || !got.Has(b) || !got.Has(c) {
		t.Errorf("Closure(a) = %v, want {a, b, c}", got)
	}
}

func TestClosureReverse(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	c := mustOutput(t, 1, "c")
	b := mustOutput(t, 2, "b")
	a := mustOutput(t, 3, "a")
	store.Put(c, refs(), "")
	store.Put(b, refs(c), "")
	store.Put(a, refs(b), "")

	got, err := Closure(ctx, store, []storepath.Path{c}, ClosureOptions{FlipDirection: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 3 || !got.Has(a) || !got.Has(b) || !got.Has(c) {
		t.Errorf("reverse Closure(c) = %v, want {a, b, c}", got)
	}
}

func TestClosureIncludeOutputs(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	out := mustOutput(t, 1, "out")
	drv := mustOutput(t, 2, "pkg.drv")
	store.Put(out, refs(), "")
	store.PutDerivation(drv, refs(), []storepath.Path{out})

	got, err := Closure(ctx, store, []storepath.Path{drv}, ClosureOptions{IncludeOutputs: true})
	if err != nil {
		t.Fatal(err)
	}
	if !got.Has(out) {
		t.Errorf("Closure with IncludeOutputs did not follow to %s", out)
	}
}

func TestClosureStopsAtUnreferencedPaths(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	a := mustOutput(t, 1, "a")
	store.Put(a, refs(), "")

	got, err := Closure(ctx, store, []storepath.Path{a}, ClosureOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 1 {
		t.Errorf("Closure(a) with no references = %v, want just {a}", got)
	}
}
