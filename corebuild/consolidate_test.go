// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package corebuild

import (
	"context"
	"testing"

	"lattice.build/corestore/internal/sets"
	"lattice.build/corestore/storeface"
	"lattice.build/corestore/trust"
)

func TestConsolidateNoConflict(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	a := mustOutput(t, 1, "a")
	b := mustOutput(t, 2, "b")
	store.Put(a, refs(), "")
	store.Put(b, refs(), "")
	store.SetEqClasses(a, "classA")
	store.SetEqClasses(b, "classB")

	paths := sets.Of(a, b)
	result, replacements, err := Consolidate(ctx, store, trust.Root, paths, nil)
	if err != nil {
		t.Fatal(err)
	}
	if replacements != nil {
		t.Errorf("replacements = %v, want nil (no conflict)", replacements)
	}
	if result.Len() != 2 || !result.Has(a) || !result.Has(b) {
		t.Errorf("Consolidate with no conflict = %v, want input unchanged", result)
	}
}

func TestConsolidateSimpleConflict(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	aFoo := mustOutput(t, 1, "a")
	aRoot := mustOutput(t, 2, "a")
	store.Put(aFoo, refs(), "")
	store.Put(aRoot, refs(), "")
	store.SetEqClasses(aFoo, "classA")
	store.SetEqClasses(aRoot, "classA")

	paths := sets.Of(aFoo, aRoot)
	conflict, err := DetectConflicts(ctx, store, paths)
	if err != nil {
		t.Fatal(err)
	}
	if !conflict {
		t.Fatal("DetectConflicts = false, want true")
	}

	result, replacements, err := Consolidate(ctx, store, trust.Root, paths, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Len() != 1 {
		t.Errorf("Consolidate result = %v, want exactly one survivor", result)
	}
	if len(replacements) != 1 {
		t.Errorf("replacements = %v, want exactly one entry", replacements)
	}
}

// TestConsolidateLibXmuScenario reproduces the canonical example from the
// original implementation's consolidatePaths comment: two users building
// independent copies of a shared dependency (libX11) end up with a closure
// containing two incompatible copies once a third package (libXmu) depends
// on both through different intermediaries (libXext and libXt). libXmu
// itself is left out of the path set; the conflict lies entirely among
// the four paths below.
func TestConsolidateLibXmuScenario(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	libX11Foo := mustOutput(t, 10, "libX11")
	libX11Root := mustOutput(t, 11, "libX11")
	libXextFoo := mustOutput(t, 12, "libXext")
	libXtRoot := mustOutput(t, 13, "libXt")

	store.Put(libX11Foo, refs(), "")
	store.Put(libX11Root, refs(), "")
	store.Put(libXextFoo, refs(libX11Foo), "")
	store.Put(libXtRoot, refs(libX11Root), "")

	store.SetEqClasses(libX11Foo, "libX11")
	store.SetEqClasses(libX11Root, "libX11")
	store.SetEqClasses(libXextFoo, "libXext")
	store.SetEqClasses(libXtRoot, "libXt")

	paths := sets.Of(libXextFoo, libX11Foo, libXtRoot, libX11Root)

	result, replacements, err := Consolidate(ctx, store, trust.ID("foo"), paths, ExhaustiveSelection{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Len() != 3 {
		t.Fatalf("Consolidate(libXmu scenario) = %v (%d paths), want exactly 3", result, result.Len())
	}
	rewrites := 0
	for from, to := range replacements {
		if from != to {
			rewrites++
		}
	}
	if rewrites == 0 {
		t.Error("no rewrites recorded, want at least one rewrite (libXext or libXt pointing at the losing libX11 copy)")
	}

	classCounts := make(map[storeface.EqClass]int)
	for p := range result.All() {
		classes, err := store.QueryOutputEqClasses(ctx, p)
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range classes {
			classCounts[c]++
		}
	}
	for class, n := range classCounts {
		if n > 1 {
			t.Errorf("equivalence class %v has %d members in the consolidated result, want at most 1", class, n)
		}
	}
}

func TestConsolidateGreedySelectionAlsoResolvesConflict(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	aFoo := mustOutput(t, 1, "a")
	aRoot := mustOutput(t, 2, "a")
	store.Put(aFoo, refs(), "")
	store.Put(aRoot, refs(), "")
	store.SetEqClasses(aFoo, "classA")
	store.SetEqClasses(aRoot, "classA")

	paths := sets.Of(aFoo, aRoot)
	result, _, err := Consolidate(ctx, store, trust.Root, paths, GreedySelection{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Len() != 1 {
		t.Errorf("Consolidate with GreedySelection = %v, want exactly one survivor", result)
	}
}
