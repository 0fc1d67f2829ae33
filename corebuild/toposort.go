// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package corebuild

import (
	"context"

	"lattice.build/corestore/internal/sets"
	"lattice.build/corestore/storeface"
	"lattice.build/corestore/storepath"
)

// TopoSort orders paths so that every path's references appear before
// it, grounded on the original implementation's topoSortPaths/dfsVisit
// (adapted here to a post-order finish rather than the original's
// push_front, since push_front yields the opposite order: referrers
// before their references). It reports a [BuildError] if the
// restriction of the reference graph to paths contains a cycle.
func TopoSort(ctx context.Context, store storeface.Store, paths sets.Set[storepath.Path]) ([]storepath.Path, error) {
	sorted := make([]storepath.Path, 0, len(paths))
	visited := make(sets.Set[storepath.Path])
	parents := make(sets.Set[storepath.Path])

	for p := range paths.All() {
		var err error
		sorted, err = dfsVisit(ctx, store, paths, p, visited, sorted, parents)
		if err != nil {
			return nil, err
		}
	}
	return sorted, nil
}

// dfsVisit appends path's references (restricted to paths) before path
// itself, detecting cycles via the parents set of paths on the current
// recursion stack.
func dfsVisit(ctx context.Context, store storeface.Store, paths sets.Set[storepath.Path], path storepath.Path, visited sets.Set[storepath.Path], sorted []storepath.Path, parents sets.Set[storepath.Path]) ([]storepath.Path, error) {
	if parents.Has(path) {
		return nil, newError(BuildError, "cycle detected in the references of %s", path)
	}
	if visited.Has(path) {
		return sorted, nil
	}
	visited.Add(path)
	parents.Add(path)

	valid, err := store.IsValidPath(ctx, path)
	if err != nil {
		return nil, storeError("check validity of "+string(path), err)
	}
	var references []storepath.Path
	if valid {
		references, err = store.QueryReferences(ctx, path)
		if err != nil {
			return nil, storeError("query references of "+string(path), err)
		}
	}

	for _, ref := range references {
		// Don't traverse into paths that don't exist, and don't
		// traverse outside the requested set: a self-reference or a
		// reference to something outside paths never needs sorting
		// relative to path.
		if ref == path || !paths.Has(ref) {
			continue
		}
		sorted, err = dfsVisit(ctx, store, paths, ref, visited, sorted, parents)
		if err != nil {
			return nil, err
		}
	}

	// Append on finish: a path is only fully placed once every reference
	// reachable within paths has already been placed ahead of it, so a
	// post-order finish puts leaves first and path itself last among
	// what it depends on.
	sorted = append(sorted, path)
	parents.Delete(path)
	return sorted, nil
}
