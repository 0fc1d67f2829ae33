// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package corebuild

import (
	"context"

	"lattice.build/corestore/internal/sets"
	"lattice.build/corestore/storeface"
	"lattice.build/corestore/storepath"
)

// ClosureOptions controls which edges [Closure] follows, mirroring the
// original implementation's computeFSClosure flags.
type ClosureOptions struct {
	// FlipDirection makes the closure follow referrers instead of
	// references, i.e. compute the reverse closure.
	FlipDirection bool
	// IncludeOutputs additionally follows deriver/output edges: in the
	// forward direction, from a derivation to its valid outputs; in the
	// reverse direction, from an output to every valid derivation that
	// derives it.
	IncludeOutputs bool
	// IncludeDerivers additionally follows output/deriver edges in the
	// other combination: in the forward direction, from an output to
	// its deriver; in the reverse direction, from a derivation to the
	// outputs it is the recorded deriver of.
	IncludeDerivers bool
}

// Closure computes the transitive closure of starts under the edges
// [ClosureOptions] selects, grounded on the original implementation's
// computeFSClosure.
func Closure(ctx context.Context, store storeface.Store, starts []storepath.Path, opts ClosureOptions) (sets.Set[storepath.Path], error) {
	visited := make(sets.Set[storepath.Path])
	for _, p := range starts {
		if err := closureVisit(ctx, store, p, visited, opts); err != nil {
			return nil, err
		}
	}
	return visited, nil
}

func closureVisit(ctx context.Context, store storeface.Store, path storepath.Path, visited sets.Set[storepath.Path], opts ClosureOptions) error {
	if visited.Has(path) {
		return nil
	}
	visited.Add(path)

	edges := make(sets.Set[storepath.Path])

	if opts.FlipDirection {
		referrers, err := store.QueryReferrers(ctx, path)
		if err != nil {
			return storeError("query referrers of "+string(path), err)
		}
		edges.Add(referrers...)

		if opts.IncludeOutputs {
			derivers, err := store.QueryValidDerivers(ctx, path)
			if err != nil {
				return storeError("query valid derivers of "+string(path), err)
			}
			edges.Add(derivers...)
		}

		if opts.IncludeDerivers && path.IsDerivation() {
			outputs, err := store.QueryDerivationOutputs(ctx, path)
			if err != nil {
				return storeError("query derivation outputs of "+string(path), err)
			}
			for _, out := range outputs {
				valid, err := store.IsValidPath(ctx, out)
				if err != nil {
					return storeError("check validity of "+string(out), err)
				}
				if !valid {
					continue
				}
				deriver, err := store.QueryDeriver(ctx, out)
				if err != nil {
					return storeError("query deriver of "+string(out), err)
				}
				if deriver == path {
					edges.Add(out)
				}
			}
		}
	} else {
		references, err := store.QueryReferences(ctx, path)
		if err != nil {
			return storeError("query references of "+string(path), err)
		}
		edges.Add(references...)

		if opts.IncludeOutputs && path.IsDerivation() {
			outputs, err := store.QueryDerivationOutputs(ctx, path)
			if err != nil {
				return storeError("query derivation outputs of "+string(path), err)
			}
			for _, out := range outputs {
				valid, err := store.IsValidPath(ctx, out)
				if err != nil {
					return storeError("check validity of "+string(out), err)
				}
				if valid {
					edges.Add(out)
				}
			}
		}

		if opts.IncludeDerivers {
			deriver, err := store.QueryDeriver(ctx, path)
			if err != nil {
				return storeError("query deriver of "+string(path), err)
			}
			if deriver != "" {
				valid, err := store.IsValidPath(ctx, deriver)
				if err != nil {
					return storeError("check validity of "+string(deriver), err)
				}
				if valid {
					edges.Add(deriver)
				}
			}
		}
	}

	for edge := range edges.All() {
		if err := closureVisit(ctx, store, edge, visited, opts); err != nil {
			return err
		}
	}
	return nil
}
