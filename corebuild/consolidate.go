// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package corebuild

import (
	"context"

	"zombiezen.com/go/log"

	"lattice.build/corestore/internal/sets"
	"lattice.build/corestore/rewrite"
	"lattice.build/corestore/storeface"
	"lattice.build/corestore/storepath"
	"lattice.build/corestore/trust"
)

// Replacements records, for every selected representative that a
// [Consolidate] call visited, the store path to use in its place: the
// rewritten copy, or the path itself when no rewrite was needed. Paths
// that were not selected, and sources, are absent from the map.
type Replacements map[storepath.Path]storepath.Path

// ClassCandidates is one equivalence class's candidate members, as
// [Consolidate] encountered them, in [storepath.Compare] order.
type ClassCandidates struct {
	Class   storeface.EqClass
	Members []storepath.Path
}

// ClosureFunc returns the forward transitive closure of a single path,
// for a [SelectionStrategy] to use when estimating rewrite cost.
type ClosureFunc func(ctx context.Context, path storepath.Path) (sets.Set[storepath.Path], error)

// SelectionStrategy picks one representative member from each
// equivalence class so that the resulting closure contains at most one
// member per class.
type SelectionStrategy interface {
	Select(ctx context.Context, classes []ClassCandidates, closureOf ClosureFunc) ([]storepath.Path, error)
}

// ExhaustiveSelection tries every combination of one member per class
// and picks the one requiring the fewest rewrites, exactly as the
// original implementation's findBestRewrite does. It is exponential in
// the number of conflicting classes; see [GreedySelection] for a
// polynomial alternative.
type ExhaustiveSelection struct{}

func (ExhaustiveSelection) Select(ctx context.Context, classes []ClassCandidates, closureOf ClosureFunc) ([]storepath.Path, error) {
	best := make([]storepath.Path, len(classes))
	bestCost := -1
	current := make([]storepath.Path, 0, len(classes))

	var recurse func(idx int) error
	recurse = func(idx int) error {
		if idx == len(classes) {
			selected := sets.Of(current...)
			unselected := make(sets.Set[storepath.Path])
			for _, c := range classes {
				for _, m := range c.Members {
					if !selected.Has(m) {
						unselected.Add(m)
					}
				}
			}

			cost := 0
			for _, p := range current {
				closure, err := closureOf(ctx, p)
				if err != nil {
					return err
				}
				bad := false
				for q := range closure.All() {
					if unselected.Has(q) {
						bad = true
						break
					}
				}
				if bad {
					cost++
				}
			}

			if bestCost < 0 || cost < bestCost {
				bestCost = cost
				copy(best, current)
			}
			return nil
		}

		for _, m := range classes[idx].Members {
			current = append(current, m)
			if err := recurse(idx + 1); err != nil {
				return err
			}
			current = current[:len(current)-1]
		}
		return nil
	}

	if err := recurse(0); err != nil {
		return nil, err
	}
	return best, nil
}

// GreedySelection picks, for each class independently, the candidate
// whose closure overlaps the fewest other classes' candidates. It is
// polynomial but, unlike [ExhaustiveSelection], is not guaranteed to
// find the rewrite-minimal selection: it never revisits a class's
// choice in light of another class's, so it can miss a combination that
// only looks good jointly.
type GreedySelection struct{}

func (GreedySelection) Select(ctx context.Context, classes []ClassCandidates, closureOf ClosureFunc) ([]storepath.Path, error) {
	closures := make(map[storepath.Path]sets.Set[storepath.Path])
	for _, c := range classes {
		for _, m := range c.Members {
			closure, err := closureOf(ctx, m)
			if err != nil {
				return nil, err
			}
			closures[m] = closure
		}
	}

	conflictScore := func(excludeIdx int, p storepath.Path) int {
		closure := closures[p]
		score := 0
		for idx, c := range classes {
			if idx == excludeIdx {
				continue
			}
			for _, m := range c.Members {
				if m != p && closure.Has(m) {
					score++
				}
			}
		}
		return score
	}

	selection := make([]storepath.Path, len(classes))
	for idx, c := range classes {
		best := c.Members[0]
		bestScore := conflictScore(idx, best)
		for _, m := range c.Members[1:] {
			score := conflictScore(idx, m)
			if score < bestScore {
				bestScore = score
				best = m
			}
		}
		selection[idx] = best
	}
	return selection, nil
}

// DetectConflicts reports whether any two paths in the set belong to
// the same equivalence class, which is precisely the condition under
// which [Consolidate] must rewrite anything.
func DetectConflicts(ctx context.Context, store storeface.Store, paths sets.Set[storepath.Path]) (bool, error) {
	counts := make(map[storeface.EqClass]int)
	for p := range paths.All() {
		classes, err := store.QueryOutputEqClasses(ctx, p)
		if err != nil {
			return false, storeError("query output equivalence classes of "+string(p), err)
		}
		for _, c := range classes {
			counts[c]++
			if counts[c] >= 2 {
				return true, nil
			}
		}
	}
	return false, nil
}

// Consolidate rewrites paths, if necessary, so that the result contains
// at most one path from each output equivalence class, grounded on the
// original implementation's consolidatePaths/maybeRewrite. If paths
// already satisfies that invariant, it is returned unchanged and
// replacements is nil.
//
// trustID is recorded as the vouching identity for every new
// equivalence-class member this call creates (spec.md §4.H step 5).
// strategy chooses which member of each conflicting class survives; a
// nil strategy defaults to [ExhaustiveSelection].
func Consolidate(ctx context.Context, store storeface.Store, trustID trust.ID, paths sets.Set[storepath.Path], strategy SelectionStrategy) (sets.Set[storepath.Path], Replacements, error) {
	if strategy == nil {
		strategy = ExhaustiveSelection{}
	}

	sortedPaths := sets.Sorted(paths, storepath.Compare)

	var classOrder []storeface.EqClass
	classMembers := make(map[storeface.EqClass][]storepath.Path)
	sources := make(sets.Set[storepath.Path])

	for _, p := range sortedPaths {
		classes, err := store.QueryOutputEqClasses(ctx, p)
		if err != nil {
			return nil, nil, storeError("query output equivalence classes of "+string(p), err)
		}
		if len(classes) == 0 {
			sources.Add(p)
			continue
		}
		for _, c := range classes {
			if _, ok := classMembers[c]; !ok {
				classOrder = append(classOrder, c)
			}
			classMembers[c] = append(classMembers[c], p)
		}
	}

	log.Debugf(ctx, "consolidate: %d sources, %d equivalence classes", sources.Len(), len(classOrder))

	conflict := false
	for _, c := range classOrder {
		if len(classMembers[c]) >= 2 {
			log.Debugf(ctx, "consolidate: conflict in equivalence class %v", c)
			conflict = true
		}
	}
	if !conflict {
		return paths, nil, nil
	}

	candidates := make([]ClassCandidates, len(classOrder))
	for i, c := range classOrder {
		candidates[i] = ClassCandidates{Class: c, Members: classMembers[c]}
	}

	closureCache := make(map[storepath.Path]sets.Set[storepath.Path])
	closureOf := func(ctx context.Context, p storepath.Path) (sets.Set[storepath.Path], error) {
		if cl, ok := closureCache[p]; ok {
			return cl, nil
		}
		cl, err := Closure(ctx, store, []storepath.Path{p}, ClosureOptions{})
		if err != nil {
			return nil, err
		}
		closureCache[p] = cl
		return cl, nil
	}

	selection, err := strategy.Select(ctx, candidates, closureOf)
	if err != nil {
		return nil, nil, err
	}

	finalClassMap := make(map[storeface.EqClass]storepath.Path, len(classOrder))
	for i, c := range classOrder {
		finalClassMap[c] = selection[i]
	}
	selected := sets.Of(selection...)

	replacements := make(Replacements)
	newPaths := make(sets.Set[storepath.Path])
	for _, p := range selection {
		newPath, err := maybeRewrite(ctx, store, trustID, p, selected, finalClassMap, sources, replacements)
		if err != nil {
			return nil, nil, err
		}
		newPaths.Add(newPath)
	}
	for s := range sources.All() {
		newPaths.Add(s)
	}
	if newPaths.Len() >= paths.Len() {
		return nil, nil, newError(LogicError, "consolidation of %d paths did not shrink the closure (got %d)", paths.Len(), newPaths.Len())
	}

	return newPaths, replacements, nil
}

// maybeRewrite rewrites path's references to point only at selected
// representatives, recursively rewriting those representatives first,
// and returns the (possibly new) store path that callers should use in
// place of path.
func maybeRewrite(ctx context.Context, store storeface.Store, trustID trust.ID, path storepath.Path, selected sets.Set[storepath.Path], finalClassMap map[storeface.EqClass]storepath.Path, sources sets.Set[storepath.Path], replacements Replacements) (storepath.Path, error) {
	if existing, ok := replacements[path]; ok {
		return existing, nil
	}
	if !selected.Has(path) {
		return "", newError(LogicError, "maybeRewrite called on %s, which is not in the selection", path)
	}

	references, err := store.QueryReferences(ctx, path)
	if err != nil {
		return "", storeError("query references of "+string(path), err)
	}

	var rewrites []rewrite.Pair
	var newRefs storepath.References
	for _, ref := range references {
		if ref == path {
			newRefs.Self = true
			continue
		}
		if sources.Has(ref) {
			newRefs.AddOther(ref)
			continue
		}

		classes, err := store.QueryOutputEqClasses(ctx, ref)
		if err != nil {
			return "", storeError("query output equivalence classes of "+string(ref), err)
		}
		if len(classes) == 0 {
			return "", newError(LogicError, "reference %s of %s has no equivalence class and is not a recognized source", ref, path)
		}
		target, ok := finalClassMap[classes[0]]
		if !ok {
			return "", newError(LogicError, "equivalence class %v has no selected representative", classes[0])
		}

		newRef, err := maybeRewrite(ctx, store, trustID, target, selected, finalClassMap, sources, replacements)
		if err != nil {
			return "", err
		}
		if ref != newRef {
			rewrites = append(rewrites, rewrite.Pair{From: ref.HashPart(), To: newRef.HashPart()})
		}
		newRefs.AddOther(newRef)
	}

	if len(rewrites) == 0 {
		replacements[path] = path
		return path, nil
	}

	log.Debugf(ctx, "consolidate: rewriting %s", path)

	newPath, err := store.AddToStore(ctx, path, path.HashPart(), path.NamePart(), newRefs, rewrite.NewMap(rewrites...))
	if err != nil {
		return "", storeError("add rewritten copy of "+string(path)+" to store", err)
	}

	classes, err := store.QueryOutputEqClasses(ctx, path)
	if err != nil {
		return "", storeError("query output equivalence classes of "+string(path), err)
	}
	for _, c := range classes {
		// Detach so a caller cancelling ctx right after a successful
		// rewrite can't leave the new path recorded in the store but
		// absent from its equivalence class.
		commitCtx := context.WithoutCancel(ctx)
		if err := store.AddOutputEqMember(commitCtx, c, trustID, newPath); err != nil {
			return "", storeError("record equivalence class member for "+string(newPath), err)
		}
	}

	log.Infof(ctx, "consolidate: rewrote %s to %s", path, newPath)
	replacements[path] = newPath
	return newPath, nil
}
