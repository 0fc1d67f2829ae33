// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

// Package memstore implements an in-memory storeface.Store, grounded on
// the bookkeeping style of the teacher repository's
// internal/backend/backend_store.go (mutex-guarded maps keyed by store
// path, separate index structures per query shape) but without any
// on-disk persistence: every object this package knows about lives only
// for the process lifetime. It exists so the core algorithm packages
// have a concrete, fast Store to test against.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"lattice.build/corestore/pathhash"
	"lattice.build/corestore/rewrite"
	"lattice.build/corestore/storeface"
	"lattice.build/corestore/storepath"
	"lattice.build/corestore/trust"
)

type object struct {
	references storepath.References
	deriver    storepath.Path
	drvOutputs []storepath.Path // valid only when the path is a derivation
}

// Store is an in-memory storeface.Store.
type Store struct {
	mu sync.Mutex

	objects   map[storepath.Path]*object
	referrers map[storepath.Path]map[storepath.Path]struct{}
	derivers  map[storepath.Path]map[storepath.Path]struct{} // output path -> set of valid derivers

	eqClasses map[storepath.Path][]storeface.EqClass
	eqMembers map[storeface.EqClass][]storeface.EqClassMember

	substitutable map[storepath.Path]storeface.SubstitutablePathInfo
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		objects:       make(map[storepath.Path]*object),
		referrers:     make(map[storepath.Path]map[storepath.Path]struct{}),
		derivers:      make(map[storepath.Path]map[storepath.Path]struct{}),
		eqClasses:     make(map[storepath.Path][]storeface.EqClass),
		eqMembers:     make(map[storeface.EqClass][]storeface.EqClassMember),
		substitutable: make(map[storepath.Path]storeface.SubstitutablePathInfo),
	}
}

// Put directly inserts a valid path into the store, bypassing
// AddToStore's rewrite machinery, for test setup. deriver may be empty.
func (s *Store) Put(p storepath.Path, refs storepath.References, deriver storepath.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(p, refs, deriver)
}

func (s *Store) putLocked(p storepath.Path, refs storepath.References, deriver storepath.Path) {
	s.objects[p] = &object{references: refs.Clone(), deriver: deriver}
	for _, ref := range refs.Others {
		if s.referrers[ref] == nil {
			s.referrers[ref] = make(map[storepath.Path]struct{})
		}
		s.referrers[ref][p] = struct{}{}
	}
	if deriver != "" {
		if s.derivers[p] == nil {
			s.derivers[p] = make(map[storepath.Path]struct{})
		}
		s.derivers[p][deriver] = struct{}{}
	}
}

// PutDerivation records drvPath as a derivation with the given output
// paths, for [corebuild.Closure]'s IncludeOutputs/IncludeDerivers edges
// and the missing planner's derivation lookups.
func (s *Store) PutDerivation(drvPath storepath.Path, refs storepath.References, outputs []storepath.Path) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(drvPath, refs, "")
	s.objects[drvPath].drvOutputs = append([]storepath.Path(nil), outputs...)
}

// SetEqClasses declares which equivalence classes p belongs to (as one
// of their outputs), for [corebuild.Consolidate] and
// [corebuild.DetectConflicts].
func (s *Store) SetEqClasses(p storepath.Path, classes ...storeface.EqClass) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eqClasses[p] = append([]storeface.EqClass(nil), classes...)
}

// SetSubstitutable declares that p can be substituted with the given
// info, for the missing planner.
func (s *Store) SetSubstitutable(p storepath.Path, info storeface.SubstitutablePathInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.substitutable[p] = info
}

// AddToStore records a new path with the given references. With no
// rewrites the path keeps expectedHashPart. With rewrites, its hash part
// is synthesized by XOR-folding name and the rewrite targets into a
// 32-byte digest; this is a test-double simplification, not the
// hash-modulo content digest of [rewrite.Modulo]. The new path inherits
// srcPath's equivalence classes.
func (s *Store) AddToStore(ctx context.Context, srcPath storepath.Path, expectedHashPart pathhash.Hash, name string, references storepath.References, rewrites rewrite.Map) (storepath.Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hashPart := expectedHashPart
	if !rewrites.IsEmpty() {
		digest := make([]byte, 32)
		for i, b := range []byte(name) {
			digest[i%len(digest)] ^= b
		}
		for i, pair := range rewrites.All() {
			h := pair.To.String()
			for j := 0; j < len(h); j++ {
				digest[(i+j)%len(digest)] ^= h[j]
			}
		}
		hashPart = pathhash.FromDigest(digest)
	}

	dir := srcPath.Dir()
	newPath, err := dir.Object(hashPart.String() + "-" + name)
	if err != nil {
		return "", fmt.Errorf("memstore: add to store: %v", err)
	}

	if existing, ok := s.objects[newPath]; ok {
		if !referencesEqual(existing.references, references) {
			return "", fmt.Errorf("memstore: add to store: %s already exists with different references", newPath)
		}
		return newPath, nil
	}

	s.putLocked(newPath, references, "")
	if classes, ok := s.eqClasses[srcPath]; ok {
		s.eqClasses[newPath] = classes
	}
	return newPath, nil
}

func referencesEqual(a, b storepath.References) bool {
	if a.Self != b.Self || len(a.Others) != len(b.Others) {
		return false
	}
	for i := range a.Others {
		if a.Others[i] != b.Others[i] {
			return false
		}
	}
	return true
}

func (s *Store) IsValidPath(ctx context.Context, p storepath.Path) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[p]
	return ok, nil
}

func (s *Store) QueryReferences(ctx context.Context, p storepath.Path) ([]storepath.Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[p]
	if !ok {
		return nil, fmt.Errorf("memstore: query references: %s is not a valid path", p)
	}
	refs := append([]storepath.Path(nil), obj.references.Others...)
	if obj.references.Self {
		refs = append(refs, p)
	}
	return refs, nil
}

func (s *Store) QueryReferrers(ctx context.Context, p storepath.Path) ([]storepath.Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storepath.Path, 0, len(s.referrers[p]))
	for r := range s.referrers[p] {
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) QueryDeriver(ctx context.Context, p storepath.Path) (storepath.Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[p]
	if !ok {
		return "", nil
	}
	return obj.deriver, nil
}

func (s *Store) QueryValidDerivers(ctx context.Context, p storepath.Path) ([]storepath.Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storepath.Path, 0, len(s.derivers[p]))
	for d := range s.derivers[p] {
		if _, valid := s.objects[d]; valid {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) QueryDerivationOutputs(ctx context.Context, drvPath storepath.Path) ([]storepath.Path, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[drvPath]
	if !ok {
		return nil, fmt.Errorf("memstore: query derivation outputs: %s is not a valid path", drvPath)
	}
	return append([]storepath.Path(nil), obj.drvOutputs...), nil
}

func (s *Store) QueryOutputEqClasses(ctx context.Context, p storepath.Path) ([]storeface.EqClass, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storeface.EqClass(nil), s.eqClasses[p]...), nil
}

func (s *Store) QueryOutputEqMembers(ctx context.Context, class storeface.EqClass) ([]storeface.EqClassMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storeface.EqClassMember(nil), s.eqMembers[class]...), nil
}

func (s *Store) AddOutputEqMember(ctx context.Context, class storeface.EqClass, id trust.ID, p storepath.Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.eqMembers[class] {
		if m.Path == p && m.TrustID == id {
			return nil
		}
	}
	s.eqMembers[class] = append(s.eqMembers[class], storeface.EqClassMember{Path: p, TrustID: id})
	for _, c := range s.eqClasses[p] {
		if c == class {
			return nil
		}
	}
	s.eqClasses[p] = append(s.eqClasses[p], class)
	return nil
}

func (s *Store) QuerySubstitutablePathInfos(ctx context.Context, paths []storepath.Path) (map[storepath.Path]storeface.SubstitutablePathInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[storepath.Path]storeface.SubstitutablePathInfo)
	for _, p := range paths {
		if info, ok := s.substitutable[p]; ok {
			out[p] = info
		}
	}
	return out, nil
}

var _ storeface.Store = (*Store)(nil)
