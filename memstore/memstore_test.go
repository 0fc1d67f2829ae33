// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package memstore

import (
	"context"
	"testing"

	"golang.org/x/sync/errgroup"

	"lattice.build/corestore/pathhash"
	"lattice.build/corestore/storeface"
	"lattice.build/corestore/storepath"
	"lattice.build/corestore/trust"
)

func mustPath(t *testing.T, seed byte, name string) storepath.Path {
	t.Helper()
	digest := make([]byte, 32)
	digest[0] = seed
	p, err := storepath.DefaultDirectory.Object(pathhash.FromDigest(digest).String() + "-" + name)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPutAndIsValidPath(t *testing.T) {
	ctx := context.Background()
	s := New()
	p := mustPath(t, 1, "foo")

	valid, err := s.IsValidPath(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if valid {
		t.Fatal("IsValidPath before Put = true, want false")
	}

	s.Put(p, storepath.References{}, "")
	valid, err = s.IsValidPath(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if !valid {
		t.Error("IsValidPath after Put = false, want true")
	}
}

func TestQueryReferrers(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := mustPath(t, 1, "a")
	b := mustPath(t, 2, "b")

	refs := storepath.References{}
	refs.AddOther(a)
	s.Put(a, storepath.References{}, "")
	s.Put(b, refs, "")

	referrers, err := s.QueryReferrers(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(referrers) != 1 || referrers[0] != b {
		t.Errorf("QueryReferrers(a) = %v, want [%s]", referrers, b)
	}
}

// TestConcurrentEqMemberAdditionsTolerateInterleaving exercises the claim
// in spec.md §5 that concurrent AddOutputEqMember calls for the same
// class, issued in any interleaving, converge to the same membership set
// since each addition is an idempotent insert into a monotonically
// growing set.
func TestConcurrentEqMemberAdditionsTolerateInterleaving(t *testing.T) {
	ctx := context.Background()
	s := New()
	const class storeface.EqClass = "libfoo-out"

	paths := make([]storepath.Path, 8)
	for i := range paths {
		paths[i] = mustPath(t, byte(i+1), "libfoo")
		s.Put(paths[i], storepath.References{}, "")
	}

	grp, gctx := errgroup.WithContext(ctx)
	for _, p := range paths {
		p := p
		grp.Go(func() error {
			// Every path is recorded twice, under two different
			// trust identities racing each other, so each path
			// yields two distinct members.
			if err := s.AddOutputEqMember(gctx, class, trust.Root, p); err != nil {
				return err
			}
			return s.AddOutputEqMember(gctx, class, trust.ID("alt"), p)
		})
	}
	if err := grp.Wait(); err != nil {
		t.Fatal(err)
	}

	members, err := s.QueryOutputEqMembers(ctx, class)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2*len(paths) {
		t.Errorf("QueryOutputEqMembers(class) has %d members, want %d (one per path per trust identity)", len(members), 2*len(paths))
	}
	seen := make(map[storepath.Path]bool)
	for _, m := range members {
		seen[m.Path] = true
	}
	for _, p := range paths {
		if !seen[p] {
			t.Errorf("membership set is missing %s after concurrent additions", p)
		}
	}
}
