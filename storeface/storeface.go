// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

// Package storeface defines the abstract store façade that the core
// algorithms are written against (spec.md §4.D, §6). The façade's
// concrete implementation — file layout, database transactions,
// substituter protocols — is explicitly out of scope for the core; see
// the sibling memstore and sqlitestore packages for reference
// implementations used by this module's own tests.
package storeface

import (
	"context"

	"lattice.build/corestore/pathhash"
	"lattice.build/corestore/rewrite"
	"lattice.build/corestore/storepath"
	"lattice.build/corestore/trust"
)

// EqClass is an opaque identifier denoting "all artifacts that are
// semantically the same output of the same derivation output slot,
// regardless of who built them or what exact bytes resulted."
type EqClass string

// IsZero reports whether c is the zero value (no class).
func (c EqClass) IsZero() bool {
	return c == ""
}

// EqClassMember is one member of an [EqClass]: a path vouched for by a
// trust id.
type EqClassMember struct {
	Path    storepath.Path
	TrustID trust.ID
}

// SubstitutablePathInfo is what the façade knows about a path that some
// substituter can provide, without having fetched it.
type SubstitutablePathInfo struct {
	References   []storepath.Path
	DownloadSize int64
	NARSize      int64
}

// Config carries the planner-visible toggles enumerated in spec.md §6.
// Loading these from flags or a config file is a driver concern and out
// of scope for this package.
type Config struct {
	// UseSubstitutes, when false, causes the missing planner to skip
	// substitute probes for derivation outputs and to build every
	// derivation that has an invalid wanted output. Invalid
	// non-derivation paths are still probed.
	UseSubstitutes bool
	// ReadOnlyMode affects only user-visible messages produced by the
	// driver; the core does not branch on it.
	ReadOnlyMode bool
}

// Store is the abstract façade that the core algorithms consume. All
// methods must be safe to call concurrently.
type Store interface {
	// AddToStore ingests a (possibly self-referential, possibly
	// to-be-rewritten) blob at srcPath, applying rewrites while
	// computing the content hash modulo expectedHashPart, and returns
	// the resulting path. It fails if the resulting hash component
	// would collide with an existing unrelated entry.
	AddToStore(ctx context.Context, srcPath storepath.Path, expectedHashPart pathhash.Hash, name string, references storepath.References, rewrites rewrite.Map) (storepath.Path, error)

	IsValidPath(ctx context.Context, p storepath.Path) (bool, error)
	QueryReferences(ctx context.Context, p storepath.Path) ([]storepath.Path, error)
	QueryReferrers(ctx context.Context, p storepath.Path) ([]storepath.Path, error)
	QueryDeriver(ctx context.Context, p storepath.Path) (storepath.Path, error)
	QueryValidDerivers(ctx context.Context, p storepath.Path) ([]storepath.Path, error)
	QueryDerivationOutputs(ctx context.Context, drvPath storepath.Path) ([]storepath.Path, error)

	QueryOutputEqClasses(ctx context.Context, p storepath.Path) ([]EqClass, error)
	QueryOutputEqMembers(ctx context.Context, class EqClass) ([]EqClassMember, error)

	// AddOutputEqMember records a new equivalence-class member inside a
	// commit-or-rollback transaction, as spec.md §4.H Phase 4 Step 5
	// requires: one transaction per class, committed independently.
	AddOutputEqMember(ctx context.Context, class EqClass, id trust.ID, p storepath.Path) error

	// QuerySubstitutablePathInfos may return fewer entries than
	// requested: a path with no entry has no known substituter.
	QuerySubstitutablePathInfos(ctx context.Context, paths []storepath.Path) (map[storepath.Path]SubstitutablePathInfo, error)
}
