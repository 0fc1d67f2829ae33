// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package corebuild

import (
	"context"
	"fmt"
	"testing"

	"lattice.build/corestore/drv"
	"lattice.build/corestore/storeface"
	"lattice.build/corestore/storepath"
)

type fakeDrvReader map[storepath.Path]*drv.Derivation

func (r fakeDrvReader) Derivation(ctx context.Context, p storepath.Path) (*drv.Derivation, error) {
	d, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("no derivation recorded for %s", p)
	}
	return d, nil
}

func TestQueryMissingBuildsWhenNothingSubstitutable(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	out := mustOutput(t, 1, "out")
	drvPath := mustOutput(t, 2, "pkg.drv")
	store.PutDerivation(drvPath, refs(), []storepath.Path{out})

	reader := fakeDrvReader{
		drvPath: &drv.Derivation{
			Name:    "pkg",
			Outputs: []drv.Output{{Name: "out", Path: out}},
		},
	}

	result, err := QueryMissing(ctx, store, reader, storeface.Config{UseSubstitutes: true}, []DrvPathWithOutputs{{DrvPath: drvPath}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.WillBuild) != 1 || result.WillBuild[0] != drvPath {
		t.Errorf("WillBuild = %v, want [%s]", result.WillBuild, drvPath)
	}
	if len(result.WillSubstitute) != 0 {
		t.Errorf("WillSubstitute = %v, want none", result.WillSubstitute)
	}
}

func TestQueryMissingSubstitutes(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	out := mustOutput(t, 1, "out")
	drvPath := mustOutput(t, 2, "pkg.drv")
	store.PutDerivation(drvPath, refs(), []storepath.Path{out})
	store.SetSubstitutable(out, storeface.SubstitutablePathInfo{DownloadSize: 100, NARSize: 400})

	reader := fakeDrvReader{
		drvPath: &drv.Derivation{
			Name:    "pkg",
			Outputs: []drv.Output{{Name: "out", Path: out}},
		},
	}

	result, err := QueryMissing(ctx, store, reader, storeface.Config{UseSubstitutes: true}, []DrvPathWithOutputs{{DrvPath: drvPath}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.WillBuild) != 0 {
		t.Errorf("WillBuild = %v, want none", result.WillBuild)
	}
	if len(result.WillSubstitute) != 1 || result.WillSubstitute[0] != out {
		t.Errorf("WillSubstitute = %v, want [%s]", result.WillSubstitute, out)
	}
	if result.DownloadSize != 100 || result.NARSize != 400 {
		t.Errorf("DownloadSize/NARSize = %d/%d, want 100/400", result.DownloadSize, result.NARSize)
	}
}

func TestQueryMissingFallsThroughToBuildWhenSubstitutesDisabled(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	out := mustOutput(t, 1, "out")
	drvPath := mustOutput(t, 2, "pkg.drv")
	store.PutDerivation(drvPath, refs(), []storepath.Path{out})
	store.SetSubstitutable(out, storeface.SubstitutablePathInfo{DownloadSize: 100, NARSize: 400})

	reader := fakeDrvReader{
		drvPath: &drv.Derivation{
			Name:    "pkg",
			Outputs: []drv.Output{{Name: "out", Path: out}},
		},
	}

	result, err := QueryMissing(ctx, store, reader, storeface.Config{UseSubstitutes: false}, []DrvPathWithOutputs{{DrvPath: drvPath}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.WillBuild) != 1 || result.WillBuild[0] != drvPath {
		t.Errorf("WillBuild = %v, want [%s] when substitutes are disabled", result.WillBuild, drvPath)
	}
	if len(result.WillSubstitute) != 0 {
		t.Errorf("WillSubstitute = %v, want none when substitutes are disabled", result.WillSubstitute)
	}
}

func TestQueryMissingAlreadyValid(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	out := mustOutput(t, 1, "out")
	drvPath := mustOutput(t, 2, "pkg.drv")
	store.Put(out, refs(), drvPath)
	store.PutDerivation(drvPath, refs(), []storepath.Path{out})

	reader := fakeDrvReader{
		drvPath: &drv.Derivation{
			Name:    "pkg",
			Outputs: []drv.Output{{Name: "out", Path: out}},
		},
	}

	result, err := QueryMissing(ctx, store, reader, storeface.Config{UseSubstitutes: true}, []DrvPathWithOutputs{{DrvPath: drvPath}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.WillBuild) != 0 || len(result.WillSubstitute) != 0 || len(result.Unknown) != 0 {
		t.Errorf("QueryMissing on an already-valid derivation = %+v, want all empty", result)
	}
}
