// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package corebuild

import (
	"context"

	"github.com/google/uuid"
	"zombiezen.com/go/log"

	"lattice.build/corestore/drv"
	"lattice.build/corestore/internal/sets"
	"lattice.build/corestore/storeface"
	"lattice.build/corestore/storepath"
)

// MissingResult is the outcome of [QueryMissing]: a partition of the
// targets' closure into what must be built locally, what a substituter
// can provide, and what neither the store nor any substituter knows
// about.
type MissingResult struct {
	WillBuild      []storepath.Path
	WillSubstitute []storepath.Path
	Unknown        []storepath.Path
	DownloadSize   int64
	NARSize        int64
}

// QueryMissing computes, for the given targets, which derivations need
// to be built, which paths can be substituted instead, and which paths
// are neither valid nor known to any substituter. It is grounded on the
// original implementation's queryMissing: each round's substitute-info
// probes are issued as a single batched call to the store façade (see
// spec.md §4.G, §5 — the core never multiplexes threads itself; any
// internal fan-out for that call belongs to the façade or substituter).
func QueryMissing(ctx context.Context, store storeface.Store, drvs drv.Reader, cfg storeface.Config, targets []DrvPathWithOutputs) (MissingResult, error) {
	todo := make(sets.Set[string])
	for _, t := range targets {
		todo.Add(t.String())
	}
	done := make(sets.Set[string])

	willBuild := make(sets.Set[storepath.Path])
	willSubstitute := make(sets.Set[storepath.Path])
	unknown := make(sets.Set[storepath.Path])
	var downloadSize, narSize int64

	for todo.Len() > 0 {
		query := make(sets.Set[storepath.Path])
		var todoDrv []DrvPathWithOutputs
		todoNonDrv := make(sets.Set[storepath.Path])

		for key := range todo.All() {
			if done.Has(key) {
				continue
			}
			done.Add(key)

			item, err := ParseDrvPathWithOutputs(key)
			if err != nil {
				return MissingResult{}, newError(UsageError, "%v", err)
			}

			if item.DrvPath.IsDerivation() {
				valid, err := store.IsValidPath(ctx, item.DrvPath)
				if err != nil {
					return MissingResult{}, storeError("check validity of "+string(item.DrvPath), err)
				}
				if !valid {
					// FIXME: we could try to substitute the derivation itself.
					unknown.Add(item.DrvPath)
					continue
				}
				d, err := drvs.Derivation(ctx, item.DrvPath)
				if err != nil {
					return MissingResult{}, storeError("read derivation "+string(item.DrvPath), err)
				}

				var invalid []storepath.Path
				for _, out := range d.Outputs {
					if !item.WantOutput(out.Name) {
						continue
					}
					valid, err := store.IsValidPath(ctx, out.Path)
					if err != nil {
						return MissingResult{}, storeError("check validity of "+string(out.Path), err)
					}
					if !valid {
						invalid = append(invalid, out.Path)
					}
				}
				if len(invalid) == 0 {
					continue
				}

				todoDrv = append(todoDrv, item)
				if cfg.UseSubstitutes {
					query.Add(invalid...)
				}
			} else {
				valid, err := store.IsValidPath(ctx, item.DrvPath)
				if err != nil {
					return MissingResult{}, storeError("check validity of "+string(item.DrvPath), err)
				}
				if valid {
					continue
				}
				query.Add(item.DrvPath)
				todoNonDrv.Add(item.DrvPath)
			}
		}

		todo = make(sets.Set[string])

		infos, err := querySubstitutableInfos(ctx, store, query)
		if err != nil {
			return MissingResult{}, err
		}

		for _, item := range todoDrv {
			d, err := drvs.Derivation(ctx, item.DrvPath)
			if err != nil {
				return MissingResult{}, storeError("read derivation "+string(item.DrvPath), err)
			}

			var outputs []storepath.Path
			mustBuild := false
			if cfg.UseSubstitutes {
				for _, out := range d.Outputs {
					if !item.WantOutput(out.Name) {
						continue
					}
					valid, err := store.IsValidPath(ctx, out.Path)
					if err != nil {
						return MissingResult{}, storeError("check validity of "+string(out.Path), err)
					}
					if valid {
						continue
					}
					if _, ok := infos[out.Path]; !ok {
						mustBuild = true
					} else {
						outputs = append(outputs, out.Path)
					}
				}
			} else {
				mustBuild = true
			}

			if mustBuild {
				willBuild.Add(item.DrvPath)
				for _, src := range d.InputSrcs {
					todo.Add((DrvPathWithOutputs{DrvPath: src}).String())
				}
				for _, id := range d.InputDrvs {
					todo.Add((DrvPathWithOutputs{DrvPath: id.Path, Outputs: id.Outputs}).String())
				}
			} else {
				todoNonDrv.Add(outputs...)
			}
		}

		for p := range todoNonDrv.All() {
			done.Add((DrvPathWithOutputs{DrvPath: p}).String())
			info, ok := infos[p]
			if !ok {
				unknown.Add(p)
				continue
			}
			willSubstitute.Add(p)
			downloadSize += info.DownloadSize
			narSize += info.NARSize
			for _, ref := range info.References {
				todo.Add((DrvPathWithOutputs{DrvPath: ref}).String())
			}
		}
	}

	return MissingResult{
		WillBuild:      sets.Sorted(willBuild, storepath.Compare),
		WillSubstitute: sets.Sorted(willSubstitute, storepath.Compare),
		Unknown:        sets.Sorted(unknown, storepath.Compare),
		DownloadSize:   downloadSize,
		NARSize:        narSize,
	}, nil
}

// querySubstitutableInfos probes the store for substitute info on every
// path in query in a single round-trip, logging the round under a
// batch id so a driver's structured logs can correlate the paths that
// belong together.
func querySubstitutableInfos(ctx context.Context, store storeface.Store, query sets.Set[storepath.Path]) (map[storepath.Path]storeface.SubstitutablePathInfo, error) {
	if query.Len() == 0 {
		return map[storepath.Path]storeface.SubstitutablePathInfo{}, nil
	}

	batchID := uuid.New()
	log.Debugf(ctx, "querying substitutable path infos (batch %s, %d paths)", batchID, query.Len())

	infos, err := store.QuerySubstitutablePathInfos(ctx, sets.Sorted(query, storepath.Compare))
	if err != nil {
		return nil, storeError("query substitutable path infos", err)
	}
	log.Debugf(ctx, "batch %s: %d of %d paths substitutable", batchID, len(infos), query.Len())
	return infos, nil
}
