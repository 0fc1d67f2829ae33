// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package drv

import (
	"context"

	"lattice.build/corestore/storepath"
)

// Reader loads a derivation's trimmed record given its store path. It is
// kept separate from storeface.Store — mirroring the original
// implementation's free derivationFromPath function, which layers on
// top of the store rather than being one of its methods — so that this
// package never needs to import storeface for anything but
// [storeface.EqClass].
type Reader interface {
	Derivation(ctx context.Context, drvPath storepath.Path) (*Derivation, error)
}
