// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package rewrite

import (
	"crypto/sha256"
	hexpkg "encoding/hex"
)

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hexpkg.EncodeToString(sum[:])
}

func hex(b []byte) string {
	return hexpkg.EncodeToString(b)
}
