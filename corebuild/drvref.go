// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package corebuild

import (
	"fmt"
	"sort"
	"strings"

	"lattice.build/corestore/storepath"
)

// DrvPathWithOutputs names a derivation together with which of its
// outputs are wanted, grounded on the original implementation's
// parseDrvPathWithOutputs/makeDrvPathWithOutputs and the teacher
// repository's zbstore.OutputReference. An empty Outputs list means
// every output the derivation declares is wanted — see
// [DrvPathWithOutputs.WantOutput].
type DrvPathWithOutputs struct {
	DrvPath storepath.Path
	Outputs []string
}

// ParseDrvPathWithOutputs parses a string of the form "drvPath" or
// "drvPath!out1,out2,...".
func ParseDrvPathWithOutputs(s string) (DrvPathWithOutputs, error) {
	i := strings.IndexByte(s, '!')
	if i < 0 {
		p, err := storepath.Parse(s)
		if err != nil {
			return DrvPathWithOutputs{}, fmt.Errorf("parse derivation path with outputs %q: %v", s, err)
		}
		return DrvPathWithOutputs{DrvPath: p}, nil
	}
	p, err := storepath.Parse(s[:i])
	if err != nil {
		return DrvPathWithOutputs{}, fmt.Errorf("parse derivation path with outputs %q: %v", s, err)
	}
	names := strings.Split(s[i+1:], ",")
	return DrvPathWithOutputs{DrvPath: p, Outputs: names}, nil
}

// String renders d in the format [ParseDrvPathWithOutputs] accepts.
func (d DrvPathWithOutputs) String() string {
	if len(d.Outputs) == 0 {
		return string(d.DrvPath)
	}
	sorted := append([]string(nil), d.Outputs...)
	sort.Strings(sorted)
	return string(d.DrvPath) + "!" + strings.Join(sorted, ",")
}

// WantOutput reports whether name is among the outputs d requests. When
// d.Outputs is empty, every output is wanted.
func (d DrvPathWithOutputs) WantOutput(name string) bool {
	if len(d.Outputs) == 0 {
		return true
	}
	for _, o := range d.Outputs {
		if o == name {
			return true
		}
	}
	return false
}
