// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

// Package drv models the parts of a derivation that the core algorithms
// (closure, toposort, missing-planner, consolidator) actually consume.
//
// The full derivation record also carries a builder, a platform string,
// an environment, and a NAR export/import encoding; all of that belongs
// to the evaluator and the builder, both out of scope here. What
// remains is the shape that drives reference-tracking and build
// planning: which paths this derivation reads, which of its own
// dependencies' outputs it wants, and the set of output slots it
// produces, grounded on the teacher repository's zbstore.Derivation.
package drv

import (
	"fmt"

	jsonv2 "github.com/go-json-experiment/json"

	"lattice.build/corestore/storeface"
	"lattice.build/corestore/storepath"
)

// Output is one named output slot of a derivation: the store path that
// slot resolved to (once known) and the equivalence class it belongs
// to.
type Output struct {
	Name    string            `json:"name"`
	Path    storepath.Path    `json:"path,omitempty"`
	EqClass storeface.EqClass `json:"eqClass,omitempty"`
}

// InputDrv records that a derivation depends on a set of named output
// slots of another derivation.
type InputDrv struct {
	Path    storepath.Path `json:"path"`
	Outputs []string       `json:"outputs"`
}

// Derivation is the trimmed, core-relevant projection of a full build
// recipe.
type Derivation struct {
	// Name is the derivation's symbolic name, used only for error
	// messages and output path naming.
	Name string `json:"name"`

	// InputSrcs are store paths referenced directly, with no
	// intervening derivation (source files, fixed-output fetches).
	InputSrcs []storepath.Path `json:"inputSrcs,omitempty"`

	// InputDrvs are the derivations this one depends on, together with
	// which of their output slots are wanted. Order matches the
	// derivation's own declaration order, not a canonical sort, since
	// some derivation formats are order-sensitive in how they combine
	// input environments; the core never relies on that order itself.
	InputDrvs []InputDrv `json:"inputDrvs,omitempty"`

	// Outputs are this derivation's own named output slots, in
	// declaration order. A slot's Path is the zero [storepath.Path] if
	// the output path is still unknown (content-addressed outputs are
	// computed only after a successful build).
	Outputs []Output `json:"outputs"`
}

// Marshal encodes d the way a derivation record would be stored
// alongside its .drv store object, using the same
// github.com/go-json-experiment/json encoder the teacher repository
// uses for its own wire and storage records (zbstore/nullable.go).
func Marshal(d *Derivation) ([]byte, error) {
	return jsonv2.Marshal(d)
}

// Unmarshal decodes a derivation record previously written by [Marshal].
func Unmarshal(data []byte) (*Derivation, error) {
	d := new(Derivation)
	if err := jsonv2.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("unmarshal derivation: %v", err)
	}
	return d, nil
}

// Output looks up a named output slot, reporting false if name is not
// one of d's declared outputs.
func (d *Derivation) Output(name string) (Output, bool) {
	for _, o := range d.Outputs {
		if o.Name == name {
			return o, true
		}
	}
	return Output{}, false
}

// OutputNames returns the declared output slot names in order.
func (d *Derivation) OutputNames() []string {
	names := make([]string, len(d.Outputs))
	for i, o := range d.Outputs {
		names[i] = o.Name
	}
	return names
}

// References returns every store path this derivation's record points
// at directly: its input sources followed by the store paths of its
// input derivations themselves (not their outputs). It does not recurse into those
// derivations; see corebuild.Closure for that.
func (d *Derivation) References() []storepath.Path {
	refs := make([]storepath.Path, 0, len(d.InputSrcs)+len(d.InputDrvs))
	refs = append(refs, d.InputSrcs...)
	for _, id := range d.InputDrvs {
		refs = append(refs, id.Path)
	}
	return refs
}

// Validate checks the basic shape invariants a derivation record must
// satisfy before the core algorithms can reason about it: output names
// are declared at most once, and every input-derivation's wanted output
// list is non-empty.
func (d *Derivation) Validate() error {
	seen := make(map[string]bool, len(d.Outputs))
	for _, o := range d.Outputs {
		if seen[o.Name] {
			return fmt.Errorf("derivation %s: duplicate output %q", d.Name, o.Name)
		}
		seen[o.Name] = true
	}
	for _, id := range d.InputDrvs {
		if len(id.Outputs) == 0 {
			return fmt.Errorf("derivation %s: input derivation %s wants no outputs", d.Name, id.Path)
		}
	}
	return nil
}
