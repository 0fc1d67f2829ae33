// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

// Package trust implements the pseudo-trust-id concept used to stamp
// equivalence-class members with the identity of the principal that
// vouches for them.
package trust

// ID is a short string naming a principal. The zero value is the empty
// id, which trusts nothing and is trusted by nothing.
type ID string

// Root is the pseudo-trust-id that is universally trusted: every other
// id trusts itself and Root.
const Root ID = "root"

// Trusts reports whether the principal named by id trusts a member
// stamped with owner, i.e. owner == id or owner == Root.
func (id ID) Trusts(owner ID) bool {
	return id != "" && (owner == id || owner == Root)
}

// CurrentID resolves the process-wide trust id from (in order) the
// CORESTORE_TRUST_ID environment variable or the effective user name.
// lookupEnv and userName are injected so that this package never reaches
// into process globals directly, matching the teacher repo's preference
// for explicit threading over hidden globals.
func CurrentID(lookupEnv func(key string) (string, bool), userName func() (string, error)) (ID, error) {
	if v, ok := lookupEnv("CORESTORE_TRUST_ID"); ok && v != "" {
		return ID(v), nil
	}
	name, err := userName()
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", errEmptyUserName
	}
	return ID(name), nil
}

var errEmptyUserName = trustError("current trust id: empty user name")

type trustError string

func (e trustError) Error() string { return string(e) }
