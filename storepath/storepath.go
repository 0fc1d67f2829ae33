// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

// Package storepath implements the canonical store-path identifier and
// the reference-set data model shared by the rest of the core.
package storepath

import (
	"cmp"
	"fmt"
	posixpath "path"
	"slices"
	"strings"

	"lattice.build/corestore/pathhash"
)

// Directory is the absolute directory that store objects live under,
// e.g. "/store". Unlike the teacher's zbstore.Directory, this package
// only supports POSIX-style paths: cross-platform path handling belongs
// to the driver, not this core.
type Directory string

// DefaultDirectory is the default store directory.
const DefaultDirectory Directory = "/store"

// Clean cleans an absolute path as a [Directory].
func Clean(path string) (Directory, error) {
	if !posixpath.IsAbs(path) {
		return "", fmt.Errorf("store directory %q is not absolute", path)
	}
	return Directory(posixpath.Clean(path)), nil
}

// Object returns the store path for the given store object name.
func (dir Directory) Object(name string) (Path, error) {
	joined := dir.Join(name)
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return "", fmt.Errorf("parse store path %s: invalid object name %q", joined, name)
	}
	return Parse(joined)
}

// Join joins path elements onto the store directory.
func (dir Directory) Join(elem ...string) string {
	return posixpath.Join(append([]string{string(dir)}, elem...)...)
}

const (
	digestLength    = pathhash.Width
	maxObjectLength = digestLength + 1 + 211
)

// Path is a store path: the absolute path of a store object, of the
// form "<dir>/<hash>-<name>".
type Path string

// Parse parses an absolute path as an immediate child of a store
// directory, validating the digest and name syntax.
func Parse(path string) (Path, error) {
	if !posixpath.IsAbs(path) {
		return "", fmt.Errorf("parse store path %s: not absolute", path)
	}
	cleaned := posixpath.Clean(path)
	_, base := posixpath.Split(cleaned)
	if len(base) < digestLength+len("-")+1 {
		return "", fmt.Errorf("parse store path %s: %q is too short", path, base)
	}
	if len(base) > maxObjectLength {
		return "", fmt.Errorf("parse store path %s: %q is too long", path, base)
	}
	for i := 0; i < len(base); i++ {
		if !isNameChar(base[i]) {
			return "", fmt.Errorf("parse store path %s: %q contains illegal character %q", path, base, base[i])
		}
	}
	if _, err := pathhash.Parse(base[:digestLength]); err != nil {
		return "", fmt.Errorf("parse store path %s: %v", path, err)
	}
	if base[digestLength] != '-' {
		return "", fmt.Errorf("parse store path %s: digest not separated by dash", path)
	}
	return Path(cleaned), nil
}

// Dir returns the path's directory.
func (p Path) Dir() Directory {
	return Directory(posixpath.Dir(string(p)))
}

// Base returns the last element of the path.
func (p Path) Base() string {
	if p == "" {
		return ""
	}
	return posixpath.Base(string(p))
}

// HashPart returns the path's hash component, i.e. hashPartOf(p).
func (p Path) HashPart() pathhash.Hash {
	base := p.Base()
	if len(base) < digestLength {
		return pathhash.Null
	}
	h, err := pathhash.Parse(base[:digestLength])
	if err != nil {
		return pathhash.Null
	}
	return h
}

// NamePart returns the path's name component, i.e. namePartOf(p).
func (p Path) NamePart() string {
	base := p.Base()
	if len(base) <= digestLength+len("-") {
		return ""
	}
	return base[digestLength+len("-"):]
}

// DerivationExt is the filename suffix that identifies a store path as a
// derivation record rather than a built object.
const DerivationExt = ".drv"

// IsDerivation reports whether p names a derivation, i.e. whether its
// name part ends in [DerivationExt].
func (p Path) IsDerivation() bool {
	return strings.HasSuffix(string(p), DerivationExt)
}

// WithHashPart returns p with its hash part replaced by h, keeping the
// directory and name unchanged.
func (p Path) WithHashPart(h pathhash.Hash) Path {
	return Path(p.Dir().Join(h.String() + "-" + p.NamePart()))
}

func isNameChar(c byte) bool {
	return 'a' <= c && c <= 'z' ||
		'A' <= c && c <= 'Z' ||
		'0' <= c && c <= '9' ||
		c == '+' || c == '-' || c == '.' || c == '_' || c == '='
}

// Compare provides a total order on paths, used as the documented
// tie-break in equivalence-class selection.
func Compare(a, b Path) int {
	return cmp.Compare(a, b)
}

// References represents the set of references a store object contains
// to other store objects, plus whether it references itself.
type References struct {
	// Self is true if the object contains one or more references to
	// itself.
	Self bool
	// Others holds the other store objects the object references, kept
	// sorted for deterministic iteration.
	Others []Path
}

// IsEmpty reports whether refs is the empty set.
func (refs References) IsEmpty() bool {
	return !refs.Self && len(refs.Others) == 0
}

// AddOther adds p to refs.Others if not already present, keeping Others
// sorted.
func (refs *References) AddOther(p Path) {
	i, present := slices.BinarySearchFunc(refs.Others, p, Compare)
	if !present {
		refs.Others = slices.Insert(refs.Others, i, p)
	}
}

// Clone returns a deep copy of refs.
func (refs References) Clone() References {
	return References{Self: refs.Self, Others: slices.Clone(refs.Others)}
}
