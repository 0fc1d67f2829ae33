// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: MIT

package storepath

import (
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"/store/00000000000000000000000000000001-foo", false},
		{"/store/00000000000000000000000000000001-foo.drv", false},
		{"store/00000000000000000000000000000001-foo", true}, // not absolute
		{"/store/short-foo", true},                            // digest too short
		{"/store/00000000000000000000000000000001", true},     // no name
	}
	for _, test := range tests {
		_, err := Parse(test.path)
		if (err != nil) != test.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr = %v", test.path, err, test.wantErr)
		}
	}
}

func TestHashAndNamePart(t *testing.T) {
	p, err := Parse("/store/00000000000000000000000000000001-foo-1.2.3")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := p.NamePart(), "foo-1.2.3"; got != want {
		t.Errorf("NamePart() = %q, want %q", got, want)
	}
	if p.HashPart().IsNull() {
		t.Error("HashPart() reported Null for a well-formed path")
	}
}

func TestIsDerivation(t *testing.T) {
	drv, err := Parse("/store/00000000000000000000000000000001-foo.drv")
	if err != nil {
		t.Fatal(err)
	}
	if !drv.IsDerivation() {
		t.Error("IsDerivation() = false for a .drv path, want true")
	}

	out, err := Parse("/store/00000000000000000000000000000001-foo")
	if err != nil {
		t.Fatal(err)
	}
	if out.IsDerivation() {
		t.Error("IsDerivation() = true for a non-.drv path, want false")
	}
}

func TestObject(t *testing.T) {
	dir, err := Clean("/store")
	if err != nil {
		t.Fatal(err)
	}
	p, err := dir.Object("00000000000000000000000000000001-foo")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(p), "/store/00000000000000000000000000000001-foo"; got != want {
		t.Errorf("Object() = %q, want %q", got, want)
	}

	if _, err := dir.Object("../escape"); err == nil {
		t.Error("Object(\"../escape\") = nil error, want error")
	}
}

func TestReferencesAddOther(t *testing.T) {
	a, err := Parse("/store/00000000000000000000000000000001-a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Parse("/store/00000000000000000000000000000002-b")
	if err != nil {
		t.Fatal(err)
	}

	var refs References
	refs.AddOther(b)
	refs.AddOther(a)
	refs.AddOther(a) // duplicate, should not append again
	if len(refs.Others) != 2 {
		t.Fatalf("Others = %v, want 2 entries", refs.Others)
	}
	if refs.Others[0] != a || refs.Others[1] != b {
		t.Errorf("Others = %v, want sorted [%s %s]", refs.Others, a, b)
	}
}

func TestReferencesIsEmpty(t *testing.T) {
	var refs References
	if !refs.IsEmpty() {
		t.Error("zero-value References.IsEmpty() = false, want true")
	}
	refs.Self = true
	if refs.IsEmpty() {
		t.Error("References.IsEmpty() = true after setting Self, want false")
	}
}
