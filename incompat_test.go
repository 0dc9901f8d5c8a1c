// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import "testing"

var testRoot = PackageReference{Identity: syntheticRootIdentity, Name: "root"}

func TestIncompatibilityNormalization(t *testing.T) {
	// Same-package terms merge by intersection, preserving first position.
	i := newIncompatibility(testRoot, dependencyCause(mkref("a")),
		mkt("a ^1.0.0"),
		mkt("¬b ^1.0.0"),
		mkt("a 1.2.0..<3.0.0"),
	)
	if len(i.terms) != 2 {
		t.Fatalf("expected 2 normalized terms, got %d: %s", len(i.terms), i)
	}
	if got := i.terms[0].String(); got != "a ^1.2.0" {
		t.Errorf("merged term: got %s, want a ^1.2.0", got)
	}
	if got := i.terms[1].String(); got != "¬b ^1.0.0" {
		t.Errorf("second term: got %s, want ¬b ^1.0.0", got)
	}

	// Mixed polarity for one package still merges to a single term.
	i = newIncompatibility(testRoot, noVersionCause(),
		mkt("a ^1.0.0"),
		mkt("¬a 1.5.0..<2.0.0"),
	)
	if len(i.terms) != 1 || i.terms[0].String() != "a 1.0.0..<1.5.0" {
		t.Errorf("mixed polarity merge: got %s", i)
	}
}

func TestIncompatibilityNormalizationIdempotent(t *testing.T) {
	i := newIncompatibility(testRoot, dependencyCause(mkref("a")),
		mkt("a ^1.0.0"), mkt("¬b ^1.0.0"),
	)
	j := newIncompatibility(testRoot, dependencyCause(mkref("a")), i.terms...)
	if i.String() != j.String() {
		t.Errorf("renormalization changed terms: %s vs %s", i, j)
	}
}

func TestIncompatibilityRootElision(t *testing.T) {
	parent := newIncompatibility(testRoot, rootCause(), mkt("¬a ^1.0.0"))

	// Learned clauses drop positive root terms when others remain.
	i := newIncompatibility(testRoot, conflictCause(parent, parent),
		term{pkg: testRoot, req: ExactVersion(mkv("1.0.0")), positive: true},
		mkt("¬a ^1.0.0"),
	)
	if len(i.terms) != 1 || i.terms[0].pkg != mkref("a") {
		t.Errorf("root term not elided: %s", i)
	}

	// A lone root term survives.
	i = newIncompatibility(testRoot, conflictCause(parent, parent),
		term{pkg: testRoot, req: ExactVersion(mkv("1.0.0")), positive: true},
	)
	if len(i.terms) != 1 || i.terms[0].pkg != testRoot {
		t.Errorf("lone root term should survive: %s", i)
	}

	// Non-learned clauses keep their root terms.
	i = newIncompatibility(testRoot, dependencyCause(testRoot),
		term{pkg: testRoot, req: ExactVersion(mkv("1.0.0")), positive: true},
		mkt("¬a ^1.0.0"),
	)
	if len(i.terms) != 2 {
		t.Errorf("dependency clause lost its root term: %s", i)
	}
}

func TestIncompatibilityTermPolarityUnique(t *testing.T) {
	// No two normalized terms may share a package and polarity.
	i := newIncompatibility(testRoot, dependencyCause(mkref("a")),
		mkt("a ^1.0.0"), mkt("¬b ^1.0.0"), mkt("a ^1.0.0"), mkt("¬b 1.2.0..<2.0.0"),
	)
	type pp struct {
		pkg PackageReference
		pos bool
	}
	seen := make(map[pp]bool)
	for _, tm := range i.terms {
		k := pp{tm.pkg, tm.positive}
		if seen[k] {
			t.Errorf("duplicate (package, polarity) pair in %s", i)
		}
		seen[k] = true
	}
}
