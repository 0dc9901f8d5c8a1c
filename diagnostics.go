// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"strings"
)

// reportBuilder renders the derivation graph beneath an unresolvable root
// cause into a numbered, human-readable explanation. Incompatibilities
// referenced from more than one place are written once and referred back to
// by line number.
type reportBuilder struct {
	root      PackageReference
	rootCause *incompatibility

	derivations map[*incompatibility]int
	lineNumbers map[*incompatibility]int
	lines       []reportLine
}

type reportLine struct {
	number  int
	message string
}

func buildDiagnosticReport(root PackageReference, rootCause *incompatibility) string {
	b := &reportBuilder{
		root:        root,
		rootCause:   rootCause,
		derivations: make(map[*incompatibility]int),
		lineNumbers: make(map[*incompatibility]int),
	}

	b.countDerivations(rootCause)
	if rootCause.isConflict() {
		b.visit(rootCause, false)
	} else {
		b.record(rootCause, fmt.Sprintf("Because %s, version solving failed.", b.describe(rootCause)), false)
	}

	var out []string
	for _, l := range b.lines {
		if l.number > 0 {
			out = append(out, fmt.Sprintf("(%d) %s", l.number, l.message))
		} else {
			out = append(out, l.message)
		}
	}
	return strings.Join(out, "\n")
}

// countDerivations tallies how many parents reference each node; nodes seen
// more than once get a number and later references point back to it.
func (b *reportBuilder) countDerivations(i *incompatibility) {
	b.derivations[i]++
	if b.derivations[i] == 1 && i.isConflict() {
		b.countDerivations(i.cause.conflict)
		b.countDerivations(i.cause.other)
	}
}

func (b *reportBuilder) visit(i *incompatibility, isConclusion bool) {
	if !i.isConflict() {
		panic(fmt.Sprintf("canary - visiting external incompatibility %s", i))
	}

	numbered := isConclusion || b.derivations[i] > 1
	conflictParent := i.cause.conflict
	otherParent := i.cause.other
	desc := b.describe(i)

	switch {
	case conflictParent.isConflict() && otherParent.isConflict():
		cl, cok := b.lineNumbers[conflictParent]
		ol, ook := b.lineNumbers[otherParent]
		switch {
		case cok && ook:
			b.record(i, fmt.Sprintf("Because %s (%d) and %s (%d), %s.",
				b.describe(conflictParent), cl, b.describe(otherParent), ol, desc), numbered)
		case cok:
			b.visit(otherParent, false)
			b.record(i, fmt.Sprintf("And because %s (%d), %s.",
				b.describe(conflictParent), cl, desc), numbered)
		case ook:
			b.visit(conflictParent, false)
			b.record(i, fmt.Sprintf("And because %s (%d), %s.",
				b.describe(otherParent), ol, desc), numbered)
		default:
			switch {
			case b.isSingleLine(otherParent):
				b.visit(conflictParent, false)
				b.visit(otherParent, false)
				b.record(i, fmt.Sprintf("Thus, %s.", desc), numbered)
			case b.isSingleLine(conflictParent):
				b.visit(otherParent, false)
				b.visit(conflictParent, false)
				b.record(i, fmt.Sprintf("Thus, %s.", desc), numbered)
			default:
				b.visit(conflictParent, true)
				b.visit(otherParent, false)
				b.record(i, fmt.Sprintf("And because %s (%d), %s.",
					b.describe(conflictParent), b.lineNumbers[conflictParent], desc), numbered)
			}
		}

	case conflictParent.isConflict() || otherParent.isConflict():
		derived, external := conflictParent, otherParent
		if otherParent.isConflict() {
			derived, external = otherParent, conflictParent
		}

		if dl, ok := b.lineNumbers[derived]; ok {
			b.record(i, fmt.Sprintf("Because %s and %s (%d), %s.",
				b.describe(external), b.describe(derived), dl, desc), numbered)
			break
		}
		if b.isCollapsible(derived) {
			nestedDerived, nestedExternal := derived.cause.conflict, derived.cause.other
			if derived.cause.other.isConflict() {
				nestedDerived, nestedExternal = derived.cause.other, derived.cause.conflict
			}
			b.visit(nestedDerived, false)
			b.record(i, fmt.Sprintf("And because %s and %s, %s.",
				b.describe(nestedExternal), b.describe(external), desc), numbered)
			break
		}
		b.visit(derived, false)
		b.record(i, fmt.Sprintf("And because %s, %s.", b.describe(external), desc), numbered)

	default:
		b.record(i, fmt.Sprintf("Because %s and %s, %s.",
			b.describe(conflictParent), b.describe(otherParent), desc), numbered)
	}
}

// isSingleLine reports whether a learned clause renders as one sentence,
// which is the case when neither of its parents is itself learned.
func (b *reportBuilder) isSingleLine(i *incompatibility) bool {
	return i.isConflict() && !i.cause.conflict.isConflict() && !i.cause.other.isConflict()
}

// isCollapsible reports whether a derived parent can be fused with its own
// derivation into a single sentence: it is referenced exactly once, exactly
// one of its parents is itself derived, and that parent has not already
// been written out.
func (b *reportBuilder) isCollapsible(i *incompatibility) bool {
	if b.derivations[i] > 1 {
		return false
	}
	if !i.isConflict() {
		return false
	}
	cc := i.cause.conflict.isConflict()
	oc := i.cause.other.isConflict()
	if cc == oc {
		return false
	}
	complex := i.cause.conflict
	if oc {
		complex = i.cause.other
	}
	_, written := b.lineNumbers[complex]
	return !written
}

func (b *reportBuilder) record(i *incompatibility, message string, numbered bool) {
	line := reportLine{number: -1, message: message}
	if numbered {
		line.number = len(b.lineNumbers) + 1
		b.lineNumbers[i] = line.number
	}
	b.lines = append(b.lines, line)
}

// describe renders one incompatibility as prose keyed to its cause.
func (b *reportBuilder) describe(i *incompatibility) string {
	switch i.cause.kind {
	case causeDependency:
		var depender, dependee *term
		for k := range i.terms {
			t := &i.terms[k]
			if t.positive && t.pkg == i.cause.depender {
				depender = t
			} else if !t.positive {
				dependee = t
			}
		}
		if depender != nil && dependee != nil {
			return fmt.Sprintf("%s depends on %s", b.describeTerm(*depender), b.describeTerm(*dependee))
		}
	case causeNoVersion:
		t := i.terms[0]
		return fmt.Sprintf("no versions of %s match the requirement %s", t.pkg, t.req)
	case causeRoot:
		t := i.terms[0]
		return fmt.Sprintf("%s is %s", t.pkg, t.req)
	case causeConflict:
		if len(i.terms) == 1 && i.terms[0].positive && i.terms[0].pkg == b.root {
			return "version solving failed"
		}
	}

	return b.describeTerms(i.terms)
}

// describeTerms is the generic fallback for clauses with no special cause
// handling.
func (b *reportBuilder) describeTerms(terms []term) string {
	if len(terms) == 1 {
		t := terms[0]
		if t.positive {
			return fmt.Sprintf("%s cannot be used", b.describeTerm(t))
		}
		return fmt.Sprintf("%s is required", b.describeTerm(t))
	}

	if len(terms) == 2 && terms[0].positive == terms[1].positive {
		if terms[0].positive {
			return fmt.Sprintf("%s is incompatible with %s", b.describeTerm(terms[0]), b.describeTerm(terms[1]))
		}
		return fmt.Sprintf("either %s or %s", b.describeTerm(terms[0]), b.describeTerm(terms[1]))
	}

	var positive, negative []string
	for _, t := range terms {
		if t.positive {
			positive = append(positive, b.describeTerm(t))
		} else {
			negative = append(negative, b.describeTerm(t))
		}
	}

	switch {
	case len(positive) > 0 && len(negative) > 0:
		if len(positive) == 1 {
			return fmt.Sprintf("%s requires %s", positive[0], strings.Join(negative, " or "))
		}
		return fmt.Sprintf("if %s then %s", strings.Join(positive, " and "), strings.Join(negative, " or "))
	case len(positive) > 0:
		return fmt.Sprintf("one of %s must be true", strings.Join(positive, " or "))
	default:
		return fmt.Sprintf("one of %s must be true", strings.Join(negative, " or "))
	}
}

// describeTerm renders a term's package and requirement, eliding the
// requirement when it admits everything and the version when naming the
// synthesized root.
func (b *reportBuilder) describeTerm(t term) string {
	if t.pkg == b.root {
		return t.pkg.String()
	}
	if vs, ok := t.req.(versionSetRequirement); ok && vs.kind == setAny {
		return t.pkg.String()
	}
	return t.pkg.String() + " " + t.req.String()
}
