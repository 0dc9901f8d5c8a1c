// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import "fmt"

// An assignment is one entry in the partial solution's log: either a
// decision committing a package to a concrete binding, or a derivation
// forced by unit propagation. Derivations carry the incompatibility that
// forced them; decisions have a nil cause.
type assignment struct {
	term          term
	cause         *incompatibility
	decisionLevel int
	index         int
}

func (a assignment) isDecision() bool {
	return a.cause == nil
}

func (a assignment) String() string {
	if a.isDecision() {
		return fmt.Sprintf("decision %s (level %d)", a.term, a.decisionLevel)
	}
	return fmt.Sprintf("derivation %s (level %d)", a.term, a.decisionLevel)
}

// partialSolution is the solver's only mutable state during a solve: an
// append-only log of assignments plus caches derived from it. Replaying the
// log from empty must reconstruct the caches exactly; backtracking relies
// on that.
type partialSolution struct {
	assignments []assignment

	// positive holds, per package, the intersection of all positive terms
	// seen, net of any negative terms. posOrder preserves first-insertion
	// order, which drives decision order.
	positive map[PackageReference]term
	posOrder []PackageReference

	// negative holds the merged negative terms for packages with no
	// positive statement yet. A package is never in both maps.
	negative map[PackageReference]term

	decisions map[PackageReference]BoundVersion
}

func newPartialSolution() *partialSolution {
	return &partialSolution{
		positive:  make(map[PackageReference]term),
		negative:  make(map[PackageReference]term),
		decisions: make(map[PackageReference]BoundVersion),
	}
}

// decisionLevel is the number of decisions made so far, less one; the root
// decision sits at level zero.
func (ps *partialSolution) decisionLevel() int {
	return len(ps.decisions) - 1
}

// derive appends a derivation forced by cause.
func (ps *partialSolution) derive(t term, cause *incompatibility) assignment {
	a := assignment{
		term:          t,
		cause:         cause,
		decisionLevel: ps.decisionLevel(),
		index:         len(ps.assignments),
	}
	ps.assignments = append(ps.assignments, a)
	ps.register(a)
	return a
}

// decide commits pkg to bound, raising the decision level.
func (ps *partialSolution) decide(pkg PackageReference, bound BoundVersion) assignment {
	ps.decisions[pkg] = bound
	a := assignment{
		term:          term{pkg: pkg, req: requirementOf(bound), positive: true},
		decisionLevel: ps.decisionLevel(),
		index:         len(ps.assignments),
	}
	ps.assignments = append(ps.assignments, a)
	ps.register(a)
	return a
}

// requirementOf maps a concrete binding to the requirement form a decision
// records in the log.
func requirementOf(bound BoundVersion) Requirement {
	switch b := bound.(type) {
	case VersionBound:
		return ExactVersion(b.V)
	case RevisionBound:
		return AtRevision(b.R)
	case UnversionedBound:
		return Unversioned()
	case ExcludedBound:
		panic("canary - excluded binding in a decision")
	}
	panic(fmt.Sprintf("canary - unknown bound type %T", bound))
}

// register folds a into the positive/negative caches.
func (ps *partialSolution) register(a assignment) {
	pkg := a.term.pkg

	if p, ok := ps.positive[pkg]; ok {
		merged, ok := p.intersect(a.term)
		if !ok {
			panic(fmt.Sprintf("canary - assignment log contradicts itself: %s against %s", p, a.term))
		}
		ps.positive[pkg] = merged
		return
	}

	nt := a.term
	if n, ok := ps.negative[pkg]; ok {
		merged, ok := a.term.intersect(n)
		if !ok {
			panic(fmt.Sprintf("canary - assignment log contradicts itself: %s against %s", a.term, n))
		}
		nt = merged
	}

	if nt.positive {
		delete(ps.negative, pkg)
		ps.positive[pkg] = nt
		ps.posOrder = append(ps.posOrder, pkg)
	} else {
		ps.negative[pkg] = nt
	}
}

// satisfier scans the log in order and returns the earliest assignment after
// which the accumulated statement about t's package is a subset of t. The
// caller must only ask about terms the solution actually satisfies.
func (ps *partialSolution) satisfier(t term) assignment {
	var acc term
	var have bool
	for _, a := range ps.assignments {
		if a.term.pkg != t.pkg {
			continue
		}
		if !have {
			acc, have = a.term, true
		} else {
			merged, ok := acc.intersect(a.term)
			if !ok {
				panic(fmt.Sprintf("canary - assignment log contradicts itself at %s", a))
			}
			acc = merged
		}
		if acc.satisfies(t) {
			return a
		}
	}
	panic(fmt.Sprintf("canary - no satisfier for %s", t))
}

// backtrack drops every assignment above level and rebuilds the caches by
// replaying the survivors.
func (ps *partialSolution) backtrack(level int) {
	i := len(ps.assignments)
	for i > 0 && ps.assignments[i-1].decisionLevel > level {
		a := ps.assignments[i-1]
		if a.isDecision() {
			delete(ps.decisions, a.term.pkg)
		}
		i--
	}
	ps.assignments = ps.assignments[:i]

	ps.positive = make(map[PackageReference]term)
	ps.negative = make(map[PackageReference]term)
	ps.posOrder = ps.posOrder[:0]
	for _, a := range ps.assignments {
		ps.register(a)
	}
}

// relationTo reports how the solution's accumulated knowledge stands to t.
// A package the solution knows nothing about overlaps everything.
func (ps *partialSolution) relationTo(t term) setRelation {
	if p, ok := ps.positive[t.pkg]; ok {
		return p.relationTo(t)
	}
	if n, ok := ps.negative[t.pkg]; ok {
		return n.relationTo(t)
	}
	return relationOverlap
}

// satisfies reports whether the solution forces t to be true.
func (ps *partialSolution) satisfies(t term) bool {
	return ps.relationTo(t) == relationSubset
}

// undecided returns the positive-cache terms of packages without a
// decision, in first-insertion order.
func (ps *partialSolution) undecided() []term {
	var out []term
	for _, pkg := range ps.posOrder {
		if _, decided := ps.decisions[pkg]; decided {
			continue
		}
		out = append(out, ps.positive[pkg])
	}
	return out
}
