// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import "fmt"

// setRelation describes how one term's admitted set stands to another's.
type setRelation int

const (
	relationDisjoint setRelation = iota
	relationOverlap
	relationSubset
)

func (r setRelation) String() string {
	switch r {
	case relationDisjoint:
		return "disjoint"
	case relationOverlap:
		return "overlap"
	case relationSubset:
		return "subset"
	}
	panic(fmt.Sprintf("canary - unknown relation %d", int(r)))
}

// A term is a signed statement about the form a single package may take.
// Positive terms assert membership in the requirement; negative terms assert
// exclusion from it. Terms about different packages never interact.
type term struct {
	pkg      PackageReference
	req      Requirement
	positive bool
}

func (t term) String() string {
	if t.positive {
		return t.pkg.String() + " " + t.req.String()
	}
	return "¬" + t.pkg.String() + " " + t.req.String()
}

func (t term) inverse() term {
	return term{pkg: t.pkg, req: t.req, positive: !t.positive}
}

// intersect combines two statements about the same package into one. The
// second return is false when the combined set is empty or has no
// representable form, such as two distinct revision pins.
func (t term) intersect(o term) (term, bool) {
	if t.pkg != o.pkg {
		panic(fmt.Sprintf("canary - intersecting terms for %s and %s", t.pkg, o.pkg))
	}

	switch l := t.req.(type) {
	case unversionedRequirement:
		if _, ok := o.req.(unversionedRequirement); ok {
			if t.positive == o.positive {
				return t, true
			}
			return term{}, false
		}
		// The working copy dominates version sets and revisions, but only
		// as a positive statement.
		if t.positive && o.positive {
			return t, true
		}
		return term{}, false
	case revisionRequirement:
		switch r := o.req.(type) {
		case revisionRequirement:
			if t.positive == o.positive && l.rev == r.rev {
				return t, true
			}
			return term{}, false
		case versionSetRequirement:
			// A revision pin is strictly stronger than any version set.
			if t.positive && o.positive {
				return t, true
			}
			return term{}, false
		case unversionedRequirement:
			if t.positive && o.positive {
				return o, true
			}
			return term{}, false
		}
	case versionSetRequirement:
		switch r := o.req.(type) {
		case revisionRequirement, unversionedRequirement:
			if t.positive && o.positive {
				return o, true
			}
			return term{}, false
		case versionSetRequirement:
			return intersectVersionSetTerms(t.pkg, l, t.positive, r, o.positive)
		}
	}
	panic(fmt.Sprintf("canary - unknown requirement type %T", t.req))
}

// difference returns the portion of t not admitted by o.
func (t term) difference(o term) (term, bool) {
	return t.intersect(o.inverse())
}

func intersectVersionSetTerms(pkg PackageReference, l versionSetRequirement, lpos bool, r versionSetRequirement, rpos bool) (term, bool) {
	var set versionSetRequirement
	var ok = true
	positive := true

	switch {
	case lpos && rpos:
		set = l.intersect(r)
	case lpos && !rpos:
		set, ok = l.intersectWithInverse(r)
	case !lpos && rpos:
		set, ok = r.intersectWithInverse(l)
	default:
		set = l.coveringSet(r)
		positive = false
	}

	if !ok || set.kind == setEmpty {
		return term{}, false
	}
	return term{pkg: pkg, req: set, positive: positive}, true
}

// relationTo reports how the set of bindings admitted by t stands to the set
// admitted by o. Both terms must concern the same package.
func (t term) relationTo(o term) setRelation {
	if t.pkg != o.pkg {
		panic(fmt.Sprintf("canary - relating terms for %s and %s", t.pkg, o.pkg))
	}

	switch {
	case t.positive && o.positive:
		if o.req.ContainsAll(t.req) {
			return relationSubset
		}
		if o.req.ContainsAny(t.req) {
			return relationOverlap
		}
		return relationDisjoint
	case !t.positive && o.positive:
		if t.req.ContainsAll(o.req) {
			return relationDisjoint
		}
		return relationOverlap
	case t.positive && !o.positive:
		if !t.req.ContainsAny(o.req) {
			return relationSubset
		}
		if o.req.ContainsAll(t.req) {
			return relationDisjoint
		}
		return relationOverlap
	default:
		if t.req.ContainsAll(o.req) {
			return relationSubset
		}
		return relationOverlap
	}
}

// satisfies reports whether t being true forces o to be true.
func (t term) satisfies(o term) bool {
	return t.pkg == o.pkg && t.relationTo(o) == relationSubset
}
