// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
)

// A Requirement provides structured limitations on the form a package may
// take: a set of released versions, a pinned revision, or the local working
// copy.
//
// As with BoundVersion, it has a private method because the solver's
// internal treatment of the problem is complete, and the system relies on
// exhaustive switches over the closed set of variants.
type Requirement interface {
	fmt.Stringer
	// ContainsAll indicates whether every binding admitted by other is
	// also admitted by the receiver.
	ContainsAll(other Requirement) bool
	// ContainsAny indicates whether the receiver and other admit at least
	// one binding in common.
	ContainsAny(other Requirement) bool
	// Equal reports semantic equality with other.
	Equal(other Requirement) bool
	_private()
}

func (versionSetRequirement) _private() {}
func (revisionRequirement) _private()   {}
func (unversionedRequirement) _private() {}

type setKind int

const (
	setAny setKind = iota
	setEmpty
	setExact
	setRange
)

// versionSetRequirement admits a set of released versions. The set takes one
// of four shapes: everything, nothing, a single version, or a half-open
// range [lo, hi). A single version behaves as the degenerate range
// [v, v+epsilon) for containment purposes.
type versionSetRequirement struct {
	kind  setKind
	exact *semver.Version
	lo    *semver.Version
	hi    *semver.Version // nil means unbounded above
}

// revisionRequirement pins a package to a named revision. Revision pins are
// strictly stronger than version sets: a version set is always considered to
// contain a revision, never the reverse.
type revisionRequirement struct {
	rev Revision
}

// unversionedRequirement binds a package to its local working copy, which
// dominates any version set or revision in solver semantics.
type unversionedRequirement struct{}

// AnyVersion returns a requirement admitting every released version.
func AnyVersion() Requirement {
	return versionSetRequirement{kind: setAny}
}

// NoVersion returns the empty requirement. It is the identity for union and
// the annihilator for intersection.
func NoVersion() Requirement {
	return versionSetRequirement{kind: setEmpty}
}

// ExactVersion returns a requirement admitting only v.
func ExactVersion(v *semver.Version) Requirement {
	return versionSetRequirement{kind: setExact, exact: v}
}

// VersionRange returns a requirement admitting versions in [lo, hi). A nil
// hi leaves the range unbounded above.
func VersionRange(lo, hi *semver.Version) Requirement {
	return versionSetRequirement{kind: setRange, lo: lo, hi: hi}
}

// Caret returns the range [v, nextMajor(v)).
func Caret(v *semver.Version) Requirement {
	return VersionRange(v, nextMajor(v))
}

// AtRevision returns a requirement pinning a package to rev.
func AtRevision(rev Revision) Requirement {
	return revisionRequirement{rev: rev}
}

// Unversioned returns the requirement binding a package to its local
// working copy.
func Unversioned() Requirement {
	return unversionedRequirement{}
}

// ParseRequirement converts the textual forms used in pinning files and
// fixture universes back into a Requirement. The accepted forms round-trip
// with Requirement.String:
//
//	*                  any version
//	none               no version
//	^1.2.3             [1.2.3, 2.0.0)
//	1.2.3..<2.1.0      half-open range
//	1.2.3..<           unbounded range
//	1.2.3              exactly 1.2.3
//	@develop           the revision "develop"
//	unversioned        the local working copy
func ParseRequirement(body string) (Requirement, error) {
	switch {
	case body == "*":
		return AnyVersion(), nil
	case body == "none":
		return NoVersion(), nil
	case body == "unversioned":
		return Unversioned(), nil
	case strings.HasPrefix(body, "@"):
		if len(body) == 1 {
			return nil, errors.New("empty revision name")
		}
		return AtRevision(Revision(body[1:])), nil
	case strings.HasPrefix(body, "^"):
		v, err := semver.NewVersion(body[1:])
		if err != nil {
			return nil, errors.Wrapf(err, "bad caret requirement %q", body)
		}
		return Caret(v), nil
	case strings.Contains(body, "..<"):
		parts := strings.SplitN(body, "..<", 2)
		lo, err := semver.NewVersion(parts[0])
		if err != nil {
			return nil, errors.Wrapf(err, "bad range lower bound in %q", body)
		}
		if parts[1] == "" {
			return VersionRange(lo, nil), nil
		}
		hi, err := semver.NewVersion(parts[1])
		if err != nil {
			return nil, errors.Wrapf(err, "bad range upper bound in %q", body)
		}
		return VersionRange(lo, hi), nil
	default:
		v, err := semver.NewVersion(body)
		if err != nil {
			return nil, errors.Wrapf(err, "bad requirement %q", body)
		}
		return ExactVersion(v), nil
	}
}

func (v versionSetRequirement) String() string {
	switch v.kind {
	case setAny:
		return "*"
	case setEmpty:
		return "none"
	case setExact:
		return v.exact.String()
	case setRange:
		if v.hi == nil {
			return v.lo.String() + "..<"
		}
		if v.hi.Equal(nextMajor(v.lo)) {
			return "^" + v.lo.String()
		}
		return v.lo.String() + "..<" + v.hi.String()
	}
	panic(fmt.Sprintf("canary - unknown version set kind %d", v.kind))
}

func (r revisionRequirement) String() string {
	return "@" + string(r.rev)
}

func (unversionedRequirement) String() string {
	return "unversioned"
}

// The containment tables below are ordered; earlier cases win. In
// particular, the local working copy beats revision pins, and revision pins
// beat version sets.

func (v versionSetRequirement) ContainsAll(other Requirement) bool {
	switch o := other.(type) {
	case unversionedRequirement:
		return true
	case revisionRequirement:
		return true
	case versionSetRequirement:
		return v.intersect(o).equalSet(o)
	}
	panic(fmt.Sprintf("canary - unknown requirement type %T", other))
}

func (v versionSetRequirement) ContainsAny(other Requirement) bool {
	switch o := other.(type) {
	case unversionedRequirement:
		return true
	case revisionRequirement:
		return true
	case versionSetRequirement:
		return v.intersect(o).kind != setEmpty
	}
	panic(fmt.Sprintf("canary - unknown requirement type %T", other))
}

func (r revisionRequirement) ContainsAll(other Requirement) bool {
	switch o := other.(type) {
	case unversionedRequirement:
		return true
	case revisionRequirement:
		return r.rev == o.rev
	case versionSetRequirement:
		return false
	}
	panic(fmt.Sprintf("canary - unknown requirement type %T", other))
}

func (r revisionRequirement) ContainsAny(other Requirement) bool {
	switch o := other.(type) {
	case unversionedRequirement:
		return true
	case revisionRequirement:
		return r.rev == o.rev
	case versionSetRequirement:
		return false
	}
	panic(fmt.Sprintf("canary - unknown requirement type %T", other))
}

func (unversionedRequirement) ContainsAll(other Requirement) bool {
	switch other.(type) {
	case unversionedRequirement:
		return true
	case revisionRequirement, versionSetRequirement:
		return false
	}
	panic(fmt.Sprintf("canary - unknown requirement type %T", other))
}

func (unversionedRequirement) ContainsAny(other Requirement) bool {
	switch other.(type) {
	case unversionedRequirement:
		return true
	case revisionRequirement, versionSetRequirement:
		return false
	}
	panic(fmt.Sprintf("canary - unknown requirement type %T", other))
}

func (v versionSetRequirement) Equal(other Requirement) bool {
	o, ok := other.(versionSetRequirement)
	return ok && v.equalSet(o)
}

func (r revisionRequirement) Equal(other Requirement) bool {
	o, ok := other.(revisionRequirement)
	return ok && r.rev == o.rev
}

func (unversionedRequirement) Equal(other Requirement) bool {
	_, ok := other.(unversionedRequirement)
	return ok
}

func (v versionSetRequirement) equalSet(o versionSetRequirement) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case setAny, setEmpty:
		return true
	case setExact:
		return v.exact.Equal(o.exact)
	case setRange:
		if !v.lo.Equal(o.lo) {
			return false
		}
		if (v.hi == nil) != (o.hi == nil) {
			return false
		}
		return v.hi == nil || v.hi.Equal(o.hi)
	}
	panic(fmt.Sprintf("canary - unknown version set kind %d", v.kind))
}

// contains reports whether ver is a member of the set. Prerelease versions
// are members only when the set's own bounds carry a prerelease component.
func (v versionSetRequirement) contains(ver *semver.Version) bool {
	switch v.kind {
	case setAny:
		return ver.Prerelease() == ""
	case setEmpty:
		return false
	case setExact:
		return v.exact.Equal(ver)
	case setRange:
		if ver.Prerelease() != "" && v.lo.Prerelease() == "" && (v.hi == nil || v.hi.Prerelease() == "") {
			return false
		}
		if ver.LessThan(v.lo) {
			return false
		}
		return v.hi == nil || ver.LessThan(v.hi)
	}
	panic(fmt.Sprintf("canary - unknown version set kind %d", v.kind))
}

func (v versionSetRequirement) intersect(o versionSetRequirement) versionSetRequirement {
	if v.kind == setEmpty || o.kind == setEmpty {
		return versionSetRequirement{kind: setEmpty}
	}
	if v.kind == setAny {
		return o
	}
	if o.kind == setAny {
		return v
	}

	switch {
	case v.kind == setExact && o.kind == setExact:
		if v.exact.Equal(o.exact) {
			return v
		}
		return versionSetRequirement{kind: setEmpty}
	case v.kind == setExact:
		if o.contains(v.exact) {
			return v
		}
		return versionSetRequirement{kind: setEmpty}
	case o.kind == setExact:
		if v.contains(o.exact) {
			return o
		}
		return versionSetRequirement{kind: setEmpty}
	}

	// Two ranges: max of lowers, min of uppers, empty if disordered.
	lo := v.lo
	if o.lo.GreaterThan(lo) {
		lo = o.lo
	}
	hi := v.hi
	if hi == nil || (o.hi != nil && o.hi.LessThan(hi)) {
		hi = o.hi
	}
	if hi != nil && !lo.LessThan(hi) {
		return versionSetRequirement{kind: setEmpty}
	}
	return versionSetRequirement{kind: setRange, lo: lo, hi: hi}
}

// intersectWithInverse computes the receiver minus o. The result is an
// empty, equal, or trimmed set; when o splits the receiver strictly in two,
// only the lower remainder is kept. The second return is false when the
// remainder has no representable shape.
func (v versionSetRequirement) intersectWithInverse(o versionSetRequirement) (versionSetRequirement, bool) {
	empty := versionSetRequirement{kind: setEmpty}
	if o.kind == setEmpty {
		return v, true
	}
	if o.kind == setAny || v.kind == setEmpty {
		return empty, true
	}

	switch v.kind {
	case setExact:
		if o.contains(v.exact) {
			return empty, true
		}
		return v, true
	case setAny:
		switch o.kind {
		case setExact:
			return versionSetRequirement{}, false
		case setRange:
			if o.hi == nil {
				return versionSetRequirement{kind: setRange, lo: zeroVersion, hi: o.lo}, true
			}
			if o.lo.Equal(zeroVersion) || o.lo.LessThan(zeroVersion) {
				return versionSetRequirement{kind: setRange, lo: o.hi, hi: nil}, true
			}
			return versionSetRequirement{kind: setRange, lo: zeroVersion, hi: o.lo}, true
		}
	case setRange:
		switch o.kind {
		case setExact:
			if !v.contains(o.exact) {
				return v, true
			}
			if o.exact.Equal(v.lo) {
				return versionSetRequirement{}, false
			}
			return versionSetRequirement{kind: setRange, lo: v.lo, hi: o.exact}, true
		case setRange:
			// Disjoint ranges leave the receiver whole.
			if o.hi != nil && !v.lo.LessThan(o.hi) {
				return v, true
			}
			if v.hi != nil && !o.lo.LessThan(v.hi) {
				return v, true
			}
			covers := !v.lo.LessThan(o.lo) && (o.hi == nil || (v.hi != nil && !o.hi.LessThan(v.hi)))
			if covers {
				return empty, true
			}
			if !v.lo.LessThan(o.lo) {
				// o clips the bottom of the receiver.
				if o.hi == nil || (v.hi != nil && !o.hi.LessThan(v.hi)) {
					return empty, true
				}
				return versionSetRequirement{kind: setRange, lo: o.hi, hi: v.hi}, true
			}
			// o clips the top, or sits strictly inside; either way the
			// lower remainder survives.
			return versionSetRequirement{kind: setRange, lo: v.lo, hi: o.lo}, true
		}
	}
	panic(fmt.Sprintf("canary - unhandled version set pair %d/%d", v.kind, o.kind))
}

// coveringSet returns the smallest single range containing both operands
// when both are ranges; all other shapes fall back to intersection.
func (v versionSetRequirement) coveringSet(o versionSetRequirement) versionSetRequirement {
	if v.kind != setRange || o.kind != setRange {
		return v.intersect(o)
	}
	lo := v.lo
	if o.lo.LessThan(lo) {
		lo = o.lo
	}
	hi := v.hi
	if hi != nil && (o.hi == nil || o.hi.GreaterThan(hi)) {
		hi = o.hi
	}
	return versionSetRequirement{kind: setRange, lo: lo, hi: hi}
}

var zeroVersion = semver.MustParse("0.0.0")
