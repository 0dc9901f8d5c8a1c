// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// A Revision names a commit, branch, or tag in a package's underlying
// repository. Revisions are opaque to the solver; two revisions are the same
// binding iff their strings are equal.
type Revision string

func (r Revision) String() string {
	return string(r)
}

// BoundVersion is the concrete form a package takes once the solver has
// committed to it.
//
// It has a private method because the set of bound forms is closed; the
// solver relies on exhaustive type switches over these variants.
type BoundVersion interface {
	fmt.Stringer
	_bound()
}

func (VersionBound) _bound()     {}
func (RevisionBound) _bound()    {}
func (UnversionedBound) _bound() {}
func (ExcludedBound) _bound()    {}

// VersionBound binds a package to a single released version.
type VersionBound struct {
	V *semver.Version
}

func (b VersionBound) String() string {
	return b.V.String()
}

// RevisionBound binds a package to a named revision.
type RevisionBound struct {
	R Revision
}

func (b RevisionBound) String() string {
	return "revision " + string(b.R)
}

// UnversionedBound binds a package to its local working copy.
type UnversionedBound struct{}

func (UnversionedBound) String() string {
	return "unversioned"
}

// ExcludedBound marks a package as unusable. The solver never produces it;
// encountering one in a decision is an internal error.
type ExcludedBound struct{}

func (ExcludedBound) String() string {
	return "excluded"
}

// nextMajor returns the smallest version with a major component greater than
// v's, the upper bound used when widening a picked version into a range.
func nextMajor(v *semver.Version) *semver.Version {
	return semver.MustParse(fmt.Sprintf("%d.0.0", v.Major()+1))
}
