// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"context"

	"github.com/Masterminds/semver"
)

// A Container is the solver's window onto one package: the versions it
// offers and the constraints each of those versions imposes. Implementations
// own all repository and registry I/O; the solver only ever reads.
type Container interface {
	// Identifier returns the reference this container was resolved for.
	Identifier() PackageReference

	// Versions returns the versions passing filter, in descending
	// precedence order. A nil filter admits everything.
	Versions(filter func(*semver.Version) bool) []*semver.Version

	// GetDependencies returns the constraints the package imposes when
	// used at the given version.
	GetDependencies(at *semver.Version) ([]Constraint, error)

	// GetRevisionDependencies returns the constraints imposed at a named
	// revision.
	GetRevisionDependencies(at Revision) ([]Constraint, error)

	// GetUnversionedDependencies returns the constraints imposed by the
	// local working copy.
	GetUnversionedDependencies() ([]Constraint, error)

	// GetUpdatedIdentifier returns the reference to report for the
	// package once it has been bound; containers may canonicalize names
	// or paths after resolution.
	GetUpdatedIdentifier(at BoundVersion) (PackageReference, error)
}

// A ContainerProvider produces Containers on demand. Completion may be
// invoked from any goroutine; the gateway serializes and caches around it.
type ContainerProvider interface {
	GetContainer(ctx context.Context, ref PackageReference, skipUpdate bool, completion func(Container, error))
}
