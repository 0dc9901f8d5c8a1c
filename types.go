// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"strings"

	"github.com/pkg/errors"
)

// A PackageReference uniquely identifies a package to the solver. References
// compare by value; providers must hand out the same reference for the same
// package throughout a solve.
type PackageReference struct {
	// Identity is the stable identifier for the package.
	Identity string
	// Name is a display name, preferred over Identity when rendering
	// output for humans.
	Name string
	// Local marks a package rooted in the local filesystem rather than a
	// remote registry.
	Local bool
}

// syntheticRootIdentity is reserved for the root package the solver
// synthesizes at the start of every solve. No real package may use it.
const syntheticRootIdentity = "<synthesized-root>"

func (r PackageReference) String() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Identity
}

// A Constraint pairs a package with the requirement placed upon it, either
// by the user at top level or by another package's dependency list.
type Constraint struct {
	Ref PackageReference
	Req Requirement
}

func (c Constraint) String() string {
	return c.Ref.String() + " " + c.Req.String()
}

// ParseConstraint converts a "name requirement" pair, with the requirement
// in any form ParseRequirement accepts, into a Constraint.
func ParseConstraint(body string) (Constraint, error) {
	parts := strings.SplitN(body, " ", 2)
	if len(parts) < 2 {
		return Constraint{}, errors.Errorf("malformed constraint %q; want \"name requirement\"", body)
	}
	req, err := ParseRequirement(parts[1])
	if err != nil {
		return Constraint{}, err
	}
	return Constraint{Ref: PackageReference{Identity: parts[0]}, Req: req}, nil
}
