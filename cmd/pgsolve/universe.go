// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"sort"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"

	pubgrub "github.com/vsolver/pubgrub"
)

// universeFile is the on-disk shape of a fixture universe. Constraints are
// written as "name requirement" strings, requirements in the forms
// ParseRequirement accepts.
//
//	containers:
//	  a:
//	    versions:
//	      1.0.0: ["b ^1.0.0"]
//	      2.0.0: []
//	    revisions:
//	      develop: ["b ^1.0.0"]
//	    unversioned: ["b ^1.0.0"]
//	root:
//	  dependencies: ["a ^1.0.0"]
//	  pins: []
type universeFile struct {
	Containers map[string]containerFile `yaml:"containers"`
	Root       rootFile                 `yaml:"root"`
}

type containerFile struct {
	Versions    map[string][]string `yaml:"versions"`
	Revisions   map[string][]string `yaml:"revisions"`
	Unversioned *[]string           `yaml:"unversioned"`
}

type rootFile struct {
	Dependencies []string `yaml:"dependencies"`
	Pins         []string `yaml:"pins"`
}

type universe struct {
	containers   map[pubgrub.PackageReference]*fixtureContainer
	dependencies []pubgrub.Constraint
	pins         []pubgrub.Constraint
}

func loadUniverse(path string) (*universe, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading universe %s", path)
	}
	var uf universeFile
	if err := yaml.UnmarshalStrict(raw, &uf); err != nil {
		return nil, errors.Wrapf(err, "decoding universe %s", path)
	}

	u := &universe{containers: make(map[pubgrub.PackageReference]*fixtureContainer)}
	for name, cf := range uf.Containers {
		ref := pubgrub.PackageReference{Identity: name}
		fc := &fixtureContainer{
			ref:      ref,
			deps:     make(map[string][]pubgrub.Constraint),
			revDeps:  make(map[pubgrub.Revision][]pubgrub.Constraint),
			hasLocal: cf.Unversioned != nil,
		}
		for vs, deps := range cf.Versions {
			v, err := semver.NewVersion(vs)
			if err != nil {
				return nil, errors.Wrapf(err, "bad version %q for container %s", vs, name)
			}
			cs, err := parseConstraints(deps)
			if err != nil {
				return nil, errors.Wrapf(err, "container %s at %s", name, vs)
			}
			fc.versions = append(fc.versions, v)
			fc.deps[v.String()] = cs
		}
		// Highest first; the solver treats the first match as best.
		sort.Slice(fc.versions, func(i, j int) bool {
			return fc.versions[j].LessThan(fc.versions[i])
		})
		for rev, deps := range cf.Revisions {
			cs, err := parseConstraints(deps)
			if err != nil {
				return nil, errors.Wrapf(err, "container %s at revision %s", name, rev)
			}
			fc.revDeps[pubgrub.Revision(rev)] = cs
		}
		if cf.Unversioned != nil {
			cs, err := parseConstraints(*cf.Unversioned)
			if err != nil {
				return nil, errors.Wrapf(err, "container %s unversioned", name)
			}
			fc.localDeps = cs
		}
		u.containers[ref] = fc
	}

	if u.dependencies, err = parseConstraints(uf.Root.Dependencies); err != nil {
		return nil, errors.Wrap(err, "root dependencies")
	}
	if u.pins, err = parseConstraints(uf.Root.Pins); err != nil {
		return nil, errors.Wrap(err, "root pins")
	}
	return u, nil
}

func parseConstraints(specs []string) ([]pubgrub.Constraint, error) {
	var out []pubgrub.Constraint
	for _, s := range specs {
		c, err := pubgrub.ParseConstraint(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (u *universe) provider() pubgrub.ContainerProvider {
	return &fixtureProvider{containers: u.containers}
}

// fixtureProvider serves containers straight from the decoded universe. Its
// completions are synchronous; the gateway neither knows nor cares.
type fixtureProvider struct {
	containers map[pubgrub.PackageReference]*fixtureContainer
}

func (p *fixtureProvider) GetContainer(_ context.Context, ref pubgrub.PackageReference, _ bool, completion func(pubgrub.Container, error)) {
	c, ok := p.containers[ref]
	if !ok {
		completion(nil, errors.Errorf("unknown container %s", ref))
		return
	}
	completion(c, nil)
}

type fixtureContainer struct {
	ref       pubgrub.PackageReference
	versions  []*semver.Version
	deps      map[string][]pubgrub.Constraint
	revDeps   map[pubgrub.Revision][]pubgrub.Constraint
	localDeps []pubgrub.Constraint
	hasLocal  bool
}

func (c *fixtureContainer) Identifier() pubgrub.PackageReference {
	return c.ref
}

func (c *fixtureContainer) Versions(filter func(*semver.Version) bool) []*semver.Version {
	var out []*semver.Version
	for _, v := range c.versions {
		if filter == nil || filter(v) {
			out = append(out, v)
		}
	}
	return out
}

func (c *fixtureContainer) GetDependencies(at *semver.Version) ([]pubgrub.Constraint, error) {
	deps, ok := c.deps[at.String()]
	if !ok {
		return nil, errors.Errorf("container %s has no version %s", c.ref, at)
	}
	return deps, nil
}

func (c *fixtureContainer) GetRevisionDependencies(at pubgrub.Revision) ([]pubgrub.Constraint, error) {
	deps, ok := c.revDeps[at]
	if !ok {
		return nil, errors.Errorf("container %s has no revision %s", c.ref, at)
	}
	return deps, nil
}

func (c *fixtureContainer) GetUnversionedDependencies() ([]pubgrub.Constraint, error) {
	if !c.hasLocal {
		return nil, errors.Errorf("container %s has no local working copy", c.ref)
	}
	return c.localDeps, nil
}

func (c *fixtureContainer) GetUpdatedIdentifier(pubgrub.BoundVersion) (pubgrub.PackageReference, error) {
	return c.ref, nil
}
