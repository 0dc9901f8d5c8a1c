// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// mkv - "make version"
//
// This is for narrow use - panics on malformed test data.
func mkv(body string) *semver.Version {
	v, err := semver.NewVersion(body)
	if err != nil {
		panic(fmt.Sprintf("Error when converting '%s' into semver: %s", body, err))
	}
	return v
}

// mkr - "make requirement"
func mkr(body string) Requirement {
	r, err := ParseRequirement(body)
	if err != nil {
		panic(fmt.Sprintf("Error when converting '%s' into requirement: %s", body, err))
	}
	return r
}

// mkref - "make package reference"
func mkref(name string) PackageReference {
	return PackageReference{Identity: name}
}

// mkc - "make constraint"
//
// Splits the input on a space into package name and requirement body.
func mkc(info string) Constraint {
	c, err := ParseConstraint(info)
	if err != nil {
		panic(fmt.Sprintf("Error when converting '%s' into constraint: %s", info, err))
	}
	return c
}

func mkcs(infos []string) []Constraint {
	var out []Constraint
	for _, info := range infos {
		out = append(out, mkc(info))
	}
	return out
}

// depspec describes one binding a container offers, and the constraints
// that binding imposes. The binding is "name 1.0.0" for a version,
// "name @develop" for a revision, and "name unversioned" for the local
// working copy.
type depspec struct {
	name string
	spec string
	deps []string
}

// dsv - "depspec variant"
//
// Splits the first string into name and binding; the rest become the
// binding's dependency constraints. Panics on malformed test data.
func dsv(id string, deps ...string) depspec {
	s := strings.SplitN(id, " ", 2)
	if len(s) < 2 {
		panic(fmt.Sprintf("Malformed depspec string '%s'", id))
	}
	return depspec{name: s[0], spec: s[1], deps: deps}
}

// depspecContainer serves container queries straight from a set of
// depspecs.
type depspecContainer struct {
	ref       PackageReference
	versions  []*semver.Version
	deps      map[string][]Constraint
	revDeps   map[Revision][]Constraint
	localDeps []Constraint
	hasLocal  bool
}

func (c *depspecContainer) Identifier() PackageReference {
	return c.ref
}

func (c *depspecContainer) Versions(filter func(*semver.Version) bool) []*semver.Version {
	var out []*semver.Version
	for _, v := range c.versions {
		if filter == nil || filter(v) {
			out = append(out, v)
		}
	}
	return out
}

func (c *depspecContainer) GetDependencies(at *semver.Version) ([]Constraint, error) {
	deps, ok := c.deps[at.String()]
	if !ok {
		return nil, errors.Errorf("container %s has no version %s", c.ref, at)
	}
	return deps, nil
}

func (c *depspecContainer) GetRevisionDependencies(at Revision) ([]Constraint, error) {
	deps, ok := c.revDeps[at]
	if !ok {
		return nil, errors.Errorf("container %s has no revision %s", c.ref, at)
	}
	return deps, nil
}

func (c *depspecContainer) GetUnversionedDependencies() ([]Constraint, error) {
	if !c.hasLocal {
		return nil, errors.Errorf("container %s has no local working copy", c.ref)
	}
	return c.localDeps, nil
}

func (c *depspecContainer) GetUpdatedIdentifier(BoundVersion) (PackageReference, error) {
	return c.ref, nil
}

// depspecProvider hands out depspecContainers, counting calls and
// optionally completing asynchronously after a delay.
type depspecProvider struct {
	containers map[PackageReference]*depspecContainer

	async bool
	delay time.Duration

	mu    sync.Mutex
	calls map[PackageReference]int
}

func mkProvider(specs []depspec) *depspecProvider {
	p := &depspecProvider{
		containers: make(map[PackageReference]*depspecContainer),
		calls:      make(map[PackageReference]int),
	}
	for _, ds := range specs {
		ref := mkref(ds.name)
		c, ok := p.containers[ref]
		if !ok {
			c = &depspecContainer{
				ref:     ref,
				deps:    make(map[string][]Constraint),
				revDeps: make(map[Revision][]Constraint),
			}
			p.containers[ref] = c
		}

		cs := mkcs(ds.deps)
		switch {
		case ds.spec == "unversioned":
			c.hasLocal = true
			c.localDeps = cs
		case strings.HasPrefix(ds.spec, "@"):
			c.revDeps[Revision(ds.spec[1:])] = cs
		default:
			v := mkv(ds.spec)
			c.versions = append(c.versions, v)
			c.deps[v.String()] = cs
		}
	}

	// Highest first; the solver takes the first match as best.
	for _, c := range p.containers {
		sort.Slice(c.versions, func(i, j int) bool {
			return c.versions[j].LessThan(c.versions[i])
		})
	}
	return p
}

func (p *depspecProvider) GetContainer(_ context.Context, ref PackageReference, _ bool, completion func(Container, error)) {
	p.mu.Lock()
	p.calls[ref]++
	p.mu.Unlock()

	finish := func() {
		c, ok := p.containers[ref]
		if !ok {
			completion(nil, errors.Errorf("unknown container %s", ref))
			return
		}
		completion(c, nil)
	}
	if p.async {
		go func() {
			time.Sleep(p.delay)
			finish()
		}()
		return
	}
	finish()
}

func (p *depspecProvider) callCount(ref PackageReference) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[ref]
}

func (p *depspecProvider) totalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

// recordingDelegate captures structured trace records for assertions.
type recordingDelegate struct {
	mu        sync.Mutex
	general   []GeneralTrace
	conflicts []ConflictTrace
}

func (d *recordingDelegate) Trace(g GeneralTrace) {
	d.mu.Lock()
	d.general = append(d.general, g)
	d.mu.Unlock()
}

func (d *recordingDelegate) TraceConflict(c ConflictTrace) {
	d.mu.Lock()
	d.conflicts = append(d.conflicts, c)
	d.mu.Unlock()
}

func quietLogger() *logrus.Logger {
	lg := logrus.New()
	lg.SetOutput(io.Discard)
	return lg
}

func bindingStrings(bindings []Binding) []string {
	var out []string
	for _, b := range bindings {
		out = append(out, b.String())
	}
	sort.Strings(out)
	return out
}
