// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"testing"
)

type basicFixture struct {
	// name of the fixture
	n string
	// depspecs for the universe of containers
	ds []depspec
	// top-level dependencies
	root []string
	// pinned constraints, folded in ahead of root
	pins []string
	// expected bindings, as Binding strings
	r []string
	// expect failure; errp substrings must all appear in the message
	fail bool
	errp []string
}

var basicFixtures = []basicFixture{
	{
		n: "simple dependency tree",
		ds: []depspec{
			dsv("a 1.0.0", "aa ^1.0.0", "ab ^1.0.0"),
			dsv("aa 1.0.0"),
			dsv("ab 1.0.0"),
			dsv("b 1.0.0", "ba ^1.0.0", "bb ^1.0.0"),
			dsv("ba 1.0.0"),
			dsv("bb 1.0.0"),
		},
		root: []string{"a ^1.0.0", "b ^1.0.0"},
		r: []string{
			"a 1.0.0", "aa 1.0.0", "ab 1.0.0",
			"b 1.0.0", "ba 1.0.0", "bb 1.0.0",
		},
	},
	{
		n: "chained transitive dependency",
		ds: []depspec{
			dsv("a 1.0.0", "b ^1.0.0"),
			dsv("b 1.0.0", "c ^1.0.0"),
			dsv("c 1.0.0"),
			dsv("c 2.0.0"),
		},
		root: []string{"a ^1.0.0"},
		r:    []string{"a 1.0.0", "b 1.0.0", "c 1.0.0"},
	},
	{
		n: "newest matching version wins",
		ds: []depspec{
			dsv("a 1.0.0", "b ^1.0.0"),
			dsv("a 2.0.0", "b ^2.0.0"),
			dsv("b 1.0.0"),
			dsv("b 2.0.0"),
		},
		root: []string{"a *"},
		r:    []string{"a 2.0.0", "b 2.0.0"},
	},
	{
		n: "shared dependency with overlapping constraints",
		ds: []depspec{
			dsv("a 1.0.0", "shared ^1.0.0"),
			dsv("b 1.0.0", "shared 1.2.0..<2.0.0"),
			dsv("shared 1.0.0"),
			dsv("shared 1.2.0"),
			dsv("shared 1.5.0"),
			dsv("shared 2.0.0"),
		},
		root: []string{"a ^1.0.0", "b ^1.0.0"},
		r:    []string{"a 1.0.0", "b 1.0.0", "shared 1.5.0"},
	},
	{
		n: "backjumps after a conflicting decision",
		ds: []depspec{
			dsv("foo 2.0.0", "bar ^1.0.0"),
			dsv("foo 1.0.0"),
			dsv("bar 1.0.0", "foo ^1.0.0"),
		},
		root: []string{"foo *"},
		r:    []string{"foo 1.0.0"},
	},
	{
		n: "unsatisfiable transitive constraint",
		ds: []depspec{
			dsv("a 1.0.0", "b ^1.0.0"),
			dsv("b 1.0.0", "c ^1.0.0"),
			dsv("c 1.0.0"),
			dsv("c 2.0.0"),
		},
		root: []string{"a ^1.0.0", "c ^2.0.0"},
		fail: true,
		errp: []string{"a ^1.0.0", "b ^1.0.0", "c ^1.0.0", "c ^2.0.0", "version solving failed"},
	},
	{
		n: "exact pin narrows a range",
		ds: []depspec{
			dsv("a 1.0.0"),
			dsv("a 1.1.0"),
		},
		root: []string{"a ^1.0.0"},
		pins: []string{"a 1.0.0"},
		r:    []string{"a 1.0.0"},
	},
	{
		n: "revision pin listed first wins over a range",
		ds: []depspec{
			dsv("c @develop"),
			dsv("c 1.0.0"),
		},
		root: []string{"c @develop", "c ^1.0.0"},
		r:    []string{"c revision develop"},
	},
	{
		n: "range listed first makes a later revision pin unsatisfiable",
		ds: []depspec{
			dsv("c @develop"),
			dsv("c 1.0.0"),
		},
		root: []string{"c ^1.0.0", "c @develop"},
		fail: true,
		errp: []string{"c ^1.0.0", "c @develop", "version solving failed"},
	},
	{
		n: "local working copy dominates version constraints",
		ds: []depspec{
			dsv("b unversioned", "a ^1.0.0"),
			dsv("a 1.0.0"),
		},
		root: []string{"b unversioned", "a 1.0.0"},
		r:    []string{"a 1.0.0", "b unversioned"},
	},
	{
		n: "no matching version",
		ds: []depspec{
			dsv("a 1.0.0"),
		},
		root: []string{"a ^2.0.0"},
		fail: true,
		errp: []string{"no versions of a match the requirement ^2.0.0", "version solving failed"},
	},
	{
		n: "prerelease versions are not picked by release ranges",
		ds: []depspec{
			dsv("a 1.0.0"),
			dsv("a 1.1.0-beta.1"),
		},
		root: []string{"a ^1.0.0"},
		r:    []string{"a 1.0.0"},
	},
	{
		n: "learned clause prunes repeated conflicts",
		ds: []depspec{
			dsv("a 3.0.0", "x 1.0.0..<"),
			dsv("a 2.0.0", "x 1.0.0..<"),
			dsv("a 1.0.0"),
			dsv("x 1.0.0", "y 2.0.0..<"),
			dsv("y 1.0.0"),
		},
		root: []string{"a *"},
		r:    []string{"a 1.0.0"},
	},
}

func (f basicFixture) run(t *testing.T) {
	prov := mkProvider(f.ds)
	s, err := NewSolver(prov, SolveParameters{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewSolver failed: %s", err)
	}
	defer s.Close()

	bindings, err := s.Solve(context.Background(), mkcs(f.root), mkcs(f.pins))
	if f.fail {
		if err == nil {
			t.Fatalf("expected solve to fail, got %v", bindingStrings(bindings))
		}
		for _, sub := range f.errp {
			if !strings.Contains(err.Error(), sub) {
				t.Errorf("error missing %q:\n%s", sub, err)
			}
		}
		return
	}

	if err != nil {
		t.Fatalf("solve failed: %s", err)
	}
	got := bindingStrings(bindings)
	want := append([]string(nil), f.r...)
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("wrong bindings:\n\t(GOT): %v\n\t(WNT): %v", got, want)
	}
}

func TestBasicSolves(t *testing.T) {
	for _, f := range basicFixtures {
		t.Run(f.n, func(t *testing.T) {
			f.run(t)
		})
	}
}

func TestSolveIsDeterministic(t *testing.T) {
	f := basicFixtures[3]

	var prev []string
	for i := 0; i < 3; i++ {
		prov := mkProvider(f.ds)
		s, err := NewSolver(prov, SolveParameters{Logger: quietLogger()})
		if err != nil {
			t.Fatalf("NewSolver failed: %s", err)
		}
		bindings, err := s.Solve(context.Background(), mkcs(f.root), mkcs(f.pins))
		s.Close()
		if err != nil {
			t.Fatalf("solve %d failed: %s", i, err)
		}
		got := bindingStrings(bindings)
		if prev != nil && !reflect.DeepEqual(prev, got) {
			t.Fatalf("solve %d diverged:\n\t(GOT): %v\n\t(WNT): %v", i, got, prev)
		}
		prev = got
	}
}

func TestSolverIsSingleUse(t *testing.T) {
	prov := mkProvider([]depspec{dsv("a 1.0.0")})
	s, err := NewSolver(prov, SolveParameters{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewSolver failed: %s", err)
	}
	defer s.Close()

	if _, err := s.Solve(context.Background(), mkcs([]string{"a ^1.0.0"}), nil); err != nil {
		t.Fatalf("first solve failed: %s", err)
	}
	_, err = s.Solve(context.Background(), mkcs([]string{"a ^1.0.0"}), nil)
	if _, ok := err.(BadOptsFailure); !ok {
		t.Fatalf("second solve should fail with BadOptsFailure, got %v", err)
	}
}

func TestUnresolvableDiagnostic(t *testing.T) {
	ds := []depspec{
		dsv("a 1.0.0", "b ^1.0.0"),
		dsv("b 1.0.0", "c ^1.0.0"),
		dsv("c 1.0.0"),
		dsv("c 2.0.0"),
	}
	prov := mkProvider(ds)
	s, err := NewSolver(prov, SolveParameters{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewSolver failed: %s", err)
	}
	defer s.Close()

	_, err = s.Solve(context.Background(), mkcs([]string{"a ^1.0.0", "c ^2.0.0"}), nil)
	ure, ok := err.(*UnresolvableError)
	if !ok {
		t.Fatalf("expected *UnresolvableError, got %v", err)
	}

	want := "Because a ^1.0.0 depends on b ^1.0.0 and b ^1.0.0 depends on c ^1.0.0, a ^1.0.0 requires c ^1.0.0.\n" +
		"And because root depends on a ^1.0.0 and root depends on c ^2.0.0, version solving failed."
	if ure.Diagnostic != want {
		t.Errorf("wrong diagnostic:\n\t(GOT): %q\n\t(WNT): %q", ure.Diagnostic, want)
	}
}

func TestIncompatibleConstraints(t *testing.T) {
	ds := []depspec{
		dsv("a 1.0.0", "b @develop"),
		dsv("b @develop"),
	}
	prov := mkProvider(ds)
	s, err := NewSolver(prov, SolveParameters{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewSolver failed: %s", err)
	}
	defer s.Close()

	_, err = s.Solve(context.Background(), mkcs([]string{"a ^1.0.0"}), nil)
	ice, ok := err.(*IncompatibleConstraintsError)
	if !ok {
		t.Fatalf("expected *IncompatibleConstraintsError, got %v", err)
	}
	if ice.Depender != mkref("a") {
		t.Errorf("wrong depender: %s", ice.Depender)
	}
	if len(ice.Constraints) != 1 || ice.Constraints[0].Ref != mkref("b") {
		t.Errorf("wrong pinned constraints: %v", ice.Constraints)
	}
}

func TestRevisionCycle(t *testing.T) {
	ds := []depspec{
		dsv("a @develop", "b @develop"),
		dsv("b @develop", "a @develop"),
	}
	prov := mkProvider(ds)
	s, err := NewSolver(prov, SolveParameters{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewSolver failed: %s", err)
	}
	defer s.Close()

	_, err = s.Solve(context.Background(), mkcs([]string{"a @develop"}), nil)
	ce, ok := err.(*CycleError)
	if !ok {
		t.Fatalf("expected *CycleError, got %v", err)
	}
	if ce.Ref != mkref("a") {
		t.Errorf("wrong cycle package: %s", ce.Ref)
	}
}

func TestRevisionDependenciesResolve(t *testing.T) {
	ds := []depspec{
		dsv("a @develop", "b ^1.0.0"),
		dsv("b 1.0.0"),
		dsv("b 1.5.0"),
	}
	prov := mkProvider(ds)
	s, err := NewSolver(prov, SolveParameters{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewSolver failed: %s", err)
	}
	defer s.Close()

	bindings, err := s.Solve(context.Background(), mkcs([]string{"a @develop"}), nil)
	if err != nil {
		t.Fatalf("solve failed: %s", err)
	}
	got := bindingStrings(bindings)
	want := []string{"a revision develop", "b 1.5.0"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("wrong bindings:\n\t(GOT): %v\n\t(WNT): %v", got, want)
	}
}

func TestTraceAndDelegate(t *testing.T) {
	ds := []depspec{
		dsv("foo 2.0.0", "bar ^1.0.0"),
		dsv("foo 1.0.0"),
		dsv("bar 1.0.0", "foo ^1.0.0"),
	}
	prov := mkProvider(ds)

	var buf strings.Builder
	del := &recordingDelegate{}
	s, err := NewSolver(prov, SolveParameters{
		Logger:      quietLogger(),
		TraceWriter: &buf,
		Delegate:    del,
	})
	if err != nil {
		t.Fatalf("NewSolver failed: %s", err)
	}
	defer s.Close()

	if _, err := s.Solve(context.Background(), mkcs([]string{"foo *"}), nil); err != nil {
		t.Fatalf("solve failed: %s", err)
	}

	out := buf.String()
	if !strings.Contains(out, successChar) {
		t.Errorf("trace output missing decision glyph:\n%s", out)
	}
	if !strings.Contains(out, backChar) {
		t.Errorf("trace output missing backjump glyph:\n%s", out)
	}

	var kinds [3]bool
	for _, g := range del.general {
		kinds[g.Kind] = true
	}
	for k, seen := range kinds {
		if !seen {
			t.Errorf("delegate never saw a %s record", TraceKind(k))
		}
	}
	if len(del.conflicts) == 0 {
		t.Error("delegate never saw a conflict resolution record")
	}
}
