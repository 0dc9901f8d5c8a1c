// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pubgrub implements conflict-driven version solving for package
// managers. Given a set of top-level constraints and a provider of package
// containers, it either assigns a concrete version, revision, or local
// working copy to every transitively required package, or renders a
// numbered, human-readable proof of why no such assignment exists.
//
// The solver is single-threaded and synchronous. The only concurrency is
// container prefetching, which runs behind a cached gateway and never
// surfaces to callers.
//
// Basic use:
//
//	s, err := pubgrub.NewSolver(provider, pubgrub.SolveParameters{})
//	if err != nil { ... }
//	defer s.Close()
//	bindings, err := s.Solve(ctx, deps, pins)
//
// A Solver instance performs exactly one solve.
package pubgrub
