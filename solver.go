// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Masterminds/semver"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SolveParameters configures a Solver. The zero value is usable with a
// provider alone.
type SolveParameters struct {
	// Prefetch starts background container fetches for dependencies as
	// soon as they are discovered.
	Prefetch bool
	// SkipUpdate passes through to the container provider, and makes
	// cached container data authoritative when a cache directory is set.
	SkipUpdate bool
	// IncompleteMode refuses to fetch containers not already cached. A
	// solve needing an unfetched container fails with
	// MissingVersionsError.
	IncompleteMode bool
	// CacheDir, when set, persists container data to a bolt database in
	// the directory across solver instances.
	CacheDir string
	// TraceFile appends a human-readable record of each solver action to
	// the named file. The file is opened lazily on first trace.
	TraceFile string
	// TraceWriter receives the same records as TraceFile.
	TraceWriter io.Writer
	// Delegate receives structured trace records.
	Delegate Delegate
	// Logger receives solver diagnostics; nil gets a default logger.
	Logger *logrus.Logger
}

// A Solver computes a version assignment for a dependency graph, or proves
// that none exists. A Solver instance performs exactly one solve.
type Solver struct {
	params  SolveParameters
	lg      *logrus.Logger
	gateway *containerGateway
	cache   *boltCache

	root     PackageReference
	rootVer  *semver.Version
	solution *partialSolution

	// incompats indexes every known incompatibility under each package
	// its terms mention, in insertion order. seen folds duplicates per
	// package.
	incompats map[PackageReference][]*incompatibility
	seen      map[PackageReference]map[string]bool

	cancel    context.CancelFunc
	traceFile *os.File
	traceW    io.Writer
	traceSet  bool
	used      bool
}

// NewSolver creates a Solver drawing containers from provider.
func NewSolver(provider ContainerProvider, params SolveParameters) (*Solver, error) {
	if provider == nil {
		return nil, BadOptsFailure("a container provider is required")
	}

	lg := params.Logger
	if lg == nil {
		lg = logrus.New()
	}

	var cache *boltCache
	if params.CacheDir != "" {
		var err error
		cache, err = newBoltCache(params.CacheDir, cacheSchemaVersion, lg)
		if err != nil {
			return nil, err
		}
	}

	lifetime, cancel := context.WithCancel(context.Background())
	s := &Solver{
		params:    params,
		lg:        lg,
		cache:     cache,
		cancel:    cancel,
		incompats: make(map[PackageReference][]*incompatibility),
		seen:      make(map[PackageReference]map[string]bool),
	}
	s.gateway = newContainerGateway(lifetime, provider, cache, params.SkipUpdate, params.IncompleteMode, lg)
	return s, nil
}

// Close releases the solver's resources: the trace stream, the container
// cache, and any background fetches still in flight.
func (s *Solver) Close() error {
	s.cancel()
	var err error
	if s.traceFile != nil {
		err = s.traceFile.Close()
		s.traceFile = nil
	}
	if s.cache != nil {
		if cerr := s.cache.close(); err == nil {
			err = cerr
		}
		s.cache = nil
	}
	return err
}

// Solve finds a binding for every package transitively required by
// dependencies, or explains why none exists. Pins are folded in ahead of
// the user's dependencies; listing order is the only preference signal.
//
// On an unsatisfiable graph the returned error is *UnresolvableError.
func (s *Solver) Solve(ctx context.Context, dependencies, pins []Constraint) ([]Binding, error) {
	if s.used {
		return nil, BadOptsFailure("a Solver instance performs exactly one solve; create a new one")
	}
	s.used = true

	s.root = PackageReference{Identity: syntheticRootIdentity, Name: "root"}
	s.rootVer = semver.MustParse("1.0.0")
	s.solution = newPartialSolution()

	if s.lg.Level >= logrus.InfoLevel {
		s.lg.WithFields(logrus.Fields{
			"dependencies": len(dependencies),
			"pins":         len(pins),
		}).Info("Beginning version solve")
	}

	s.addIncompatibility(newIncompatibility(s.root, rootCause(),
		term{pkg: s.root, req: ExactVersion(s.rootVer), positive: false},
	), TraceTopLevel)

	all := make([]Constraint, 0, len(pins)+len(dependencies))
	all = append(all, pins...)
	all = append(all, dependencies...)
	for _, c := range all {
		s.addIncompatibility(newIncompatibility(s.root, dependencyCause(s.root),
			term{pkg: s.root, req: ExactVersion(s.rootVer), positive: true},
			term{pkg: c.Ref, req: c.Req, positive: false},
		), TraceTopLevel)
	}

	s.decide(s.root, VersionBound{V: s.rootVer}, TraceTopLevel)

	next := &s.root
	for next != nil {
		if err := s.propagate(ctx, *next); err != nil {
			s.traceFinish(nil, err)
			return nil, err
		}
		n, err := s.makeDecision(ctx)
		if err != nil {
			s.traceFinish(nil, err)
			return nil, err
		}
		next = n
	}

	bindings, err := s.finish(ctx)
	s.traceFinish(bindings, err)
	return bindings, err
}

// addIncompatibility indexes i under every package its terms mention.
func (s *Solver) addIncompatibility(i *incompatibility, loc TraceLocation) {
	if s.lg.Level >= logrus.DebugLevel {
		s.lg.WithFields(logrus.Fields{
			"incompatibility": i.String(),
			"location":        loc.String(),
		}).Debug("Adding incompatibility")
	}
	s.traceGeneral(i.String(), TraceIncompatibility, loc, "")

	key := i.key()
	for _, t := range i.terms {
		keys := s.seen[t.pkg]
		if keys == nil {
			keys = make(map[string]bool)
			s.seen[t.pkg] = keys
		}
		if keys[key] {
			continue
		}
		keys[key] = true
		s.incompats[t.pkg] = append(s.incompats[t.pkg], i)
	}
}

// positiveIncompats returns the incompatibilities holding a positive term
// for pkg, in insertion order.
func (s *Solver) positiveIncompats(pkg PackageReference) []*incompatibility {
	all := s.incompats[pkg]
	var out []*incompatibility
	for _, i := range all {
		for _, t := range i.terms {
			if t.pkg == pkg && t.positive {
				out = append(out, i)
				break
			}
		}
	}
	return out
}

func (s *Solver) decide(pkg PackageReference, bound BoundVersion, loc TraceLocation) {
	a := s.solution.decide(pkg, bound)
	if s.lg.Level >= logrus.InfoLevel {
		s.lg.WithFields(logrus.Fields{
			"package": pkg.String(),
			"bound":   bound.String(),
			"level":   a.decisionLevel,
		}).Info("Decided package")
	}
	s.traceGeneral(a.term.String(), TraceDecision, loc, "")
}

func (s *Solver) derive(t term, cause *incompatibility, loc TraceLocation) {
	a := s.solution.derive(t, cause)
	if s.lg.Level >= logrus.DebugLevel {
		s.lg.WithFields(logrus.Fields{
			"term":  t.String(),
			"cause": cause.String(),
			"level": a.decisionLevel,
		}).Debug("Derived term")
	}
	s.traceGeneral(t.String(), TraceDerivation, loc, cause.String())
}

type propagationResult int

const (
	propagationNone propagationResult = iota
	propagationAlmostSatisfied
	propagationConflict
)

// propagate performs unit propagation outward from pkg until the changeset
// drains or a conflict proves the solve unsatisfiable.
func (s *Solver) propagate(ctx context.Context, pkg PackageReference) error {
	changed := []PackageReference{pkg}

	for len(changed) > 0 {
		p := changed[0]
		changed = changed[1:]

		// Later clauses tend to be learned, more general ones; try them
		// first.
		positive := s.positiveIncompats(p)
	clauses:
		for k := len(positive) - 1; k >= 0; k-- {
			i := positive[k]
			result, unsatisfied := s.propagateIncompat(i)
			switch result {
			case propagationConflict:
				root, err := s.resolveConflict(ctx, i)
				if err != nil {
					return err
				}
				rr, unsat := s.propagateIncompat(root)
				if rr != propagationAlmostSatisfied {
					panic(fmt.Sprintf("canary - conflict root cause %s is not almost satisfied", root))
				}
				s.derive(unsat.inverse(), root, TraceUnitPropagation)
				changed = append(changed[:0], unsat.pkg)
				break clauses
			case propagationAlmostSatisfied:
				s.derive(unsatisfied.inverse(), i, TraceUnitPropagation)
				changed = appendRef(changed, unsatisfied.pkg)
			case propagationNone:
			}
		}
	}
	return nil
}

// propagateIncompat classifies i against the partial solution. A clause
// with a disjoint term can never fire; a clause with two or more merely
// overlapping terms is inert for now; exactly one overlapping term makes
// the clause unit, forcing that term's inverse; zero means every term is
// satisfied and the clause is in conflict.
func (s *Solver) propagateIncompat(i *incompatibility) (propagationResult, term) {
	var unsatisfied term
	var haveUnsatisfied bool

	for _, t := range i.terms {
		switch s.solution.relationTo(t) {
		case relationDisjoint:
			return propagationNone, term{}
		case relationOverlap:
			if haveUnsatisfied {
				return propagationNone, term{}
			}
			unsatisfied, haveUnsatisfied = t, true
		}
	}

	if !haveUnsatisfied {
		return propagationConflict, term{}
	}
	return propagationAlmostSatisfied, unsatisfied
}

// resolveConflict rewrites conflicting against the causes of its most
// recently satisfied terms until it reaches a clause that permits a
// backjump, then backtracks the solution and returns the learned clause.
// The error return is the unresolvable diagnosis.
func (s *Solver) resolveConflict(ctx context.Context, conflicting *incompatibility) (*incompatibility, error) {
	if s.lg.Level >= logrus.DebugLevel {
		s.lg.WithFields(logrus.Fields{
			"incompatibility": conflicting.String(),
		}).Debug("Entering conflict resolution")
	}

	created := false
	current := conflicting
	for {
		if s.isTerminal(current) {
			return nil, s.unresolvable(current)
		}

		var mostRecentTerm term
		var mostRecentSatisfier assignment
		var haveSatisfier bool
		var difference *term
		previousLevel := 0

		for _, t := range current.terms {
			satisfier := s.solution.satisfier(t)
			switch {
			case !haveSatisfier:
				mostRecentTerm = t
				mostRecentSatisfier = satisfier
				haveSatisfier = true
			case satisfier.index > mostRecentSatisfier.index:
				previousLevel = maxInt(previousLevel, mostRecentSatisfier.decisionLevel)
				mostRecentTerm = t
				mostRecentSatisfier = satisfier
				difference = nil
			default:
				previousLevel = maxInt(previousLevel, satisfier.decisionLevel)
			}

			if mostRecentTerm == t {
				// When the satisfier only partially covers the term, the
				// rest was satisfied earlier; account for that level too.
				difference = nil
				if !mostRecentSatisfier.term.satisfies(mostRecentTerm) {
					if d, ok := mostRecentSatisfier.term.difference(mostRecentTerm); ok {
						difference = &d
						previousLevel = maxInt(previousLevel, s.solution.satisfier(d.inverse()).decisionLevel)
					}
				}
			}
		}

		s.traceConflictStep(current, mostRecentTerm, mostRecentSatisfier)

		if previousLevel < mostRecentSatisfier.decisionLevel || mostRecentSatisfier.isDecision() {
			s.solution.backtrack(previousLevel)
			s.traceBackjump(previousLevel)
			if s.lg.Level >= logrus.DebugLevel {
				s.lg.WithFields(logrus.Fields{
					"level": previousLevel,
				}).Debug("Backjumped")
			}
			if created {
				s.addIncompatibility(current, TraceConflictResolution)
			}
			return current, nil
		}

		priorCause := mostRecentSatisfier.cause
		var newTerms []term
		for _, t := range current.terms {
			if t != mostRecentTerm {
				newTerms = append(newTerms, t)
			}
		}
		for _, t := range priorCause.terms {
			if t.pkg != mostRecentSatisfier.term.pkg {
				newTerms = append(newTerms, t)
			}
		}
		if difference != nil {
			newTerms = append(newTerms, difference.inverse())
		}

		current = newIncompatibility(s.root, conflictCause(current, priorCause), newTerms...)
		created = true
	}
}

// isTerminal reports whether i proves the whole solve unsatisfiable: no
// terms at all, or a single term about the synthesized root.
func (s *Solver) isTerminal(i *incompatibility) bool {
	if len(i.terms) == 0 {
		return true
	}
	return len(i.terms) == 1 && i.terms[0].pkg == s.root
}

func (s *Solver) unresolvable(root *incompatibility) error {
	diag := buildDiagnosticReport(s.root, root)
	return &UnresolvableError{Diagnostic: diag, rootCause: root}
}

// makeDecision picks the next undecided package and commits it to the best
// available binding, adding the dependency clauses that binding implies.
// It returns nil when every known package has been decided.
func (s *Solver) makeDecision(ctx context.Context) (*PackageReference, error) {
	undecided := s.solution.undecided()
	if len(undecided) == 0 {
		return nil, nil
	}
	t := undecided[0]

	c, err := s.gateway.get(ctx, t.pkg)
	if err != nil {
		if _, ok := err.(*containerUnavailableError); ok {
			return nil, &MissingVersionsError{Constraints: []Constraint{{Ref: t.pkg, Req: t.req}}}
		}
		return nil, err
	}

	bound, ok := bestBound(c, t)
	if !ok {
		s.addIncompatibility(newIncompatibility(s.root, noVersionCause(), t), TraceDecisionMaking)
		return &t.pkg, nil
	}

	depIncompats, deps, err := s.dependencyIncompats(ctx, t.pkg, bound, c)
	if err != nil {
		return nil, err
	}

	if s.params.Prefetch {
		refs := make([]PackageReference, 0, len(deps))
		for _, d := range deps {
			refs = append(refs, d.Ref)
		}
		s.gateway.prefetch(refs)
	}

	conflict := false
	for _, i := range depIncompats {
		s.addIncompatibility(i, TraceDecisionMaking)

		// Committing the decision would immediately conflict if the
		// clause is already satisfied everywhere but here; in that case
		// let propagation sort it out first.
		allSatisfied := true
		for _, tm := range i.terms {
			if tm.pkg == t.pkg {
				continue
			}
			if !s.solution.satisfies(tm) {
				allSatisfied = false
				break
			}
		}
		conflict = conflict || allSatisfied
	}

	if !conflict {
		s.decide(t.pkg, bound, TraceDecisionMaking)
	}
	return &t.pkg, nil
}

// bestBound selects the binding to try for a positive term: the pinned
// revision or working copy when the term asks for one, otherwise the
// highest version the container offers inside the term's set.
func bestBound(c Container, t term) (BoundVersion, bool) {
	switch req := t.req.(type) {
	case revisionRequirement:
		return RevisionBound{R: req.rev}, true
	case unversionedRequirement:
		return UnversionedBound{}, true
	case versionSetRequirement:
		vs := c.Versions(req.contains)
		if len(vs) == 0 {
			return nil, false
		}
		return VersionBound{V: vs[0]}, true
	}
	panic(fmt.Sprintf("canary - unknown requirement type %T", t.req))
}

// dependencyIncompats maps the dependencies of ref at bound into clauses of
// the form "ref at bound requires dep in set".
func (s *Solver) dependencyIncompats(ctx context.Context, ref PackageReference, bound BoundVersion, c Container) ([]*incompatibility, []Constraint, error) {
	var selfReq Requirement
	var deps []Constraint
	var err error

	switch b := bound.(type) {
	case VersionBound:
		// Widening the self term to the next major assumes dependencies
		// are stable across that span. They may not be, which costs
		// diagnostic precision but not correctness.
		selfReq = VersionRange(b.V, nextMajor(b.V))
		deps, err = c.GetDependencies(b.V)
		if err == nil {
			var pinned []Constraint
			for _, d := range deps {
				if _, ok := d.Req.(revisionRequirement); ok {
					pinned = append(pinned, d)
				}
			}
			if len(pinned) > 0 {
				return nil, nil, &IncompatibleConstraintsError{Depender: ref, Constraints: pinned}
			}
		}
	case RevisionBound:
		selfReq = AtRevision(b.R)
		deps, err = c.GetRevisionDependencies(b.R)
		if err == nil {
			if cerr := s.checkRevisionCycle(ctx, ref, b.R); cerr != nil {
				return nil, nil, cerr
			}
		}
	case UnversionedBound:
		selfReq = Unversioned()
		deps, err = c.GetUnversionedDependencies()
	case ExcludedBound:
		panic("canary - excluded binding reached dependency expansion")
	default:
		panic(fmt.Sprintf("canary - unknown bound type %T", bound))
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "loading dependencies of %s", ref)
	}

	var out []*incompatibility
	for _, d := range deps {
		if d.Ref == ref {
			continue
		}
		out = append(out, newIncompatibility(s.root, dependencyCause(ref),
			term{pkg: ref, req: selfReq, positive: true},
			term{pkg: d.Ref, req: d.Req, positive: false},
		))
	}
	return out, deps, nil
}

// checkRevisionCycle walks revision-pinned dependency edges out of start,
// failing when they loop back on a package already on the walk.
func (s *Solver) checkRevisionCycle(ctx context.Context, start PackageReference, rev Revision) error {
	visiting := make(map[PackageReference]bool)
	done := make(map[PackageReference]bool)

	var walk func(ref PackageReference, rev Revision) error
	walk = func(ref PackageReference, rev Revision) error {
		if done[ref] {
			return nil
		}
		if visiting[ref] {
			return &CycleError{Ref: ref}
		}
		visiting[ref] = true

		c, err := s.gateway.get(ctx, ref)
		if err != nil {
			return err
		}
		deps, err := c.GetRevisionDependencies(rev)
		if err != nil {
			return errors.Wrapf(err, "loading dependencies of %s", ref)
		}
		for _, d := range deps {
			r, ok := d.Req.(revisionRequirement)
			if !ok {
				continue
			}
			if err := walk(d.Ref, r.rev); err != nil {
				return err
			}
		}

		delete(visiting, ref)
		done[ref] = true
		return nil
	}
	return walk(start, rev)
}

// finish maps the solution's decisions to bindings, dropping the
// synthesized root and letting containers canonicalize identifiers.
func (s *Solver) finish(ctx context.Context) ([]Binding, error) {
	var out []Binding
	for _, a := range s.solution.assignments {
		if !a.isDecision() || a.term.pkg == s.root {
			continue
		}

		var bound BoundVersion
		switch req := a.term.req.(type) {
		case versionSetRequirement:
			switch req.kind {
			case setExact:
				bound = VersionBound{V: req.exact}
			case setAny:
				bound = UnversionedBound{}
			default:
				panic(fmt.Sprintf("canary - decision with non-exact version set %s", req))
			}
		case revisionRequirement:
			bound = RevisionBound{R: req.rev}
		case unversionedRequirement:
			bound = UnversionedBound{}
		default:
			panic(fmt.Sprintf("canary - unknown requirement type %T", a.term.req))
		}

		c, err := s.gateway.get(ctx, a.term.pkg)
		if err != nil {
			return nil, err
		}
		ref, err := c.GetUpdatedIdentifier(bound)
		if err != nil {
			return nil, errors.Wrapf(err, "canonicalizing %s", a.term.pkg)
		}
		out = append(out, Binding{Ref: ref, Bound: bound})
	}
	return out, nil
}

// traceSink lazily assembles the human trace destination: the configured
// writer, the trace file, or both.
func (s *Solver) traceSink() io.Writer {
	if s.traceSet {
		return s.traceW
	}
	s.traceSet = true

	var ws []io.Writer
	if s.params.TraceWriter != nil {
		ws = append(ws, s.params.TraceWriter)
	}
	if s.params.TraceFile != "" {
		f, err := os.OpenFile(s.params.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			s.lg.WithFields(logrus.Fields{
				"path":  s.params.TraceFile,
				"error": err,
			}).Warn("could not open trace file; tracing to it is disabled")
		} else {
			s.traceFile = f
			ws = append(ws, f)
		}
	}

	switch len(ws) {
	case 0:
		s.traceW = nil
	case 1:
		s.traceW = ws[0]
	default:
		s.traceW = io.MultiWriter(ws...)
	}
	return s.traceW
}

func appendRef(refs []PackageReference, ref PackageReference) []PackageReference {
	for _, r := range refs {
		if r == ref {
			return refs
		}
	}
	return append(refs, ref)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
