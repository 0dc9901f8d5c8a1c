// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"strings"
)

type causeKind int

const (
	// causeRoot marks the incompatibility seeded at the start of a solve.
	causeRoot causeKind = iota
	// causeDependency encodes "depender at some binding requires a package
	// in some set".
	causeDependency
	// causeNoVersion records that nothing satisfies a requirement.
	causeNoVersion
	// causeConflict marks a clause learned during conflict resolution; it
	// carries the two parents it was derived from.
	causeConflict
)

// cause tags an incompatibility with its origin. For causeConflict the two
// parent pointers form a derivation DAG that the diagnostic report walks.
type cause struct {
	kind     causeKind
	depender PackageReference
	conflict *incompatibility
	other    *incompatibility
}

func rootCause() cause {
	return cause{kind: causeRoot}
}

func dependencyCause(depender PackageReference) cause {
	return cause{kind: causeDependency, depender: depender}
}

func noVersionCause() cause {
	return cause{kind: causeNoVersion}
}

func conflictCause(conflict, other *incompatibility) cause {
	return cause{kind: causeConflict, conflict: conflict, other: other}
}

// An incompatibility is a set of terms that cannot all be true at once; a
// clause in the SAT sense. Term order is insertion order, preserved for
// diagnostics.
type incompatibility struct {
	terms []term
	cause cause
}

// newIncompatibility normalizes the given terms into an incompatibility.
//
// Terms about the same package are merged by intersection. A merge that
// comes up empty indicates a bug upstream, as does an empty normalized set;
// both abort. Learned clauses additionally drop positive statements about
// the synthesized root, which are unconditionally true, provided other
// terms remain.
func newIncompatibility(root PackageReference, c cause, terms ...term) *incompatibility {
	if c.kind == causeConflict && len(terms) > 1 {
		filtered := terms[:0:0]
		for _, t := range terms {
			if t.positive && t.pkg == root {
				continue
			}
			filtered = append(filtered, t)
		}
		if len(filtered) > 0 {
			terms = filtered
		}
	}

	var normalized []term
	index := make(map[PackageReference]int, len(terms))
	for _, t := range terms {
		i, ok := index[t.pkg]
		if !ok {
			index[t.pkg] = len(normalized)
			normalized = append(normalized, t)
			continue
		}
		merged, ok := normalized[i].intersect(t)
		if !ok {
			panic(fmt.Sprintf("canary - vacuous incompatibility: %s against %s", normalized[i], t))
		}
		normalized[i] = merged
	}

	if len(normalized) == 0 {
		panic("canary - incompatibility normalized to zero terms")
	}
	return &incompatibility{terms: normalized, cause: c}
}

func (i *incompatibility) String() string {
	strs := make([]string, len(i.terms))
	for k, t := range i.terms {
		strs[k] = t.String()
	}
	return "{" + strings.Join(strs, ", ") + "}"
}

// key returns a content key used to fold duplicate clauses in the
// per-package index. Learned clauses are distinguished by their parents so
// that separately derived duplicates keep their own derivation history.
func (i *incompatibility) key() string {
	if i.cause.kind == causeConflict {
		return fmt.Sprintf("%d/%p/%p/%s", i.cause.kind, i.cause.conflict, i.cause.other, i.String())
	}
	return fmt.Sprintf("%d/%s", i.cause.kind, i.String())
}

// isConflict reports whether the incompatibility was learned during
// conflict resolution.
func (i *incompatibility) isConflict() bool {
	return i.cause.kind == causeConflict
}
