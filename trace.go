// Copyright 2017 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pubgrub

import (
	"fmt"
	"strings"
)

const (
	successChar   = "✓"
	successCharSp = successChar + " "
	failChar      = "✗"
	failCharSp    = failChar + " "
	backChar      = "←"
)

// TraceKind classifies a general trace record.
type TraceKind int

const (
	TraceIncompatibility TraceKind = iota
	TraceDecision
	TraceDerivation
)

func (k TraceKind) String() string {
	switch k {
	case TraceIncompatibility:
		return "incompatibility"
	case TraceDecision:
		return "decision"
	case TraceDerivation:
		return "derivation"
	}
	panic(fmt.Sprintf("canary - unknown trace kind %d", int(k)))
}

// TraceLocation identifies the solver phase a record was emitted from.
type TraceLocation int

const (
	TraceTopLevel TraceLocation = iota
	TraceUnitPropagation
	TraceDecisionMaking
	TraceConflictResolution
)

func (l TraceLocation) String() string {
	switch l {
	case TraceTopLevel:
		return "top level"
	case TraceUnitPropagation:
		return "unit propagation"
	case TraceDecisionMaking:
		return "decision making"
	case TraceConflictResolution:
		return "conflict resolution"
	}
	panic(fmt.Sprintf("canary - unknown trace location %d", int(l)))
}

// GeneralTrace records one solver action.
type GeneralTrace struct {
	Value         string
	Kind          TraceKind
	Location      TraceLocation
	Cause         string
	DecisionLevel int
}

// ConflictTrace records one step of conflict resolution: the clause being
// rewritten, the term under examination, and the assignment satisfying it.
type ConflictTrace struct {
	Incompatibility string
	Term            string
	Satisfier       string
}

// A Delegate receives a structured record of every solver action. All
// methods are invoked synchronously from the solving goroutine.
type Delegate interface {
	Trace(GeneralTrace)
	TraceConflict(ConflictTrace)
}

func (s *Solver) traceGeneral(value string, kind TraceKind, loc TraceLocation, cause string) {
	if s.params.Delegate != nil {
		s.params.Delegate.Trace(GeneralTrace{
			Value:         value,
			Kind:          kind,
			Location:      loc,
			Cause:         cause,
			DecisionLevel: s.solution.decisionLevel(),
		})
	}
	if w := s.traceSink(); w != nil {
		prefix := strings.Repeat("| ", depthPrefix(s.solution.decisionLevel()))
		var glyph string
		switch kind {
		case TraceIncompatibility:
			glyph = "? "
		case TraceDecision:
			glyph = successCharSp
		case TraceDerivation:
			glyph = "| "
		}
		line := fmt.Sprintf("%s%s%s (%s)", prefix, glyph, value, loc)
		if cause != "" {
			line += " due to " + cause
		}
		fmt.Fprintf(w, "%s\n", line)
	}
}

func (s *Solver) traceConflictStep(i *incompatibility, t term, satisfier assignment) {
	if s.params.Delegate != nil {
		s.params.Delegate.TraceConflict(ConflictTrace{
			Incompatibility: i.String(),
			Term:            t.String(),
			Satisfier:       satisfier.String(),
		})
	}
	if w := s.traceSink(); w != nil {
		prefix := strings.Repeat("| ", depthPrefix(s.solution.decisionLevel()))
		fmt.Fprintf(w, "%s%sresolve %s against %s from %s\n", prefix, failCharSp, i, t, satisfier)
	}
}

func (s *Solver) traceBackjump(level int) {
	if w := s.traceSink(); w != nil {
		fmt.Fprintf(w, "%s backjump to level %v\n", backChar, level)
	}
}

func (s *Solver) traceFinish(bindings []Binding, err error) {
	w := s.traceSink()
	if w == nil {
		return
	}
	if err == nil {
		fmt.Fprintf(w, "%s found solution with %v packages\n", successChar, len(bindings))
		return
	}
	if te, ok := err.(traceError); ok {
		fmt.Fprintf(w, "%s%s\n", failCharSp, te.traceString())
		return
	}
	fmt.Fprintf(w, "%ssolving failed: %s\n", failCharSp, err)
}

func depthPrefix(decisionLevel int) int {
	if decisionLevel < 0 {
		return 0
	}
	return decisionLevel
}
