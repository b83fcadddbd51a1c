// Package compiler runs the phase-ordered compilation pipeline: anonymous
// element naming, variable namespacing, predicate normalization, semantic
// analysis, label inference, query graph construction and cardinality
// estimation.
//
// File organization:
//   - phase.go: Phase, State, Context and conditions
//   - sequencer.go: ordering phases by their declared conditions
//   - pipeline.go: the driver that runs an ordered phase list
//   - rewrite_phases.go: AST rewriting phases
//   - analysis_phases.go: semantic analysis and label inference
//   - plan_phases.go: query graph and estimation phases
//   - registry.go: the built-in registration table
//   - compile.go: Compiler and Compile entry points
//
// Start with Compile() in compile.go to follow a compilation end to end.
package compiler

import (
	"github.com/wbrown/janus-graph/graph/annotations"
	"github.com/wbrown/janus-graph/graph/ast"
	"github.com/wbrown/janus-graph/graph/planner"
	"github.com/wbrown/janus-graph/graph/semantics"
	"github.com/wbrown/janus-graph/graph/stats"
)

// State is the compiler state threaded through the phases. It is a value:
// phases return a new State and never modify the one they were given.
type State struct {
	Query     *ast.Query
	Semantics *semantics.Table
	Labels    semantics.LabelInfo
	RelTypes  semantics.RelTypeInfo
	Graph     *planner.QueryGraph
	Estimates *planner.Estimates
}

// Context is the fixed configuration of one compilation.
type Context struct {
	Stats       stats.Provider
	Options     Options
	Annotations *annotations.Collector
}

// Phase is one named, pure step of the pipeline.
type Phase interface {
	Name() string
	// Requires lists the conditions that must hold before Run.
	Requires() []Condition
	// Establishes lists the conditions guaranteed to hold after Run.
	Establishes() []Condition
	// Invalidates lists conditions that may no longer hold after Run.
	Invalidates() []Condition
	Run(c Context, s State) (State, error)
}

// Condition is a named predicate over the compiler state. Conditions are
// identified by name; the predicate is only evaluated when condition
// checking is enabled.
type Condition struct {
	Name  string
	holds func(State) bool
}

// NewCondition creates a condition whose truth is decided by holds.
func NewCondition(name string, holds func(State) bool) Condition {
	return Condition{Name: name, holds: holds}
}

// Holds evaluates the condition against s. A condition without a predicate
// always holds.
func (c Condition) Holds(s State) bool {
	if c.holds == nil {
		return true
	}
	return c.holds(s)
}

func (c Condition) String() string { return c.Name }

// FuncPhase adapts a function into a Phase.
type FuncPhase struct {
	PhaseName   string
	Requirement []Condition
	Guarantee   []Condition
	Invalidated []Condition
	Fn          func(c Context, s State) (State, error)
}

func (p *FuncPhase) Name() string { return p.PhaseName }
func (p *FuncPhase) Requires() []Condition { return p.Requirement }
func (p *FuncPhase) Establishes() []Condition { return p.Guarantee }
func (p *FuncPhase) Invalidates() []Condition { return p.Invalidated }
func (p *FuncPhase) Run(c Context, s State) (State, error) { return p.Fn(c, s) }

// Built-in conditions.
var (
	AnonymousElementsNamed = NewCondition("AnonymousElementsNamed", func(s State) bool {
		named := true
		forEachElement(s.Query, func(_ *ast.Match, e ast.PatternElement) {
			if ast.VariableName(e) == "" {
				named = false
			}
		})
		return named
	})

	VariablesUniquelyNamed = NewCondition("VariablesUniquelyNamed", func(s State) bool {
		return s.Query != nil && ast.Equal(namespaceVariables(s.Query), s.Query)
	})

	PredicatesNormalized = NewCondition("PredicatesNormalized", func(s State) bool {
		return s.Query != nil && ast.Equal(normalizePredicates(s.Query), s.Query)
	})

	TypesResolved = NewCondition("TypesResolved", func(s State) bool {
		if s.Semantics == nil {
			return false
		}
		resolved := true
		forEachElement(s.Query, func(_ *ast.Match, e ast.PatternElement) {
			if info, ok := s.Semantics.Variable(ast.VariableName(e)); !ok || !info.Type.IsEntity() {
				resolved = false
			}
		})
		return resolved
	})

	LabelsInferred = NewCondition("LabelsInferred", func(s State) bool {
		inferred := true
		forEachElement(s.Query, func(m *ast.Match, e ast.PatternElement) {
			if m.Optional {
				return
			}
			switch el := e.(type) {
			case *ast.NodePattern:
				known := s.Labels.Tokens(ast.VariableName(el))
				for _, l := range el.Labels {
					if !contains(known, l) {
						inferred = false
					}
				}
			case *ast.RelationshipPattern:
				if len(el.Types) > 0 && !s.RelTypes.Known(ast.VariableName(el)) {
					inferred = false
				}
			}
		})
		return inferred
	})

	QueryGraphBuilt = NewCondition("QueryGraphBuilt", func(s State) bool {
		return s.Graph != nil
	})

	CardinalitiesEstimated = NewCondition("CardinalitiesEstimated", func(s State) bool {
		return s.Estimates != nil
	})
)

// forEachElement visits every pattern element of every MATCH clause.
func forEachElement(q *ast.Query, fn func(*ast.Match, ast.PatternElement)) {
	if q == nil {
		return
	}
	for _, c := range q.Clauses {
		m, ok := c.(*ast.Match)
		if !ok {
			continue
		}
		for _, p := range m.Patterns {
			for _, e := range p.Elements {
				fn(m, e)
			}
		}
	}
}

func contains(set []string, s string) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}
