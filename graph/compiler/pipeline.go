package compiler

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/wbrown/janus-graph/graph/annotations"
	"github.com/wbrown/janus-graph/graph/ast"
)

// Pipeline runs an ordered list of phases.
type Pipeline struct {
	phases []Phase
}

// NewPipeline sequences regs into a pipeline.
func NewPipeline(regs []Registration) (*Pipeline, error) {
	phases, err := Sequence(regs)
	if err != nil {
		return nil, err
	}
	return &Pipeline{phases: phases}, nil
}

// Phases returns the phases in execution order.
func (p *Pipeline) Phases() []Phase {
	out := make([]Phase, len(p.phases))
	copy(out, p.phases)
	return out
}

// Names returns the phase names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.phases))
	for i, ph := range p.phases {
		names[i] = ph.Name()
	}
	return names
}

// Run threads s through every phase. Cancellation is observed between
// phases; the first phase error aborts the run.
func (p *Pipeline) Run(ctx context.Context, c Context, s State) (State, error) {
	for _, phase := range p.phases {
		name := phase.Name()
		if err := ctx.Err(); err != nil {
			return s, &CompileError{Phase: name, Cause: err}
		}

		if c.Options.CheckConditions {
			for _, cond := range phase.Requires() {
				if !cond.Holds(s) {
					return s, errors.AssertionFailedf("phase %s: required condition %s does not hold", name, cond.Name)
				}
			}
		}

		start := time.Now()
		c.Annotations.Add(annotations.Event{
			Name:  annotations.PhaseBegin,
			Start: start,
			End:   start,
			Data:  map[string]interface{}{"phase": name},
		})

		next, err := phase.Run(c, s)
		if err != nil {
			return s, p.fail(c, name, start, err)
		}

		if c.Options.CheckConditions {
			if err := checkPostconditions(phase, s, next); err != nil {
				return s, err
			}
		}

		if c.Annotations.Enabled() {
			c.Annotations.AddTiming(annotations.PhaseComplete, start, map[string]interface{}{
				"phase":   name,
				"changed": next.Query != s.Query && !ast.Equal(next.Query, s.Query),
			})
		}
		s = next
	}
	return s, nil
}

func (p *Pipeline) fail(c Context, phase string, start time.Time, err error) error {
	event := annotations.ErrorCompile
	data := map[string]interface{}{"phase": phase, "error": err.Error()}

	var semErr *SemanticError
	if errors.As(err, &semErr) {
		if semErr.Phase == "" {
			semErr.Phase = phase
		}
		event = annotations.ErrorSemantic
		if semErr.Pos.IsKnown() {
			data["position"] = semErr.Pos.Location()
		}
		data["error"] = semErr.Msg
	}
	c.Annotations.AddTiming(event, start, data)
	return &CompileError{Phase: phase, Cause: err}
}

func checkPostconditions(phase Phase, before, after State) error {
	for _, cond := range phase.Establishes() {
		if !cond.Holds(after) {
			return errors.AssertionFailedf("phase %s: established condition %s does not hold", phase.Name(), cond.Name)
		}
	}
	if before.Semantics != nil && (after.Semantics == nil || !after.Semantics.Includes(before.Semantics)) {
		return errors.AssertionFailedf("phase %s: dropped semantic facts", phase.Name())
	}
	return nil
}
