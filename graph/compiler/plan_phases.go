package compiler

import (
	"time"

	"github.com/wbrown/janus-graph/graph/annotations"
	"github.com/wbrown/janus-graph/graph/planner"
)

// Phase names of the planning phases.
const (
	PhaseBuildQueryGraph     = "build-query-graph"
	PhaseEstimateCardinality = "estimate-cardinality"
)

// BuildQueryGraph extracts the pattern graph and its selections.
var BuildQueryGraph Phase = &FuncPhase{
	PhaseName:   PhaseBuildQueryGraph,
	Requirement: []Condition{LabelsInferred, PredicatesNormalized},
	Guarantee:   []Condition{QueryGraphBuilt},
	Fn: func(_ Context, s State) (State, error) {
		s.Graph = planner.BuildQueryGraph(s.Query)
		return s, nil
	},
}

// EstimateCardinality annotates the query graph with row estimates.
var EstimateCardinality Phase = &FuncPhase{
	PhaseName:   PhaseEstimateCardinality,
	Requirement: []Condition{QueryGraphBuilt},
	Guarantee:   []Condition{CardinalitiesEstimated},
	Fn: func(c Context, s State) (State, error) {
		start := time.Now()
		ctx := planner.EstimationContext{
			Stats:     c.Stats,
			Labels:    s.Labels,
			RelTypes:  s.RelTypes,
			Semantics: s.Semantics,
			Graph:     s.Graph,
		}
		s.Estimates = planner.NewCardinalityModel(ctx).Estimate(s.Graph)

		if c.Options.AnnotateEstimates && c.Annotations.Enabled() {
			for _, v := range s.Estimates.Variables() {
				data := map[string]interface{}{
					"variable":    v,
					"cardinality": float64(s.Estimates.Elements[v]),
				}
				if sel, ok := s.Estimates.Selectivities[v]; ok {
					data["selectivity"] = float64(sel)
				}
				if idx := s.Estimates.Indexes[v]; idx != "" {
					data["index"] = idx
				}
				c.Annotations.AddTiming(annotations.CompileEstimate, start, data)
			}
		}
		return s, nil
	},
}
