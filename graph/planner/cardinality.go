package planner

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wbrown/janus-graph/graph"
	"github.com/wbrown/janus-graph/graph/ast"
)

// ComponentEstimate is the estimate for one connected component.
type ComponentEstimate struct {
	Component   Component
	Cardinality graph.Cardinality
}

// Estimates is the cardinality annotation of a query graph.
type Estimates struct {
	// Total is the estimated row count of the whole graph.
	Total      graph.Cardinality
	Components []ComponentEstimate
	// Elements holds the estimate per pattern variable: filtered node
	// cardinality for nodes, single-step cardinality for relationships.
	Elements map[string]graph.Cardinality
	// Selectivities holds the composite selectivity of each variable's own
	// predicates.
	Selectivities map[string]graph.Selectivity
	// Indexes names the index that served each variable's predicates.
	Indexes map[string]string
	// Optional holds the estimates of OPTIONAL MATCH graphs.
	Optional []*Estimates
}

// Element returns the estimate for variable.
func (e *Estimates) Element(variable string) (graph.Cardinality, bool) {
	c, ok := e.Elements[variable]
	return c, ok
}

// Variables returns the estimated variables, sorted.
func (e *Estimates) Variables() []string {
	out := make([]string, 0, len(e.Elements))
	for k := range e.Elements {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *Estimates) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "total=%s", e.Total)
	for _, v := range e.Variables() {
		fmt.Fprintf(&sb, " %s=%s", v, e.Elements[v])
	}
	return sb.String()
}

// CardinalityModel turns base counts and composite selectivities into row
// estimates for a query graph.
type CardinalityModel struct {
	ctx       EstimationContext
	composite *CompositeCalculator
}

// NewCardinalityModel returns a model over ctx.
func NewCardinalityModel(ctx EstimationContext) *CardinalityModel {
	return &CardinalityModel{ctx: ctx, composite: NewCompositeCalculator(ctx)}
}

// EstimateCardinality returns the estimated row count of g.
func EstimateCardinality(g *QueryGraph, ctx EstimationContext) graph.Cardinality {
	return NewCardinalityModel(ctx).Estimate(g).Total
}

// NodeCardinality is the label-only cardinality of a node variable.
func (m *CardinalityModel) NodeCardinality(variable string) graph.Cardinality {
	return labelOnlyCardinality(m.ctx, variable)
}

// labelOnlyCardinality estimates a variable from its labels (or types) alone.
//
// For nodes the smallest known label count is the base and every other label
// filters it by its fraction of all nodes; a label known to have zero
// instances yields zero. With no known label the base is the total node
// count filtered by the default label selectivity per label.
func labelOnlyCardinality(ctx EstimationContext, variable string) graph.Cardinality {
	p := ctx.provider()
	if ctx.entityOf(variable) == graph.RelationshipEntity {
		if ctx.contradicted(variable) {
			return 0
		}
		return ctx.typeCount(ctx.RelTypes.Tokens(variable))
	}
	labels := ctx.Labels.Tokens(variable)
	base, baseLabel, known := graph.Cardinality(0), "", false
	for _, l := range labels {
		n, ok := p.LabelCardinality(l)
		if !ok {
			continue
		}
		if n.IsZero() {
			return 0
		}
		if !known || n < base {
			base, baseLabel, known = n, l, true
		}
	}
	if !known {
		base = p.NodeCount()
	}
	for _, l := range labels {
		if l != baseLabel {
			base = base.Times(ctx.labelSelectivity(l))
		}
	}
	return base
}

// Estimate annotates g with cardinality estimates.
func (m *CardinalityModel) Estimate(g *QueryGraph) *Estimates {
	return NewCardinalityModel(m.ctx.withGraph(g)).estimate(g)
}

func (m *CardinalityModel) estimate(g *QueryGraph) *Estimates {
	est := &Estimates{
		Total:         1,
		Elements:      make(map[string]graph.Cardinality),
		Selectivities: make(map[string]graph.Selectivity),
		Indexes:       make(map[string]string),
	}

	perVariable := make(map[string][]ast.Expr)
	var spanning []Selection
	for _, s := range g.Selections {
		if !m.solvable(g, s) || m.subsumed(s.Predicate) {
			continue
		}
		if len(s.Dependencies) == 1 {
			perVariable[s.Dependencies[0]] = append(perVariable[s.Dependencies[0]], s.Predicate)
			continue
		}
		spanning = append(spanning, s)
	}

	for _, v := range g.Variables() {
		ce := m.composite.Explain(perVariable[v])
		est.Selectivities[v] = ce.Selectivity
		for _, grp := range ce.Groups {
			if grp.Index != "" {
				est.Indexes[v] = grp.Index
			}
		}
	}
	for _, n := range g.Nodes {
		est.Elements[n.Name] = labelOnlyCardinality(m.ctx, n.Name).Times(est.Selectivities[n.Name])
	}

	used := make([]bool, len(spanning))
	for _, comp := range g.Components() {
		card := m.component(g, comp, est, spanning, used)
		est.Components = append(est.Components, ComponentEstimate{Component: comp, Cardinality: card})
		est.Total = est.Total.Mul(card)
	}

	var cross []ast.Expr
	for i, s := range spanning {
		if !used[i] {
			cross = append(cross, s.Predicate)
		}
	}
	est.Total = est.Total.Times(m.composite.Estimate(cross))

	for _, opt := range g.Optional {
		est.Optional = append(est.Optional, m.Estimate(opt))
	}
	return est
}

// solvable reports whether every variable the selection reads is bound by
// the graph. Predicates on projected aliases are not estimated here.
func (m *CardinalityModel) solvable(g *QueryGraph, s Selection) bool {
	for _, d := range s.Dependencies {
		if !g.Has(d) {
			return false
		}
	}
	return true
}

// subsumed reports whether p only restates labels or types already
// accounted for in the base cardinality.
func (m *CardinalityModel) subsumed(p ast.Expr) bool {
	switch e := p.(type) {
	case *ast.HasLabels:
		v, ok := e.Subject.(*ast.Variable)
		return ok && containsAll(m.ctx.Labels.Tokens(v.Name), e.Labels)
	case *ast.HasTypes:
		v, ok := e.Subject.(*ast.Variable)
		if !ok {
			return false
		}
		known := m.ctx.RelTypes.Tokens(v.Name)
		return len(known) > 0 && containsAll(e.Types, known)
	}
	return false
}

func containsAll(set, items []string) bool {
	for _, it := range items {
		found := false
		for _, s := range set {
			if s == it {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// component multiplies the filtered node estimates with the join density of
// each relationship, then applies predicates spanning several of its
// variables.
func (m *CardinalityModel) component(g *QueryGraph, comp Component, est *Estimates,
	spanning []Selection, used []bool) graph.Cardinality {
	card := graph.Cardinality(1)
	for _, n := range comp.Nodes {
		card = card.Mul(est.Elements[n])
	}
	for _, name := range comp.Relationships {
		r, _ := g.Relationship(name)
		density := m.density(r)
		card = card.Mul(density)
		step := est.Elements[r.Left].Mul(est.Elements[r.Right]).Mul(density).Times(est.Selectivities[r.Name])
		est.Elements[r.Name] = step
		card = card.Times(est.Selectivities[r.Name])
	}

	members := make(map[string]bool)
	for _, v := range comp.Variables() {
		members[v] = true
	}
	var local []ast.Expr
	for i, s := range spanning {
		if used[i] || !within(s.Dependencies, members) {
			continue
		}
		used[i] = true
		local = append(local, s.Predicate)
	}
	return card.Times(m.composite.Estimate(local))
}

// density is the fraction of node pairs connected by r: relCount / N² per
// hop, with each additional hop passing through any node.
func (m *CardinalityModel) density(r *PatternRelationship) graph.Cardinality {
	n := m.ctx.provider().NodeCount().Float()
	for _, end := range []string{r.Left, r.Right} {
		n = math.Max(n, labelOnlyCardinality(m.ctx, end).Float())
	}
	if n <= 0 || m.ctx.contradicted(r.Name) {
		return 0
	}
	types := r.Types
	if known := m.ctx.RelTypes.Tokens(r.Name); len(known) > 0 {
		types = known
	}
	rels := m.ctx.typeCount(types).Float()
	if r.Direction == ast.Both {
		rels *= 2
	}
	hops := r.Hops()
	d := math.Pow(rels/n, float64(hops)) / n
	return graph.NewCardinality(d)
}

func within(deps []string, members map[string]bool) bool {
	for _, d := range deps {
		if !members[d] {
			return false
		}
	}
	return true
}
