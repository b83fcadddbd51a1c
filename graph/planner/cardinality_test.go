package planner

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-graph/graph"
	"github.com/wbrown/janus-graph/graph/ast"
	"github.com/wbrown/janus-graph/graph/semantics"
	"github.com/wbrown/janus-graph/graph/stats"
)

func movieStats() *stats.Snapshot {
	return stats.MustSnapshot(stats.Data{
		Nodes:             1000,
		Relationships:     2000,
		Labels:            map[string]float64{"Person": 100, "Movie": 50, "Ghost": 0},
		RelationshipTypes: map[string]float64{"ACTED_IN": 500},
	})
}

func match(where ast.Expr, parts ...*ast.PatternPart) *QueryGraph {
	return BuildQueryGraph(ast.NewMatchQuery(where, parts))
}

func TestNodeCardinalityWithPredicate(t *testing.T) {
	s := stats.MustSnapshot(stats.Data{Nodes: 5000, Labels: map[string]float64{"Person": 1000}})
	g := match(ast.Compare(ast.OpEQ, ast.VarProp("n", "name"), ast.Str("Ann")),
		ast.Path(ast.NodePat("n", "Person")))

	est := NewCardinalityModel(EstimationContext{Stats: s}).Estimate(g)
	assert.InDelta(t, 100, est.Total.Float(), 1e-9)

	n, ok := est.Element("n")
	require.True(t, ok)
	assert.InDelta(t, 100, n.Float(), 1e-9)
	assert.InDelta(t, 0.1, est.Selectivities["n"].Float(), 1e-12)
}

func TestZeroLabelCountYieldsZero(t *testing.T) {
	g := match(nil, ast.Path(ast.NodePat("g", "Ghost")))
	card := EstimateCardinality(g, EstimationContext{Stats: movieStats()})
	assert.True(t, card.IsZero())

	g = match(nil, ast.Path(ast.NodePat("g", "Ghost", "Person"), ast.Rel("r", ast.Outgoing, "ACTED_IN"), ast.NodePat("m", "Movie")))
	card = EstimateCardinality(g, EstimationContext{Stats: movieStats()})
	assert.True(t, card.IsZero())
}

func TestUnlabeledAndMultiLabelNodes(t *testing.T) {
	ctx := EstimationContext{Stats: movieStats()}

	assert.InDelta(t, 1000, EstimateCardinality(match(nil, ast.Path(ast.NodePat("n"))), ctx).Float(), 1e-9)
	assert.InDelta(t, 100, EstimateCardinality(match(nil, ast.Path(ast.NodePat("n", "Unknown"))), ctx).Float(), 1e-9)
	// Movie is the smallest known label; Person filters it by 100/1000.
	assert.InDelta(t, 5, EstimateCardinality(match(nil, ast.Path(ast.NodePat("n", "Person", "Movie"))), ctx).Float(), 1e-9)
}

func TestRelationshipStep(t *testing.T) {
	g := match(nil, ast.Path(ast.NodePat("p", "Person"), ast.Rel("r", ast.Outgoing, "ACTED_IN"), ast.NodePat("m", "Movie")))
	est := NewCardinalityModel(EstimationContext{Stats: movieStats()}).Estimate(g)

	// 100 × 50 × 500 / 1000²
	assert.InDelta(t, 2.5, est.Total.Float(), 1e-9)
	r, ok := est.Element("r")
	require.True(t, ok)
	assert.InDelta(t, 2.5, r.Float(), 1e-9)
	require.Len(t, est.Components, 1)
}

func TestUndirectedAndUntypedRelationships(t *testing.T) {
	ctx := EstimationContext{Stats: movieStats()}

	both := match(nil, ast.Path(ast.NodePat("p", "Person"), ast.Rel("r", ast.Both, "ACTED_IN"), ast.NodePat("m", "Movie")))
	assert.InDelta(t, 5, EstimateCardinality(both, ctx).Float(), 1e-9)

	untyped := match(nil, ast.Path(ast.NodePat("p", "Person"), ast.Rel("r", ast.Outgoing), ast.NodePat("m", "Movie")))
	assert.InDelta(t, 10, EstimateCardinality(untyped, ctx).Float(), 1e-9)

	unknownType := match(nil, ast.Path(ast.NodePat("p", "Person"), ast.Rel("r", ast.Outgoing, "DIRECTED"), ast.NodePat("m", "Movie")))
	assert.InDelta(t, 1, EstimateCardinality(unknownType, ctx).Float(), 1e-9)
}

func TestVariableLengthRelationship(t *testing.T) {
	rel := ast.Rel("r", ast.Outgoing, "ACTED_IN")
	rel.Length = &ast.PathLength{Min: 2, Max: 3}
	g := match(nil, ast.Path(ast.NodePat("p", "Person"), rel, ast.NodePat("m", "Movie")))

	// 100 × 50 × (500/1000)² / 1000
	assert.InDelta(t, 1.25, EstimateCardinality(g, EstimationContext{Stats: movieStats()}).Float(), 1e-9)

	zero := ast.Rel("r", ast.Outgoing, "ACTED_IN")
	zero.Length = &ast.PathLength{Min: 0, Max: -1}
	g = match(nil, ast.Path(ast.NodePat("p", "Person"), zero, ast.NodePat("m", "Movie")))
	assert.InDelta(t, 2.5, EstimateCardinality(g, EstimationContext{Stats: movieStats()}).Float(), 1e-9)
}

func TestDisconnectedComponentsMultiply(t *testing.T) {
	ctx := EstimationContext{Stats: movieStats()}
	g := match(nil, ast.Path(ast.NodePat("a", "Person")), ast.Path(ast.NodePat("b", "Movie")))

	est := NewCardinalityModel(ctx).Estimate(g)
	assert.InDelta(t, 5000, est.Total.Float(), 1e-9)
	assert.Len(t, est.Components, 2)

	joined := match(ast.Compare(ast.OpEQ, ast.VarProp("a", "id"), ast.VarProp("b", "id")),
		ast.Path(ast.NodePat("a", "Person")), ast.Path(ast.NodePat("b", "Movie")))
	assert.InDelta(t, 50, EstimateCardinality(joined, ctx).Float(), 1e-9)
}

func TestSpanningPredicateInsideComponent(t *testing.T) {
	g := match(ast.Compare(ast.OpLT, ast.VarProp("p", "born"), ast.VarProp("m", "released")),
		ast.Path(ast.NodePat("p", "Person"), ast.Rel("r", ast.Outgoing, "ACTED_IN"), ast.NodePat("m", "Movie")))
	assert.InDelta(t, 0.75, EstimateCardinality(g, EstimationContext{Stats: movieStats()}).Float(), 1e-9)
}

func TestRelationshipPredicate(t *testing.T) {
	g := match(ast.Compare(ast.OpEQ, ast.VarProp("r", "role"), ast.Str("Neo")),
		ast.Path(ast.NodePat("p", "Person"), ast.Rel("r", ast.Outgoing, "ACTED_IN"), ast.NodePat("m", "Movie")))
	est := NewCardinalityModel(EstimationContext{Stats: movieStats()}).Estimate(g)
	assert.InDelta(t, 0.25, est.Total.Float(), 1e-9)
	assert.InDelta(t, 0.1, est.Selectivities["r"].Float(), 1e-12)
}

func TestRedundantLabelPredicateIgnored(t *testing.T) {
	g := match(ast.Labels(ast.Var("n"), "Person"), ast.Path(ast.NodePat("n", "Person")))
	assert.InDelta(t, 100, EstimateCardinality(g, EstimationContext{Stats: movieStats()}).Float(), 1e-9)

	g = match(ast.Labels(ast.Var("n"), "Movie"), ast.Path(ast.NodePat("n", "Person")))
	assert.InDelta(t, 5, EstimateCardinality(g, EstimationContext{Stats: movieStats()}).Float(), 1e-9)
}

func TestNarrowedToNoTypesYieldsZero(t *testing.T) {
	g := match(nil, ast.Path(ast.NodePat("a"), ast.Rel("r", ast.Outgoing, "ACTED_IN"), ast.NodePat("b")))

	plain := EstimateCardinality(g, EstimationContext{Stats: movieStats()})
	assert.False(t, plain.IsZero())

	ctx := EstimationContext{Stats: movieStats(), RelTypes: semantics.RelTypeInfo{}.Replace("r")}
	assert.True(t, EstimateCardinality(g, ctx).IsZero())
	assert.True(t, NewCardinalityModel(ctx).Estimate(g).Elements["r"].IsZero())
}

func TestOptionalMatchDoesNotReduceTotal(t *testing.T) {
	q := &ast.Query{Clauses: []ast.Clause{
		&ast.Match{Patterns: []*ast.PatternPart{ast.Path(ast.NodePat("p", "Person"))}},
		&ast.Match{Optional: true, Patterns: []*ast.PatternPart{
			ast.Path(ast.NodePat("p", "Person"), ast.Rel("r", ast.Outgoing, "ACTED_IN"), ast.NodePat("m", "Ghost")),
		}},
		ast.ReturnVars("p"),
	}}
	est := NewCardinalityModel(EstimationContext{Stats: movieStats()}).Estimate(BuildQueryGraph(q))
	assert.InDelta(t, 100, est.Total.Float(), 1e-9)
	require.Len(t, est.Optional, 1)
	assert.True(t, est.Optional[0].Total.IsZero())
}

func TestPredicatesOnUnboundVariablesAreSkipped(t *testing.T) {
	g := match(ast.Compare(ast.OpGT, ast.Var("total"), ast.Int(3)), ast.Path(ast.NodePat("n", "Person")))
	assert.InDelta(t, 100, EstimateCardinality(g, EstimationContext{Stats: movieStats()}).Float(), 1e-9)
}

func TestEstimatesWithoutStatistics(t *testing.T) {
	g := match(ast.Compare(ast.OpGT, ast.VarProp("p", "age"), ast.Int(3)),
		ast.Path(ast.NodePat("p", "Person"), ast.Rel("r", ast.Outgoing, "KNOWS"), ast.NodePat("q")))
	est := NewCardinalityModel(EstimationContext{}).Estimate(g)

	assert.False(t, math.IsNaN(est.Total.Float()))
	assert.True(t, est.Total.IsZero())
	for _, v := range est.Variables() {
		c, _ := est.Element(v)
		assert.GreaterOrEqual(t, c.Float(), 0.0)
		assert.False(t, math.IsNaN(c.Float()), v)
	}
}

func TestEstimatesAreDeterministic(t *testing.T) {
	build := func() *QueryGraph {
		return match(ast.AndOf(
			ast.Compare(ast.OpGT, ast.VarProp("p", "age"), ast.Int(30)),
			ast.StartsWith(ast.VarProp("m", "title"), ast.Str("The")),
			ast.Compare(ast.OpEQ, ast.VarProp("p", "name"), ast.VarProp("m", "director")),
		), ast.Path(ast.NodePat("p", "Person"), ast.Rel("r", ast.Outgoing, "ACTED_IN"), ast.NodePat("m", "Movie")),
			ast.Path(ast.NodePat("x")))
	}
	ctx := EstimationContext{Stats: movieStats()}
	a := NewCardinalityModel(ctx).Estimate(build())
	b := NewCardinalityModel(ctx).Estimate(build())
	assert.Equal(t, a.Total, b.Total)
	assert.Equal(t, a.Elements, b.Elements)
	assert.Equal(t, a.String(), b.String())
}

func TestQueryGraphStructure(t *testing.T) {
	props := &ast.MapLiteral{Entries: []ast.MapEntry{{Key: "name", Value: ast.Str("Ann")}}}
	p := ast.NodePat("p", "Person")
	p.Properties = props
	g := match(ast.AndOf(
		ast.Compare(ast.OpGT, ast.VarProp("p", "age"), ast.Int(3)),
		ast.Compare(ast.OpGT, ast.VarProp("p", "age"), ast.Int(3)),
	),
		ast.Path(p, ast.Rel("r", ast.Outgoing, "KNOWS"), ast.NodePat("q")),
		ast.Path(ast.NodePat("q", "Person"), ast.Rel("s", ast.Incoming), ast.NodePat("z")),
		ast.Path(ast.NodePat("lonely")),
	)

	assert.Equal(t, []string{"lonely", "p", "q", "r", "s", "z"}, g.Variables())
	assert.True(t, g.IsRelationship("r"))
	assert.False(t, g.IsRelationship("q"))

	q, ok := g.Node("q")
	require.True(t, ok)
	assert.Equal(t, []string{"Person"}, q.Labels)

	require.Len(t, g.Selections, 2, "inline property becomes a selection; duplicates collapse")
	assert.Equal(t, "p.name = 'Ann'", g.Selections[0].Predicate.String())
	assert.Equal(t, []string{"p"}, g.Selections[1].Dependencies)

	comps := g.Components()
	require.Len(t, comps, 2)
	assert.Equal(t, []string{"p", "q", "z"}, comps[0].Nodes)
	assert.Equal(t, []string{"r", "s"}, comps[0].Relationships)
	assert.Equal(t, []string{"lonely"}, comps[1].Nodes)
}

func TestQueryGraphNamesAnonymousElements(t *testing.T) {
	g := match(nil, ast.Path(ast.NodePat("", "Person"), ast.Rel("", ast.Outgoing, "KNOWS"), ast.NodePat("")))
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Relationships, 1)
	assert.Equal(t, graph.Cardinality(1000), EstimateCardinality(match(nil, ast.Path(ast.NodePat(""))),
		EstimationContext{Stats: movieStats()}))
}
