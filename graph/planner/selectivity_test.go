package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wbrown/janus-graph/graph"
	"github.com/wbrown/janus-graph/graph/ast"
	"github.com/wbrown/janus-graph/graph/semantics"
	"github.com/wbrown/janus-graph/graph/stats"
)

func personContext(s *stats.Snapshot) EstimationContext {
	return EstimationContext{
		Stats:  s,
		Labels: semantics.LabelInfo{}.With("n", "Person"),
	}
}

func TestDefaultSelectivities(t *testing.T) {
	ctx := EstimationContext{}
	age := ast.VarProp("n", "age")
	name := ast.VarProp("n", "name")

	tests := []struct {
		name string
		expr ast.Expr
		want float64
	}{
		{"nil", nil, 1},
		{"range", ast.Compare(ast.OpGT, age, ast.Int(30)), 0.3},
		{"flipped range", ast.Compare(ast.OpLT, ast.Int(30), age), 0.3},
		{"equality", ast.Compare(ast.OpEQ, name, ast.Str("Ann")), 0.1},
		{"inequality", ast.Compare(ast.OpNE, name, ast.Str("Ann")), 0.9},
		{"prefix", ast.StartsWith(name, ast.Str("A")), 0.5},
		{"suffix", ast.EndsWith(name, ast.Str("a")), 0.5},
		{"substring", ast.Contains(name, ast.Str("nn")), 0.6},
		{"exists", ast.Exists(name), 0.5},
		{"is null", &ast.IsNull{Expr: name}, 0.5},
		{"in list", &ast.In{Left: name, Right: &ast.ListLiteral{Items: []ast.Expr{ast.Str("a"), ast.Str("b"), ast.Str("c")}}}, 0.3},
		{"in parameter", &ast.In{Left: name, Right: ast.Param("names")}, 0.3},
		{"not", &ast.Not{Expr: ast.Compare(ast.OpGT, age, ast.Int(30))}, 0.7},
		{"or", &ast.Ors{Exprs: []ast.Expr{ast.Compare(ast.OpGT, age, ast.Int(30)), ast.StartsWith(name, ast.Str("A"))}}, 0.65},
		{"and", &ast.Ands{Exprs: []ast.Expr{ast.Compare(ast.OpGT, age, ast.Int(30)), ast.StartsWith(name, ast.Str("A"))}}, 0.15},
		{"unknown shape", &ast.FunctionCall{Name: "custom", Args: []ast.Expr{name}}, 1},
		{"true", ast.Bool(true), 1},
		{"label without stats", ast.Labels(ast.Var("n"), "Person"), 0.1},
		{"same-variable comparison", ast.Compare(ast.OpEQ, age, ast.VarProp("n", "shoe")), 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateSelectivity(tt.expr, ctx).Float(), 1e-12)
		})
	}
}

func TestSelectivityClampedToEpsilon(t *testing.T) {
	var exprs []ast.Expr
	for i := 0; i < 40; i++ {
		exprs = append(exprs, ast.Compare(ast.OpEQ, ast.VarProp("n", "p"), ast.Int(int64(i))))
	}
	tests := []ast.Expr{
		&ast.Ands{Exprs: exprs},
		ast.Bool(false),
		&ast.NullLiteral{},
		&ast.In{Left: ast.VarProp("n", "p"), Right: &ast.ListLiteral{}},
		&ast.In{Left: ast.VarProp("n", "p"), Right: &ast.ListLiteral{Items: exprs}},
		&ast.Not{Expr: ast.Bool(true)},
	}
	for _, e := range tests {
		sel := EstimateSelectivity(e, EstimationContext{}).Float()
		assert.GreaterOrEqual(t, sel, graph.Epsilon, "%s", e)
		assert.LessOrEqual(t, sel, 1.0, "%s", e)
	}
}

func TestIndexDerivedSelectivity(t *testing.T) {
	s := stats.MustSnapshot(stats.Data{
		Nodes:  10000,
		Labels: map[string]float64{"Person": 1000},
		Indexes: []stats.IndexDescriptor{
			{Name: "person_name", Entity: graph.NodeEntity, Token: "Person", Properties: []string{"name"},
				PopulatedFraction: stats.Float(0.8), DistinctValues: stats.Float(500)},
			{Name: "person_age", Entity: graph.NodeEntity, Token: "Person", Properties: []string{"age"},
				PopulatedFraction: stats.Float(0.9), Histogram: &stats.Histogram{Min: 0, Buckets: []stats.HistogramBucket{
					{UpperBound: 50, Fraction: 0.5}, {UpperBound: 100, Fraction: 0.5},
				}}},
		},
	})
	ctx := personContext(s)
	age := ast.VarProp("n", "age")

	assert.InDelta(t, 0.0016, EstimateSelectivity(ast.Compare(ast.OpEQ, ast.VarProp("n", "name"), ast.Str("x")), ctx).Float(), 1e-12)
	assert.InDelta(t, 0.225, EstimateSelectivity(ast.Compare(ast.OpLT, age, ast.Int(25)), ctx).Float(), 1e-12)
	assert.InDelta(t, 0.225, EstimateSelectivity(ast.Compare(ast.OpGT, age, ast.Int(75)), ctx).Float(), 1e-12)
	assert.InDelta(t, 0.63, EstimateSelectivity(ast.Compare(ast.OpLT, ast.Int(30), age), ctx).Float(), 1e-12)
	assert.Equal(t, graph.MinSelectivity, EstimateSelectivity(ast.Compare(ast.OpGTE, age, ast.Int(100)), ctx))
	assert.InDelta(t, 0.3, EstimateSelectivity(ast.Compare(ast.OpGT, age, ast.Param("min")), ctx).Float(), 1e-12,
		"non-literal bounds use the default")

	assert.InDelta(t, 0.9, EstimateSelectivity(ast.Exists(age), ctx).Float(), 1e-12)
	assert.InDelta(t, 0.1, EstimateSelectivity(&ast.IsNull{Expr: age}, ctx).Float(), 1e-12)
	assert.InDelta(t, 0.1, EstimateSelectivity(ast.Compare(ast.OpEQ, age, ast.Int(3)), ctx).Float(), 1e-12,
		"no distinct count falls back to the default")

	unlabeled := EstimationContext{Stats: s}
	assert.InDelta(t, 0.1, EstimateSelectivity(ast.Compare(ast.OpEQ, ast.VarProp("n", "name"), ast.Str("x")), unlabeled).Float(), 1e-12)
}

func TestTokenSelectivity(t *testing.T) {
	s := stats.MustSnapshot(stats.Data{
		Nodes:             10000,
		Relationships:     5000,
		Labels:            map[string]float64{"Person": 1000, "Ghost": 0},
		RelationshipTypes: map[string]float64{"ACTED_IN": 1000},
	})
	ctx := EstimationContext{Stats: s}

	assert.InDelta(t, 0.1, EstimateSelectivity(ast.Labels(ast.Var("n"), "Person"), ctx).Float(), 1e-12)
	assert.InDelta(t, 0.1, EstimateSelectivity(ast.Labels(ast.Var("n"), "Unknown"), ctx).Float(), 1e-12)
	assert.Equal(t, graph.MinSelectivity, EstimateSelectivity(ast.Labels(ast.Var("n"), "Person", "Ghost"), ctx))

	assert.InDelta(t, 0.2, EstimateSelectivity(&ast.HasTypes{Subject: ast.Var("r"), Types: []string{"ACTED_IN"}}, ctx).Float(), 1e-12)
	assert.InDelta(t, 0.3, EstimateSelectivity(&ast.HasTypes{Subject: ast.Var("r"), Types: []string{"ACTED_IN", "UNKNOWN"}}, ctx).Float(), 1e-12)
}
