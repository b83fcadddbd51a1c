package ast

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuery() *Query {
	n := NodePat("n", "Person")
	n.Properties = &MapLiteral{Entries: []MapEntry{{Key: "name", Value: Str("Alice")}}}
	return NewMatchQuery(
		&And{
			Left:  Compare(OpGT, VarProp("n", "age"), Int(30)),
			Right: StartsWith(VarProp("m", "name"), Str("A")),
		},
		[]*PatternPart{Path(n, Rel("r", Outgoing, "KNOWS"), NodePat("m"))},
		"n", "m",
	)
}

func TestFormat(t *testing.T) {
	got := Format(sampleQuery())
	want := "MATCH (n:Person {name: 'Alice'})-[r:KNOWS]->(m) " +
		"WHERE (n.age > 30 AND m.name STARTS WITH 'A') RETURN n, m"
	assert.Equal(t, want, got)
}

func TestFormatEscapesNames(t *testing.T) {
	assert.Equal(t, "`  anon_0`", Var("  anon_0").String())
	assert.Equal(t, "n@1", Var("n@1").String())
	assert.Equal(t, "'it\\'s'", Str("it's").String())
	rel := &RelationshipPattern{Types: []string{"A", "B"}, Direction: Incoming, Length: &PathLength{Min: 1, Max: -1}}
	assert.Equal(t, "<-[:A|B*1..]-", rel.String())
}

func TestRewriteSharesUnchangedSubtrees(t *testing.T) {
	left := Compare(OpGT, VarProp("n", "age"), Int(30))
	right := StartsWith(VarProp("m", "name"), Str("A"))
	in := &And{Left: left, Right: right}

	out := Rewrite(in, func(e Expr) Expr {
		if v, ok := e.(*Variable); ok && v.Name == "m" {
			return Var("x")
		}
		return e
	})

	and, ok := out.(*And)
	require.True(t, ok)
	assert.Same(t, left, and.Left, "untouched subtree must be shared")
	assert.NotSame(t, right, and.Right)
	assert.Equal(t, "m.name STARTS WITH 'A'", right.String(), "input must not be mutated")
	assert.Equal(t, "x.name STARTS WITH 'A'", and.Right.String())
}

func TestRewriteIdentityIsStructurallyEqual(t *testing.T) {
	q := sampleQuery()
	out := RewriteQuery(q, func(e Expr) Expr { return e })
	if diff := cmp.Diff(q, out); diff != "" {
		t.Errorf("identity rewrite changed the tree (-want +got):\n%s", diff)
	}
	assert.True(t, Equal(q, out))
}

func TestRewriteQueryRenamesPatternVariables(t *testing.T) {
	q := sampleQuery()
	out := RewriteQuery(q, func(e Expr) Expr {
		if v, ok := e.(*Variable); ok && v.Name == "n" {
			return &Variable{Position: v.Position, Name: "p"}
		}
		return e
	})
	assert.Contains(t, Format(out), "(p:Person")
	assert.Contains(t, Format(out), "p.age > 30")
	assert.Contains(t, Format(q), "(n:Person", "original query must be untouched")
}

func TestConjunctsAndConjoin(t *testing.T) {
	a := Compare(OpEQ, VarProp("n", "a"), Int(1))
	b := Compare(OpEQ, VarProp("n", "b"), Int(2))
	c := Compare(OpEQ, VarProp("n", "c"), Int(3))
	nested := &And{Left: &And{Left: a, Right: b}, Right: c}

	assert.Equal(t, []Expr{a, b, c}, Conjuncts(nested))
	assert.Nil(t, Conjuncts(nil))
	assert.Nil(t, Conjoin(Position{}))
	assert.Same(t, a, Conjoin(Position{}, a))

	ands, ok := Conjoin(Position{}, nested).(*Ands)
	require.True(t, ok)
	assert.Len(t, ands.Exprs, 3)
}

func TestDependencies(t *testing.T) {
	e := Compare(OpEQ, VarProp("b", "x"), VarProp("a", "y"))
	assert.Equal(t, []string{"a", "b"}, Dependencies(e))
	assert.Empty(t, Dependencies(Int(1)))
}

func TestFingerprintDeterministic(t *testing.T) {
	a, b := sampleQuery(), sampleQuery()
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	c := NewMatchQuery(nil, []*PatternPart{Path(NodePat("n"))}, "n")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestLiteralHelpers(t *testing.T) {
	assert.True(t, IsLiteral(&ListLiteral{Items: []Expr{Int(1), Str("x")}}))
	assert.False(t, IsLiteral(&ListLiteral{Items: []Expr{Var("n")}}))
	v, ok := NumericValue(Float(2.5))
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)
	assert.Equal(t, OpLT, OpGT.Flip())
	assert.True(t, OpGTE.IsRange())
	assert.False(t, OpEQ.IsRange())
}
