package ast

// Constructors for building trees in code. Nodes built this way carry no
// source position.

func Var(name string) *Variable { return &Variable{Name: name} }

func Prop(subject Expr, key string) *Property { return &Property{Subject: subject, Key: key} }

// VarProp is shorthand for Prop(Var(name), key).
func VarProp(name, key string) *Property { return Prop(Var(name), key) }

func Int(v int64) *IntegerLiteral { return &IntegerLiteral{Value: v} }

func Float(v float64) *FloatLiteral { return &FloatLiteral{Value: v} }

func Str(v string) *StringLiteral { return &StringLiteral{Value: v} }

func Bool(v bool) *BoolLiteral { return &BoolLiteral{Value: v} }

func Param(name string) *Parameter { return &Parameter{Name: name} }

func Compare(op CompareOp, left, right Expr) *Comparison {
	return &Comparison{Op: op, Left: left, Right: right}
}

func StartsWith(left, right Expr) *StringMatch {
	return &StringMatch{Op: OpStartsWith, Left: left, Right: right}
}

func EndsWith(left, right Expr) *StringMatch {
	return &StringMatch{Op: OpEndsWith, Left: left, Right: right}
}

func Contains(left, right Expr) *StringMatch {
	return &StringMatch{Op: OpContains, Left: left, Right: right}
}

func Exists(e Expr) *IsNotNull { return &IsNotNull{Expr: e} }

func Labels(subject Expr, labels ...string) *HasLabels {
	return &HasLabels{Subject: subject, Labels: labels}
}

func AndOf(exprs ...Expr) Expr { return Conjoin(Position{}, exprs...) }

// NodePat builds a node pattern; an empty name yields an anonymous node.
func NodePat(name string, labels ...string) *NodePattern {
	n := &NodePattern{Labels: labels}
	if name != "" {
		n.Variable = Var(name)
	}
	return n
}

// Rel builds a single-hop relationship pattern.
func Rel(name string, dir Direction, types ...string) *RelationshipPattern {
	r := &RelationshipPattern{Types: types, Direction: dir}
	if name != "" {
		r.Variable = Var(name)
	}
	return r
}

// Path builds a pattern part from alternating node and relationship elements.
func Path(elements ...PatternElement) *PatternPart {
	return &PatternPart{Elements: elements}
}

// ReturnVars builds RETURN n, m, ...
func ReturnVars(names ...string) *Return {
	items := make([]*ReturnItem, len(names))
	for i, n := range names {
		items[i] = &ReturnItem{Expr: Var(n)}
	}
	return &Return{Items: items}
}

// NewMatchQuery builds MATCH <patterns> WHERE <where> RETURN <names>.
func NewMatchQuery(where Expr, patterns []*PatternPart, returns ...string) *Query {
	return &Query{Clauses: []Clause{
		&Match{Patterns: patterns, Where: where},
		ReturnVars(returns...),
	}}
}
