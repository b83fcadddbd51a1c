package planner

import (
	"math"

	"github.com/wbrown/janus-graph/graph"
	"github.com/wbrown/janus-graph/graph/ast"
	"github.com/wbrown/janus-graph/graph/stats"
)

// predicateClass groups predicate shapes by the index capabilities they need.
type predicateClass uint8

const (
	classOther predicateClass = iota
	classEquality
	classRange
	classString
	classExists
)

// propertyTerm is a predicate restricting one property of one variable
// against a value that does not depend on that variable.
type propertyTerm struct {
	variable string
	key      string
	class    predicateClass
	op       ast.CompareOp // set for comparisons, oriented property-first
	match    ast.MatchOp   // set for string matches
	in       bool
	value    ast.Expr
}

// asPropertyTerm recognizes v.key <op> value, value <op> v.key, string
// matches, IN lists and existence checks.
func asPropertyTerm(e ast.Expr) (propertyTerm, bool) {
	switch p := e.(type) {
	case *ast.Comparison:
		if v, key, ok := variableProperty(p.Left); ok && independentOf(p.Right, v) {
			return comparisonTerm(v, key, p.Op, p.Right), true
		}
		if v, key, ok := variableProperty(p.Right); ok && independentOf(p.Left, v) {
			return comparisonTerm(v, key, p.Op.Flip(), p.Left), true
		}
	case *ast.StringMatch:
		if v, key, ok := variableProperty(p.Left); ok && independentOf(p.Right, v) {
			return propertyTerm{variable: v, key: key, class: classString, match: p.Op, value: p.Right}, true
		}
	case *ast.In:
		if v, key, ok := variableProperty(p.Left); ok && independentOf(p.Right, v) {
			return propertyTerm{variable: v, key: key, class: classEquality, in: true, value: p.Right}, true
		}
	case *ast.IsNotNull:
		if v, key, ok := variableProperty(p.Expr); ok {
			return propertyTerm{variable: v, key: key, class: classExists}, true
		}
	}
	return propertyTerm{}, false
}

func comparisonTerm(v, key string, op ast.CompareOp, value ast.Expr) propertyTerm {
	class := classOther
	switch {
	case op == ast.OpEQ:
		class = classEquality
	case op.IsRange():
		class = classRange
	}
	return propertyTerm{variable: v, key: key, class: class, op: op, value: value}
}

func variableProperty(e ast.Expr) (variable, key string, ok bool) {
	p, isProp := e.(*ast.Property)
	if !isProp {
		return "", "", false
	}
	v, isVar := p.Subject.(*ast.Variable)
	if !isVar {
		return "", "", false
	}
	return v.Name, p.Key, true
}

func independentOf(e ast.Expr, variable string) bool {
	for _, d := range ast.Dependencies(e) {
		if d == variable {
			return false
		}
	}
	return true
}

// SelectivityCalculator estimates the selectivity of a single predicate.
type SelectivityCalculator struct {
	ctx EstimationContext
}

// NewSelectivityCalculator returns a calculator over ctx.
func NewSelectivityCalculator(ctx EstimationContext) *SelectivityCalculator {
	return &SelectivityCalculator{ctx: ctx}
}

// EstimateSelectivity estimates one predicate. The result is always within
// [graph.Epsilon, 1].
func EstimateSelectivity(e ast.Expr, ctx EstimationContext) graph.Selectivity {
	return NewSelectivityCalculator(ctx).Estimate(e)
}

// Estimate returns the selectivity of e. A nil predicate filters nothing.
func (c *SelectivityCalculator) Estimate(e ast.Expr) graph.Selectivity {
	return graph.NewSelectivity(c.estimate(e).Float())
}

func (c *SelectivityCalculator) estimate(e ast.Expr) graph.Selectivity {
	switch p := e.(type) {
	case nil:
		return graph.OneSelectivity
	case *ast.Ands:
		sel := graph.OneSelectivity
		for _, x := range p.Exprs {
			sel = sel.And(c.estimate(x))
		}
		return sel
	case *ast.And:
		return c.estimate(p.Left).And(c.estimate(p.Right))
	case *ast.Ors:
		return c.disjunction(p.Exprs)
	case *ast.Or:
		return c.disjunction([]ast.Expr{p.Left, p.Right})
	case *ast.Not:
		return c.estimate(p.Expr).Negate()
	case *ast.BoolLiteral:
		if p.Value {
			return graph.OneSelectivity
		}
		return graph.MinSelectivity
	case *ast.NullLiteral:
		return graph.MinSelectivity
	case *ast.HasLabels:
		sel := graph.OneSelectivity
		for _, l := range p.Labels {
			sel = sel.And(c.ctx.labelSelectivity(l))
		}
		return sel
	case *ast.HasTypes:
		return c.typeSelectivity(p.Types)
	case *ast.IsNull:
		return c.exists(p.Expr).Negate()
	case *ast.IsNotNull:
		return c.exists(p.Expr)
	}

	if term, ok := asPropertyTerm(e); ok {
		return c.propertySelectivity(term)
	}
	switch p := e.(type) {
	case *ast.Comparison:
		return defaultComparison(p.Op)
	case *ast.StringMatch:
		return defaultStringMatch(p.Op)
	case *ast.In:
		return inList(p.Right, DefaultEqualitySelectivity)
	}
	return DefaultPredicateSelectivity
}

// disjunction applies inclusion-exclusion under independence: 1 - Π(1 - s).
func (c *SelectivityCalculator) disjunction(exprs []ast.Expr) graph.Selectivity {
	none := 1.0
	for _, x := range exprs {
		none *= 1 - c.estimate(x).Float()
	}
	return graph.NewSelectivity(1 - none)
}

func (c *SelectivityCalculator) typeSelectivity(types []string) graph.Selectivity {
	total := c.ctx.provider().RelationshipCount()
	if total.IsZero() {
		sel := 0.0
		for _, t := range types {
			if _, ok := c.ctx.provider().RelationshipTypeCardinality(t); !ok {
				sel += DefaultTypeSelectivity.Float()
			}
		}
		if sel == 0 {
			return graph.OneSelectivity
		}
		return graph.NewSelectivity(sel)
	}
	return graph.SelectivityFromFraction(c.ctx.typeCount(types).Float(), total.Float())
}

func (c *SelectivityCalculator) exists(e ast.Expr) graph.Selectivity {
	v, key, ok := variableProperty(e)
	if !ok {
		return DefaultPropertyExistsSelectivity
	}
	if populated, ok := c.populated(v, key); ok {
		return populated
	}
	return DefaultPropertyExistsSelectivity
}

func (c *SelectivityCalculator) propertySelectivity(t propertyTerm) graph.Selectivity {
	switch t.class {
	case classEquality:
		eq := c.equality(t.variable, t.key)
		if t.in {
			return inList(t.value, eq)
		}
		return eq
	case classRange:
		return c.rangeSelectivity(t)
	case classString:
		return defaultStringMatch(t.match)
	case classExists:
		return c.exists(ast.VarProp(t.variable, t.key))
	}
	if t.op == ast.OpNE {
		return c.equality(t.variable, t.key).Negate()
	}
	return defaultComparison(t.op)
}

// equality is PopulatedFraction / DistinctValues from the most selective
// single-property index that reports a distinct count.
func (c *SelectivityCalculator) equality(variable, key string) graph.Selectivity {
	best, found := graph.OneSelectivity, false
	for _, idx := range c.ctx.indexesOn(variable, []string{key}) {
		if idx.DistinctValues == nil || *idx.DistinctValues <= 0 || !idx.ExactlyMatches([]string{key}) {
			continue
		}
		sel := graph.NewSelectivity(populatedOf(idx) / *idx.DistinctValues)
		if !found || sel < best {
			best, found = sel, true
		}
	}
	if !found {
		return DefaultEqualitySelectivity
	}
	return best
}

func (c *SelectivityCalculator) rangeSelectivity(t propertyTerm) graph.Selectivity {
	bound, numeric := ast.NumericValue(t.value)
	if !numeric {
		return DefaultRangeSelectivity
	}
	best, found := graph.OneSelectivity, false
	for _, idx := range c.ctx.indexesOn(t.variable, []string{t.key}) {
		if idx.Histogram == nil || !idx.ExactlyMatches([]string{t.key}) || !supports(idx.Kind, classRange) {
			continue
		}
		var frac float64
		switch t.op {
		case ast.OpLT, ast.OpLTE:
			frac = idx.Histogram.FractionBelow(bound)
		default:
			frac = idx.Histogram.Total() - idx.Histogram.FractionBelow(bound)
		}
		sel := graph.NewSelectivity(populatedOf(idx) * math.Max(frac, 0))
		if !found || sel < best {
			best, found = sel, true
		}
	}
	if !found {
		return DefaultRangeSelectivity
	}
	return best
}

func (c *SelectivityCalculator) populated(variable, key string) (graph.Selectivity, bool) {
	best, found := graph.OneSelectivity, false
	for _, idx := range c.ctx.indexesOn(variable, []string{key}) {
		if idx.PopulatedFraction == nil || !idx.ExactlyMatches([]string{key}) {
			continue
		}
		sel := graph.NewSelectivity(*idx.PopulatedFraction)
		if !found || sel < best {
			best, found = sel, true
		}
	}
	return best, found
}

func populatedOf(idx stats.IndexDescriptor) float64 {
	if idx.PopulatedFraction == nil {
		return 1
	}
	return *idx.PopulatedFraction
}

// inList is min(1, n × each) for an IN list of n elements.
func inList(list ast.Expr, each graph.Selectivity) graph.Selectivity {
	n := DefaultInListSize
	if l, ok := list.(*ast.ListLiteral); ok {
		n = len(l.Items)
	}
	return graph.NewSelectivity(float64(n) * each.Float())
}

func defaultComparison(op ast.CompareOp) graph.Selectivity {
	switch {
	case op == ast.OpEQ:
		return DefaultEqualitySelectivity
	case op == ast.OpNE:
		return DefaultEqualitySelectivity.Negate()
	case op.IsRange():
		return DefaultRangeSelectivity
	}
	return DefaultPredicateSelectivity
}

func defaultStringMatch(op ast.MatchOp) graph.Selectivity {
	switch op {
	case ast.OpStartsWith:
		return DefaultPrefixSelectivity
	case ast.OpEndsWith:
		return DefaultSuffixSelectivity
	case ast.OpContains:
		return DefaultSubstringSelectivity
	}
	return DefaultPredicateSelectivity
}
