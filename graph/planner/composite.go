package planner

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wbrown/janus-graph/graph"
	"github.com/wbrown/janus-graph/graph/ast"
	"github.com/wbrown/janus-graph/graph/stats"
)

// capabilities lists the predicate classes each index kind can serve.
// Token lookup indexes only answer label/type membership.
var capabilities = map[stats.IndexKind]map[predicateClass]bool{
	stats.RangeIndex:       {classEquality: true, classRange: true, classExists: true},
	stats.TextIndex:        {classEquality: true, classString: true},
	stats.PointIndex:       {classEquality: true, classRange: true},
	stats.TokenLookupIndex: {},
}

func supports(kind stats.IndexKind, class predicateClass) bool {
	return capabilities[kind][class]
}

// GroupEstimate is the estimate for the predicates on one variable.
type GroupEstimate struct {
	Variable    string
	Predicates  []ast.Expr
	Selectivity graph.Selectivity
	// Index is the index whose statistics produced the estimate, or "" when
	// the per-predicate product was at least as selective.
	Index string
}

// CompositeEstimate explains a composite selectivity.
type CompositeEstimate struct {
	Selectivity graph.Selectivity
	Groups      []GroupEstimate
	Residual    []ast.Expr
}

func (e CompositeEstimate) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "selectivity %s", e.Selectivity)
	for _, g := range e.Groups {
		fmt.Fprintf(&sb, "; %s=%s", g.Variable, g.Selectivity)
		if g.Index != "" {
			fmt.Fprintf(&sb, " via %s", g.Index)
		}
	}
	if len(e.Residual) > 0 {
		fmt.Fprintf(&sb, "; %d residual", len(e.Residual))
	}
	return sb.String()
}

// CompositeCalculator estimates the combined selectivity of a predicate set,
// using index statistics for predicates that one index can serve together.
//
// Adding a predicate never increases the result: each variable group takes
// the minimum over its candidate indexes and the plain per-predicate
// product, the candidate set only grows as predicates are added, and every
// candidate's estimate only shrinks. Observed index statistics therefore act
// only as an upper bound: an index whose observed selectivity is above the
// default product is not chosen.
type CompositeCalculator struct {
	ctx    EstimationContext
	single *SelectivityCalculator
}

// NewCompositeCalculator returns a calculator over ctx.
func NewCompositeCalculator(ctx EstimationContext) *CompositeCalculator {
	return &CompositeCalculator{ctx: ctx, single: NewSelectivityCalculator(ctx)}
}

// EstimateComposite returns the selectivity of the conjunction of predicates.
func EstimateComposite(predicates []ast.Expr, ctx EstimationContext) graph.Selectivity {
	return NewCompositeCalculator(ctx).Estimate(predicates)
}

// Estimate returns the selectivity of the conjunction of predicates. The
// empty set has selectivity 1.
func (c *CompositeCalculator) Estimate(predicates []ast.Expr) graph.Selectivity {
	return c.Explain(predicates).Selectivity
}

// Explain returns the estimate along with how it was derived.
func (c *CompositeCalculator) Explain(predicates []ast.Expr) CompositeEstimate {
	groups := make(map[string][]ast.Expr)
	var residual []ast.Expr
	for _, p := range flatten(predicates) {
		deps := ast.Dependencies(p)
		if len(deps) == 1 {
			groups[deps[0]] = append(groups[deps[0]], p)
			continue
		}
		residual = append(residual, p)
	}

	variables := make([]string, 0, len(groups))
	for v := range groups {
		variables = append(variables, v)
	}
	sort.Strings(variables)

	out := CompositeEstimate{Selectivity: graph.OneSelectivity, Residual: residual}
	for _, v := range variables {
		g := c.group(v, groups[v])
		out.Groups = append(out.Groups, g)
		out.Selectivity = out.Selectivity.And(g.Selectivity)
	}
	for _, p := range residual {
		out.Selectivity = out.Selectivity.And(c.residual(p))
	}
	return out
}

type candidate struct {
	idx   stats.IndexDescriptor
	sel   graph.Selectivity
	exact bool
}

// better orders candidates by estimate, exact property match, declared
// selectivity, then name.
func (a candidate) better(b candidate) bool {
	if a.sel != b.sel {
		return a.sel < b.sel
	}
	if a.exact != b.exact {
		return a.exact
	}
	ad, bd := declared(a.idx), declared(b.idx)
	if ad != bd {
		return ad < bd
	}
	return a.idx.Name < b.idx.Name
}

func declared(idx stats.IndexDescriptor) float64 {
	if idx.ObservedSelectivity == nil {
		return math.Inf(1)
	}
	return *idx.ObservedSelectivity
}

func (c *CompositeCalculator) group(variable string, predicates []ast.Expr) GroupEstimate {
	sels := make([]graph.Selectivity, len(predicates))
	terms := make([]propertyTerm, len(predicates))
	isTerm := make([]bool, len(predicates))
	product := graph.OneSelectivity
	keySet := make(map[string]bool)
	for i, p := range predicates {
		sels[i] = c.single.Estimate(p)
		product = product.And(sels[i])
		if t, ok := asPropertyTerm(p); ok && t.class != classOther {
			terms[i], isTerm[i] = t, true
			keySet[t.key] = true
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := GroupEstimate{Variable: variable, Predicates: predicates, Selectivity: product}
	var best *candidate
	for _, idx := range c.ctx.indexesOn(variable, keys) {
		if idx.Kind == stats.TokenLookupIndex {
			continue
		}
		cand, ok := c.candidate(idx, sels, terms, isTerm, keys)
		if !ok {
			continue
		}
		if best == nil || cand.better(*best) {
			best = &cand
		}
	}
	if best != nil && best.sel <= product {
		result.Selectivity = best.sel
		result.Index = best.idx.Name
	}
	return result
}

// candidate estimates the group through idx. The index applies only when
// each of its properties is restricted by at least one predicate its kind can
// serve; incompatible predicates on indexed properties stay residual.
func (c *CompositeCalculator) candidate(idx stats.IndexDescriptor, sels []graph.Selectivity,
	terms []propertyTerm, isTerm []bool, keys []string) (candidate, bool) {
	indexed := make(map[string]bool, len(idx.Properties))
	for _, p := range idx.Properties {
		indexed[p] = true
	}
	served := make(map[string]bool, len(idx.Properties))
	covered := graph.OneSelectivity
	rest := graph.OneSelectivity
	for i := range sels {
		if isTerm[i] && indexed[terms[i].key] && supports(idx.Kind, terms[i].class) {
			served[terms[i].key] = true
			covered = covered.And(sels[i])
			continue
		}
		rest = rest.And(sels[i])
	}
	if len(served) != len(indexed) {
		return candidate{}, false
	}
	if idx.ObservedSelectivity != nil {
		covered = graph.NewSelectivity(*idx.ObservedSelectivity)
	}
	return candidate{
		idx:   idx,
		sel:   covered.And(rest),
		exact: idx.ExactlyMatches(keys),
	}, true
}

// residual estimates a predicate spanning several variables. Equality of
// two properties or two entities is a join predicate: 1/max(distinct) from
// index statistics, otherwise 1/max of the variables' label-only
// cardinalities.
func (c *CompositeCalculator) residual(p ast.Expr) graph.Selectivity {
	cmp, ok := p.(*ast.Comparison)
	if !ok || cmp.Op != ast.OpEQ {
		return c.single.Estimate(p)
	}
	if lv, lk, ok := variableProperty(cmp.Left); ok {
		if rv, rk, ok := variableProperty(cmp.Right); ok && lv != rv {
			if sel, ok := c.joinByDistinct(lv, lk, rv, rk); ok {
				return sel
			}
			return c.joinByCardinality(lv, rv)
		}
	}
	lv, lok := cmp.Left.(*ast.Variable)
	rv, rok := cmp.Right.(*ast.Variable)
	if lok && rok && lv.Name != rv.Name {
		return c.joinByCardinality(lv.Name, rv.Name)
	}
	return c.single.Estimate(p)
}

func (c *CompositeCalculator) joinByDistinct(lv, lk, rv, rk string) (graph.Selectivity, bool) {
	d := math.Max(c.distinct(lv, lk), c.distinct(rv, rk))
	if d <= 0 {
		return 0, false
	}
	return graph.NewSelectivity(1 / d), true
}

func (c *CompositeCalculator) distinct(variable, key string) float64 {
	var d float64
	for _, idx := range c.ctx.indexesOn(variable, []string{key}) {
		if idx.DistinctValues != nil && idx.ExactlyMatches([]string{key}) {
			d = math.Max(d, *idx.DistinctValues)
		}
	}
	return d
}

func (c *CompositeCalculator) joinByCardinality(a, b string) graph.Selectivity {
	n := math.Max(labelOnlyCardinality(c.ctx, a).Float(), labelOnlyCardinality(c.ctx, b).Float())
	if n < 1 {
		return DefaultEqualitySelectivity
	}
	return graph.NewSelectivity(1 / n)
}

func flatten(predicates []ast.Expr) []ast.Expr {
	var out []ast.Expr
	for _, p := range predicates {
		out = append(out, ast.Conjuncts(p)...)
	}
	return out
}
