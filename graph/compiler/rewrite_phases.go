package compiler

import (
	"fmt"

	"github.com/wbrown/janus-graph/graph/ast"
)

// Phase names of the rewriting phases.
const (
	PhaseNameAnonymous   = "name-anonymous-elements"
	PhaseNamespace       = "namespace-variables"
	PhaseNormalize       = "normalize-predicates"
	anonymousNamePattern = "  anon_%d"
)

// NameAnonymousElements gives every unnamed node and relationship pattern a
// synthetic variable. Names are assigned in traversal order, so the same
// query always receives the same names.
var NameAnonymousElements Phase = &FuncPhase{
	PhaseName: PhaseNameAnonymous,
	Guarantee: []Condition{AnonymousElementsNamed},
	Fn: func(_ Context, s State) (State, error) {
		s.Query = nameAnonymousElements(s.Query)
		return s, nil
	},
}

// NamespaceVariables renames re-declarations of a variable that shadow an
// earlier binding, so that after it every binding has a unique name and all
// references to one binding share it.
var NamespaceVariables Phase = &FuncPhase{
	PhaseName:   PhaseNamespace,
	Requirement: []Condition{AnonymousElementsNamed},
	Guarantee:   []Condition{VariablesUniquelyNamed},
	Invalidated: []Condition{TypesResolved, QueryGraphBuilt, CardinalitiesEstimated},
	Fn: func(_ Context, s State) (State, error) {
		s.Query = namespaceVariables(s.Query)
		return s, nil
	},
}

// NormalizePredicates moves inline property maps into WHERE, flattens
// AND/OR chains and drops duplicate conjuncts.
var NormalizePredicates Phase = &FuncPhase{
	PhaseName:   PhaseNormalize,
	Requirement: []Condition{AnonymousElementsNamed},
	Guarantee:   []Condition{PredicatesNormalized},
	Invalidated: []Condition{QueryGraphBuilt, CardinalitiesEstimated},
	Fn: func(_ Context, s State) (State, error) {
		s.Query = normalizePredicates(s.Query)
		return s, nil
	},
}

func nameAnonymousElements(q *ast.Query) *ast.Query {
	taken := variableNames(q)
	n := 0
	fresh := func(pos ast.Position) *ast.Variable {
		for {
			name := fmt.Sprintf(anonymousNamePattern, n)
			n++
			if !taken[name] {
				taken[name] = true
				return &ast.Variable{Position: pos, Name: name}
			}
		}
	}

	out := *q
	out.Clauses = make([]ast.Clause, len(q.Clauses))
	for i, c := range q.Clauses {
		m, ok := c.(*ast.Match)
		if !ok {
			out.Clauses[i] = c
			continue
		}
		mc := *m
		mc.Patterns = make([]*ast.PatternPart, len(m.Patterns))
		for j, p := range m.Patterns {
			pc := *p
			pc.Elements = make([]ast.PatternElement, len(p.Elements))
			for k, e := range p.Elements {
				switch el := e.(type) {
				case *ast.NodePattern:
					if el.Variable == nil {
						named := *el
						named.Variable = fresh(el.Position)
						e = &named
					}
				case *ast.RelationshipPattern:
					if el.Variable == nil {
						named := *el
						named.Variable = fresh(el.Position)
						e = &named
					}
				}
				pc.Elements[k] = e
			}
			mc.Patterns[j] = &pc
		}
		out.Clauses[i] = &mc
	}
	return &out
}

// namespacer hands out unique names for variable bindings.
type namespacer struct {
	// taken holds every name in the input plus every name issued.
	taken map[string]bool
	bound map[string]bool
}

// bind returns the name for a new binding of name: the name itself the first
// time, afterwards name@k with the smallest k not already in use.
func (ns *namespacer) bind(name string) string {
	if !ns.bound[name] {
		ns.bound[name] = true
		ns.taken[name] = true
		return name
	}
	for k := 1; ; k++ {
		candidate := fmt.Sprintf("%s@%d", name, k)
		if !ns.taken[candidate] {
			ns.bound[candidate] = true
			ns.taken[candidate] = true
			return candidate
		}
	}
}

func renameIn(scope map[string]string) ast.Rewriter {
	return func(e ast.Expr) ast.Expr {
		v, ok := e.(*ast.Variable)
		if !ok {
			return e
		}
		if unique, ok := scope[v.Name]; ok && unique != v.Name {
			c := *v
			c.Name = unique
			return &c
		}
		return e
	}
}

func namespaceVariables(q *ast.Query) *ast.Query {
	ns := &namespacer{taken: variableNames(q), bound: make(map[string]bool)}
	scope := make(map[string]string)

	out := *q
	out.Clauses = make([]ast.Clause, len(q.Clauses))
	for i, c := range q.Clauses {
		switch cl := c.(type) {
		case *ast.Match:
			for _, p := range cl.Patterns {
				for _, e := range p.Elements {
					name := ast.VariableName(e)
					if _, inScope := scope[name]; name != "" && !inScope {
						scope[name] = ns.bind(name)
					}
				}
			}
			out.Clauses[i] = ast.RewriteClause(cl, renameIn(scope))

		case *ast.With:
			wc := *cl
			wc.Items, scope = projectItems(cl.Items, scope, ns)
			wc.Where = ast.Rewrite(cl.Where, renameIn(scope))
			out.Clauses[i] = &wc

		case *ast.Return:
			rc := *cl
			rename := renameIn(scope)
			rc.Items = make([]*ast.ReturnItem, len(cl.Items))
			ordering := make(map[string]string, len(scope)+len(cl.Items))
			for k, v := range scope {
				ordering[k] = v
			}
			for j, item := range cl.Items {
				ri := *item
				ri.Expr = ast.Rewrite(item.Expr, rename)
				rc.Items[j] = &ri
				if item.Alias != nil {
					ordering[item.Alias.Name] = item.Alias.Name
				}
			}
			if cl.OrderBy != nil {
				rc.OrderBy = make([]*ast.SortItem, len(cl.OrderBy))
				for j, s := range cl.OrderBy {
					si := *s
					si.Expr = ast.Rewrite(s.Expr, renameIn(ordering))
					rc.OrderBy[j] = &si
				}
			}
			rc.Skip = ast.Rewrite(cl.Skip, rename)
			rc.Limit = ast.Rewrite(cl.Limit, rename)
			out.Clauses[i] = &rc

		default:
			out.Clauses[i] = c
		}
	}
	return &out
}

// projectItems renames WITH items and returns the scope they open. Items
// are evaluated in the old scope; aliases that do not merely pass a variable
// through are new bindings.
func projectItems(items []*ast.ReturnItem, scope map[string]string, ns *namespacer) ([]*ast.ReturnItem, map[string]string) {
	rename := renameIn(scope)
	next := make(map[string]string, len(items))
	out := make([]*ast.ReturnItem, len(items))
	for i, item := range items {
		ri := *item
		ri.Expr = ast.Rewrite(item.Expr, rename)
		v, isVar := item.Expr.(*ast.Variable)

		switch {
		case item.Alias == nil:
			if isVar {
				next[v.Name] = lookup(scope, v.Name)
			}
		case isVar && v.Name == item.Alias.Name:
			unique := lookup(scope, v.Name)
			next[v.Name] = unique
			ri.Alias = &ast.Variable{Position: item.Alias.Position, Name: unique}
		default:
			unique := ns.bind(item.Alias.Name)
			next[item.Alias.Name] = unique
			ri.Alias = &ast.Variable{Position: item.Alias.Position, Name: unique}
		}
		out[i] = &ri
	}
	return out, next
}

func lookup(scope map[string]string, name string) string {
	if unique, ok := scope[name]; ok {
		return unique
	}
	return name
}

func normalizePredicates(q *ast.Query) *ast.Query {
	out := *q
	out.Clauses = make([]ast.Clause, len(q.Clauses))
	for i, c := range q.Clauses {
		switch cl := c.(type) {
		case *ast.Match:
			mc := *cl
			var inline []ast.Expr
			mc.Patterns = make([]*ast.PatternPart, len(cl.Patterns))
			for j, p := range cl.Patterns {
				var preds []ast.Expr
				mc.Patterns[j], preds = extractProperties(p)
				inline = append(inline, preds...)
			}
			mc.Where = conjoin(cl.Position, append(inline, flattenBool(cl.Where))...)
			out.Clauses[i] = &mc
		case *ast.With:
			wc := *cl
			wc.Where = conjoin(cl.Position, flattenBool(cl.Where))
			out.Clauses[i] = &wc
		default:
			out.Clauses[i] = c
		}
	}
	return &out
}

// extractProperties strips the inline property maps of a pattern and returns
// them as equality predicates, in pattern order.
func extractProperties(p *ast.PatternPart) (*ast.PatternPart, []ast.Expr) {
	var preds []ast.Expr
	equalities := func(variable *ast.Variable, pos ast.Position, props *ast.MapLiteral) {
		if props == nil || variable == nil {
			return
		}
		for _, entry := range props.Entries {
			preds = append(preds, &ast.Comparison{
				Position: pos,
				Op:       ast.OpEQ,
				Left:     &ast.Property{Position: pos, Subject: variable, Key: entry.Key},
				Right:    entry.Value,
			})
		}
	}

	out := *p
	out.Elements = make([]ast.PatternElement, len(p.Elements))
	for i, e := range p.Elements {
		switch el := e.(type) {
		case *ast.NodePattern:
			if el.Properties != nil && el.Variable != nil {
				equalities(el.Variable, el.Position, el.Properties)
				c := *el
				c.Properties = nil
				e = &c
			}
		case *ast.RelationshipPattern:
			if el.Properties != nil && el.Variable != nil {
				equalities(el.Variable, el.Position, el.Properties)
				c := *el
				c.Properties = nil
				e = &c
			}
		}
		out.Elements[i] = e
	}
	return &out, preds
}

// flattenBool turns nested binary AND/OR into flat Ands/Ors throughout e,
// dropping repeated operands.
func flattenBool(e ast.Expr) ast.Expr {
	return ast.Rewrite(e, func(x ast.Expr) ast.Expr {
		switch n := x.(type) {
		case *ast.And:
			return conjoin(n.Position, n.Left, n.Right)
		case *ast.Ands:
			if len(n.Exprs) == 0 {
				return x
			}
			return conjoin(n.Position, n.Exprs...)
		case *ast.Or:
			return disjoin(n.Position, n.Left, n.Right)
		case *ast.Ors:
			if len(n.Exprs) == 0 {
				return x
			}
			return disjoin(n.Position, n.Exprs...)
		}
		return x
	})
}

// conjoin flattens exprs into one conjunction without duplicates.
func conjoin(pos ast.Position, exprs ...ast.Expr) ast.Expr {
	var flat []ast.Expr
	for _, e := range exprs {
		flat = append(flat, ast.Conjuncts(e)...)
	}
	flat = dedupe(flat)
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return &ast.Ands{Position: pos, Exprs: flat}
}

func disjoin(pos ast.Position, exprs ...ast.Expr) ast.Expr {
	var flat []ast.Expr
	for _, e := range exprs {
		flat = append(flat, disjuncts(e)...)
	}
	flat = dedupe(flat)
	if len(flat) == 1 {
		return flat[0]
	}
	return &ast.Ors{Position: pos, Exprs: flat}
}

func disjuncts(e ast.Expr) []ast.Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *ast.Ors:
		var out []ast.Expr
		for _, x := range n.Exprs {
			out = append(out, disjuncts(x)...)
		}
		return out
	case *ast.Or:
		return append(disjuncts(n.Left), disjuncts(n.Right)...)
	}
	return []ast.Expr{e}
}

// dedupe keeps the first of structurally identical expressions.
func dedupe(exprs []ast.Expr) []ast.Expr {
	seen := make(map[string]bool, len(exprs))
	out := exprs[:0:0]
	for _, e := range exprs {
		key := e.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// variableNames returns every variable name the query mentions.
func variableNames(q *ast.Query) map[string]bool {
	names := make(map[string]bool)
	visit := func(e ast.Expr) {
		ast.Walk(e, func(x ast.Expr) bool {
			if v, ok := x.(*ast.Variable); ok {
				names[v.Name] = true
			}
			return true
		})
	}
	for _, e := range queryExpressions(q) {
		visit(e)
	}
	return names
}

// queryExpressions lists the top-level expressions of q, including pattern
// variables, inline property maps and projection aliases.
func queryExpressions(q *ast.Query) []ast.Expr {
	var out []ast.Expr
	add := func(e ast.Expr) {
		if e != nil {
			out = append(out, e)
		}
	}
	addItems := func(items []*ast.ReturnItem) {
		for _, item := range items {
			add(item.Expr)
			if item.Alias != nil {
				add(item.Alias)
			}
		}
	}
	for _, c := range q.Clauses {
		switch cl := c.(type) {
		case *ast.Match:
			for _, p := range cl.Patterns {
				for _, e := range p.Elements {
					switch el := e.(type) {
					case *ast.NodePattern:
						if el.Variable != nil {
							add(el.Variable)
						}
						if el.Properties != nil {
							add(el.Properties)
						}
					case *ast.RelationshipPattern:
						if el.Variable != nil {
							add(el.Variable)
						}
						if el.Properties != nil {
							add(el.Properties)
						}
					}
				}
			}
			add(cl.Where)
		case *ast.With:
			addItems(cl.Items)
			add(cl.Where)
		case *ast.Return:
			addItems(cl.Items)
			for _, s := range cl.OrderBy {
				add(s.Expr)
			}
			add(cl.Skip)
			add(cl.Limit)
		}
	}
	return out
}
