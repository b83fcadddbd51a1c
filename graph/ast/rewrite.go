package ast

import "sort"

// Rewriter transforms one expression. It is applied bottom-up: children have
// already been rewritten when the parent is passed in.
type Rewriter func(Expr) Expr

// Rewrite applies fn bottom-up over e. Subtrees that fn leaves untouched are
// shared with the input; changed nodes are copied, never modified in place.
func Rewrite(e Expr, fn Rewriter) Expr {
	if e == nil {
		return nil
	}
	return fn(rewriteChildren(e, fn))
}

func rewriteChildren(e Expr, fn Rewriter) Expr {
	switch n := e.(type) {
	case *ListLiteral:
		if items, changed := rewriteAll(n.Items, fn); changed {
			c := *n
			c.Items = items
			return &c
		}
	case *MapLiteral:
		return rewriteMap(n, fn)
	case *Property:
		if s := Rewrite(n.Subject, fn); s != n.Subject {
			c := *n
			c.Subject = s
			return &c
		}
	case *Comparison:
		l, r := Rewrite(n.Left, fn), Rewrite(n.Right, fn)
		if l != n.Left || r != n.Right {
			c := *n
			c.Left, c.Right = l, r
			return &c
		}
	case *StringMatch:
		l, r := Rewrite(n.Left, fn), Rewrite(n.Right, fn)
		if l != n.Left || r != n.Right {
			c := *n
			c.Left, c.Right = l, r
			return &c
		}
	case *In:
		l, r := Rewrite(n.Left, fn), Rewrite(n.Right, fn)
		if l != n.Left || r != n.Right {
			c := *n
			c.Left, c.Right = l, r
			return &c
		}
	case *IsNull:
		if x := Rewrite(n.Expr, fn); x != n.Expr {
			c := *n
			c.Expr = x
			return &c
		}
	case *IsNotNull:
		if x := Rewrite(n.Expr, fn); x != n.Expr {
			c := *n
			c.Expr = x
			return &c
		}
	case *HasLabels:
		if s := Rewrite(n.Subject, fn); s != n.Subject {
			c := *n
			c.Subject = s
			return &c
		}
	case *HasTypes:
		if s := Rewrite(n.Subject, fn); s != n.Subject {
			c := *n
			c.Subject = s
			return &c
		}
	case *Not:
		if x := Rewrite(n.Expr, fn); x != n.Expr {
			c := *n
			c.Expr = x
			return &c
		}
	case *And:
		l, r := Rewrite(n.Left, fn), Rewrite(n.Right, fn)
		if l != n.Left || r != n.Right {
			c := *n
			c.Left, c.Right = l, r
			return &c
		}
	case *Or:
		l, r := Rewrite(n.Left, fn), Rewrite(n.Right, fn)
		if l != n.Left || r != n.Right {
			c := *n
			c.Left, c.Right = l, r
			return &c
		}
	case *Ands:
		if exprs, changed := rewriteAll(n.Exprs, fn); changed {
			c := *n
			c.Exprs = exprs
			return &c
		}
	case *Ors:
		if exprs, changed := rewriteAll(n.Exprs, fn); changed {
			c := *n
			c.Exprs = exprs
			return &c
		}
	case *FunctionCall:
		if args, changed := rewriteAll(n.Args, fn); changed {
			c := *n
			c.Args = args
			return &c
		}
	}
	return e
}

func rewriteAll(exprs []Expr, fn Rewriter) ([]Expr, bool) {
	out := make([]Expr, len(exprs))
	changed := false
	for i, e := range exprs {
		out[i] = Rewrite(e, fn)
		if out[i] != e {
			changed = true
		}
	}
	return out, changed
}

func rewriteMap(m *MapLiteral, fn Rewriter) Expr {
	if m == nil {
		return nil
	}
	entries := make([]MapEntry, len(m.Entries))
	changed := false
	for i, e := range m.Entries {
		entries[i] = MapEntry{Key: e.Key, Value: Rewrite(e.Value, fn)}
		if entries[i].Value != e.Value {
			changed = true
		}
	}
	if !changed {
		return m
	}
	c := *m
	c.Entries = entries
	return &c
}

// RewriteQuery applies fn to every expression in the query, including the
// variables bound by pattern elements and projection aliases. fn must map a
// *Variable to a *Variable.
func RewriteQuery(q *Query, fn Rewriter) *Query {
	if q.Clauses == nil {
		return q
	}
	clauses := make([]Clause, len(q.Clauses))
	for i, c := range q.Clauses {
		clauses[i] = RewriteClause(c, fn)
	}
	out := *q
	out.Clauses = clauses
	return &out
}

// RewriteClause applies fn to every expression in one clause.
func RewriteClause(c Clause, fn Rewriter) Clause {
	switch cl := c.(type) {
	case *Match:
		out := *cl
		if cl.Patterns != nil {
			out.Patterns = make([]*PatternPart, len(cl.Patterns))
			for i, p := range cl.Patterns {
				out.Patterns[i] = RewritePattern(p, fn)
			}
		}
		out.Where = Rewrite(cl.Where, fn)
		return &out
	case *With:
		out := *cl
		out.Items = rewriteItems(cl.Items, fn)
		out.Where = Rewrite(cl.Where, fn)
		return &out
	case *Return:
		out := *cl
		out.Items = rewriteItems(cl.Items, fn)
		if cl.OrderBy != nil {
			out.OrderBy = make([]*SortItem, len(cl.OrderBy))
			for i, s := range cl.OrderBy {
				si := *s
				si.Expr = Rewrite(s.Expr, fn)
				out.OrderBy[i] = &si
			}
		}
		out.Skip = Rewrite(cl.Skip, fn)
		out.Limit = Rewrite(cl.Limit, fn)
		return &out
	}
	return c
}

func rewriteItems(items []*ReturnItem, fn Rewriter) []*ReturnItem {
	if items == nil {
		return nil
	}
	out := make([]*ReturnItem, len(items))
	for i, item := range items {
		ri := *item
		ri.Expr = Rewrite(item.Expr, fn)
		ri.Alias = rewriteVariable(item.Alias, fn)
		out[i] = &ri
	}
	return out
}

// RewritePattern applies fn to the variables and property maps of a pattern.
func RewritePattern(p *PatternPart, fn Rewriter) *PatternPart {
	out := *p
	if p.Elements == nil {
		return &out
	}
	out.Elements = make([]PatternElement, len(p.Elements))
	for i, e := range p.Elements {
		switch el := e.(type) {
		case *NodePattern:
			n := *el
			n.Variable = rewriteVariable(el.Variable, fn)
			if el.Properties != nil {
				n.Properties, _ = rewriteMap(el.Properties, fn).(*MapLiteral)
			}
			out.Elements[i] = &n
		case *RelationshipPattern:
			r := *el
			r.Variable = rewriteVariable(el.Variable, fn)
			if el.Properties != nil {
				r.Properties, _ = rewriteMap(el.Properties, fn).(*MapLiteral)
			}
			out.Elements[i] = &r
		}
	}
	return &out
}

func rewriteVariable(v *Variable, fn Rewriter) *Variable {
	if v == nil {
		return nil
	}
	if nv, ok := Rewrite(v, fn).(*Variable); ok {
		return nv
	}
	return v
}

// Walk visits e and its descendants in pre-order. Returning false from visit
// skips the children of the current node.
func Walk(e Expr, visit func(Expr) bool) {
	if e == nil || !visit(e) {
		return
	}
	for _, child := range Children(e) {
		Walk(child, visit)
	}
}

// Children returns the direct sub-expressions of e.
func Children(e Expr) []Expr {
	switch n := e.(type) {
	case *ListLiteral:
		return n.Items
	case *MapLiteral:
		out := make([]Expr, len(n.Entries))
		for i, en := range n.Entries {
			out[i] = en.Value
		}
		return out
	case *Property:
		return []Expr{n.Subject}
	case *Comparison:
		return []Expr{n.Left, n.Right}
	case *StringMatch:
		return []Expr{n.Left, n.Right}
	case *In:
		return []Expr{n.Left, n.Right}
	case *IsNull:
		return []Expr{n.Expr}
	case *IsNotNull:
		return []Expr{n.Expr}
	case *HasLabels:
		return []Expr{n.Subject}
	case *HasTypes:
		return []Expr{n.Subject}
	case *Not:
		return []Expr{n.Expr}
	case *And:
		return []Expr{n.Left, n.Right}
	case *Or:
		return []Expr{n.Left, n.Right}
	case *Ands:
		return n.Exprs
	case *Ors:
		return n.Exprs
	case *FunctionCall:
		return n.Args
	}
	return nil
}

// Dependencies returns the sorted, de-duplicated variable names e refers to.
func Dependencies(e Expr) []string {
	seen := make(map[string]bool)
	Walk(e, func(x Expr) bool {
		if v, ok := x.(*Variable); ok {
			seen[v.Name] = true
		}
		return true
	})
	deps := make([]string, 0, len(seen))
	for name := range seen {
		deps = append(deps, name)
	}
	sort.Strings(deps)
	return deps
}

// Conjuncts splits a predicate into its top-level conjuncts. nil yields none.
func Conjuncts(e Expr) []Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *Ands:
		var out []Expr
		for _, x := range n.Exprs {
			out = append(out, Conjuncts(x)...)
		}
		return out
	case *And:
		return append(Conjuncts(n.Left), Conjuncts(n.Right)...)
	}
	return []Expr{e}
}

// Conjoin joins predicates into a single flattened conjunction. It returns nil
// for no predicates and the predicate itself for exactly one.
func Conjoin(pos Position, exprs ...Expr) Expr {
	var flat []Expr
	for _, e := range exprs {
		flat = append(flat, Conjuncts(e)...)
	}
	switch len(flat) {
	case 0:
		return nil
	case 1:
		return flat[0]
	}
	return &Ands{Position: pos, Exprs: flat}
}
