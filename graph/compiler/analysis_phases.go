package compiler

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/wbrown/janus-graph/graph/ast"
	"github.com/wbrown/janus-graph/graph/semantics"
)

// Phase names of the analysis phases.
const (
	PhaseSemanticAnalysis = "semantic-analysis"
	PhaseInferLabels      = "infer-labels"
)

// SemanticAnalysis types every variable and checks the query for
// contradictions: a variable bound both as a node and as a relationship,
// undefined variables, string predicates over graph entities and property
// access on scalar values.
var SemanticAnalysis Phase = &FuncPhase{
	PhaseName:   PhaseSemanticAnalysis,
	Requirement: []Condition{VariablesUniquelyNamed, PredicatesNormalized},
	Guarantee:   []Condition{TypesResolved},
	Fn: func(_ Context, s State) (State, error) {
		table := s.Semantics
		if table == nil {
			table = semantics.NewTable()
		}
		a := &analyzer{table: table, scope: make(map[string]bool)}
		if err := a.query(s.Query); err != nil {
			return s, err
		}
		s.Semantics = a.table
		return s, nil
	},
}

// InferLabels collects the labels and relationship types known for each
// pattern variable from the patterns themselves and from label predicates in
// WHERE conjunctions.
var InferLabels Phase = &FuncPhase{
	PhaseName:   PhaseInferLabels,
	Requirement: []Condition{TypesResolved},
	Guarantee:   []Condition{LabelsInferred},
	Fn: func(_ Context, s State) (State, error) {
		s.Labels, s.RelTypes = inferTokens(s.Query, s.Labels, s.RelTypes)
		return s, nil
	},
}

// functionTypes is the result type of functions whose type is known
// statically.
var functionTypes = map[string]semantics.Type{
	"count":      semantics.Integer,
	"size":       semantics.Integer,
	"length":     semantics.Integer,
	"id":         semantics.Integer,
	"tointeger":  semantics.Integer,
	"tofloat":    semantics.Float,
	"avg":        semantics.Float,
	"tostring":   semantics.String,
	"tolower":    semantics.String,
	"toupper":    semantics.String,
	"trim":       semantics.String,
	"type":       semantics.String,
	"exists":     semantics.Boolean,
	"collect":    semantics.List,
	"labels":     semantics.List,
	"keys":       semantics.List,
	"nodes":      semantics.List,
	"startnode":  semantics.Node,
	"endnode":    semantics.Node,
	"properties": semantics.Map,
}

type analyzer struct {
	table *semantics.Table
	scope map[string]bool
}

func (a *analyzer) query(q *ast.Query) error {
	for _, c := range q.Clauses {
		var err error
		switch cl := c.(type) {
		case *ast.Match:
			err = a.match(cl)
		case *ast.With:
			err = a.with(cl)
		case *ast.Return:
			err = a.ret(cl)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *analyzer) match(m *ast.Match) error {
	for _, p := range m.Patterns {
		for _, e := range p.Elements {
			var (
				v   *ast.Variable
				typ semantics.Type
			)
			switch el := e.(type) {
			case *ast.NodePattern:
				v, typ = el.Variable, semantics.Node
			case *ast.RelationshipPattern:
				v, typ = el.Variable, semantics.Relationship
			}
			if v == nil {
				continue
			}
			if err := a.declare(v, typ); err != nil {
				return err
			}
		}
	}
	// Inline properties may refer to any element of the clause.
	for _, p := range m.Patterns {
		for _, e := range p.Elements {
			if props := inlineProperties(e); props != nil {
				if err := a.check(props); err != nil {
					return err
				}
			}
		}
	}
	return a.predicate(m.Where)
}

func (a *analyzer) with(w *ast.With) error {
	next := make(map[string]bool, len(w.Items))
	pending := make([]func() error, 0, len(w.Items))
	for _, item := range w.Items {
		if err := a.check(item.Expr); err != nil {
			return err
		}
		item := item
		switch {
		case item.Alias != nil:
			next[item.Alias.Name] = true
			typ := a.table.TypeOf(item.Expr)
			pending = append(pending, func() error { return a.declare(item.Alias, typ) })
		default:
			if v, ok := item.Expr.(*ast.Variable); ok {
				next[v.Name] = true
			}
		}
	}
	for _, declare := range pending {
		if err := declare(); err != nil {
			return err
		}
	}
	a.scope = next
	return a.predicate(w.Where)
}

func (a *analyzer) ret(r *ast.Return) error {
	aliases := make(map[string]bool)
	for _, item := range r.Items {
		if err := a.check(item.Expr); err != nil {
			return err
		}
		if item.Alias != nil {
			aliases[item.Alias.Name] = true
		}
	}

	outer := a.scope
	a.scope = make(map[string]bool, len(outer)+len(aliases))
	for k := range outer {
		a.scope[k] = true
	}
	for k := range aliases {
		a.scope[k] = true
	}
	for _, s := range r.OrderBy {
		if err := a.check(s.Expr); err != nil {
			return err
		}
	}
	a.scope = outer

	for _, e := range []ast.Expr{r.Skip, r.Limit} {
		if e == nil {
			continue
		}
		if err := a.check(e); err != nil {
			return err
		}
		if !ast.IsLiteral(e) {
			if _, isParam := e.(*ast.Parameter); !isParam {
				return semanticErrorf(e.Pos(), "SKIP and LIMIT take a constant or a parameter, got %s", e)
			}
		}
	}
	return nil
}

// declare binds v with the given type in the current scope.
func (a *analyzer) declare(v *ast.Variable, typ semantics.Type) error {
	table, err := a.table.WithVariable(v.Name, typ, v.Position)
	if err != nil {
		var conflict *semantics.ConflictError
		if errors.As(err, &conflict) {
			return semanticErrorf(v.Position, "type mismatch: variable `%s` is already declared as %s, cannot redeclare it as %s",
				displayName(v.Name), conflict.Existing, conflict.Proposed)
		}
		return err
	}
	a.table = table
	a.scope[v.Name] = true
	return nil
}

func (a *analyzer) predicate(e ast.Expr) error {
	if e == nil {
		return nil
	}
	if err := a.check(e); err != nil {
		return err
	}
	switch typ := a.table.TypeOf(e); typ {
	case semantics.Any, semantics.Boolean, semantics.Null:
		return nil
	default:
		return semanticErrorf(e.Pos(), "type mismatch: WHERE expects a Boolean, got %s", typ)
	}
}

// check validates e and records the types it can infer.
func (a *analyzer) check(e ast.Expr) error {
	var err error
	ast.Walk(e, func(x ast.Expr) bool {
		if err != nil {
			return false
		}
		err = a.checkNode(x)
		return err == nil
	})
	return err
}

func (a *analyzer) checkNode(e ast.Expr) error {
	switch n := e.(type) {
	case *ast.Variable:
		if !a.scope[n.Name] {
			return semanticErrorf(n.Position, "variable `%s` not defined", displayName(n.Name))
		}

	case *ast.Property:
		if ast.IsLiteral(n.Subject) {
			if _, isNull := n.Subject.(*ast.NullLiteral); !isNull {
				return semanticErrorf(n.Position, "type mismatch: cannot access property %q of literal %s", n.Key, n.Subject)
			}
			return nil
		}
		switch typ := a.table.TypeOf(n.Subject); typ {
		case semantics.Integer, semantics.Float, semantics.String, semantics.Boolean, semantics.List:
			return semanticErrorf(n.Position, "type mismatch: cannot access property %q of %s value %s", n.Key, typ, n.Subject)
		}

	case *ast.StringMatch:
		for _, side := range []ast.Expr{n.Left, n.Right} {
			if err := a.stringOperand(n, side); err != nil {
				return err
			}
		}

	case *ast.HasLabels:
		if a.table.TypeOf(n.Subject) == semantics.Relationship {
			return semanticErrorf(n.Position, "type mismatch: label predicate on relationship %s", n.Subject)
		}

	case *ast.HasTypes:
		if a.table.TypeOf(n.Subject) == semantics.Node {
			return semanticErrorf(n.Position, "type mismatch: relationship type predicate on node %s", n.Subject)
		}

	case *ast.FunctionCall:
		if typ, ok := functionTypes[strings.ToLower(n.Name)]; ok {
			table, err := a.table.WithExpression(n, typ)
			if err != nil {
				return semanticErrorf(n.Position, "%v", err)
			}
			a.table = table
		}
	}
	return nil
}

func (a *analyzer) stringOperand(m *ast.StringMatch, side ast.Expr) error {
	typ := a.table.TypeOf(side)
	if typ.IsEntity() {
		return semanticErrorf(m.Position, "type mismatch: %s applied to %s value %s", m.Op, typ, side)
	}
	if typ != semantics.Any && !semantics.Compatible(typ, semantics.String) {
		return semanticErrorf(m.Position, "type mismatch: %s expects String operands, got %s", m.Op, typ)
	}
	return nil
}

func inlineProperties(e ast.PatternElement) ast.Expr {
	switch el := e.(type) {
	case *ast.NodePattern:
		if el.Properties != nil {
			return el.Properties
		}
	case *ast.RelationshipPattern:
		if el.Properties != nil {
			return el.Properties
		}
	}
	return nil
}

// displayName strips the padding of synthetic names for messages.
func displayName(name string) string {
	return strings.TrimSpace(name)
}

// inferTokens derives the label and relationship type sets of pattern
// variables. A relationship's types are a disjunction, so a later type
// predicate narrows them to the intersection, possibly to none. OPTIONAL
// MATCH clauses contribute nothing.
func inferTokens(q *ast.Query, labels semantics.LabelInfo, relTypes semantics.RelTypeInfo) (semantics.LabelInfo, semantics.RelTypeInfo) {
	addTypes := func(variable string, types []string) {
		if !relTypes.Known(variable) {
			relTypes = relTypes.With(variable, types...)
			return
		}
		var both []string
		for _, t := range types {
			if contains(relTypes.Tokens(variable), t) {
				both = append(both, t)
			}
		}
		relTypes = relTypes.Replace(variable, both...)
	}
	fromPredicate := func(where ast.Expr) {
		for _, p := range ast.Conjuncts(where) {
			switch n := p.(type) {
			case *ast.HasLabels:
				if v, ok := n.Subject.(*ast.Variable); ok {
					labels = labels.With(v.Name, n.Labels...)
				}
			case *ast.HasTypes:
				if v, ok := n.Subject.(*ast.Variable); ok {
					addTypes(v.Name, n.Types)
				}
			}
		}
	}

	for _, c := range q.Clauses {
		switch cl := c.(type) {
		case *ast.Match:
			// Optional patterns never narrow the required rows.
			if cl.Optional {
				continue
			}
			for _, p := range cl.Patterns {
				for _, e := range p.Elements {
					name := ast.VariableName(e)
					if name == "" {
						continue
					}
					switch el := e.(type) {
					case *ast.NodePattern:
						if len(el.Labels) > 0 {
							labels = labels.With(name, el.Labels...)
						}
					case *ast.RelationshipPattern:
						if len(el.Types) > 0 {
							addTypes(name, el.Types)
						}
					}
				}
			}
			fromPredicate(cl.Where)
		case *ast.With:
			// A passed-through entity keeps what is known about it.
			for _, item := range cl.Items {
				v, ok := item.Expr.(*ast.Variable)
				if !ok || item.Alias == nil || item.Alias.Name == v.Name {
					continue
				}
				if labels.Has(v.Name) {
					labels = labels.With(item.Alias.Name, labels.Tokens(v.Name)...)
				}
				if relTypes.Has(v.Name) {
					relTypes = relTypes.With(item.Alias.Name, relTypes.Tokens(v.Name)...)
				}
			}
			fromPredicate(cl.Where)
		}
	}
	return labels, relTypes
}
