package astio

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wbrown/janus-graph/graph/ast"
)

var compareOps = map[string]ast.CompareOp{
	"eq":  ast.OpEQ,
	"ne":  ast.OpNE,
	"lt":  ast.OpLT,
	"lte": ast.OpLTE,
	"gt":  ast.OpGT,
	"gte": ast.OpGTE,
}

var matchOps = map[string]ast.MatchOp{
	"starts_with": ast.OpStartsWith,
	"ends_with":   ast.OpEndsWith,
	"contains":    ast.OpContains,
}

// decodeSubject reads a bare scalar as a variable and anything else as an
// expression.
func decodeSubject(n *yaml.Node) (ast.Expr, error) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		return variable(n)
	}
	return decodeExpr(n)
}

func decodeExpr(n *yaml.Node) (ast.Expr, error) {
	n = resolve(n)
	switch n.Kind {
	case yaml.ScalarNode:
		return literal(n)
	case yaml.SequenceNode:
		list := &ast.ListLiteral{Position: pos(n)}
		for _, c := range n.Content {
			e, err := decodeExpr(c)
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, e)
		}
		return list, nil
	}

	f, err := single(n, "expression")
	if err != nil {
		return nil, err
	}
	at := pos(f.key)
	op := f.name()

	if cmp, ok := compareOps[op]; ok {
		l, r, err := operands(f.value, op)
		if err != nil {
			return nil, err
		}
		return &ast.Comparison{Position: at, Op: cmp, Left: l, Right: r}, nil
	}
	if m, ok := matchOps[op]; ok {
		l, r, err := operands(f.value, op)
		if err != nil {
			return nil, err
		}
		return &ast.StringMatch{Position: at, Op: m, Left: l, Right: r}, nil
	}

	switch op {
	case "var":
		v, err := variable(f.value)
		if err != nil {
			return nil, err
		}
		v.Position = at
		return v, nil
	case "param":
		name, err := scalar(f.value, "param")
		if err != nil {
			return nil, err
		}
		return &ast.Parameter{Position: at, Name: strings.TrimPrefix(name, "$")}, nil
	case "str":
		s, err := scalar(f.value, "str")
		if err != nil {
			return nil, err
		}
		return &ast.StringLiteral{Position: at, Value: s}, nil
	case "prop":
		return decodeProperty(f.key, f.value)
	case "in":
		l, r, err := operands(f.value, op)
		if err != nil {
			return nil, err
		}
		return &ast.In{Position: at, Left: l, Right: r}, nil
	case "is_null":
		e, err := decodeSubject(f.value)
		if err != nil {
			return nil, err
		}
		return &ast.IsNull{Position: at, Expr: e}, nil
	case "exists", "is_not_null":
		e, err := decodeSubject(f.value)
		if err != nil {
			return nil, err
		}
		return &ast.IsNotNull{Position: at, Expr: e}, nil
	case "has_labels", "has_types":
		subject, tokens, err := tokenPredicate(f.value, op)
		if err != nil {
			return nil, err
		}
		if op == "has_labels" {
			return &ast.HasLabels{Position: at, Subject: subject, Labels: tokens}, nil
		}
		return &ast.HasTypes{Position: at, Subject: subject, Types: tokens}, nil
	case "not":
		e, err := decodeExpr(f.value)
		if err != nil {
			return nil, err
		}
		return &ast.Not{Position: at, Expr: e}, nil
	case "and", "or":
		return decodeConnective(f.key, f.value, op == "and")
	case "call":
		return decodeCall(f.key, f.value)
	case "map":
		m, err := decodeMap(f.value)
		if err != nil {
			return nil, err
		}
		m.Position = at
		return m, nil
	}
	return nil, errorf(f.key, "unknown expression %q", op)
}

func literal(n *yaml.Node) (ast.Expr, error) {
	at := pos(n)
	switch n.Tag {
	case "!!null":
		return &ast.NullLiteral{Position: at}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, errorf(n, "invalid boolean %q", n.Value)
		}
		return &ast.BoolLiteral{Position: at, Value: b}, nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, errorf(n, "invalid integer %q", n.Value)
		}
		return &ast.IntegerLiteral{Position: at, Value: i}, nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, errorf(n, "invalid float %q", n.Value)
		}
		return &ast.FloatLiteral{Position: at, Value: f}, nil
	}
	return &ast.StringLiteral{Position: at, Value: n.Value}, nil
}

func operands(n *yaml.Node, op string) (ast.Expr, ast.Expr, error) {
	seq, err := items(n, op)
	if err != nil {
		return nil, nil, err
	}
	if len(seq) != 2 {
		return nil, nil, errorf(n, "%s takes 2 operands, got %d", op, len(seq))
	}
	l, err := decodeExpr(seq[0])
	if err != nil {
		return nil, nil, err
	}
	r, err := decodeExpr(seq[1])
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

// decodeProperty accepts `prop: n.key` and `prop: {of: expr, key: k}`.
func decodeProperty(key, body *yaml.Node) (ast.Expr, error) {
	at := pos(key)
	if body.Kind == yaml.ScalarNode {
		subject, prop, ok := strings.Cut(body.Value, ".")
		if !ok || subject == "" || prop == "" {
			return nil, errorf(body, "property must be written as variable.key, got %q", body.Value)
		}
		return &ast.Property{
			Position: at,
			Subject:  &ast.Variable{Position: pos(body), Name: subject},
			Key:      prop,
		}, nil
	}
	fs, err := fields(body, "prop")
	if err != nil {
		return nil, err
	}
	p := &ast.Property{Position: at}
	for _, f := range fs {
		switch f.name() {
		case "of":
			if p.Subject, err = decodeSubject(f.value); err != nil {
				return nil, err
			}
		case "key":
			if p.Key, err = scalar(f.value, "key"); err != nil {
				return nil, err
			}
		default:
			return nil, errorf(f.key, "unknown prop field %q", f.name())
		}
	}
	if p.Subject == nil || p.Key == "" {
		return nil, errorf(body, "prop needs both of and key")
	}
	return p, nil
}

// tokenPredicate reads [subject, token, ...].
func tokenPredicate(n *yaml.Node, op string) (ast.Expr, []string, error) {
	seq, err := items(n, op)
	if err != nil {
		return nil, nil, err
	}
	if len(seq) < 2 {
		return nil, nil, errorf(n, "%s needs a subject and at least one token", op)
	}
	subject, err := decodeSubject(seq[0])
	if err != nil {
		return nil, nil, err
	}
	tokens := make([]string, 0, len(seq)-1)
	for _, c := range seq[1:] {
		t, err := scalar(c, op)
		if err != nil {
			return nil, nil, err
		}
		tokens = append(tokens, t)
	}
	return subject, tokens, nil
}

// decodeConnective folds operands left to right into binary nodes, the
// shape a parser produces.
func decodeConnective(key, body *yaml.Node, and bool) (ast.Expr, error) {
	seq, err := items(body, key.Value)
	if err != nil {
		return nil, err
	}
	if len(seq) == 0 {
		return nil, errorf(body, "%s needs at least one operand", key.Value)
	}
	var out ast.Expr
	for _, c := range seq {
		e, err := decodeExpr(c)
		if err != nil {
			return nil, err
		}
		switch {
		case out == nil:
			out = e
		case and:
			out = &ast.And{Position: pos(key), Left: out, Right: e}
		default:
			out = &ast.Or{Position: pos(key), Left: out, Right: e}
		}
	}
	return out, nil
}

func decodeCall(key, body *yaml.Node) (ast.Expr, error) {
	call := &ast.FunctionCall{Position: pos(key)}
	fs, err := fields(body, "call")
	if err != nil {
		return nil, err
	}
	for _, f := range fs {
		switch f.name() {
		case "name":
			if call.Name, err = scalar(f.value, "name"); err != nil {
				return nil, err
			}
		case "distinct":
			if call.Distinct, err = flag(f.value, "distinct"); err != nil {
				return nil, err
			}
		case "args":
			seq, err := items(f.value, "args")
			if err != nil {
				return nil, err
			}
			for _, a := range seq {
				e, err := decodeSubject(a)
				if err != nil {
					return nil, err
				}
				call.Args = append(call.Args, e)
			}
		default:
			return nil, errorf(f.key, "unknown call field %q", f.name())
		}
	}
	if call.Name == "" {
		return nil, errorf(key, "call has no name")
	}
	return call, nil
}
