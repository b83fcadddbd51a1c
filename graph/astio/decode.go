// Package astio decodes query ASTs from YAML documents.
//
// A document names a query and lists its clauses:
//
//	name: friends-of-alice
//	clauses:
//	  - match:
//	      patterns:
//	        - - node: {var: a, labels: [Person], props: {name: Alice}}
//	          - rel: {var: r, types: [KNOWS], dir: out}
//	          - node: {var: b}
//	      where: {gt: [{prop: b.age}, 30]}
//	  - return:
//	      items: [b, {expr: {prop: b.name}, as: name}]
//	      order_by: [{expr: name, desc: true}]
//	      limit: 10
//
// Scalars decode to literals of their YAML type. Other expressions are
// single-key mappings ({var: n}, {param: p}, {eq: [l, r]}, {and: [...]}, ...);
// a YAML sequence is a list literal. Where a variable is the only sensible
// reading (projection items, sort keys, label predicate subjects) a bare
// scalar names a variable. Every node carries the line and column of the
// YAML that produced it.
package astio

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/wbrown/janus-graph/graph/ast"
)

// Document is one decoded query.
type Document struct {
	Name  string
	Query *ast.Query
}

// DecodeError reports malformed input at a source location.
type DecodeError struct {
	Pos ast.Position
	Msg string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Msg, e.Pos.Location())
}

// Decode decodes the first document in data.
func Decode(data []byte) (*ast.Query, error) {
	docs, err := DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errors.New("astio: no document")
	}
	return docs[0].Query, nil
}

// DecodeAll decodes every document of a YAML stream. Documents without a
// name are named after their index, starting at 1.
func DecodeAll(r io.Reader) ([]Document, error) {
	dec := yaml.NewDecoder(r)
	var docs []Document
	for {
		var root yaml.Node
		if err := dec.Decode(&root); err != nil {
			if errors.Is(err, io.EOF) {
				return docs, nil
			}
			return nil, errors.Wrap(err, "astio: parse")
		}
		if root.Kind == yaml.DocumentNode && len(root.Content) == 0 {
			continue
		}
		doc, err := decodeDocument(&root)
		if err != nil {
			return nil, errors.Wrapf(err, "astio: document %d", len(docs)+1)
		}
		if doc.Name == "" {
			doc.Name = fmt.Sprintf("%d", len(docs)+1)
		}
		docs = append(docs, doc)
	}
}

func pos(n *yaml.Node) ast.Position {
	return ast.Position{Line: n.Line, Column: n.Column}
}

func errorf(n *yaml.Node, format string, args ...interface{}) error {
	return &DecodeError{Pos: pos(n), Msg: fmt.Sprintf(format, args...)}
}

func resolve(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		return resolve(n.Content[0])
	}
	return n
}

type field struct {
	key   *yaml.Node
	value *yaml.Node
}

func (f field) name() string { return f.key.Value }

// fields returns the entries of a mapping in source order.
func fields(n *yaml.Node, what string) ([]field, error) {
	n = resolve(n)
	if n.Kind != yaml.MappingNode {
		return nil, errorf(n, "%s must be a mapping", what)
	}
	out := make([]field, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		out = append(out, field{key: n.Content[i], value: resolve(n.Content[i+1])})
	}
	return out, nil
}

// single returns the only entry of a one-key mapping.
func single(n *yaml.Node, what string) (field, error) {
	fs, err := fields(n, what)
	if err != nil {
		return field{}, err
	}
	if len(fs) != 1 {
		return field{}, errorf(n, "%s must have exactly one key, got %d", what, len(fs))
	}
	return fs[0], nil
}

func items(n *yaml.Node, what string) ([]*yaml.Node, error) {
	n = resolve(n)
	if n.Kind != yaml.SequenceNode {
		return nil, errorf(n, "%s must be a sequence", what)
	}
	out := make([]*yaml.Node, len(n.Content))
	for i, c := range n.Content {
		out[i] = resolve(c)
	}
	return out, nil
}

func scalar(n *yaml.Node, what string) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", errorf(n, "%s must be a scalar", what)
	}
	return n.Value, nil
}

// names accepts a scalar or a sequence of scalars.
func names(n *yaml.Node, what string) ([]string, error) {
	if n.Kind == yaml.ScalarNode {
		return []string{n.Value}, nil
	}
	seq, err := items(n, what)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(seq))
	for i, c := range seq {
		if out[i], err = scalar(c, what); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func flag(n *yaml.Node, what string) (bool, error) {
	var b bool
	if err := n.Decode(&b); err != nil {
		return false, errorf(n, "%s must be a boolean", what)
	}
	return b, nil
}

func integer(n *yaml.Node, what string) (int, error) {
	var v int
	if err := n.Decode(&v); err != nil {
		return 0, errorf(n, "%s must be an integer", what)
	}
	return v, nil
}

func variable(n *yaml.Node) (*ast.Variable, error) {
	name, err := scalar(n, "variable")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, errorf(n, "variable name must not be empty")
	}
	return &ast.Variable{Position: pos(n), Name: name}, nil
}

func decodeDocument(root *yaml.Node) (Document, error) {
	var doc Document
	fs, err := fields(root, "document")
	if err != nil {
		return doc, err
	}
	q := &ast.Query{Position: pos(resolve(root))}
	seen := false
	for _, f := range fs {
		switch f.name() {
		case "name":
			if doc.Name, err = scalar(f.value, "name"); err != nil {
				return doc, err
			}
		case "clauses":
			seen = true
			seq, err := items(f.value, "clauses")
			if err != nil {
				return doc, err
			}
			for _, c := range seq {
				clause, err := decodeClause(c)
				if err != nil {
					return doc, err
				}
				q.Clauses = append(q.Clauses, clause)
			}
		default:
			return doc, errorf(f.key, "unknown document field %q", f.name())
		}
	}
	if !seen || len(q.Clauses) == 0 {
		return doc, errorf(resolve(root), "document has no clauses")
	}
	doc.Query = q
	return doc, nil
}

func decodeClause(n *yaml.Node) (ast.Clause, error) {
	f, err := single(n, "clause")
	if err != nil {
		return nil, err
	}
	switch f.name() {
	case "match":
		return decodeMatch(f.key, f.value, false)
	case "optional_match":
		return decodeMatch(f.key, f.value, true)
	case "with":
		return decodeWith(f.key, f.value)
	case "return":
		return decodeReturn(f.key, f.value)
	}
	return nil, errorf(f.key, "unknown clause %q", f.name())
}

func decodeMatch(key, body *yaml.Node, optional bool) (*ast.Match, error) {
	m := &ast.Match{Position: pos(key), Optional: optional}
	fs, err := fields(body, "match")
	if err != nil {
		return nil, err
	}
	for _, f := range fs {
		switch f.name() {
		case "optional":
			if m.Optional, err = flag(f.value, "optional"); err != nil {
				return nil, err
			}
		case "patterns":
			seq, err := items(f.value, "patterns")
			if err != nil {
				return nil, err
			}
			for _, p := range seq {
				part, err := decodePath(p)
				if err != nil {
					return nil, err
				}
				m.Patterns = append(m.Patterns, part)
			}
		case "where":
			if m.Where, err = decodeExpr(f.value); err != nil {
				return nil, err
			}
		default:
			return nil, errorf(f.key, "unknown match field %q", f.name())
		}
	}
	if len(m.Patterns) == 0 {
		return nil, errorf(key, "match has no patterns")
	}
	return m, nil
}

func decodePath(n *yaml.Node) (*ast.PatternPart, error) {
	seq, err := items(n, "pattern")
	if err != nil {
		return nil, err
	}
	part := &ast.PatternPart{Position: pos(n)}
	for i, e := range seq {
		f, err := single(e, "pattern element")
		if err != nil {
			return nil, err
		}
		wantNode := i%2 == 0
		switch {
		case f.name() == "node" && wantNode:
			node, err := decodeNode(f.key, f.value)
			if err != nil {
				return nil, err
			}
			part.Elements = append(part.Elements, node)
		case f.name() == "rel" && !wantNode:
			rel, err := decodeRel(f.key, f.value)
			if err != nil {
				return nil, err
			}
			part.Elements = append(part.Elements, rel)
		case f.name() == "node" || f.name() == "rel":
			return nil, errorf(f.key, "pattern must alternate nodes and relationships")
		default:
			return nil, errorf(f.key, "unknown pattern element %q", f.name())
		}
	}
	if len(part.Elements)%2 == 0 {
		return nil, errorf(n, "pattern must start and end with a node")
	}
	return part, nil
}

// decodeNode accepts `node: n`, `node: {}` and the full mapping form.
func decodeNode(key, body *yaml.Node) (*ast.NodePattern, error) {
	node := &ast.NodePattern{Position: pos(key)}
	if body.Kind == yaml.ScalarNode {
		if body.Tag == "!!null" || body.Value == "" {
			return node, nil
		}
		v, err := variable(body)
		if err != nil {
			return nil, err
		}
		node.Variable = v
		return node, nil
	}
	fs, err := fields(body, "node")
	if err != nil {
		return nil, err
	}
	for _, f := range fs {
		switch f.name() {
		case "var":
			if node.Variable, err = variable(f.value); err != nil {
				return nil, err
			}
		case "labels":
			if node.Labels, err = names(f.value, "labels"); err != nil {
				return nil, err
			}
		case "props":
			if node.Properties, err = decodeMap(f.value); err != nil {
				return nil, err
			}
		default:
			return nil, errorf(f.key, "unknown node field %q", f.name())
		}
	}
	return node, nil
}

func decodeRel(key, body *yaml.Node) (*ast.RelationshipPattern, error) {
	rel := &ast.RelationshipPattern{Position: pos(key)}
	if body.Kind == yaml.ScalarNode {
		if body.Tag == "!!null" || body.Value == "" {
			return rel, nil
		}
		v, err := variable(body)
		if err != nil {
			return nil, err
		}
		rel.Variable = v
		return rel, nil
	}
	fs, err := fields(body, "rel")
	if err != nil {
		return nil, err
	}
	for _, f := range fs {
		switch f.name() {
		case "var":
			if rel.Variable, err = variable(f.value); err != nil {
				return nil, err
			}
		case "types":
			if rel.Types, err = names(f.value, "types"); err != nil {
				return nil, err
			}
		case "dir":
			if rel.Direction, err = direction(f.value); err != nil {
				return nil, err
			}
		case "props":
			if rel.Properties, err = decodeMap(f.value); err != nil {
				return nil, err
			}
		case "length":
			if rel.Length, err = decodeLength(f.value); err != nil {
				return nil, err
			}
		default:
			return nil, errorf(f.key, "unknown rel field %q", f.name())
		}
	}
	return rel, nil
}

func direction(n *yaml.Node) (ast.Direction, error) {
	s, err := scalar(n, "dir")
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(s) {
	case "out", "outgoing", "->":
		return ast.Outgoing, nil
	case "in", "incoming", "<-":
		return ast.Incoming, nil
	case "both", "any", "-":
		return ast.Both, nil
	}
	return 0, errorf(n, "unknown direction %q", s)
}

// decodeLength reads {min: m, max: n}. A missing min is 1 and a missing
// max is unbounded.
func decodeLength(n *yaml.Node) (*ast.PathLength, error) {
	length := &ast.PathLength{Min: 1, Max: -1}
	fs, err := fields(n, "length")
	if err != nil {
		return nil, err
	}
	for _, f := range fs {
		switch f.name() {
		case "min":
			if length.Min, err = integer(f.value, "min"); err != nil {
				return nil, err
			}
		case "max":
			if length.Max, err = integer(f.value, "max"); err != nil {
				return nil, err
			}
		default:
			return nil, errorf(f.key, "unknown length field %q", f.name())
		}
	}
	if length.Min < 0 || (length.Max >= 0 && length.Max < length.Min) {
		return nil, errorf(n, "invalid length %d..%d", length.Min, length.Max)
	}
	return length, nil
}

func decodeWith(key, body *yaml.Node) (*ast.With, error) {
	w := &ast.With{Position: pos(key)}
	fs, err := fields(body, "with")
	if err != nil {
		return nil, err
	}
	for _, f := range fs {
		switch f.name() {
		case "distinct":
			if w.Distinct, err = flag(f.value, "distinct"); err != nil {
				return nil, err
			}
		case "items":
			if w.Items, err = decodeItems(f.value); err != nil {
				return nil, err
			}
		case "where":
			if w.Where, err = decodeExpr(f.value); err != nil {
				return nil, err
			}
		default:
			return nil, errorf(f.key, "unknown with field %q", f.name())
		}
	}
	if len(w.Items) == 0 {
		return nil, errorf(key, "with has no items")
	}
	return w, nil
}

func decodeReturn(key, body *yaml.Node) (*ast.Return, error) {
	r := &ast.Return{Position: pos(key)}
	fs, err := fields(body, "return")
	if err != nil {
		return nil, err
	}
	for _, f := range fs {
		switch f.name() {
		case "distinct":
			if r.Distinct, err = flag(f.value, "distinct"); err != nil {
				return nil, err
			}
		case "items":
			if r.Items, err = decodeItems(f.value); err != nil {
				return nil, err
			}
		case "order_by":
			if r.OrderBy, err = decodeSortItems(f.value); err != nil {
				return nil, err
			}
		case "skip":
			if r.Skip, err = decodeExpr(f.value); err != nil {
				return nil, err
			}
		case "limit":
			if r.Limit, err = decodeExpr(f.value); err != nil {
				return nil, err
			}
		default:
			return nil, errorf(f.key, "unknown return field %q", f.name())
		}
	}
	if len(r.Items) == 0 {
		return nil, errorf(key, "return has no items")
	}
	return r, nil
}

func decodeItems(n *yaml.Node) ([]*ast.ReturnItem, error) {
	seq, err := items(n, "items")
	if err != nil {
		return nil, err
	}
	out := make([]*ast.ReturnItem, 0, len(seq))
	for _, c := range seq {
		item := &ast.ReturnItem{Position: pos(c)}
		if c.Kind == yaml.ScalarNode {
			if item.Expr, err = variable(c); err != nil {
				return nil, err
			}
			out = append(out, item)
			continue
		}
		fs, err := fields(c, "item")
		if err != nil {
			return nil, err
		}
		for _, f := range fs {
			switch f.name() {
			case "expr":
				if item.Expr, err = decodeSubject(f.value); err != nil {
					return nil, err
				}
			case "as":
				if item.Alias, err = variable(f.value); err != nil {
					return nil, err
				}
			default:
				return nil, errorf(f.key, "unknown item field %q", f.name())
			}
		}
		if item.Expr == nil {
			return nil, errorf(c, "item has no expr")
		}
		out = append(out, item)
	}
	return out, nil
}

func decodeSortItems(n *yaml.Node) ([]*ast.SortItem, error) {
	seq, err := items(n, "order_by")
	if err != nil {
		return nil, err
	}
	out := make([]*ast.SortItem, 0, len(seq))
	for _, c := range seq {
		item := &ast.SortItem{Position: pos(c)}
		if c.Kind == yaml.ScalarNode {
			if item.Expr, err = variable(c); err != nil {
				return nil, err
			}
			out = append(out, item)
			continue
		}
		fs, err := fields(c, "sort item")
		if err != nil {
			return nil, err
		}
		for _, f := range fs {
			switch f.name() {
			case "expr":
				if item.Expr, err = decodeSubject(f.value); err != nil {
					return nil, err
				}
			case "desc":
				if item.Descending, err = flag(f.value, "desc"); err != nil {
					return nil, err
				}
			default:
				return nil, errorf(f.key, "unknown sort field %q", f.name())
			}
		}
		if item.Expr == nil {
			return nil, errorf(c, "sort item has no expr")
		}
		out = append(out, item)
	}
	return out, nil
}

func decodeMap(n *yaml.Node) (*ast.MapLiteral, error) {
	fs, err := fields(n, "map")
	if err != nil {
		return nil, err
	}
	m := &ast.MapLiteral{Position: pos(n), Entries: make([]ast.MapEntry, 0, len(fs))}
	for _, f := range fs {
		v, err := decodeExpr(f.value)
		if err != nil {
			return nil, err
		}
		m.Entries = append(m.Entries, ast.MapEntry{Key: f.name(), Value: v})
	}
	return m, nil
}
