package ast

import (
	"strconv"
	"strings"
)

// Format renders the query as canonical text. Two structurally identical
// queries always render identically; positions are not part of the output.
func Format(q *Query) string {
	return q.String()
}

func (q *Query) String() string {
	parts := make([]string, len(q.Clauses))
	for i, c := range q.Clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

func (m *Match) String() string {
	var sb strings.Builder
	if m.Optional {
		sb.WriteString("OPTIONAL ")
	}
	sb.WriteString("MATCH ")
	for i, p := range m.Patterns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.String())
	}
	if m.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(m.Where.String())
	}
	return sb.String()
}

func (w *With) String() string {
	var sb strings.Builder
	sb.WriteString("WITH ")
	if w.Distinct {
		sb.WriteString("DISTINCT ")
	}
	writeItems(&sb, w.Items)
	if w.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(w.Where.String())
	}
	return sb.String()
}

func (r *Return) String() string {
	var sb strings.Builder
	sb.WriteString("RETURN ")
	if r.Distinct {
		sb.WriteString("DISTINCT ")
	}
	writeItems(&sb, r.Items)
	if len(r.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, s := range r.OrderBy {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(s.String())
		}
	}
	if r.Skip != nil {
		sb.WriteString(" SKIP ")
		sb.WriteString(r.Skip.String())
	}
	if r.Limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(r.Limit.String())
	}
	return sb.String()
}

func writeItems(sb *strings.Builder, items []*ReturnItem) {
	for i, item := range items {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(item.String())
	}
}

func (r *ReturnItem) String() string {
	if r.Alias != nil {
		return r.Expr.String() + " AS " + r.Alias.String()
	}
	return r.Expr.String()
}

func (s *SortItem) String() string {
	if s.Descending {
		return s.Expr.String() + " DESC"
	}
	return s.Expr.String()
}

func (p *PatternPart) String() string {
	var sb strings.Builder
	for _, e := range p.Elements {
		sb.WriteString(e.String())
	}
	return sb.String()
}

func (n *NodePattern) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	if n.Variable != nil {
		sb.WriteString(n.Variable.String())
	}
	for _, l := range n.Labels {
		sb.WriteByte(':')
		sb.WriteString(escapeName(l))
	}
	if n.Properties != nil {
		sb.WriteByte(' ')
		sb.WriteString(n.Properties.String())
	}
	sb.WriteByte(')')
	return sb.String()
}

func (r *RelationshipPattern) String() string {
	var sb strings.Builder
	if r.Direction == Incoming {
		sb.WriteString("<-[")
	} else {
		sb.WriteString("-[")
	}
	if r.Variable != nil {
		sb.WriteString(r.Variable.String())
	}
	for i, t := range r.Types {
		if i == 0 {
			sb.WriteByte(':')
		} else {
			sb.WriteByte('|')
		}
		sb.WriteString(escapeName(t))
	}
	if r.Length != nil {
		sb.WriteByte('*')
		sb.WriteString(strconv.Itoa(r.Length.Min))
		sb.WriteString("..")
		if r.Length.Max >= 0 {
			sb.WriteString(strconv.Itoa(r.Length.Max))
		}
	}
	if r.Properties != nil {
		sb.WriteByte(' ')
		sb.WriteString(r.Properties.String())
	}
	if r.Direction == Outgoing {
		sb.WriteString("]->")
	} else {
		sb.WriteString("]-")
	}
	return sb.String()
}

func (v *Variable) String() string       { return escapeName(v.Name) }
func (p *Parameter) String() string      { return "$" + escapeName(p.Name) }
func (l *IntegerLiteral) String() string { return strconv.FormatInt(l.Value, 10) }
func (l *FloatLiteral) String() string   { return strconv.FormatFloat(l.Value, 'g', -1, 64) }
func (l *StringLiteral) String() string  { return quote(l.Value) }
func (l *BoolLiteral) String() string    { return strconv.FormatBool(l.Value) }
func (l *NullLiteral) String() string    { return "null" }

func (l *ListLiteral) String() string {
	return "[" + joinExprs(l.Items, ", ") + "]"
}

func (m *MapLiteral) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, e := range m.Entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(escapeName(e.Key))
		sb.WriteString(": ")
		sb.WriteString(e.Value.String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func (p *Property) String() string {
	return p.Subject.String() + "." + escapeName(p.Key)
}

func (c *Comparison) String() string {
	return c.Left.String() + " " + string(c.Op) + " " + c.Right.String()
}

func (s *StringMatch) String() string {
	return s.Left.String() + " " + string(s.Op) + " " + s.Right.String()
}

func (i *In) String() string        { return i.Left.String() + " IN " + i.Right.String() }
func (n *IsNull) String() string    { return n.Expr.String() + " IS NULL" }
func (n *IsNotNull) String() string { return n.Expr.String() + " IS NOT NULL" }

func (h *HasLabels) String() string {
	var sb strings.Builder
	sb.WriteString(h.Subject.String())
	for _, l := range h.Labels {
		sb.WriteByte(':')
		sb.WriteString(escapeName(l))
	}
	return sb.String()
}

func (h *HasTypes) String() string {
	var sb strings.Builder
	sb.WriteString(h.Subject.String())
	for i, t := range h.Types {
		if i == 0 {
			sb.WriteByte(':')
		} else {
			sb.WriteByte('|')
		}
		sb.WriteString(escapeName(t))
	}
	return sb.String()
}

func (n *Not) String() string { return "NOT (" + n.Expr.String() + ")" }
func (a *And) String() string { return "(" + a.Left.String() + " AND " + a.Right.String() + ")" }
func (o *Or) String() string  { return "(" + o.Left.String() + " OR " + o.Right.String() + ")" }

func (a *Ands) String() string { return "(" + joinExprs(a.Exprs, " AND ") + ")" }
func (o *Ors) String() string  { return "(" + joinExprs(o.Exprs, " OR ") + ")" }

func (f *FunctionCall) String() string {
	var sb strings.Builder
	sb.WriteString(f.Name)
	sb.WriteByte('(')
	if f.Distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(joinExprs(f.Args, ", "))
	sb.WriteByte(')')
	return sb.String()
}

func joinExprs(exprs []Expr, sep string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, sep)
}

func quote(s string) string {
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s) + "'"
}

// escapeName backtick-quotes names that are not plain identifiers.
func escapeName(name string) string {
	if name == "" {
		return "``"
	}
	for i, r := range name {
		if r == '_' || r == '@' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (i > 0 && r >= '0' && r <= '9') {
			continue
		}
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return name
}
