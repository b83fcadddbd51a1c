package ast

// Expr is any expression node.
type Expr interface {
	Node
	expr()
}

// Variable references a pattern element, projection or alias by name. After
// the namespacing phase names are unique per binding.
type Variable struct {
	Position
	Name string
}

// Parameter is a query parameter such as $name.
type Parameter struct {
	Position
	Name string
}

// IntegerLiteral is a signed integer constant.
type IntegerLiteral struct {
	Position
	Value int64
}

// FloatLiteral is a floating point constant.
type FloatLiteral struct {
	Position
	Value float64
}

// StringLiteral is a string constant.
type StringLiteral struct {
	Position
	Value string
}

// BoolLiteral is true or false.
type BoolLiteral struct {
	Position
	Value bool
}

// NullLiteral is null.
type NullLiteral struct {
	Position
}

// ListLiteral is [a, b, c].
type ListLiteral struct {
	Position
	Items []Expr
}

// MapEntry is one key of a MapLiteral.
type MapEntry struct {
	Key   string
	Value Expr
}

// MapLiteral is {k: v, ...}. Entries keep their source order.
type MapLiteral struct {
	Position
	Entries []MapEntry
}

// Property is subject.key.
type Property struct {
	Position
	Subject Expr
	Key     string
}

// CompareOp is a binary comparison operator.
type CompareOp string

const (
	OpEQ  CompareOp = "="
	OpNE  CompareOp = "<>"
	OpLT  CompareOp = "<"
	OpLTE CompareOp = "<="
	OpGT  CompareOp = ">"
	OpGTE CompareOp = ">="
)

// IsRange reports whether the operator bounds a range.
func (op CompareOp) IsRange() bool {
	switch op {
	case OpLT, OpLTE, OpGT, OpGTE:
		return true
	}
	return false
}

// Flip returns the operator with its operands swapped: a < b == b > a.
func (op CompareOp) Flip() CompareOp {
	switch op {
	case OpLT:
		return OpGT
	case OpLTE:
		return OpGTE
	case OpGT:
		return OpLT
	case OpGTE:
		return OpLTE
	}
	return op
}

// Comparison is Left Op Right.
type Comparison struct {
	Position
	Op    CompareOp
	Left  Expr
	Right Expr
}

// MatchOp is a string matching operator.
type MatchOp string

const (
	OpStartsWith MatchOp = "STARTS WITH"
	OpEndsWith   MatchOp = "ENDS WITH"
	OpContains   MatchOp = "CONTAINS"
)

// StringMatch is Left STARTS WITH / ENDS WITH / CONTAINS Right.
type StringMatch struct {
	Position
	Op    MatchOp
	Left  Expr
	Right Expr
}

// In is Left IN Right.
type In struct {
	Position
	Left  Expr
	Right Expr
}

// IsNull is Expr IS NULL.
type IsNull struct {
	Position
	Expr Expr
}

// IsNotNull is Expr IS NOT NULL, i.e. property existence.
type IsNotNull struct {
	Position
	Expr Expr
}

// HasLabels is n:Label1:Label2.
type HasLabels struct {
	Position
	Subject Expr
	Labels  []string
}

// HasTypes is r:TYPE1|TYPE2.
type HasTypes struct {
	Position
	Subject Expr
	Types   []string
}

// Not negates Expr.
type Not struct {
	Position
	Expr Expr
}

// And is a binary conjunction as produced by the parser.
type And struct {
	Position
	Left  Expr
	Right Expr
}

// Or is a binary disjunction as produced by the parser.
type Or struct {
	Position
	Left  Expr
	Right Expr
}

// Ands is a flattened conjunction.
type Ands struct {
	Position
	Exprs []Expr
}

// Ors is a flattened disjunction.
type Ors struct {
	Position
	Exprs []Expr
}

// FunctionCall invokes a named function.
type FunctionCall struct {
	Position
	Name     string
	Distinct bool
	Args     []Expr
}

func (*Variable) expr()       {}
func (*Parameter) expr()      {}
func (*IntegerLiteral) expr() {}
func (*FloatLiteral) expr()   {}
func (*StringLiteral) expr()  {}
func (*BoolLiteral) expr()    {}
func (*NullLiteral) expr()    {}
func (*ListLiteral) expr()    {}
func (*MapLiteral) expr()     {}
func (*Property) expr()       {}
func (*Comparison) expr()     {}
func (*StringMatch) expr()    {}
func (*In) expr()             {}
func (*IsNull) expr()         {}
func (*IsNotNull) expr()      {}
func (*HasLabels) expr()      {}
func (*HasTypes) expr()       {}
func (*Not) expr()            {}
func (*And) expr()            {}
func (*Or) expr()             {}
func (*Ands) expr()           {}
func (*Ors) expr()            {}
func (*FunctionCall) expr()   {}

// IsLiteral reports whether e is a constant that does not depend on any
// variable or parameter.
func IsLiteral(e Expr) bool {
	switch v := e.(type) {
	case *IntegerLiteral, *FloatLiteral, *StringLiteral, *BoolLiteral, *NullLiteral:
		return true
	case *ListLiteral:
		for _, item := range v.Items {
			if !IsLiteral(item) {
				return false
			}
		}
		return true
	}
	return false
}

// NumericValue returns the value of an integer or float literal.
func NumericValue(e Expr) (float64, bool) {
	switch v := e.(type) {
	case *IntegerLiteral:
		return float64(v.Value), true
	case *FloatLiteral:
		return v.Value, true
	}
	return 0, false
}
