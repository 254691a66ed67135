package compiler

// ---------------------------------------------------------------------------
// Intermediate representation
// ---------------------------------------------------------------------------

// Program is the intermediate representation the front end hands to the
// back end: a sequence of expressions whose last value is the program's
// result.
type Program struct {
	SourceName string
	Exprs      []Expr
}

// Expr is a node in the intermediate representation.
type Expr interface {
	exprNode()
	Line() int
}

type node struct {
	line int
}

func (n node) exprNode() {}
func (n node) Line() int { return n.line }

// NumberLit is a numeric literal. Integral values are flagged so the
// back end can emit small-int constants.
type NumberLit struct {
	node
	Value      float64
	IsIntegral bool
	Int        int64
}

// StringLit is a string literal.
type StringLit struct {
	node
	Value string
}

// Ident is a name reference. Only function parameters are resolvable.
type Ident struct {
	node
	Name string
}

// Unary is a prefix operation.
type Unary struct {
	node
	Op      TokenType
	Operand Expr
}

// Binary is an infix operation.
type Binary struct {
	node
	Op    TokenType
	Left  Expr
	Right Expr
}

// Call invokes a callable with arguments.
type Call struct {
	node
	Fn   Expr
	Args []Expr
}

// FuncLit is a single-parameter function literal: fun x -> expr.
type FuncLit struct {
	node
	Param string
	Body  Expr
}
