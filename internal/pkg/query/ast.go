package query

// Node is the interface implemented by all AST nodes.
type Node interface {
	node()
}

// BinaryExpr combines two expressions with AND or OR.
type BinaryExpr struct {
	Op    string
	Left  Node
	Right Node
}

func (BinaryExpr) node() {}

// FieldExpr compares one record field with a value.
// Negate turns "key:value" into "key!=value".
type FieldExpr struct {
	Key    string
	Value  string
	Negate bool
}

func (FieldExpr) node() {}

// TextExpr matches when any field value contains Text.
type TextExpr struct {
	Text string
}

func (TextExpr) node() {}

// NotExpr negates its inner expression.
type NotExpr struct {
	Expr Node
}

func (NotExpr) node() {}
