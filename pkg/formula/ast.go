package formula

// Node is a parsed formula expression
type Node interface {
	Pos() int
	eval(ctx *evalContext) (Value, error)
}

// Literal is a number, string or boolean constant
type Literal struct {
	Value Value
	At    int
}

// ArrayLit is a bracketed list of element expressions
type ArrayLit struct {
	Elems []Node
	At    int
}

// Ident references a variable by tag name
type Ident struct {
	Name string
	At   int
}

// Unary is a prefix operator: -, + or not
type Unary struct {
	Op      TokenType
	Operand Node
	At      int
}

// Binary is an arithmetic operator
type Binary struct {
	Op    TokenType
	Left  Node
	Right Node
	At    int
}

// Compare is a (possibly chained) comparison: a < b <= c
type Compare struct {
	Operands []Node
	Ops      []TokenType
	At       int
}

// Logical is a boolean and/or
type Logical struct {
	Op    TokenType
	Left  Node
	Right Node
	At    int
}

// Call invokes a built-in function such as if or price
type Call struct {
	Name string
	Args []Node
	At   int
}

func (n *Literal) Pos() int  { return n.At }
func (n *ArrayLit) Pos() int { return n.At }
func (n *Ident) Pos() int    { return n.At }
func (n *Unary) Pos() int    { return n.At }
func (n *Binary) Pos() int   { return n.At }
func (n *Compare) Pos() int  { return n.At }
func (n *Logical) Pos() int  { return n.At }
func (n *Call) Pos() int     { return n.At }

// Walk visits n and its children depth-first, left to right
func Walk(n Node, visit func(Node)) {
	if n == nil {
		return
	}
	visit(n)
	switch node := n.(type) {
	case *ArrayLit:
		for _, e := range node.Elems {
			Walk(e, visit)
		}
	case *Unary:
		Walk(node.Operand, visit)
	case *Binary:
		Walk(node.Left, visit)
		Walk(node.Right, visit)
	case *Compare:
		for _, o := range node.Operands {
			Walk(o, visit)
		}
	case *Logical:
		Walk(node.Left, visit)
		Walk(node.Right, visit)
	case *Call:
		for _, a := range node.Args {
			Walk(a, visit)
		}
	}
}

var opSymbols = map[TokenType]string{
	TokenAnd:   "and",
	TokenOr:    "or",
	TokenNot:   "not",
	TokenEq:    "==",
	TokenNe:    "!=",
	TokenLt:    "<",
	TokenGt:    ">",
	TokenLe:    "<=",
	TokenGe:    ">=",
	TokenPlus:  "+",
	TokenMinus: "-",
	TokenMul:   "*",
	TokenDiv:   "/",
	TokenMod:   "%",
	TokenPow:   "**",
}

func opSymbol(op TokenType) string {
	if s, ok := opSymbols[op]; ok {
		return s
	}
	return "?"
}
