package formula

import (
	"fmt"
	"strconv"
	"strings"
)

// Program is a compiled formula, safe for concurrent evaluation
type Program struct {
	source string
	root   Node
	idents []string
}

// Source returns the formula text the program was compiled from
func (p *Program) Source() string { return p.source }

// Root returns the top-level AST node
func (p *Program) Root() Node { return p.root }

// Identifiers returns the distinct variable names referenced by the formula,
// in order of first appearance
func (p *Program) Identifiers() []string {
	out := make([]string, len(p.idents))
	copy(out, p.idents)
	return out
}

const (
	// MaxSourceLen bounds formula text, which also bounds left-nested operator chains
	MaxSourceLen = 64 << 10
	// MaxNestingDepth bounds parentheses, brackets, call arguments and prefix/power chains
	MaxNestingDepth = 256
)

// Parse compiles a formula into a Program without evaluating anything
func Parse(source string) (*Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &SyntaxError{Pos: 0, Msg: "empty formula"}
	}
	if len(source) > MaxSourceLen {
		return nil, &SyntaxError{Pos: MaxSourceLen, Msg: fmt.Sprintf("formula longer than %d bytes", MaxSourceLen)}
	}

	tokens, err := Tokenize(source)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := p.current(); tok.Type != TokenEOF {
		return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("unexpected %q", tok.Value)}
	}

	seen := make(map[string]bool)
	var idents []string
	Walk(root, func(n Node) {
		if id, ok := n.(*Ident); ok && !seen[id.Name] {
			seen[id.Name] = true
			idents = append(idents, id.Name)
		}
	})

	return &Program{source: source, root: root, idents: idents}, nil
}

type parser struct {
	tokens []Token
	pos    int
	depth  int
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxNestingDepth {
		return &SyntaxError{Pos: p.current().Pos, Msg: "formula nested too deeply"}
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) current() Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos]
}

func (p *parser) advance() Token {
	tok := p.current()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *parser) expect(tt TokenType, what string) (Token, error) {
	tok := p.current()
	if tok.Type != tt {
		return tok, p.errorf(tok, "expected %s", what)
	}
	p.advance()
	return tok, nil
}

func (p *parser) errorf(tok Token, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if tok.Type == TokenEOF {
		msg += ", found end of formula"
	} else {
		msg += fmt.Sprintf(", found %q", tok.Value)
	}
	return &SyntaxError{Pos: tok.Pos, Msg: msg}
}

func (p *parser) parseExpression() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.parseOr()
}

func (p *parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current().Type == TokenOr {
		op := p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: TokenOr, Left: left, Right: right, At: op.Pos}
	}
	return left, nil
}

func (p *parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.current().Type == TokenAnd {
		op := p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Logical{Op: TokenAnd, Left: left, Right: right, At: op.Pos}
	}
	return left, nil
}

func (p *parser) parseNot() (Node, error) {
	if p.current().Type == TokenNot {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		op := p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: TokenNot, Operand: operand, At: op.Pos}, nil
	}
	return p.parseComparison()
}

func isComparison(tt TokenType) bool {
	switch tt {
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe:
		return true
	}
	return false
}

func (p *parser) parseComparison() (Node, error) {
	first, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if !isComparison(p.current().Type) {
		return first, nil
	}

	cmp := &Compare{Operands: []Node{first}, At: p.current().Pos}
	for isComparison(p.current().Type) {
		op := p.advance()
		next, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		cmp.Ops = append(cmp.Ops, op.Type)
		cmp.Operands = append(cmp.Operands, next)
	}
	return cmp, nil
}

func (p *parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.current().Type == TokenPlus || p.current().Type == TokenMinus {
		op := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op.Type, Left: left, Right: right, At: op.Pos}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Node, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for {
		switch p.current().Type {
		case TokenMul, TokenDiv, TokenMod:
			op := p.advance()
			right, err := p.parsePower()
			if err != nil {
				return nil, err
			}
			left = &Binary{Op: op.Type, Left: left, Right: right, At: op.Pos}
		default:
			return left, nil
		}
	}
}

// parsePower is right-associative. Its operands are unary expressions, so
// -2**2 is (-2)**2 and 2**-1 is valid.
func (p *parser) parsePower() (Node, error) {
	base, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.current().Type != TokenPow {
		return base, nil
	}
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	op := p.advance()
	exp, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	return &Binary{Op: TokenPow, Left: base, Right: exp, At: op.Pos}, nil
}

func (p *parser) parseUnary() (Node, error) {
	switch p.current().Type {
	case TokenMinus, TokenPlus:
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		op := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: op.Type, Operand: operand, At: op.Pos}, nil
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (Node, error) {
	tok := p.current()
	switch tok.Type {
	case TokenNumber:
		p.advance()
		return parseNumber(tok)
	case TokenString:
		p.advance()
		return &Literal{Value: String(tok.Value), At: tok.Pos}, nil
	case TokenTrue, TokenFalse:
		p.advance()
		return &Literal{Value: Bool(tok.Type == TokenTrue), At: tok.Pos}, nil
	case TokenIdent:
		p.advance()
		if p.current().Type == TokenLParen {
			return p.parseCall(tok)
		}
		return &Ident{Name: tok.Value, At: tok.Pos}, nil
	case TokenLParen:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokenRParen, "')'"); err != nil {
			return nil, err
		}
		return expr, nil
	case TokenLBracket:
		p.advance()
		elems, err := p.parseList(TokenRBracket, "']'")
		if err != nil {
			return nil, err
		}
		return &ArrayLit{Elems: elems, At: tok.Pos}, nil
	default:
		return nil, p.errorf(tok, "expected a value")
	}
}

func (p *parser) parseCall(name Token) (Node, error) {
	fn, ok := lookupBuiltin(name.Value)
	if !ok {
		return nil, &SyntaxError{Pos: name.Pos, Msg: fmt.Sprintf("unknown function %q", name.Value)}
	}
	p.advance() // consume (

	args, err := p.parseList(TokenRParen, "')'")
	if err != nil {
		return nil, err
	}
	if len(args) < fn.minArgs || (fn.maxArgs >= 0 && len(args) > fn.maxArgs) {
		return nil, &SyntaxError{Pos: name.Pos, Msg: fmt.Sprintf("%s() %s, got %d", fn.name, fn.arity(), len(args))}
	}
	return &Call{Name: fn.name, Args: args, At: name.Pos}, nil
}

// parseList reads comma separated expressions up to and including the closing token
func (p *parser) parseList(closing TokenType, what string) ([]Node, error) {
	var items []Node
	if p.current().Type == closing {
		p.advance()
		return items, nil
	}
	for {
		item, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		items = append(items, item)

		switch p.current().Type {
		case TokenComma:
			p.advance()
		case closing:
			p.advance()
			return items, nil
		default:
			return nil, p.errorf(p.current(), "expected ',' or %s", what)
		}
	}
}

func parseNumber(tok Token) (Node, error) {
	if !strings.Contains(tok.Value, ".") {
		if i, err := strconv.ParseInt(tok.Value, 10, 64); err == nil {
			return &Literal{Value: Int(i), At: tok.Pos}, nil
		}
	}
	f, err := strconv.ParseFloat(tok.Value, 64)
	if err != nil {
		return nil, &SyntaxError{Pos: tok.Pos, Msg: fmt.Sprintf("invalid number %q", tok.Value)}
	}
	return &Literal{Value: Float(f), At: tok.Pos}, nil
}
