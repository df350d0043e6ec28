package formula

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// TokenType classifies a lexical token
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenIdent
	TokenNumber
	TokenString

	TokenAnd // and
	TokenOr  // or
	TokenNot // not
	TokenTrue
	TokenFalse

	TokenEq    // ==
	TokenNe    // !=
	TokenLt    // <
	TokenGt    // >
	TokenLe    // <=
	TokenGe    // >=
	TokenPlus  // +
	TokenMinus // -
	TokenMul   // *
	TokenDiv   // /
	TokenMod   // %
	TokenPow   // **

	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenComma    // , or ;
)

// Token is a lexical token with its byte offset in the source
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

var keywords = map[string]TokenType{
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"true":  TokenTrue,
	"false": TokenFalse,
	"True":  TokenTrue,
	"False": TokenFalse,
}

// IsKeyword reports whether name is reserved by the formula language
func IsKeyword(name string) bool {
	_, ok := keywords[name]
	return ok
}

// Tokenize splits a formula into tokens. Both ',' and ';' separate call arguments.
func Tokenize(input string) ([]Token, error) {
	var tokens []Token
	i := 0

	for i < len(input) {
		c := input[i]
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}

		start := i
		if i+1 < len(input) {
			var tt TokenType
			switch input[i : i+2] {
			case "==":
				tt = TokenEq
			case "!=":
				tt = TokenNe
			case "<=":
				tt = TokenLe
			case ">=":
				tt = TokenGe
			case "**":
				tt = TokenPow
			}
			if tt != TokenEOF {
				tokens = append(tokens, Token{Type: tt, Value: input[i : i+2], Pos: start})
				i += 2
				continue
			}
		}

		switch {
		case c == '"' || c == '\'':
			val, next, err := scanString(input, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Type: TokenString, Value: val, Pos: start})
			i = next
		case isDigit(c) || (c == '.' && i+1 < len(input) && isDigit(input[i+1])):
			for i < len(input) && isDigit(input[i]) {
				i++
			}
			if i < len(input) && input[i] == '.' {
				i++
				for i < len(input) && isDigit(input[i]) {
					i++
				}
			}
			tokens = append(tokens, Token{Type: TokenNumber, Value: input[start:i], Pos: start})
		case isIdentStart(c):
			for i < len(input) && isIdentPart(input[i]) {
				i++
			}
			word := input[start:i]
			tt, ok := keywords[word]
			if !ok {
				tt = TokenIdent
			}
			tokens = append(tokens, Token{Type: tt, Value: word, Pos: start})
		default:
			tt, ok := singleCharTokens[c]
			if !ok {
				r, _ := utf8.DecodeRuneInString(input[i:])
				return nil, &SyntaxError{Pos: start, Msg: "unexpected character " + strconv.QuoteRune(r)}
			}
			tokens = append(tokens, Token{Type: tt, Value: string(c), Pos: start})
			i++
		}
	}

	tokens = append(tokens, Token{Type: TokenEOF, Pos: len(input)})
	return tokens, nil
}

var singleCharTokens = map[byte]TokenType{
	'<': TokenLt,
	'>': TokenGt,
	'+': TokenPlus,
	'-': TokenMinus,
	'*': TokenMul,
	'/': TokenDiv,
	'%': TokenMod,
	'(': TokenLParen,
	')': TokenRParen,
	'[': TokenLBracket,
	']': TokenRBracket,
	',': TokenComma,
	';': TokenComma,
}

// scanString reads a quoted literal starting at input[start]. A backslash only
// escapes the opening quote character; anything else is kept verbatim.
func scanString(input string, start int) (string, int, error) {
	quote := input[start]
	var sb strings.Builder
	i := start + 1
	for i < len(input) {
		c := input[i]
		switch {
		case c == '\\' && i+1 < len(input) && input[i+1] == quote:
			sb.WriteByte(quote)
			i += 2
		case c == quote:
			return sb.String(), i + 1, nil
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return "", 0, &SyntaxError{Pos: start, Msg: "unterminated string literal"}
}

func isDigit(c byte) bool      { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentPart(c byte) bool  { return isIdentStart(c) || isDigit(c) }

// IsIdentifier reports whether name matches [A-Za-z_][A-Za-z0-9_]*
func IsIdentifier(name string) bool {
	if name == "" || !isIdentStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isIdentPart(name[i]) {
			return false
		}
	}
	return true
}
