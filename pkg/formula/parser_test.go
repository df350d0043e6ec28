package formula

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Precedence(t *testing.T) {
	testCases := []struct {
		name     string
		source   string
		expected Value
	}{
		{name: "multiplication before addition", source: "1 + 2 * 3", expected: Int(7)},
		{name: "parentheses", source: "(1 + 2) * 3", expected: Int(9)},
		{name: "left associative subtraction", source: "10 - 4 - 3", expected: Int(3)},
		{name: "right associative power", source: "2 ** 3 ** 2", expected: Int(512)},
		{name: "unary minus binds tighter than power", source: "-2 ** 2", expected: Int(4)},
		{name: "negated power", source: "-(2 ** 2)", expected: Int(-4)},
		{name: "negative exponent", source: "2 ** -1", expected: Float(0.5)},
		{name: "true division", source: "7 / 2", expected: Float(3.5)},
		{name: "floored modulo", source: "-7 % 3", expected: Int(2)},
		{name: "modulo with negative divisor", source: "7 % -3", expected: Int(-2)},
		{name: "not below comparison", source: "not 1 == 2", expected: Bool(true)},
		{name: "and before or", source: "true and false or true", expected: Bool(true)},
		{name: "comparison inside boolean", source: "1 + 2 == 3 and not false", expected: Bool(true)},
		{name: "chained comparison", source: "1 < 2 < 3", expected: Bool(true)},
		{name: "chained comparison fails on second link", source: "3 > 2 > 2", expected: Bool(false)},
		{name: "unary plus", source: "+4", expected: Int(4)},
		{name: "leading dot decimal", source: ".5 + 1", expected: Float(1.5)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			program, err := Parse(tc.source)
			require.NoError(t, err)

			result, err := program.Eval(Env{}, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestParse_Literals(t *testing.T) {
	testCases := []struct {
		source   string
		expected Value
	}{
		{source: `"a" + "b"`, expected: String("ab")},
		{source: `"x;y"`, expected: String("x;y")},
		{source: `"say \"hi\""`, expected: String(`say "hi"`)},
		{source: `"back\slash"`, expected: String(`back\slash`)},
		{source: `'single'`, expected: String("single")},
		{source: "True", expected: Bool(true)},
		{source: "[1, 2.5, \"a\"]", expected: Array(Int(1), Float(2.5), String("a"))},
	}

	for _, tc := range testCases {
		t.Run(tc.source, func(t *testing.T) {
			program, err := Parse(tc.source)
			require.NoError(t, err)

			result, err := program.Eval(nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, result)
		})
	}
}

func TestParse_EmptyArray(t *testing.T) {
	program, err := Parse("[]")
	require.NoError(t, err)

	result, err := program.Eval(nil, nil)
	require.NoError(t, err)
	assert.True(t, result.IsArray())
	assert.Equal(t, 0, result.Len())
}

func TestParse_SemicolonSeparatesArguments(t *testing.T) {
	comma, err := Parse("if(qty > 10, 1, 2)")
	require.NoError(t, err)
	semicolon, err := Parse("if(qty > 10; 1; 2)")
	require.NoError(t, err)

	env := Env{"qty": Int(12)}
	a, err := comma.Eval(env, nil)
	require.NoError(t, err)
	b, err := semicolon.Eval(env, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, Int(1), b)
}

func TestParse_SyntaxErrors(t *testing.T) {
	testCases := []struct {
		name   string
		source string
		pos    int
	}{
		{name: "empty", source: "   ", pos: 0},
		{name: "unclosed parenthesis", source: "((a + b", pos: 7},
		{name: "dangling operator", source: "a +", pos: 3},
		{name: "unexpected character", source: "1 $ 2", pos: 2},
		{name: "unknown function", source: "foo(1)", pos: 0},
		{name: "if arity", source: "if(1, 2)", pos: 0},
		{name: "price arity", source: "price()", pos: 0},
		{name: "unterminated string", source: `"abc`, pos: 0},
		{name: "trailing token", source: "1 2", pos: 2},
		{name: "missing separator", source: "max(1 2)", pos: 6},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.source)
			require.Error(t, err)

			var syntaxErr *SyntaxError
			require.True(t, errors.As(err, &syntaxErr), "expected SyntaxError, got %T", err)
			assert.Equal(t, tc.pos, syntaxErr.Pos)
			assert.Contains(t, err.Error(), "SyntaxError")
		})
	}
}

func TestParse_NestingLimit(t *testing.T) {
	nested := func(open, inner, close string, n int) string {
		return strings.Repeat(open, n) + inner + strings.Repeat(close, n)
	}

	testCases := []struct {
		name    string
		source  string
		message string
	}{
		{name: "parentheses", source: nested("(", "1", ")", MaxNestingDepth+1), message: "nested too deeply"},
		{name: "brackets", source: nested("[", "1", "]", MaxNestingDepth+1), message: "nested too deeply"},
		{name: "call arguments", source: nested("abs(", "1", ")", MaxNestingDepth+1), message: "nested too deeply"},
		{name: "unary minus chain", source: strings.Repeat("- ", MaxNestingDepth+1) + "1", message: "nested too deeply"},
		{name: "not chain", source: strings.Repeat("not ", MaxNestingDepth+1) + "true", message: "nested too deeply"},
		{name: "power chain", source: "2" + strings.Repeat(" ** 1", MaxNestingDepth+1), message: "nested too deeply"},
		{name: "huge parenthesised input", source: nested("(", "1", ")", 1_500_000), message: "longer than"},
		{name: "long flat chain", source: "1" + strings.Repeat("+1", MaxSourceLen), message: "longer than"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.source)
			require.Error(t, err)

			var syntaxErr *SyntaxError
			require.True(t, errors.As(err, &syntaxErr), "expected SyntaxError, got %T", err)
			assert.Contains(t, syntaxErr.Msg, tc.message)
		})
	}
}

func TestParse_NestingWithinLimit(t *testing.T) {
	depth := MaxNestingDepth / 2
	testCases := []struct {
		source   string
		expected Value
	}{
		{source: strings.Repeat("(", depth) + "1" + strings.Repeat(")", depth), expected: Int(1)},
		{source: strings.Repeat("-", depth) + "3", expected: Int(3)},
		{source: strings.Repeat("not ", depth+1) + "true", expected: Bool(false)},
	}

	for _, tc := range testCases {
		program, err := Parse(tc.source)
		require.NoError(t, err)

		result, err := program.Eval(Env{}, nil)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, result)
	}
}

func TestTokenize_UnexpectedCharacterIsDecoded(t *testing.T) {
	testCases := []struct {
		source  string
		message string
		pos     int
	}{
		{source: "1 $ 2", message: "unexpected character '$'", pos: 2},
		{source: "qty * é", message: "unexpected character 'é'", pos: 6},
		{source: "2 € 3", message: "unexpected character '€'", pos: 2},
	}

	for _, tc := range testCases {
		_, err := Tokenize(tc.source)
		require.Error(t, err)

		var syntaxErr *SyntaxError
		require.True(t, errors.As(err, &syntaxErr))
		assert.Equal(t, tc.message, syntaxErr.Msg)
		assert.Equal(t, tc.pos, syntaxErr.Pos)
	}
}

func TestProgram_Identifiers(t *testing.T) {
	program, err := Parse(`qty * unit_price + price("item", base) + qty`)
	require.NoError(t, err)

	assert.Equal(t, []string{"qty", "unit_price", "base"}, program.Identifiers())
}

func TestTokenize_Positions(t *testing.T) {
	tokens, err := Tokenize("a**2 >= b")
	require.NoError(t, err)

	types := make([]TokenType, len(tokens))
	positions := make([]int, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.Type
		positions[i] = tok.Pos
	}
	assert.Equal(t, []TokenType{TokenIdent, TokenPow, TokenNumber, TokenGe, TokenIdent, TokenEOF}, types)
	assert.Equal(t, []int{0, 1, 3, 5, 8, 9}, positions)
}

func TestIsIdentifier(t *testing.T) {
	assert.True(t, IsIdentifier("unit_price"))
	assert.True(t, IsIdentifier("_x1"))
	assert.False(t, IsIdentifier("1x"))
	assert.False(t, IsIdentifier("unit-price"))
	assert.False(t, IsIdentifier(""))
}
