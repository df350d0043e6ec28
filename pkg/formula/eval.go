package formula

import (
	"cmp"
	"math"
	"math/bits"
	"strings"
)

// PriceFunc resolves price(tag, fallback) calls
type PriceFunc func(tag string, fallback float64) float64

type evalContext struct {
	env    Env
	prices PriceFunc
}

// Eval evaluates the program against env. prices may be nil, in which case
// every price() call yields its fallback.
func (p *Program) Eval(env Env, prices PriceFunc) (Value, error) {
	return p.root.eval(&evalContext{env: env, prices: prices})
}

func (n *Literal) eval(_ *evalContext) (Value, error) {
	return n.Value, nil
}

func (n *ArrayLit) eval(ctx *evalContext) (Value, error) {
	elems := make([]Value, len(n.Elems))
	for i, e := range n.Elems {
		v, err := e.eval(ctx)
		if err != nil {
			return Value{}, err
		}
		if v.IsArray() {
			return Value{}, typeMismatch("arrays may only hold scalars")
		}
		elems[i] = v
	}
	return Array(elems...), nil
}

func (n *Ident) eval(ctx *evalContext) (Value, error) {
	v, ok := ctx.env.Lookup(n.Name)
	if !ok {
		return Value{}, unknownVariable(n.Name)
	}
	if v.IsNull() {
		return Int(0), nil
	}
	return v, nil
}

func (n *Unary) eval(ctx *evalContext) (Value, error) {
	v, err := n.Operand.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	return broadcast1(v, func(x Value) (Value, error) {
		return unaryOp(n.Op, x)
	})
}

func (n *Binary) eval(ctx *evalContext) (Value, error) {
	left, err := n.Left.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	right, err := n.Right.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	return broadcast2(left, right, func(a, b Value) (Value, error) {
		return arith(n.Op, a, b)
	})
}

func (n *Compare) eval(ctx *evalContext) (Value, error) {
	operands := make([]Value, len(n.Operands))
	for i, o := range n.Operands {
		v, err := o.eval(ctx)
		if err != nil {
			return Value{}, err
		}
		operands[i] = v
	}

	var result Value
	for i, op := range n.Ops {
		step, err := broadcast2(operands[i], operands[i+1], func(a, b Value) (Value, error) {
			return compare(op, a, b)
		})
		if err != nil {
			return Value{}, err
		}
		if i == 0 {
			result = step
			continue
		}
		result, err = broadcast2(result, step, func(a, b Value) (Value, error) {
			return Bool(a.Truthy() && b.Truthy()), nil
		})
		if err != nil {
			return Value{}, err
		}
	}
	return result, nil
}

func (n *Logical) eval(ctx *evalContext) (Value, error) {
	left, err := n.Left.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	if !left.IsArray() {
		if n.Op == TokenAnd && !left.Truthy() {
			return Bool(false), nil
		}
		if n.Op == TokenOr && left.Truthy() {
			return Bool(true), nil
		}
	}

	right, err := n.Right.eval(ctx)
	if err != nil {
		return Value{}, err
	}
	return broadcast2(left, right, func(a, b Value) (Value, error) {
		if n.Op == TokenAnd {
			return Bool(a.Truthy() && b.Truthy()), nil
		}
		return Bool(a.Truthy() || b.Truthy()), nil
	})
}

func (n *Call) eval(ctx *evalContext) (Value, error) {
	fn, ok := lookupBuiltin(n.Name)
	if !ok {
		return Value{}, typeMismatch("%s is not a function", n.Name)
	}
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		v, err := a.eval(ctx)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}
	return fn.call(ctx, args)
}

// broadcastLen returns the common length of the array operands, or -1 when all are scalars
func broadcastLen(vals ...Value) (int, error) {
	n := -1
	for _, v := range vals {
		if !v.IsArray() {
			continue
		}
		if n >= 0 && v.Len() != n {
			return 0, shapeMismatch(n, v.Len())
		}
		n = v.Len()
	}
	return n, nil
}

func elemAt(v Value, i int) Value {
	if v.IsArray() {
		return v.arr[i]
	}
	return v
}

func broadcast1(v Value, f func(Value) (Value, error)) (Value, error) {
	if !v.IsArray() {
		return f(v)
	}
	out := make([]Value, v.Len())
	for i, e := range v.arr {
		r, err := f(e)
		if err != nil {
			return Value{}, err
		}
		out[i] = r
	}
	return Array(out...), nil
}

func broadcast2(a, b Value, f func(x, y Value) (Value, error)) (Value, error) {
	n, err := broadcastLen(a, b)
	if err != nil {
		return Value{}, err
	}
	if n < 0 {
		return f(a, b)
	}
	out := make([]Value, n)
	for i := range out {
		r, err := f(elemAt(a, i), elemAt(b, i))
		if err != nil {
			return Value{}, err
		}
		out[i] = r
	}
	return Array(out...), nil
}

// where selects per element from then/otherwise according to cond
func where(cond, then, otherwise Value) (Value, error) {
	n, err := broadcastLen(cond, then, otherwise)
	if err != nil {
		return Value{}, err
	}
	if n < 0 {
		if cond.Truthy() {
			return then, nil
		}
		return otherwise, nil
	}
	out := make([]Value, n)
	for i := range out {
		if elemAt(cond, i).Truthy() {
			out[i] = elemAt(then, i)
		} else {
			out[i] = elemAt(otherwise, i)
		}
	}
	return Array(out...), nil
}

func unaryOp(op TokenType, v Value) (Value, error) {
	if op == TokenNot {
		return Bool(!v.Truthy()), nil
	}
	if !v.IsNumeric() {
		return Value{}, typeMismatch("bad operand type for unary %s: %s", opSymbol(op), v.kind)
	}
	if i, ok := v.AsInt(); ok {
		if op == TokenMinus {
			if i == math.MinInt64 {
				return Float(-float64(i)), nil
			}
			return Int(-i), nil
		}
		return Int(i), nil
	}
	if op == TokenMinus {
		return Float(-v.f), nil
	}
	return v, nil
}

func arith(op TokenType, a, b Value) (Value, error) {
	if a.kind == KindString && b.kind == KindString && op == TokenPlus {
		return String(a.s + b.s), nil
	}
	if !a.IsNumeric() || !b.IsNumeric() {
		return Value{}, typeMismatch("unsupported operand types for %s: %s and %s", opSymbol(op), a.kind, b.kind)
	}

	ai, aIsInt := a.AsInt()
	bi, bIsInt := b.AsInt()
	if aIsInt && bIsInt {
		if v, ok, err := intArith(op, ai, bi); ok || err != nil {
			return v, err
		}
	}

	af, _ := a.AsFloat()
	bf, _ := b.AsFloat()
	var r float64
	switch op {
	case TokenPlus:
		r = af + bf
	case TokenMinus:
		r = af - bf
	case TokenMul:
		r = af * bf
	case TokenDiv:
		if bf == 0 {
			return Value{}, divisionByZero("/")
		}
		r = af / bf
	case TokenMod:
		if bf == 0 {
			return Value{}, divisionByZero("%")
		}
		r = math.Mod(af, bf)
		if r != 0 && (r < 0) != (bf < 0) {
			r += bf
		}
	case TokenPow:
		if af == 0 && bf < 0 {
			return Value{}, divisionByZero("**")
		}
		if af < 0 && bf != math.Trunc(bf) {
			return Value{}, typeMismatch("negative base %v raised to fractional power %v", af, bf)
		}
		r = math.Pow(af, bf)
	default:
		return Value{}, typeMismatch("unknown operator %s", opSymbol(op))
	}
	if math.IsInf(r, 0) || math.IsNaN(r) {
		return Value{}, overflow(opSymbol(op))
	}
	return Float(r), nil
}

// intArith handles integer operands. ok is false when the result does not fit
// an int64 and the caller should fall back to float arithmetic.
func intArith(op TokenType, a, b int64) (Value, bool, error) {
	switch op {
	case TokenPlus:
		r := a + b
		if (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0) {
			return Value{}, false, nil
		}
		return Int(r), true, nil
	case TokenMinus:
		r := a - b
		if (a >= 0 && b < 0 && r < 0) || (a < 0 && b > 0 && r >= 0) {
			return Value{}, false, nil
		}
		return Int(r), true, nil
	case TokenMul:
		r, ok := mulInt(a, b)
		if !ok {
			return Value{}, false, nil
		}
		return Int(r), true, nil
	case TokenDiv:
		if b == 0 {
			return Value{}, false, divisionByZero("/")
		}
		return Float(float64(a) / float64(b)), true, nil
	case TokenMod:
		if b == 0 {
			return Value{}, false, divisionByZero("%")
		}
		r := a % b
		if r != 0 && (r < 0) != (b < 0) {
			r += b
		}
		return Int(r), true, nil
	case TokenPow:
		if b < 0 {
			if a == 0 {
				return Value{}, false, divisionByZero("**")
			}
			return Value{}, false, nil
		}
		r, ok := powInt(a, b)
		if !ok {
			return Value{}, false, nil
		}
		return Int(r), true, nil
	}
	return Value{}, false, nil
}

func mulInt(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	neg := (a < 0) != (b < 0)
	ua, ub := absUint(a), absUint(b)
	hi, lo := bits.Mul64(ua, ub)
	if hi != 0 || lo > math.MaxInt64 {
		if neg && hi == 0 && lo == 1<<63 {
			return math.MinInt64, true
		}
		return 0, false
	}
	if neg {
		return -int64(lo), true
	}
	return int64(lo), true
}

// powInt is exponentiation by squaring; ok is false on overflow
func powInt(base, exp int64) (int64, bool) {
	result := int64(1)
	var ok bool
	for exp > 0 {
		if exp&1 == 1 {
			if result, ok = mulInt(result, base); !ok {
				return 0, false
			}
		}
		exp >>= 1
		if exp > 0 {
			if base, ok = mulInt(base, base); !ok {
				return 0, false
			}
		}
	}
	return result, true
}

func absUint(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}

func compare(op TokenType, a, b Value) (Value, error) {
	var c int
	switch {
	case a.kind == KindInt && b.kind == KindInt:
		c = cmp.Compare(a.i, b.i)
	case a.IsNumeric() && b.IsNumeric():
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		c = cmp.Compare(af, bf)
	case a.kind == KindString && b.kind == KindString:
		c = strings.Compare(a.s, b.s)
	default:
		return Value{}, typeMismatch("cannot compare %s with %s using %s", a.kind, b.kind, opSymbol(op))
	}

	switch op {
	case TokenEq:
		return Bool(c == 0), nil
	case TokenNe:
		return Bool(c != 0), nil
	case TokenLt:
		return Bool(c < 0), nil
	case TokenLe:
		return Bool(c <= 0), nil
	case TokenGt:
		return Bool(c > 0), nil
	case TokenGe:
		return Bool(c >= 0), nil
	}
	return Value{}, typeMismatch("unknown comparison %s", opSymbol(op))
}
