package formula

import (
	"cmp"
	"fmt"
	"math"
)

type builtin struct {
	name    string
	minArgs int
	maxArgs int // -1 means variadic
	call    func(ctx *evalContext, args []Value) (Value, error)
}

func (b builtin) arity() string {
	switch {
	case b.maxArgs < 0:
		return fmt.Sprintf("takes at least %d arguments", b.minArgs)
	case b.minArgs == b.maxArgs:
		return fmt.Sprintf("takes exactly %d arguments", b.minArgs)
	default:
		return fmt.Sprintf("takes %d to %d arguments", b.minArgs, b.maxArgs)
	}
}

var builtins map[string]builtin

func init() {
	builtins = map[string]builtin{
		"if":    {name: "if", minArgs: 3, maxArgs: 3, call: callIf},
		"price": {name: "price", minArgs: 1, maxArgs: 2, call: callPrice},
		"min":   {name: "min", minArgs: 1, maxArgs: -1, call: callMin},
		"max":   {name: "max", minArgs: 1, maxArgs: -1, call: callMax},
		"abs":   {name: "abs", minArgs: 1, maxArgs: 1, call: callAbs},
		"round": {name: "round", minArgs: 1, maxArgs: 2, call: callRound},
	}
}

func lookupBuiltin(name string) (builtin, bool) {
	b, ok := builtins[name]
	return b, ok
}

// IsBuiltin reports whether name is a callable function in formulas
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func callIf(_ *evalContext, args []Value) (Value, error) {
	return where(args[0], args[1], args[2])
}

func callPrice(ctx *evalContext, args []Value) (Value, error) {
	tag, ok := args[0].AsString()
	if !ok {
		return Value{}, typeMismatch("price() tag must be a string, got %s", args[0].Kind())
	}
	fallback := 0.0
	if len(args) > 1 {
		f, ok := args[1].AsFloat()
		if !ok {
			return Value{}, typeMismatch("price() fallback must be a number, got %s", args[1].Kind())
		}
		fallback = f
	}
	if ctx.prices == nil {
		return Float(fallback), nil
	}
	return Float(ctx.prices(tag, fallback)), nil
}

func callMin(_ *evalContext, args []Value) (Value, error) {
	return reduce("min", args, func(c int) bool { return c < 0 })
}

func callMax(_ *evalContext, args []Value) (Value, error) {
	return reduce("max", args, func(c int) bool { return c > 0 })
}

// reduce picks the winning numeric value across all arguments, flattening arrays
func reduce(name string, args []Value, better func(c int) bool) (Value, error) {
	var best Value
	found := false
	for _, a := range args {
		items := []Value{a}
		if a.IsArray() {
			items = a.Elems()
		}
		for _, v := range items {
			if !v.IsNumeric() {
				return Value{}, typeMismatch("%s() expects numbers, got %s", name, v.Kind())
			}
			if !found {
				best, found = v, true
				continue
			}
			if better(numericCmp(v, best)) {
				best = v
			}
		}
	}
	if !found {
		return Value{}, typeMismatch("%s() of an empty array", name)
	}
	return best, nil
}

func numericCmp(a, b Value) int {
	if a.kind == KindInt && b.kind == KindInt {
		return cmp.Compare(a.i, b.i)
	}
	af, _ := a.AsFloat()
	bf, _ := b.AsFloat()
	return cmp.Compare(af, bf)
}

func callAbs(_ *evalContext, args []Value) (Value, error) {
	return broadcast1(args[0], func(v Value) (Value, error) {
		switch {
		case v.Kind() == KindFloat:
			return Float(math.Abs(v.f)), nil
		case v.IsNumeric():
			i, _ := v.AsInt()
			if i < 0 {
				return unaryOp(TokenMinus, Int(i))
			}
			return Int(i), nil
		}
		return Value{}, typeMismatch("abs() expects a number, got %s", v.Kind())
	})
}

// callRound rounds half to even. Without digits the result is an integer.
func callRound(_ *evalContext, args []Value) (Value, error) {
	digits := int64(0)
	withDigits := len(args) > 1
	if withDigits {
		d, ok := args[1].AsInt()
		if !ok {
			return Value{}, typeMismatch("round() digits must be an integer, got %s", args[1].Kind())
		}
		digits = d
	}
	return broadcast1(args[0], func(v Value) (Value, error) {
		if !v.IsNumeric() {
			return Value{}, typeMismatch("round() expects a number, got %s", v.Kind())
		}
		if i, ok := v.AsInt(); ok {
			if digits >= 0 || !withDigits {
				return Int(i), nil
			}
			return roundInt(i, digits)
		}
		f, _ := v.AsFloat()
		if !withDigits {
			r := math.RoundToEven(f)
			if math.Abs(r) >= math.MaxInt64 {
				return Value{}, overflow("round")
			}
			return Int(int64(r)), nil
		}
		scale := math.Pow(10, float64(digits))
		r := math.RoundToEven(f*scale) / scale
		if math.IsInf(r, 0) || math.IsNaN(r) {
			return Float(f), nil
		}
		return Float(r), nil
	})
}

// roundInt rounds i to a multiple of 10^-digits (digits < 0), half to even
func roundInt(i, digits int64) (Value, error) {
	if digits < -18 {
		// 10^19 exceeds every int64, so only zero or an overflow remain
		if i > 5e18 || i < -5e18 {
			return Value{}, overflow("round")
		}
		return Int(0), nil
	}
	scale := int64(1)
	for d := digits; d < 0; d++ {
		scale *= 10
	}

	q, r := i/scale, absUint(i%scale)
	half := uint64(scale / 2)
	if r > half || (r == half && q%2 != 0) {
		if i < 0 {
			q--
		} else {
			q++
		}
	}
	result, ok := mulInt(q, scale)
	if !ok {
		return Value{}, overflow("round")
	}
	return Int(result), nil
}
