package pricing

import (
	"cmp"
	"strings"

	"github.com/ilramdhan/calculator-engine/pkg/formula"
)

// Operator is the comparison a filter clause applies
type Operator string

const (
	OpEq  Operator = "eq"
	OpNe  Operator = "ne"
	OpGt  Operator = "gt"
	OpGte Operator = "gte"
	OpLt  Operator = "lt"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// suffixes is ordered longest first so "__gte" is not read as "__gt"
var suffixes = []struct {
	suffix string
	op     Operator
}{
	{"__gte", OpGte},
	{"__lte", OpLte},
	{"__gt", OpGt},
	{"__lt", OpLt},
	{"__eq", OpEq},
	{"__ne", OpNe},
	{"__in", OpIn},
}

// ParseKey splits a filter key such as "qty__gte" into its base tag and operator.
// A key without a known suffix is an equality test.
func ParseKey(key string) (string, Operator) {
	for _, s := range suffixes {
		if base, ok := strings.CutSuffix(key, s.suffix); ok && base != "" {
			return base, s.op
		}
	}
	return key, OpEq
}

// Match reports whether every clause of extra holds against env.
// A clause whose base tag is not bound in env is skipped.
func Match(extra map[string]any, env formula.Env) bool {
	for key, expected := range extra {
		base, op := ParseKey(key)
		actual, ok := env.Lookup(base)
		if !ok {
			continue
		}
		if !clauseHolds(op, actual, formula.FromGo(expected)) {
			return false
		}
	}
	return true
}

func clauseHolds(op Operator, actual, expected formula.Value) bool {
	switch op {
	case OpEq:
		return actual.Equal(expected)
	case OpNe:
		return !actual.Equal(expected)
	case OpIn:
		return contains(expected, actual)
	}

	c, ok := order(actual, expected)
	if !ok {
		return false
	}
	switch op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	}
	return false
}

func contains(collection, item formula.Value) bool {
	if collection.IsArray() {
		for _, e := range collection.Elems() {
			if e.Equal(item) {
				return true
			}
		}
		return false
	}
	haystack, ok := collection.AsString()
	if !ok {
		return false
	}
	needle, ok := item.AsString()
	return ok && strings.Contains(haystack, needle)
}

// order compares two scalars; ok is false when they have no common ordering
func order(a, b formula.Value) (int, bool) {
	if a.IsNumeric() && b.IsNumeric() {
		ai, aInt := a.AsInt()
		bi, bInt := b.AsInt()
		if aInt && bInt {
			return cmp.Compare(ai, bi), true
		}
		af, _ := a.AsFloat()
		bf, _ := b.AsFloat()
		return cmp.Compare(af, bf), true
	}
	as, aStr := a.AsString()
	bs, bStr := b.AsString()
	if aStr && bStr {
		return strings.Compare(as, bs), true
	}
	return 0, false
}
