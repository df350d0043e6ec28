package calculator

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
	"github.com/ilramdhan/calculator-engine/pkg/formula"
)

// Input failure kinds. Match them with errors.Is.
var (
	ErrInvalidInput         = errors.New("InvalidInput")
	ErrMissingRequiredInput = errors.New("MissingRequiredInput")
)

// InputError reports a raw input or default value that cannot seed the environment
type InputError struct {
	Kind     error
	Tag      string
	DataType entity.DataType
	Raw      any
}

func (e *InputError) Error() string {
	if errors.Is(e.Kind, ErrMissingRequiredInput) {
		return fmt.Sprintf("%s: %s is required", e.Kind, e.Tag)
	}
	return fmt.Sprintf("%s: cannot use %#v as %s for %s", e.Kind, e.Raw, e.DataType, e.Tag)
}

func (e *InputError) Unwrap() error {
	return e.Kind
}

// SortVariables returns a copy of vars stable-sorted by Order
func SortVariables(vars []entity.Variable) []entity.Variable {
	sorted := slices.Clone(vars)
	slices.SortStableFunc(sorted, func(a, b entity.Variable) int {
		return cmp.Compare(a.Order, b.Order)
	})
	return sorted
}

// BuildContext seeds an environment from variable definitions and raw user input.
// Only declared tags are bound. The first required variable without input, or the
// first value that fails coercion, aborts the build.
func BuildContext(vars []entity.Variable, raw map[string]any) (formula.Env, error) {
	sorted := SortVariables(vars)
	inputs := lowerKeys(raw)
	env := make(formula.Env, len(sorted))

	for i := range sorted {
		v := &sorted[i]
		tag := strings.ToLower(v.TagName)
		input, present := inputs[tag]
		present = present && input != nil

		if v.IsRequired() && isBlank(input, present) {
			return nil, &InputError{Kind: ErrMissingRequiredInput, Tag: tag, DataType: v.DataType}
		}

		value, err := initialValue(v, tag, input, present)
		if err != nil {
			return nil, err
		}
		env[tag] = value
	}
	return env, nil
}

// BuildDefaults seeds an environment from default values only. Every coercion
// failure is collected and the failing variable is bound to its zero value.
func BuildDefaults(vars []entity.Variable) (formula.Env, []FormulaError) {
	sorted := SortVariables(vars)
	env := make(formula.Env, len(sorted))
	var failures []FormulaError

	for i := range sorted {
		v := &sorted[i]
		tag := strings.ToLower(v.TagName)
		value, err := initialValue(v, tag, nil, false)
		if err != nil {
			failures = append(failures, FormulaError{TagName: tag, Message: err.Error()})
			value = zeroValue(v.DataType)
		}
		env[tag] = value
	}
	return env, failures
}

func initialValue(v *entity.Variable, tag string, input any, present bool) (formula.Value, error) {
	if present {
		return coerce(v.DataType, tag, input)
	}
	if hasDefault(v.DefaultValue) {
		return coerce(v.DataType, tag, v.DefaultValue)
	}
	return zeroValue(v.DataType), nil
}

func hasDefault(x any) bool {
	switch val := x.(type) {
	case nil:
		return false
	case string:
		return val != ""
	}
	return true
}

func isBlank(input any, present bool) bool {
	if !present {
		return true
	}
	switch val := input.(type) {
	case string:
		return strings.TrimSpace(val) == ""
	case bool:
		return !val
	case []any:
		return len(val) == 0
	}
	return false
}

// lowerKeys folds raw input keys to lower case. An exact lower-case key wins
// over a differently cased duplicate.
func lowerKeys(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		lk := strings.ToLower(k)
		if _, taken := out[lk]; taken && k != lk {
			continue
		}
		out[lk] = v
	}
	return out
}

func zeroValue(dt entity.DataType) formula.Value {
	switch dt {
	case entity.DataTypeInt:
		return formula.Int(0)
	case entity.DataTypeFloat:
		return formula.Float(0)
	case entity.DataTypeBool:
		return formula.Bool(false)
	case entity.DataTypeString:
		return formula.String("")
	}
	return formula.Null()
}

// coerce converts a transport value to dt. Slices are coerced element-wise.
// An unknown data type passes the value through unchanged.
func coerce(dt entity.DataType, tag string, raw any) (formula.Value, error) {
	if items, ok := raw.([]any); ok {
		elems := make([]formula.Value, len(items))
		for i, item := range items {
			if _, nested := item.([]any); nested {
				return formula.Value{}, invalidInput(dt, tag, raw)
			}
			v, err := coerce(dt, tag, item)
			if err != nil {
				return formula.Value{}, err
			}
			elems[i] = v
		}
		return formula.Array(elems...), nil
	}

	var (
		v  formula.Value
		ok bool
	)
	switch dt {
	case entity.DataTypeInt:
		v, ok = toInt(raw)
	case entity.DataTypeFloat:
		v, ok = toFloat(raw)
	case entity.DataTypeBool:
		v, ok = toBool(raw)
	case entity.DataTypeString:
		v, ok = toString(raw)
	default:
		v, ok = formula.FromGo(raw), true
	}
	if !ok {
		return formula.Value{}, invalidInput(dt, tag, raw)
	}
	return v, nil
}

func invalidInput(dt entity.DataType, tag string, raw any) error {
	return &InputError{Kind: ErrInvalidInput, Tag: tag, DataType: dt, Raw: raw}
}

// number extracts a finite numeric payload from JSON-ish transport values
func number(raw any) (float64, int64, bool, bool) {
	switch val := raw.(type) {
	case int:
		return float64(val), int64(val), true, true
	case int32:
		return float64(val), int64(val), true, true
	case int64:
		return float64(val), val, true, true
	case float32:
		return floatNumber(float64(val))
	case float64:
		return floatNumber(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return float64(i), i, true, true
		}
		f, err := val.Float64()
		if err != nil {
			return 0, 0, false, false
		}
		return floatNumber(f)
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return float64(i), i, true, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, 0, false, false
		}
		return floatNumber(f)
	}
	return 0, 0, false, false
}

// floatNumber reports f and, when f is integral and fits, its int64 form
func floatNumber(f float64) (float64, int64, bool, bool) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, 0, false, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return f, int64(f), true, true
	}
	return f, 0, false, true
}

func toInt(raw any) (formula.Value, bool) {
	if b, isBool := raw.(bool); isBool {
		if b {
			return formula.Int(1), true
		}
		return formula.Int(0), true
	}
	_, i, integral, ok := number(raw)
	if !ok || !integral {
		return formula.Value{}, false
	}
	return formula.Int(i), true
}

func toFloat(raw any) (formula.Value, bool) {
	if b, isBool := raw.(bool); isBool {
		if b {
			return formula.Float(1), true
		}
		return formula.Float(0), true
	}
	f, _, _, ok := number(raw)
	if !ok {
		return formula.Value{}, false
	}
	return formula.Float(f), true
}

var transportBools = map[string]bool{
	"true": true, "1": true, "on": true, "yes": true, "t": true,
	"false": false, "0": false, "off": false, "no": false, "f": false, "": false,
}

func toBool(raw any) (formula.Value, bool) {
	switch val := raw.(type) {
	case bool:
		return formula.Bool(val), true
	case string:
		b, ok := transportBools[strings.ToLower(strings.TrimSpace(val))]
		return formula.Bool(b), ok
	}
	_, i, integral, ok := number(raw)
	if !ok || !integral || (i != 0 && i != 1) {
		return formula.Value{}, false
	}
	return formula.Bool(i == 1), true
}

func toString(raw any) (formula.Value, bool) {
	switch val := raw.(type) {
	case string:
		return formula.String(val), true
	case bool:
		return formula.String(strconv.FormatBool(val)), true
	}
	f, i, integral, ok := number(raw)
	if !ok {
		return formula.String(fmt.Sprintf("%v", raw)), true
	}
	if integral {
		return formula.String(strconv.FormatInt(i, 10)), true
	}
	return formula.String(strconv.FormatFloat(f, 'f', -1, 64)), true
}
