package calculator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
	"github.com/ilramdhan/calculator-engine/pkg/formula"
)

func scenarioVariables() []entity.Variable {
	return []entity.Variable{
		{TagName: "total", Name: "Total", Formula: "qty * unit_price", IsOutput: true, Order: 3},
		{TagName: "qty", Name: "Quantity", DefaultValue: 2.0, Order: 1},
		{TagName: "unit_price", Name: "Unit price", Formula: `price("item")`, Order: 2},
	}
}

func TestEngine_Run_PricedTotal(t *testing.T) {
	engine := NewEngine(formula.NewParser(0), nil)
	prices := []entity.Price{{TagName: "item", Price: 9.5, Order: 1}}

	result, err := engine.Run(scenarioVariables(), prices, nil)
	require.NoError(t, err)

	assert.Equal(t, StageDone, result.Stage)
	assert.Equal(t, []entity.Output{{Name: "Total", TagName: "total", Value: "19.00"}}, result.Outputs)
	assert.Empty(t, result.Failures)
	assert.Len(t, result.Env, 3)
	assert.Equal(t, formula.Float(9.5), result.Env["unit_price"])
}

func TestEngine_Run_MissingRequiredInput(t *testing.T) {
	engine := NewEngine(nil, nil)
	vars := []entity.Variable{
		{TagName: "qty", DataType: entity.DataTypeInt, Widget: "number", Required: true, Order: 1},
		{TagName: "boom", Formula: "1 / 0", IsOutput: true, Order: 2},
	}

	result, err := engine.Run(vars, nil, map[string]any{})
	require.Error(t, err)
	assert.Nil(t, result)

	var pipelineErr *PipelineError
	require.True(t, errors.As(err, &pipelineErr))
	assert.Equal(t, StageBuilding, pipelineErr.Stage)
	assert.True(t, errors.Is(err, ErrMissingRequiredInput))
}

func TestEngine_Run_StagesInOrder(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	engine := NewEngine(nil, zap.New(core))

	result, err := engine.Run(scenarioVariables(), []entity.Price{{TagName: "item", Price: 9.5}}, nil)
	require.NoError(t, err)
	assert.Equal(t, StageDone, result.Stage)

	transitions := logs.FilterMessage("pipeline stage").All()
	require.Len(t, transitions, 3)
	var reached []any
	for _, entry := range transitions {
		reached = append(reached, entry.ContextMap()["to"])
	}
	assert.Equal(t, []any{"resolving", "formatting", "done"}, reached)
}

func TestEngine_RunContext_CancelledWhileResolving(t *testing.T) {
	engine := NewEngine(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := engine.RunContext(ctx, scenarioVariables(), nil, nil)
	require.Error(t, err)
	assert.Nil(t, result)

	var pipelineErr *PipelineError
	require.True(t, errors.As(err, &pipelineErr))
	assert.Equal(t, StageResolving, pipelineErr.Stage)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "pipeline failed while resolving: context canceled", err.Error())
}

func TestEngine_Run_FailureKeepsPreviousValue(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	engine := NewEngine(formula.NewParser(0), zap.New(core))

	vars := []entity.Variable{
		{TagName: "qty", DataType: entity.DataTypeInt, Widget: "number", Order: 1},
		{TagName: "ratio", DataType: entity.DataTypeFloat, DefaultValue: 1.0, Formula: "10 / qty", IsOutput: true, Order: 2},
		{TagName: "doubled", Formula: "ratio * 2", IsOutput: true, Order: 3},
	}

	result, err := engine.Run(vars, nil, map[string]any{"qty": 0})
	require.NoError(t, err)

	assert.Equal(t, formula.Float(1), result.Env["ratio"])
	assert.Equal(t, formula.Float(2), result.Env["doubled"])
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "ratio", result.Failures[0].TagName)
	assert.Contains(t, result.Failures[0].Message, "DivisionByZero")
	assert.Equal(t, 1, logs.FilterMessage("formula evaluation failed, keeping previous value").Len())
}

func TestEngine_Run_WidgetInputWinsOverFormula(t *testing.T) {
	engine := NewEngine(nil, nil)
	vars := []entity.Variable{
		{TagName: "qty", DataType: entity.DataTypeInt, Widget: "number", Formula: "99", IsOutput: true, Order: 1},
	}

	result, err := engine.Run(vars, nil, map[string]any{"qty": 4.0})
	require.NoError(t, err)
	assert.Equal(t, []entity.Output{{TagName: "qty", Value: int64(4)}}, result.Outputs)
}

func TestEngine_Run_ForwardReferenceSeesSeedValue(t *testing.T) {
	engine := NewEngine(nil, nil)
	vars := []entity.Variable{
		{TagName: "early", Formula: "late + 1", Order: 1},
		{TagName: "late", DataType: entity.DataTypeInt, DefaultValue: 10.0, Formula: "100", Order: 2},
	}

	result, err := engine.Run(vars, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, formula.Int(11), result.Env["early"])
	assert.Equal(t, formula.Int(100), result.Env["late"])
}

func TestEngine_Run_ConditionalPricing(t *testing.T) {
	engine := NewEngine(nil, nil)
	vars := []entity.Variable{
		{TagName: "qty", DataType: entity.DataTypeInt, Widget: "number", Required: true, Order: 1},
		{TagName: "paper", DataType: entity.DataTypeString, Widget: "select", Order: 2},
		{TagName: "unit", Formula: `price("sheet"; 1)`, Order: 3},
		{TagName: "subtotal", Name: "Subtotal", DataType: entity.DataTypeFloat, Formula: "qty * unit", IsOutput: true, Order: 4},
		{TagName: "label", Name: "Label", Formula: `if(qty >= 100; "bulk"; "retail")`, IsOutput: true, Order: 5},
	}
	prices := []entity.Price{
		{TagName: "sheet", Price: 0.50, Order: 1},
		{TagName: "sheet", Price: 0.40, Order: 2, Extra: map[string]any{"qty__gte": 100.0}},
		{TagName: "sheet", Price: 0.45, Order: 3, Extra: map[string]any{"qty__gte": 100.0, "paper__in": []any{"glossy"}}},
	}

	testCases := []struct {
		name     string
		raw      map[string]any
		subtotal string
		label    string
	}{
		{name: "retail", raw: map[string]any{"qty": 10.0, "paper": "matte"}, subtotal: "5.00", label: "retail"},
		{name: "bulk matte", raw: map[string]any{"qty": 200.0, "paper": "matte"}, subtotal: "80.00", label: "bulk"},
		{name: "bulk glossy", raw: map[string]any{"qty": 200.0, "paper": "glossy"}, subtotal: "90.00", label: "bulk"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := engine.Run(vars, prices, tc.raw)
			require.NoError(t, err)
			assert.Equal(t, []entity.Output{
				{Name: "Subtotal", TagName: "subtotal", Value: tc.subtotal},
				{Name: "Label", TagName: "label", Value: tc.label},
			}, result.Outputs)
		})
	}
}

func TestFormatOutputs(t *testing.T) {
	vars := []entity.Variable{
		{TagName: "a", Name: "A", DataType: entity.DataTypeFloat, IsOutput: true, Order: 1},
		{TagName: "b", Name: "B", DataType: entity.DataTypeInt, IsOutput: true, Order: 2},
		{TagName: "c", Name: "C", IsOutput: true, Order: 3},
		{TagName: "d", Name: "D", IsOutput: true, Order: 4},
		{TagName: "e", Name: "E", IsOutput: false, Order: 5},
		{TagName: "f", Name: "F", IsOutput: true, Order: 6},
	}
	env := formula.Env{
		"a": formula.Int(3),
		"b": formula.Int(0),
		"c": formula.Array(formula.Float(1.005), formula.Int(2)),
		"d": formula.Null(),
		"e": formula.Float(1),
		"f": formula.Bool(false),
	}

	outputs := FormatOutputs(vars, env)

	assert.Equal(t, []entity.Output{
		{Name: "A", TagName: "a", Value: "3.00"},
		{Name: "B", TagName: "b", Value: int64(0)},
		{Name: "C", TagName: "c", Value: []any{"1.00", int64(2)}},
		{Name: "F", TagName: "f", Value: false},
	}, outputs)
}

func TestEvaluate(t *testing.T) {
	env := formula.Env{"qty": formula.Int(3)}
	prices := []entity.Price{{TagName: "item", Price: 2, Order: 1}}

	value, err := Evaluate(`qty * price("item")`, env, prices)
	require.NoError(t, err)
	assert.Equal(t, formula.Float(6), value)

	_, err = Evaluate("qty +", env, prices)
	var syntaxErr *formula.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}

func TestFormatErrors(t *testing.T) {
	msg := FormatErrors([]FormulaError{
		{TagName: "a", Message: "UnknownVariable: b is not defined"},
		{TagName: "c", Message: "SyntaxError: expected a value at position 3"},
	})

	assert.Equal(t, "Error in variable a: UnknownVariable: b is not defined; Error in variable c: SyntaxError: expected a value at position 3", msg)
	assert.Equal(t, "", FormatErrors(nil))
}

func BenchmarkEngine_Run(b *testing.B) {
	engine := NewEngine(formula.NewParser(0), nil)
	vars := scenarioVariables()
	prices := []entity.Price{{TagName: "item", Price: 9.5, Order: 1}}
	raw := map[string]any{"qty": 7.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Run(vars, prices, raw)
	}
}
