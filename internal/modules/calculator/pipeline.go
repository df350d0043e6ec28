package calculator

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
	"github.com/ilramdhan/calculator-engine/internal/modules/pricing"
	"github.com/ilramdhan/calculator-engine/pkg/formula"
)

// Stage is a step of one pipeline run
type Stage int

const (
	StageBuilding Stage = iota
	StageResolving
	StageFormatting
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageBuilding:
		return "building"
	case StageResolving:
		return "resolving"
	case StageFormatting:
		return "formatting"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// PipelineError is an unrecoverable failure at a given stage
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed while %s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

// FormulaError is a per-variable failure that does not stop the pipeline
type FormulaError struct {
	TagName string `json:"tag_name"`
	Message string `json:"message"`
}

func (e FormulaError) Error() string {
	return fmt.Sprintf("Error in variable %s: %s", e.TagName, e.Message)
}

// FormatErrors joins failures into a single message
func FormatErrors(errs []FormulaError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Result is the outcome of a completed pipeline run
type Result struct {
	Env      formula.Env     `json:"context"`
	Outputs  []entity.Output `json:"outputs"`
	Failures []FormulaError  `json:"failures,omitempty"`
	Stage    Stage           `json:"-"`
}

// Engine runs calculations. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	parser *formula.Parser
	logger *zap.Logger
}

// NewEngine creates a new calculation engine. A nil parser uses formula.DefaultParser
// and a nil logger discards output.
func NewEngine(parser *formula.Parser, logger *zap.Logger) *Engine {
	if parser == nil {
		parser = formula.DefaultParser
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{parser: parser, logger: logger}
}

// Run computes every variable of a calculator from raw user input.
// A formula that fails leaves its variable at the value it was seeded with.
func (e *Engine) Run(vars []entity.Variable, prices []entity.Price, raw map[string]any) (*Result, error) {
	return e.RunContext(context.Background(), vars, prices, raw)
}

// RunContext is Run with cancellation checked between formulas. A cancelled
// run fails with a PipelineError at StageResolving.
func (e *Engine) RunContext(ctx context.Context, vars []entity.Variable, prices []entity.Price, raw map[string]any) (*Result, error) {
	sorted := SortVariables(vars)

	stage := StageBuilding
	env, err := BuildContext(sorted, raw)
	if err != nil {
		return nil, &PipelineError{Stage: stage, Err: err}
	}

	stage = e.advance(stage, StageResolving)
	failures, err := e.resolve(ctx, sorted, env, pricing.NewTable(prices))
	if err != nil {
		return nil, &PipelineError{Stage: stage, Err: err}
	}
	for _, f := range failures {
		e.logger.Debug("formula evaluation failed, keeping previous value",
			zap.String("tag", f.TagName),
			zap.String("error", f.Message),
		)
	}

	stage = e.advance(stage, StageFormatting)
	outputs := FormatOutputs(sorted, env)

	return &Result{
		Env:      env,
		Outputs:  outputs,
		Failures: failures,
		Stage:    e.advance(stage, StageDone),
	}, nil
}

func (e *Engine) advance(from, to Stage) Stage {
	e.logger.Debug("pipeline stage", zap.Stringer("from", from), zap.Stringer("to", to))
	return to
}

// resolve evaluates computed variables in order, binding each result into env
func (e *Engine) resolve(ctx context.Context, sorted []entity.Variable, env formula.Env, table *pricing.Table) ([]FormulaError, error) {
	prices := table.PriceFunc(env)
	var failures []FormulaError

	for i := range sorted {
		v := &sorted[i]
		if !v.IsComputed() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		tag := strings.ToLower(v.TagName)
		value, err := e.parser.Evaluate(v.Formula, env, prices)
		if err != nil {
			failures = append(failures, FormulaError{TagName: tag, Message: err.Error()})
			continue
		}
		env[tag] = value
	}
	return failures, nil
}

// Evaluate runs a single formula against env, resolving price() through rows
func Evaluate(src string, env formula.Env, prices []entity.Price) (formula.Value, error) {
	return formula.Evaluate(src, env, pricing.NewTable(prices).PriceFunc(env))
}

// FormatOutputs renders every output variable that holds a non-null value.
// Floats, and numbers held by float variables, use two decimals.
func FormatOutputs(sorted []entity.Variable, env formula.Env) []entity.Output {
	outputs := make([]entity.Output, 0)
	for i := range sorted {
		v := &sorted[i]
		if !v.IsOutput {
			continue
		}
		tag := strings.ToLower(v.TagName)
		value, ok := env[tag]
		if !ok || value.IsNull() {
			continue
		}
		outputs = append(outputs, entity.Output{
			Name:    v.Name,
			TagName: tag,
			Value:   formatValue(value, v.DataType),
		})
	}
	return outputs
}

func formatValue(v formula.Value, dt entity.DataType) any {
	switch v.Kind() {
	case formula.KindArray:
		out := make([]any, v.Len())
		for i, e := range v.Elems() {
			out[i] = formatValue(e, dt)
		}
		return out
	case formula.KindFloat:
		f, _ := v.AsFloat()
		return strconv.FormatFloat(f, 'f', 2, 64)
	case formula.KindInt:
		if dt == entity.DataTypeFloat {
			f, _ := v.AsFloat()
			return strconv.FormatFloat(f, 'f', 2, 64)
		}
	}
	return v.GoValue()
}
