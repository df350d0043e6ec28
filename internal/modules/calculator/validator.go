package calculator

import (
	"context"
	"fmt"
	"strings"

	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
	"github.com/ilramdhan/calculator-engine/internal/modules/pricing"
	"github.com/ilramdhan/calculator-engine/pkg/formula"
)

// ValidateAll dry-runs a proposed variable list against default values and
// reports every problem found, in variable order per check. An empty result
// means the list is safe to persist.
func (e *Engine) ValidateAll(vars []entity.Variable, prices []entity.Price) []FormulaError {
	sorted := SortVariables(vars)

	failures := checkDeclarations(sorted)

	env, defaultFailures := BuildDefaults(sorted)
	failures = append(failures, defaultFailures...)

	evalFailures, _ := e.resolve(context.Background(), sorted, env, pricing.NewTable(prices))
	failures = append(failures, evalFailures...)

	failed := make(map[string]bool, len(evalFailures))
	for _, f := range evalFailures {
		failed[f.TagName] = true
	}
	failures = append(failures, e.checkForwardReferences(sorted, failed)...)

	return failures
}

func checkDeclarations(sorted []entity.Variable) []FormulaError {
	var failures []FormulaError
	seen := make(map[string]bool, len(sorted))

	for i := range sorted {
		v := &sorted[i]
		tag := strings.ToLower(v.TagName)
		switch {
		case !formula.IsIdentifier(tag):
			failures = append(failures, FormulaError{TagName: v.TagName,
				Message: fmt.Sprintf("InvalidTagName: %q is not a valid identifier", v.TagName)})
		case formula.IsKeyword(tag) || formula.IsBuiltin(tag):
			failures = append(failures, FormulaError{TagName: tag,
				Message: fmt.Sprintf("ReservedWord: %s cannot be used as a tag name", tag)})
		case seen[tag]:
			failures = append(failures, FormulaError{TagName: tag,
				Message: fmt.Sprintf("DuplicateTag: %s is declared more than once", tag)})
		}
		seen[tag] = true

		if v.DataType != "" && !v.DataType.Valid() {
			failures = append(failures, FormulaError{TagName: tag,
				Message: fmt.Sprintf("InvalidDataType: %q is not one of int, float, bool, string", v.DataType)})
		}
	}
	return failures
}

// checkForwardReferences flags formulas that read a computed variable declared
// later. Such a formula would silently see the later variable's seed value.
func (e *Engine) checkForwardReferences(sorted []entity.Variable, skip map[string]bool) []FormulaError {
	position := make(map[string]int, len(sorted))
	for i := range sorted {
		tag := strings.ToLower(sorted[i].TagName)
		if _, ok := position[tag]; !ok {
			position[tag] = i
		}
	}

	var failures []FormulaError
	for i := range sorted {
		v := &sorted[i]
		tag := strings.ToLower(v.TagName)
		if !v.IsComputed() || skip[tag] {
			continue
		}
		program, err := e.parser.Compile(v.Formula)
		if err != nil {
			continue
		}
		for _, ident := range program.Identifiers() {
			j, ok := position[strings.ToLower(ident)]
			if !ok || j <= i || !sorted[j].IsComputed() {
				continue
			}
			failures = append(failures, FormulaError{TagName: tag,
				Message: fmt.Sprintf("ForwardReference: %s is computed after %s", strings.ToLower(ident), tag)})
			break
		}
	}
	return failures
}
