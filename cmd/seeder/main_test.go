package main

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilramdhan/calculator-engine/internal/modules/calculator"
)

func TestPrintJob_IsValid(t *testing.T) {
	id := uuid.New()
	engine := calculator.NewEngine(nil, nil)

	assert.Empty(t, engine.ValidateAll(printJobVariables(id), printJobPrices(id)))
}

func TestPrintJob_Quotes(t *testing.T) {
	id := uuid.New()
	engine := calculator.NewEngine(nil, nil)
	vars := printJobVariables(id)
	prices := printJobPrices(id)

	tests := []struct {
		name         string
		input        map[string]any
		wantSubtotal string
		wantTotal    string
	}{
		{"base price", map[string]any{"qty": 100}, "50.00", "50.00"},
		{"glossy short run with setup", map[string]any{"qty": 100, "paper": "glossy"}, "65.00", "80.00"},
		{"bulk tier double sided", map[string]any{"qty": 1000, "paper": "linen", "double_sided": true}, "700.00", "715.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Run(vars, prices, tt.input)
			require.NoError(t, err)
			require.Empty(t, result.Failures)
			require.Len(t, result.Outputs, 2)
			assert.Equal(t, "subtotal", result.Outputs[0].TagName)
			assert.Equal(t, tt.wantSubtotal, result.Outputs[0].Value)
			assert.Equal(t, "total", result.Outputs[1].TagName)
			assert.Equal(t, tt.wantTotal, result.Outputs[1].Value)
		})
	}
}

func TestPrintJob_IDs(t *testing.T) {
	id := uuid.New()
	for i, v := range printJobVariables(id) {
		assert.Equal(t, id, v.CalculatorID)
		assert.Equal(t, i+1, v.Order)
		assert.NotEqual(t, uuid.Nil, v.ID)
	}
	for _, p := range printJobPrices(id) {
		assert.Equal(t, id, p.CalculatorID)
	}
}
