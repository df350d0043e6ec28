package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
	"github.com/ilramdhan/calculator-engine/internal/domain/repository"
	"github.com/ilramdhan/calculator-engine/internal/modules/calculator"
	"github.com/ilramdhan/calculator-engine/pkg/formula"
)

type memoryStore struct {
	snapshots map[uuid.UUID]*entity.Snapshot
	err       error
}

func (m *memoryStore) Snapshot(_ context.Context, id uuid.UUID) (*entity.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.snapshots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return s, nil
}

func newTestApp(t *testing.T, store SnapshotLoader, maxBatch int) *fiber.App {
	t.Helper()
	engine := calculator.NewEngine(formula.NewParser(64), nil)
	pool := calculator.NewWorkerPool(engine, nil, 2, 2)

	app := fiber.New()
	NewHandler(store, engine, pool, maxBatch, nil).Register(app)
	return app
}

func printJob(id uuid.UUID) *entity.Snapshot {
	return &entity.Snapshot{
		Calculator: entity.Calculator{ID: id, Name: "Print job"},
		Variables: []entity.Variable{
			{TagName: "qty", Name: "Quantity", DataType: entity.DataTypeInt, Widget: "number", DefaultValue: 2.0, Order: 1},
			{TagName: "unit_price", Name: "Unit price", Formula: `price("item")`, Order: 2},
			{TagName: "total", Name: "Total", DataType: entity.DataTypeFloat, Formula: "qty * unit_price", IsOutput: true, Order: 3},
		},
		Prices: []entity.Price{
			{TagName: "item", Price: 9.5, Order: 1},
			{TagName: "item", Price: 8, Extra: map[string]any{"qty__gte": 10}, Order: 2},
		},
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHandler_Health(t *testing.T) {
	app := newTestApp(t, &memoryStore{}, 10)

	status, body := doJSON(t, app, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"status":"healthy"`)
}

func TestHandler_Calculate(t *testing.T) {
	id := uuid.New()
	app := newTestApp(t, &memoryStore{snapshots: map[uuid.UUID]*entity.Snapshot{id: printJob(id)}}, 10)
	path := "/api/v1/calculators/" + id.String() + "/calculate"

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty body uses defaults", "", "19.00"},
		{"empty object uses defaults", "{}", "19.00"},
		{"bulk price row matches", `{"qty": 10}`, "80.00"},
		{"numeric string is coerced", `{"QTY": "4"}`, "38.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, app, http.MethodPost, path, tt.body)
			require.Equal(t, http.StatusOK, status, string(body))

			var outputs []entity.Output
			require.NoError(t, json.Unmarshal(body, &outputs))
			require.Len(t, outputs, 1)
			assert.Equal(t, "total", outputs[0].TagName)
			assert.Equal(t, tt.want, outputs[0].Value)
		})
	}
}

func TestHandler_Calculate_Verbose(t *testing.T) {
	id := uuid.New()
	app := newTestApp(t, &memoryStore{snapshots: map[uuid.UUID]*entity.Snapshot{id: printJob(id)}}, 10)

	status, body := doJSON(t, app, http.MethodPost, "/api/v1/calculators/"+id.String()+"/calculate?verbose=true", "{}")
	require.Equal(t, http.StatusOK, status)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Contains(t, got, "context")
	assert.Contains(t, got, "outputs")

	ctx := got["context"].(map[string]any)
	assert.EqualValues(t, 2, ctx["qty"])
	assert.EqualValues(t, 9.5, ctx["unit_price"])
}

func TestHandler_Calculate_Errors(t *testing.T) {
	id := uuid.New()
	store := &memoryStore{snapshots: map[uuid.UUID]*entity.Snapshot{id: printJob(id)}}

	tests := []struct {
		name     string
		store    SnapshotLoader
		path     string
		body     string
		status   int
		contains string
	}{
		{"invalid id", store, "/api/v1/calculators/not-a-uuid/calculate", "{}", http.StatusBadRequest, "invalid id"},
		{"unknown calculator", store, "/api/v1/calculators/" + uuid.NewString() + "/calculate", "{}", http.StatusNotFound, "Calculator not found"},
		{"store failure", &memoryStore{err: errors.New("connection reset")}, "/api/v1/calculators/" + id.String() + "/calculate", "{}", http.StatusInternalServerError, "internal error"},
		{"invalid input", store, "/api/v1/calculators/" + id.String() + "/calculate", `{"qty": "many"}`, http.StatusBadRequest, "InvalidInput"},
		{"malformed body", store, "/api/v1/calculators/" + id.String() + "/calculate", `{"qty":`, http.StatusBadRequest, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, tt.store, 10)
			status, body := doJSON(t, app, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestHandler_Calculate_MissingRequired(t *testing.T) {
	id := uuid.New()
	snapshot := printJob(id)
	snapshot.Variables[0].Required = true
	app := newTestApp(t, &memoryStore{snapshots: map[uuid.UUID]*entity.Snapshot{id: snapshot}}, 10)

	status, body := doJSON(t, app, http.MethodPost, "/api/v1/calculators/"+id.String()+"/calculate", "{}")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "MissingRequiredInput: qty is required")
	assert.Contains(t, string(body), `"tag":"qty"`)
}

func TestHandler_CalculateBatch(t *testing.T) {
	id := uuid.New()
	app := newTestApp(t, &memoryStore{snapshots: map[uuid.UUID]*entity.Snapshot{id: printJob(id)}}, 3)
	path := "/api/v1/calculators/" + id.String() + "/calculate/batch"

	status, body := doJSON(t, app, http.MethodPost, path, `{"inputs": [{}, {"qty": 10}, {"qty": "x"}]}`)
	require.Equal(t, http.StatusOK, status, string(body))

	var got struct {
		Results []calculator.BatchResult `json:"results"`
		Stats   calculator.BatchStats    `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(body, &got))

	require.Len(t, got.Results, 3)
	assert.Equal(t, "19.00", got.Results[0].Outputs[0].Value)
	assert.Equal(t, "80.00", got.Results[1].Outputs[0].Value)
	assert.Contains(t, got.Results[2].Error, "InvalidInput")
	assert.Equal(t, 3, got.Stats.Total)
	assert.EqualValues(t, 2, got.Stats.Processed)
	assert.EqualValues(t, 1, got.Stats.Failed)
}

func TestHandler_CalculateBatch_Rejects(t *testing.T) {
	id := uuid.New()
	app := newTestApp(t, &memoryStore{snapshots: map[uuid.UUID]*entity.Snapshot{id: printJob(id)}}, 2)
	path := "/api/v1/calculators/" + id.String() + "/calculate/batch"

	tests := []struct {
		name     string
		body     string
		contains string
	}{
		{"empty inputs", `{"inputs": []}`, "inputs must not be empty"},
		{"over the limit", `{"inputs": [{}, {}, {}]}`, "too many inputs"},
		{"malformed body", `{"inputs": 3}`, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, app, http.MethodPost, path, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Contains(t, string(body), tt.contains)
		})
	}
}

func TestHandler_ValidateVariables(t *testing.T) {
	id := uuid.New()
	app := newTestApp(t, &memoryStore{snapshots: map[uuid.UUID]*entity.Snapshot{id: printJob(id)}}, 10)
	path := "/api/v1/calculators/" + id.String() + "/variables/validate"

	t.Run("valid list", func(t *testing.T) {
		body := `[
			{"tag_name": "qty", "name": "Quantity", "data_type": "int", "widget": "number", "default_value": 5, "order": 1},
			{"tag_name": "total", "name": "Total", "data_type": "float", "formula": "qty * price(\"item\")", "is_output": true, "order": 2}
		]`
		status, resp := doJSON(t, app, http.MethodPost, path, body)
		assert.Equal(t, http.StatusOK, status, string(resp))
		assert.Contains(t, string(resp), "Variables are valid")
	})

	t.Run("unknown variable", func(t *testing.T) {
		body := `[
			{"tag_name": "qty", "name": "Quantity", "data_type": "int", "widget": "number", "order": 1},
			{"tag_name": "total", "name": "Total", "formula": "qty + shipping", "is_output": true, "order": 2}
		]`
		status, resp := doJSON(t, app, http.MethodPost, path, body)
		require.Equal(t, http.StatusBadRequest, status)

		var got struct {
			Detail string                    `json:"detail"`
			Errors []calculator.FormulaError `json:"errors"`
		}
		require.NoError(t, json.Unmarshal(resp, &got))
		require.Len(t, got.Errors, 1)
		assert.Equal(t, "total", got.Errors[0].TagName)
		assert.Equal(t, "Error in variable total: UnknownVariable: shipping is not defined", got.Detail)
	})
}
