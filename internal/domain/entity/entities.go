package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DataType is the declared type a variable's value is coerced to
type DataType string

const (
	DataTypeInt    DataType = "int"
	DataTypeFloat  DataType = "float"
	DataTypeBool   DataType = "bool"
	DataTypeString DataType = "string"
)

// Valid reports whether t is one of the supported data types
func (t DataType) Valid() bool {
	switch t {
	case DataTypeInt, DataTypeFloat, DataTypeBool, DataTypeString:
		return true
	}
	return false
}

// WidgetCheckbox never makes a variable required
const WidgetCheckbox = "checkbox"

// Calculator groups variables and prices under one id
type Calculator struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Variable is either a user input (Widget set) or a computed value (Formula set)
type Variable struct {
	ID           uuid.UUID `json:"id"`
	CalculatorID uuid.UUID `json:"calculator_id"`
	TagName      string    `json:"tag_name"`
	Name         string    `json:"name"`
	DataType     DataType  `json:"data_type"`
	DefaultValue any       `json:"default_value,omitempty"`
	Formula      string    `json:"formula,omitempty"`
	Widget       string    `json:"widget,omitempty"`
	IsOutput     bool      `json:"is_output"`
	Required     bool      `json:"required"`
	Order        int       `json:"order"`
}

// IsInput reports whether the variable is supplied directly by the user
func (v *Variable) IsInput() bool {
	return v.Widget != ""
}

// IsComputed reports whether the pipeline evaluates the variable's formula
func (v *Variable) IsComputed() bool {
	return v.Formula != "" && v.Widget == ""
}

// IsRequired applies the checkbox override to the declared flag
func (v *Variable) IsRequired() bool {
	return v.Required && v.Widget != WidgetCheckbox
}

// DefaultValueJSON returns default_value as JSON bytes
func (v *Variable) DefaultValueJSON() ([]byte, error) {
	return json.Marshal(v.DefaultValue)
}

// Price is one row of a calculator's conditional price table
type Price struct {
	ID           uuid.UUID      `json:"id"`
	CalculatorID uuid.UUID      `json:"calculator_id"`
	TagName      string         `json:"tag_name"`
	Price        float64        `json:"price"`
	Extra        map[string]any `json:"extra,omitempty"` // suffix-keyed filter, e.g. {"qty__gte": 100}
	Order        int            `json:"order"`
	Description  string         `json:"description,omitempty"`
}

// ExtraJSON returns extra as JSON bytes
func (p *Price) ExtraJSON() ([]byte, error) {
	if p.Extra == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Extra)
}

// Output is a formatted result for an is_output variable
type Output struct {
	Name    string `json:"name"`
	TagName string `json:"tag_name"`
	Value   any    `json:"value"`
}

// Snapshot is a consistent read of everything a calculation needs
type Snapshot struct {
	Calculator Calculator `json:"calculator"`
	Variables  []Variable `json:"variables"`
	Prices     []Price    `json:"prices"`
}
