package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
)

// ErrNotFound is returned when a requested calculator does not exist
var ErrNotFound = errors.New("not found")

// CalculatorRepository defines the read side the calculation engine depends on
type CalculatorRepository interface {
	// Snapshot loads the calculator with its variables and prices in one consistent read
	Snapshot(ctx context.Context, id uuid.UUID) (*entity.Snapshot, error)
	// GetByID retrieves a calculator by ID
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Calculator, error)
	// Create creates a new calculator
	Create(ctx context.Context, calc *entity.Calculator) error
	// CreateVariablesBatch inserts variables using COPY protocol
	CreateVariablesBatch(ctx context.Context, vars []entity.Variable) (int64, error)
	// CreatePricesBatch inserts price rows using COPY protocol
	CreatePricesBatch(ctx context.Context, prices []entity.Price) (int64, error)
}
