package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
	"github.com/ilramdhan/calculator-engine/internal/domain/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// calculatorRepo implements repository.CalculatorRepository
type calculatorRepo struct {
	pool *pgxpool.Pool
}

// NewCalculatorRepository creates a new calculator repository
func NewCalculatorRepository(pool *pgxpool.Pool) repository.CalculatorRepository {
	return &calculatorRepo{pool: pool}
}

// Snapshot reads the calculator, its variables and its prices in one read-only
// repeatable-read transaction so all three come from the same point in time
func (r *calculatorRepo) Snapshot(ctx context.Context, id uuid.UUID) (*entity.Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	calc, err := getCalculator(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	vars, err := listVariables(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load variables: %w", err)
	}

	prices, err := listPrices(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load prices: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	return &entity.Snapshot{Calculator: *calc, Variables: vars, Prices: prices}, nil
}

func (r *calculatorRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Calculator, error) {
	return getCalculator(ctx, r.pool, id)
}

func (r *calculatorRepo) Create(ctx context.Context, calc *entity.Calculator) error {
	query := `
		INSERT INTO calculators (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, calc.ID, calc.Name, calc.Description, calc.CreatedAt, calc.UpdatedAt)
	return err
}

// CreateVariablesBatch uses PostgreSQL COPY protocol for bulk inserts
func (r *calculatorRepo) CreateVariablesBatch(ctx context.Context, vars []entity.Variable) (int64, error) {
	columns := []string{
		"id", "calculator_id", "tag_name", "name", "data_type", "default_value",
		"formula", "widget", "is_output", "required", "sequence_order",
	}

	copyCount, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"variables"},
		columns,
		pgx.CopyFromSlice(len(vars), func(i int) ([]any, error) {
			v := &vars[i]
			var defaultValue []byte
			if v.DefaultValue != nil {
				b, err := v.DefaultValueJSON()
				if err != nil {
					return nil, fmt.Errorf("variable %s: %w", v.TagName, err)
				}
				defaultValue = b
			}
			return []any{
				v.ID, v.CalculatorID, v.TagName, v.Name, string(v.DataType), defaultValue,
				nullString(v.Formula), nullString(v.Widget), v.IsOutput, v.Required, v.Order,
			}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy variables: %w", err)
	}

	return copyCount, nil
}

// CreatePricesBatch uses PostgreSQL COPY protocol for bulk inserts
func (r *calculatorRepo) CreatePricesBatch(ctx context.Context, prices []entity.Price) (int64, error) {
	columns := []string{"id", "calculator_id", "tag_name", "price", "extra", "sequence_order", "description"}

	rows := make([][]any, len(prices))
	for i := range prices {
		p := &prices[i]
		extra, err := p.ExtraJSON()
		if err != nil {
			return 0, fmt.Errorf("price %s: %w", p.TagName, err)
		}
		rows[i] = []any{p.ID, p.CalculatorID, p.TagName, p.Price, extra, p.Order, p.Description}
	}

	copyCount, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"prices"},
		columns,
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to copy prices: %w", err)
	}

	return copyCount, nil
}

func getCalculator(ctx context.Context, q querier, id uuid.UUID) (*entity.Calculator, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), created_at, updated_at
		FROM calculators WHERE id = $1
	`
	var calc entity.Calculator
	err := q.QueryRow(ctx, query, id).Scan(&calc.ID, &calc.Name, &calc.Description, &calc.CreatedAt, &calc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("calculator %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calculator: %w", err)
	}
	return &calc, nil
}

func listVariables(ctx context.Context, q querier, calculatorID uuid.UUID) ([]entity.Variable, error) {
	query := `
		SELECT id, calculator_id, LOWER(tag_name), name, data_type, default_value,
		       COALESCE(formula, ''), COALESCE(widget, ''), is_output, required, sequence_order
		FROM variables
		WHERE calculator_id = $1
		ORDER BY sequence_order, created_at
	`
	rows, err := q.Query(ctx, query, calculatorID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Variable, error) {
		var v entity.Variable
		var dataType string
		err := row.Scan(&v.ID, &v.CalculatorID, &v.TagName, &v.Name, &dataType, &v.DefaultValue,
			&v.Formula, &v.Widget, &v.IsOutput, &v.Required, &v.Order)
		v.DataType = entity.DataType(dataType)
		return v, err
	})
}

func listPrices(ctx context.Context, q querier, calculatorID uuid.UUID) ([]entity.Price, error) {
	query := `
		SELECT id, calculator_id, LOWER(tag_name), price, extra, sequence_order, COALESCE(description, '')
		FROM prices
		WHERE calculator_id = $1
		ORDER BY sequence_order, created_at
	`
	rows, err := q.Query(ctx, query, calculatorID)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (entity.Price, error) {
		var p entity.Price
		err := row.Scan(&p.ID, &p.CalculatorID, &p.TagName, &p.Price, &p.Extra, &p.Order, &p.Description)
		return p, err
	})
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
