package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ilramdhan/calculator-engine/config"
	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
	"github.com/ilramdhan/calculator-engine/internal/domain/repository"
	"github.com/ilramdhan/calculator-engine/internal/infrastructure/persistence"
	"github.com/ilramdhan/calculator-engine/internal/modules/calculator"
	"github.com/ilramdhan/calculator-engine/pkg/database"
	"github.com/ilramdhan/calculator-engine/pkg/logger"
)

var (
	calculatorCount = flag.Int("calculators", 1, "Number of demo calculators to create")
	workerCount     = flag.Int("workers", 4, "Number of parallel workers")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.App.IsDevelopment())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)

	repo := persistence.NewCalculatorRepository(pool)
	engine := calculator.NewEngine(nil, log.Named("engine"))

	start := time.Now()
	var created, variables, prices int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workerCount)

	for i := 0; i < *calculatorCount; i++ {
		i := i
		g.Go(func() error {
			nv, np, err := seedPrintJob(gctx, repo, engine, i)
			if err != nil {
				return err
			}
			atomic.AddInt64(&created, 1)
			atomic.AddInt64(&variables, nv)
			atomic.AddInt64(&prices, np)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatal("seeding failed", zap.Error(err))
	}

	log.Info("seeding complete",
		zap.Int64("calculators", created),
		zap.Int64("variables", variables),
		zap.Int64("prices", prices),
		zap.Duration("duration", time.Since(start)),
	)
}

// seedPrintJob stores one demo print-shop calculator after checking that its
// formulas resolve against its own defaults and price table
func seedPrintJob(ctx context.Context, repo repository.CalculatorRepository, engine *calculator.Engine, n int) (int64, int64, error) {
	now := time.Now()
	calc := &entity.Calculator{
		ID:          uuid.New(),
		Name:        fmt.Sprintf("Print job %d", n+1),
		Description: "Sheet printing with quantity tiers and paper surcharges",
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	vars := printJobVariables(calc.ID)
	priceRows := printJobPrices(calc.ID)

	if errs := engine.ValidateAll(vars, priceRows); len(errs) > 0 {
		return 0, 0, fmt.Errorf("demo calculator is invalid: %s", calculator.FormatErrors(errs))
	}

	if err := repo.Create(ctx, calc); err != nil {
		return 0, 0, fmt.Errorf("failed to create calculator: %w", err)
	}
	nv, err := repo.CreateVariablesBatch(ctx, vars)
	if err != nil {
		return 0, 0, err
	}
	np, err := repo.CreatePricesBatch(ctx, priceRows)
	if err != nil {
		return 0, 0, err
	}
	return nv, np, nil
}

func printJobVariables(calculatorID uuid.UUID) []entity.Variable {
	vars := []entity.Variable{
		{TagName: "qty", Name: "Quantity", DataType: entity.DataTypeInt, Widget: "number", DefaultValue: 100, Required: true},
		{TagName: "paper", Name: "Paper", DataType: entity.DataTypeString, Widget: "select", DefaultValue: "matte"},
		{TagName: "double_sided", Name: "Double sided", DataType: entity.DataTypeBool, Widget: entity.WidgetCheckbox, DefaultValue: false},
		{TagName: "unit_price", Name: "Unit price", DataType: entity.DataTypeFloat, Formula: `price("sheet")`},
		{TagName: "setup", Name: "Setup fee", DataType: entity.DataTypeFloat, Formula: `price("setup", 0)`},
		{TagName: "subtotal", Name: "Subtotal", DataType: entity.DataTypeFloat, Formula: "qty * unit_price * if(double_sided, 2, 1)", IsOutput: true},
		{TagName: "total", Name: "Total", DataType: entity.DataTypeFloat, Formula: "round(subtotal + setup, 2)", IsOutput: true},
	}
	for i := range vars {
		vars[i].ID = uuid.New()
		vars[i].CalculatorID = calculatorID
		vars[i].Order = i + 1
	}
	return vars
}

func printJobPrices(calculatorID uuid.UUID) []entity.Price {
	rows := []entity.Price{
		{TagName: "sheet", Price: 0.50, Description: "Base sheet price"},
		{TagName: "sheet", Price: 0.40, Extra: map[string]any{"qty__gte": 500}, Description: "500+ sheets"},
		{TagName: "sheet", Price: 0.35, Extra: map[string]any{"qty__gte": 1000}, Description: "1000+ sheets"},
		{TagName: "sheet", Price: 0.65, Extra: map[string]any{"paper": "glossy", "qty__lt": 500}, Description: "Glossy short run"},
		{TagName: "setup", Price: 15, Extra: map[string]any{"paper__in": []any{"glossy", "linen"}}, Description: "Specialty paper setup"},
	}
	for i := range rows {
		rows[i].ID = uuid.New()
		rows[i].CalculatorID = calculatorID
		rows[i].Order = i + 1
	}
	return rows
}
