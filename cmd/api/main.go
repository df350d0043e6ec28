package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ilramdhan/calculator-engine/config"
	"github.com/ilramdhan/calculator-engine/internal/api"
	"github.com/ilramdhan/calculator-engine/internal/infrastructure/persistence"
	"github.com/ilramdhan/calculator-engine/internal/modules/calculator"
	"github.com/ilramdhan/calculator-engine/pkg/database"
	"github.com/ilramdhan/calculator-engine/pkg/formula"
	"github.com/ilramdhan/calculator-engine/pkg/logger"
)

func main() {
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

	log.Info("starting calculator API", zap.Stringer("config", cfg))

	ctx := context.Background()

	// Database connection
	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)

	calculatorRepo := persistence.NewCalculatorRepository(pool)

	// Initialize calculation engine and worker pool
	parser := formula.NewParser(cfg.Formula.CacheSize)
	engine := calculator.NewEngine(parser, log.Named("engine"))
	workerPool := calculator.NewWorkerPool(engine, log.Named("worker"), cfg.Worker.Count, cfg.Worker.BatchSize)

	app := fiber.New(fiber.Config{
		AppName:      "Calculator Engine API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	api.NewHandler(calculatorRepo, engine, workerPool, cfg.Worker.MaxInputs, log.Named("api")).Register(app)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
		}
	}()

	log.Info("listening", zap.String("port", cfg.App.Port))
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
}
