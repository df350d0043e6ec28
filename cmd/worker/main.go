package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ilramdhan/calculator-engine/config"
	"github.com/ilramdhan/calculator-engine/internal/infrastructure/persistence"
	"github.com/ilramdhan/calculator-engine/internal/modules/calculator"
	"github.com/ilramdhan/calculator-engine/pkg/database"
	"github.com/ilramdhan/calculator-engine/pkg/formula"
	"github.com/ilramdhan/calculator-engine/pkg/logger"
)

var (
	calculatorID = flag.String("calculator", "", "Calculator id to evaluate against")
	inputPath    = flag.String("input", "-", "JSON lines file of input sets, - for stdin")
	outputPath   = flag.String("output", "-", "JSON lines file for results, - for stdout")
)

// worker evaluates a file of input sets offline against one calculator
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

	id, err := uuid.Parse(*calculatorID)
	if err != nil {
		log.Fatal("invalid -calculator", zap.String("value", *calculatorID), zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown: in-flight input sets finish, the rest are marked cancelled
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutting down worker")
		cancel()
	}()

	in, err := openInput(*inputPath)
	if err != nil {
		log.Fatal("failed to open input", zap.Error(err))
	}
	defer in.Close()

	inputs, err := readInputs(in)
	if err != nil {
		log.Fatal("failed to read input sets", zap.Error(err))
	}
	if len(inputs) > cfg.Worker.MaxInputs {
		log.Fatal("too many input sets", zap.Int("count", len(inputs)), zap.Int("limit", cfg.Worker.MaxInputs))
	}

	pool, err := database.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer database.Close(pool)

	snapshot, err := persistence.NewCalculatorRepository(pool).Snapshot(ctx, id)
	if err != nil {
		log.Fatal("failed to load calculator", zap.String("calculator_id", id.String()), zap.Error(err))
	}

	engine := calculator.NewEngine(formula.NewParser(cfg.Formula.CacheSize), log.Named("engine"))
	workerPool := calculator.NewWorkerPool(engine, log.Named("worker"), cfg.Worker.Count, cfg.Worker.BatchSize)

	results, stats := workerPool.RunBatch(ctx, snapshot, inputs)

	out, err := openOutput(*outputPath)
	if err != nil {
		log.Fatal("failed to open output", zap.Error(err))
	}
	defer out.Close()

	if err := writeResults(out, results); err != nil {
		log.Fatal("failed to write results", zap.Error(err))
	}

	if stats.Failed > 0 {
		log.Warn("some input sets failed", zap.Int64("failed", stats.Failed), zap.Int("total", stats.Total))
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// readInputs decodes one JSON object per line. Blank lines are skipped.
func readInputs(r io.Reader) ([]map[string]any, error) {
	var inputs []map[string]any
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var input map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &input); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		inputs = append(inputs, input)
	}
	return inputs, scanner.Err()
}

func writeResults(w io.Writer, results []calculator.BatchResult) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for i := range results {
		if err := enc.Encode(&results[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
