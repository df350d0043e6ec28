package calculator

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
)

// BatchResult is the outcome of one input set in a batch
type BatchResult struct {
	Index    int             `json:"index"`
	Outputs  []entity.Output `json:"outputs,omitempty"`
	Failures []FormulaError  `json:"failures,omitempty"`
	Error    string          `json:"error,omitempty"`
	Err      error           `json:"-"`
}

// BatchStats summarizes a batch run
type BatchStats struct {
	Total     int           `json:"total"`
	Processed int64         `json:"processed"`
	Failed    int64         `json:"failed"`
	Duration  time.Duration `json:"duration_ns"`
}

// WorkerPool evaluates many input sets against one snapshot concurrently
type WorkerPool struct {
	engine      *Engine
	logger      *zap.Logger
	workerCount int
	batchSize   int
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(engine *Engine, logger *zap.Logger, workerCount, batchSize int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	if batchSize <= 0 {
		batchSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkerPool{
		engine:      engine,
		logger:      logger,
		workerCount: workerCount,
		batchSize:   batchSize,
	}
}

// RunBatch computes every input set. Results keep the order of inputs. Once ctx
// is done, the remaining input sets are marked failed with the context error.
func (wp *WorkerPool) RunBatch(ctx context.Context, snapshot *entity.Snapshot, inputs []map[string]any) ([]BatchResult, BatchStats) {
	start := time.Now()
	results := make([]BatchResult, len(inputs))

	var processedCount int64
	var failedCount int64

	var g errgroup.Group
	g.SetLimit(wp.workerCount)

	// Each worker takes a chunk of batchSize input sets
	for lo := 0; lo < len(inputs); lo += wp.batchSize {
		lo := lo
		hi := min(lo+wp.batchSize, len(inputs))
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				results[i] = wp.runOne(ctx, snapshot, i, inputs[i])
				if results[i].Err != nil {
					atomic.AddInt64(&failedCount, 1)
					continue
				}
				atomic.AddInt64(&processedCount, 1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := BatchStats{
		Total:     len(inputs),
		Processed: atomic.LoadInt64(&processedCount),
		Failed:    atomic.LoadInt64(&failedCount),
		Duration:  time.Since(start),
	}
	wp.logger.Info("batch calculation complete",
		zap.String("calculator_id", snapshot.Calculator.ID.String()),
		zap.Int64("processed", stats.Processed),
		zap.Int64("failed", stats.Failed),
		zap.Int("total", stats.Total),
		zap.Duration("duration", stats.Duration),
	)
	return results, stats
}

func (wp *WorkerPool) runOne(ctx context.Context, snapshot *entity.Snapshot, index int, input map[string]any) BatchResult {
	if err := ctx.Err(); err != nil {
		return BatchResult{Index: index, Err: err, Error: err.Error()}
	}
	result, err := wp.engine.RunContext(ctx, snapshot.Variables, snapshot.Prices, input)
	if err != nil {
		return BatchResult{Index: index, Err: err, Error: err.Error()}
	}
	return BatchResult{Index: index, Outputs: result.Outputs, Failures: result.Failures}
}
