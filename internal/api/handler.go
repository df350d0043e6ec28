package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ilramdhan/calculator-engine/internal/domain/entity"
	"github.com/ilramdhan/calculator-engine/internal/domain/repository"
	"github.com/ilramdhan/calculator-engine/internal/modules/calculator"
)

// SnapshotLoader provides the consistent calculator read the handlers evaluate against
type SnapshotLoader interface {
	Snapshot(ctx context.Context, id uuid.UUID) (*entity.Snapshot, error)
}

// Handler exposes the calculation engine over HTTP
type Handler struct {
	store    SnapshotLoader
	engine   *calculator.Engine
	pool     *calculator.WorkerPool
	maxBatch int
	logger   *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(store SnapshotLoader, engine *calculator.Engine, pool *calculator.WorkerPool, maxBatch int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:    store,
		engine:   engine,
		pool:     pool,
		maxBatch: maxBatch,
		logger:   logger,
	}
}

// Register mounts the routes on app
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", h.health)

	api := app.Group("/api/v1")
	api.Post("/calculators/:id/calculate", h.calculate)
	api.Post("/calculators/:id/calculate/batch", h.calculateBatch)
	api.Post("/calculators/:id/variables/validate", h.validateVariables)
}

func (h *Handler) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// calculate runs the pipeline for one input set. The response is the output
// list; ?verbose=true returns the full context and per-variable failures too.
func (h *Handler) calculate(c *fiber.Ctx) error {
	snapshot, err := h.loadSnapshot(c)
	if err != nil {
		return respondError(c, err)
	}

	input := map[string]any{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}

	result, err := h.engine.RunContext(c.UserContext(), snapshot.Variables, snapshot.Prices, input)
	if err != nil {
		return h.pipelineError(c, err)
	}

	if c.QueryBool("verbose") {
		return c.JSON(result)
	}
	return c.JSON(result.Outputs)
}

type batchRequest struct {
	Inputs []map[string]any `json:"inputs"`
}

func (h *Handler) calculateBatch(c *fiber.Ctx) error {
	var req batchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.Inputs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "inputs must not be empty"})
	}
	if h.maxBatch > 0 && len(req.Inputs) > h.maxBatch {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "too many inputs", "limit": h.maxBatch})
	}

	snapshot, err := h.loadSnapshot(c)
	if err != nil {
		return respondError(c, err)
	}

	results, stats := h.pool.RunBatch(c.UserContext(), snapshot, req.Inputs)
	return c.JSON(fiber.Map{
		"results": results,
		"stats":   stats,
	})
}

// validateVariables dry-runs a proposed full variable list against the
// calculator's current prices
func (h *Handler) validateVariables(c *fiber.Ctx) error {
	var vars []entity.Variable
	if err := c.BodyParser(&vars); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	snapshot, err := h.loadSnapshot(c)
	if err != nil {
		return respondError(c, err)
	}

	if errs := h.engine.ValidateAll(vars, snapshot.Prices); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"detail": calculator.FormatErrors(errs),
			"errors": errs,
		})
	}
	return c.JSON(fiber.Map{"message": "Variables are valid"})
}

// loadSnapshot resolves :id. Failures come back as *fiber.Error for respondError.
func (h *Handler) loadSnapshot(c *fiber.Ctx) (*entity.Snapshot, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	snapshot, err := h.store.Snapshot(c.UserContext(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "Calculator not found")
	}
	if err != nil {
		h.logger.Error("failed to load calculator", zap.String("calculator_id", id.String()), zap.Error(err))
		return nil, fiber.NewError(fiber.StatusInternalServerError, "internal error")
	}
	return snapshot, nil
}

func respondError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code, msg = fe.Code, fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func (h *Handler) pipelineError(c *fiber.Ctx, err error) error {
	var inputErr *calculator.InputError
	if errors.As(err, &inputErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": inputErr.Error(),
			"tag":   inputErr.Tag,
		})
	}
	h.logger.Error("calculation failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}
