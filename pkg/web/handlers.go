// Package web provides HTTP handlers and REST API endpoints for session management.
package web

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/quantarc/finflow/pkg/persistence"
	"github.com/quantarc/finflow/pkg/registry"
	"github.com/quantarc/finflow/pkg/workflow"
)

type APIHandlers struct {
	engine      *workflow.Engine
	checkpoints persistence.CheckpointStore
	registry    *registry.Registry
	validator   *validator.Validate
}

func NewAPIHandlers(
	engine *workflow.Engine,
	checkpoints persistence.CheckpointStore,
	reg *registry.Registry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:      engine,
		checkpoints: checkpoints,
		registry:    reg,
		validator:   validator,
	}
}

// SubmitQuery runs a query to completion and returns the finished
// session.
func (h *APIHandlers) SubmitQuery(c fiber.Ctx) error {
	var req SubmitQueryRequest

	if err := c.Bind().Body(&req); err != nil {
		return badRequest(c, "Invalid request body: "+err.Error())
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, "Invalid request: "+err.Error())
	}

	state, err := h.engine.Invoke(c.Context(), req.Query, req.SessionID)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(newSessionResponse(state))
}

func (h *APIHandlers) GetSessions(c fiber.Ctx) error {
	sessions, err := h.checkpoints.ListSessions(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"sessions":    sessions,
		"total_count": len(sessions),
	})
}

func (h *APIHandlers) GetSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	state, err := h.checkpoints.LoadState(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(newSessionResponse(state))
}

// ResumeSession continues an unfinished session from its last
// checkpoint and returns the finished session.
func (h *APIHandlers) ResumeSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	state, err := h.engine.Resume(c.Context(), id)
	if err != nil {
		return handleStoreError(c, err)
	}

	return c.JSON(newSessionResponse(state))
}

func (h *APIHandlers) DeleteSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	if err := h.checkpoints.DeleteState(c.Context(), id); err != nil {
		return handleStoreError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetAgents lists the registered agents with their tools.
func (h *APIHandlers) GetAgents(c fiber.Ctx) error {
	capabilities, err := h.registry.Capabilities()
	if err != nil {
		return internalError(c, err)
	}

	agents := make([]AgentResponse, 0, len(capabilities))

	for _, name := range h.registry.AvailableAgents() {
		factory, ok := h.registry.AgentFactory(name)
		if !ok {
			continue
		}

		agents = append(agents, AgentResponse{
			ID:          factory.ID(),
			Description: factory.Description(),
			Tools:       capabilities[name],
		})
	}

	return c.JSON(fiber.Map{"agents": agents})
}

func (h *APIHandlers) GetHealth(c fiber.Ctx) error {
	if err := h.checkpoints.HealthCheck(c.Context()); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *APIHandlers) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.GetHealth)
	app.Get("/agents", h.GetAgents)

	app.Post("/queries", h.SubmitQuery)

	app.Get("/sessions", h.GetSessions)
	app.Get("/sessions/:id", h.GetSession)
	app.Post("/sessions/:id/resume", h.ResumeSession)
	app.Delete("/sessions/:id", h.DeleteSession)
}
