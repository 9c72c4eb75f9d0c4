// Package main provides the FinFlow API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/quantarc/finflow/pkg/classifier"
	"github.com/quantarc/finflow/pkg/eventbus"
	"github.com/quantarc/finflow/pkg/persistence"
	"github.com/quantarc/finflow/pkg/planner"
	"github.com/quantarc/finflow/pkg/registry"
	"github.com/quantarc/finflow/pkg/synthesizer"
	"github.com/quantarc/finflow/pkg/web"
	"github.com/quantarc/finflow/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	checkpoints persistence.CheckpointStore
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	checkpoints persistence.CheckpointStore,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:      logger,
		checkpoints: checkpoints,
		registry:    registry,
		eventBus:    eventBus,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	opts := []workflow.Option{
		workflow.WithCheckpointStore(a.checkpoints),
		workflow.WithPublisher(a.eventBus),
	}
	if a.tracer != nil {
		opts = append(opts, workflow.WithTracer(a.tracer))
	}

	engine := workflow.NewEngine(
		a.logger,
		a.registry,
		classifier.New(),
		planner.New(),
		synthesizer.New(),
		opts...,
	)

	handlers := web.NewAPIHandlers(engine, a.checkpoints, a.registry, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("FinFlow API")
	})

	handlers.RegisterRoutes(app)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
