// Package main provides the Flowkit API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tavolohq/flowkit/pkg/approval"
	"github.com/tavolohq/flowkit/pkg/dispatch"
	"github.com/tavolohq/flowkit/pkg/eventbus"
	"github.com/tavolohq/flowkit/pkg/metrics"
	"github.com/tavolohq/flowkit/pkg/persistence"
	"github.com/tavolohq/flowkit/pkg/registry"
	"github.com/tavolohq/flowkit/pkg/services"
	"github.com/tavolohq/flowkit/pkg/web"
	"github.com/tavolohq/flowkit/pkg/workflow"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	eventBus    eventbus.EventBus
	recorder    *metrics.Recorder
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	recorder *metrics.Recorder,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		eventBus:    eventBus,
		recorder:    recorder,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.registry)
	templateService := services.NewTemplate(a.persistence, workflowService)
	statsService := services.NewStats(a.persistence)

	approvalService := approval.NewService(a.persistence, a.eventBus, a.logger, a.recorder)
	dispatcher := dispatch.NewDispatcher(a.registry, a.logger, a.recorder)
	executor := workflow.NewExecutor(a.persistence, dispatcher, approvalService, a.eventBus, a.logger, a.recorder)

	handlers := web.NewAPIHandlers(
		workflowService,
		templateService,
		statsService,
		approvalService,
		executor,
		a.persistence,
		a.validate,
		a.registry,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Flowkit API")
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Patch("/:id", handlers.UpdateWorkflow)
	w.Delete("/:id", handlers.DeleteWorkflow)
	w.Post("/:id/activate", handlers.ActivateWorkflow)
	w.Post("/:id/pause", handlers.PauseWorkflow)
	w.Post("/:id/archive", handlers.ArchiveWorkflow)

	// Step endpoints:
	w.Post("/:id/steps", handlers.CreateStep)
	w.Patch("/:id/steps/:stepId", handlers.UpdateStep)
	w.Delete("/:id/steps/:stepId", handlers.DeleteStep)

	// Trigger endpoints:
	w.Post("/:id/triggers", handlers.CreateTrigger)
	w.Patch("/:id/triggers/:triggerId", handlers.UpdateTrigger)
	w.Delete("/:id/triggers/:triggerId", handlers.DeleteTrigger)
	w.Post("/:id/trigger", handlers.TriggerWorkflow)

	e := app.Group("/executions")
	e.Get("/", handlers.GetExecutions)
	e.Get("/:id", handlers.GetExecution)
	e.Get("/:id/steps", handlers.GetExecutionSteps)
	e.Post("/:id/cancel", handlers.CancelExecution)

	ap := app.Group("/approvals")
	ap.Get("/", handlers.GetApprovals)
	ap.Get("/:id", handlers.GetApproval)
	ap.Post("/:id/approve", handlers.ApproveRequest)
	ap.Post("/:id/reject", handlers.RejectRequest)
	ap.Post("/:id/delegate", handlers.DelegateRequest)
	ap.Post("/:id/escalate", handlers.EscalateRequest)

	tpl := app.Group("/templates")
	tpl.Get("/", handlers.GetTemplates)
	tpl.Post("/", handlers.CreateTemplate)
	tpl.Get("/:id", handlers.GetTemplate)
	tpl.Delete("/:id", handlers.DeleteTemplate)
	tpl.Post("/:id/instantiate", handlers.InstantiateTemplate)

	st := app.Group("/stats")
	st.Get("/", handlers.GetStats)
	st.Get("/workflows/:id", handlers.GetWorkflowStats)

	app.Post("/events", handlers.BroadcastEvent)
	app.Get("/registry", handlers.GetRegistry)
	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
