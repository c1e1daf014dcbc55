package api

import (
	"context"
	"fmt"
	"time"

	"github.com/example/task-tracker/modules/activity"
	"github.com/example/task-tracker/modules/auth"
	"github.com/example/task-tracker/modules/task"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Config configures the HTTP surface.
type Config struct {
	Addr          string
	AuthRateLimit int
	AccessLog     bool
	// LimiterStorage, when set, is called while building the router and
	// its result shares rate-limit counters between instances.
	LimiterStorage func() fiber.Storage
	// LimiterModule names the module that owns LimiterStorage; it is
	// declared as a dependency so it starts before the router is built.
	LimiterModule string
	// Stream, when set, serves GET /api/activity/ws.
	Stream ActivityStream
}

// APIModule serves the REST API with Fiber.
type APIModule struct {
	app          *fiber.App
	cfg          Config
	authPort     auth.AuthPort
	taskPort     task.TaskPort
	activityPort activity.ActivityPort
	logger       types.Logger
	startedAt    time.Time
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(cfg Config, logger types.Logger) *APIModule {
	return &APIModule{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	deps := []string{"auth", "task", "activity"}
	if m.cfg.LimiterModule != "" {
		deps = append(deps, m.cfg.LimiterModule)
	}
	return deps
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "auth":
		m.authPort = auth.NewAuthAdapter(container)
	case "task":
		m.taskPort = task.NewTaskAdapter(container)
	case "activity":
		m.activityPort = activity.NewActivityAdapter(container)
	}
}

// Start builds the Fiber app and starts listening.
func (m *APIModule) Start(_ context.Context) error {
	if m.authPort == nil {
		return fmt.Errorf("auth dependency not set")
	}
	if m.taskPort == nil {
		return fmt.Errorf("task dependency not set")
	}

	handlers := NewHandlers(m.authPort, m.taskPort, m.activityPort, m.logger)
	m.app = NewRouter(handlers, m.authPort, m.cfg, m.logger)

	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(m.cfg.Addr); err != nil {
			errCh <- err
		}
	}()

	// Catch immediate bind failures.
	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	m.startedAt = time.Now()
	m.logger.Info("HTTP server started", "addr", m.cfg.Addr)
	return nil
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Health returns the health status of the module.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"addr": m.cfg.Addr,
		},
	}
}

// NewRouter builds the Fiber app with middleware and routes.
func NewRouter(handlers *Handlers, authPort auth.AuthPort, cfg Config, log types.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "task-tracker",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
	})

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().UTC(),
		})
	})

	api := app.Group("/api")

	var limiterStorage fiber.Storage
	if cfg.LimiterStorage != nil {
		limiterStorage = cfg.LimiterStorage()
	}
	authRoutes := api.Group("/auth", RateLimit(cfg.AuthRateLimit, limiterStorage))
	authRoutes.Post("/register", handlers.Register)
	authRoutes.Post("/login", handlers.Login)

	requireAuth := AuthMiddleware(authPort)

	tasks := api.Group("/tasks", requireAuth)
	tasks.Get("", handlers.ListTasks)
	tasks.Post("", handlers.CreateTask)
	tasks.Get("/:id", handlers.GetTask)
	tasks.Put("/:id", handlers.UpdateTask)
	tasks.Delete("/:id", handlers.DeleteTask)

	api.Get("/activity", requireAuth, handlers.ListActivity)
	if cfg.Stream != nil {
		handlers.stream = cfg.Stream
		api.Get("/activity/ws", requireUpgrade, tokenFromQuery, requireAuth, websocket.New(handlers.StreamActivity))
	}

	return app
}

// errorHandler renders framework errors (unknown routes, panics) in the API's error shape.
func errorHandler(log types.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Server error"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		} else {
			log.Error("HTTP error", "path", c.Path(), "error", err)
		}

		return c.Status(code).JSON(ErrorResponse{
			Error:   "server_error",
			Message: message,
		})
	}
}
