package main

import (
	"context"
	"log"
	"os"

	"github.com/example/task-tracker/config"
	"github.com/example/task-tracker/modules/activity"
	"github.com/example/task-tracker/modules/api"
	"github.com/example/task-tracker/modules/auth"
	"github.com/example/task-tracker/modules/cache"
	"github.com/example/task-tracker/modules/store"
	"github.com/example/task-tracker/modules/task"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Task Tracker ===")

	cfg := config.MustLoad(os.Getenv("TASKS_CONFIG"))

	logLevel := mono.LogLevelInfo
	if cfg.LogLevel == "error" {
		logLevel = mono.LogLevelError
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(logLevel),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Modules migrate their own tables in Start.
	db, err := store.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	apiConfig := api.Config{
		Addr:          cfg.HTTPAddr,
		AuthRateLimit: cfg.AuthRateLimit,
		AccessLog:     true,
	}

	// Redis is optional; without REDIS_ADDR every list reads the database
	// and rate-limit counters stay in process memory.
	var lists task.ListCache
	if cfg.Cache.RedisAddr != "" {
		cacheModule := cache.NewModule(cfg.Cache, logger)
		app.Register(cacheModule)
		lists = cacheModule.TaskLists()
		apiConfig.LimiterStorage = cacheModule.LimiterStorage
		apiConfig.LimiterModule = cacheModule.Name()
	}

	// Order: independent modules first, then dependent modules
	app.Register(auth.NewModule(db, auth.JWTConfig{
		SecretKey: cfg.JWT.SecretKey,
		TTL:       cfg.JWT.TTL,
		Issuer:    cfg.JWT.Issuer,
	}, auth.NewPasswordHasher(), logger))
	app.Register(task.NewModule(db, lists, logger))
	activityModule := activity.NewModule(activity.DefaultFeedSize, logger)
	app.Register(activityModule)
	apiConfig.Stream = activityModule
	app.Register(api.NewModule(apiConfig, logger))

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				if err := app.Stop(ctx); err != nil {
					return err
				}
				return store.Close(db)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config.Config) {
	log.Println("")
	log.Println("Application started successfully!")
	log.Printf("  Database: %s", cfg.DB.Driver)
	if cfg.Cache.RedisAddr != "" {
		log.Printf("  List cache: redis at %s", cfg.Cache.RedisAddr)
	} else {
		log.Println("  List cache: disabled")
	}
	log.Println("")
	log.Printf("REST API Endpoints (%s):", cfg.HTTPAddr)
	log.Println("")
	log.Println("  Public Endpoints:")
	log.Println("  POST   /api/auth/register  - Register and get a token")
	log.Println("  POST   /api/auth/login     - Login and get a token")
	log.Println("  GET    /health             - Health check")
	log.Println("")
	log.Println("  Protected Endpoints (require Bearer token):")
	log.Println("  GET    /api/tasks          - List your tasks, newest first")
	log.Println("  POST   /api/tasks          - Create a task")
	log.Println("  GET    /api/tasks/:id      - Get a task")
	log.Println("  PUT    /api/tasks/:id      - Update fields of a task")
	log.Println("  DELETE /api/tasks/:id      - Delete a task")
	log.Println("  GET    /api/activity       - Recent task activity")
	log.Println("  GET    /api/activity/ws    - Live activity (WebSocket, ?token=)")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
