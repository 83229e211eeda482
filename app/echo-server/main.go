package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyCafeCRM/app/echo-server/router"
	"studyCafeCRM/business/flow"
	"studyCafeCRM/business/segment"
	"studyCafeCRM/business/targeting"
	"studyCafeCRM/internal/middleware"
	psqlRepo "studyCafeCRM/internal/repository/postgres"
	redisRepo "studyCafeCRM/internal/repository/redis"
	"studyCafeCRM/internal/repository/worker"
	"studyCafeCRM/internal/rest"
	"studyCafeCRM/pkg/config"
	"studyCafeCRM/pkg/database"
	redisdb "studyCafeCRM/pkg/database/redis"
	"studyCafeCRM/pkg/logger"
	"studyCafeCRM/pkg/metrics"
	"studyCafeCRM/pkg/timeutil"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.App.Environment, cfg.Log.Level, cfg.Log.File)
	logger.Info("Starting "+cfg.App.Name, "version", cfg.App.Version)
	metrics.Init(cfg.App.Version, cfg.App.Environment, cfg.Worker.SchedulerEnabled)

	loc := timeutil.LoadLocation(cfg.App.Timezone)

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	logger.Info("Database connected successfully")

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Fatal("Failed to migrate database", "error", err)
		}
	}

	// Init job sink
	var redisClient *goredis.Client
	var sink flow.JobSink
	switch cfg.Worker.JobSink {
	case config.JobSinkRedis:
		redisClient, err = redisdb.NewRedisClient(cfg)
		if err != nil {
			logger.Fatal("Failed to connect to redis", "error", err)
		}
		sink = redisRepo.NewJobQueueRepository(redisClient, cfg.Redis.JobQueueKey)
	case config.JobSinkHTTP:
		sink = worker.NewHTTPRepository(worker.WorkerConfig{
			WorkerBaseURL:           cfg.Worker.URL,
			WorkerBasicAuthUsername: cfg.Worker.Username,
			WorkerBasicAuthPassword: cfg.Worker.Password,
		})
	default:
		sink = worker.NoopRepository{}
	}
	logger.Info("Job sink configured", "sink", cfg.Worker.JobSink)

	// Init repo
	customerRepo := psqlRepo.NewCustomerRepository(db)
	activityRepo := psqlRepo.NewActivityRepository(db)
	snapshotRepo := psqlRepo.NewSegmentSnapshotRepository(db)
	flowRepo := psqlRepo.NewFlowRepository(db)
	executionRepo := psqlRepo.NewExecutionRepository(db)

	// Init service
	segmentService := segment.NewService(customerRepo, activityRepo, snapshotRepo, segment.ThresholdsFromConfig(cfg.Segment), loc)
	engine := targeting.NewEngine(segmentService, customerRepo)
	guard := targeting.NewGuard(executionRepo)
	flowService := flow.NewService(flowRepo, engine)
	dispatcher := flow.NewDispatcher(flowRepo, executionRepo, engine, guard, sink, flow.DispatcherOptions{
		Timeout:  cfg.Worker.DispatchTimeout,
		Location: loc,
	})
	ingestor := flow.NewIngestor(flowRepo, executionRepo)

	var scheduler *flow.Scheduler
	if cfg.Worker.SchedulerEnabled {
		scheduler = flow.NewScheduler(dispatcher, loc)
		if err := scheduler.Start(); err != nil {
			logger.Fatal("Failed to start scheduler", "error", err)
		}
	}

	// Init handler
	segmentHandler := rest.NewSegmentHandler(segmentService)
	flowHandler := rest.NewFlowHandler(flowService)
	workerHandler := rest.NewWorkerHandler(dispatcher, ingestor)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(middleware.TraceID())
	e.Use(middleware.Metrics())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"http://localhost:3000", "http://localhost:8080"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, middleware.HeaderRequestID},
	}))

	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	authRequired := middleware.AuthMiddleware(cfg.JWT.SecretKey)
	workerAuth := middleware.WorkerAuth(cfg.Worker.CallbackSecret)

	// Setup routes
	api := e.Group("/api/v1")
	router.SetupSegmentRoutes(api, segmentHandler, authRequired)
	router.SetupFlowRoutes(api, flowHandler, authRequired)
	router.SetupWorkerRoutes(api, workerHandler, workerAuth)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if err := redisdb.CloseRedisClient(redisClient); err != nil {
		logger.Error("Redis close error", "error", err)
	}

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logger.Info("Server exited")
}
