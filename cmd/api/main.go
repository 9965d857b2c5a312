package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deserlab/docs"
	"deserlab/internal/clock"
	"deserlab/internal/config"
	"deserlab/internal/database"
	"deserlab/internal/database/migration"
	handlers "deserlab/internal/http/handler"
	"deserlab/internal/http/middleware"
	"deserlab/internal/logging"
	appotel "deserlab/internal/otel"
	"deserlab/internal/repository/postgres"
	"deserlab/internal/service"
	"deserlab/internal/storage"
)

// @title Insecure Deserialization Lesson API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel, cfg.Location())
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := appotel.Init(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, logger, cfg.Database.Host); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	metrics, err := service.NewMetrics(reg)
	if err != nil {
		logger.Fatal("failed to register lesson metrics", zap.Error(err))
	}
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		logger.Fatal("failed to register http metrics", zap.Error(err))
	}

	checker, err := service.NewTaskChecker(
		time.Duration(cfg.Lesson.MinDelayMs)*time.Millisecond,
		time.Duration(cfg.Lesson.MaxDelayMs)*time.Millisecond,
		cfg.Lesson.TaskMaxAge(),
		clock.Real(),
		logger,
	)
	if err != nil {
		logger.Fatal("invalid lesson configuration", zap.Error(err))
	}

	opts := []service.Option{
		service.WithMetrics(metrics),
		service.WithLogger(logger),
	}
	// Object storage (MinIO) only backs the optional submission archive
	if cfg.MinIO.Enabled() {
		objStore, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			logger.Fatal("failed to initialize object storage", zap.Error(err))
		}
		opts = append(opts, service.WithArchive(objStore))
	} else {
		logger.Info("submission archive disabled")
	}

	attemptRepo := postgres.NewAttemptPostgres(db)
	lessonSvc := service.NewLessonService(checker, attemptRepo, opts...)

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(logger),
		DisableStartupMessage: true,
		// Tokens are a few hundred bytes
		BodyLimit: 64 * 1024,
	})

	// Register global middleware
	app.Use(otelfiber.Middleware())
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger(logger))
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	// Register HTTP routes with injected service
	handlers.RegisterRoutes(app, db, lessonSvc)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(sctx); err != nil {
			logger.Error("server shutdown", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("server_starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
