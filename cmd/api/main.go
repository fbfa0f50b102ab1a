package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/dss-dashboard/backend/internal/api/handlers"
	cacheredis "github.com/dss-dashboard/backend/internal/cache/redis"
	"github.com/dss-dashboard/backend/internal/dashboard"
	"github.com/dss-dashboard/backend/internal/forecast"
	"github.com/dss-dashboard/backend/internal/ingestion"
	"github.com/dss-dashboard/backend/internal/metrics"
	"github.com/dss-dashboard/backend/internal/middleware/ratelimit"
	"github.com/dss-dashboard/backend/internal/middleware/rolegate"
	"github.com/dss-dashboard/backend/internal/middleware/security"
	"github.com/dss-dashboard/backend/internal/middleware/validation"
	"github.com/dss-dashboard/backend/internal/scheduler"
	"github.com/dss-dashboard/backend/internal/storage/sqlite"
	"github.com/dss-dashboard/backend/pkg/config"
	appLogger "github.com/dss-dashboard/backend/pkg/logger"
	"github.com/dss-dashboard/backend/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting decision support API server")
	metrics.Init()

	ctx := context.Background()
	retryCfg := retry.DefaultConfig()
	retryCfg.Logger = appLogger.Named("retry")

	sqliteClient, err := retry.DoWithResult(ctx, retryCfg, func() (*sqlite.Client, error) {
		return sqlite.NewClient(cfg.SQLite.Path)
	})
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// The cache is optional. Without it every forecast is computed.
	var cache dashboard.Cache
	if cfg.Redis.Enabled {
		redisClient, err := cacheredis.NewClient(ctx, cacheredis.Options{
			Host:            cfg.Redis.Host,
			Port:            cfg.Redis.Port,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			TTL:             time.Duration(cfg.Cache.ForecastTTLSec) * time.Second,
			BreakerFailures: cfg.Cache.BreakerFailures,
			BreakerTimeout:  time.Duration(cfg.Cache.BreakerTimeoutSec) * time.Second,
		})
		if err != nil {
			appLogger.Warn("Redis unavailable, forecast cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cache = redisClient
		}
	}

	svc := dashboard.NewService(sqliteClient, cache, dashboard.Options{
		Capacity: cfg.KPI.Capacity,
		Forecast: forecast.Options{
			Trials:                cfg.Forecast.Trials,
			MaxTrials:             cfg.Forecast.MaxTrials,
			Seed:                  cfg.Forecast.Seed,
			Workers:               cfg.Forecast.Workers,
			DefaultDefectsPerKLOC: cfg.Forecast.DefaultDefectsPerKLOC,
		},
		Quarter:      cfg.Scorecard.Quarter,
		ManualInputs: cfg.Scorecard.ManualInputs,
	})

	if _, err := svc.Refresh(ctx); err != nil {
		appLogger.Warn("Initial snapshot load failed, serving 503 until next refresh", zap.Error(err))
	}

	refreshTimeout := time.Duration(cfg.Server.ReadTimeout) * time.Second
	if cfg.Scheduler.Enabled {
		sched, err := scheduler.New(cfg.Scheduler.RefreshSpec, svc, refreshTimeout)
		if err != nil {
			appLogger.Fatal("Failed to create refresh scheduler", zap.Error(err))
		}
		sched.Start()
		defer sched.Stop()
	}

	processor := ingestion.NewProcessor(sqliteClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	allowOrigins := "*"
	if len(cfg.Security.AllowedOrigins) > 0 {
		allowOrigins = strings.Join(cfg.Security.AllowedOrigins, ", ")
	}

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		Logger:               appLogger.Named("ratelimit"),
		Skip: func(c *fiber.Ctx) bool {
			return c.Path() == "/metrics" || strings.HasPrefix(c.Path(), "/api/v1/health") || strings.HasPrefix(c.Path(), "/api/v1/ready")
		},
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + rolegate.HeaderUserID + ", " + rolegate.HeaderRole,
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		IsDevelopment:  cfg.Security.IsDevelopment,
	}))
	app.Use(rolegate.Identify())
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		AllowedContentTypes: []string{"application/json", "multipart/form-data"},
		Logger:              appLogger.Named("validation"),
	}))

	dashboardHandler := handlers.NewDashboardHandler(svc)
	forecastHandler := handlers.NewForecastHandler(svc)
	exportHandler := handlers.NewExportHandler(svc)
	importHandler := handlers.NewImportHandler(processor, svc)
	wsHandler := handlers.NewWebSocketHandler(svc, time.Duration(cfg.Server.WriteTimeout)*time.Second)

	gateLog := appLogger.Named("rolegate")
	forecasters := rolegate.Require(gateLog, dashboard.RoleAdmin, dashboard.RoleProjectManager)
	admins := rolegate.Require(gateLog, dashboard.RoleAdmin)

	app.Get("/metrics", metrics.MetricsHandler())

	api := app.Group("/api/v1")

	api.Get("/health", dashboardHandler.Health)
	api.Get("/ready", dashboardHandler.Ready)

	api.Get("/kpis", dashboardHandler.KPIs)
	api.Post("/aggregate", dashboardHandler.Aggregate)
	api.Post("/aggregate/export", exportHandler.Pivot)
	api.Get("/scorecard", dashboardHandler.Scorecard)

	api.Post("/forecast", forecasters, forecastHandler.Forecast)
	api.Get("/forecast/runs", forecasters, forecastHandler.Runs)
	api.Post("/forecast/export", forecasters, exportHandler.Forecast)

	api.Post("/snapshot/refresh", admins, dashboardHandler.RefreshSnapshot)
	api.Post("/import", admins, importHandler.Upload)

	app.Use("/ws", wsHandler.Upgrade)
	app.Get("/ws/forecast", websocket.New(wsHandler.HandleConnection))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
