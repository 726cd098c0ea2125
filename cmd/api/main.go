package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/teamscope/backend/internal/analytics"
	"github.com/teamscope/backend/internal/api/handlers"
	"github.com/teamscope/backend/internal/cache/redis"
	"github.com/teamscope/backend/internal/enrichment"
	neo4jexport "github.com/teamscope/backend/internal/export/neo4j"
	"github.com/teamscope/backend/internal/metrics"
	"github.com/teamscope/backend/internal/middleware/ratelimit"
	"github.com/teamscope/backend/internal/middleware/security"
	"github.com/teamscope/backend/internal/middleware/validation"
	"github.com/teamscope/backend/internal/storage/sqlite"
	"github.com/teamscope/backend/pkg/config"
	appLogger "github.com/teamscope/backend/pkg/logger"
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

	appLogger.Info("Starting TeamScope API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Redis is the preferred snapshot cache; when unavailable the SQLite
	// client serves the same role.
	var snapshots analytics.SnapshotStore = sqliteClient
	var invalidator handlers.Invalidator = sqliteClient

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, falling back to SQLite snapshots", zap.Error(err))
		} else {
			defer redisClient.Close()
			snapshots = redisClient
			invalidator = redisClient
		}
	}

	var enricher analytics.Enricher
	if cfg.Enrichment.Enabled && cfg.Enrichment.APIKey != "" {
		enricher = enrichment.NewClient(
			cfg.Enrichment.APIKey,
			cfg.Enrichment.Model,
			cfg.Enrichment.Temperature,
			cfg.Enrichment.MaxTokens,
			cfg.Enrichment.TimeoutSec,
		)
	}

	var exporter analytics.Exporter
	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4jexport.NewClient(
			cfg.Neo4j.URI,
			cfg.Neo4j.Username,
			cfg.Neo4j.Password,
			cfg.Neo4j.Database,
		)
		if err != nil {
			appLogger.Warn("Neo4j unavailable, network export disabled", zap.Error(err))
		} else {
			defer neo4jClient.Close(context.Background())
			exporter = neo4jClient
		}
	}

	engine := analytics.NewEngine(sqliteClient, snapshots, enricher, exporter, analytics.Options{
		MinConnectionStrength:    cfg.Analysis.MinConnectionStrength,
		EigenvectorMaxIterations: cfg.Analysis.EigenvectorMaxIterations,
		SnapshotTTL:              time.Duration(cfg.Analysis.SnapshotTTLHours) * time.Hour,
	})

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()
		metrics.HTTPRequestDuration.WithLabelValues(
			c.Method(),
			c.Route().Path,
			strconv.Itoa(c.Response().StatusCode()),
		).Observe(time.Since(started).Seconds())
		return err
	})
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Org-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	surveyHandler := handlers.NewSurveyHandler(sqliteClient)
	responseHandler := handlers.NewResponseHandler(sqliteClient, invalidator)
	analyticsHandler := handlers.NewAnalyticsHandler(engine)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")

	api.Post("/surveys", surveyHandler.CreateSurvey)
	api.Get("/surveys/:id", surveyHandler.GetSurvey)
	api.Post("/surveys/:id/activate", surveyHandler.ActivateSurvey)
	api.Post("/surveys/:id/close", surveyHandler.CloseSurvey)
	api.Post("/surveys/:id/invitations", surveyHandler.CreateInvitations)
	api.Get("/invitations/:token", surveyHandler.OpenInvitation)

	api.Post("/surveys/:id/responses", responseHandler.SubmitResponse)
	api.Get("/surveys/:id/responses", responseHandler.ListResponses)

	api.Get("/surveys/:id/metrics", analyticsHandler.GetMetrics)
	api.Get("/surveys/:id/network", analyticsHandler.GetNetwork)
	api.Get("/surveys/:id/dynamics", analyticsHandler.GetTeamDynamics)
	api.Get("/surveys/:id/insights", analyticsHandler.GetInsights)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws/analysis", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/analysis", websocket.New(wsHandler.HandleConnection))

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
	app.Shutdown()
	appLogger.Info("Server stopped")
}
