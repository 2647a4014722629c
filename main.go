package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"mobileshop-backend/cache"
	"mobileshop-backend/config"
	"mobileshop-backend/controllers"
	"mobileshop-backend/database"
	"mobileshop-backend/events"
	"mobileshop-backend/metrics"
	"mobileshop-backend/middlewares"
	"mobileshop-backend/routes"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.Load()
	logger := config.InitLogger(cfg.LogLevel)

	middlewares.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.TTL)

	// ---- Database
	if err := database.Connect(cfg.Database, logger); err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	if err := database.Migrate(database.DB); err != nil {
		logger.WithError(err).Fatal("database migration failed")
	}

	// ---- Optional collaborators: Redis cache/locks, Kafka events
	redisClient, err := cache.New(context.Background(), cfg.Redis, logger)
	if err != nil {
		// billing still works without the cache; lookups go to the database
		logger.WithError(err).Warn("redis unavailable, continuing without cache")
		redisClient = nil
	}
	publisher := events.New(cfg.Kafka, logger)

	controllers.Configure(controllers.Dependencies{
		Cache:          redisClient,
		Publisher:      publisher,
		Logger:         logger,
		CurrencySymbol: cfg.Shop.CurrencySymbol,
	})

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		AppName:      cfg.Shop.Name,
		ErrorHandler: middlewares.ErrorHandler,
		BodyLimit:    cfg.Server.BodyLimitBytes,
		// handlers keep Params/Query strings past the request (cache keys, events)
		Immutable: true,
	})

	app.Use(recover.New())
	app.Use(metrics.Middleware())

	// ---- CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowCredentials: false, // using Bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key",
	}))

	// ---- Global rate limiter (applies to all routes; tune via env)
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.Server.RateLimitMax,
		Expiration: cfg.Server.RateLimitWindow,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
	}))

	// ---- Routes
	routes.Register(app)

	// ---- Start
	go func() {
		logger.WithFields(logrus.Fields{
			"port":   cfg.Server.Port,
			"driver": cfg.Database.Driver,
			"redis":  cfg.Redis.Enabled(),
			"kafka":  cfg.Kafka.Enabled(),
		}).Info("API server starting")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			logger.WithError(err).Fatal("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		logger.WithError(err).Error("server forced to shutdown")
	}
	if err := publisher.Close(); err != nil {
		logger.WithError(err).Error("event publisher close failed")
	}
	if err := redisClient.Close(); err != nil {
		logger.WithError(err).Error("redis close failed")
	}
	if sqlDB, err := database.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	logger.Info("server exited")
}
