// Package main is the entry point of the loyalty ledger service. It loads
// configuration, connects Postgres and Redis, seeds the tier table and
// starts the HTTP server.
package main

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"

	"loyka/internal/config"
	"loyka/internal/logging"
	"loyka/internal/repositories"
	"loyka/internal/routes"
	"loyka/internal/services/points"
)

func main() {
	config.LoadEnv()
	log := logging.NewLoggerWithService("server")

	db, err := repositories.InitDB()
	if err != nil {
		log.WithError(err).Fatal("database initialization failed")
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if err := repositories.SeedTiers(db, points.DefaultTiers()); err != nil {
		log.WithError(err).Fatal("tier seeding failed")
	}
	tiers, err := repositories.LoadTiers(db)
	if err != nil {
		log.WithError(err).Fatal("tier load failed")
	}
	policy, err := points.NewPolicy(tiers)
	if err != nil {
		log.WithError(err).Fatal("invalid tier configuration")
	}

	rdb := repositories.NewRedisClient()
	defer func() { _ = rdb.Close() }()

	app := fiber.New(fiber.Config{
		AppName: "loyka",
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: config.GetEnv("CORS_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Terminal-Secret",
		AllowMethods: "GET,POST,HEAD",
	}))

	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// settlement writes are rate limited per client
	app.Use("/api/v1/accounts", limiter.New(limiter.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Method() != fiber.MethodPost
		},
		Max:        config.GetIntEnv("WRITE_RATE_LIMIT", 60),
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, try again later",
			})
		},
	}))

	routes.SetupRoutes(app, db, rdb, policy)

	addr := ":" + config.GetEnv("PORT", "3000")
	log.WithField("addr", addr).Info("listening")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
