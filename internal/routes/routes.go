// Package routes wires the storage, service and handler layers together
// and mounts the HTTP surface.
package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"loyka/internal/config"
	"loyka/internal/handlers"
	"loyka/internal/logging"
	"loyka/internal/middleware"
	"loyka/internal/repositories"
	"loyka/internal/services/card"
	"loyka/internal/services/ledger"
	"loyka/internal/services/notification"
	"loyka/internal/services/points"
)

// SetupRoutes builds the dependency graph and registers all routes.
// rdb may be nil; caching and the Redis notification sink are then disabled.
func SetupRoutes(app *fiber.App, db *gorm.DB, rdb *redis.Client, policy *points.Policy) {
	logger := logging.NewLoggerWithService("ledger")

	var cache repositories.CacheRepository
	var sink notification.Sink
	if rdb != nil {
		cache = repositories.NewRedisCacheRepository(rdb)
		sink = notification.NewRedisSink(rdb, notification.DefaultChannel)
	} else {
		sink = notification.NewLogSink(logger)
	}

	store := repositories.NewAccountStore(db, cache)
	issuer := card.NewIssuer()
	metrics := ledger.NewPrometheusCollector(prometheus.DefaultRegisterer)

	engine := ledger.NewService(store, policy, issuer, sink, ledger.Config{
		NotifyTimeout: config.GetDurationEnv("NOTIFY_TIMEOUT", ledger.DefaultNotifyTimeout),
	}, metrics, logger)

	ledgerHandler := handlers.NewLedgerHandler(engine)
	healthHandler := handlers.NewHealthHandler(db, rdb)

	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	auth := middleware.NewTerminalAuth(
		config.GetEnv("JWT_SECRET", "loyka-dev-secret"),
		config.GetEnv("TERMINAL_SECRET_HASH", ""),
	)

	api := app.Group("/api/v1", auth.Handler)
	api.Post("/accounts/:id/transactions", ledgerHandler.ProcessTransaction)
	api.Get("/accounts/:id", ledgerHandler.GetAccount)
	api.Get("/accounts/:id/transactions", ledgerHandler.GetHistory)
	api.Get("/accounts/:id/card", ledgerHandler.GetActiveCard)
	api.Post("/accounts/:id/card/revoke", middleware.RequireRole("manager"), ledgerHandler.RevokeCard)
}
