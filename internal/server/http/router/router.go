package router

import (
	"fmt"
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/wrwrabbit/apk-customizer-bot/internal/config"
	"github.com/wrwrabbit/apk-customizer-bot/internal/metrics"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/handlers"
	"github.com/wrwrabbit/apk-customizer-bot/internal/server/http/middleware"
)

// Setup configures gin router with handlers and middleware.
func Setup(facade handlers.ControllerFacade, cfg *config.Config, collector *metrics.PrometheusCollector, logger *slog.Logger) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(facade, logger))
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.Instrument(collector))
	engine.Use(middleware.DecompressRequest())
	engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	workerHandler := handlers.NewWorkerHandler(facade, cfg.MaxUploadSize, logger)
	orderHandler := handlers.NewOrderHandler(facade, logger)
	adminHandler := handlers.NewAdminHandler(facade, facade, logger)

	engine.GET("/healthz", adminHandler.Health)
	engine.GET("/metrics", gin.WrapH(collector.Handler()))

	workers := engine.Group("")
	workers.Use(middleware.WorkerRequired(facade, logger))
	workers.GET("/keep-alive", workerHandler.KeepAlive)
	workers.GET("/receive-order", workerHandler.ReceiveOrder)
	workers.GET("/get-current-order", workerHandler.CurrentOrder)
	workers.POST("/order-completed", workerHandler.OrderCompleted)
	workers.POST("/order-failed", workerHandler.OrderFailed)
	workers.GET("/receive-sources-only-order", workerHandler.ReceiveSourcesOrder)
	workers.POST("/sources-only-order-completed", workerHandler.SourcesOrderCompleted)

	api := engine.Group("/api")
	api.Use(middleware.FrontendRequired(facade))
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/:id", orderHandler.Get)
	api.PUT("/orders/:id", orderHandler.Update)
	api.DELETE("/orders/:id", orderHandler.Delete)
	api.POST("/orders/:id/events", orderHandler.Event)
	api.GET("/orders/:id/artifact", orderHandler.Artifact)
	api.POST("/error-logs/pop", adminHandler.PopErrorLog)
	api.GET("/stats/users/:user_id", adminHandler.UserStats)

	return engine, nil
}
