// Package router assembles the gin engine from the registered modules.
package router

import (
	"context"
	"net/http"
	"time"

	apphttp "bookingsync/internal/http"
	"bookingsync/platform/config"
	"bookingsync/platform/httpkit"
	"bookingsync/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Config combines the config interfaces the router needs.
type Config interface {
	config.HTTPConfig
	config.WebhookConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// New builds the HTTP engine and mounts every module's routes.
func New(cfg Config, log *logger.Logger, health HealthChecker, modules []apphttp.Module) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestID())
	engine.Use(httpkit.RequestLogger(log))
	engine.Use(corsMiddleware(cfg))

	engine.GET("/api/health", func(c *gin.Context) {
		if health != nil {
			if err := health.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")

	// The CRM fires webhooks in bursts on bulk status edits; the limiter
	// absorbs those without letting an abusive caller hammer the datastore.
	webhookLimiter := httpkit.NewIPRateLimiter(rate.Limit(30.0/60.0), 30, log)
	webhookGroup := v1.Group("/remonline")
	webhookGroup.Use(webhookLimiter.RateLimit())

	ctx := &apphttp.RouterContext{
		Engine:             engine,
		V1:                 v1,
		Webhook:            webhookGroup,
		Config:             cfg,
		WebhookRateLimiter: webhookLimiter,
	}

	for _, module := range modules {
		module.RegisterRoutes(ctx)
		log.Info("module routes registered", "module", module.Name())
	}

	return engine
}

func corsMiddleware(cfg Config) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", httpkit.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}
	if cfg.GetCORSAllowAll() {
		corsConfig.AllowAllOrigins = true
	} else if origins := cfg.GetCORSOrigins(); len(origins) > 0 {
		corsConfig.AllowOrigins = origins
	} else {
		// Webhooks are server-to-server; no browser origins by default.
		corsConfig.AllowOrigins = []string{"http://localhost"}
	}
	return cors.New(corsConfig)
}
