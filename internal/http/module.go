// Package http provides HTTP server infrastructure including the Module
// interface that all domain modules implement for route registration.
package http

import (
	"bookingsync/platform/config"
	"bookingsync/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module represents a bounded context that can register its HTTP routes.
// Each domain module implements this interface to encapsulate its own
// route setup, keeping the main router decoupled from specific endpoints.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access.
	Engine *gin.Engine
	// V1 is the /api/v1 route group.
	V1 *gin.RouterGroup
	// Webhook is the rate-limited /api/v1/remonline group for CRM-facing
	// endpoints authenticated by the shared webhook secret.
	Webhook *gin.RouterGroup
	// Config carries the webhook secret for the auth middleware.
	Config config.WebhookConfig
	// WebhookRateLimiter bounds inbound CRM webhook traffic per IP.
	WebhookRateLimiter *httpkit.IPRateLimiter
}
