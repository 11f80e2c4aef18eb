package main

import (
	"voicebridge/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, limiter *httpapi.IPRateLimiter) {
	r.GET("/healthz", h.Healthz)

	// Carrier webhooks. Unauthenticated and never rate limited: a
	// refused webhook strands a live call.
	r.POST("/inbound-call", h.InboundCall)
	r.POST("/call-answered", h.CallAnswered)
	r.POST("/call-hangup", h.CallHangup)
	r.POST("/call-fallback", h.CallFallback)

	// Worker readiness callback (local traffic from launched agents).
	r.POST("/agent-ready", h.AgentReady)

	// Operator endpoints.
	ops := r.Group("/", httpapi.RateLimit(limiter))
	{
		ops.POST("/outbound-call", h.OutboundCall)
		ops.POST("/store-mapping", h.StoreMapping)
	}
}
