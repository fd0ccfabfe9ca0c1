package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	Reservations *ReservationHandler
	Webhooks     *WebhookHandler
	Health       *HealthHandler
	RateLimiter  *RateLimiter
}

// NewRouter mounts the public API under /api/v1. Webhooks are not rate limited
// so gateway redeliveries are never throttled.
func NewRouter(h Handlers, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	h.Health.Register(router)

	v1 := router.Group("/api/v1")
	if h.RateLimiter != nil {
		v1.Use(h.RateLimiter.Middleware())
	}
	h.Reservations.Register(v1.Group("/reservations"))
	h.Webhooks.Register(router.Group("/webhooks"))

	return router
}
