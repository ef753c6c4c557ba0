// internal/app/router.go
package app

import (
	billingHandler "wakili-service/internal/handlers/billing"
	webhookHandler "wakili-service/internal/handlers/webhook"
	"wakili-service/internal/middleware"
	"wakili-service/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	SubscriptionHandler   *billingHandler.SubscriptionHandler
	PlanHandler           *billingHandler.PlanHandler
	RenewalHandler        *billingHandler.RenewalHandler
	GatewayWebhookHandler *webhookHandler.GatewayHandler
	AuthMiddleware        *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	// ==================== Health & Metrics ====================
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})
	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")

	// ==================== Webhooks ====================
	// Authenticated by HMAC signature, not by JWT.
	api.POST("/webhooks/gateway", h.GatewayWebhookHandler.HandleGatewayWebhook)

	// ==================== Billing Plans ====================
	// The catalog is public; a valid token only widens it to non-public
	// plans for privileged callers.
	api.GET("/billing/plans", h.AuthMiddleware.OptionalAuth(), h.PlanHandler.ListPlans)
	plansAdmin := api.Group("/billing/plans")
	plansAdmin.Use(h.AuthMiddleware.AdminOnly()...)
	{
		plansAdmin.POST("", h.PlanHandler.CreatePlan)
	}

	// ==================== Subscriptions ====================
	subscriptions := api.Group("/billing/subscriptions")
	subscriptions.Use(h.AuthMiddleware.Auth())
	{
		subscriptions.POST("", h.SubscriptionHandler.InitiateSubscription)
		subscriptions.POST("/managed", h.SubscriptionHandler.InitiateManagedSubscription)
		subscriptions.GET("/current", h.SubscriptionHandler.GetCurrentSubscription)
		subscriptions.GET("/:id", h.SubscriptionHandler.GetSubscription)
		subscriptions.POST("/:id/activate", h.SubscriptionHandler.ActivateSubscription)
		subscriptions.POST("/:id/cancel", h.SubscriptionHandler.CancelSubscription)
		subscriptions.GET("/:id/payments", h.SubscriptionHandler.ListPayments)
	}

	// ==================== Operations ====================
	ops := api.Group("/billing/renewals")
	ops.Use(h.AuthMiddleware.AdminOnly()...)
	{
		ops.POST("/run", h.RenewalHandler.RunSweep)
	}
}
