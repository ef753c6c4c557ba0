// internal/handlers/billing/subscription_handler.go
package billing

import (
	"net/http"
	"strconv"

	domain "wakili-service/internal/domain/billing"
	"wakili-service/internal/middleware"
	"wakili-service/internal/pkg/response"
	service "wakili-service/internal/service/billing"

	"github.com/gin-gonic/gin"
)

type SubscriptionHandler struct {
	engine *service.Engine
}

func NewSubscriptionHandler(engine *service.Engine) *SubscriptionHandler {
	return &SubscriptionHandler{engine: engine}
}

// InitiateSubscription starts a self-managed subscription and returns the
// hosted checkout URL.
func (h *SubscriptionHandler) InitiateSubscription(c *gin.Context) {
	actor := middleware.MustGetActor(c)

	var req domain.InitiateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.engine.Initiate(c.Request.Context(), actor, req)
	if err != nil {
		response.FromError(c, "failed to initiate subscription", err)
		return
	}

	response.Success(c, http.StatusCreated, "subscription initiated", result)
}

// InitiateManagedSubscription starts a gateway-managed subscription against a
// plan that exists at the gateway.
func (h *SubscriptionHandler) InitiateManagedSubscription(c *gin.Context) {
	actor := middleware.MustGetActor(c)

	var req domain.InitiateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.engine.InitiateManaged(c.Request.Context(), actor, req)
	if err != nil {
		response.FromError(c, "failed to initiate subscription", err)
		return
	}

	response.Success(c, http.StatusCreated, "subscription initiated", result)
}

// ActivateSubscription confirms the initial checkout by tracker reference.
func (h *SubscriptionHandler) ActivateSubscription(c *gin.Context) {
	actor := middleware.MustGetActor(c)

	subscriptionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	var req domain.ActivateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.engine.Activate(c.Request.Context(), actor, subscriptionID, req.TrackerRef)
	if err != nil {
		response.FromError(c, "failed to activate subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription activated", result)
}

// CancelSubscription moves a subscription to its terminal cancelled state.
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	actor := middleware.MustGetActor(c)

	subscriptionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	var req domain.CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.engine.Cancel(c.Request.Context(), actor, subscriptionID, req.Reason)
	if err != nil {
		response.FromError(c, "failed to cancel subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription cancelled", result)
}

// GetSubscription retrieves a subscription by ID.
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	actor := middleware.MustGetActor(c)

	subscriptionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	result, err := h.engine.GetSubscription(c.Request.Context(), actor, subscriptionID)
	if err != nil {
		response.FromError(c, "subscription not found", err)
		return
	}

	response.Success(c, http.StatusOK, "subscription retrieved", result)
}

// GetCurrentSubscription retrieves the caller's non-terminal subscription.
func (h *SubscriptionHandler) GetCurrentSubscription(c *gin.Context) {
	actor := middleware.MustGetActor(c)

	result, err := h.engine.GetCurrentForOwner(c.Request.Context(), actor.IdentityID)
	if err != nil {
		response.FromError(c, "no current subscription", err)
		return
	}

	response.Success(c, http.StatusOK, "current subscription retrieved", result)
}

// ListPayments retrieves the charge ledger for a subscription.
func (h *SubscriptionHandler) ListPayments(c *gin.Context) {
	actor := middleware.MustGetActor(c)

	subscriptionID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "invalid subscription ID", err)
		return
	}

	result, err := h.engine.ListPayments(c.Request.Context(), actor, subscriptionID)
	if err != nil {
		response.FromError(c, "failed to list payments", err)
		return
	}

	response.Success(c, http.StatusOK, "payments retrieved", result)
}
