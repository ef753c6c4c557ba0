// internal/handlers/billing/plan_handler.go
package billing

import (
	"net/http"

	domain "wakili-service/internal/domain/billing"
	"wakili-service/internal/middleware"
	"wakili-service/internal/pkg/response"
	service "wakili-service/internal/service/billing"

	"github.com/gin-gonic/gin"
)

type PlanHandler struct {
	engine *service.Engine
}

func NewPlanHandler(engine *service.Engine) *PlanHandler {
	return &PlanHandler{engine: engine}
}

// ListPlans returns the active catalog. The route is public; anonymous and
// unprivileged callers only see public plans.
func (h *PlanHandler) ListPlans(c *gin.Context) {
	plans, err := h.engine.ListPlans(c.Request.Context(), !middleware.IsAdmin(c))
	if err != nil {
		response.FromError(c, "failed to list plans", err)
		return
	}

	response.Success(c, http.StatusOK, "plans retrieved", plans)
}

// CreatePlan registers a plan. Admin only; enforced by route middleware.
func (h *PlanHandler) CreatePlan(c *gin.Context) {
	var req domain.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	plan, err := h.engine.CreatePlan(c.Request.Context(), req)
	if err != nil {
		response.FromError(c, "failed to create plan", err)
		return
	}

	response.Success(c, http.StatusCreated, "plan created", plan)
}
