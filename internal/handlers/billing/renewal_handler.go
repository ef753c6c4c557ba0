// internal/handlers/billing/renewal_handler.go
package billing

import (
	"net/http"

	"wakili-service/internal/pkg/response"
	"wakili-service/internal/scheduler"

	"github.com/gin-gonic/gin"
)

// RenewalHandler exposes the manual sweep trigger for operators.
type RenewalHandler struct {
	scheduler *scheduler.Scheduler
}

func NewRenewalHandler(s *scheduler.Scheduler) *RenewalHandler {
	return &RenewalHandler{scheduler: s}
}

// RunSweep executes one renewal sweep immediately. Admin only.
func (h *RenewalHandler) RunSweep(c *gin.Context) {
	result, err := h.scheduler.RunOnce(c.Request.Context())
	if err != nil {
		response.FromError(c, "renewal sweep failed", err)
		return
	}

	response.Success(c, http.StatusOK, "renewal sweep complete", result)
}
