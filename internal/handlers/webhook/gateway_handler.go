// internal/handlers/webhook/gateway_handler.go
package webhook

import (
	"io"
	"net/http"

	"wakili-service/internal/gateway"
	"wakili-service/internal/pkg/response"
	"wakili-service/internal/service/webhook"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type GatewayHandler struct {
	router *webhook.Router
	logger *zap.Logger
}

func NewGatewayHandler(router *webhook.Router, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{router: router, logger: logger}
}

// HandleGatewayWebhook ingests one gateway delivery. The raw body is read
// before anything touches it because the signature covers the exact bytes on
// the wire. Authenticated deliveries are always acknowledged with 200, even
// when they match nothing locally, so the gateway stops redelivering; only a
// bad signature, a malformed body or a processing error asks for redelivery.
func (h *GatewayHandler) HandleGatewayWebhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	signature := c.GetHeader(gateway.SignatureHeader)

	outcome, err := h.router.Handle(c.Request.Context(), rawBody, signature)
	switch outcome {
	case webhook.OutcomeRejected:
		if err == webhook.ErrBadSignature {
			response.Unauthorized(c, "invalid webhook signature")
			return
		}
		response.Error(c, http.StatusBadRequest, "invalid webhook payload", err)
	case webhook.OutcomeError:
		h.logger.Error("webhook processing failed", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "webhook processing failed", err)
	default:
		response.Success(c, http.StatusOK, "acknowledged", gin.H{"outcome": outcome})
	}
}
