// internal/handlers/webhook/gateway_handler_test.go
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wakili-service/internal/domain/billing"
	"wakili-service/internal/gateway"
	webhookService "wakili-service/internal/service/webhook"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSecret = []byte("whsec_handler_test")

type recordingApplier struct {
	applied int
	err     error
}

func (a *recordingApplier) ApplyWebhookEvent(ctx context.Context, evt *billing.GatewayEvent) error {
	a.applied++
	return a.err
}

func newTestServer(applier *recordingApplier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := webhookService.NewRouter(applier, testSecret, nil, zap.NewNop())
	handler := NewGatewayHandler(router, zap.NewNop())

	r := gin.New()
	r.POST("/api/v1/webhooks/gateway", handler.HandleGatewayWebhook)
	return r
}

func deliver(t *testing.T, r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gateway", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(gateway.SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func eventBody(t *testing.T, eventType string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"token": "evt_h1", "type": eventType, "data": data})
	require.NoError(t, err)
	return raw
}

func TestWebhookMissingSignatureIs401(t *testing.T) {
	applier := &recordingApplier{}
	r := newTestServer(applier)

	body := eventBody(t, "payment.succeeded", map[string]any{})
	w := deliver(t, r, body, "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, applier.applied)
}

func TestWebhookBadSignatureIs401(t *testing.T) {
	applier := &recordingApplier{}
	r := newTestServer(applier)

	body := eventBody(t, "payment.succeeded", map[string]any{})
	w := deliver(t, r, body, "deadbeef")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, applier.applied)
}

func TestWebhookValidDeliveryIs200(t *testing.T) {
	applier := &recordingApplier{}
	r := newTestServer(applier)

	body := eventBody(t, "payment.succeeded", map[string]any{
		"tracker_ref": "trk_1",
		"metadata":    []string{"sub_tokenize", "sub_abc"},
	})
	w := deliver(t, r, body, gateway.Sign(body, testSecret))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, applier.applied)
}

func TestWebhookUnroutableEventStillAcked(t *testing.T) {
	applier := &recordingApplier{}
	r := newTestServer(applier)

	body := eventBody(t, "invoice.created", map[string]any{})
	w := deliver(t, r, body, gateway.Sign(body, testSecret))

	assert.Equal(t, http.StatusOK, w.Code, "unhandled kinds must not trigger redelivery")
	assert.Zero(t, applier.applied)
}

func TestWebhookMalformedBodyIs400(t *testing.T) {
	r := newTestServer(&recordingApplier{})

	body := []byte("{broken")
	w := deliver(t, r, body, gateway.Sign(body, testSecret))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookProcessingErrorIs500(t *testing.T) {
	applier := &recordingApplier{err: assert.AnError}
	r := newTestServer(applier)

	body := eventBody(t, "subscription.cancelled", map[string]any{"reference": "sub_abc"})
	w := deliver(t, r, body, gateway.Sign(body, testSecret))

	assert.Equal(t, http.StatusInternalServerError, w.Code, "storage failures must surface so the gateway redelivers")
}
