// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WebhookEvents counts webhook deliveries by canonical kind and result
	// (applied, duplicate, unroutable, rejected).
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wakili_billing_webhook_events_total",
		Help: "Webhook deliveries by canonical kind and processing result.",
	}, []string{"kind", "result"})

	// ChargeAttempts counts off-session charge attempts by outcome.
	ChargeAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wakili_billing_charge_attempts_total",
		Help: "Off-session charge attempts by outcome and renewal flag.",
	}, []string{"outcome", "renewal"})

	// RenewalSweeps counts scheduler sweeps by result.
	RenewalSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wakili_billing_renewal_sweeps_total",
		Help: "Daily renewal sweeps by result (ok, error, skipped).",
	}, []string{"result"})

	// SubscriptionsPastDue counts subscriptions pushed to past_due after
	// exhausting retries.
	SubscriptionsPastDue = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wakili_billing_subscriptions_past_due_total",
		Help: "Subscriptions transitioned to past_due after exhausting retries.",
	})
)

// Handler exposes the prometheus registry as a gin handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
