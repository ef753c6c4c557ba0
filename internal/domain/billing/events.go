// internal/domain/billing/events.go
package billing

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Canonical event kinds. The gateway spells the same event with dots in some
// deliveries and underscores in others; everything is normalized to these
// before dispatch.
const (
	EventPaymentSucceeded             = "payment.succeeded"
	EventPaymentFailed                = "payment.failed"
	EventSubscriptionCreated          = "subscription.created"
	EventSubscriptionPaymentSucceeded = "subscription.payment.succeeded"
	EventSubscriptionPaymentFailed    = "subscription.payment.failed"
	EventSubscriptionCancelled        = "subscription.cancelled"
	EventSubscriptionEnded            = "subscription.ended"
	EventSubscriptionPaused           = "subscription.paused"
	EventSubscriptionResumed          = "subscription.resumed"
)

// eventAliases maps the separator-normalized wire spellings to canonical
// kinds. Keys are lowercase with every underscore already folded to a dot.
var eventAliases = map[string]string{
	"payment.succeeded":              EventPaymentSucceeded,
	"charge.success":                 EventPaymentSucceeded,
	"payment.failed":                 EventPaymentFailed,
	"charge.failed":                  EventPaymentFailed,
	"subscription.created":           EventSubscriptionCreated,
	"subscription.create":            EventSubscriptionCreated,
	"subscription.payment.succeeded": EventSubscriptionPaymentSucceeded,
	"subscription.charge.success":    EventSubscriptionPaymentSucceeded,
	"subscription.payment.failed":    EventSubscriptionPaymentFailed,
	"subscription.charge.failed":     EventSubscriptionPaymentFailed,
	"subscription.cancelled":         EventSubscriptionCancelled,
	"subscription.canceled":          EventSubscriptionCancelled,
	"subscription.disable":           EventSubscriptionCancelled,
	"subscription.ended":             EventSubscriptionEnded,
	"subscription.expired":           EventSubscriptionEnded,
	"subscription.paused":            EventSubscriptionPaused,
	"subscription.resumed":           EventSubscriptionResumed,
}

// CanonicalEventKind resolves a raw wire event type to its canonical kind.
func CanonicalEventKind(raw string) (string, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", ".")
	kind, ok := eventAliases[normalized]
	return kind, ok
}

// Purpose tags packed into the gateway session metadata at checkout time and
// round-tripped back on generic payment events. The gateway gives us exactly
// two free-form slots, so slot 1 is the purpose and slot 2 the subscription
// reference.
const (
	PurposeTokenization = "sub_tokenize"
	PurposeRecurring    = "sub_recurring"
)

// PaymentEventPayload is the decoded shape of the generic payment event
// family (payment.succeeded / payment.failed).
type PaymentEventPayload struct {
	TrackerRef string   `json:"tracker_ref"`
	ChargeRef  string   `json:"charge_ref"`
	Amount     float64  `json:"amount"`
	Currency   string   `json:"currency"`
	State      string   `json:"state"`
	Metadata   []string `json:"metadata"`
}

// Purpose returns the routing tag from metadata slot 1, if present.
func (p *PaymentEventPayload) Purpose() string {
	if len(p.Metadata) > 0 {
		return p.Metadata[0]
	}
	return ""
}

// Reference returns the subscription idempotency reference from metadata
// slot 2, if present.
func (p *PaymentEventPayload) Reference() string {
	if len(p.Metadata) > 1 {
		return p.Metadata[1]
	}
	return ""
}

// SubscriptionEventPayload is the decoded shape of the gateway-native
// subscription event family.
type SubscriptionEventPayload struct {
	ExternalSubscriptionID string     `json:"subscription_ref"`
	ExternalCustomerID     string     `json:"customer_ref"`
	Reference              string     `json:"reference"`
	Status                 string     `json:"status"`
	Amount                 float64    `json:"amount"`
	Currency               string     `json:"currency"`
	BillingCycle           int        `json:"billing_cycle"`
	PeriodStart            *time.Time `json:"current_period_start"`
	PeriodEnd              *time.Time `json:"current_period_end"`
	TrackerRef             string     `json:"tracker_ref"`
	ChargeRef              string     `json:"charge_ref"`
}

// GatewayEvent is one normalized, decoded webhook delivery. Exactly one of
// Payment / Subscription is set, keyed by Kind.
type GatewayEvent struct {
	Token        string
	Kind         string
	Raw          json.RawMessage
	Payment      *PaymentEventPayload
	Subscription *SubscriptionEventPayload
}

// DecodeEvent resolves the payload union for a canonical kind. The raw bytes
// are retained for audit rows.
func DecodeEvent(kind, token string, data json.RawMessage) (*GatewayEvent, error) {
	evt := &GatewayEvent{Token: token, Kind: kind, Raw: data}

	switch kind {
	case EventPaymentSucceeded, EventPaymentFailed:
		var p PaymentEventPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to decode payment event: %w", err)
		}
		evt.Payment = &p
	default:
		var s SubscriptionEventPayload
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("failed to decode subscription event: %w", err)
		}
		evt.Subscription = &s
	}

	return evt, nil
}
