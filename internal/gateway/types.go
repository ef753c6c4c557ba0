// internal/gateway/types.go
package gateway

import "encoding/json"

// SessionMode selects what kind of hosted session the gateway opens.
type SessionMode string

const (
	// ModePayment: one-off customer-present payment.
	ModePayment SessionMode = "payment"
	// ModeTokenization: zero-amount card capture; the stored instrument is
	// charged off-session afterwards.
	ModeTokenization SessionMode = "tokenization"
	// ModeSubscription: gateway-managed recurring checkout.
	ModeSubscription SessionMode = "subscription"
)

// SessionRequest opens a hosted session. The gateway exposes exactly two
// free-form metadata slots; Purpose occupies slot 1 and Reference slot 2 so
// webhook deliveries can be routed back to the originating record.
type SessionRequest struct {
	Amount   float64
	Currency string
	OrderRef string
	Mode     SessionMode

	Purpose   string
	Reference string
}

// VerifyResult is the outcome of a payment-status lookup by tracker reference.
type VerifyResult struct {
	IsPaid    bool
	Reference string
	Amount    float64
	State     string
}

// ChargeResult is the structured outcome of an off-session charge. A decline
// is not an error: Success is false and FailureReason explains why, so every
// call site can write a uniform ledger row.
type ChargeResult struct {
	Success       bool
	TrackerRef    string
	ChargeRef     string
	FailureReason string
}

type CustomerRequest struct {
	Name  string
	Email string
	Phone string
}

type PlanRequest struct {
	Name     string
	Amount   float64
	Currency string
	Interval string
}

// wire shapes

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type sessionPayload struct {
	Amount   float64   `json:"amount"`
	Currency string    `json:"currency"`
	OrderRef string    `json:"order_ref"`
	Mode     string    `json:"mode"`
	Metadata [2]string `json:"metadata"`
}

type sessionResponse struct {
	TrackerRef string `json:"tracker_ref"`
}

type checkoutTokenPayload struct {
	TrackerRef string `json:"tracker_ref"`
}

type checkoutTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type transactionResponse struct {
	State      string  `json:"state"`
	Reference  string  `json:"reference"`
	CaptureRef string  `json:"capture_ref"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
}

type chargePayload struct {
	CustomerRef string  `json:"customer_ref"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	OrderRef    string  `json:"order_ref"`
}

type chargeResponse struct {
	TrackerRef    string `json:"tracker_ref"`
	ChargeRef     string `json:"charge_ref"`
	State         string `json:"state"`
	FailureReason string `json:"failure_reason"`
}

type customerPayload struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type customerResponse struct {
	CustomerRef string `json:"customer_ref"`
}

type planPayload struct {
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Interval string  `json:"interval"`
}

type planResponse struct {
	PlanRef string `json:"plan_ref"`
}

type subscriptionSessionPayload struct {
	PlanRef       string    `json:"plan_ref"`
	CustomerEmail string    `json:"customer_email"`
	RedirectURL   string    `json:"redirect_url"`
	Metadata      [2]string `json:"metadata"`
}

type subscriptionSessionResponse struct {
	CheckoutURL string `json:"checkout_url"`
}
