// internal/gateway/client.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config carries everything the client needs to talk to the gateway. One
// Client is constructed at process start and shared by reference; there is no
// package-level instance.
type Config struct {
	BaseURL         string
	CheckoutBaseURL string
	APIKey          string
	WebhookSecret   string
	Timeout         time.Duration
}

type Client struct {
	baseURL       string
	checkoutBase  string
	apiKey        string
	webhookSecret []byte
	httpClient    *http.Client
	logger        *zap.Logger
}

func NewClient(cfg Config, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		checkoutBase:  strings.TrimRight(cfg.CheckoutBaseURL, "/"),
		apiKey:        cfg.APIKey,
		webhookSecret: []byte(cfg.WebhookSecret),
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// CreateSession opens a payment or zero-amount tokenization session and
// returns the gateway's tracker reference for it.
func (c *Client) CreateSession(ctx context.Context, req SessionRequest) (string, error) {
	payload := sessionPayload{
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		OrderRef: req.OrderRef,
		Mode:     string(req.Mode),
		Metadata: [2]string{req.Purpose, req.Reference},
	}

	var resp sessionResponse
	if err := c.post(ctx, "create_session", "/v1/sessions", payload, &resp); err != nil {
		return "", err
	}
	if resp.TrackerRef == "" {
		return "", statusError("create_session", http.StatusOK, "response missing tracker_ref")
	}
	return resp.TrackerRef, nil
}

// BuildCheckoutURL exchanges a tracker reference for a short-lived checkout
// bearer and assembles the hosted checkout URL. Either step failing surfaces
// a gateway error; a partial URL is never returned.
func (c *Client) BuildCheckoutURL(ctx context.Context, trackerRef, redirectURL, cancelURL string) (string, error) {
	var token checkoutTokenResponse
	if err := c.post(ctx, "checkout_token", "/v1/auth/checkout-token", checkoutTokenPayload{TrackerRef: trackerRef}, &token); err != nil {
		return "", err
	}
	if token.Token == "" {
		return "", statusError("checkout_token", http.StatusOK, "response missing token")
	}

	q := url.Values{}
	q.Set("session", trackerRef)
	q.Set("token", token.Token)
	q.Set("redirect", redirectURL)
	if cancelURL != "" {
		q.Set("cancel", cancelURL)
	}
	return fmt.Sprintf("%s/pay?%s", c.checkoutBase, q.Encode()), nil
}

// terminal transaction states as the gateway reports them
const (
	stateCompleted = "completed"
	stateCaptured  = "captured"
)

// VerifyPayment looks up a transaction by tracker reference. A payment counts
// as paid only when the state is terminal AND a capture is present, or the
// gateway reports an explicit "completed". Intermediate states resolve to
// not paid.
func (c *Client) VerifyPayment(ctx context.Context, trackerRef string) (VerifyResult, error) {
	var tx transactionResponse
	if err := c.get(ctx, "verify_payment", "/v1/transactions/"+url.PathEscape(trackerRef), &tx); err != nil {
		return VerifyResult{}, err
	}

	state := strings.ToLower(tx.State)
	paid := state == stateCompleted || (state == stateCaptured && tx.CaptureRef != "")

	return VerifyResult{
		IsPaid:    paid,
		Reference: tx.Reference,
		Amount:    tx.Amount,
		State:     state,
	}, nil
}

// ChargeOffSession runs a merchant-initiated charge against a stored
// instrument. A decline comes back as ChargeResult{Success: false} with a nil
// error; only transport/auth/malformed-response failures return an error.
func (c *Client) ChargeOffSession(ctx context.Context, customerRef string, amount float64, currency, orderRef string) (ChargeResult, error) {
	payload := chargePayload{
		CustomerRef: customerRef,
		Amount:      amount,
		Currency:    strings.ToUpper(currency),
		OrderRef:    orderRef,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ChargeResult{}, opError("charge", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/charges", bytes.NewReader(body))
	if err != nil {
		return ChargeResult{}, opError("charge", err)
	}
	c.setHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ChargeResult{}, opError("charge", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return ChargeResult{}, opError("charge", err)
	}

	// 402 is the gateway's decline status; the envelope still carries the
	// tracker and failure reason.
	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusPaymentRequired {
		return ChargeResult{}, statusError("charge", httpResp.StatusCode, envelopeMessage(raw))
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ChargeResult{}, opError("charge", fmt.Errorf("malformed response: %w", err))
	}
	var charge chargeResponse
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &charge); err != nil {
			return ChargeResult{}, opError("charge", fmt.Errorf("malformed charge data: %w", err))
		}
	}

	if httpResp.StatusCode == http.StatusPaymentRequired || strings.ToLower(charge.State) == "declined" {
		reason := charge.FailureReason
		if reason == "" {
			reason = envelopeMessage(raw)
		}
		if reason == "" {
			reason = "charge declined"
		}
		return ChargeResult{
			Success:       false,
			TrackerRef:    charge.TrackerRef,
			ChargeRef:     charge.ChargeRef,
			FailureReason: reason,
		}, nil
	}

	if charge.TrackerRef == "" {
		return ChargeResult{}, statusError("charge", httpResp.StatusCode, "response missing tracker_ref")
	}

	return ChargeResult{
		Success:    true,
		TrackerRef: charge.TrackerRef,
		ChargeRef:  charge.ChargeRef,
	}, nil
}

// CreateCustomer registers the subscriber at the gateway and returns the
// customer reference used for off-session charging.
func (c *Client) CreateCustomer(ctx context.Context, req CustomerRequest) (string, error) {
	var resp customerResponse
	if err := c.post(ctx, "create_customer", "/v1/customers", customerPayload(req), &resp); err != nil {
		return "", err
	}
	if resp.CustomerRef == "" {
		return "", statusError("create_customer", http.StatusOK, "response missing customer_ref")
	}
	return resp.CustomerRef, nil
}

// CreatePlan creates a gateway-side recurring plan. The provider has no SDK
// surface for plan management, so this is a direct administrative call.
func (c *Client) CreatePlan(ctx context.Context, req PlanRequest) (string, error) {
	var resp planResponse
	if err := c.post(ctx, "create_plan", "/v1/plans", planPayload{
		Name:     req.Name,
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
		Interval: req.Interval,
	}, &resp); err != nil {
		return "", err
	}
	if resp.PlanRef == "" {
		return "", statusError("create_plan", http.StatusOK, "response missing plan_ref")
	}
	return resp.PlanRef, nil
}

// CreateSubscriptionCheckout opens a gateway-managed recurring checkout bound
// to an upstream plan and returns the hosted checkout URL.
func (c *Client) CreateSubscriptionCheckout(ctx context.Context, externalPlanID, customerEmail, reference, redirectURL string) (string, error) {
	var resp subscriptionSessionResponse
	if err := c.post(ctx, "subscription_checkout", "/v1/subscriptions/sessions", subscriptionSessionPayload{
		PlanRef:       externalPlanID,
		CustomerEmail: customerEmail,
		RedirectURL:   redirectURL,
		Metadata:      [2]string{"subscription", reference},
	}, &resp); err != nil {
		return "", err
	}
	if resp.CheckoutURL == "" {
		return "", statusError("subscription_checkout", http.StatusOK, "response missing checkout_url")
	}
	return resp.CheckoutURL, nil
}

// CancelSubscription cancels a gateway-managed subscription upstream.
func (c *Client) CancelSubscription(ctx context.Context, externalSubscriptionID string) error {
	path := "/v1/subscriptions/" + url.PathEscape(externalSubscriptionID) + "/cancel"
	return c.post(ctx, "cancel_subscription", path, struct{}{}, nil)
}

// --- transport helpers ---

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}

func (c *Client) post(ctx context.Context, op, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return opError(op, err)
	}
	return c.do(ctx, op, http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *Client) get(ctx context.Context, op, path string, out interface{}) error {
	return c.do(ctx, op, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return opError(op, err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return opError(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return opError(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("gateway call failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
		)
		return statusError(op, resp.StatusCode, envelopeMessage(raw))
	}

	if out == nil {
		return nil
	}

	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opError(op, fmt.Errorf("malformed response: %w", err))
	}
	if len(env.Data) == 0 {
		return statusError(op, resp.StatusCode, "response missing data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return opError(op, fmt.Errorf("malformed response data: %w", err))
	}
	return nil
}

func envelopeMessage(raw []byte) string {
	var env apiEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return ""
	}
	return env.Message
}
