// internal/domain/billing/dto.go
package billing

type InitiateSubscriptionRequest struct {
	PlanCode    string `json:"plan_code" binding:"required"`
	RedirectURL string `json:"redirect_url" binding:"required,url"`
	CancelURL   string `json:"cancel_url"`
}

// InitiateSubscriptionResponse carries the hosted checkout URL the client must
// redirect the subscriber to. The reference is the idempotency reference that
// webhook deliveries will be matched back against.
type InitiateSubscriptionResponse struct {
	SubscriptionID int64  `json:"subscription_id"`
	Reference      string `json:"reference"`
	CheckoutURL    string `json:"checkout_url"`
	Strategy       string `json:"strategy"`
}

type ActivateSubscriptionRequest struct {
	TrackerRef string `json:"tracker_ref" binding:"required"`
}

type CancelSubscriptionRequest struct {
	Reason string `json:"reason"`
}

type CreatePlanRequest struct {
	PlanCode     string   `json:"plan_code" binding:"required"`
	Name         string   `json:"name" binding:"required"`
	Description  string   `json:"description"`
	Price        float64  `json:"price" binding:"required,min=0"`
	Currency     string   `json:"currency" binding:"required,len=3"`
	BillingCycle string   `json:"billing_cycle" binding:"required,oneof=daily weekly monthly quarterly yearly"`
	Features     []string `json:"features"`
	IsPublic     bool     `json:"is_public"`

	// When true the plan is also created at the gateway so it can back
	// gateway-managed subscriptions.
	CreateAtGateway bool `json:"create_at_gateway"`
}

// Actor is the authenticated caller as resolved by the auth middleware.
type Actor struct {
	IdentityID int64
	Roles      []string
}

func (a Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether the actor may operate on subscriptions they do
// not own.
func (a Actor) IsPrivileged() bool {
	return a.HasRole("admin") || a.HasRole("super_admin")
}

// SweepResult summarizes one renewal sweep.
type SweepResult struct {
	Processed int `json:"processed"`
	Renewed   int `json:"renewed"`
	Failed    int `json:"failed"`
	PastDue   int `json:"past_due"`
}
