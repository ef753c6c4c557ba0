// internal/domain/billing/entity.go
package billing

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type SubscriptionStatus string

const (
	StatusPending   SubscriptionStatus = "pending"
	StatusActive    SubscriptionStatus = "active"
	StatusPastDue   SubscriptionStatus = "past_due"
	StatusUnpaid    SubscriptionStatus = "unpaid"
	StatusPaused    SubscriptionStatus = "paused"
	StatusCancelled SubscriptionStatus = "cancelled"
	StatusEnded     SubscriptionStatus = "ended"
)

// IsTerminal reports whether a status can never change again.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusEnded
}

// NonTerminalStatuses are the statuses counted by the one-subscription-per-owner rule.
var NonTerminalStatuses = []SubscriptionStatus{
	StatusPending, StatusActive, StatusPastDue, StatusUnpaid, StatusPaused,
}

type BillingStrategy string

const (
	// StrategySelfManaged: we hold a tokenized card at the gateway and run
	// every recurring charge ourselves. Primary strategy.
	StrategySelfManaged BillingStrategy = "self_managed"
	// StrategyGatewayManaged: the gateway owns the recurring schedule and we
	// follow it through webhooks. Legacy path.
	StrategyGatewayManaged BillingStrategy = "gateway_managed"
)

type BillingCycle string

const (
	CycleDaily     BillingCycle = "daily"
	CycleWeekly    BillingCycle = "weekly"
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

// NextPeriodEnd extends from as close to "from" as the cycle allows. Renewal
// callers must pass the previous period end, not the current time, so the
// schedule never drifts.
func (c BillingCycle) NextPeriodEnd(from time.Time) time.Time {
	switch c {
	case CycleDaily:
		return from.AddDate(0, 0, 1)
	case CycleWeekly:
		return from.AddDate(0, 0, 7)
	case CycleQuarterly:
		return from.AddDate(0, 3, 0)
	case CycleYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

type Plan struct {
	ID          int64          `json:"id" db:"id"`
	PlanCode    string         `json:"plan_code" db:"plan_code"`
	Name        string         `json:"name" db:"name"`
	Description sql.NullString `json:"description,omitempty" db:"description"`

	Price    float64 `json:"price" db:"price"`
	Currency string  `json:"currency" db:"currency"`

	BillingCycle BillingCycle   `json:"billing_cycle" db:"billing_cycle"`
	Features     pq.StringArray `json:"features,omitempty" db:"features"`

	// Set when the plan also exists as a gateway-side recurring plan.
	ExternalPlanID sql.NullString `json:"external_plan_id,omitempty" db:"external_plan_id"`

	Status   string `json:"status" db:"status"`
	IsPublic bool   `json:"is_public" db:"is_public"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Subscription struct {
	ID        int64  `json:"id" db:"id"`
	Reference string `json:"reference" db:"reference"`

	OwnerID  int64  `json:"owner_id" db:"owner_id"`
	PlanID   int64  `json:"plan_id" db:"plan_id"`
	PlanCode string `json:"plan_code" db:"plan_code"`

	Amount       float64      `json:"amount" db:"amount"`
	Currency     string       `json:"currency" db:"currency"`
	BillingCycle BillingCycle `json:"billing_cycle" db:"billing_cycle"`

	Strategy BillingStrategy    `json:"strategy" db:"strategy"`
	Status   SubscriptionStatus `json:"status" db:"status"`

	ExternalSubscriptionID sql.NullString `json:"external_subscription_id,omitempty" db:"external_subscription_id"`
	ExternalCustomerID     sql.NullString `json:"external_customer_id,omitempty" db:"external_customer_id"`

	CurrentPeriodStart time.Time `json:"current_period_start" db:"current_period_start"`
	CurrentPeriodEnd   time.Time `json:"current_period_end" db:"current_period_end"`
	BillingCycleCount  int       `json:"billing_cycle_count" db:"billing_cycle_count"`

	RetryCount       int            `json:"retry_count" db:"retry_count"`
	NextRetryAt      sql.NullTime   `json:"next_retry_at,omitempty" db:"next_retry_at"`
	LastPaymentError sql.NullString `json:"last_payment_error,omitempty" db:"last_payment_error"`

	CancelledAt        sql.NullTime   `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CancellationReason sql.NullString `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	PausedAt           sql.NullTime   `json:"paused_at,omitempty" db:"paused_at"`
	EndedAt            sql.NullTime   `json:"ended_at,omitempty" db:"ended_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is one charge attempt. Rows are append-only; a correction is a new
// row, never an update.
type Payment struct {
	ID             int64          `json:"id" db:"id"`
	SubscriptionID int64          `json:"subscription_id" db:"subscription_id"`
	Amount         float64        `json:"amount" db:"amount"`
	Currency       string         `json:"currency" db:"currency"`
	TrackerRef     string         `json:"tracker_ref" db:"tracker_ref"`
	ChargeRef      sql.NullString `json:"charge_ref,omitempty" db:"charge_ref"`
	Status         PaymentStatus  `json:"status" db:"status"`
	FailureReason  sql.NullString `json:"failure_reason,omitempty" db:"failure_reason"`
	IsRenewal      bool           `json:"is_renewal" db:"is_renewal"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Event is the append-only audit record for a webhook delivery or an
// engine-driven transition. Business logic only ever reads it to test for the
// presence of an event token.
type Event struct {
	ID             int64           `json:"id" db:"id"`
	EventToken     string          `json:"event_token" db:"event_token"`
	SubscriptionID sql.NullInt64   `json:"subscription_id,omitempty" db:"subscription_id"`
	Kind           string          `json:"kind" db:"kind"`
	Payload        []byte          `json:"payload,omitempty" db:"payload"`
	BillingCycle   sql.NullInt32   `json:"billing_cycle,omitempty" db:"billing_cycle"`
	Amount         sql.NullFloat64 `json:"amount,omitempty" db:"amount"`
	StatusSnapshot sql.NullString  `json:"status_snapshot,omitempty" db:"status_snapshot"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// OwnerContact is what the owner directory resolves for gateway customer
// creation.
type OwnerContact struct {
	OwnerID  int64  `json:"owner_id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
}
