// internal/service/billing/stores.go
package billing

import (
	"context"
	"time"

	"wakili-service/internal/domain/billing"
	"wakili-service/internal/gateway"
)

// The engine depends on narrow store interfaces rather than the concrete pgx
// repositories so the lifecycle rules can be tested against in-memory fakes.
// Production wiring binds them to internal/repository/postgres.

type SubscriptionStore interface {
	Create(ctx context.Context, sub *billing.Subscription) error
	FindByID(ctx context.Context, id int64) (*billing.Subscription, error)
	FindByReference(ctx context.Context, reference string) (*billing.Subscription, error)
	FindByExternalID(ctx context.Context, externalID string) (*billing.Subscription, error)
	FindNonTerminalByOwner(ctx context.Context, ownerID int64) (*billing.Subscription, error)
	FindDueForRenewal(ctx context.Context, now time.Time) ([]*billing.Subscription, error)
	Update(ctx context.Context, sub *billing.Subscription) error
}

type PaymentStore interface {
	Create(ctx context.Context, p *billing.Payment) error
	FindSucceededByTracker(ctx context.Context, trackerRef string) (*billing.Payment, error)
	ListBySubscription(ctx context.Context, subscriptionID int64) ([]*billing.Payment, error)
}

type EventStore interface {
	Insert(ctx context.Context, e *billing.Event) (bool, error)
	ExistsByToken(ctx context.Context, token string) (bool, error)
}

type PlanStore interface {
	Create(ctx context.Context, p *billing.Plan) error
	FindByCode(ctx context.Context, planCode string) (*billing.Plan, error)
	List(ctx context.Context, publicOnly bool) ([]*billing.Plan, error)
}

// OwnerDirectory resolves subscriber contact info; the directory itself is
// owned by another part of the platform.
type OwnerDirectory interface {
	Resolve(ctx context.Context, ownerID int64) (*billing.OwnerContact, error)
}

// Gateway is the slice of the payment gateway client the engine uses.
type Gateway interface {
	CreateSession(ctx context.Context, req gateway.SessionRequest) (string, error)
	BuildCheckoutURL(ctx context.Context, trackerRef, redirectURL, cancelURL string) (string, error)
	VerifyPayment(ctx context.Context, trackerRef string) (gateway.VerifyResult, error)
	ChargeOffSession(ctx context.Context, customerRef string, amount float64, currency, orderRef string) (gateway.ChargeResult, error)
	CreateCustomer(ctx context.Context, req gateway.CustomerRequest) (string, error)
	CreatePlan(ctx context.Context, req gateway.PlanRequest) (string, error)
	CreateSubscriptionCheckout(ctx context.Context, externalPlanID, customerEmail, reference, redirectURL string) (string, error)
	CancelSubscription(ctx context.Context, externalSubscriptionID string) error
}
