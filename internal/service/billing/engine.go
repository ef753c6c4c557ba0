// internal/service/billing/engine.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"wakili-service/internal/domain/billing"
	"wakili-service/internal/gateway"
	xerrors "wakili-service/internal/pkg/errors"
	"wakili-service/internal/pkg/metrics"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Config tunes the lifecycle rules. RetrySchedule[i] is the delay applied
// after failed attempt i+1; once len(RetrySchedule) attempts have failed the
// subscription drops to past_due.
type Config struct {
	MaxRetries    int
	RetrySchedule []time.Duration
	ChargeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetrySchedule: []time.Duration{
			24 * time.Hour,
			72 * time.Hour,
			168 * time.Hour,
		},
		ChargeTimeout: 30 * time.Second,
	}
}

// Engine owns every subscription state transition. Handlers, the webhook
// router and the renewal scheduler all funnel through it; nothing else
// mutates billing rows.
type Engine struct {
	subs     SubscriptionStore
	payments PaymentStore
	events   EventStore
	plans    PlanStore
	owners   OwnerDirectory
	gw       Gateway
	cfg      Config
	logger   *zap.Logger

	// now is swapped out in tests to drive the retry ladder.
	now func() time.Time
}

func NewEngine(
	subs SubscriptionStore,
	payments PaymentStore,
	events EventStore,
	plans PlanStore,
	owners OwnerDirectory,
	gw Gateway,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.MaxRetries == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		subs:     subs,
		payments: payments,
		events:   events,
		plans:    plans,
		owners:   owners,
		gw:       gw,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

func newReference() string {
	return "sub_" + strings.ToLower(ulid.Make().String())
}

// Initiate starts a self-managed subscription: customer and tokenization
// session are created at the gateway first, then the pending row is written
// locally. If the local insert fails the gateway session simply expires
// unused, so there is nothing to roll back.
func (e *Engine) Initiate(ctx context.Context, actor billing.Actor, req billing.InitiateSubscriptionRequest) (*billing.InitiateSubscriptionResponse, error) {
	if existing, err := e.subs.FindNonTerminalByOwner(ctx, actor.IdentityID); err == nil && existing != nil {
		return nil, xerrors.ErrSubscriptionExists
	} else if err != nil && !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	plan, err := e.plans.FindByCode(ctx, req.PlanCode)
	if err != nil {
		return nil, xerrors.Wrap(err, "plan lookup failed")
	}

	contact, err := e.owners.Resolve(ctx, actor.IdentityID)
	if err != nil {
		return nil, xerrors.Wrap(err, "owner lookup failed")
	}

	customerRef, err := e.gw.CreateCustomer(ctx, gateway.CustomerRequest{
		Name:  contact.FullName,
		Email: contact.Email,
		Phone: contact.Phone,
	})
	if err != nil {
		return nil, err
	}

	reference := newReference()

	// Zero-amount session: the hosted checkout only tokenizes the
	// instrument, the first charge runs off-session at activation.
	trackerRef, err := e.gw.CreateSession(ctx, gateway.SessionRequest{
		Amount:    0,
		Currency:  plan.Currency,
		OrderRef:  reference,
		Mode:      gateway.ModeTokenization,
		Purpose:   billing.PurposeTokenization,
		Reference: reference,
	})
	if err != nil {
		return nil, err
	}

	checkoutURL, err := e.gw.BuildCheckoutURL(ctx, trackerRef, req.RedirectURL, req.CancelURL)
	if err != nil {
		return nil, err
	}

	now := e.now()
	sub := &billing.Subscription{
		Reference:          reference,
		OwnerID:            actor.IdentityID,
		PlanID:             plan.ID,
		PlanCode:           plan.PlanCode,
		Amount:             plan.Price,
		Currency:           plan.Currency,
		BillingCycle:       plan.BillingCycle,
		Strategy:           billing.StrategySelfManaged,
		Status:             billing.StatusPending,
		ExternalCustomerID: sql.NullString{String: customerRef, Valid: true},
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now,
	}
	if err := e.subs.Create(ctx, sub); err != nil {
		return nil, err
	}

	e.recordEvent(ctx, sub, billing.EventSubscriptionCreated, "created:"+reference, nil)

	e.logger.Info("subscription initiated",
		zap.String("reference", reference),
		zap.Int64("owner_id", actor.IdentityID),
		zap.String("plan_code", plan.PlanCode),
	)

	return &billing.InitiateSubscriptionResponse{
		SubscriptionID: sub.ID,
		Reference:      reference,
		CheckoutURL:    checkoutURL,
		Strategy:       string(billing.StrategySelfManaged),
	}, nil
}

// InitiateManaged starts a gateway-managed subscription against a plan that
// has a gateway-side counterpart. Activation arrives exclusively over
// webhooks.
func (e *Engine) InitiateManaged(ctx context.Context, actor billing.Actor, req billing.InitiateSubscriptionRequest) (*billing.InitiateSubscriptionResponse, error) {
	if existing, err := e.subs.FindNonTerminalByOwner(ctx, actor.IdentityID); err == nil && existing != nil {
		return nil, xerrors.ErrSubscriptionExists
	} else if err != nil && !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	plan, err := e.plans.FindByCode(ctx, req.PlanCode)
	if err != nil {
		return nil, xerrors.Wrap(err, "plan lookup failed")
	}
	if !plan.ExternalPlanID.Valid {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "plan has no gateway counterpart")
	}

	contact, err := e.owners.Resolve(ctx, actor.IdentityID)
	if err != nil {
		return nil, xerrors.Wrap(err, "owner lookup failed")
	}

	reference := newReference()

	checkoutURL, err := e.gw.CreateSubscriptionCheckout(ctx, plan.ExternalPlanID.String, contact.Email, reference, req.RedirectURL)
	if err != nil {
		return nil, err
	}

	now := e.now()
	sub := &billing.Subscription{
		Reference:          reference,
		OwnerID:            actor.IdentityID,
		PlanID:             plan.ID,
		PlanCode:           plan.PlanCode,
		Amount:             plan.Price,
		Currency:           plan.Currency,
		BillingCycle:       plan.BillingCycle,
		Strategy:           billing.StrategyGatewayManaged,
		Status:             billing.StatusPending,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now,
	}
	if err := e.subs.Create(ctx, sub); err != nil {
		return nil, err
	}

	e.recordEvent(ctx, sub, billing.EventSubscriptionCreated, "created:"+reference, nil)

	return &billing.InitiateSubscriptionResponse{
		SubscriptionID: sub.ID,
		Reference:      reference,
		CheckoutURL:    checkoutURL,
		Strategy:       string(billing.StrategyGatewayManaged),
	}, nil
}

// Activate confirms the initial checkout for a subscription the actor owns,
// then runs the first off-session charge against the tokenized instrument.
// Safe to call more than once for the same tracker reference.
func (e *Engine) Activate(ctx context.Context, actor billing.Actor, subscriptionID int64, trackerRef string) (*billing.Subscription, error) {
	sub, err := e.subs.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID != actor.IdentityID && !actor.IsPrivileged() {
		return nil, xerrors.ErrForbidden
	}
	return e.activate(ctx, sub, trackerRef)
}

// ActivateByReference is the webhook-driven activation path.
func (e *Engine) ActivateByReference(ctx context.Context, reference, trackerRef string) (*billing.Subscription, error) {
	sub, err := e.subs.FindByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	return e.activate(ctx, sub, trackerRef)
}

func (e *Engine) activate(ctx context.Context, sub *billing.Subscription, trackerRef string) (*billing.Subscription, error) {
	if sub.Status.IsTerminal() {
		return nil, xerrors.ErrTerminalStatus
	}
	// Replayed confirmation of a subscription already running.
	if sub.Status == billing.StatusActive {
		return sub, nil
	}

	charged := false
	if _, err := e.payments.FindSucceededByTracker(ctx, trackerRef); err == nil {
		// Crash between the ledger write and the status flip: finish the
		// transition without charging again.
		charged = true
	} else if !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	if !charged {
		// The checkout moves no money; it only tokenizes the instrument.
		// Refuse to charge before the customer finished it.
		verify, err := e.gw.VerifyPayment(ctx, trackerRef)
		if err != nil {
			return nil, err
		}
		if !verify.IsPaid {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, fmt.Sprintf("checkout not completed (state %q)", verify.State))
		}
		if !sub.ExternalCustomerID.Valid {
			return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "subscription has no gateway customer")
		}

		chargeCtx, cancel := context.WithTimeout(ctx, e.cfg.ChargeTimeout)
		charge, err := e.gw.ChargeOffSession(chargeCtx, sub.ExternalCustomerID.String, sub.Amount, sub.Currency, sub.Reference+":activation")
		cancel()
		if err != nil {
			metrics.ChargeAttempts.WithLabelValues("error", "false").Inc()
			return nil, err
		}

		// The attempt lands on the ledger whichever way it went.
		payment := &billing.Payment{
			SubscriptionID: sub.ID,
			Amount:         sub.Amount,
			Currency:       sub.Currency,
			TrackerRef:     trackerRef,
			ChargeRef:      sql.NullString{String: charge.ChargeRef, Valid: charge.ChargeRef != ""},
			Status:         billing.PaymentSucceeded,
			IsRenewal:      false,
		}
		if !charge.Success {
			payment.Status = billing.PaymentFailed
			payment.FailureReason = sql.NullString{String: charge.FailureReason, Valid: charge.FailureReason != ""}
		}
		if err := e.payments.Create(ctx, payment); err != nil {
			return nil, err
		}

		if !charge.Success {
			metrics.ChargeAttempts.WithLabelValues("declined", "false").Inc()
			sub.LastPaymentError = sql.NullString{String: charge.FailureReason, Valid: charge.FailureReason != ""}
			if err := e.subs.Update(ctx, sub); err != nil {
				return nil, err
			}
			e.recordEvent(ctx, sub, billing.EventPaymentFailed, "activation-failed:"+trackerRef, &sub.Amount)
			return nil, xerrors.Wrap(xerrors.ErrChargeFailed, charge.FailureReason)
		}
		metrics.ChargeAttempts.WithLabelValues("succeeded", "false").Inc()
	}

	now := e.now()
	sub.Status = billing.StatusActive
	sub.CurrentPeriodStart = now
	sub.CurrentPeriodEnd = sub.BillingCycle.NextPeriodEnd(now)
	sub.BillingCycleCount = 1
	sub.RetryCount = 0
	sub.NextRetryAt = sql.NullTime{}
	sub.LastPaymentError = sql.NullString{}
	if err := e.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	e.recordEvent(ctx, sub, billing.EventPaymentSucceeded, "activation:"+trackerRef, &sub.Amount)
	e.logger.Info("subscription activated",
		zap.String("reference", sub.Reference),
		zap.String("tracker_ref", trackerRef),
	)

	return sub, nil
}

// Cancel moves a subscription to its terminal cancelled state. Access stays
// until the paid period runs out; there is no proration.
func (e *Engine) Cancel(ctx context.Context, actor billing.Actor, subscriptionID int64, reason string) (*billing.Subscription, error) {
	sub, err := e.subs.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID != actor.IdentityID && !actor.IsPrivileged() {
		return nil, xerrors.ErrForbidden
	}
	if sub.Status.IsTerminal() {
		return nil, xerrors.ErrTerminalStatus
	}

	if sub.Strategy == billing.StrategyGatewayManaged && sub.ExternalSubscriptionID.Valid {
		if err := e.gw.CancelSubscription(ctx, sub.ExternalSubscriptionID.String); err != nil {
			return nil, err
		}
	}

	now := e.now()
	sub.Status = billing.StatusCancelled
	sub.CancelledAt = sql.NullTime{Time: now, Valid: true}
	sub.CancellationReason = sql.NullString{String: reason, Valid: reason != ""}
	sub.NextRetryAt = sql.NullTime{}
	if err := e.subs.Update(ctx, sub); err != nil {
		return nil, err
	}

	e.recordEvent(ctx, sub, billing.EventSubscriptionCancelled, "cancelled:"+sub.Reference, nil)
	e.logger.Info("subscription cancelled",
		zap.String("reference", sub.Reference),
		zap.String("reason", reason),
	)
	return sub, nil
}

func (e *Engine) GetSubscription(ctx context.Context, actor billing.Actor, subscriptionID int64) (*billing.Subscription, error) {
	sub, err := e.subs.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID != actor.IdentityID && !actor.IsPrivileged() {
		return nil, xerrors.ErrForbidden
	}
	return sub, nil
}

// GetCurrentForOwner returns the owner's single non-terminal subscription.
func (e *Engine) GetCurrentForOwner(ctx context.Context, ownerID int64) (*billing.Subscription, error) {
	return e.subs.FindNonTerminalByOwner(ctx, ownerID)
}

func (e *Engine) ListPayments(ctx context.Context, actor billing.Actor, subscriptionID int64) ([]*billing.Payment, error) {
	sub, err := e.subs.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID != actor.IdentityID && !actor.IsPrivileged() {
		return nil, xerrors.ErrForbidden
	}
	return e.payments.ListBySubscription(ctx, sub.ID)
}

// CreatePlan registers a plan, optionally mirroring it at the gateway so it
// can back gateway-managed subscriptions.
func (e *Engine) CreatePlan(ctx context.Context, req billing.CreatePlanRequest) (*billing.Plan, error) {
	plan := &billing.Plan{
		PlanCode:     req.PlanCode,
		Name:         req.Name,
		Description:  sql.NullString{String: req.Description, Valid: req.Description != ""},
		Price:        req.Price,
		Currency:     strings.ToUpper(req.Currency),
		BillingCycle: billing.BillingCycle(req.BillingCycle),
		Features:     req.Features,
		Status:       "active",
		IsPublic:     req.IsPublic,
	}

	if req.CreateAtGateway {
		planRef, err := e.gw.CreatePlan(ctx, gateway.PlanRequest{
			Name:     req.Name,
			Amount:   req.Price,
			Currency: plan.Currency,
			Interval: req.BillingCycle,
		})
		if err != nil {
			return nil, err
		}
		plan.ExternalPlanID = sql.NullString{String: planRef, Valid: true}
	}

	if err := e.plans.Create(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (e *Engine) ListPlans(ctx context.Context, publicOnly bool) ([]*billing.Plan, error) {
	return e.plans.List(ctx, publicOnly)
}

// recordEvent writes an audit row with a deterministic token. Losing an audit
// row must never fail the transition it describes, so errors are only logged.
func (e *Engine) recordEvent(ctx context.Context, sub *billing.Subscription, kind, token string, amount *float64) {
	evt := &billing.Event{
		EventToken:     token,
		SubscriptionID: sql.NullInt64{Int64: sub.ID, Valid: true},
		Kind:           kind,
		BillingCycle:   sql.NullInt32{Int32: int32(sub.BillingCycleCount), Valid: true},
		StatusSnapshot: sql.NullString{String: string(sub.Status), Valid: true},
	}
	if amount != nil {
		evt.Amount = sql.NullFloat64{Float64: *amount, Valid: true}
	}
	if _, err := e.events.Insert(ctx, evt); err != nil {
		e.logger.Warn("failed to record billing event",
			zap.String("event_token", token),
			zap.Error(err),
		)
	}
}
