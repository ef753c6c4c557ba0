// internal/service/billing/webhook_events.go
package billing

import (
	"context"
	"database/sql"

	"wakili-service/internal/domain/billing"
	xerrors "wakili-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// ApplyWebhookEvent applies one normalized gateway delivery to local state.
// Returns xerrors.ErrDuplicateEntry when the event token was already
// processed and xerrors.ErrNotFound when the event cannot be matched to any
// subscription; the caller decides how to acknowledge either.
//
// The transitions themselves are idempotent, so the audit row is written
// after the transition: a crash in between re-applies harmlessly on the
// gateway's redelivery instead of losing the event.
func (e *Engine) ApplyWebhookEvent(ctx context.Context, evt *billing.GatewayEvent) error {
	if evt.Token != "" {
		seen, err := e.events.ExistsByToken(ctx, evt.Token)
		if err != nil {
			return err
		}
		if seen {
			return xerrors.ErrDuplicateEntry
		}
	}

	var (
		sub *billing.Subscription
		err error
	)
	switch evt.Kind {
	case billing.EventPaymentSucceeded:
		sub, err = e.applyPaymentSucceeded(ctx, evt.Payment)
	case billing.EventPaymentFailed:
		sub, err = e.applyPaymentFailed(ctx, evt.Payment)
	case billing.EventSubscriptionCreated:
		sub, err = e.applySubscriptionCreated(ctx, evt.Subscription)
	case billing.EventSubscriptionPaymentSucceeded:
		sub, err = e.applySubscriptionPaymentSucceeded(ctx, evt.Subscription)
	case billing.EventSubscriptionPaymentFailed:
		sub, err = e.applySubscriptionPaymentFailed(ctx, evt.Subscription)
	case billing.EventSubscriptionCancelled:
		sub, err = e.applySubscriptionStatus(ctx, evt.Subscription, billing.StatusCancelled)
	case billing.EventSubscriptionEnded:
		sub, err = e.applySubscriptionStatus(ctx, evt.Subscription, billing.StatusEnded)
	case billing.EventSubscriptionPaused:
		sub, err = e.applySubscriptionStatus(ctx, evt.Subscription, billing.StatusPaused)
	case billing.EventSubscriptionResumed:
		sub, err = e.applySubscriptionStatus(ctx, evt.Subscription, billing.StatusActive)
	default:
		return xerrors.ErrNotFound
	}
	if err != nil {
		return err
	}

	if evt.Token != "" && sub != nil {
		audit := &billing.Event{
			EventToken:     evt.Token,
			SubscriptionID: sql.NullInt64{Int64: sub.ID, Valid: true},
			Kind:           evt.Kind,
			Payload:        evt.Raw,
			BillingCycle:   sql.NullInt32{Int32: int32(sub.BillingCycleCount), Valid: true},
			StatusSnapshot: sql.NullString{String: string(sub.Status), Valid: true},
		}
		if _, err := e.events.Insert(ctx, audit); err != nil {
			e.logger.Warn("failed to record webhook event",
				zap.String("event_token", evt.Token),
				zap.Error(err),
			)
		}
	}
	return nil
}

// applyPaymentSucceeded routes the generic payment family by purpose tag.
func (e *Engine) applyPaymentSucceeded(ctx context.Context, p *billing.PaymentEventPayload) (*billing.Subscription, error) {
	switch p.Purpose() {
	case billing.PurposeTokenization:
		return e.ActivateByReference(ctx, p.Reference(), p.TrackerRef)
	case billing.PurposeRecurring:
		return e.ReconcilePayment(ctx, p)
	default:
		return nil, xerrors.ErrNotFound
	}
}

func (e *Engine) applyPaymentFailed(ctx context.Context, p *billing.PaymentEventPayload) (*billing.Subscription, error) {
	if p.Reference() == "" {
		return nil, xerrors.ErrNotFound
	}
	sub, err := e.subs.FindByReference(ctx, p.Reference())
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return sub, nil
	}

	// The renewal sweep owns the retry ladder; the webhook only surfaces the
	// decline reason it carried.
	if p.State != "" {
		sub.LastPaymentError = sql.NullString{String: p.State, Valid: true}
		if err := e.subs.Update(ctx, sub); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// ReconcilePayment backfills a recurring charge the sweep could not persist,
// typically after a crash between the gateway call and the local write. A
// charge already on the ledger is a no-op.
func (e *Engine) ReconcilePayment(ctx context.Context, p *billing.PaymentEventPayload) (*billing.Subscription, error) {
	if p.Reference() == "" {
		return nil, xerrors.ErrNotFound
	}
	sub, err := e.subs.FindByReference(ctx, p.Reference())
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return sub, nil
	}

	if _, err := e.payments.FindSucceededByTracker(ctx, p.TrackerRef); err == nil {
		return sub, nil
	} else if !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	payment := &billing.Payment{
		SubscriptionID: sub.ID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		TrackerRef:     p.TrackerRef,
		ChargeRef:      sql.NullString{String: p.ChargeRef, Valid: p.ChargeRef != ""},
		Status:         billing.PaymentSucceeded,
		IsRenewal:      true,
	}
	if err := e.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	anchor := sub.CurrentPeriodEnd
	sub.Status = billing.StatusActive
	sub.CurrentPeriodStart = anchor
	sub.CurrentPeriodEnd = sub.BillingCycle.NextPeriodEnd(anchor)
	sub.BillingCycleCount++
	sub.RetryCount = 0
	sub.NextRetryAt = sql.NullTime{}
	sub.LastPaymentError = sql.NullString{}
	if err := e.subs.Update(ctx, sub); err != nil {
		return nil, err
	}

	e.logger.Info("recurring charge reconciled from webhook",
		zap.String("reference", sub.Reference),
		zap.String("tracker_ref", p.TrackerRef),
	)
	return sub, nil
}

func (e *Engine) resolveSubscription(ctx context.Context, s *billing.SubscriptionEventPayload) (*billing.Subscription, error) {
	if s.ExternalSubscriptionID != "" {
		sub, err := e.subs.FindByExternalID(ctx, s.ExternalSubscriptionID)
		if err == nil {
			return sub, nil
		}
		if !xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
	}
	if s.Reference != "" {
		return e.subs.FindByReference(ctx, s.Reference)
	}
	return nil, xerrors.ErrNotFound
}

// applySubscriptionCreated links the gateway-side identifiers to the pending
// local row and activates it.
func (e *Engine) applySubscriptionCreated(ctx context.Context, s *billing.SubscriptionEventPayload) (*billing.Subscription, error) {
	sub, err := e.resolveSubscription(ctx, s)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return sub, nil
	}

	if s.ExternalSubscriptionID != "" {
		sub.ExternalSubscriptionID = sql.NullString{String: s.ExternalSubscriptionID, Valid: true}
	}
	if s.ExternalCustomerID != "" {
		sub.ExternalCustomerID = sql.NullString{String: s.ExternalCustomerID, Valid: true}
	}

	if sub.Status == billing.StatusPending {
		now := e.now()
		sub.Status = billing.StatusActive
		if s.PeriodStart != nil && s.PeriodEnd != nil {
			sub.CurrentPeriodStart = *s.PeriodStart
			sub.CurrentPeriodEnd = *s.PeriodEnd
		} else {
			sub.CurrentPeriodStart = now
			sub.CurrentPeriodEnd = sub.BillingCycle.NextPeriodEnd(now)
		}
		sub.BillingCycleCount = 1
	}

	if err := e.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	e.logger.Info("gateway subscription linked",
		zap.String("reference", sub.Reference),
		zap.String("external_subscription_id", s.ExternalSubscriptionID),
	)
	return sub, nil
}

func (e *Engine) applySubscriptionPaymentSucceeded(ctx context.Context, s *billing.SubscriptionEventPayload) (*billing.Subscription, error) {
	sub, err := e.resolveSubscription(ctx, s)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return sub, nil
	}

	if s.TrackerRef != "" {
		if _, err := e.payments.FindSucceededByTracker(ctx, s.TrackerRef); err == nil {
			return sub, nil
		} else if !xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, err
		}
	}

	amount := s.Amount
	if amount == 0 {
		amount = sub.Amount
	}
	payment := &billing.Payment{
		SubscriptionID: sub.ID,
		Amount:         amount,
		Currency:       sub.Currency,
		TrackerRef:     s.TrackerRef,
		ChargeRef:      sql.NullString{String: s.ChargeRef, Valid: s.ChargeRef != ""},
		Status:         billing.PaymentSucceeded,
		IsRenewal:      sub.BillingCycleCount > 0,
	}
	if err := e.payments.Create(ctx, payment); err != nil {
		return nil, err
	}

	sub.Status = billing.StatusActive
	if s.PeriodStart != nil && s.PeriodEnd != nil {
		sub.CurrentPeriodStart = *s.PeriodStart
		sub.CurrentPeriodEnd = *s.PeriodEnd
	} else {
		anchor := sub.CurrentPeriodEnd
		sub.CurrentPeriodStart = anchor
		sub.CurrentPeriodEnd = sub.BillingCycle.NextPeriodEnd(anchor)
	}
	sub.BillingCycleCount++
	sub.RetryCount = 0
	sub.NextRetryAt = sql.NullTime{}
	sub.LastPaymentError = sql.NullString{}
	if err := e.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (e *Engine) applySubscriptionPaymentFailed(ctx context.Context, s *billing.SubscriptionEventPayload) (*billing.Subscription, error) {
	sub, err := e.resolveSubscription(ctx, s)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return sub, nil
	}

	if s.TrackerRef != "" {
		payment := &billing.Payment{
			SubscriptionID: sub.ID,
			Amount:         sub.Amount,
			Currency:       sub.Currency,
			TrackerRef:     s.TrackerRef,
			Status:         billing.PaymentFailed,
			FailureReason:  sql.NullString{String: s.Status, Valid: s.Status != ""},
			IsRenewal:      true,
		}
		if err := e.payments.Create(ctx, payment); err != nil {
			return nil, err
		}
	}

	// Gateway-managed retries run gateway-side; locally a failed payment
	// always takes the subscription out of good standing. Unpaid unless the
	// gateway explicitly reports past_due.
	sub.LastPaymentError = sql.NullString{String: "gateway payment failed", Valid: true}
	if billing.SubscriptionStatus(s.Status) == billing.StatusPastDue {
		sub.Status = billing.StatusPastDue
	} else {
		sub.Status = billing.StatusUnpaid
	}
	if err := e.subs.Update(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// applySubscriptionStatus handles the plain status-change family. Terminal
// rows never move again, whatever the gateway says afterwards.
func (e *Engine) applySubscriptionStatus(ctx context.Context, s *billing.SubscriptionEventPayload, target billing.SubscriptionStatus) (*billing.Subscription, error) {
	sub, err := e.resolveSubscription(ctx, s)
	if err != nil {
		return nil, err
	}
	if sub.Status.IsTerminal() {
		return sub, nil
	}

	now := e.now()
	sub.Status = target
	switch target {
	case billing.StatusCancelled:
		sub.CancelledAt = sql.NullTime{Time: now, Valid: true}
		sub.CancellationReason = sql.NullString{String: "cancelled at gateway", Valid: true}
		sub.NextRetryAt = sql.NullTime{}
	case billing.StatusEnded:
		sub.EndedAt = sql.NullTime{Time: now, Valid: true}
		sub.NextRetryAt = sql.NullTime{}
	case billing.StatusPaused:
		sub.PausedAt = sql.NullTime{Time: now, Valid: true}
	case billing.StatusActive:
		sub.PausedAt = sql.NullTime{}
	}
	if err := e.subs.Update(ctx, sub); err != nil {
		return nil, err
	}

	e.logger.Info("subscription status updated from webhook",
		zap.String("reference", sub.Reference),
		zap.String("status", string(target)),
	)
	return sub, nil
}
