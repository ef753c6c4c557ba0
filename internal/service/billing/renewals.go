// internal/service/billing/renewals.go
package billing

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"wakili-service/internal/domain/billing"
	"wakili-service/internal/pkg/metrics"

	"go.uber.org/zap"
)

// ProcessRenewals runs one sweep over every subscription whose period has
// lapsed or whose retry is due. Each subscription is handled independently so
// one bad row never blocks the rest of the batch.
func (e *Engine) ProcessRenewals(ctx context.Context) (billing.SweepResult, error) {
	var result billing.SweepResult

	due, err := e.subs.FindDueForRenewal(ctx, e.now())
	if err != nil {
		return result, err
	}

	for _, sub := range due {
		if sub.Strategy != billing.StrategySelfManaged || sub.Status != billing.StatusActive {
			continue
		}
		// A lapsed period keeps the row selected on every sweep; the retry
		// window decides when the next attempt actually happens.
		if sub.NextRetryAt.Valid && e.now().Before(sub.NextRetryAt.Time) {
			continue
		}
		result.Processed++

		outcome, err := e.renewOne(ctx, sub)
		if err != nil {
			result.Failed++
			e.logger.Error("renewal attempt errored",
				zap.String("reference", sub.Reference),
				zap.Error(err),
			)
			continue
		}
		switch outcome {
		case renewalSucceeded:
			result.Renewed++
		case renewalRetryScheduled:
			result.Failed++
		case renewalPastDue:
			result.Failed++
			result.PastDue++
		}
	}

	e.logger.Info("renewal sweep complete",
		zap.Int("processed", result.Processed),
		zap.Int("renewed", result.Renewed),
		zap.Int("failed", result.Failed),
		zap.Int("past_due", result.PastDue),
	)
	return result, nil
}

type renewalOutcome int

const (
	renewalSucceeded renewalOutcome = iota
	renewalRetryScheduled
	renewalPastDue
)

// renewOne charges the stored instrument for one more cycle. A decline writes
// a failed ledger row and advances the retry ladder; a transport error leaves
// the subscription untouched so the next sweep picks it up again without
// burning a retry.
func (e *Engine) renewOne(ctx context.Context, sub *billing.Subscription) (renewalOutcome, error) {
	if !sub.ExternalCustomerID.Valid {
		return 0, fmt.Errorf("subscription %s has no gateway customer", sub.Reference)
	}

	orderRef := sub.Reference + ":cycle:" + strconv.Itoa(sub.BillingCycleCount+1) +
		":attempt:" + strconv.Itoa(sub.RetryCount+1)

	chargeCtx, cancel := context.WithTimeout(ctx, e.cfg.ChargeTimeout)
	defer cancel()

	charge, err := e.gw.ChargeOffSession(chargeCtx, sub.ExternalCustomerID.String, sub.Amount, sub.Currency, orderRef)
	if err != nil {
		metrics.ChargeAttempts.WithLabelValues("error", "true").Inc()
		return 0, err
	}

	if charge.Success {
		metrics.ChargeAttempts.WithLabelValues("succeeded", "true").Inc()
		return renewalSucceeded, e.applyRenewalSuccess(ctx, sub, charge.TrackerRef, charge.ChargeRef)
	}

	metrics.ChargeAttempts.WithLabelValues("declined", "true").Inc()
	return e.applyRenewalDecline(ctx, sub, charge.TrackerRef, charge.FailureReason)
}

// applyRenewalSuccess extends the period anchored on the previous period end,
// never on the wall clock, so a sweep that runs late does not shift every
// following renewal date.
func (e *Engine) applyRenewalSuccess(ctx context.Context, sub *billing.Subscription, trackerRef, chargeRef string) error {
	payment := &billing.Payment{
		SubscriptionID: sub.ID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		TrackerRef:     trackerRef,
		ChargeRef:      sql.NullString{String: chargeRef, Valid: chargeRef != ""},
		Status:         billing.PaymentSucceeded,
		IsRenewal:      true,
	}
	if err := e.payments.Create(ctx, payment); err != nil {
		return err
	}

	anchor := sub.CurrentPeriodEnd
	sub.CurrentPeriodStart = anchor
	sub.CurrentPeriodEnd = sub.BillingCycle.NextPeriodEnd(anchor)
	sub.BillingCycleCount++
	sub.RetryCount = 0
	sub.NextRetryAt = sql.NullTime{}
	sub.LastPaymentError = sql.NullString{}
	if err := e.subs.Update(ctx, sub); err != nil {
		return err
	}

	e.recordEvent(ctx, sub, billing.EventPaymentSucceeded, "renewal:"+trackerRef, &sub.Amount)
	e.logger.Info("subscription renewed",
		zap.String("reference", sub.Reference),
		zap.Int("billing_cycle", sub.BillingCycleCount),
		zap.Time("period_end", sub.CurrentPeriodEnd),
	)
	return nil
}

func (e *Engine) applyRenewalDecline(ctx context.Context, sub *billing.Subscription, trackerRef, reason string) (renewalOutcome, error) {
	payment := &billing.Payment{
		SubscriptionID: sub.ID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		TrackerRef:     trackerRef,
		Status:         billing.PaymentFailed,
		FailureReason:  sql.NullString{String: reason, Valid: reason != ""},
		IsRenewal:      true,
	}
	if err := e.payments.Create(ctx, payment); err != nil {
		return 0, err
	}

	sub.RetryCount++
	sub.LastPaymentError = sql.NullString{String: reason, Valid: reason != ""}

	outcome := renewalRetryScheduled
	if sub.RetryCount >= e.cfg.MaxRetries {
		sub.Status = billing.StatusPastDue
		sub.NextRetryAt = sql.NullTime{}
		outcome = renewalPastDue
		metrics.SubscriptionsPastDue.Inc()
		e.logger.Warn("subscription past due after exhausting retries",
			zap.String("reference", sub.Reference),
			zap.String("last_error", reason),
		)
	} else {
		delay := e.retryDelay(sub.RetryCount)
		sub.NextRetryAt = sql.NullTime{Time: e.now().Add(delay), Valid: true}
		e.logger.Info("renewal declined, retry scheduled",
			zap.String("reference", sub.Reference),
			zap.Int("retry_count", sub.RetryCount),
			zap.Time("next_retry_at", sub.NextRetryAt.Time),
		)
	}

	if err := e.subs.Update(ctx, sub); err != nil {
		return 0, err
	}

	token := fmt.Sprintf("renewal-failed:%s:attempt:%d", sub.Reference, sub.RetryCount)
	if trackerRef != "" {
		token = "renewal-failed:" + trackerRef
	}
	e.recordEvent(ctx, sub, billing.EventPaymentFailed, token, &sub.Amount)
	return outcome, nil
}

func (e *Engine) retryDelay(retryCount int) time.Duration {
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(e.cfg.RetrySchedule) {
		idx = len(e.cfg.RetrySchedule) - 1
	}
	return e.cfg.RetrySchedule[idx]
}
