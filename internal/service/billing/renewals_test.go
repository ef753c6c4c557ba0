// internal/service/billing/renewals_test.go
package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"wakili-service/internal/domain/billing"
	"wakili-service/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// activeSubscription seeds an active subscription whose period ends at the
// given time.
func activeSubscription(t *testing.T, env *testEnv, periodEnd time.Time) *billing.Subscription {
	t.Helper()
	env.setClock(periodEnd.AddDate(0, -1, 0))
	sub := initiateAndActivate(t, env)
	require.Equal(t, periodEnd, sub.CurrentPeriodEnd)
	return sub
}

func TestSweepRenewsLapsedSubscription(t *testing.T) {
	env := newTestEnv()
	periodEnd := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	sub := activeSubscription(t, env, periodEnd)

	env.setClock(time.Date(2026, 1, 11, 2, 0, 0, 0, time.UTC))
	result, err := env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Renewed)
	assert.Zero(t, result.Failed)

	renewed, _ := env.subs.FindByID(context.Background(), sub.ID)
	assert.Equal(t, billing.StatusActive, renewed.Status)
	assert.Equal(t, 2, renewed.BillingCycleCount)
	// Anchored on the old period end, not on when the sweep ran.
	assert.Equal(t, periodEnd, renewed.CurrentPeriodStart)
	assert.Equal(t, periodEnd.AddDate(0, 1, 0), renewed.CurrentPeriodEnd)

	payments, _ := env.payments.ListBySubscription(context.Background(), sub.ID)
	require.Len(t, payments, 2)
	assert.True(t, payments[1].IsRenewal)
}

func TestSweepSkipsSubscriptionsNotDue(t *testing.T) {
	env := newTestEnv()
	activeSubscription(t, env, time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))

	env.setClock(time.Date(2026, 1, 5, 2, 0, 0, 0, time.UTC))
	calls := len(env.gw.chargeCalls)
	result, err := env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Len(t, env.gw.chargeCalls, calls)
}

// Walks the full retry ladder for a period ending Jan 10: decline on Jan 11
// schedules a retry one day out, a second decline three days out, and the
// third decline drops the subscription to past_due with no further retries.
func TestRetryLadderEndsInPastDue(t *testing.T) {
	env := newTestEnv()
	periodEnd := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	sub := activeSubscription(t, env, periodEnd)

	env.gw.chargeOutcomes = []gateway.ChargeResult{
		{Success: false, FailureReason: "insufficient funds"},
		{Success: false, FailureReason: "insufficient funds"},
		{Success: false, FailureReason: "card expired"},
	}

	// Attempt 1.
	env.setClock(time.Date(2026, 1, 11, 2, 0, 0, 0, time.UTC))
	result, err := env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	after, _ := env.subs.FindByID(context.Background(), sub.ID)
	assert.Equal(t, billing.StatusActive, after.Status)
	assert.Equal(t, 1, after.RetryCount)
	assert.Equal(t, env.clock.Add(24*time.Hour), after.NextRetryAt.Time)

	// Next day's sweep is before the retry window only if the retry were
	// longer; at +24h the Jan 12 sweep picks it up. Attempt 2.
	env.setClock(time.Date(2026, 1, 12, 2, 30, 0, 0, time.UTC))
	_, err = env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)

	after, _ = env.subs.FindByID(context.Background(), sub.ID)
	assert.Equal(t, 2, after.RetryCount)
	assert.Equal(t, env.clock.Add(72*time.Hour), after.NextRetryAt.Time)

	// A sweep inside the 3-day window must not charge.
	env.setClock(time.Date(2026, 1, 13, 2, 0, 0, 0, time.UTC))
	calls := len(env.gw.chargeCalls)
	result, err = env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Len(t, env.gw.chargeCalls, calls)

	// Attempt 3, past the retry window.
	env.setClock(time.Date(2026, 1, 15, 3, 0, 0, 0, time.UTC))
	result, err = env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.PastDue)

	after, _ = env.subs.FindByID(context.Background(), sub.ID)
	assert.Equal(t, billing.StatusPastDue, after.Status)
	assert.Equal(t, 3, after.RetryCount)
	assert.False(t, after.NextRetryAt.Valid)
	assert.Equal(t, "card expired", after.LastPaymentError.String)

	// Past_due rows are out of the sweep entirely.
	env.setClock(time.Date(2026, 1, 16, 2, 0, 0, 0, time.UTC))
	result, err = env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)

	payments, _ := env.payments.ListBySubscription(context.Background(), sub.ID)
	assert.Len(t, payments, 4, "initial charge plus three failed renewal attempts")
}

func TestRetrySucceedsMidLadder(t *testing.T) {
	env := newTestEnv()
	periodEnd := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	sub := activeSubscription(t, env, periodEnd)

	env.gw.chargeOutcomes = []gateway.ChargeResult{
		{Success: false, FailureReason: "insufficient funds"},
		{Success: true, ChargeRef: "chg_retry"},
	}

	env.setClock(time.Date(2026, 1, 11, 2, 0, 0, 0, time.UTC))
	_, err := env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)

	env.setClock(time.Date(2026, 1, 12, 2, 30, 0, 0, time.UTC))
	_, err = env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)

	after, _ := env.subs.FindByID(context.Background(), sub.ID)
	assert.Equal(t, billing.StatusActive, after.Status)
	assert.Zero(t, after.RetryCount)
	assert.False(t, after.NextRetryAt.Valid)
	assert.False(t, after.LastPaymentError.Valid)
	// Extension still anchors on the original period end.
	assert.Equal(t, periodEnd.AddDate(0, 1, 0), after.CurrentPeriodEnd)
}

func TestTransportErrorDoesNotBurnRetry(t *testing.T) {
	env := newTestEnv()
	sub := activeSubscription(t, env, time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))

	env.gw.chargeErr = errors.New("connection refused")

	env.setClock(time.Date(2026, 1, 11, 2, 0, 0, 0, time.UTC))
	result, err := env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	after, _ := env.subs.FindByID(context.Background(), sub.ID)
	assert.Zero(t, after.RetryCount, "a gateway outage is not a decline")
	assert.Equal(t, billing.StatusActive, after.Status)

	payments, _ := env.payments.ListBySubscription(context.Background(), sub.ID)
	assert.Len(t, payments, 1, "no ledger row without a gateway answer")

	// Recovered gateway: the next sweep renews normally.
	env.gw.chargeErr = nil
	env.setClock(time.Date(2026, 1, 12, 2, 0, 0, 0, time.UTC))
	result, err = env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Renewed)
}

func TestSweepIgnoresGatewayManagedSubscriptions(t *testing.T) {
	env := newTestEnv()
	sub := activeSubscription(t, env, time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))

	stored, _ := env.subs.FindByID(context.Background(), sub.ID)
	stored.Strategy = billing.StrategyGatewayManaged
	require.NoError(t, env.subs.Update(context.Background(), stored))

	env.setClock(time.Date(2026, 1, 11, 2, 0, 0, 0, time.UTC))
	calls := len(env.gw.chargeCalls)
	result, err := env.engine.ProcessRenewals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Len(t, env.gw.chargeCalls, calls)
}
