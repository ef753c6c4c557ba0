// internal/repository/postgres/subscription_repo_test.go
package postgres

import (
	"context"
	"testing"
	"time"

	"wakili-service/internal/domain/billing"
	xerrors "wakili-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// anyArgs builds n pgxmock.AnyArg() matchers for statements whose argument
// values are not the subject of the test.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func newSubscriptionMock(t *testing.T) (pgxmock.PgxPoolIface, *SubscriptionRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewSubscriptionRepository(mock)
}

func subscriptionRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "reference", "owner_id", "plan_id", "plan_code",
		"amount", "currency", "billing_cycle", "strategy", "status",
		"external_subscription_id", "external_customer_id",
		"current_period_start", "current_period_end", "billing_cycle_count",
		"retry_count", "next_retry_at", "last_payment_error",
		"cancelled_at", "cancellation_reason", "paused_at", "ended_at",
		"created_at", "updated_at",
	})
}

func TestSubscriptionCreateMapsOwnerConstraint(t *testing.T) {
	mock, repo := newSubscriptionMock(t)

	mock.ExpectQuery("INSERT INTO billing_subscriptions").
		WithArgs(anyArgs(13)...).
		WillReturnError(&pgconn.PgError{
			Code:           "23505",
			ConstraintName: "billing_subscriptions_owner_non_terminal_idx",
		})

	err := repo.Create(context.Background(), &billing.Subscription{
		Reference: "sub_x", OwnerID: 42, PlanID: 1,
	})
	assert.ErrorIs(t, err, xerrors.ErrSubscriptionExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionCreateMapsOtherUniqueViolation(t *testing.T) {
	mock, repo := newSubscriptionMock(t)

	mock.ExpectQuery("INSERT INTO billing_subscriptions").
		WithArgs(anyArgs(13)...).
		WillReturnError(&pgconn.PgError{
			Code:           "23505",
			ConstraintName: "billing_subscriptions_reference_key",
		})

	err := repo.Create(context.Background(), &billing.Subscription{Reference: "sub_x"})
	assert.ErrorIs(t, err, xerrors.ErrDuplicateEntry)
}

func TestSubscriptionFindByIDNotFound(t *testing.T) {
	mock, repo := newSubscriptionMock(t)

	mock.ExpectQuery("SELECT(.+)FROM billing_subscriptions WHERE id").
		WithArgs(int64(404)).
		WillReturnRows(subscriptionRows())

	_, err := repo.FindByID(context.Background(), 404)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}

func TestFindDueForRenewalScansRows(t *testing.T) {
	mock, repo := newSubscriptionMock(t)

	now := time.Date(2026, 1, 11, 2, 0, 0, 0, time.UTC)
	periodStart := now.AddDate(0, -1, -1)
	periodEnd := now.AddDate(0, 0, -1)

	rows := subscriptionRows().AddRow(
		int64(1), "sub_abc", int64(42), int64(1), "advocate_monthly",
		2500.0, "KES", billing.CycleMonthly, billing.StrategySelfManaged, billing.StatusActive,
		nil, "cus_1",
		periodStart, periodEnd, 1,
		0, nil, nil,
		nil, nil, nil, nil,
		periodStart, periodStart,
	)

	mock.ExpectQuery("SELECT(.+)FROM billing_subscriptions(.+)status = 'active'").
		WithArgs(now).
		WillReturnRows(rows)

	due, err := repo.FindDueForRenewal(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "sub_abc", due[0].Reference)
	assert.Equal(t, "cus_1", due[0].ExternalCustomerID.String)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscriptionUpdateMissingRow(t *testing.T) {
	mock, repo := newSubscriptionMock(t)

	mock.ExpectExec("UPDATE billing_subscriptions").
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Update(context.Background(), &billing.Subscription{ID: 999})
	assert.ErrorIs(t, err, xerrors.ErrNotFound)
}
