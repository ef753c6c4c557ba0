// internal/repository/postgres/subscription_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wakili-service/internal/domain/billing"
	xerrors "wakili-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type SubscriptionRepository struct {
	db Querier
}

func NewSubscriptionRepository(db Querier) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

const subscriptionColumns = `
	id, reference, owner_id, plan_id, plan_code,
	amount, currency, billing_cycle, strategy, status,
	external_subscription_id, external_customer_id,
	current_period_start, current_period_end, billing_cycle_count,
	retry_count, next_retry_at, last_payment_error,
	cancelled_at, cancellation_reason, paused_at, ended_at,
	created_at, updated_at`

func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var sub billing.Subscription
	err := row.Scan(
		&sub.ID, &sub.Reference, &sub.OwnerID, &sub.PlanID, &sub.PlanCode,
		&sub.Amount, &sub.Currency, &sub.BillingCycle, &sub.Strategy, &sub.Status,
		&sub.ExternalSubscriptionID, &sub.ExternalCustomerID,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.BillingCycleCount,
		&sub.RetryCount, &sub.NextRetryAt, &sub.LastPaymentError,
		&sub.CancelledAt, &sub.CancellationReason, &sub.PausedAt, &sub.EndedAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Create inserts a subscription. The partial unique index on owner_id (over
// non-terminal statuses) backs the one-subscription-per-owner rule; a 23505
// on it surfaces as ErrSubscriptionExists.
func (r *SubscriptionRepository) Create(ctx context.Context, sub *billing.Subscription) error {
	query := `
		INSERT INTO billing_subscriptions (
			reference, owner_id, plan_id, plan_code,
			amount, currency, billing_cycle, strategy, status,
			external_subscription_id, external_customer_id,
			current_period_start, current_period_end
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		sub.Reference, sub.OwnerID, sub.PlanID, sub.PlanCode,
		sub.Amount, sub.Currency, sub.BillingCycle, sub.Strategy, sub.Status,
		sub.ExternalSubscriptionID, sub.ExternalCustomerID,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "billing_subscriptions_owner_non_terminal_idx" {
				return xerrors.ErrSubscriptionExists
			}
			return xerrors.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	return nil
}

func (r *SubscriptionRepository) FindByID(ctx context.Context, id int64) (*billing.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM billing_subscriptions WHERE id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) FindByReference(ctx context.Context, reference string) (*billing.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM billing_subscriptions WHERE reference = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, reference))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription by reference: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) FindByExternalID(ctx context.Context, externalID string) (*billing.Subscription, error) {
	query := `SELECT` + subscriptionColumns + ` FROM billing_subscriptions WHERE external_subscription_id = $1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription by external id: %w", err)
	}
	return sub, nil
}

// FindNonTerminalByOwner returns the owner's pending/active/past_due/unpaid/
// paused subscription, of which at most one can exist.
func (r *SubscriptionRepository) FindNonTerminalByOwner(ctx context.Context, ownerID int64) (*billing.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM billing_subscriptions
		WHERE owner_id = $1 AND status NOT IN ('cancelled', 'ended')
		LIMIT 1`

	sub, err := scanSubscription(r.db.QueryRow(ctx, query, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find non-terminal subscription: %w", err)
	}
	return sub, nil
}

// FindDueForRenewal selects active subscriptions whose period has lapsed or
// whose retry is due. The two predicates are folded into one query, so a row
// matching both is returned once.
func (r *SubscriptionRepository) FindDueForRenewal(ctx context.Context, now time.Time) ([]*billing.Subscription, error) {
	query := `SELECT` + subscriptionColumns + `
		FROM billing_subscriptions
		WHERE status = 'active'
		  AND (current_period_end <= $1 OR next_retry_at <= $1)
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select due subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*billing.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Update persists every mutable field. Only the lifecycle engine calls this.
func (r *SubscriptionRepository) Update(ctx context.Context, sub *billing.Subscription) error {
	query := `
		UPDATE billing_subscriptions
		SET status = $1,
		    external_subscription_id = $2,
		    external_customer_id = $3,
		    current_period_start = $4,
		    current_period_end = $5,
		    billing_cycle_count = $6,
		    retry_count = $7,
		    next_retry_at = $8,
		    last_payment_error = $9,
		    cancelled_at = $10,
		    cancellation_reason = $11,
		    paused_at = $12,
		    ended_at = $13,
		    updated_at = NOW()
		WHERE id = $14
	`

	tag, err := r.db.Exec(
		ctx, query,
		sub.Status,
		sub.ExternalSubscriptionID, sub.ExternalCustomerID,
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd, sub.BillingCycleCount,
		sub.RetryCount, sub.NextRetryAt, sub.LastPaymentError,
		sub.CancelledAt, sub.CancellationReason, sub.PausedAt, sub.EndedAt,
		sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return xerrors.ErrNotFound
	}
	return nil
}
