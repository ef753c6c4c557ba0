// internal/repository/postgres/payment_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"wakili-service/internal/domain/billing"
	xerrors "wakili-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

// PaymentRepository writes the append-only charge ledger. There are no
// UPDATE or DELETE statements here on purpose: a correction is a new row.
type PaymentRepository struct {
	db Querier
}

func NewPaymentRepository(db Querier) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *billing.Payment) error {
	query := `
		INSERT INTO billing_payments (
			subscription_id, amount, currency, tracker_ref, charge_ref,
			status, failure_reason, is_renewal
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.SubscriptionID, p.Amount, p.Currency, p.TrackerRef, p.ChargeRef,
		p.Status, p.FailureReason, p.IsRenewal,
	).Scan(&p.ID, &p.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to record payment: %w", err)
	}
	return nil
}

// FindSucceededByTracker is the idempotency lookup: a succeeded row for a
// tracker reference means the charge has already been applied.
func (r *PaymentRepository) FindSucceededByTracker(ctx context.Context, trackerRef string) (*billing.Payment, error) {
	query := `
		SELECT id, subscription_id, amount, currency, tracker_ref, charge_ref,
		       status, failure_reason, is_renewal, created_at
		FROM billing_payments
		WHERE tracker_ref = $1 AND status = 'succeeded'
		LIMIT 1
	`

	var p billing.Payment
	err := r.db.QueryRow(ctx, query, trackerRef).Scan(
		&p.ID, &p.SubscriptionID, &p.Amount, &p.Currency, &p.TrackerRef, &p.ChargeRef,
		&p.Status, &p.FailureReason, &p.IsRenewal, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment by tracker: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) ListBySubscription(ctx context.Context, subscriptionID int64) ([]*billing.Payment, error) {
	query := `
		SELECT id, subscription_id, amount, currency, tracker_ref, charge_ref,
		       status, failure_reason, is_renewal, created_at
		FROM billing_payments
		WHERE subscription_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*billing.Payment
	for rows.Next() {
		var p billing.Payment
		if err := rows.Scan(
			&p.ID, &p.SubscriptionID, &p.Amount, &p.Currency, &p.TrackerRef, &p.ChargeRef,
			&p.Status, &p.FailureReason, &p.IsRenewal, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}
