// internal/repository/postgres/event_repo.go
package postgres

import (
	"context"
	"fmt"

	"wakili-service/internal/domain/billing"
)

// EventRepository writes the append-only webhook/transition audit log. The
// unique event token plus ON CONFLICT DO NOTHING is the idempotency
// primitive for webhook replays.
type EventRepository struct {
	db Querier
}

func NewEventRepository(db Querier) *EventRepository {
	return &EventRepository{db: db}
}

// Insert stores an event unless its token was seen before. The returned bool
// is true when the row was actually inserted.
func (r *EventRepository) Insert(ctx context.Context, e *billing.Event) (bool, error) {
	query := `
		INSERT INTO billing_events (
			event_token, subscription_id, kind, payload,
			billing_cycle, amount, status_snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_token) DO NOTHING
	`

	tag, err := r.db.Exec(
		ctx, query,
		e.EventToken, e.SubscriptionID, e.Kind, e.Payload,
		e.BillingCycle, e.Amount, e.StatusSnapshot,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record event: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *EventRepository) ExistsByToken(ctx context.Context, token string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM billing_events WHERE event_token = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, token).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check event token: %w", err)
	}
	return exists, nil
}

func (r *EventRepository) ListBySubscription(ctx context.Context, subscriptionID int64) ([]*billing.Event, error) {
	query := `
		SELECT id, event_token, subscription_id, kind, payload,
		       billing_cycle, amount, status_snapshot, created_at
		FROM billing_events
		WHERE subscription_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*billing.Event
	for rows.Next() {
		var e billing.Event
		if err := rows.Scan(
			&e.ID, &e.EventToken, &e.SubscriptionID, &e.Kind, &e.Payload,
			&e.BillingCycle, &e.Amount, &e.StatusSnapshot, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
