// internal/repository/postgres/plan_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"wakili-service/internal/domain/billing"
	xerrors "wakili-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

type PlanRepository struct {
	db Querier
}

func NewPlanRepository(db Querier) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `
	id, plan_code, name, description, price, currency, billing_cycle,
	features, external_plan_id, status, is_public, created_at, updated_at`

func scanPlan(row pgx.Row) (*billing.Plan, error) {
	var p billing.Plan
	var features []string
	err := row.Scan(
		&p.ID, &p.PlanCode, &p.Name, &p.Description, &p.Price, &p.Currency, &p.BillingCycle,
		pq.Array(&features), &p.ExternalPlanID, &p.Status, &p.IsPublic, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Features = pq.StringArray(features)
	return &p, nil
}

func (r *PlanRepository) Create(ctx context.Context, p *billing.Plan) error {
	query := `
		INSERT INTO billing_plans (
			plan_code, name, description, price, currency, billing_cycle,
			features, external_plan_id, status, is_public
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		p.PlanCode, p.Name, p.Description, p.Price, p.Currency, p.BillingCycle,
		pq.Array(p.Features), p.ExternalPlanID, p.Status, p.IsPublic,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return xerrors.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to create plan: %w", err)
	}
	return nil
}

func (r *PlanRepository) FindByCode(ctx context.Context, planCode string) (*billing.Plan, error) {
	query := `SELECT` + planColumns + ` FROM billing_plans WHERE plan_code = $1`

	p, err := scanPlan(r.db.QueryRow(ctx, query, planCode))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return p, nil
}

func (r *PlanRepository) FindByID(ctx context.Context, id int64) (*billing.Plan, error) {
	query := `SELECT` + planColumns + ` FROM billing_plans WHERE id = $1`

	p, err := scanPlan(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find plan: %w", err)
	}
	return p, nil
}

func (r *PlanRepository) List(ctx context.Context, publicOnly bool) ([]*billing.Plan, error) {
	query := `SELECT` + planColumns + ` FROM billing_plans WHERE status = 'active'`
	if publicOnly {
		query += ` AND is_public = TRUE`
	}
	query += ` ORDER BY price`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*billing.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}
