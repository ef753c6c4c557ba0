// internal/repository/postgres/owner_directory.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"wakili-service/internal/domain/billing"
	xerrors "wakili-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
)

// OwnerDirectory resolves subscriber contact info for gateway customer
// creation. The identities table is owned by the platform's auth service;
// billing only reads it.
type OwnerDirectory struct {
	db Querier
}

func NewOwnerDirectory(db Querier) *OwnerDirectory {
	return &OwnerDirectory{db: db}
}

func (d *OwnerDirectory) Resolve(ctx context.Context, ownerID int64) (*billing.OwnerContact, error) {
	query := `SELECT id, full_name, email, COALESCE(phone, '') FROM identities WHERE id = $1`

	var contact billing.OwnerContact
	err := d.db.QueryRow(ctx, query, ownerID).Scan(
		&contact.OwnerID, &contact.FullName, &contact.Email, &contact.Phone,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve owner contact: %w", err)
	}
	return &contact, nil
}
