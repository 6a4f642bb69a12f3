package directory

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "armora/pkg/domain"
	"armora/pkg/platform/tx"
)

// Postgres answers existence checks against the officers table maintained by
// the directory application.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed directory.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (d *Postgres) OfficerExists(ctx context.Context, officerID id.OfficerID) (bool, error) {
	q := tx.QuerierFrom(ctx, d.db)

	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM officers WHERE id = $1)`,
		uuid.UUID(officerID)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check officer: %w", err)
	}
	return exists, nil
}
