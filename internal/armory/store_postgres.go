package armory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "armora/pkg/domain"
	"armora/pkg/platform/sentinel"
	"armora/pkg/platform/tx"
)

// PostgresStore persists armories in PostgreSQL. The aggregate spans two
// tables (armories, armory_stock_lines); Update relies on the engines running
// it inside a transaction carried by pkg/platform/tx so both tables move
// together.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed armory store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, a *Armory) error {
	q := tx.QuerierFrom(ctx, s.db)

	_, err := q.ExecContext(ctx, `
		INSERT INTO armories (id, name, unit, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5)
	`, uuid.UUID(a.ID), a.Name, a.Unit, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create armory: %w", err)
	}
	if err := s.insertLines(ctx, q, a); err != nil {
		return err
	}
	a.Version = 1
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, armoryID id.ArmoryID) (*Armory, error) {
	q := tx.QuerierFrom(ctx, s.db)

	a := &Armory{ID: armoryID, Lines: make(map[LineKey]*StockLine)}
	err := q.QueryRowContext(ctx, `
		SELECT name, unit, version, created_at, updated_at
		FROM armories WHERE id = $1
	`, uuid.UUID(armoryID)).Scan(&a.Name, &a.Unit, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find armory: %w", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT item_type, ref, quantity, condition
		FROM armory_stock_lines WHERE armory_id = $1
	`, uuid.UUID(armoryID))
	if err != nil {
		return nil, fmt.Errorf("load stock lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line StockLine
		var itemType, condition string
		if err := rows.Scan(&itemType, &line.Key.Ref, &line.Quantity, &condition); err != nil {
			return nil, fmt.Errorf("scan stock line: %w", err)
		}
		line.Key.Type = id.ItemType(itemType)
		line.Condition = id.Condition(condition)
		a.Lines[line.Key] = &line
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock lines: %w", err)
	}
	return a, nil
}

// Update rewrites the aggregate. The version predicate detects writers that
// raced us between read and write; callers translate sentinel.ErrConflict
// into a bounded retry.
func (s *PostgresStore) Update(ctx context.Context, a *Armory) error {
	q := tx.QuerierFrom(ctx, s.db)

	res, err := q.ExecContext(ctx, `
		UPDATE armories
		SET name = $1, unit = $2, version = version + 1, updated_at = $3
		WHERE id = $4 AND version = $5
	`, a.Name, a.Unit, time.Now(), uuid.UUID(a.ID), a.Version)
	if err != nil {
		return fmt.Errorf("update armory: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update armory: %w", err)
	}
	if affected == 0 {
		// Either the armory is gone or the version moved; distinguish so
		// callers do not retry a delete.
		var exists bool
		if err := q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM armories WHERE id = $1)`,
			uuid.UUID(a.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("update armory: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM armory_stock_lines WHERE armory_id = $1`, uuid.UUID(a.ID)); err != nil {
		return fmt.Errorf("clear stock lines: %w", err)
	}
	if err := s.insertLines(ctx, q, a); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Armory, error) {
	q := tx.QuerierFrom(ctx, s.db)

	rows, err := q.QueryContext(ctx, `SELECT id FROM armories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list armories: %w", err)
	}
	defer rows.Close()

	var ids []id.ArmoryID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan armory id: %w", err)
		}
		ids = append(ids, id.ArmoryID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate armories: %w", err)
	}

	out := make([]*Armory, 0, len(ids))
	for _, armoryID := range ids {
		a, err := s.FindByID(ctx, armoryID)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *PostgresStore) insertLines(ctx context.Context, q tx.Querier, a *Armory) error {
	for _, line := range a.Lines {
		_, err := q.ExecContext(ctx, `
			INSERT INTO armory_stock_lines (armory_id, item_type, ref, quantity, condition)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.UUID(a.ID), line.Key.Type.String(), line.Key.Ref, line.Quantity, line.Condition.String())
		if err != nil {
			return fmt.Errorf("insert stock line %s: %w", line.Key, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
