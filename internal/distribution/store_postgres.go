package distribution

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"armora/internal/armory"
	id "armora/pkg/domain"
	"armora/pkg/platform/sentinel"
	"armora/pkg/platform/tx"
)

// PostgresStore persists distributions in PostgreSQL across three tables:
// distributions, distribution_items, and the append-only
// distribution_renewals history.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed distribution store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, d *Distribution) error {
	q := tx.QuerierFrom(ctx, s.db)

	_, err := q.ExecContext(ctx, `
		INSERT INTO distributions (
			id, armory_id, officer_id, squad, status, renewal_status,
			renewal_due, issued_at, issued_by, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11)
	`, uuid.UUID(d.ID), uuid.UUID(d.ArmoryID), uuid.UUID(d.OfficerID), d.Squad,
		string(d.Status), string(d.RenewalStatus), d.RenewalDue, d.IssuedAt,
		uuid.UUID(d.IssuedBy), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create distribution: %w", err)
	}

	if err := s.insertItems(ctx, q, d); err != nil {
		return err
	}
	d.Version = 1
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, distributionID id.DistributionID) (*Distribution, error) {
	q := tx.QuerierFrom(ctx, s.db)

	d := &Distribution{ID: distributionID, Items: make(map[armory.LineKey]*IssuedItem)}
	var (
		rawArmory, rawOfficer, rawIssuedBy uuid.UUID
		rawReturnedBy                      sql.Null[uuid.UUID]
		returnDate                         sql.NullTime
		status, renewalStatus              string
	)
	err := q.QueryRowContext(ctx, `
		SELECT armory_id, officer_id, squad, status, renewal_status, renewal_due,
		       issued_at, issued_by, return_date, returned_by, version, created_at, updated_at
		FROM distributions WHERE id = $1
	`, uuid.UUID(distributionID)).Scan(
		&rawArmory, &rawOfficer, &d.Squad, &status, &renewalStatus, &d.RenewalDue,
		&d.IssuedAt, &rawIssuedBy, &returnDate, &rawReturnedBy, &d.Version,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find distribution: %w", err)
	}
	d.ArmoryID = id.ArmoryID(rawArmory)
	d.OfficerID = id.OfficerID(rawOfficer)
	d.IssuedBy = id.UserID(rawIssuedBy)
	d.Status = Status(status)
	d.RenewalStatus = RenewalStatus(renewalStatus)
	if returnDate.Valid {
		d.ReturnDate = &returnDate.Time
	}
	if rawReturnedBy.Valid {
		rb := id.UserID(rawReturnedBy.V)
		d.ReturnedBy = &rb
	}

	if err := s.loadItems(ctx, q, d); err != nil {
		return nil, err
	}
	if err := s.loadRenewals(ctx, q, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *PostgresStore) Update(ctx context.Context, d *Distribution) error {
	q := tx.QuerierFrom(ctx, s.db)

	res, err := q.ExecContext(ctx, `
		UPDATE distributions
		SET status = $1, renewal_status = $2, renewal_due = $3,
		    return_date = $4, returned_by = $5, version = version + 1, updated_at = $6
		WHERE id = $7 AND version = $8
	`, string(d.Status), string(d.RenewalStatus), d.RenewalDue,
		nullTime(d.ReturnDate), nullUser(d.ReturnedBy), time.Now(),
		uuid.UUID(d.ID), d.Version)
	if err != nil {
		return fmt.Errorf("update distribution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update distribution: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := q.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM distributions WHERE id = $1)`,
			uuid.UUID(d.ID)).Scan(&exists); err != nil {
			return fmt.Errorf("update distribution: %w", err)
		}
		if !exists {
			return sentinel.ErrNotFound
		}
		return sentinel.ErrConflict
	}

	if _, err := q.ExecContext(ctx,
		`DELETE FROM distribution_items WHERE distribution_id = $1`, uuid.UUID(d.ID)); err != nil {
		return fmt.Errorf("clear distribution items: %w", err)
	}
	if err := s.insertItems(ctx, q, d); err != nil {
		return err
	}

	// Renewal history is append-only; persist any entries beyond what is
	// already stored.
	var stored int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM distribution_renewals WHERE distribution_id = $1`,
		uuid.UUID(d.ID)).Scan(&stored); err != nil {
		return fmt.Errorf("count renewals: %w", err)
	}
	for _, entry := range d.RenewalHistory[stored:] {
		_, err := q.ExecContext(ctx, `
			INSERT INTO distribution_renewals (
				distribution_id, renewed_at, renewed_by, next_renewal_date, condition, remarks
			) VALUES ($1, $2, $3, $4, $5, $6)
		`, uuid.UUID(d.ID), entry.RenewedAt, uuid.UUID(entry.RenewedBy),
			entry.NextRenewalDate, entry.Condition.String(), entry.Remarks)
		if err != nil {
			return fmt.Errorf("append renewal: %w", err)
		}
	}

	d.Version++
	return nil
}

func (s *PostgresStore) ListByArmory(ctx context.Context, armoryID id.ArmoryID) ([]*Distribution, error) {
	return s.listWhere(ctx, `armory_id = $1`, uuid.UUID(armoryID))
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]*Distribution, error) {
	return s.listWhere(ctx, `status IN ($1, $2)`, string(StatusIssued), string(StatusPartialReturn))
}

func (s *PostgresStore) listWhere(ctx context.Context, where string, args ...any) ([]*Distribution, error) {
	q := tx.QuerierFrom(ctx, s.db)

	rows, err := q.QueryContext(ctx,
		`SELECT id FROM distributions WHERE `+where+` ORDER BY issued_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list distributions: %w", err)
	}
	defer rows.Close()

	var ids []id.DistributionID
	for rows.Next() {
		var raw uuid.UUID
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan distribution id: %w", err)
		}
		ids = append(ids, id.DistributionID(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate distributions: %w", err)
	}

	out := make([]*Distribution, 0, len(ids))
	for _, distributionID := range ids {
		d, err := s.FindByID(ctx, distributionID)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *PostgresStore) insertItems(ctx context.Context, q tx.Querier, d *Distribution) error {
	for _, it := range d.Items {
		var condAtReturn sql.NullString
		if it.ConditionAtReturn != nil {
			condAtReturn = sql.NullString{String: it.ConditionAtReturn.String(), Valid: true}
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO distribution_items (
				distribution_id, item_type, ref, quantity, returned_quantity,
				condition_at_issue, condition_at_return
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, uuid.UUID(d.ID), it.Key.Type.String(), it.Key.Ref, it.Quantity,
			it.ReturnedQuantity, it.ConditionAtIssue.String(), condAtReturn)
		if err != nil {
			return fmt.Errorf("insert distribution item %s: %w", it.Key, err)
		}
	}
	return nil
}

func (s *PostgresStore) loadItems(ctx context.Context, q tx.Querier, d *Distribution) error {
	rows, err := q.QueryContext(ctx, `
		SELECT item_type, ref, quantity, returned_quantity, condition_at_issue, condition_at_return
		FROM distribution_items WHERE distribution_id = $1
	`, uuid.UUID(d.ID))
	if err != nil {
		return fmt.Errorf("load distribution items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it IssuedItem
		var itemType, condAtIssue string
		var condAtReturn sql.NullString
		if err := rows.Scan(&itemType, &it.Key.Ref, &it.Quantity, &it.ReturnedQuantity,
			&condAtIssue, &condAtReturn); err != nil {
			return fmt.Errorf("scan distribution item: %w", err)
		}
		it.Key.Type = id.ItemType(itemType)
		it.ConditionAtIssue = id.Condition(condAtIssue)
		if condAtReturn.Valid {
			cond := id.Condition(condAtReturn.String)
			it.ConditionAtReturn = &cond
		}
		d.Items[it.Key] = &it
	}
	return rows.Err()
}

func (s *PostgresStore) loadRenewals(ctx context.Context, q tx.Querier, d *Distribution) error {
	rows, err := q.QueryContext(ctx, `
		SELECT renewed_at, renewed_by, next_renewal_date, condition, remarks
		FROM distribution_renewals WHERE distribution_id = $1 ORDER BY renewed_at
	`, uuid.UUID(d.ID))
	if err != nil {
		return fmt.Errorf("load renewals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entry RenewalEntry
		var rawBy uuid.UUID
		var condition string
		if err := rows.Scan(&entry.RenewedAt, &rawBy, &entry.NextRenewalDate,
			&condition, &entry.Remarks); err != nil {
			return fmt.Errorf("scan renewal: %w", err)
		}
		entry.RenewedBy = id.UserID(rawBy)
		entry.Condition = id.Condition(condition)
		d.RenewalHistory = append(d.RenewalHistory, entry)
	}
	return rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullUser(u *id.UserID) sql.Null[uuid.UUID] {
	if u == nil {
		return sql.Null[uuid.UUID]{}
	}
	return sql.Null[uuid.UUID]{V: uuid.UUID(*u), Valid: true}
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
