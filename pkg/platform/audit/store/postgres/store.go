// Package postgres persists audit events in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "armora/pkg/domain"
	audit "armora/pkg/platform/audit"
	"armora/pkg/platform/tx"
)

// Store appends events to the audit_events table. Appends join an enclosing
// transaction when one is carried by the context, so the audit write commits
// or rolls back with the stock movement it records.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	q := tx.QuerierFrom(ctx, s.db)

	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return fmt.Errorf("encode audit detail: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO audit_events (
			occurred_at, action, actor_id, armory_id, distribution_id, officer_id, request_id, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.Timestamp, string(event.Action), uuid.UUID(event.ActorID),
		uuid.UUID(event.ArmoryID), uuid.UUID(event.DistributionID),
		uuid.UUID(event.OfficerID), event.RequestID, detail)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *Store) ListByArmory(ctx context.Context, armoryID id.ArmoryID) ([]audit.Event, error) {
	q := tx.QuerierFrom(ctx, s.db)

	rows, err := q.QueryContext(ctx, `
		SELECT occurred_at, action, actor_id, armory_id, distribution_id, officer_id, request_id, detail
		FROM audit_events WHERE armory_id = $1 ORDER BY occurred_at
	`, uuid.UUID(armoryID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var e audit.Event
		var action string
		var actor, armoryRaw, distRaw, officerRaw uuid.UUID
		var detail []byte
		if err := rows.Scan(&e.Timestamp, &action, &actor, &armoryRaw,
			&distRaw, &officerRaw, &e.RequestID, &detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = audit.Action(action)
		e.ActorID = id.UserID(actor)
		e.ArmoryID = id.ArmoryID(armoryRaw)
		e.DistributionID = id.DistributionID(distRaw)
		e.OfficerID = id.OfficerID(officerRaw)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
