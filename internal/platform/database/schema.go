// Package database owns the PostgreSQL schema. Migrate is idempotent and
// runs at startup; every statement uses IF NOT EXISTS so replicas can race
// it safely.
package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS armories (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL,
    unit       TEXT NOT NULL DEFAULT '',
    version    BIGINT NOT NULL DEFAULT 1,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS armory_stock_lines (
    armory_id UUID NOT NULL REFERENCES armories(id) ON DELETE CASCADE,
    item_type TEXT NOT NULL CHECK (item_type IN ('weapon', 'ammunition', 'equipment')),
    ref       TEXT NOT NULL,
    quantity  INTEGER NOT NULL CHECK (quantity >= 0),
    condition TEXT NOT NULL,
    PRIMARY KEY (armory_id, item_type, ref)
);

CREATE TABLE IF NOT EXISTS distributions (
    id             UUID PRIMARY KEY,
    armory_id      UUID NOT NULL REFERENCES armories(id),
    officer_id     UUID NOT NULL,
    squad          TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL CHECK (status IN ('issued', 'partial_return', 'returned', 'cancelled')),
    renewal_status TEXT NOT NULL CHECK (renewal_status IN ('pending', 'due', 'overdue', 'renewed')),
    renewal_due    TIMESTAMPTZ NOT NULL,
    issued_at      TIMESTAMPTZ NOT NULL,
    issued_by      UUID NOT NULL,
    return_date    TIMESTAMPTZ,
    returned_by    UUID,
    version        BIGINT NOT NULL DEFAULT 1,
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_distributions_armory
    ON distributions(armory_id);
CREATE INDEX IF NOT EXISTS idx_distributions_active
    ON distributions(renewal_due) WHERE status IN ('issued', 'partial_return');

CREATE TABLE IF NOT EXISTS distribution_items (
    distribution_id     UUID NOT NULL REFERENCES distributions(id) ON DELETE CASCADE,
    item_type           TEXT NOT NULL,
    ref                 TEXT NOT NULL,
    quantity            INTEGER NOT NULL CHECK (quantity > 0),
    returned_quantity   INTEGER NOT NULL DEFAULT 0 CHECK (returned_quantity >= 0 AND returned_quantity <= quantity),
    condition_at_issue  TEXT NOT NULL,
    condition_at_return TEXT,
    PRIMARY KEY (distribution_id, item_type, ref)
);

CREATE TABLE IF NOT EXISTS distribution_renewals (
    id                BIGSERIAL PRIMARY KEY,
    distribution_id   UUID NOT NULL REFERENCES distributions(id) ON DELETE CASCADE,
    renewed_at        TIMESTAMPTZ NOT NULL,
    renewed_by        UUID NOT NULL,
    next_renewal_date TIMESTAMPTZ NOT NULL,
    condition         TEXT NOT NULL,
    remarks           TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_distribution_renewals_distribution
    ON distribution_renewals(distribution_id, renewed_at);

CREATE TABLE IF NOT EXISTS audit_events (
    id              BIGSERIAL PRIMARY KEY,
    occurred_at     TIMESTAMPTZ NOT NULL,
    action          TEXT NOT NULL,
    actor_id        UUID NOT NULL,
    armory_id       UUID NOT NULL,
    distribution_id UUID NOT NULL,
    officer_id      UUID NOT NULL,
    request_id      TEXT NOT NULL DEFAULT '',
    detail          JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_audit_events_armory
    ON audit_events(armory_id, occurred_at);

CREATE TABLE IF NOT EXISTS officers (
    id         UUID PRIMARY KEY,
    name       TEXT NOT NULL,
    rank       TEXT NOT NULL DEFAULT '',
    unit       TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
