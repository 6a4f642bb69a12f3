package armory

import (
	"context"

	id "armora/pkg/domain"
)

// Store persists armories. Implementations return deep copies on reads and
// enforce optimistic versioning on Update: when the stored Version differs
// from the caller's snapshot, Update fails with sentinel.ErrConflict and the
// caller retries from a fresh read.
type Store interface {
	Create(ctx context.Context, a *Armory) error
	FindByID(ctx context.Context, armoryID id.ArmoryID) (*Armory, error)
	Update(ctx context.Context, a *Armory) error
	List(ctx context.Context) ([]*Armory, error)
}
