package distribution

import (
	"context"

	id "armora/pkg/domain"
)

// Store persists distributions. Same contract as the armory store: deep
// copies on reads, optimistic versioning on Update (sentinel.ErrConflict on a
// stale snapshot). Distributions are never deleted.
type Store interface {
	Create(ctx context.Context, d *Distribution) error
	FindByID(ctx context.Context, distributionID id.DistributionID) (*Distribution, error)
	Update(ctx context.Context, d *Distribution) error
	ListByArmory(ctx context.Context, armoryID id.ArmoryID) ([]*Distribution, error)
	// ListActive returns every distribution still in return accounting
	// (issued or partial_return), the population the scheduler view
	// classifies.
	ListActive(ctx context.Context) ([]*Distribution, error)
}
