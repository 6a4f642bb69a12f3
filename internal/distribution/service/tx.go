package service

import (
	"context"

	"armora/internal/armory"
	"armora/internal/distribution"
)

// Stores bundles the two aggregate stores the engines write. Within one
// RunInTx call both stores observe the same transaction scope.
type Stores struct {
	Armories      armory.Store
	Distributions distribution.Store
}

// Tx is the transactional boundary for engine mutations. Implementations
// wrap a database transaction (cmd/server wires one over *sql.DB via
// pkg/platform/tx) or, in-memory, pass the live stores through. The context
// handed to fn carries the transaction; every store call inside fn must use
// it so the armory write, the distribution write, and the audit row commit
// or roll back together.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// MemoryTx is the in-memory boundary. It deliberately takes no lock of its
// own: mutual exclusion comes from the service's per-armory lock, and the
// engines' validate-then-write ordering means the only mid-sequence write
// failures (version conflicts) cannot occur under that lock. This keeps
// operations on different armories fully concurrent, which a coarse
// store-wide mutex would forfeit.
type MemoryTx struct {
	stores Stores
}

// NewMemoryTx constructs the passthrough boundary over in-memory stores.
func NewMemoryTx(stores Stores) *MemoryTx {
	return &MemoryTx{stores: stores}
}

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx, t.stores)
}
