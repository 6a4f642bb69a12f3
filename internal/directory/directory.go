// Package directory is the boundary to the officer/unit directory. The
// distribution core only needs existence checks; ownership of officer records
// lives elsewhere.
package directory

import (
	"context"
	"sync"

	id "armora/pkg/domain"
)

// Directory answers whether an officer exists. The core trusts upstream
// authorization; this check only guards against issuing custody to an
// identifier that resolves to nothing.
type Directory interface {
	OfficerExists(ctx context.Context, officerID id.OfficerID) (bool, error)
}

// InMemory is a seedable Directory for tests and single-process deployments.
type InMemory struct {
	mu       sync.RWMutex
	officers map[id.OfficerID]struct{}
}

// NewInMemory constructs an empty in-memory directory.
func NewInMemory() *InMemory {
	return &InMemory{officers: make(map[id.OfficerID]struct{})}
}

// AddOfficer registers an officer.
func (d *InMemory) AddOfficer(officerID id.OfficerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.officers[officerID] = struct{}{}
}

func (d *InMemory) OfficerExists(ctx context.Context, officerID id.OfficerID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.officers[officerID]
	return ok, nil
}
