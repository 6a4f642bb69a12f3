package distribution

import (
	"context"
	"sort"
	"sync"
	"time"

	id "armora/pkg/domain"
	"armora/pkg/platform/sentinel"
)

// InMemory is a map-backed Store for tests and single-process deployments.
type InMemory struct {
	mu            sync.RWMutex
	distributions map[id.DistributionID]*Distribution
}

// NewInMemory constructs an empty in-memory distribution store.
func NewInMemory() *InMemory {
	return &InMemory{distributions: make(map[id.DistributionID]*Distribution)}
}

func (s *InMemory) Create(ctx context.Context, d *Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.distributions[d.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := d.Clone()
	stored.Version = 1
	s.distributions[d.ID] = stored
	d.Version = stored.Version
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, distributionID id.DistributionID) (*Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.distributions[distributionID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.Clone(), nil
}

func (s *InMemory) Update(ctx context.Context, d *Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.distributions[d.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != d.Version {
		return sentinel.ErrConflict
	}
	next := d.Clone()
	next.Version = stored.Version + 1
	next.UpdatedAt = time.Now()
	s.distributions[d.ID] = next
	d.Version = next.Version
	return nil
}

func (s *InMemory) ListByArmory(ctx context.Context, armoryID id.ArmoryID) ([]*Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Distribution
	for _, d := range s.distributions {
		if d.ArmoryID == armoryID {
			out = append(out, d.Clone())
		}
	}
	sortByIssuedAt(out)
	return out, nil
}

func (s *InMemory) ListActive(ctx context.Context) ([]*Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Distribution
	for _, d := range s.distributions {
		if d.Active() {
			out = append(out, d.Clone())
		}
	}
	sortByIssuedAt(out)
	return out, nil
}

func sortByIssuedAt(ds []*Distribution) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].IssuedAt.Before(ds[j].IssuedAt) })
}
