package armory

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
	mu       sync.RWMutex
	armories map[id.ArmoryID]*Armory
}

// NewInMemory constructs an empty in-memory armory store.
func NewInMemory() *InMemory {
	return &InMemory{armories: make(map[id.ArmoryID]*Armory)}
}

func (s *InMemory) Create(ctx context.Context, a *Armory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.armories[a.ID]; exists {
		return sentinel.ErrConflict
	}
	stored := a.Clone()
	stored.Version = 1
	s.armories[a.ID] = stored
	a.Version = stored.Version
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, armoryID id.ArmoryID) (*Armory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.armories[armoryID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *InMemory) Update(ctx context.Context, a *Armory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.armories[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if stored.Version != a.Version {
		return sentinel.ErrConflict
	}
	next := a.Clone()
	next.Version = stored.Version + 1
	next.UpdatedAt = time.Now()
	s.armories[a.ID] = next
	a.Version = next.Version
	return nil
}

func (s *InMemory) List(ctx context.Context) ([]*Armory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Armory, 0, len(s.armories))
	for _, a := range s.armories {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
