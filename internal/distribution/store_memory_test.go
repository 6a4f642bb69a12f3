package distribution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"armora/internal/armory"
	id "armora/pkg/domain"
	"armora/pkg/platform/sentinel"
)

type DistributionStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *DistributionStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestDistributionStoreSuite(t *testing.T) {
	suite.Run(t, new(DistributionStoreSuite))
}

func (s *DistributionStoreSuite) newDistribution(armoryID id.ArmoryID, issuedAt time.Time) *Distribution {
	key := armory.WeaponKey("rifle", "R-1")
	return &Distribution{
		ID:            id.NewDistributionID(),
		ArmoryID:      armoryID,
		OfficerID:     id.NewOfficerID(),
		Status:        StatusIssued,
		RenewalStatus: RenewalPending,
		RenewalDue:    issuedAt.Add(30 * 24 * time.Hour),
		Items: map[armory.LineKey]*IssuedItem{
			key: {Key: key, Quantity: 2, ConditionAtIssue: id.ConditionGood},
		},
		IssuedAt: issuedAt,
	}
}

func (s *DistributionStoreSuite) TestCreationAndLookups() {
	armoryID := id.NewArmoryID()

	s.Run("creates and finds by ID", func() {
		d := s.newDistribution(armoryID, time.Now())
		s.Require().NoError(s.store.Create(s.ctx, d))
		s.Equal(int64(1), d.Version)

		found, err := s.store.FindByID(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Equal(d.OfficerID, found.OfficerID)
		s.Len(found.Items, 1)
	})

	s.Run("unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, id.NewDistributionID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *DistributionStoreSuite) TestOptimisticVersioning() {
	d := s.newDistribution(id.NewArmoryID(), time.Now())
	s.Require().NoError(s.store.Create(s.ctx, d))

	fresh, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	stale, err := s.store.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)

	fresh.Status = StatusPartialReturn
	s.Require().NoError(s.store.Update(s.ctx, fresh))
	s.Equal(int64(2), fresh.Version)

	stale.Status = StatusReturned
	s.ErrorIs(s.store.Update(s.ctx, stale), sentinel.ErrConflict)
}

func (s *DistributionStoreSuite) TestListByArmory() {
	armoryA := id.NewArmoryID()
	armoryB := id.NewArmoryID()
	base := time.Now()

	second := s.newDistribution(armoryA, base.Add(time.Hour))
	first := s.newDistribution(armoryA, base)
	other := s.newDistribution(armoryB, base)
	s.Require().NoError(s.store.Create(s.ctx, second))
	s.Require().NoError(s.store.Create(s.ctx, first))
	s.Require().NoError(s.store.Create(s.ctx, other))

	out, err := s.store.ListByArmory(s.ctx, armoryA)
	s.Require().NoError(err)
	s.Require().Len(out, 2)
	// Ordered by issue time.
	s.Equal(first.ID, out[0].ID)
	s.Equal(second.ID, out[1].ID)
}

func (s *DistributionStoreSuite) TestListActive() {
	armoryID := id.NewArmoryID()

	active := s.newDistribution(armoryID, time.Now())
	partial := s.newDistribution(armoryID, time.Now())
	partial.Status = StatusPartialReturn
	done := s.newDistribution(armoryID, time.Now())
	done.Status = StatusReturned
	cancelled := s.newDistribution(armoryID, time.Now())
	cancelled.Status = StatusCancelled

	for _, d := range []*Distribution{active, partial, done, cancelled} {
		s.Require().NoError(s.store.Create(s.ctx, d))
	}

	out, err := s.store.ListActive(s.ctx)
	s.Require().NoError(err)
	s.Len(out, 2)
}
