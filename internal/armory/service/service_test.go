package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"armora/internal/armory"
	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
	audit "armora/pkg/platform/audit"
	auditpublisher "armora/pkg/platform/audit/publisher"
	auditmemory "armora/pkg/platform/audit/store/memory"
	"armora/pkg/platform/lock"
	"armora/pkg/requestcontext"
)

type ArmoryServiceSuite struct {
	suite.Suite
	store      *armory.InMemory
	auditStore *auditmemory.InMemoryStore
	service    *Service
	actorID    id.UserID
	now        time.Time
}

func TestArmoryServiceSuite(t *testing.T) {
	suite.Run(t, new(ArmoryServiceSuite))
}

func (s *ArmoryServiceSuite) SetupTest() {
	s.store = armory.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.actorID = id.NewUserID()
	s.now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service, err := New(s.store, lock.NewKeyed(),
		WithLogger(logger),
		WithAuditPublisher(auditpublisher.NewPublisher(s.auditStore, auditpublisher.WithLogger(logger))),
	)
	s.Require().NoError(err)
	s.service = service
}

func (s *ArmoryServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithActorID(context.Background(), s.actorID)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *ArmoryServiceSuite) TestNew() {
	s.Run("nil store", func() {
		_, err := New(nil, lock.NewKeyed())
		s.Error(err)
	})

	s.Run("nil locker", func() {
		_, err := New(armory.NewInMemory(), nil)
		s.Error(err)
	})
}

func (s *ArmoryServiceSuite) TestCreateArmory() {
	s.Run("creates with initial stock", func() {
		a, err := s.service.CreateArmory(s.ctx(), "Central", "1st Battalion", []StockLine{
			{Key: armory.WeaponKey("rifle", "R-1"), Quantity: 10, Condition: id.ConditionGood},
			{Key: armory.EquipmentKey("vest"), Quantity: 5, Condition: id.ConditionFair},
		})
		s.Require().NoError(err)
		s.Equal("Central", a.Name)
		s.Equal(10, a.Available(armory.WeaponKey("rifle", "R-1")))
		s.Equal(5, a.Available(armory.EquipmentKey("vest")))
		s.Equal(s.now, a.CreatedAt)

		stored, err := s.store.FindByID(context.Background(), a.ID)
		s.Require().NoError(err)
		s.Equal(a.ID, stored.ID)

		events, err := s.auditStore.ListByArmory(context.Background(), a.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(audit.ActionArmoryCreated, events[0].Action)
		s.Equal(s.actorID, events[0].ActorID)
	})

	s.Run("rejects empty name", func() {
		_, err := s.service.CreateArmory(s.ctx(), "", "unit", nil)
		s.Require().Error(err)
		s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})

	s.Run("rejects invalid initial line", func() {
		_, err := s.service.CreateArmory(s.ctx(), "Depot", "unit", []StockLine{
			{Key: armory.WeaponKey("rifle", "R-9"), Quantity: 0, Condition: id.ConditionGood},
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
	})
}

func (s *ArmoryServiceSuite) TestRestock() {
	a, err := s.service.CreateArmory(s.ctx(), "Central", "unit", []StockLine{
		{Key: armory.WeaponKey("rifle", "R-1"), Quantity: 4, Condition: id.ConditionGood},
	})
	s.Require().NoError(err)

	s.Run("tops up and adds lines", func() {
		updated, err := s.service.Restock(s.ctx(), a.ID, []StockLine{
			{Key: armory.WeaponKey("rifle", "R-1"), Quantity: 6, Condition: id.ConditionNew},
			{Key: armory.AmmunitionKey("9mm", "ball"), Quantity: 200, Condition: id.ConditionNew},
		})
		s.Require().NoError(err)
		s.Equal(10, updated.Available(armory.WeaponKey("rifle", "R-1")))
		s.Equal(200, updated.Available(armory.AmmunitionKey("9mm", "ball")))

		events, err := s.auditStore.ListByArmory(context.Background(), a.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 2)
		s.Equal(audit.ActionStockRestocked, events[1].Action)
		s.Equal(6, events[1].Detail[armory.WeaponKey("rifle", "R-1").String()])
	})

	s.Run("unknown armory", func() {
		_, err := s.service.Restock(s.ctx(), id.NewArmoryID(), []StockLine{
			{Key: armory.EquipmentKey("vest"), Quantity: 1, Condition: id.ConditionGood},
		})
		s.Require().Error(err)
		s.Equal(dErrors.CodeUnknownArmory, dErrors.CodeOf(err))
	})

	s.Run("empty lines", func() {
		_, err := s.service.Restock(s.ctx(), a.ID, nil)
		s.Require().Error(err)
		s.Equal(dErrors.CodeBadRequest, dErrors.CodeOf(err))
	})

	s.Run("concurrent restocks all land", func() {
		target, err := s.service.CreateArmory(s.ctx(), "Depot", "unit", nil)
		s.Require().NoError(err)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.service.Restock(s.ctx(), target.ID, []StockLine{
					{Key: armory.EquipmentKey("helmet"), Quantity: 1, Condition: id.ConditionGood},
				})
				s.NoError(err)
			}()
		}
		wg.Wait()

		stored, err := s.store.FindByID(context.Background(), target.ID)
		s.Require().NoError(err)
		s.Equal(8, stored.Available(armory.EquipmentKey("helmet")))
	})
}

func (s *ArmoryServiceSuite) TestGetAndList() {
	a, err := s.service.CreateArmory(s.ctx(), "Central", "unit", nil)
	s.Require().NoError(err)

	s.Run("get", func() {
		got, err := s.service.Get(s.ctx(), a.ID)
		s.Require().NoError(err)
		s.Equal(a.ID, got.ID)
	})

	s.Run("get unknown", func() {
		_, err := s.service.Get(s.ctx(), id.NewArmoryID())
		s.Require().Error(err)
		s.Equal(dErrors.CodeUnknownArmory, dErrors.CodeOf(err))
	})

	s.Run("list", func() {
		_, err := s.service.CreateArmory(s.ctx(), "Depot", "unit", nil)
		s.Require().NoError(err)
		all, err := s.service.List(s.ctx())
		s.Require().NoError(err)
		s.Len(all, 2)
	})
}
