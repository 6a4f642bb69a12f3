package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"armora/internal/armory"
	"armora/internal/directory"
	"armora/internal/distribution"
	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
	auditpublisher "armora/pkg/platform/audit/publisher"
	auditmemory "armora/pkg/platform/audit/store/memory"
	"armora/pkg/platform/lock"
	"armora/pkg/requestcontext"
)

type DistributionServiceSuite struct {
	suite.Suite
	armories      *armory.InMemory
	distributions *distribution.InMemory
	dir           *directory.InMemory
	auditStore    *auditmemory.InMemoryStore
	service       *Service

	armoryID  id.ArmoryID
	officerID id.OfficerID
	actorID   id.UserID
	now       time.Time
}

func TestDistributionServiceSuite(t *testing.T) {
	suite.Run(t, new(DistributionServiceSuite))
}

var (
	rifleKey  = armory.WeaponKey("rifle", "R-100")
	pistolKey = armory.WeaponKey("pistol", "P-200")
	ammoKey   = armory.AmmunitionKey("5.56mm", "ball")
	vestKey   = armory.EquipmentKey("vest")
)

func (s *DistributionServiceSuite) SetupTest() {
	s.armories = armory.NewInMemory()
	s.distributions = distribution.NewInMemory()
	s.dir = directory.NewInMemory()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	s.armoryID = id.NewArmoryID()
	a := armory.New(s.armoryID, "Central Armory", "1st Battalion", s.now)
	s.Require().NoError(a.Restock(rifleKey, 10, id.ConditionGood))
	s.Require().NoError(a.Restock(pistolKey, 4, id.ConditionNew))
	s.Require().NoError(a.Restock(ammoKey, 500, id.ConditionNew))
	s.Require().NoError(a.Restock(vestKey, 20, id.ConditionFair))
	s.Require().NoError(s.armories.Create(context.Background(), a))

	officerUUID, err := id.ParseOfficerID("7e57ab1e-0000-4000-8000-00000000c0de")
	s.Require().NoError(err)
	s.officerID = officerUUID
	s.dir.AddOfficer(s.officerID)

	actorUUID, err := id.ParseUserID("ac702000-0000-4000-8000-000000000001")
	s.Require().NoError(err)
	s.actorID = actorUUID

	stores := Stores{Armories: s.armories, Distributions: s.distributions}
	s.service, err = New(
		NewMemoryTx(stores),
		stores,
		lock.NewKeyed(),
		s.dir,
		WithAuditPublisher(auditpublisher.NewPublisher(s.auditStore)),
	)
	s.Require().NoError(err)
}

func (s *DistributionServiceSuite) SetupSubTest() {
	s.SetupTest()
}

func (s *DistributionServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithActorID(context.Background(), s.actorID)
	return requestcontext.WithTime(ctx, s.now)
}

func (s *DistributionServiceSuite) issue(items ...RequestedItem) *distribution.Distribution {
	d, err := s.service.IssueItems(s.ctx(), IssueRequest{
		ArmoryID:  s.armoryID,
		OfficerID: s.officerID,
		Squad:     "alpha",
		Items:     items,
	})
	s.Require().NoError(err)
	return d
}

func (s *DistributionServiceSuite) available(key armory.LineKey) int {
	a, err := s.armories.FindByID(context.Background(), s.armoryID)
	s.Require().NoError(err)
	return a.Available(key)
}

// totalHeld sums a line's quantity across stock and every distribution's
// outstanding balance. Conservation means this never moves.
func (s *DistributionServiceSuite) totalHeld(key armory.LineKey) int {
	total := s.available(key)
	ds, err := s.distributions.ListByArmory(context.Background(), s.armoryID)
	s.Require().NoError(err)
	for _, d := range ds {
		if d.Status == distribution.StatusCancelled {
			continue
		}
		if item, ok := d.Item(key); ok {
			total += item.Outstanding()
		}
	}
	return total
}

func (s *DistributionServiceSuite) TestNew() {
	stores := Stores{Armories: s.armories, Distributions: s.distributions}

	s.Run("nil tx returns error", func() {
		_, err := New(nil, stores, lock.NewKeyed(), s.dir)
		s.Error(err)
	})

	s.Run("missing store returns error", func() {
		_, err := New(NewMemoryTx(stores), Stores{}, lock.NewKeyed(), s.dir)
		s.Error(err)
	})

	s.Run("nil locker returns error", func() {
		_, err := New(NewMemoryTx(stores), stores, nil, s.dir)
		s.Error(err)
	})

	s.Run("nil directory returns error", func() {
		_, err := New(NewMemoryTx(stores), stores, lock.NewKeyed(), nil)
		s.Error(err)
	})
}

func (s *DistributionServiceSuite) TestIssueItems() {
	s.Run("issues multiple lines and decrements stock", func() {
		d := s.issue(
			RequestedItem{Key: rifleKey, Quantity: 2},
			RequestedItem{Key: ammoKey, Quantity: 120},
		)

		s.Equal(distribution.StatusIssued, d.Status)
		s.Equal(distribution.RenewalPending, d.RenewalStatus)
		s.Equal(s.officerID, d.OfficerID)
		s.Equal(s.actorID, d.IssuedBy)
		s.Equal(s.now, d.IssuedAt)
		s.Len(d.Items, 2)

		rifle, ok := d.Item(rifleKey)
		s.Require().True(ok)
		s.Equal(2, rifle.Quantity)
		s.Equal(0, rifle.ReturnedQuantity)
		s.Equal(id.ConditionGood, rifle.ConditionAtIssue)

		s.Equal(8, s.available(rifleKey))
		s.Equal(380, s.available(ammoKey))
	})

	s.Run("defaults renewal due from issue time", func() {
		d := s.issue(RequestedItem{Key: vestKey, Quantity: 1})
		s.Equal(s.now.Add(30*24*time.Hour), d.RenewalDue)
	})

	s.Run("honors explicit renewal due", func() {
		due := s.now.Add(72 * time.Hour)
		d, err := s.service.IssueItems(s.ctx(), IssueRequest{
			ArmoryID:   s.armoryID,
			OfficerID:  s.officerID,
			Items:      []RequestedItem{{Key: vestKey, Quantity: 1}},
			RenewalDue: due,
		})
		s.Require().NoError(err)
		s.Equal(due, d.RenewalDue)
	})

	s.Run("insufficient stock rejects whole request", func() {
		before := s.available(rifleKey)
		_, err := s.service.IssueItems(s.ctx(), IssueRequest{
			ArmoryID:  s.armoryID,
			OfficerID: s.officerID,
			Items: []RequestedItem{
				{Key: ammoKey, Quantity: 10},
				{Key: rifleKey, Quantity: before + 1},
			},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientStock))
		// The valid first line must not have been applied.
		s.Equal(before, s.available(rifleKey))
		s.Equal(s.totalHeld(ammoKey), 500)
	})

	s.Run("unknown stock line", func() {
		_, err := s.service.IssueItems(s.ctx(), IssueRequest{
			ArmoryID:  s.armoryID,
			OfficerID: s.officerID,
			Items:     []RequestedItem{{Key: armory.WeaponKey("rifle", "NOPE"), Quantity: 1}},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownItem))
	})

	s.Run("unknown officer", func() {
		_, err := s.service.IssueItems(s.ctx(), IssueRequest{
			ArmoryID:  s.armoryID,
			OfficerID: id.NewOfficerID(),
			Items:     []RequestedItem{{Key: rifleKey, Quantity: 1}},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownOfficer))
	})

	s.Run("unknown armory", func() {
		_, err := s.service.IssueItems(s.ctx(), IssueRequest{
			ArmoryID:  id.NewArmoryID(),
			OfficerID: s.officerID,
			Items:     []RequestedItem{{Key: rifleKey, Quantity: 1}},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownArmory))
	})

	s.Run("validation failures", func() {
		cases := map[string]IssueRequest{
			"no items": {ArmoryID: s.armoryID, OfficerID: s.officerID},
			"zero quantity": {ArmoryID: s.armoryID, OfficerID: s.officerID,
				Items: []RequestedItem{{Key: rifleKey, Quantity: 0}}},
			"negative quantity": {ArmoryID: s.armoryID, OfficerID: s.officerID,
				Items: []RequestedItem{{Key: rifleKey, Quantity: -3}}},
			"duplicate keys": {ArmoryID: s.armoryID, OfficerID: s.officerID,
				Items: []RequestedItem{
					{Key: rifleKey, Quantity: 1},
					{Key: rifleKey, Quantity: 2},
				}},
			"bad condition": {ArmoryID: s.armoryID, OfficerID: s.officerID,
				Items: []RequestedItem{{Key: rifleKey, Quantity: 1, Condition: "rusty"}}},
		}
		for name, req := range cases {
			_, err := s.service.IssueItems(s.ctx(), req)
			s.Error(err, name)
		}
	})

	s.Run("emits audit event", func() {
		d := s.issue(RequestedItem{Key: pistolKey, Quantity: 1})

		events, err := s.auditStore.ListByArmory(context.Background(), s.armoryID)
		s.Require().NoError(err)
		var found bool
		for _, e := range events {
			if e.DistributionID == d.ID {
				found = true
				s.Equal(s.actorID, e.ActorID)
				s.Equal(1, e.Detail[pistolKey.String()])
			}
		}
		s.True(found, "expected an audit event for the issuance")
	})
}

func (s *DistributionServiceSuite) TestReturnItems() {
	s.Run("partial return moves status and credits stock", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 4})
		s.Equal(6, s.available(rifleKey))

		updated, err := s.service.ReturnItems(s.ctx(), d.ID, []ReturnItem{
			{Key: rifleKey, Quantity: 1, Condition: id.ConditionFair},
		})
		s.Require().NoError(err)

		s.Equal(distribution.StatusPartialReturn, updated.Status)
		item, _ := updated.Item(rifleKey)
		s.Equal(3, item.Outstanding())
		s.Require().NotNil(item.ConditionAtReturn)
		s.Equal(id.ConditionFair, *item.ConditionAtReturn)
		s.Nil(updated.ReturnDate)
		s.Equal(7, s.available(rifleKey))

		// Returned condition replaces the stock line's condition.
		a, err := s.armories.FindByID(context.Background(), s.armoryID)
		s.Require().NoError(err)
		line, _ := a.Line(rifleKey)
		s.Equal(id.ConditionFair, line.Condition)
	})

	s.Run("final return completes the distribution", func() {
		d := s.issue(RequestedItem{Key: pistolKey, Quantity: 2})

		_, err := s.service.ReturnItems(s.ctx(), d.ID, []ReturnItem{{Key: pistolKey, Quantity: 1}})
		s.Require().NoError(err)
		updated, err := s.service.ReturnItems(s.ctx(), d.ID, []ReturnItem{{Key: pistolKey, Quantity: 1}})
		s.Require().NoError(err)

		s.Equal(distribution.StatusReturned, updated.Status)
		s.Require().NotNil(updated.ReturnDate)
		s.Equal(s.now, *updated.ReturnDate)
		s.Require().NotNil(updated.ReturnedBy)
		s.Equal(s.actorID, *updated.ReturnedBy)
		s.Equal(4, s.available(pistolKey))
	})

	s.Run("over-return rejects whole request", func() {
		d := s.issue(
			RequestedItem{Key: rifleKey, Quantity: 2},
			RequestedItem{Key: ammoKey, Quantity: 30},
		)
		before := s.available(ammoKey)

		_, err := s.service.ReturnItems(s.ctx(), d.ID, []ReturnItem{
			{Key: ammoKey, Quantity: 10},
			{Key: rifleKey, Quantity: 3},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeOverReturn))

		// Neither line moved.
		s.Equal(before, s.available(ammoKey))
		current, findErr := s.distributions.FindByID(context.Background(), d.ID)
		s.Require().NoError(findErr)
		s.Equal(distribution.StatusIssued, current.Status)
		item, _ := current.Item(ammoKey)
		s.Equal(0, item.ReturnedQuantity)
	})

	s.Run("duplicate lines for one key reject whole request", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 4})
		before := s.available(rifleKey)

		// Each line fits the outstanding balance alone; together they
		// exceed it.
		_, err := s.service.ReturnItems(s.ctx(), d.ID, []ReturnItem{
			{Key: rifleKey, Quantity: 3, Condition: id.ConditionGood},
			{Key: rifleKey, Quantity: 3, Condition: id.ConditionGood},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

		s.Equal(before, s.available(rifleKey))
		current, findErr := s.distributions.FindByID(context.Background(), d.ID)
		s.Require().NoError(findErr)
		s.Equal(distribution.StatusIssued, current.Status)
		item, _ := current.Item(rifleKey)
		s.Equal(0, item.ReturnedQuantity)
		s.Equal(10, s.totalHeld(rifleKey))
	})

	s.Run("returning an item never issued", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 1})
		_, err := s.service.ReturnItems(s.ctx(), d.ID, []ReturnItem{{Key: vestKey, Quantity: 1}})
		s.True(dErrors.HasCode(err, dErrors.CodeUnknownItem))
	})

	s.Run("returning to a completed distribution fails", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 1})
		_, err := s.service.ReturnAll(s.ctx(), d.ID)
		s.Require().NoError(err)

		_, err = s.service.ReturnItems(s.ctx(), d.ID, []ReturnItem{{Key: rifleKey, Quantity: 1}})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown distribution", func() {
		_, err := s.service.ReturnItems(s.ctx(), id.NewDistributionID(), []ReturnItem{{Key: rifleKey, Quantity: 1}})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("empty return list", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 1})
		_, err := s.service.ReturnItems(s.ctx(), d.ID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})
}

func (s *DistributionServiceSuite) TestReturnAll() {
	s.Run("returns every outstanding balance", func() {
		d := s.issue(
			RequestedItem{Key: rifleKey, Quantity: 3},
			RequestedItem{Key: ammoKey, Quantity: 90},
		)
		_, err := s.service.ReturnItems(s.ctx(), d.ID, []ReturnItem{{Key: rifleKey, Quantity: 1}})
		s.Require().NoError(err)

		updated, err := s.service.ReturnAll(s.ctx(), d.ID)
		s.Require().NoError(err)

		s.Equal(distribution.StatusReturned, updated.Status)
		s.Equal(10, s.available(rifleKey))
		s.Equal(500, s.available(ammoKey))
	})

	s.Run("repeat call is a no-op", func() {
		d := s.issue(RequestedItem{Key: pistolKey, Quantity: 2})

		first, err := s.service.ReturnAll(s.ctx(), d.ID)
		s.Require().NoError(err)
		s.Equal(distribution.StatusReturned, first.Status)
		s.Equal(4, s.available(pistolKey))

		second, err := s.service.ReturnAll(s.ctx(), d.ID)
		s.Require().NoError(err)
		s.Equal(distribution.StatusReturned, second.Status)
		// No double credit.
		s.Equal(4, s.available(pistolKey))
	})

	s.Run("defaults returned condition to condition at issue", func() {
		d := s.issue(RequestedItem{Key: vestKey, Quantity: 2})
		updated, err := s.service.ReturnAll(s.ctx(), d.ID)
		s.Require().NoError(err)

		item, _ := updated.Item(vestKey)
		s.Require().NotNil(item.ConditionAtReturn)
		s.Equal(id.ConditionFair, *item.ConditionAtReturn)
	})
}

func (s *DistributionServiceSuite) TestCancelDistribution() {
	s.Run("cancel restores stock and is terminal", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 5})
		s.Equal(5, s.available(rifleKey))

		cancelled, err := s.service.CancelDistribution(s.ctx(), d.ID)
		s.Require().NoError(err)
		s.Equal(distribution.StatusCancelled, cancelled.Status)
		s.Equal(10, s.available(rifleKey))

		// Terminal: no returns, no renewal, no second cancel.
		_, err = s.service.ReturnAll(s.ctx(), d.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		_, err = s.service.CancelDistribution(s.ctx(), d.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("cancel after a return is refused", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 2})
		_, err := s.service.ReturnItems(s.ctx(), d.ID, []ReturnItem{{Key: rifleKey, Quantity: 1}})
		s.Require().NoError(err)

		_, err = s.service.CancelDistribution(s.ctx(), d.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *DistributionServiceSuite) TestRenewDistribution() {
	s.Run("renewal appends history and moves the due date", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 1})
		next := s.now.Add(60 * 24 * time.Hour)

		renewed, err := s.service.RenewDistribution(s.ctx(), RenewRequest{
			DistributionID:  d.ID,
			Condition:       id.ConditionGood,
			Remarks:         "annual inspection",
			NextRenewalDate: next,
		})
		s.Require().NoError(err)

		s.Equal(distribution.RenewalRenewed, renewed.RenewalStatus)
		s.Equal(next, renewed.RenewalDue)
		s.Require().Len(renewed.RenewalHistory, 1)
		entry := renewed.RenewalHistory[0]
		s.Equal(s.now, entry.RenewedAt)
		s.Equal(s.actorID, entry.RenewedBy)
		s.Equal("annual inspection", entry.Remarks)
	})

	s.Run("second renewal appends, never rewrites", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 1})
		for i := 1; i <= 2; i++ {
			_, err := s.service.RenewDistribution(s.ctx(), RenewRequest{
				DistributionID:  d.ID,
				Condition:       id.ConditionGood,
				NextRenewalDate: s.now.Add(time.Duration(i) * 30 * 24 * time.Hour),
			})
			s.Require().NoError(err)
		}
		current, err := s.distributions.FindByID(context.Background(), d.ID)
		s.Require().NoError(err)
		s.Len(current.RenewalHistory, 2)
	})

	s.Run("renewal never touches stock", func() {
		d := s.issue(RequestedItem{Key: ammoKey, Quantity: 50})
		before := s.available(ammoKey)

		_, err := s.service.RenewDistribution(s.ctx(), RenewRequest{
			DistributionID:  d.ID,
			Condition:       id.ConditionFair,
			NextRenewalDate: s.now.Add(24 * time.Hour),
		})
		s.Require().NoError(err)
		s.Equal(before, s.available(ammoKey))
	})

	s.Run("renewing a returned distribution fails", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 1})
		_, err := s.service.ReturnAll(s.ctx(), d.ID)
		s.Require().NoError(err)

		_, err = s.service.RenewDistribution(s.ctx(), RenewRequest{
			DistributionID:  d.ID,
			Condition:       id.ConditionGood,
			NextRenewalDate: s.now.Add(24 * time.Hour),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("next renewal date must be in the future", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 1})
		_, err := s.service.RenewDistribution(s.ctx(), RenewRequest{
			DistributionID:  d.ID,
			Condition:       id.ConditionGood,
			NextRenewalDate: s.now.Add(-time.Hour),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("missing fields", func() {
		d := s.issue(RequestedItem{Key: rifleKey, Quantity: 1})

		_, err := s.service.RenewDistribution(s.ctx(), RenewRequest{
			DistributionID: d.ID,
			Condition:      id.ConditionGood,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

		_, err = s.service.RenewDistribution(s.ctx(), RenewRequest{
			DistributionID:  d.ID,
			NextRenewalDate: s.now.Add(24 * time.Hour),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

// TestConcurrentIssues hammers one armory from many goroutines and verifies
// the stock never oversells and quantity is conserved across stock plus
// outstanding balances.
func (s *DistributionServiceSuite) TestConcurrentIssues() {
	const (
		workers  = 16
		perIssue = 1
	)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = s.service.IssueItems(s.ctx(), IssueRequest{
				ArmoryID:  s.armoryID,
				OfficerID: s.officerID,
				Squad:     fmt.Sprintf("squad-%d", n),
				Items:     []RequestedItem{{Key: rifleKey, Quantity: perIssue}},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientStock),
			"unexpected failure: %v", err)
	}

	// Ten rifles in stock, sixteen single-rifle requests: exactly ten win.
	s.Equal(10, succeeded)
	s.Equal(0, s.available(rifleKey))
	s.Equal(10, s.totalHeld(rifleKey))
}

// TestConcurrentReturnAll issues once then races ReturnAll against itself;
// idempotency means stock is credited exactly once.
func (s *DistributionServiceSuite) TestConcurrentReturnAll() {
	d := s.issue(RequestedItem{Key: ammoKey, Quantity: 200})
	s.Equal(300, s.available(ammoKey))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.ReturnAll(s.ctx(), d.ID)
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(500, s.available(ammoKey))
	current, err := s.distributions.FindByID(context.Background(), d.ID)
	s.Require().NoError(err)
	s.Equal(distribution.StatusReturned, current.Status)
}

// TestMixedConcurrency interleaves issues and returns on the same armory and
// checks conservation at the end.
func (s *DistributionServiceSuite) TestMixedConcurrency() {
	seed := make([]*distribution.Distribution, 5)
	for i := range seed {
		seed[i] = s.issue(RequestedItem{Key: ammoKey, Quantity: 20})
	}

	var wg sync.WaitGroup
	for _, d := range seed {
		wg.Add(1)
		go func(distributionID id.DistributionID) {
			defer wg.Done()
			_, err := s.service.ReturnAll(s.ctx(), distributionID)
			s.NoError(err)
		}(d.ID)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.IssueItems(s.ctx(), IssueRequest{
				ArmoryID:  s.armoryID,
				OfficerID: s.officerID,
				Items:     []RequestedItem{{Key: ammoKey, Quantity: 10}},
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(500, s.totalHeld(ammoKey))
}
