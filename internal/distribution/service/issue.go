package service

import (
	"context"
	"time"

	"armora/internal/armory"
	"armora/internal/distribution"
	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
	audit "armora/pkg/platform/audit"
	"armora/pkg/requestcontext"
)

// RequestedItem is one line of an issuance request.
type RequestedItem struct {
	Key       armory.LineKey
	Quantity  int
	Condition id.Condition
}

// IssueRequest describes a new issuance.
type IssueRequest struct {
	ArmoryID  id.ArmoryID
	OfficerID id.OfficerID
	Squad     string
	Items     []RequestedItem
	// RenewalDue, when zero, defaults to now plus the configured interval.
	RenewalDue time.Time
}

// IssueItems validates and executes a new issuance: all requested lines are
// checked against current stock first, then every line is decremented and one
// distribution record is created, committed as a single unit. If any line is
// unknown or short the whole request fails and no stock moves.
func (s *Service) IssueItems(ctx context.Context, req IssueRequest) (*distribution.Distribution, error) {
	if err := validateIssueRequest(req); err != nil {
		return nil, err
	}

	exists, err := s.directory.OfficerExists(ctx, req.OfficerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check officer")
	}
	if !exists {
		return nil, dErrors.Newf(dErrors.CodeUnknownOfficer, "officer %s does not exist", req.OfficerID)
	}

	actorID := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)

	var issued *distribution.Distribution
	err = s.runSerialized(ctx, req.ArmoryID, func(ctx context.Context, stores Stores) error {
		a, err := stores.Armories.FindByID(ctx, req.ArmoryID)
		if err != nil {
			return translateArmoryErr(err, req.ArmoryID)
		}

		// Validate every line before touching any, so an insufficient
		// third line cannot leave the first two decremented.
		for _, item := range req.Items {
			line, ok := a.Line(item.Key)
			if !ok {
				s.recordRejection(dErrors.CodeUnknownItem)
				return dErrors.Newf(dErrors.CodeUnknownItem,
					"armory %s has no stock line %s", req.ArmoryID, item.Key)
			}
			if item.Quantity > line.Quantity {
				s.recordRejection(dErrors.CodeInsufficientStock)
				return dErrors.Newf(dErrors.CodeInsufficientStock,
					"stock line %s has %d available, %d requested",
					item.Key, line.Quantity, item.Quantity)
			}
		}

		renewalDue := req.RenewalDue
		if renewalDue.IsZero() {
			renewalDue = now.Add(s.renewalInterval)
		}

		d := &distribution.Distribution{
			ID:            id.NewDistributionID(),
			ArmoryID:      req.ArmoryID,
			OfficerID:     req.OfficerID,
			Squad:         req.Squad,
			Status:        distribution.StatusIssued,
			RenewalStatus: distribution.RenewalPending,
			RenewalDue:    renewalDue,
			Items:         make(map[armory.LineKey]*distribution.IssuedItem, len(req.Items)),
			IssuedAt:      now,
			IssuedBy:      actorID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		detail := make(map[string]int, len(req.Items))
		for _, item := range req.Items {
			if err := a.Deduct(item.Key, item.Quantity); err != nil {
				return err
			}
			condition := item.Condition
			if condition == "" {
				condition = a.Lines[item.Key].Condition
			}
			d.Items[item.Key] = &distribution.IssuedItem{
				Key:              item.Key,
				Quantity:         item.Quantity,
				ConditionAtIssue: condition,
			}
			detail[item.Key.String()] = item.Quantity
		}

		if err := stores.Armories.Update(ctx, a); err != nil {
			return err
		}
		if err := stores.Distributions.Create(ctx, d); err != nil {
			return err
		}
		if err := s.emitAudit(ctx, audit.Event{
			Timestamp:      now,
			Action:         audit.ActionItemsIssued,
			ActorID:        actorID,
			ArmoryID:       req.ArmoryID,
			DistributionID: d.ID,
			OfficerID:      req.OfficerID,
			RequestID:      requestcontext.RequestID(ctx),
			Detail:         detail,
		}); err != nil {
			return err
		}
		issued = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Issuances.Inc()
	}
	s.logger.InfoContext(ctx, "items issued",
		"distribution_id", issued.ID,
		"armory_id", req.ArmoryID,
		"officer_id", req.OfficerID,
		"lines", len(req.Items),
	)
	return issued, nil
}

func validateIssueRequest(req IssueRequest) error {
	if req.ArmoryID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "armory id is required")
	}
	if req.OfficerID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "officer id is required")
	}
	if len(req.Items) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "at least one item is required")
	}
	seen := make(map[armory.LineKey]bool, len(req.Items))
	for _, item := range req.Items {
		if !item.Key.Type.IsValid() || item.Key.Ref == "" {
			return dErrors.New(dErrors.CodeInvalidInput, "item key is incomplete")
		}
		if item.Quantity <= 0 {
			return dErrors.Newf(dErrors.CodeInvalidInput,
				"quantity for %s must be positive", item.Key)
		}
		if item.Condition != "" && !item.Condition.IsValid() {
			return dErrors.Newf(dErrors.CodeInvalidInput,
				"unsupported condition %q for %s", item.Condition, item.Key)
		}
		if seen[item.Key] {
			return dErrors.Newf(dErrors.CodeInvalidInput,
				"duplicate item key %s in request", item.Key)
		}
		seen[item.Key] = true
	}
	return nil
}

func (s *Service) recordRejection(code dErrors.Code) {
	if s.metrics != nil {
		s.metrics.RecordRejection(string(code))
	}
}
