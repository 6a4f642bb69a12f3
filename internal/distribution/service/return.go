package service

import (
	"context"

	"armora/internal/armory"
	"armora/internal/distribution"
	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
	audit "armora/pkg/platform/audit"
	"armora/pkg/requestcontext"
)

// ReturnItem is one line of a return request.
type ReturnItem struct {
	Key       armory.LineKey
	Quantity  int
	Condition id.Condition
}

// ReturnItems processes a partial or full return: each returned quantity moves
// from the distribution's outstanding balance back onto the armory line, and
// the returned condition replaces the line's condition. The distribution
// status is recomputed from the post-update item set. Returning more than an
// item's outstanding balance fails the whole request with nothing applied.
func (s *Service) ReturnItems(ctx context.Context, distributionID id.DistributionID, returns []ReturnItem) (*distribution.Distribution, error) {
	if len(returns) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one return line is required")
	}
	seen := make(map[armory.LineKey]bool, len(returns))
	for _, r := range returns {
		if r.Quantity <= 0 {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput,
				"return quantity for %s must be positive", r.Key)
		}
		if r.Condition != "" && !r.Condition.IsValid() {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput,
				"unsupported condition %q for %s", r.Condition, r.Key)
		}
		// Duplicate keys would each validate against the same pre-mutation
		// outstanding balance and jointly over-return.
		if seen[r.Key] {
			return nil, dErrors.Newf(dErrors.CodeInvalidInput,
				"duplicate item key %s in request", r.Key)
		}
		seen[r.Key] = true
	}
	return s.applyReturns(ctx, distributionID, returns, false)
}

// ReturnAll returns every outstanding balance on the distribution in one
// call, defaulting each line's returned condition to its condition at issue.
// Calling it against an already fully returned distribution is a no-op, not
// an error, so retried requests cannot double-credit stock.
func (s *Service) ReturnAll(ctx context.Context, distributionID id.DistributionID) (*distribution.Distribution, error) {
	return s.applyReturns(ctx, distributionID, nil, true)
}

func (s *Service) applyReturns(ctx context.Context, distributionID id.DistributionID, returns []ReturnItem, returnAll bool) (*distribution.Distribution, error) {
	// A pre-read resolves the armory so the per-armory scope can be taken;
	// the authoritative read happens again inside the transaction.
	peek, err := s.stores.Distributions.FindByID(ctx, distributionID)
	if err != nil {
		return nil, translateDistributionErr(err, distributionID)
	}

	actorID := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)

	var updated *distribution.Distribution
	err = s.runSerialized(ctx, peek.ArmoryID, func(ctx context.Context, stores Stores) error {
		d, err := stores.Distributions.FindByID(ctx, distributionID)
		if err != nil {
			return translateDistributionErr(err, distributionID)
		}

		if returnAll {
			// Idempotent full return: nothing outstanding means nothing
			// to do.
			if d.Status == distribution.StatusReturned {
				updated = d
				return nil
			}
			returns = outstandingReturns(d)
		}

		if !d.Active() {
			s.recordRejection(dErrors.CodeInvalidState)
			return dErrors.Newf(dErrors.CodeInvalidState,
				"distribution %s is %s and cannot accept returns", d.ID, d.Status)
		}

		a, err := stores.Armories.FindByID(ctx, d.ArmoryID)
		if err != nil {
			return translateArmoryErr(err, d.ArmoryID)
		}

		// Validate every line before applying any.
		for _, r := range returns {
			item, ok := d.Item(r.Key)
			if !ok {
				s.recordRejection(dErrors.CodeUnknownItem)
				return dErrors.Newf(dErrors.CodeUnknownItem,
					"distribution %s has no issued item %s", d.ID, r.Key)
			}
			if r.Quantity > item.Outstanding() {
				s.recordRejection(dErrors.CodeOverReturn)
				return dErrors.Newf(dErrors.CodeOverReturn,
					"item %s has %d outstanding, %d returned",
					r.Key, item.Outstanding(), r.Quantity)
			}
		}

		detail := make(map[string]int, len(returns))
		for _, r := range returns {
			item := d.Items[r.Key]
			condition := r.Condition
			if condition == "" {
				condition = item.ConditionAtIssue
			}
			item.ReturnedQuantity += r.Quantity
			item.ConditionAtReturn = &condition
			if err := a.Credit(r.Key, r.Quantity, condition); err != nil {
				return err
			}
			detail[r.Key.String()] = r.Quantity
		}

		d.RecomputeStatus()
		if d.Status == distribution.StatusReturned {
			d.ReturnDate = &now
			d.ReturnedBy = &actorID
		}

		if err := stores.Armories.Update(ctx, a); err != nil {
			return err
		}
		if err := stores.Distributions.Update(ctx, d); err != nil {
			return err
		}
		if err := s.emitAudit(ctx, audit.Event{
			Timestamp:      now,
			Action:         audit.ActionItemsReturned,
			ActorID:        actorID,
			ArmoryID:       d.ArmoryID,
			DistributionID: d.ID,
			OfficerID:      d.OfficerID,
			RequestID:      requestcontext.RequestID(ctx),
			Detail:         detail,
		}); err != nil {
			return err
		}
		updated = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Returns.Inc()
	}
	s.logger.InfoContext(ctx, "items returned",
		"distribution_id", updated.ID,
		"armory_id", updated.ArmoryID,
		"status", updated.Status,
	)
	return updated, nil
}

// CancelDistribution administratively voids an issuance before any return has
// occurred, restoring every issued quantity to stock at its condition at
// issue. Cancelled is terminal and unreachable once return accounting has
// started.
func (s *Service) CancelDistribution(ctx context.Context, distributionID id.DistributionID) (*distribution.Distribution, error) {
	peek, err := s.stores.Distributions.FindByID(ctx, distributionID)
	if err != nil {
		return nil, translateDistributionErr(err, distributionID)
	}

	actorID := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)

	var cancelled *distribution.Distribution
	err = s.runSerialized(ctx, peek.ArmoryID, func(ctx context.Context, stores Stores) error {
		d, err := stores.Distributions.FindByID(ctx, distributionID)
		if err != nil {
			return translateDistributionErr(err, distributionID)
		}
		if d.Status != distribution.StatusIssued || d.HasReturns() {
			s.recordRejection(dErrors.CodeInvalidState)
			return dErrors.Newf(dErrors.CodeInvalidState,
				"distribution %s is %s and cannot be cancelled", d.ID, d.Status)
		}

		a, err := stores.Armories.FindByID(ctx, d.ArmoryID)
		if err != nil {
			return translateArmoryErr(err, d.ArmoryID)
		}
		detail := make(map[string]int, len(d.Items))
		for key, item := range d.Items {
			if err := a.Credit(key, item.Quantity, item.ConditionAtIssue); err != nil {
				return err
			}
			detail[key.String()] = item.Quantity
		}
		d.Status = distribution.StatusCancelled

		if err := stores.Armories.Update(ctx, a); err != nil {
			return err
		}
		if err := stores.Distributions.Update(ctx, d); err != nil {
			return err
		}
		if err := s.emitAudit(ctx, audit.Event{
			Timestamp:      now,
			Action:         audit.ActionDistributionCancelled,
			ActorID:        actorID,
			ArmoryID:       d.ArmoryID,
			DistributionID: d.ID,
			OfficerID:      d.OfficerID,
			RequestID:      requestcontext.RequestID(ctx),
			Detail:         detail,
		}); err != nil {
			return err
		}
		cancelled = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Cancellations.Inc()
	}
	s.logger.InfoContext(ctx, "distribution cancelled",
		"distribution_id", cancelled.ID, "armory_id", cancelled.ArmoryID)
	return cancelled, nil
}

func outstandingReturns(d *distribution.Distribution) []ReturnItem {
	var out []ReturnItem
	for key, item := range d.Items {
		if item.Outstanding() > 0 {
			out = append(out, ReturnItem{Key: key, Quantity: item.Outstanding()})
		}
	}
	return out
}
