package service

import (
	"context"
	"time"

	"armora/internal/distribution"
	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
	audit "armora/pkg/platform/audit"
	"armora/pkg/requestcontext"
)

// RenewRequest extends the custody of an active distribution.
type RenewRequest struct {
	DistributionID  id.DistributionID
	Condition       id.Condition
	Remarks         string
	NextRenewalDate time.Time
}

// RenewDistribution appends a renewal history entry, records the renewal as
// the last known state, and moves the due date. Stock is untouched. Renewing
// a returned or cancelled distribution fails with InvalidState.
func (s *Service) RenewDistribution(ctx context.Context, req RenewRequest) (*distribution.Distribution, error) {
	if req.NextRenewalDate.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "next renewal date is required")
	}
	if req.Condition == "" || !req.Condition.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported condition %q", req.Condition)
	}

	peek, err := s.stores.Distributions.FindByID(ctx, req.DistributionID)
	if err != nil {
		return nil, translateDistributionErr(err, req.DistributionID)
	}

	actorID := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)
	if req.NextRenewalDate.Before(now) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "next renewal date must be in the future")
	}

	var renewed *distribution.Distribution
	err = s.runSerialized(ctx, peek.ArmoryID, func(ctx context.Context, stores Stores) error {
		d, err := stores.Distributions.FindByID(ctx, req.DistributionID)
		if err != nil {
			return translateDistributionErr(err, req.DistributionID)
		}
		if !d.Active() {
			s.recordRejection(dErrors.CodeInvalidState)
			return dErrors.Newf(dErrors.CodeInvalidState,
				"distribution %s is %s and cannot be renewed", d.ID, d.Status)
		}

		d.RenewalHistory = append(d.RenewalHistory, distribution.RenewalEntry{
			RenewedAt:       now,
			RenewedBy:       actorID,
			NextRenewalDate: req.NextRenewalDate,
			Condition:       req.Condition,
			Remarks:         req.Remarks,
		})
		d.RenewalStatus = distribution.RenewalRenewed
		d.RenewalDue = req.NextRenewalDate

		if err := stores.Distributions.Update(ctx, d); err != nil {
			return err
		}
		if err := s.emitAudit(ctx, audit.Event{
			Timestamp:      now,
			Action:         audit.ActionDistributionRenewed,
			ActorID:        actorID,
			ArmoryID:       d.ArmoryID,
			DistributionID: d.ID,
			OfficerID:      d.OfficerID,
			RequestID:      requestcontext.RequestID(ctx),
		}); err != nil {
			return err
		}
		renewed = d
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Renewals.Inc()
	}
	s.logger.InfoContext(ctx, "distribution renewed",
		"distribution_id", renewed.ID,
		"renewal_due", renewed.RenewalDue,
	)
	return renewed, nil
}
