package service

import (
	"context"

	"armora/internal/distribution"
	dErrors "armora/pkg/domain-errors"
	"armora/pkg/requestcontext"
)

// ScheduleEntry pairs a distribution with its time-derived renewal
// classification. The stored RenewalStatus rides along unchanged: the
// computed value says what needs attention now, the stored one says what was
// last recorded, and the two legitimately disagree between a due date passing
// and the next explicit renewal.
type ScheduleEntry struct {
	Distribution *distribution.Distribution
	Computed     distribution.RenewalStatus
}

// RenewalSchedule classifies every distribution still in return accounting
// against the request's current time. Read-only: no stored status changes.
func (s *Service) RenewalSchedule(ctx context.Context) ([]ScheduleEntry, error) {
	active, err := s.stores.Distributions.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active distributions")
	}

	now := requestcontext.Now(ctx)
	out := make([]ScheduleEntry, 0, len(active))
	for _, d := range active {
		out = append(out, ScheduleEntry{
			Distribution: d,
			Computed:     d.ClassifyRenewal(now),
		})
	}
	return out, nil
}

// DueForRenewal narrows the schedule to entries needing attention: due within
// the window or already overdue.
func (s *Service) DueForRenewal(ctx context.Context) ([]ScheduleEntry, error) {
	schedule, err := s.RenewalSchedule(ctx)
	if err != nil {
		return nil, err
	}
	out := schedule[:0]
	for _, entry := range schedule {
		if entry.Computed == distribution.RenewalDue || entry.Computed == distribution.RenewalOverdue {
			out = append(out, entry)
		}
	}
	return out, nil
}
