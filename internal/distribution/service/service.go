// Package service implements the issuance and return/renewal engines over
// the armory and distribution aggregates.
//
// Every mutating operation runs under two disciplines:
//
//   - a per-armory exclusive scope (lock.Locker), so two operations that
//     touch the same armory's stock never interleave their read-then-write,
//     while operations on different armories proceed in parallel; and
//   - a transactional boundary (Tx), so the armory write and the
//     distribution write commit as one unit and a failure between them can
//     never leave stock decremented without an issuance record.
//
// Validation is strictly before mutation: an operation that fails validation
// returns with nothing applied.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"armora/internal/armory"
	"armora/internal/directory"
	"armora/internal/distribution"
	"armora/internal/platform/metrics"
	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
	audit "armora/pkg/platform/audit"
	"armora/pkg/platform/lock"
	"armora/pkg/platform/sentinel"
)

const (
	defaultRenewalInterval = 30 * 24 * time.Hour
	defaultConflictRetries = 3
)

// AuditPublisher records stock movements. Emits happen inside the
// transactional boundary so a store-backed publisher commits atomically with
// the movement it describes.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service exposes the distribution lifecycle operations.
type Service struct {
	tx        Tx
	stores    Stores
	locks     lock.Locker
	directory directory.Directory

	auditor         AuditPublisher
	metrics         *metrics.Metrics
	logger          *slog.Logger
	renewalInterval time.Duration
	maxRetries      int
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithAuditPublisher sets the audit sink.
func WithAuditPublisher(auditor AuditPublisher) Option {
	return func(s *Service) { s.auditor = auditor }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRenewalInterval overrides the default interval applied when an issuance
// does not name its own renewal due date.
func WithRenewalInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.renewalInterval = interval
		}
	}
}

// WithConflictRetries overrides how many times a commit-time version conflict
// is retried before surfacing to the caller.
func WithConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// New constructs the service. tx, stores, locks, and dir are required.
func New(tx Tx, stores Stores, locks lock.Locker, dir directory.Directory, opts ...Option) (*Service, error) {
	if tx == nil {
		return nil, errors.New("transactional boundary is required")
	}
	if stores.Armories == nil || stores.Distributions == nil {
		return nil, errors.New("armory and distribution stores are required")
	}
	if locks == nil {
		return nil, errors.New("locker is required")
	}
	if dir == nil {
		return nil, errors.New("directory is required")
	}

	s := &Service{
		tx:              tx,
		stores:          stores,
		locks:           locks,
		directory:       dir,
		logger:          slog.Default(),
		renewalInterval: defaultRenewalInterval,
		maxRetries:      defaultConflictRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// GetDistribution returns one distribution.
func (s *Service) GetDistribution(ctx context.Context, distributionID id.DistributionID) (*distribution.Distribution, error) {
	d, err := s.stores.Distributions.FindByID(ctx, distributionID)
	if err != nil {
		return nil, translateDistributionErr(err, distributionID)
	}
	return d, nil
}

// GetArmory returns one armory with its current stock.
func (s *Service) GetArmory(ctx context.Context, armoryID id.ArmoryID) (*armory.Armory, error) {
	a, err := s.stores.Armories.FindByID(ctx, armoryID)
	if err != nil {
		return nil, translateArmoryErr(err, armoryID)
	}
	return a, nil
}

// ListByArmory returns every distribution issued from an armory, oldest first.
func (s *Service) ListByArmory(ctx context.Context, armoryID id.ArmoryID) ([]*distribution.Distribution, error) {
	if _, err := s.stores.Armories.FindByID(ctx, armoryID); err != nil {
		return nil, translateArmoryErr(err, armoryID)
	}
	ds, err := s.stores.Distributions.ListByArmory(ctx, armoryID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list distributions")
	}
	return ds, nil
}

// runSerialized acquires the per-armory scope, runs fn inside the
// transactional boundary, and retries a bounded number of times on
// commit-time version conflicts. The lock is released on every exit path,
// including validation failures and cancellation.
func (s *Service) runSerialized(ctx context.Context, armoryID id.ArmoryID, fn func(ctx context.Context, stores Stores) error) error {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := func() error {
			release, err := s.locks.Acquire(ctx, armoryID.String())
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeTimeout, "could not acquire armory lock")
			}
			defer release()
			return s.tx.RunInTx(ctx, fn)
		}()
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrConflict) {
			return err
		}
		lastErr = err
		if s.metrics != nil {
			s.metrics.ConflictRetries.Inc()
		}
		s.logger.WarnContext(ctx, "commit conflict, retrying",
			"armory_id", armoryID, "attempt", attempt+1)
	}
	return dErrors.Wrap(lastErr, dErrors.CodeConflict,
		"concurrent modification, retries exhausted")
}

func (s *Service) emitAudit(ctx context.Context, event audit.Event) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.Emit(ctx, event)
}

func translateArmoryErr(err error, armoryID id.ArmoryID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeUnknownArmory, "armory %s does not exist", armoryID)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load armory")
}

func translateDistributionErr(err error, distributionID id.DistributionID) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Newf(dErrors.CodeNotFound, "distribution %s does not exist", distributionID)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load distribution")
}
