// Package service implements administrative armory operations: creating an
// armory and restocking its lines. The distribution engines own every other
// stock mutation.
package service

import (
	"context"
	"errors"
	"log/slog"

	"armora/internal/armory"
	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
	audit "armora/pkg/platform/audit"
	"armora/pkg/platform/lock"
	"armora/pkg/platform/sentinel"
	"armora/pkg/requestcontext"
)

// AuditPublisher records administrative stock movements.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service exposes armory administration.
type Service struct {
	store   armory.Store
	locks   lock.Locker
	auditor AuditPublisher
	logger  *slog.Logger
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

// New constructs the service.
func New(store armory.Store, locks lock.Locker, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("armory store is required")
	}
	if locks == nil {
		return nil, errors.New("locker is required")
	}
	s := &Service{
		store:  store,
		locks:  locks,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// StockLine seeds or tops up one line at creation or restock time.
type StockLine struct {
	Key       armory.LineKey
	Quantity  int
	Condition id.Condition
}

// CreateArmory registers a new armory with optional initial stock.
func (s *Service) CreateArmory(ctx context.Context, name, unit string, initial []StockLine) (*armory.Armory, error) {
	if name == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "armory name is required")
	}

	now := requestcontext.Now(ctx)
	a := armory.New(id.NewArmoryID(), name, unit, now)
	for _, line := range initial {
		if err := a.Restock(line.Key, line.Quantity, line.Condition); err != nil {
			return nil, err
		}
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create armory")
	}

	if err := s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    audit.ActionArmoryCreated,
		ActorID:   requestcontext.ActorID(ctx),
		ArmoryID:  a.ID,
		RequestID: requestcontext.RequestID(ctx),
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "armory created", "armory_id", a.ID, "name", name)
	return a, nil
}

// Restock adds quantities to existing or new lines. It takes the same
// per-armory scope as the engines so a restock never races an issuance's
// read-then-write.
func (s *Service) Restock(ctx context.Context, armoryID id.ArmoryID, lines []StockLine) (*armory.Armory, error) {
	if len(lines) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "at least one stock line is required")
	}

	release, err := s.locks.Acquire(ctx, armoryID.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "could not acquire armory lock")
	}
	defer release()

	a, err := s.store.FindByID(ctx, armoryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeUnknownArmory, "armory %s does not exist", armoryID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load armory")
	}

	detail := make(map[string]int, len(lines))
	for _, line := range lines {
		if err := a.Restock(line.Key, line.Quantity, line.Condition); err != nil {
			return nil, err
		}
		detail[line.Key.String()] = line.Quantity
	}
	if err := s.store.Update(ctx, a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist restock")
	}

	now := requestcontext.Now(ctx)
	if err := s.emit(ctx, audit.Event{
		Timestamp: now,
		Action:    audit.ActionStockRestocked,
		ActorID:   requestcontext.ActorID(ctx),
		ArmoryID:  armoryID,
		RequestID: requestcontext.RequestID(ctx),
		Detail:    detail,
	}); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "armory restocked", "armory_id", armoryID, "lines", len(lines))
	return a, nil
}

// Get fetches one armory with its current stock lines.
func (s *Service) Get(ctx context.Context, armoryID id.ArmoryID) (*armory.Armory, error) {
	a, err := s.store.FindByID(ctx, armoryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeUnknownArmory, "armory %s does not exist", armoryID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load armory")
	}
	return a, nil
}

// List returns every armory.
func (s *Service) List(ctx context.Context) ([]*armory.Armory, error) {
	armories, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list armories")
	}
	return armories, nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditor == nil {
		return nil
	}
	return s.auditor.Emit(ctx, event)
}
