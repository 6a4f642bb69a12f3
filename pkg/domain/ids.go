// Package domain holds typed identifiers and shared domain vocabulary.
//
// IDs are distinct uuid-backed types so an ArmoryID can never be passed where
// a DistributionID is expected; the compiler enforces the distinction.
// Construct them via the Parse functions at trust boundaries; direct casting
// bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "armora/pkg/domain-errors"
)

type (
	// ArmoryID identifies a stock-holding armory.
	ArmoryID uuid.UUID
	// DistributionID identifies one issuance event.
	DistributionID uuid.UUID
	// OfficerID identifies the officer custody is assigned to.
	OfficerID uuid.UUID
	// UserID identifies the acting user (the actor on audit records).
	UserID uuid.UUID
)

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", what)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s is not a valid UUID", what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be the nil UUID", what)
	}
	return u, nil
}

// ParseArmoryID constructs an ArmoryID from external input.
func ParseArmoryID(s string) (ArmoryID, error) {
	u, err := parseUUID(s, "armory id")
	return ArmoryID(u), err
}

// ParseDistributionID constructs a DistributionID from external input.
func ParseDistributionID(s string) (DistributionID, error) {
	u, err := parseUUID(s, "distribution id")
	return DistributionID(u), err
}

// ParseOfficerID constructs an OfficerID from external input.
func ParseOfficerID(s string) (OfficerID, error) {
	u, err := parseUUID(s, "officer id")
	return OfficerID(u), err
}

// ParseUserID constructs a UserID from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func (id ArmoryID) String() string       { return uuid.UUID(id).String() }
func (id DistributionID) String() string { return uuid.UUID(id).String() }
func (id OfficerID) String() string      { return uuid.UUID(id).String() }
func (id UserID) String() string         { return uuid.UUID(id).String() }

func (id ArmoryID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id DistributionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id OfficerID) IsNil() bool      { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }

// NewArmoryID returns a fresh random ArmoryID.
func NewArmoryID() ArmoryID { return ArmoryID(uuid.New()) }

// NewDistributionID returns a fresh random DistributionID.
func NewDistributionID() DistributionID { return DistributionID(uuid.New()) }

// NewOfficerID returns a fresh random OfficerID.
func NewOfficerID() OfficerID { return OfficerID(uuid.New()) }

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }
