package domain

import dErrors "armora/pkg/domain-errors"

// ItemType is the coarse class of an armory stock line. Issuance requests and
// return requests must name the type so item keys from different classes never
// collide.
type ItemType string

const (
	ItemTypeWeapon     ItemType = "weapon"
	ItemTypeAmmunition ItemType = "ammunition"
	ItemTypeEquipment  ItemType = "equipment"
)

var validItemTypes = map[ItemType]bool{
	ItemTypeWeapon:     true,
	ItemTypeAmmunition: true,
	ItemTypeEquipment:  true,
}

// ParseItemType constructs an ItemType from external input.
func ParseItemType(s string) (ItemType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "item type cannot be empty")
	}
	t := ItemType(s)
	if !validItemTypes[t] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported item type %q", s)
	}
	return t, nil
}

// IsValid checks the item type is one of the supported enum values.
func (t ItemType) IsValid() bool { return validItemTypes[t] }

func (t ItemType) String() string { return string(t) }

// Condition grades the physical state of stock or issued items. Returns may
// downgrade a line's condition; the returned grade replaces the line's grade.
type Condition string

const (
	ConditionNew           Condition = "new"
	ConditionGood          Condition = "good"
	ConditionFair          Condition = "fair"
	ConditionPoor          Condition = "poor"
	ConditionUnserviceable Condition = "unserviceable"
)

var validConditions = map[Condition]bool{
	ConditionNew:           true,
	ConditionGood:          true,
	ConditionFair:          true,
	ConditionPoor:          true,
	ConditionUnserviceable: true,
}

// ParseCondition constructs a Condition from external input. Empty input is
// rejected; callers that treat absence as a default (ReturnAll falls back to
// the condition at issue) skip parsing instead of passing "".
func ParseCondition(s string) (Condition, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "condition cannot be empty")
	}
	c := Condition(s)
	if !validConditions[c] {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported condition %q", s)
	}
	return c, nil
}

// IsValid checks the condition is one of the supported enum values.
func (c Condition) IsValid() bool { return validConditions[c] }

func (c Condition) String() string { return string(c) }
