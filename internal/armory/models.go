// Package armory holds the Armory aggregate: per-unit stock lines for
// weapons, ammunition, and equipment.
//
// Stock lines are held in an explicit map keyed by their natural composite
// key, so issuance and return requests resolve a line in O(1) and the
// matching contract is visible in the type instead of buried in array scans.
package armory

import (
	"fmt"
	"time"

	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
)

// LineKey is the natural composite key of a stock line. Fungible lines (a
// batch of rifles of one model, a caliber of ammunition) share one key; a line
// is logically the same resource across issuance and return calls when its
// key matches.
type LineKey struct {
	Type id.ItemType `json:"type"`
	Ref  string      `json:"ref"`
}

// WeaponKey builds the key for a weapon line from its type and serial-or-batch
// reference.
func WeaponKey(weaponType, serialOrBatch string) LineKey {
	return LineKey{Type: id.ItemTypeWeapon, Ref: weaponType + "/" + serialOrBatch}
}

// AmmunitionKey builds the key for an ammunition line from caliber and round type.
func AmmunitionKey(caliber, roundType string) LineKey {
	return LineKey{Type: id.ItemTypeAmmunition, Ref: caliber + "/" + roundType}
}

// EquipmentKey builds the key for an equipment line.
func EquipmentKey(itemType string) LineKey {
	return LineKey{Type: id.ItemTypeEquipment, Ref: itemType}
}

func (k LineKey) String() string {
	return fmt.Sprintf("%s:%s", k.Type, k.Ref)
}

// StockLine is one fungible stock position. Quantity never goes below zero;
// Deduct enforces that and the engines never bypass it.
type StockLine struct {
	Key       LineKey      `json:"key"`
	Quantity  int          `json:"quantity"`
	Condition id.Condition `json:"condition"`
}

// Armory is the stock-holding aggregate. Version supports optimistic
// concurrency in stores: Update fails with sentinel.ErrConflict when the
// stored version moved under the caller.
type Armory struct {
	ID        id.ArmoryID
	Name      string
	Unit      string
	Lines     map[LineKey]*StockLine
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New constructs an empty armory.
func New(armoryID id.ArmoryID, name, unit string, now time.Time) *Armory {
	return &Armory{
		ID:        armoryID,
		Name:      name,
		Unit:      unit,
		Lines:     make(map[LineKey]*StockLine),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Line resolves a stock line by key.
func (a *Armory) Line(key LineKey) (*StockLine, bool) {
	line, ok := a.Lines[key]
	return line, ok
}

// Available returns the current quantity on a line, zero when the line does
// not exist.
func (a *Armory) Available(key LineKey) int {
	if line, ok := a.Lines[key]; ok {
		return line.Quantity
	}
	return 0
}

// Deduct removes quantity units from a line. It fails without mutating when
// the line is unknown or short; callers relying on all-or-nothing issuance
// validate every line before deducting any (see the issuance engine).
func (a *Armory) Deduct(key LineKey, quantity int) error {
	if quantity <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "quantity must be positive")
	}
	line, ok := a.Lines[key]
	if !ok {
		return dErrors.Newf(dErrors.CodeUnknownItem, "armory %s has no stock line %s", a.ID, key)
	}
	if quantity > line.Quantity {
		return dErrors.Newf(dErrors.CodeInsufficientStock,
			"stock line %s has %d available, %d requested", key, line.Quantity, quantity)
	}
	line.Quantity -= quantity
	return nil
}

// Credit adds quantity units back to a line and records the condition the
// units came back in. Condition downgrades propagate to the line: returned
// stock is re-shelved at the grade it arrived in.
func (a *Armory) Credit(key LineKey, quantity int, condition id.Condition) error {
	if quantity <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "quantity must be positive")
	}
	line, ok := a.Lines[key]
	if !ok {
		return dErrors.Newf(dErrors.CodeUnknownItem, "armory %s has no stock line %s", a.ID, key)
	}
	line.Quantity += quantity
	if condition != "" {
		line.Condition = condition
	}
	return nil
}

// Restock creates or tops up a line. Administrative path, not used by the
// distribution engines.
func (a *Armory) Restock(key LineKey, quantity int, condition id.Condition) error {
	if quantity <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "quantity must be positive")
	}
	if !key.Type.IsValid() || key.Ref == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "stock line key is incomplete")
	}
	if line, ok := a.Lines[key]; ok {
		line.Quantity += quantity
		if condition != "" {
			line.Condition = condition
		}
		return nil
	}
	if condition == "" {
		condition = id.ConditionGood
	}
	a.Lines[key] = &StockLine{Key: key, Quantity: quantity, Condition: condition}
	return nil
}

// Clone returns a deep copy so store reads never hand out aliased line
// pointers.
func (a *Armory) Clone() *Armory {
	cp := *a
	cp.Lines = make(map[LineKey]*StockLine, len(a.Lines))
	for key, line := range a.Lines {
		lineCopy := *line
		cp.Lines[key] = &lineCopy
	}
	return &cp
}
