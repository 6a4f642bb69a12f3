// Package distribution holds the Distribution aggregate: one record per
// issuance event, tracking what went out, what came back, and the renewal
// obligation attached to the custody.
package distribution

import (
	"time"

	"armora/internal/armory"
	id "armora/pkg/domain"
)

// Status is the return-accounting state machine. Transitions are monotonic:
// issued → partial_return → returned, driven only by return operations, and
// issued → cancelled for the administrative cancel. Nothing leaves returned
// or cancelled.
type Status string

const (
	StatusIssued        Status = "issued"
	StatusPartialReturn Status = "partial_return"
	StatusReturned      Status = "returned"
	StatusCancelled     Status = "cancelled"
)

// RenewalStatus is the last *recorded* renewal state. The scheduler view
// computes due/overdue from timestamps at read time and may disagree with
// this field; both are kept deliberately. The view answers "what needs
// attention now", this field answers "what was last recorded".
type RenewalStatus string

const (
	RenewalPending RenewalStatus = "pending"
	RenewalDue     RenewalStatus = "due"
	RenewalOverdue RenewalStatus = "overdue"
	RenewalRenewed RenewalStatus = "renewed"
)

// DueSoonWindow is how far ahead the scheduler view flags an upcoming renewal
// as due.
const DueSoonWindow = 7 * 24 * time.Hour

// IssuedItem records one line within a distribution: quantity out, quantity
// back so far, and the condition at each crossing.
type IssuedItem struct {
	Key               armory.LineKey `json:"key"`
	Quantity          int            `json:"quantity"`
	ReturnedQuantity  int            `json:"returned_quantity"`
	ConditionAtIssue  id.Condition   `json:"condition_at_issue"`
	ConditionAtReturn *id.Condition  `json:"condition_at_return,omitempty"`
}

// Outstanding is the amount still in the field.
func (it *IssuedItem) Outstanding() int {
	return it.Quantity - it.ReturnedQuantity
}

// RenewalEntry is one append-only renewal history record.
type RenewalEntry struct {
	RenewedAt       time.Time    `json:"renewed_at"`
	RenewedBy       id.UserID    `json:"renewed_by"`
	NextRenewalDate time.Time    `json:"next_renewal_date"`
	Condition       id.Condition `json:"condition"`
	Remarks         string       `json:"remarks,omitempty"`
}

// Distribution is the issuance-event aggregate. It references armory stock by
// line key but never owns quantities; the engines keep the two aggregates
// conserved. Records are never deleted, only retired via status.
type Distribution struct {
	ID             id.DistributionID
	ArmoryID       id.ArmoryID
	OfficerID      id.OfficerID
	Squad          string
	Status         Status
	RenewalStatus  RenewalStatus
	RenewalDue     time.Time
	Items          map[armory.LineKey]*IssuedItem
	IssuedAt       time.Time
	IssuedBy       id.UserID
	ReturnDate     *time.Time
	ReturnedBy     *id.UserID
	RenewalHistory []RenewalEntry
	Version        int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item resolves an issued item by its stock line key.
func (d *Distribution) Item(key armory.LineKey) (*IssuedItem, bool) {
	it, ok := d.Items[key]
	return it, ok
}

// Active reports whether the distribution still participates in return
// accounting.
func (d *Distribution) Active() bool {
	return d.Status == StatusIssued || d.Status == StatusPartialReturn
}

// FullyReturned reports whether every item has come back in full.
func (d *Distribution) FullyReturned() bool {
	for _, it := range d.Items {
		if it.Outstanding() > 0 {
			return false
		}
	}
	return true
}

// HasReturns reports whether any quantity has come back at all. Cancellation
// is only reachable while this is false.
func (d *Distribution) HasReturns() bool {
	for _, it := range d.Items {
		if it.ReturnedQuantity > 0 {
			return true
		}
	}
	return false
}

// RecomputeStatus derives the return-accounting status from the item set.
// Called by the return engine after every mutation; terminal states are never
// recomputed away.
func (d *Distribution) RecomputeStatus() {
	if d.Status == StatusCancelled {
		return
	}
	switch {
	case d.FullyReturned():
		d.Status = StatusReturned
	case d.HasReturns():
		d.Status = StatusPartialReturn
	default:
		d.Status = StatusIssued
	}
}

// ClassifyRenewal is the scheduler view: a pure function of the stored due
// date and the given instant. It never mutates RenewalStatus.
func (d *Distribution) ClassifyRenewal(now time.Time) RenewalStatus {
	switch {
	case d.RenewalDue.Before(now):
		return RenewalOverdue
	case !d.RenewalDue.After(now.Add(DueSoonWindow)):
		return RenewalDue
	default:
		return RenewalPending
	}
}

// ItemsOfType filters issued items by stock class, for API responses that
// present weapons, ammunition, and equipment separately.
func (d *Distribution) ItemsOfType(t id.ItemType) []*IssuedItem {
	var out []*IssuedItem
	for _, it := range d.Items {
		if it.Key.Type == t {
			out = append(out, it)
		}
	}
	return out
}

// Clone returns a deep copy so store reads never hand out aliased item
// pointers.
func (d *Distribution) Clone() *Distribution {
	cp := *d
	cp.Items = make(map[armory.LineKey]*IssuedItem, len(d.Items))
	for key, it := range d.Items {
		itemCopy := *it
		if it.ConditionAtReturn != nil {
			cond := *it.ConditionAtReturn
			itemCopy.ConditionAtReturn = &cond
		}
		cp.Items[key] = &itemCopy
	}
	if d.ReturnDate != nil {
		rd := *d.ReturnDate
		cp.ReturnDate = &rd
	}
	if d.ReturnedBy != nil {
		rb := *d.ReturnedBy
		cp.ReturnedBy = &rb
	}
	cp.RenewalHistory = append([]RenewalEntry(nil), d.RenewalHistory...)
	return &cp
}
