// Package audit defines the append-only audit trail for stock movements.
//
// Every mutation the distribution engines perform emits one Event. Events are
// transport-agnostic: the in-process publisher persists them to a Store, and
// the Kafka publisher mirrors them onto a compliance stream for downstream
// reporting.
package audit

import (
	"context"
	"time"

	id "armora/pkg/domain"
)

// Action labels what happened. One action per engine mutation.
type Action string

const (
	ActionArmoryCreated         Action = "armory_created"
	ActionStockRestocked        Action = "stock_restocked"
	ActionItemsIssued           Action = "items_issued"
	ActionItemsReturned         Action = "items_returned"
	ActionDistributionRenewed   Action = "distribution_renewed"
	ActionDistributionCancelled Action = "distribution_cancelled"
)

// Event is one audit record. Keep it flat so stores and sinks can fan out
// without schema mapping.
type Event struct {
	Timestamp      time.Time         `json:"timestamp"`
	Action         Action            `json:"action"`
	ActorID        id.UserID         `json:"actor_id"`
	ArmoryID       id.ArmoryID       `json:"armory_id"`
	DistributionID id.DistributionID `json:"distribution_id,omitempty"`
	OfficerID      id.OfficerID      `json:"officer_id,omitempty"`
	RequestID      string            `json:"request_id,omitempty"`
	// Detail carries the quantities involved, keyed by stock line key
	// string. Enough to reconstruct the movement without joining the
	// aggregates.
	Detail map[string]int `json:"detail,omitempty"`
}

// Store persists events append-only.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByArmory(ctx context.Context, armoryID id.ArmoryID) ([]Event, error)
}
