package handler

import (
	"sort"
	"time"

	"armora/internal/armory"
	"armora/internal/distribution"
	svc "armora/internal/distribution/service"
	id "armora/pkg/domain"
	dErrors "armora/pkg/domain-errors"
)

// lineKeyDTO is the wire form of a stock line key.
type lineKeyDTO struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

func (k lineKeyDTO) toKey() (armory.LineKey, error) {
	itemType, err := id.ParseItemType(k.Type)
	if err != nil {
		return armory.LineKey{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid item type")
	}
	if k.Ref == "" {
		return armory.LineKey{}, dErrors.New(dErrors.CodeInvalidInput, "item ref is required")
	}
	return armory.LineKey{Type: itemType, Ref: k.Ref}, nil
}

type issueItemDTO struct {
	lineKeyDTO
	Quantity  int    `json:"quantity"`
	Condition string `json:"condition"`
}

type issueRequest struct {
	OfficerID  string         `json:"officer_id"`
	Squad      string         `json:"squad"`
	Items      []issueItemDTO `json:"items"`
	RenewalDue *time.Time     `json:"renewal_due,omitempty"`
}

func (r issueRequest) toIssueRequest(armoryID id.ArmoryID) (svc.IssueRequest, error) {
	officerID, err := id.ParseOfficerID(r.OfficerID)
	if err != nil {
		return svc.IssueRequest{}, dErrors.New(dErrors.CodeBadRequest, "invalid officer id")
	}

	items := make([]svc.RequestedItem, 0, len(r.Items))
	for _, it := range r.Items {
		key, err := it.toKey()
		if err != nil {
			return svc.IssueRequest{}, err
		}
		condition, err := id.ParseCondition(it.Condition)
		if err != nil {
			return svc.IssueRequest{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid condition")
		}
		items = append(items, svc.RequestedItem{
			Key:       key,
			Quantity:  it.Quantity,
			Condition: condition,
		})
	}

	req := svc.IssueRequest{
		ArmoryID:  armoryID,
		OfficerID: officerID,
		Squad:     r.Squad,
		Items:     items,
	}
	if r.RenewalDue != nil {
		req.RenewalDue = *r.RenewalDue
	}
	return req, nil
}

type returnItemDTO struct {
	lineKeyDTO
	Quantity  int    `json:"quantity"`
	Condition string `json:"condition"`
}

type returnRequest struct {
	Items []returnItemDTO `json:"items"`
}

func (r returnRequest) toReturnItems() ([]svc.ReturnItem, error) {
	returns := make([]svc.ReturnItem, 0, len(r.Items))
	for _, it := range r.Items {
		key, err := it.toKey()
		if err != nil {
			return nil, err
		}
		condition, err := id.ParseCondition(it.Condition)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid condition")
		}
		returns = append(returns, svc.ReturnItem{
			Key:       key,
			Quantity:  it.Quantity,
			Condition: condition,
		})
	}
	return returns, nil
}

type renewRequest struct {
	Condition       string    `json:"condition"`
	Remarks         string    `json:"remarks,omitempty"`
	NextRenewalDate time.Time `json:"next_renewal_date"`
}

func (r renewRequest) toRenewRequest(distributionID id.DistributionID) (svc.RenewRequest, error) {
	condition, err := id.ParseCondition(r.Condition)
	if err != nil {
		return svc.RenewRequest{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid condition")
	}
	return svc.RenewRequest{
		DistributionID:  distributionID,
		Condition:       condition,
		Remarks:         r.Remarks,
		NextRenewalDate: r.NextRenewalDate,
	}, nil
}

type issuedItemResponse struct {
	Type              string  `json:"type"`
	Ref               string  `json:"ref"`
	Quantity          int     `json:"quantity"`
	ReturnedQuantity  int     `json:"returned_quantity"`
	Outstanding       int     `json:"outstanding"`
	ConditionAtIssue  string  `json:"condition_at_issue"`
	ConditionAtReturn *string `json:"condition_at_return,omitempty"`
}

type renewalEntryResponse struct {
	RenewedAt       time.Time `json:"renewed_at"`
	RenewedBy       string    `json:"renewed_by"`
	NextRenewalDate time.Time `json:"next_renewal_date"`
	Condition       string    `json:"condition"`
	Remarks         string    `json:"remarks,omitempty"`
}

type distributionResponse struct {
	ID             string                 `json:"id"`
	ArmoryID       string                 `json:"armory_id"`
	OfficerID      string                 `json:"officer_id"`
	Squad          string                 `json:"squad,omitempty"`
	Status         string                 `json:"status"`
	RenewalStatus  string                 `json:"renewal_status"`
	RenewalDue     time.Time              `json:"renewal_due"`
	Items          []issuedItemResponse   `json:"items"`
	IssuedAt       time.Time              `json:"issued_at"`
	IssuedBy       string                 `json:"issued_by"`
	ReturnDate     *time.Time             `json:"return_date,omitempty"`
	ReturnedBy     *string                `json:"returned_by,omitempty"`
	RenewalHistory []renewalEntryResponse `json:"renewal_history,omitempty"`
}

type distributionListResponse struct {
	Distributions []distributionResponse `json:"distributions"`
}

type scheduleEntryResponse struct {
	Distribution distributionResponse `json:"distribution"`
	Computed     string               `json:"computed_renewal_status"`
}

type scheduleResponse struct {
	Entries []scheduleEntryResponse `json:"entries"`
}

func toDistributionResponse(d *distribution.Distribution) distributionResponse {
	items := make([]issuedItemResponse, 0, len(d.Items))
	for _, it := range d.Items {
		item := issuedItemResponse{
			Type:             it.Key.Type.String(),
			Ref:              it.Key.Ref,
			Quantity:         it.Quantity,
			ReturnedQuantity: it.ReturnedQuantity,
			Outstanding:      it.Outstanding(),
			ConditionAtIssue: it.ConditionAtIssue.String(),
		}
		if it.ConditionAtReturn != nil {
			s := it.ConditionAtReturn.String()
			item.ConditionAtReturn = &s
		}
		items = append(items, item)
	}
	// Map iteration order is random; keep responses stable.
	sort.Slice(items, func(i, j int) bool {
		if items[i].Type != items[j].Type {
			return items[i].Type < items[j].Type
		}
		return items[i].Ref < items[j].Ref
	})

	history := make([]renewalEntryResponse, 0, len(d.RenewalHistory))
	for _, e := range d.RenewalHistory {
		history = append(history, renewalEntryResponse{
			RenewedAt:       e.RenewedAt,
			RenewedBy:       e.RenewedBy.String(),
			NextRenewalDate: e.NextRenewalDate,
			Condition:       e.Condition.String(),
			Remarks:         e.Remarks,
		})
	}

	resp := distributionResponse{
		ID:             d.ID.String(),
		ArmoryID:       d.ArmoryID.String(),
		OfficerID:      d.OfficerID.String(),
		Squad:          d.Squad,
		Status:         string(d.Status),
		RenewalStatus:  string(d.RenewalStatus),
		RenewalDue:     d.RenewalDue,
		Items:          items,
		IssuedAt:       d.IssuedAt,
		IssuedBy:       d.IssuedBy.String(),
		ReturnDate:     d.ReturnDate,
		RenewalHistory: history,
	}
	if d.ReturnedBy != nil {
		s := d.ReturnedBy.String()
		resp.ReturnedBy = &s
	}
	return resp
}
