package handler

import (
	"handlit_backend/internal/deals/repository"
	"handlit_backend/internal/deals/transport"
)

func toDealResponse(d repository.Deal) transport.DealResponse {
	var closedReason *string
	if d.ClosedReason != nil {
		r := string(*d.ClosedReason)
		closedReason = &r
	}
	return transport.DealResponse{
		ID:                        d.ID,
		AccountID:                 d.AccountID,
		PrimaryContactID:          d.PrimaryContactID,
		OwnerUserID:               d.OwnerUserID,
		Stage:                     string(d.Stage),
		DealValueCents:            d.DealValue,
		ValueType:                 string(d.ValueType),
		RangeLowCents:             d.RangeLow,
		RangeHighCents:            d.RangeHigh,
		Currency:                  d.Currency,
		LatestQuoteID:             d.LatestQuoteID,
		LatestQuoteRevisionNumber: d.LatestQuoteRevisionNumber,
		Source:                    string(d.Source),
		IsClosed:                  d.IsClosed,
		ClosedReason:              closedReason,
		LastActivityAt:            d.LastActivityAt,
		NextActionAt:              d.NextActionAt,
		AtRisk:                    d.AtRisk,
		CreatedAt:                 d.CreatedAt,
		UpdatedAt:                 d.UpdatedAt,
	}
}

func toDealEventResponse(e repository.DealEvent) transport.DealEventResponse {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return transport.DealEventResponse{
		ID:         e.ID,
		EventType:  string(e.EventType),
		OccurredAt: e.OccurredAt,
		Metadata:   meta,
		CreatedBy:  e.CreatedBy,
	}
}
