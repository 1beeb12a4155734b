package transport

import (
	"time"

	"github.com/google/uuid"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// LifecycleEventRequest reports one quote lifecycle event.
type LifecycleEventRequest struct {
	Kind           string    `json:"kind" validate:"required,lifecycle_kind"`
	QuoteID        uuid.UUID `json:"quoteId" validate:"required"`
	RevisionNumber int       `json:"revisionNumber" validate:"required,min=1"`
	Signer         *string   `json:"signer,omitempty" validate:"omitempty,max=200"`
	Reason         *string   `json:"reason,omitempty" validate:"omitempty,max=1000"`
	Actor          *string   `json:"actor,omitempty" validate:"omitempty,max=200"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// LifecycleEventResponse is the outcome of a synchronous dispatch.
// DealID is null when the event had no deal to attach to.
type LifecycleEventResponse struct {
	DealID           *uuid.UUID `json:"dealId"`
	AlreadyProcessed bool       `json:"alreadyProcessed"`
	Created          bool       `json:"created"`
}

// EnqueuedResponse is returned when an event was queued for the worker.
type EnqueuedResponse struct {
	TaskID string `json:"taskId"`
	Queue  string `json:"queue"`
}

// DealResponse is the API representation of a deal. Amounts are in cents.
type DealResponse struct {
	ID                        uuid.UUID  `json:"id"`
	AccountID                 uuid.UUID  `json:"accountId"`
	PrimaryContactID          *uuid.UUID `json:"primaryContactId,omitempty"`
	OwnerUserID               *uuid.UUID `json:"ownerUserId,omitempty"`
	Stage                     string     `json:"stage"`
	DealValueCents            *int64     `json:"dealValueCents"`
	ValueType                 string     `json:"valueType"`
	RangeLowCents             *int64     `json:"rangeLowCents,omitempty"`
	RangeHighCents            *int64     `json:"rangeHighCents,omitempty"`
	Currency                  string     `json:"currency"`
	LatestQuoteID             *uuid.UUID `json:"latestQuoteId,omitempty"`
	LatestQuoteRevisionNumber *int       `json:"latestQuoteRevisionNumber,omitempty"`
	Source                    string     `json:"source"`
	IsClosed                  bool       `json:"isClosed"`
	ClosedReason              *string    `json:"closedReason,omitempty"`
	LastActivityAt            time.Time  `json:"lastActivityAt"`
	NextActionAt              *time.Time `json:"nextActionAt,omitempty"`
	AtRisk                    bool       `json:"atRisk"`
	CreatedAt                 time.Time  `json:"createdAt"`
	UpdatedAt                 time.Time  `json:"updatedAt"`
}

// DealEventResponse is one entry of a deal's event log.
type DealEventResponse struct {
	ID         uuid.UUID      `json:"id"`
	EventType  string         `json:"eventType"`
	OccurredAt time.Time      `json:"occurredAt"`
	Metadata   map[string]any `json:"metadata"`
	CreatedBy  *string        `json:"createdBy,omitempty"`
}

// DealEventListResponse wraps a deal's event log.
type DealEventListResponse struct {
	Items []DealEventResponse `json:"items"`
}
