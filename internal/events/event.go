// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"handlit_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewBaseEventAt = events.NewBaseEventAt
)

// Event names, also used as subscription keys.
const (
	DealFollowUpScheduledName = "deals.deal.follow_up_scheduled"
	DealClosedName            = "deals.deal.closed"
)

// =============================================================================
// Deals Domain Events
// =============================================================================

// DealFollowUpScheduled is published when a committed transition moved the
// next action date of an open deal. PreviousDueAt is the date it replaced.
type DealFollowUpScheduled struct {
	BaseEvent
	DealID        uuid.UUID  `json:"dealId"`
	QuoteID       uuid.UUID  `json:"quoteId"`
	DueAt         time.Time  `json:"dueAt"`
	PreviousDueAt *time.Time `json:"previousDueAt,omitempty"`
}

func (e DealFollowUpScheduled) EventName() string { return DealFollowUpScheduledName }

// DealClosed is published once per deal, when it reaches closed_won or closed_lost.
// PendingFollowUpAt is the next action date the deal had while open.
type DealClosed struct {
	BaseEvent
	DealID            uuid.UUID  `json:"dealId"`
	QuoteID           uuid.UUID  `json:"quoteId"`
	Stage             string     `json:"stage"`
	ClosedReason      string     `json:"closedReason"`
	ClosedAt          time.Time  `json:"closedAt"`
	PendingFollowUpAt *time.Time `json:"pendingFollowUpAt,omitempty"`
}

func (e DealClosed) EventName() string { return DealClosedName }
