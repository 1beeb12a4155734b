// Package domain provides the core business rules for the deals bounded context.
// Everything here is pure: no I/O, no clocks, no ambient state.
package domain

// Stage is the pipeline position of a deal.
type Stage string

const (
	StageProspecting   Stage = "prospecting"
	StageQualification Stage = "qualification"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageClosedWon     Stage = "closed_won"
	StageClosedLost    Stage = "closed_lost"
)

var knownStages = map[Stage]struct{}{
	StageProspecting:   {},
	StageQualification: {},
	StageProposal:      {},
	StageNegotiation:   {},
	StageClosedWon:     {},
	StageClosedLost:    {},
}

// IsKnownStage reports whether s is one of the defined stages.
func IsKnownStage(s Stage) bool {
	_, ok := knownStages[s]
	return ok
}

// IsClosedStage reports whether s is terminal. A deal is closed iff its stage is closed.
func IsClosedStage(s Stage) bool {
	return s == StageClosedWon || s == StageClosedLost
}

// ClosedReason records why a deal left the pipeline.
type ClosedReason string

const (
	ClosedReasonWon       ClosedReason = "won"
	ClosedReasonLost      ClosedReason = "lost"
	ClosedReasonAbandoned ClosedReason = "abandoned"
	ClosedReasonOther     ClosedReason = "other"
)

// Source tells whether a deal was created by the engine or by a user.
type Source string

const (
	SourceQuoteAuto Source = "quote_auto"
	SourceManual    Source = "manual"
)

// EventType names a DealEvent row.
type EventType string

const (
	EventDealCreated       EventType = "deal_created"
	EventQuoteRevisionSent EventType = "quote_revision_sent"
	EventQuoteViewed       EventType = "quote_viewed"
	EventQuoteAccepted     EventType = "quote_accepted"
	EventQuoteDeclined     EventType = "quote_declined"
	EventQuoteExpired      EventType = "quote_expired"
	EventDealStageChanged  EventType = "deal_stage_changed"
	EventDealValueUpdated  EventType = "deal_value_updated"
	EventDealClosed        EventType = "deal_closed"
	EventDealFollowUpDue   EventType = "deal_follow_up_due"
)
