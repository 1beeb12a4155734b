package repository

import (
	"time"

	"handlit_backend/internal/deals/domain"

	"github.com/google/uuid"
)

// ── Domain Models ─────────────────────────────────────────────────────────────

// Deal is the database model for a sales opportunity. Amounts are in cents.
type Deal struct {
	ID                        uuid.UUID            `db:"id"`
	AccountID                 uuid.UUID            `db:"account_id"`
	PrimaryContactID          *uuid.UUID           `db:"primary_contact_id"`
	OwnerUserID               *uuid.UUID           `db:"owner_user_id"`
	Stage                     domain.Stage         `db:"stage"`
	DealValue                 *int64               `db:"deal_value_cents"`
	ValueType                 domain.ValueType     `db:"value_type"`
	RangeLow                  *int64               `db:"range_low_cents"`
	RangeHigh                 *int64               `db:"range_high_cents"`
	Currency                  string               `db:"currency"`
	LatestQuoteID             *uuid.UUID           `db:"latest_quote_id"`
	LatestQuoteRevisionNumber *int                 `db:"latest_quote_revision_number"`
	Source                    domain.Source        `db:"source"`
	IsClosed                  bool                 `db:"is_closed"`
	ClosedReason              *domain.ClosedReason `db:"closed_reason"`
	LastActivityAt            time.Time            `db:"last_activity_at"`
	NextActionAt              *time.Time           `db:"next_action_at"`
	AtRisk                    bool                 `db:"at_risk"`
	Version                   int64                `db:"version"`
	CreatedAt                 time.Time            `db:"created_at"`
	UpdatedAt                 time.Time            `db:"updated_at"`
}

// Quote is the database model for a quote header.
type Quote struct {
	ID               uuid.UUID  `db:"id"`
	AccountID        uuid.UUID  `db:"account_id"`
	PrimaryContactID *uuid.UUID `db:"primary_contact_id"`
	OwnerUserID      *uuid.UUID `db:"owner_user_id"`
	Currency         string     `db:"currency"`
	Category         string     `db:"category"`
	DealID           *uuid.UUID `db:"deal_id"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

// QuoteRevision is an immutable snapshot of a quote's commercial terms.
type QuoteRevision struct {
	QuoteID        uuid.UUID `db:"quote_id"`
	RevisionNumber int       `db:"revision_number"`
	RevisionType   string    `db:"revision_type"`
	Total          *int64    `db:"total_cents"`
	IsBinding      bool      `db:"is_binding"`
	RangeLow       *int64    `db:"range_low_cents"`
	RangeHigh      *int64    `db:"range_high_cents"`
	CreatedAt      time.Time `db:"created_at"`
}

// Account is a read-only directory record.
type Account struct {
	ID   uuid.UUID `db:"id"`
	Name string    `db:"name"`
}

// Contact is a read-only directory record.
type Contact struct {
	ID        uuid.UUID `db:"id"`
	AccountID uuid.UUID `db:"account_id"`
	FullName  string    `db:"full_name"`
	Email     *string   `db:"email"`
}

// DealEvent is an append-only audit record. The relay columns are written
// only by the event relay.
type DealEvent struct {
	ID          uuid.UUID        `db:"id"`
	DealID      uuid.UUID        `db:"deal_id"`
	EventType   domain.EventType `db:"event_type"`
	OccurredAt  time.Time        `db:"occurred_at"`
	Metadata    map[string]any   `db:"metadata"`
	CreatedBy   *string          `db:"created_by"`
	PublishedAt *time.Time       `db:"published_at"`
	Attempts    int              `db:"attempts"`
	LastError   *string          `db:"last_error"`
}
