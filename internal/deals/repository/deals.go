package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"handlit_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	dealNotFoundMsg = "deal not found"
	dealConflictMsg = "deal was modified concurrently"
)

const dealColumns = `id, account_id, primary_contact_id, owner_user_id, stage,
	deal_value_cents, value_type, range_low_cents, range_high_cents, currency,
	latest_quote_id, latest_quote_revision_number, source, is_closed, closed_reason,
	last_activity_at, next_action_at, at_risk, version, created_at, updated_at`

func scanDeal(row pgx.Row) (Deal, error) {
	var d Deal
	err := row.Scan(
		&d.ID, &d.AccountID, &d.PrimaryContactID, &d.OwnerUserID, &d.Stage,
		&d.DealValue, &d.ValueType, &d.RangeLow, &d.RangeHigh, &d.Currency,
		&d.LatestQuoteID, &d.LatestQuoteRevisionNumber, &d.Source, &d.IsClosed, &d.ClosedReason,
		&d.LastActivityAt, &d.NextActionAt, &d.AtRisk, &d.Version, &d.CreatedAt, &d.UpdatedAt,
	)
	return d, err
}

var getDealQuery = `SELECT ` + dealColumns + ` FROM deals WHERE id = $1`

// GetDeal retrieves a deal by its ID
func (r *Repository) GetDeal(ctx context.Context, id uuid.UUID) (Deal, error) {
	d, err := scanDeal(r.q.QueryRow(ctx, getDealQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, apperr.NotFound(dealNotFoundMsg)
		}
		return Deal{}, fmt.Errorf("failed to get deal: %w", err)
	}
	return d, nil
}

// openDealCandidateLimit caps how many candidates one matcher lookup reads.
const openDealCandidateLimit = 20

// findOpenDealsOrder mirrors the matcher tie-break so the limit keeps the
// strongest candidates.
const findOpenDealsOrder = ` ORDER BY updated_at DESC, deal_value_cents DESC NULLS LAST, id ASC LIMIT `

// buildFindOpenDealsQuery returns the matcher query for the given filters.
func buildFindOpenDealsQuery(accountID uuid.UUID, contactID *uuid.UUID, createdAfter *time.Time) (string, []any) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + dealColumns + ` FROM deals WHERE account_id = $1 AND is_closed = false`)
	args := []any{accountID}

	if contactID != nil {
		args = append(args, *contactID)
		fmt.Fprintf(&sb, " AND primary_contact_id = $%d", len(args))
	}
	if createdAfter != nil {
		args = append(args, *createdAfter)
		fmt.Fprintf(&sb, " AND created_at >= $%d", len(args))
	}
	fmt.Fprintf(&sb, "%s%d", findOpenDealsOrder, openDealCandidateLimit)
	return sb.String(), args
}

// FindOpenDeals returns the open deals of the account that the matcher may
// attach to. contactID and createdAfter are optional filters.
func (r *Repository) FindOpenDeals(ctx context.Context, accountID uuid.UUID, contactID *uuid.UUID, createdAfter *time.Time) ([]Deal, error) {
	query, args := buildFindOpenDealsQuery(accountID, contactID, createdAfter)
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find open deals: %w", err)
	}
	defer rows.Close()

	var deals []Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan open deal: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate open deals: %w", err)
	}
	return deals, nil
}

var insertDealQuery = `INSERT INTO deals (` + dealColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

// CreateDeal inserts a new deal
func (r *Repository) CreateDeal(ctx context.Context, d Deal) error {
	if _, err := r.q.Exec(ctx, insertDealQuery,
		d.ID, d.AccountID, d.PrimaryContactID, d.OwnerUserID, d.Stage,
		d.DealValue, d.ValueType, d.RangeLow, d.RangeHigh, d.Currency,
		d.LatestQuoteID, d.LatestQuoteRevisionNumber, d.Source, d.IsClosed, d.ClosedReason,
		d.LastActivityAt, d.NextActionAt, d.AtRisk, d.Version, d.CreatedAt, d.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert deal: %w", err)
	}
	return nil
}

const updateDealQuery = `
	UPDATE deals SET
		stage = $2, deal_value_cents = $3, value_type = $4, range_low_cents = $5, range_high_cents = $6,
		latest_quote_id = $7, latest_quote_revision_number = $8, is_closed = $9, closed_reason = $10,
		last_activity_at = $11, next_action_at = $12, at_risk = $13, updated_at = $14,
		version = version + 1
	WHERE id = $1 AND version = $15`

// UpdateDeal writes the mutable deal fields if the stored version still
// equals expectedVersion. A miss is reported as a conflict.
func (r *Repository) UpdateDeal(ctx context.Context, d Deal, expectedVersion int64) error {
	result, err := r.q.Exec(ctx, updateDealQuery,
		d.ID, d.Stage, d.DealValue, d.ValueType, d.RangeLow, d.RangeHigh,
		d.LatestQuoteID, d.LatestQuoteRevisionNumber, d.IsClosed, d.ClosedReason,
		d.LastActivityAt, d.NextActionAt, d.AtRisk, d.UpdatedAt,
		expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update deal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.Conflict(dealConflictMsg).WithOp("deals.UpdateDeal")
	}
	return nil
}
