package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"handlit_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	quoteNotFoundMsg    = "quote not found"
	revisionNotFoundMsg = "quote revision not found"
	accountNotFoundMsg  = "account not found"
	contactNotFoundMsg  = "contact not found"
)

const getQuoteQuery = `
	SELECT id, account_id, primary_contact_id, owner_user_id, currency, category,
		deal_id, created_at, updated_at
	FROM quotes WHERE id = $1`

// GetQuote retrieves a quote by its ID
func (r *Repository) GetQuote(ctx context.Context, id uuid.UUID) (Quote, error) {
	var q Quote
	err := r.q.QueryRow(ctx, getQuoteQuery, id).Scan(
		&q.ID, &q.AccountID, &q.PrimaryContactID, &q.OwnerUserID, &q.Currency, &q.Category,
		&q.DealID, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, apperr.NotFound(quoteNotFoundMsg)
		}
		return Quote{}, fmt.Errorf("failed to get quote: %w", err)
	}
	return q, nil
}

const getRevisionQuery = `
	SELECT quote_id, revision_number, revision_type, total_cents, is_binding,
		range_low_cents, range_high_cents, created_at
	FROM quote_revisions WHERE quote_id = $1 AND revision_number = $2`

// GetRevision retrieves one revision of a quote
func (r *Repository) GetRevision(ctx context.Context, quoteID uuid.UUID, revisionNumber int) (QuoteRevision, error) {
	var rev QuoteRevision
	err := r.q.QueryRow(ctx, getRevisionQuery, quoteID, revisionNumber).Scan(
		&rev.QuoteID, &rev.RevisionNumber, &rev.RevisionType, &rev.Total, &rev.IsBinding,
		&rev.RangeLow, &rev.RangeHigh, &rev.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return QuoteRevision{}, apperr.NotFound(revisionNotFoundMsg)
		}
		return QuoteRevision{}, fmt.Errorf("failed to get quote revision: %w", err)
	}
	return rev, nil
}

// linkQuoteDealQuery never clears deal_id: the new value is always a deal id.
const linkQuoteDealQuery = `UPDATE quotes SET deal_id = $2, updated_at = $3 WHERE id = $1`

// LinkQuoteDeal points a quote at the deal it resolved to
func (r *Repository) LinkQuoteDeal(ctx context.Context, quoteID, dealID uuid.UUID) error {
	result, err := r.q.Exec(ctx, linkQuoteDealQuery, quoteID, dealID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to link quote to deal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(quoteNotFoundMsg)
	}
	return nil
}

// GetAccount retrieves an account from the directory
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	var a Account
	err := r.q.QueryRow(ctx, `SELECT id, name FROM accounts WHERE id = $1`, id).Scan(&a.ID, &a.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, apperr.NotFound(accountNotFoundMsg)
		}
		return Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

// GetContact retrieves a contact from the directory
func (r *Repository) GetContact(ctx context.Context, id uuid.UUID) (Contact, error) {
	var c Contact
	err := r.q.QueryRow(ctx,
		`SELECT id, account_id, full_name, email FROM contacts WHERE id = $1`, id,
	).Scan(&c.ID, &c.AccountID, &c.FullName, &c.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, apperr.NotFound(contactNotFoundMsg)
		}
		return Contact{}, fmt.Errorf("failed to get contact: %w", err)
	}
	return c, nil
}
