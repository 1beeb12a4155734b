package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ── Repository ────────────────────────────────────────────────────────────────

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Tx is the set of operations available inside one engine transaction.
type Tx interface {
	LockAccount(ctx context.Context, accountID uuid.UUID) error

	GetQuote(ctx context.Context, id uuid.UUID) (Quote, error)
	GetRevision(ctx context.Context, quoteID uuid.UUID, revisionNumber int) (QuoteRevision, error)
	LinkQuoteDeal(ctx context.Context, quoteID, dealID uuid.UUID) error

	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	GetContact(ctx context.Context, id uuid.UUID) (Contact, error)

	GetDeal(ctx context.Context, id uuid.UUID) (Deal, error)
	FindOpenDeals(ctx context.Context, accountID uuid.UUID, contactID *uuid.UUID, createdAfter *time.Time) ([]Deal, error)
	CreateDeal(ctx context.Context, deal Deal) error
	UpdateDeal(ctx context.Context, deal Deal, expectedVersion int64) error

	AppendEvents(ctx context.Context, events []DealEvent) error
}

// Repository provides database operations for deals, quotes, the account
// directory and the deal event log.
type Repository struct {
	pool *pgxpool.Pool
	q    querier
}

// New creates a new deals repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: pool}
}

// InTx runs fn in a single transaction. The transaction commits only when
// fn returns nil.
func (r *Repository) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Repository{pool: r.pool, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const lockAccountQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`

// LockAccount serializes resolve-or-create for one account until the
// surrounding transaction ends.
func (r *Repository) LockAccount(ctx context.Context, accountID uuid.UUID) error {
	if _, err := r.q.Exec(ctx, lockAccountQuery, accountID); err != nil {
		return fmt.Errorf("failed to lock account: %w", err)
	}
	return nil
}

var _ Tx = (*Repository)(nil)
