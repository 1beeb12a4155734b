package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// claimKeyQuery inserts the key, or takes over an expired row. A live row
// makes the upsert a no-op so RETURNING yields nothing.
const claimKeyQuery = `
	INSERT INTO idempotency_keys (key, created_at, expires_at)
	VALUES ($1, now(), now() + make_interval(secs => $2))
	ON CONFLICT (key) DO UPDATE
		SET created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= now()
	RETURNING key`

const deleteExpiredKeysQuery = `DELETE FROM idempotency_keys WHERE expires_at <= now()`

// Querier is the subset of pgxpool.Pool used by PostgresClaimer.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresClaimer claims keys through the unique primary key of idempotency_keys.
type PostgresClaimer struct {
	db Querier
}

// NewPostgresClaimer creates a claimer on top of a pool or transaction.
func NewPostgresClaimer(db Querier) *PostgresClaimer {
	return &PostgresClaimer{db: db}
}

// Claim implements Claimer.
func (c *PostgresClaimer) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("claim %q: ttl must be positive", key)
	}
	var claimed string
	err := c.db.QueryRow(ctx, claimKeyQuery, key, ttl.Seconds()).Scan(&claimed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("postgres claim %q: %w", key, err)
	}
	return true, nil
}

// DeleteExpired removes keys whose TTL has passed and returns how many were removed.
func (c *PostgresClaimer) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := c.db.Exec(ctx, deleteExpiredKeysQuery)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}

var _ Claimer = (*PostgresClaimer)(nil)
