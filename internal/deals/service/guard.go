package service

import (
	"context"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/platform/apperr"
	"handlit_backend/platform/config"
	"handlit_backend/platform/idempotency"
)

// ClaimResult reports the outcome of an idempotency claim.
type ClaimResult struct {
	AlreadyProcessed bool
}

// Guard gates each (kind, quote, revision) tuple to one logical execution.
type Guard struct {
	claimer   idempotency.Claimer
	stateTTL  time.Duration
	viewedTTL time.Duration
}

// NewGuard creates a guard backed by claimer with TTLs from cfg.
func NewGuard(claimer idempotency.Claimer, cfg config.IdempotencyConfig) *Guard {
	return &Guard{
		claimer:   claimer,
		stateTTL:  cfg.GetStateChangeTTL(),
		viewedTTL: cfg.GetViewedTTL(),
	}
}

// TTLFor returns the claim lifetime for kind.
func (g *Guard) TTLFor(kind domain.EventKind) time.Duration {
	if kind.IsLowValue() {
		return g.viewedTTL
	}
	return g.stateTTL
}

// CheckAndClaim atomically claims key. A store failure is returned as
// Unavailable and never as "not yet processed".
func (g *Guard) CheckAndClaim(ctx context.Context, key string, ttl time.Duration) (ClaimResult, error) {
	claimed, err := g.claimer.Claim(ctx, key, ttl)
	if err != nil {
		return ClaimResult{}, apperr.Unavailable("idempotency store unavailable", err).WithOp("deals.CheckAndClaim")
	}
	return ClaimResult{AlreadyProcessed: !claimed}, nil
}
