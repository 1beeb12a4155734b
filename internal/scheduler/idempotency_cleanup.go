package scheduler

import (
	"context"
	"time"

	"handlit_backend/platform/logger"
)

const defaultIdempotencyCleanupInterval = 7 * 24 * time.Hour

type expiredKeyDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// IdempotencyKeyCleanup periodically removes expired claims from a table
// backed claim store.
type IdempotencyKeyCleanup struct {
	store    expiredKeyDeleter
	log      *logger.Logger
	interval time.Duration
}

func NewIdempotencyKeyCleanup(store expiredKeyDeleter, interval time.Duration, log *logger.Logger) *IdempotencyKeyCleanup {
	if interval <= 0 {
		interval = defaultIdempotencyCleanupInterval
	}
	return &IdempotencyKeyCleanup{
		store:    store,
		log:      log,
		interval: interval,
	}
}

func (c *IdempotencyKeyCleanup) Run(ctx context.Context) {
	if c == nil || c.store == nil {
		return
	}

	c.cleanup(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

func (c *IdempotencyKeyCleanup) cleanup(ctx context.Context) {
	deleted, err := c.store.DeleteExpired(ctx)
	if err != nil {
		c.log.Warn("idempotency key cleanup failed", "error", err)
		return
	}

	if deleted > 0 {
		c.log.Info("idempotency key cleanup deleted expired keys", "deleted", deleted)
	}
}
