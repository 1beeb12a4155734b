package scheduler

import (
	"context"
	"time"

	"handlit_backend/internal/deals/repository"
	"handlit_backend/platform/config"
	"handlit_backend/platform/logger"
)

const (
	defaultRelayInterval    = 2 * time.Second
	defaultRelayBatchSize   = 50
	defaultRelayMaxAttempts = 10
)

type unpublishedEventStore interface {
	RelayUnpublished(ctx context.Context, limit, maxAttempts int, publish func(context.Context, repository.DealEvent) error) (int, error)
}

type dealEventPublisher interface {
	EnqueueDealEventPublished(ctx context.Context, ev repository.DealEvent) error
}

// EventRelay forwards committed deal events to the task queue and marks
// them published.
type EventRelay struct {
	store       unpublishedEventStore
	publisher   dealEventPublisher
	log         *logger.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

func NewEventRelay(store unpublishedEventStore, publisher dealEventPublisher, cfg config.RelayConfig, log *logger.Logger) *EventRelay {
	interval := cfg.GetEventRelayInterval()
	if interval <= 0 {
		interval = defaultRelayInterval
	}
	batch := cfg.GetEventRelayBatchSize()
	if batch < 1 {
		batch = defaultRelayBatchSize
	}
	return &EventRelay{
		store:       store,
		publisher:   publisher,
		log:         log,
		interval:    interval,
		batchSize:   batch,
		maxAttempts: defaultRelayMaxAttempts,
	}
}

func (r *EventRelay) Run(ctx context.Context) {
	if r == nil || r.store == nil || r.publisher == nil {
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain backlogs without waiting a tick per batch.
		for {
			n, err := r.relayOnce(ctx)
			if err != nil || n < r.batchSize || ctx.Err() != nil {
				break
			}
		}
	}
}

func (r *EventRelay) relayOnce(ctx context.Context) (int, error) {
	n, err := r.store.RelayUnpublished(ctx, r.batchSize, r.maxAttempts, r.publisher.EnqueueDealEventPublished)
	if err != nil {
		if ctx.Err() == nil {
			r.log.DatabaseError("relay deal events", err)
		}
		return 0, err
	}
	if n > 0 {
		r.log.Debug("deal events relayed", "count", n)
	}
	return n, nil
}
