package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"handlit_backend/internal/deals"
	"handlit_backend/internal/events"
	"handlit_backend/internal/scheduler"
	"handlit_backend/platform/config"
	"handlit_backend/platform/db"
	"handlit_backend/platform/idempotency"
	"handlit_backend/platform/logger"
	"handlit_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "queue", cfg.GetAsynqQueueName(), "eventsQueue", cfg.GetAsynqEventsQueueName())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	claims, err := idempotency.Open(ctx, cfg, pool)
	if err != nil {
		log.Error("failed to open idempotency store", "error", err)
		panic("failed to open idempotency store: " + err.Error())
	}
	defer func() { _ = claims.Close(context.Background()) }()

	eventBus := events.NewInMemoryBus(log)

	// Worker-side wiring only; no HTTP routes are mounted.
	dealsModule, err := deals.NewModule(pool, claims.Claimer, eventBus, validator.New(), cfg, log)
	if err != nil {
		log.Error("failed to initialize deals module", "error", err)
		panic("failed to initialize deals module: " + err.Error())
	}

	taskClient, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task client", "error", err)
		panic("failed to initialize task client: " + err.Error())
	}
	defer func() { _ = taskClient.Close() }()
	scheduler.NewFollowUpScheduler(taskClient, log).RegisterHandlers(eventBus)

	relay := scheduler.NewEventRelay(dealsModule.Repository(), taskClient, cfg, log)
	go relay.Run(ctx)

	if claims.Cleaner != nil {
		cleanup := scheduler.NewIdempotencyKeyCleanup(claims.Cleaner, cfg.GetIdempotencyCleanupInterval(), log)
		go cleanup.Run(ctx)
	}

	worker, err := scheduler.NewWorker(cfg, dealsModule.Engine(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	eventBus.Wait()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
