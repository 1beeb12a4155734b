package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/service"
	"handlit_backend/platform/apperr"
	"handlit_backend/platform/config"
	"handlit_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// DealEngine is what the worker drives. *service.Engine implements it.
type DealEngine interface {
	Dispatch(ctx context.Context, ev service.LifecycleEvent) (service.Result, error)
	RecordFollowUpDue(ctx context.Context, dealID uuid.UUID, dueAt time.Time) (bool, error)
}

// Worker serves the lifecycle and follow-up tasks of the worker queue.
// Relayed deal events go to a separate queue for external consumers.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	engine DealEngine
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, engine DealEngine, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	w := &Worker{
		mux:    asynq.NewServeMux(),
		engine: engine,
		log:    log,
	}
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})
	w.registerHandlers()

	return w, nil
}

func (w *Worker) registerHandlers() {
	for _, kind := range domain.AllEventKinds {
		w.mux.HandleFunc(LifecycleTaskType(kind), w.handleLifecycleEvent)
	}
	w.mux.HandleFunc(TaskDealFollowUpDue, w.handleFollowUpDue)
}

// Run processes tasks until ctx is cancelled, then waits for in-flight
// handlers to finish.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return
	}
	<-ctx.Done()
	w.server.Shutdown()
	w.log.Info("scheduler worker stopped")
}

func (w *Worker) handleLifecycleEvent(ctx context.Context, task *asynq.Task) error {
	ctx = withTaskID(ctx)
	log := w.log.WithContext(ctx)

	ev, err := ParseLifecycleEventTask(task)
	if err != nil {
		log.Warn("dropping malformed lifecycle task", "type", task.Type(), "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	res, err := w.engine.Dispatch(ctx, ev)
	if err != nil {
		return classifyDispatchError(log, ev, err)
	}
	if res.AlreadyProcessed {
		log.Debug("lifecycle task replayed", "kind", ev.Kind, "quoteId", ev.QuoteID)
	}
	return nil
}

func (w *Worker) handleFollowUpDue(ctx context.Context, task *asynq.Task) error {
	ctx = withTaskID(ctx)
	log := w.log.WithContext(ctx)

	dealID, dueAt, err := ParseDealFollowUpDueTask(task)
	if err != nil {
		log.Warn("dropping malformed follow-up task", "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	recorded, err := w.engine.RecordFollowUpDue(ctx, dealID, dueAt)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			log.Warn("dropping follow-up of unknown deal", "dealId", dealID)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	if recorded {
		log.Info("deal follow-up due", "dealId", dealID, "dueAt", dueAt)
	}
	return nil
}

// classifyDispatchError decides whether asynq retries a failed dispatch.
// Only failures before the idempotency claim are retried: once the claim is
// spent a redelivery is acknowledged as already processed and never applied.
func classifyDispatchError(log *logger.Logger, ev service.LifecycleEvent, err error) error {
	if errors.Is(err, service.ErrEventConsumed) {
		log.Error("lifecycle event consumed without being applied", "kind", ev.Kind, "quoteId", ev.QuoteID, "revision", ev.RevisionNumber, "errorKind", apperr.GetKind(err).String(), "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	switch apperr.GetKind(err) {
	case apperr.KindNotFound, apperr.KindValidation, apperr.KindBadRequest:
		log.Warn("dropping lifecycle task", "kind", ev.Kind, "quoteId", ev.QuoteID, "revision", ev.RevisionNumber, "error", err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		log.Warn("lifecycle task failed, will retry", "kind", ev.Kind, "quoteId", ev.QuoteID, "revision", ev.RevisionNumber, "error", err)
		return err
	}
}

func withTaskID(ctx context.Context) context.Context {
	if id, ok := asynq.GetTaskID(ctx); ok {
		return context.WithValue(ctx, logger.TaskIDKey, id)
	}
	return ctx
}
