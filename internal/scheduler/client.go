package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/repository"
	"handlit_backend/internal/deals/service"
	"handlit_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const (
	lifecycleMaxRetry = 10
	publishedMaxRetry = 5
	followUpMaxRetry  = 3
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// taskDeleter removes a pending task. *asynq.Inspector implements it.
type taskDeleter interface {
	DeleteTask(queue, id string) error
	Close() error
}

// Client enqueues lifecycle and follow-up tasks on the worker queue and
// relayed deal events on the events queue, which this service never serves.
type Client struct {
	client      taskEnqueuer
	inspector   taskDeleter
	queue       string
	eventsQueue string
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Client{
		client:      asynq.NewClient(opt),
		inspector:   asynq.NewInspector(opt),
		queue:       queueName(cfg),
		eventsQueue: eventsQueueName(cfg),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	var inspectorErr error
	if c.inspector != nil {
		inspectorErr = c.inspector.Close()
	}
	return errors.Join(c.client.Close(), inspectorErr)
}

// EnqueueLifecycleEvent queues ev for the worker. The task id is the
// idempotency key, so a duplicate submission while the first is still queued
// is acknowledged without a second task.
func (c *Client) EnqueueLifecycleEvent(ctx context.Context, ev service.LifecycleEvent) (string, string, error) {
	task, err := NewLifecycleEventTask(ev)
	if err != nil {
		return "", "", err
	}

	taskID := domain.IdempotencyKey(ev.Kind, ev.QuoteID, ev.RevisionNumber)
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(taskID),
		asynq.MaxRetry(lifecycleMaxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return taskID, c.queue, nil
	}
	if err != nil {
		return "", "", err
	}
	return info.ID, info.Queue, nil
}

// EnqueueDealEventPublished hands one logged deal event to consumers.
func (c *Client) EnqueueDealEventPublished(ctx context.Context, ev repository.DealEvent) error {
	meta := ev.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	task, err := NewDealEventPublishedTask(DealEventPublishedPayload{
		EventID:    ev.ID.String(),
		DealID:     ev.DealID.String(),
		EventType:  string(ev.EventType),
		OccurredAt: ev.OccurredAt,
		Metadata:   meta,
		CreatedBy:  ev.CreatedBy,
	})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.eventsQueue),
		asynq.TaskID("deal-event:"+ev.ID.String()),
		asynq.MaxRetry(publishedMaxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// ScheduleFollowUp queues the follow-up reminder of a deal for dueAt.
func (c *Client) ScheduleFollowUp(ctx context.Context, dealID uuid.UUID, dueAt time.Time) error {
	task, err := NewDealFollowUpDueTask(DealFollowUpDuePayload{DealID: dealID.String(), DueAt: dueAt})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(c.queue),
		asynq.TaskID(followUpTaskID(dealID, dueAt)),
		asynq.ProcessAt(dueAt),
		asynq.MaxRetry(followUpMaxRetry),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// CancelFollowUp removes a reminder queued for dueAt. A reminder that is
// already gone is not an error.
func (c *Client) CancelFollowUp(_ context.Context, dealID uuid.UUID, dueAt time.Time) error {
	if c.inspector == nil {
		return nil
	}
	err := c.inspector.DeleteTask(c.queue, followUpTaskID(dealID, dueAt))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return nil
	}
	return err
}

func followUpTaskID(dealID uuid.UUID, dueAt time.Time) string {
	return fmt.Sprintf("deal-followup:%s:%d", dealID, dueAt.Unix())
}

func queueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqQueueName(); q != "" {
		return q
	}
	return "default"
}

func eventsQueueName(cfg config.SchedulerConfig) string {
	if q := cfg.GetAsynqEventsQueueName(); q != "" {
		return q
	}
	return "deals.events"
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
