package scheduler

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/service"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskLifecyclePrefix prefixes the per-kind lifecycle task types,
// e.g. deals.lifecycle.accepted.
const TaskLifecyclePrefix = "deals.lifecycle."

// TaskDealEventPublished carries one relayed deal event to external
// consumers of the events queue.
const TaskDealEventPublished = "deals.event.published"

// TaskDealFollowUpDue fires when the next action date of a deal is reached.
const TaskDealFollowUpDue = "deals.followup.due"

// LifecycleTaskType returns the task type for a lifecycle event kind.
func LifecycleTaskType(kind domain.EventKind) string {
	return TaskLifecyclePrefix + string(kind)
}

type LifecycleEventPayload struct {
	QuoteID        string  `json:"quoteId"`
	RevisionNumber int     `json:"revisionNumber"`
	Signer         *string `json:"signer,omitempty"`
	Reason         *string `json:"reason,omitempty"`
	Actor          *string `json:"actor,omitempty"`
}

type DealEventPublishedPayload struct {
	EventID    string         `json:"eventId"`
	DealID     string         `json:"dealId"`
	EventType  string         `json:"eventType"`
	OccurredAt time.Time      `json:"occurredAt"`
	Metadata   map[string]any `json:"metadata"`
	CreatedBy  *string        `json:"createdBy,omitempty"`
}

type DealFollowUpDuePayload struct {
	DealID string    `json:"dealId"`
	DueAt  time.Time `json:"dueAt"`
}

func NewLifecycleEventTask(ev service.LifecycleEvent) (*asynq.Task, error) {
	data, err := json.Marshal(LifecycleEventPayload{
		QuoteID:        ev.QuoteID.String(),
		RevisionNumber: ev.RevisionNumber,
		Signer:         ev.Signer,
		Reason:         ev.Reason,
		Actor:          ev.Actor,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(LifecycleTaskType(ev.Kind), data), nil
}

// ParseLifecycleEventTask rebuilds the lifecycle event; the kind comes from
// the task type.
func ParseLifecycleEventTask(task *asynq.Task) (service.LifecycleEvent, error) {
	kind, err := domain.ParseEventKind(strings.TrimPrefix(task.Type(), TaskLifecyclePrefix))
	if err != nil {
		return service.LifecycleEvent{}, err
	}

	var payload LifecycleEventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return service.LifecycleEvent{}, err
	}

	quoteID, err := uuid.Parse(payload.QuoteID)
	if err != nil {
		return service.LifecycleEvent{}, fmt.Errorf("invalid quote id: %w", err)
	}

	return service.LifecycleEvent{
		Kind:           kind,
		QuoteID:        quoteID,
		RevisionNumber: payload.RevisionNumber,
		Signer:         payload.Signer,
		Reason:         payload.Reason,
		Actor:          payload.Actor,
	}, nil
}

func NewDealEventPublishedTask(payload DealEventPublishedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDealEventPublished, data), nil
}

func ParseDealEventPublishedPayload(task *asynq.Task) (DealEventPublishedPayload, error) {
	var payload DealEventPublishedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DealEventPublishedPayload{}, err
	}
	return payload, nil
}

func NewDealFollowUpDueTask(payload DealFollowUpDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDealFollowUpDue, data), nil
}

func ParseDealFollowUpDueTask(task *asynq.Task) (uuid.UUID, time.Time, error) {
	var payload DealFollowUpDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return uuid.Nil, time.Time{}, err
	}
	dealID, err := uuid.Parse(payload.DealID)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("invalid deal id: %w", err)
	}
	if payload.DueAt.IsZero() {
		return uuid.Nil, time.Time{}, fmt.Errorf("dueAt is required")
	}
	return dealID, payload.DueAt, nil
}
