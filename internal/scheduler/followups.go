package scheduler

import (
	"context"
	"time"

	"handlit_backend/internal/events"
	"handlit_backend/platform/logger"

	"github.com/google/uuid"
)

// followUpTasks is the part of *Client the follow-up scheduler needs.
type followUpTasks interface {
	ScheduleFollowUp(ctx context.Context, dealID uuid.UUID, dueAt time.Time) error
	CancelFollowUp(ctx context.Context, dealID uuid.UUID, dueAt time.Time) error
}

// FollowUpScheduler keeps one delayed reminder task per open deal in step
// with the deal's next action date.
type FollowUpScheduler struct {
	tasks followUpTasks
	log   *logger.Logger
}

func NewFollowUpScheduler(tasks followUpTasks, log *logger.Logger) *FollowUpScheduler {
	return &FollowUpScheduler{tasks: tasks, log: log}
}

// RegisterHandlers subscribes to the deal events that move a follow-up.
func (s *FollowUpScheduler) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.DealFollowUpScheduled{}.EventName(), s)
	bus.Subscribe(events.DealClosed{}.EventName(), s)
	s.log.Info("follow-up scheduler registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (s *FollowUpScheduler) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.DealFollowUpScheduled:
		return s.handleScheduled(ctx, e)
	case events.DealClosed:
		return s.handleClosed(ctx, e)
	default:
		return nil
	}
}

func (s *FollowUpScheduler) handleScheduled(ctx context.Context, e events.DealFollowUpScheduled) error {
	log := s.log.WithContext(ctx)
	if err := s.tasks.ScheduleFollowUp(ctx, e.DealID, e.DueAt); err != nil {
		log.Error("failed to schedule deal follow-up", "dealId", e.DealID, "dueAt", e.DueAt, "error", err)
		return err
	}
	// A stale reminder that survives is skipped by the worker.
	if e.PreviousDueAt != nil {
		if err := s.tasks.CancelFollowUp(ctx, e.DealID, *e.PreviousDueAt); err != nil {
			log.Warn("failed to cancel replaced deal follow-up", "dealId", e.DealID, "dueAt", *e.PreviousDueAt, "error", err)
		}
	}
	log.Debug("deal follow-up scheduled", "dealId", e.DealID, "dueAt", e.DueAt)
	return nil
}

func (s *FollowUpScheduler) handleClosed(ctx context.Context, e events.DealClosed) error {
	if e.PendingFollowUpAt == nil {
		return nil
	}
	if err := s.tasks.CancelFollowUp(ctx, e.DealID, *e.PendingFollowUpAt); err != nil {
		s.log.WithContext(ctx).Warn("failed to cancel follow-up of closed deal", "dealId", e.DealID, "error", err)
		return err
	}
	return nil
}
