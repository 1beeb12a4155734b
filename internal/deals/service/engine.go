// Package service implements the deal state engine: it turns quote lifecycle
// events into a deduplicated, monotonic projection of deals.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/repository"
	"handlit_backend/internal/events"
	"handlit_backend/platform/apperr"
	"handlit_backend/platform/config"
	"handlit_backend/platform/logger"
	"handlit_backend/platform/sanitize"

	"github.com/google/uuid"
)

// ErrEventConsumed marks a failure after the idempotency claim was taken.
// The key is spent, so delivering the same event again is a no-op.
var ErrEventConsumed = errors.New("lifecycle event consumed without being applied")

// Store is the persistence the engine needs. *repository.Repository implements it.
type Store interface {
	InTx(ctx context.Context, fn func(tx repository.Tx) error) error
	GetQuote(ctx context.Context, id uuid.UUID) (repository.Quote, error)
	GetDeal(ctx context.Context, id uuid.UUID) (repository.Deal, error)
	ListEvents(ctx context.Context, dealID uuid.UUID) ([]repository.DealEvent, error)
}

// LifecycleEvent is one observed quote lifecycle event. Signer is used by
// accepted, Reason by declined; Actor is recorded as created_by.
type LifecycleEvent struct {
	Kind           domain.EventKind
	QuoteID        uuid.UUID
	RevisionNumber int
	Signer         *string
	Reason         *string
	Actor          *string
}

// Result is returned by every entry point. DealID is nil when the event had
// nothing to attach to.
type Result struct {
	DealID           *uuid.UUID
	AlreadyProcessed bool
	Created          bool
}

// Engine applies lifecycle events to deals.
type Engine struct {
	store      Store
	guard      *Guard
	matcher    *Matcher
	mapper     *domain.StageMapper
	bus        events.Bus
	log        *logger.Logger
	horizon    time.Duration
	maxRetries int
	now        func() time.Time
}

// New creates a deal state engine.
func New(store Store, guard *Guard, mapper *domain.StageMapper, bus events.Bus, cfg config.DealsConfig, log *logger.Logger) *Engine {
	if mapper == nil {
		mapper = domain.DefaultStageMapper()
	}
	retries := cfg.GetMaxConflictRetries()
	if retries < 1 {
		retries = 1
	}
	return &Engine{
		store:      store,
		guard:      guard,
		matcher:    NewMatcher(cfg.GetDedupeWindowDays()),
		mapper:     mapper,
		bus:        bus,
		log:        log,
		horizon:    cfg.GetFollowUpHorizon(),
		maxRetries: retries,
		now:        utcNow,
	}
}

// OnQuoteRevisionSent attaches a sent revision to its deal, creating one if needed.
func (e *Engine) OnQuoteRevisionSent(ctx context.Context, quoteID uuid.UUID, revisionNumber int) (Result, error) {
	return e.Dispatch(ctx, LifecycleEvent{Kind: domain.KindRevisionSent, QuoteID: quoteID, RevisionNumber: revisionNumber})
}

// OnQuoteAccepted closes the quote's deal as won.
func (e *Engine) OnQuoteAccepted(ctx context.Context, quoteID uuid.UUID, revisionNumber int, signer *string) (Result, error) {
	return e.Dispatch(ctx, LifecycleEvent{Kind: domain.KindAccepted, QuoteID: quoteID, RevisionNumber: revisionNumber, Signer: signer})
}

// OnQuoteDeclined closes the quote's deal as lost. Unlinked quotes are a no-op.
func (e *Engine) OnQuoteDeclined(ctx context.Context, quoteID uuid.UUID, revisionNumber int, reason *string) (Result, error) {
	return e.Dispatch(ctx, LifecycleEvent{Kind: domain.KindDeclined, QuoteID: quoteID, RevisionNumber: revisionNumber, Reason: reason})
}

// OnQuoteExpired flags the quote's open deal as at risk.
func (e *Engine) OnQuoteExpired(ctx context.Context, quoteID uuid.UUID, revisionNumber int) (Result, error) {
	return e.Dispatch(ctx, LifecycleEvent{Kind: domain.KindExpired, QuoteID: quoteID, RevisionNumber: revisionNumber})
}

// OnQuoteViewed touches the deal's last activity.
func (e *Engine) OnQuoteViewed(ctx context.Context, quoteID uuid.UUID, revisionNumber int) (Result, error) {
	return e.Dispatch(ctx, LifecycleEvent{Kind: domain.KindViewed, QuoteID: quoteID, RevisionNumber: revisionNumber})
}

// Dispatch routes ev through the transition table. The idempotency claim is
// taken first and is spent even if the transition fails afterwards.
func (e *Engine) Dispatch(ctx context.Context, ev LifecycleEvent) (Result, error) {
	apply, ok := transitions[ev.Kind]
	if !ok {
		return Result{}, apperr.Validation(fmt.Sprintf("unsupported lifecycle event kind %q", ev.Kind))
	}
	if ev.QuoteID == uuid.Nil {
		return Result{}, apperr.Validation("quoteId is required")
	}
	if ev.RevisionNumber < 1 {
		return Result{}, apperr.Validation("revisionNumber must be positive")
	}
	ev.Signer = sanitize.Optional(ev.Signer)
	ev.Reason = sanitize.Optional(ev.Reason)
	ev.Actor = sanitize.Optional(ev.Actor)

	log := e.log.WithContext(ctx)
	key := domain.IdempotencyKey(ev.Kind, ev.QuoteID, ev.RevisionNumber)
	claim, err := e.guard.CheckAndClaim(ctx, key, e.guard.TTLFor(ev.Kind))
	if err != nil {
		return Result{}, err
	}
	if claim.AlreadyProcessed {
		log.Debug("lifecycle event already processed", "key", key)
		quote, err := e.store.GetQuote(ctx, ev.QuoteID)
		if err != nil {
			return Result{}, err
		}
		return Result{DealID: quote.DealID, AlreadyProcessed: true}, nil
	}

	var t *transition
	for attempt := 1; ; attempt++ {
		t = &transition{ev: ev, now: e.now()}
		err = e.store.InTx(ctx, func(tx repository.Tx) error {
			return e.run(ctx, tx, t, apply)
		})
		if err == nil {
			break
		}
		if !apperr.Is(err, apperr.KindConflict) {
			return Result{}, fmt.Errorf("%w: %w", err, ErrEventConsumed)
		}
		if attempt >= e.maxRetries {
			log.Warn("deal update conflict retries exhausted", "key", key, "attempts", attempt)
			exhausted := apperr.Wrap(apperr.KindConflict, "deal update conflict retries exhausted", err).WithOp("deals.Dispatch")
			return Result{}, fmt.Errorf("%w: %w", exhausted, ErrEventConsumed)
		}
		log.Debug("deal update conflict, retrying", "key", key, "attempt", attempt)
	}

	if t.deal == nil {
		log.Debug("lifecycle event has no deal to attach to", "key", key)
		return Result{}, nil
	}

	dealID := t.deal.ID
	log.DealTransition(string(ev.Kind), dealID.String(), ev.QuoteID.String(), ev.RevisionNumber, t.created)
	e.publish(ctx, t)
	return Result{DealID: &dealID, Created: t.created}, nil
}

// GetDeal returns a deal by id.
func (e *Engine) GetDeal(ctx context.Context, id uuid.UUID) (repository.Deal, error) {
	return e.store.GetDeal(ctx, id)
}

// ListEvents returns the event log of an existing deal.
func (e *Engine) ListEvents(ctx context.Context, dealID uuid.UUID) ([]repository.DealEvent, error) {
	if _, err := e.store.GetDeal(ctx, dealID); err != nil {
		return nil, err
	}
	return e.store.ListEvents(ctx, dealID)
}

// GetDealForQuote returns the deal linked to a quote.
func (e *Engine) GetDealForQuote(ctx context.Context, quoteID uuid.UUID) (repository.Deal, error) {
	quote, err := e.store.GetQuote(ctx, quoteID)
	if err != nil {
		return repository.Deal{}, err
	}
	if quote.DealID == nil {
		return repository.Deal{}, apperr.NotFound("quote is not linked to a deal")
	}
	return e.store.GetDeal(ctx, *quote.DealID)
}

// RecordFollowUpDue logs that the follow-up of an open deal fell due. It
// reports false without writing when the deal closed or was rescheduled
// since dueAt was set.
func (e *Engine) RecordFollowUpDue(ctx context.Context, dealID uuid.UUID, dueAt time.Time) (bool, error) {
	recorded := false
	err := e.store.InTx(ctx, func(tx repository.Tx) error {
		d, err := tx.GetDeal(ctx, dealID)
		if err != nil {
			return err
		}
		if d.IsClosed || d.NextActionAt == nil || !sameInstant(*d.NextActionAt, dueAt) {
			return nil
		}
		meta := map[string]any{"dueAt": dueAt.UTC().Format(time.RFC3339)}
		if d.LatestQuoteID != nil {
			meta["quoteId"] = d.LatestQuoteID.String()
		}
		recorded = true
		return tx.AppendEvents(ctx, []repository.DealEvent{{
			ID:         uuid.Must(uuid.NewV7()),
			DealID:     d.ID,
			EventType:  domain.EventDealFollowUpDue,
			OccurredAt: e.now(),
			Metadata:   meta,
		}})
	})
	if err != nil {
		return false, err
	}
	if !recorded {
		e.log.WithContext(ctx).Debug("stale follow-up skipped", "dealId", dealID, "dueAt", dueAt)
	}
	return recorded, nil
}

// utcNow matches the microsecond precision of stored timestamps.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Microsecond).Equal(b.Truncate(time.Microsecond))
}

// publish emits in-process domain events for a committed transition.
func (e *Engine) publish(ctx context.Context, t *transition) {
	if e.bus == nil {
		return
	}
	d := t.deal
	if !d.IsClosed && d.NextActionAt != nil && !equalTime(t.initial.NextActionAt, d.NextActionAt) {
		e.bus.Publish(ctx, events.DealFollowUpScheduled{
			BaseEvent:     events.NewBaseEventAt(t.now),
			DealID:        d.ID,
			QuoteID:       t.ev.QuoteID,
			DueAt:         *d.NextActionAt,
			PreviousDueAt: t.initial.NextActionAt,
		})
	}
	if !t.initial.IsClosed && d.IsClosed {
		reason := ""
		if d.ClosedReason != nil {
			reason = string(*d.ClosedReason)
		}
		e.bus.Publish(ctx, events.DealClosed{
			BaseEvent:         events.NewBaseEventAt(t.now),
			DealID:            d.ID,
			QuoteID:           t.ev.QuoteID,
			Stage:             string(d.Stage),
			ClosedReason:      reason,
			ClosedAt:          t.now,
			PendingFollowUpAt: t.initial.NextActionAt,
		})
	}
}
