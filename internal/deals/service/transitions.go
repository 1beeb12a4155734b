package service

import (
	"context"
	"time"

	"handlit_backend/internal/deals/domain"
	"handlit_backend/internal/deals/repository"

	"github.com/google/uuid"
)

// transition is the working state of one engine invocation. It is rebuilt
// from fresh reads on every conflict retry.
type transition struct {
	ev       LifecycleEvent
	now      time.Time
	quote    repository.Quote
	revision repository.QuoteRevision

	deal    *repository.Deal
	initial repository.Deal
	version int64
	created bool

	primaryType     domain.EventType
	primaryMetadata map[string]any
}

type transitionFunc func(e *Engine, ctx context.Context, tx repository.Tx, t *transition) error

var transitions = map[domain.EventKind]transitionFunc{
	domain.KindRevisionSent: (*Engine).applyRevisionSent,
	domain.KindAccepted:     (*Engine).applyAccepted,
	domain.KindDeclined:     (*Engine).applyDeclined,
	domain.KindExpired:      (*Engine).applyExpired,
	domain.KindViewed:       (*Engine).applyViewed,
}

// run loads the quote under the account lock, applies one transition and
// persists the result. Any error rolls back the whole unit.
func (e *Engine) run(ctx context.Context, tx repository.Tx, t *transition, apply transitionFunc) error {
	quote, err := tx.GetQuote(ctx, t.ev.QuoteID)
	if err != nil {
		return err
	}
	if err := tx.LockAccount(ctx, quote.AccountID); err != nil {
		return err
	}
	// Re-read under the lock so a link made by a concurrent handler is visible.
	if t.quote, err = tx.GetQuote(ctx, t.ev.QuoteID); err != nil {
		return err
	}
	if t.revision, err = tx.GetRevision(ctx, t.ev.QuoteID, t.ev.RevisionNumber); err != nil {
		return err
	}

	if err := apply(e, ctx, tx, t); err != nil {
		return err
	}
	if t.deal == nil {
		return nil
	}
	return e.persist(ctx, tx, t)
}

func (e *Engine) applyRevisionSent(ctx context.Context, tx repository.Tx, t *transition) error {
	if err := e.resolveOrCreate(ctx, tx, t); err != nil {
		return err
	}
	d := t.deal
	touchQuoteActivity(d, t)

	mapped := e.mapper.Map(t.revision.RevisionType, t.quote.Category)
	if !d.IsClosed {
		d.Stage = mapped
		mergeValue(d, domain.ResolveValue(t.revision.Total, t.revision.RangeLow, t.revision.RangeHigh, t.revision.IsBinding))
		scheduleFollowUp(d, t.now.Add(e.horizon))
	}

	t.primaryType = domain.EventQuoteRevisionSent
	t.primaryMetadata = map[string]any{
		"revisionType": t.revision.RevisionType,
		"stageHint":    string(mapped),
		"dealClosed":   d.IsClosed,
	}
	return nil
}

func (e *Engine) applyAccepted(ctx context.Context, tx repository.Tx, t *transition) error {
	if err := e.resolveOrCreate(ctx, tx, t); err != nil {
		return err
	}
	d := t.deal
	touchQuoteActivity(d, t)

	if !d.IsClosed {
		if t.revision.Total != nil {
			total := *t.revision.Total
			d.DealValue = &total
			d.ValueType = domain.ValueTypeBinding
			d.RangeLow = nil
			d.RangeHigh = nil
		}
		closeDeal(d, domain.StageClosedWon, domain.ClosedReasonWon)
	}

	t.primaryType = domain.EventQuoteAccepted
	t.primaryMetadata = map[string]any{"signer": optString(t.ev.Signer)}
	return nil
}

func (e *Engine) applyDeclined(ctx context.Context, tx repository.Tx, t *transition) error {
	if ok, err := e.loadLinked(ctx, tx, t); err != nil || !ok {
		return err
	}
	d := t.deal
	d.LastActivityAt = latest(d.LastActivityAt, t.now)
	if !d.IsClosed {
		closeDeal(d, domain.StageClosedLost, domain.ClosedReasonLost)
	}

	t.primaryType = domain.EventQuoteDeclined
	t.primaryMetadata = map[string]any{"reason": optString(t.ev.Reason)}
	return nil
}

func (e *Engine) applyExpired(ctx context.Context, tx repository.Tx, t *transition) error {
	if ok, err := e.loadLinked(ctx, tx, t); err != nil || !ok {
		return err
	}
	d := t.deal
	if !d.IsClosed {
		now := t.now
		d.AtRisk = true
		d.NextActionAt = &now
	}

	t.primaryType = domain.EventQuoteExpired
	t.primaryMetadata = map[string]any{"atRisk": d.AtRisk}
	return nil
}

func (e *Engine) applyViewed(ctx context.Context, tx repository.Tx, t *transition) error {
	if ok, err := e.loadLinked(ctx, tx, t); err != nil || !ok {
		return err
	}
	t.deal.LastActivityAt = latest(t.deal.LastActivityAt, t.now)

	t.primaryType = domain.EventQuoteViewed
	t.primaryMetadata = map[string]any{}
	return nil
}

// loadLinked attaches the deal already linked to the quote. It reports false
// when the quote has no deal.
func (e *Engine) loadLinked(ctx context.Context, tx repository.Tx, t *transition) (bool, error) {
	if t.quote.DealID == nil {
		return false, nil
	}
	d, err := tx.GetDeal(ctx, *t.quote.DealID)
	if err != nil {
		return false, err
	}
	t.attach(d)
	return true, nil
}

// resolveOrCreate attaches the target deal of the quote. A closed linked
// deal is kept so later events only update its bookkeeping.
func (e *Engine) resolveOrCreate(ctx context.Context, tx repository.Tx, t *transition) error {
	q := t.quote
	if q.DealID != nil {
		linked, err := tx.GetDeal(ctx, *q.DealID)
		if err != nil {
			return err
		}
		if linked.IsClosed {
			t.attach(linked)
			return nil
		}
	}

	match, err := e.matcher.FindMatchingActiveDeal(ctx, tx, MatchInput{
		AccountID:    q.AccountID,
		ContactID:    q.PrimaryContactID,
		LinkedDealID: q.DealID,
		Now:          t.now,
	})
	if err != nil {
		return err
	}
	if match != nil {
		t.attach(*match)
		return nil
	}

	if _, err := tx.GetAccount(ctx, q.AccountID); err != nil {
		return err
	}
	if q.PrimaryContactID != nil {
		if _, err := tx.GetContact(ctx, *q.PrimaryContactID); err != nil {
			return err
		}
	}

	quoteID := q.ID
	revision := t.revision.RevisionNumber
	t.attach(repository.Deal{
		ID:                        uuid.New(),
		AccountID:                 q.AccountID,
		PrimaryContactID:          q.PrimaryContactID,
		OwnerUserID:               q.OwnerUserID,
		Stage:                     e.mapper.Map(t.revision.RevisionType, q.Category),
		ValueType:                 domain.ValueTypeUnknown,
		Currency:                  q.Currency,
		LatestQuoteID:             &quoteID,
		LatestQuoteRevisionNumber: &revision,
		Source:                    domain.SourceQuoteAuto,
		LastActivityAt:            t.now,
		Version:                   1,
		CreatedAt:                 t.now,
		UpdatedAt:                 t.now,
	})
	t.created = true
	return nil
}

func (t *transition) attach(d repository.Deal) {
	t.initial = d
	t.version = d.Version
	t.deal = &d
}

// persist writes the deal, links the quote and appends the events of the
// transition.
func (e *Engine) persist(ctx context.Context, tx repository.Tx, t *transition) error {
	d := t.deal
	switch {
	case t.created:
		d.UpdatedAt = t.now
		if err := tx.CreateDeal(ctx, *d); err != nil {
			return err
		}
	case dealChanged(t.initial, *d):
		d.UpdatedAt = t.now
		if err := tx.UpdateDeal(ctx, *d, t.version); err != nil {
			return err
		}
		d.Version = t.version + 1
	}

	if t.quote.DealID == nil || *t.quote.DealID != d.ID {
		if err := tx.LinkQuoteDeal(ctx, t.quote.ID, d.ID); err != nil {
			return err
		}
	}

	return tx.AppendEvents(ctx, t.buildEvents())
}

// buildEvents returns deal_created (for new deals), one event per changed
// field group, then the event named after the lifecycle kind.
func (t *transition) buildEvents() []repository.DealEvent {
	d := t.deal
	var out []repository.DealEvent

	if t.created {
		out = append(out, t.newEvent(domain.EventDealCreated, map[string]any{
			"accountId": d.AccountID.String(),
			"stage":     string(t.initial.Stage),
			"source":    string(d.Source),
		}))
	}
	if t.initial.Stage != d.Stage {
		out = append(out, t.newEvent(domain.EventDealStageChanged, map[string]any{
			"fromStage": string(t.initial.Stage),
			"toStage":   string(d.Stage),
		}))
	}
	if valueChanged(t.initial, *d) {
		out = append(out, t.newEvent(domain.EventDealValueUpdated, map[string]any{
			"fromValue":     optInt(t.initial.DealValue),
			"toValue":       optInt(d.DealValue),
			"fromValueType": string(t.initial.ValueType),
			"toValueType":   string(d.ValueType),
		}))
	}
	if !t.initial.IsClosed && d.IsClosed {
		reason := ""
		if d.ClosedReason != nil {
			reason = string(*d.ClosedReason)
		}
		out = append(out, t.newEvent(domain.EventDealClosed, map[string]any{
			"stage":        string(d.Stage),
			"closedReason": reason,
		}))
	}
	return append(out, t.newEvent(t.primaryType, t.primaryMetadata))
}

func (t *transition) newEvent(eventType domain.EventType, metadata map[string]any) repository.DealEvent {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadata["quoteId"] = t.ev.QuoteID.String()
	metadata["revisionNumber"] = t.ev.RevisionNumber
	return repository.DealEvent{
		// v7 ids sort in creation order within one transition.
		ID:         uuid.Must(uuid.NewV7()),
		DealID:     t.deal.ID,
		EventType:  eventType,
		OccurredAt: t.now,
		Metadata:   metadata,
		CreatedBy:  t.ev.Actor,
	}
}

// ── merge helpers ─────────────────────────────────────────────────────────────

func mergeValue(d *repository.Deal, next domain.ValueResolution) {
	if !domain.ShouldApplyValue(d.ValueType, next) {
		return
	}
	d.DealValue = next.Value
	d.ValueType = next.ValueType
	d.RangeLow = next.RangeLow
	d.RangeHigh = next.RangeHigh
}

func closeDeal(d *repository.Deal, stage domain.Stage, reason domain.ClosedReason) {
	d.Stage = stage
	d.IsClosed = true
	d.ClosedReason = &reason
	d.AtRisk = false
	d.NextActionAt = nil
}

// scheduleFollowUp keeps an earlier pending follow-up.
func scheduleFollowUp(d *repository.Deal, candidate time.Time) {
	if d.NextActionAt == nil || d.NextActionAt.After(candidate) {
		d.NextActionAt = &candidate
	}
}

// touchQuoteActivity records the quote revision as the deal's latest without
// moving backwards on out-of-order delivery.
func touchQuoteActivity(d *repository.Deal, t *transition) {
	quoteID := t.quote.ID
	revision := t.revision.RevisionNumber
	sameQuote := d.LatestQuoteID != nil && *d.LatestQuoteID == quoteID
	if !sameQuote || d.LatestQuoteRevisionNumber == nil || *d.LatestQuoteRevisionNumber < revision {
		d.LatestQuoteID = &quoteID
		d.LatestQuoteRevisionNumber = &revision
	}
	d.LastActivityAt = latest(d.LastActivityAt, t.now)
}

func dealChanged(before, after repository.Deal) bool {
	return before.Stage != after.Stage ||
		valueChanged(before, after) ||
		!equalInt64(before.RangeLow, after.RangeLow) ||
		!equalInt64(before.RangeHigh, after.RangeHigh) ||
		!equalUUID(before.LatestQuoteID, after.LatestQuoteID) ||
		!equalInt(before.LatestQuoteRevisionNumber, after.LatestQuoteRevisionNumber) ||
		before.IsClosed != after.IsClosed ||
		!equalReason(before.ClosedReason, after.ClosedReason) ||
		!before.LastActivityAt.Equal(after.LastActivityAt) ||
		!equalTime(before.NextActionAt, after.NextActionAt) ||
		before.AtRisk != after.AtRisk
}

func valueChanged(before, after repository.Deal) bool {
	return before.ValueType != after.ValueType || !equalInt64(before.DealValue, after.DealValue)
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func equalInt64(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalUUID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalReason(a, b *domain.ClosedReason) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func optInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func optString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
