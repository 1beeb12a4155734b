package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"handlit_backend/internal/deals/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const insertEventQuery = `
	INSERT INTO deal_events (id, deal_id, event_type, occurred_at, metadata, created_by)
	VALUES ($1, $2, $3, $4, $5, $6)`

// AppendEvents inserts events in one round trip. Rows are never updated
// afterwards except for the relay columns.
func (r *Repository) AppendEvents(ctx context.Context, events []DealEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range events {
		metadata, err := marshalMetadata(e.Metadata)
		if err != nil {
			return err
		}
		batch.Queue(insertEventQuery, e.ID, e.DealID, e.EventType, e.OccurredAt, metadata, e.CreatedBy)
	}

	br := r.q.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to append deal event: %w", err)
		}
	}
	return nil
}

const listEventsQuery = `
	SELECT id, deal_id, event_type, occurred_at, metadata, created_by, published_at, attempts, last_error
	FROM deal_events
	WHERE deal_id = $1
	ORDER BY occurred_at ASC, id ASC`

// ListEvents returns the event log of a deal, oldest first
func (r *Repository) ListEvents(ctx context.Context, dealID uuid.UUID) ([]DealEvent, error) {
	rows, err := r.q.Query(ctx, listEventsQuery, dealID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deal events: %w", err)
	}
	defer rows.Close()

	events := make([]DealEvent, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deal events: %w", err)
	}
	return events, nil
}

// relayClaimQuery locks a batch of unpublished events. Rows locked by another
// relay instance are skipped.
const relayClaimQuery = `
	SELECT id, deal_id, event_type, occurred_at, metadata, created_by, published_at, attempts, last_error
	FROM deal_events
	WHERE published_at IS NULL AND attempts < $2
	ORDER BY occurred_at ASC
	LIMIT $1
	FOR UPDATE SKIP LOCKED`

const (
	markPublishedQuery = `UPDATE deal_events SET published_at = now(), attempts = attempts + 1, last_error = NULL WHERE id = $1`
	markFailedQuery    = `UPDATE deal_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1`
)

// RelayUnpublished hands up to limit unpublished events to publish inside a
// transaction that holds their row locks. Each event is then marked either
// published or failed. Events that failed maxAttempts times are left alone.
func (r *Repository) RelayUnpublished(ctx context.Context, limit, maxAttempts int, publish func(context.Context, DealEvent) error) (published int, err error) {
	if limit < 1 {
		limit = 50
	}
	if maxAttempts < 1 {
		maxAttempts = 10
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, relayClaimQuery, limit, maxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to claim deal events: %w", err)
	}
	var batch []DealEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		batch = append(batch, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate deal events: %w", err)
	}

	for _, e := range batch {
		if pubErr := publish(ctx, e); pubErr != nil {
			if _, err := tx.Exec(ctx, markFailedQuery, e.ID, pubErr.Error()); err != nil {
				return 0, fmt.Errorf("failed to mark deal event failed: %w", err)
			}
			continue
		}
		if _, err := tx.Exec(ctx, markPublishedQuery, e.ID); err != nil {
			return 0, fmt.Errorf("failed to mark deal event published: %w", err)
		}
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return published, nil
}

func scanEvent(rows pgx.Rows) (DealEvent, error) {
	var e DealEvent
	var eventType string
	var metadata []byte
	if err := rows.Scan(
		&e.ID, &e.DealID, &eventType, &e.OccurredAt, &metadata, &e.CreatedBy,
		&e.PublishedAt, &e.Attempts, &e.LastError,
	); err != nil {
		return DealEvent{}, fmt.Errorf("failed to scan deal event: %w", err)
	}
	e.EventType = domain.EventType(eventType)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
			return DealEvent{}, fmt.Errorf("failed to decode deal event metadata: %w", err)
		}
	}
	return e, nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal deal event metadata: %w", err)
	}
	return b, nil
}
