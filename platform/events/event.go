// Package events is the in-process publish/subscribe layer used to fan
// committed state changes out to other modules.
// This is part of the platform layer and contains no business logic.
package events

import (
	"context"
	"time"
)

// Event is implemented by every domain event.
type Event interface {
	// EventName is the subscription key.
	EventName() string
	// OccurredAt is the time of the change the event describes.
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp shared by all events.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// OccurredAt returns the event timestamp.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps an event with the wall clock.
func NewBaseEvent() BaseEvent {
	return NewBaseEventAt(time.Now().UTC())
}

// NewBaseEventAt stamps an event with a caller-provided time, so events
// agree with the clock used for the persisted change.
func NewBaseEventAt(at time.Time) BaseEvent {
	return BaseEvent{Timestamp: at}
}

// Handler reacts to one event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc lets a plain function subscribe.
type HandlerFunc func(ctx context.Context, event Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribers keyed by EventName.
type Bus interface {
	// Publish delivers asynchronously; handler errors are logged, not returned.
	Publish(ctx context.Context, event Event)
	// PublishSync delivers in the caller's goroutine and joins handler errors.
	PublishSync(ctx context.Context, event Event) error
	// Subscribe registers handler under eventName.
	Subscribe(eventName string, handler Handler)
}
