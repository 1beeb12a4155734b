package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// EventKind enumerates the quote lifecycle events the engine consumes.
type EventKind string

const (
	KindRevisionSent EventKind = "revision_sent"
	KindViewed       EventKind = "viewed"
	KindAccepted     EventKind = "accepted"
	KindDeclined     EventKind = "declined"
	KindExpired      EventKind = "expired"
)

// AllEventKinds lists every kind in dispatch order.
var AllEventKinds = []EventKind{KindRevisionSent, KindViewed, KindAccepted, KindDeclined, KindExpired}

// ParseEventKind validates a wire value.
func ParseEventKind(raw string) (EventKind, error) {
	for _, k := range AllEventKinds {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown lifecycle event kind %q", raw)
}

// IsLowValue reports kinds that are cheap to re-observe and use the short TTL.
func (k EventKind) IsLowValue() bool {
	return k == KindViewed
}

// IdempotencyKey derives the claim key for one (kind, quote, revision) tuple.
func IdempotencyKey(kind EventKind, quoteID uuid.UUID, revisionNumber int) string {
	return fmt.Sprintf("%s:%s:%d", kind, quoteID, revisionNumber)
}
