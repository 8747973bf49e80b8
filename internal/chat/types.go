// Package chat implements event chat: ordered message persistence and the
// live fan-out to connected subscribers. Persisted history is the source of
// truth; the broadcast is best-effort and only ever carries messages that
// were durably stored first.
package chat

import (
	"context"
	"time"
)

// Message is one chat message inside an event.
type Message struct {
	ID         string `json:"id"`
	EventID    string `json:"event_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`

	// Position is the gap-free per-event sequence number, assigned at
	// creation and never renumbered.
	Position uint64    `json:"position"`
	SentAt   time.Time `json:"sent_at"`
}

// Store persists messages. Append assigns the per-event position under a
// single serialization point so concurrent posts never collide or skip a
// slot. Implementations: MemoryStore here and the Postgres-backed store in
// internal/store/pg.
type Store interface {
	Append(ctx context.Context, msg Message) (Message, error)
	ByEvent(ctx context.Context, eventID string) ([]Message, error)
	Purge(ctx context.Context, eventID string) error
}
