// Package pg provides the Postgres-backed implementations of the durable
// history stores: chat messages and the event state-change trail. Entity
// state (users, zones, events) stays in the in-memory stores.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"ecosweep.org/internal/changelog"
	"ecosweep.org/internal/chat"
)

type Store struct {
	db *sql.DB
}

// Open connects to Postgres via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection pool (used by tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Chat returns the durable chat message store.
func (s *Store) Chat() *ChatStore { return &ChatStore{db: s.db} }

// Changes returns the durable state-change store.
func (s *Store) Changes() *ChangeStore { return &ChangeStore{db: s.db} }

// ChatStore persists chat messages with DB-assigned per-event positions.
type ChatStore struct {
	db *sql.DB
}

var _ chat.Store = (*ChatStore)(nil)

// Append assigns the next position for the event and inserts the message in
// one transaction. The per-event counter row is the serialization point, so
// positions are gap-free and strictly increasing no matter how many writers
// race.
func (s *ChatStore) Append(ctx context.Context, msg chat.Message) (chat.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Message{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var pos uint64
	if err := tx.QueryRowContext(ctx, `
		insert into chat_positions(event_id, next) values ($1, 1)
		on conflict (event_id) do update set next = chat_positions.next + 1
		returning next - 1
	`, msg.EventID).Scan(&pos); err != nil {
		return chat.Message{}, err
	}
	msg.Position = pos

	if _, err := tx.ExecContext(ctx, `
		insert into chat_messages(id, event_id, sender_id, sender_name, content, position, sent_at)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, msg.ID, msg.EventID, msg.SenderID, msg.SenderName, msg.Content, msg.Position, msg.SentAt); err != nil {
		return chat.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return chat.Message{}, err
	}
	return msg, nil
}

func (s *ChatStore) ByEvent(ctx context.Context, eventID string) ([]chat.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, event_id, sender_id, sender_name, content, position, sent_at
		from chat_messages
		where event_id=$1
		order by position asc
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.ID, &m.EventID, &m.SenderID, &m.SenderName, &m.Content, &m.Position, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Purge drops the event's messages and its position counter.
func (s *ChatStore) Purge(ctx context.Context, eventID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from chat_messages where event_id=$1`, eventID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `delete from chat_positions where event_id=$1`, eventID); err != nil {
		return err
	}
	return tx.Commit()
}

// ChangeStore persists the append-only event state-change trail.
type ChangeStore struct {
	db *sql.DB
}

var _ changelog.Store = (*ChangeStore)(nil)

func (s *ChangeStore) Append(ctx context.Context, change changelog.StateChange) (changelog.StateChange, error) {
	_, err := s.db.ExecContext(ctx, `
		insert into event_state_changes(id, event_id, new_status, actor_id, actor_name, changed_at)
		values ($1,$2,$3,$4,$5,$6)
	`, change.ID, change.EventID, change.NewStatus, change.ActorID, change.ActorName, change.ChangedAt)
	if err != nil {
		return changelog.StateChange{}, err
	}
	return change, nil
}

// History orders by the insert sequence, not changed_at: two records in the
// same millisecond still come back in append order.
func (s *ChangeStore) History(ctx context.Context, eventID string) ([]changelog.StateChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, event_id, new_status, actor_id, actor_name, changed_at
		from event_state_changes
		where event_id=$1
		order by seq asc
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []changelog.StateChange
	for rows.Next() {
		var c changelog.StateChange
		if err := rows.Scan(&c.ID, &c.EventID, &c.NewStatus, &c.ActorID, &c.ActorName, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
