// Package changelog is the append-only audit trail of event status
// transitions. Records are immutable by contract: there is no update or
// delete operation, and history survives event deletion.
package changelog

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"ecosweep.org/internal/domain"
	"ecosweep.org/internal/ids"
	"ecosweep.org/internal/obs"
)

// StateChange is one recorded event status transition.
type StateChange struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	NewStatus string    `json:"new_status"`
	ActorID   string    `json:"actor_id"`
	ActorName string    `json:"actor_name"`
	ChangedAt time.Time `json:"changed_at"`
}

// Store persists state changes. Implementations: MemoryStore here and the
// Postgres-backed store in internal/store/pg.
type Store interface {
	Append(ctx context.Context, change StateChange) (StateChange, error)
	History(ctx context.Context, eventID string) ([]StateChange, error)
}

// MemoryStore keeps the trail in process, append-only.
type MemoryStore struct {
	mu      sync.RWMutex
	records []StateChange
}

// NewMemoryStore creates an empty trail.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(ctx context.Context, change StateChange) (StateChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, change)
	return change, nil
}

func (s *MemoryStore) History(ctx context.Context, eventID string) ([]StateChange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StateChange
	for _, rec := range s.records {
		if rec.EventID == eventID {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangedAt.Before(out[j].ChangedAt) })
	return out, nil
}

// Log records transitions into the store and mirrors each one as a
// structured audit log line.
type Log struct {
	store Store
	now   func() time.Time
}

// Option configures Log.
type Option func(*Log)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Log) {
		if fn != nil {
			l.now = fn
		}
	}
}

// NewLog constructs the audit log on top of the given store.
func NewLog(store Store, opts ...Option) *Log {
	l := &Log{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record appends one transition record. It only fails when the backing store
// is unavailable.
func (l *Log) Record(ctx context.Context, eventID, newStatus string, actor domain.Actor) (StateChange, error) {
	change := StateChange{
		ID:        ids.New(),
		EventID:   eventID,
		NewStatus: newStatus,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		ChangedAt: l.now().UTC(),
	}
	rec, err := l.store.Append(ctx, change)
	if err != nil {
		return StateChange{}, err
	}
	emit(rec)
	return rec, nil
}

// History returns the trail for one event ordered by change time ascending.
func (l *Log) History(ctx context.Context, eventID string) ([]StateChange, error) {
	return l.store.History(ctx, eventID)
}

func emit(rec StateChange) {
	entry := map[string]any{
		"ts":    rec.ChangedAt.Format(time.RFC3339Nano),
		"type":  "audit",
		"event": "event.status.change",
		"fields": map[string]any{
			"event_id":   rec.EventID,
			"new_status": rec.NewStatus,
			"actor_id":   rec.ActorID,
			"actor_name": rec.ActorName,
		},
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}
