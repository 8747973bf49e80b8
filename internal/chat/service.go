package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ecosweep.org/internal/domain"
	"ecosweep.org/internal/event"
	"ecosweep.org/internal/ids"
	"ecosweep.org/internal/obs"
)

const maxContentLen = 2000

// EventSource is the read-only view of events the chat needs for
// authorization and state checks.
type EventSource interface {
	Get(ctx context.Context, id string) (event.Event, error)
}

// Service persists messages and feeds the fan-out.
type Service struct {
	store  Store
	events EventSource
	fanout *Fanout
	now    func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the chat service.
func NewService(store Store, events EventSource, fanout *Fanout, opts ...Option) *Service {
	s := &Service{store: store, events: events, fanout: fanout, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Post persists a message and broadcasts it. Only the organizer or a current
// participant may post, and only while the event is open.
func (s *Service) Post(ctx context.Context, eventID string, sender domain.Actor, content string) (Message, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxContentLen {
		return Message{}, fmt.Errorf("%w: content must be 1-%d characters", domain.ErrInvalidInput, maxContentLen)
	}
	ev, err := s.events.Get(ctx, eventID)
	if err != nil {
		return Message{}, err
	}
	if ev.Closed() {
		return Message{}, fmt.Errorf("%w: chat is closed for %s events", domain.ErrInvalidState, ev.Status)
	}
	if !ev.IsMember(sender.ID) {
		return Message{}, fmt.Errorf("%w: only members may post", domain.ErrForbidden)
	}
	return s.append(ctx, eventID, sender, content)
}

// PostSystem persists and broadcasts a system notice. System notices bypass
// the membership and open-state checks so transition announcements (start,
// completion, cancellation) still land in the history.
func (s *Service) PostSystem(ctx context.Context, eventID, content string) error {
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return err
	}
	_, err := s.append(ctx, eventID, domain.SystemActor, content)
	return err
}

func (s *Service) append(ctx context.Context, eventID string, sender domain.Actor, content string) (Message, error) {
	msg := Message{
		ID:         ids.New(),
		EventID:    eventID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		Content:    content,
		SentAt:     s.now().UTC(),
	}
	stored, err := s.store.Append(ctx, msg)
	if err != nil {
		return Message{}, err
	}
	// Persisted first, broadcast second: history is always a superset of
	// anything ever delivered live.
	s.fanout.Publish(stored)
	obs.ChatMessage()
	return stored, nil
}

// History returns the event's messages ordered by position ascending.
func (s *Service) History(ctx context.Context, eventID string) ([]Message, error) {
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ByEvent(ctx, eventID)
}

// Subscribe registers a live subscriber for the event's messages.
func (s *Service) Subscribe(ctx context.Context, eventID string) (<-chan Message, error) {
	if _, err := s.events.Get(ctx, eventID); err != nil {
		return nil, err
	}
	return s.fanout.Subscribe(ctx, eventID), nil
}

// Purge drops the event's chat history. Called by the event-deletion
// cascade.
func (s *Service) Purge(ctx context.Context, eventID string) error {
	return s.store.Purge(ctx, eventID)
}
