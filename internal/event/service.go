package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecosweep.org/internal/changelog"
	"ecosweep.org/internal/domain"
	"ecosweep.org/internal/obs"
	"ecosweep.org/internal/store"
	"ecosweep.org/internal/zone"
)

const defaultConfirmWindow = 48 * time.Hour

// ChatPurger removes an event's chat history during the deletion cascade.
type ChatPurger interface {
	Purge(ctx context.Context, eventID string) error
}

// Announcer posts a system chat notice for chat-relevant transitions.
// Announcement failures are logged, never propagated: the broadcast is
// best-effort while the transition itself is durable.
type Announcer interface {
	PostSystem(ctx context.Context, eventID, content string) error
}

// Service implements the event lifecycle.
type Service struct {
	events *store.Memory[Event]
	zones  *zone.Service
	log    *changelog.Log

	chat     ChatPurger
	announce Announcer

	confirmWindow time.Duration
	now           func() time.Time
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

// WithChatPurger wires the chat-history purge used by the deletion cascade.
func WithChatPurger(p ChatPurger) Option {
	return func(s *Service) { s.chat = p }
}

// WithAnnouncer wires system chat notices for transitions.
func WithAnnouncer(a Announcer) Option {
	return func(s *Service) { s.announce = a }
}

// WithConfirmWindow overrides how long the organizer has to confirm zone
// cleanliness after completion.
func WithConfirmWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.confirmWindow = d
		}
	}
}

// NewService constructs the event service.
func NewService(events *store.Memory[Event], zones *zone.Service, log *changelog.Log, opts ...Option) *Service {
	s := &Service{
		events:        events,
		zones:         zones,
		log:           log,
		confirmWindow: defaultConfirmWindow,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput describes a new cleanup event.
type CreateInput struct {
	Title           string
	Description     string
	StartAt         time.Time
	EndAt           time.Time
	ZoneID          string
	Organizer       domain.Actor
	MaxParticipants int
}

// Create registers a PLANNED event against a zone. The zone moves to
// CLEANING_SCHEDULED as part of the same operation; if linking fails the
// event is removed again.
func (s *Service) Create(ctx context.Context, in CreateInput) (Event, error) {
	if strings.TrimSpace(in.Title) == "" {
		return Event{}, fmt.Errorf("%w: title is required", domain.ErrInvalidInput)
	}
	if in.StartAt.IsZero() {
		return Event{}, fmt.Errorf("%w: start time is required", domain.ErrInvalidInput)
	}
	if !in.EndAt.IsZero() && !in.StartAt.Before(in.EndAt) {
		return Event{}, fmt.Errorf("%w: start must precede end", domain.ErrInvalidInput)
	}
	if in.MaxParticipants < 0 {
		return Event{}, fmt.Errorf("%w: max participants must be positive", domain.ErrInvalidInput)
	}
	if in.Organizer.ID == "" {
		return Event{}, fmt.Errorf("%w: organizer is required", domain.ErrInvalidInput)
	}

	now := s.now().UTC()
	ev := Event{
		ID:              store.NewID(),
		Title:           strings.TrimSpace(in.Title),
		Description:     strings.TrimSpace(in.Description),
		StartAt:         in.StartAt.UTC(),
		ZoneID:          in.ZoneID,
		OrganizerID:     in.Organizer.ID,
		Status:          StatusPlanned,
		MaxParticipants: in.MaxParticipants,
		ParticipantIDs:  map[string]struct{}{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !in.EndAt.IsZero() {
		ev.EndAt = in.EndAt.UTC()
	}

	if _, err := s.events.Create(ctx, ev); err != nil {
		return Event{}, err
	}
	if _, err := s.zones.Schedule(ctx, in.ZoneID, ev.ID); err != nil {
		_ = s.events.Delete(ctx, ev.ID)
		return Event{}, err
	}
	if _, err := s.log.Record(ctx, ev.ID, string(StatusPlanned), in.Organizer); err != nil {
		_, _ = s.zones.Detach(ctx, in.ZoneID, ev.ID)
		_ = s.events.Delete(ctx, ev.ID)
		return Event{}, err
	}
	return ev, nil
}

// Get returns the event with the given id.
func (s *Service) Get(ctx context.Context, id string) (Event, error) {
	ev, err := s.events.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Event{}, fmt.Errorf("%w: event %s", domain.ErrNotFound, id)
	}
	return ev, err
}

// OrganizerOf resolves the current organizer of an event.
func (s *Service) OrganizerOf(ctx context.Context, id string) (string, error) {
	ev, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return ev.OrganizerID, nil
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Status        Status
	OrganizerID   string
	ParticipantID string
	ZoneID        string
}

// List returns events matching the filter.
func (s *Service) List(ctx context.Context, f Filter) ([]Event, error) {
	return s.events.Find(ctx, func(e Event) bool {
		if f.Status != "" && e.Status != f.Status {
			return false
		}
		if f.OrganizerID != "" && e.OrganizerID != f.OrganizerID {
			return false
		}
		if f.ParticipantID != "" && !e.IsParticipant(f.ParticipantID) {
			return false
		}
		if f.ZoneID != "" && e.ZoneID != f.ZoneID {
			return false
		}
		return true
	})
}

// DueForStart returns PLANNED events whose start time has passed.
func (s *Service) DueForStart(ctx context.Context, now time.Time) ([]Event, error) {
	return s.events.Find(ctx, func(e Event) bool {
		return e.Status == StatusPlanned && !e.StartAt.After(now)
	})
}

// Join registers a user as participant. The capacity check runs inside the
// store's critical section, so concurrent joins cannot jointly exceed the
// cap.
func (s *Service) Join(ctx context.Context, eventID, userID string) (Event, error) {
	return s.update(ctx, eventID, func(e Event) (Event, error) {
		if e.Closed() {
			return e, fmt.Errorf("%w: event is %s", domain.ErrInvalidState, e.Status)
		}
		if e.OrganizerID == userID {
			return e, fmt.Errorf("%w: organizer is already a member", domain.ErrConflict)
		}
		if e.IsParticipant(userID) {
			return e, fmt.Errorf("%w: already joined", domain.ErrConflict)
		}
		if e.MaxParticipants > 0 && len(e.ParticipantIDs) >= e.MaxParticipants {
			return e, fmt.Errorf("%w: event is full", domain.ErrCapacityExceeded)
		}
		e.ParticipantIDs[userID] = struct{}{}
		return e, nil
	})
}

// Leave removes a user from the participant set.
func (s *Service) Leave(ctx context.Context, eventID, userID string) (Event, error) {
	return s.update(ctx, eventID, func(e Event) (Event, error) {
		if !e.IsParticipant(userID) {
			return e, fmt.Errorf("%w: not a participant", domain.ErrNotRegistered)
		}
		delete(e.ParticipantIDs, userID)
		if e.PendingOrganizerID == userID {
			// Leaving withdraws the nominee from a pending transfer.
			e.PendingOrganizerID = ""
			e.TransferRequestedAt = time.Time{}
		}
		return e, nil
	})
}

// Start moves a PLANNED event to IN_PROGRESS once its start time has passed.
// Driven by the scheduler with the system actor; re-validates status so a
// repeated sweep is a no-op.
func (s *Service) Start(ctx context.Context, eventID string, actor domain.Actor) (Event, error) {
	now := s.now().UTC()
	return s.transition(ctx, eventID, StatusInProgress, actor, func(e Event) error {
		if e.StartAt.After(now) {
			return fmt.Errorf("%w: event has not reached its start time", domain.ErrInvalidState)
		}
		return nil
	}, "Cleanup has started. Good luck out there!")
}

// Complete marks an IN_PROGRESS event done and opens the zone's cleanliness
// confirmation window.
func (s *Service) Complete(ctx context.Context, eventID string, actor domain.Actor) (Event, error) {
	ev, err := s.transition(ctx, eventID, StatusCompleted, actor, s.organizerOnly(actor),
		"Cleanup completed. The organizer will confirm the zone's state.")
	if err != nil {
		return Event{}, err
	}
	deadline := s.now().UTC().Add(s.confirmWindow)
	if _, err := s.zones.BeginConfirmation(ctx, ev.ZoneID, ev.ID, deadline); err != nil {
		// The transition stays durable; the scheduler cannot resolve a
		// window that never opened, so surface this loudly.
		obs.LogError("open confirmation window", map[string]any{
			"event_id": ev.ID, "zone_id": ev.ZoneID, "error": err.Error(),
		})
	}
	return ev, nil
}

// Cancel aborts a PLANNED or IN_PROGRESS event and releases its zone for a
// new cleanup.
func (s *Service) Cancel(ctx context.Context, eventID string, actor domain.Actor) (Event, error) {
	ev, err := s.transition(ctx, eventID, StatusCancelled, actor, s.organizerOnly(actor),
		"The event was cancelled by the organizer.")
	if err != nil {
		return Event{}, err
	}
	if _, err := s.zones.Detach(ctx, ev.ZoneID, ev.ID); err != nil {
		obs.LogError("detach zone after cancel", map[string]any{
			"event_id": ev.ID, "zone_id": ev.ZoneID, "error": err.Error(),
		})
	}
	return ev, nil
}

// InitiateTransfer proposes handing the event to a current participant. Only
// one proposal may be pending at a time.
func (s *Service) InitiateTransfer(ctx context.Context, eventID, organizerID, nomineeID string) (Event, error) {
	now := s.now().UTC()
	return s.update(ctx, eventID, func(e Event) (Event, error) {
		if e.OrganizerID != organizerID {
			return e, fmt.Errorf("%w: only the organizer may transfer ownership", domain.ErrForbidden)
		}
		if e.PendingOrganizerID != "" {
			return e, fmt.Errorf("%w: a transfer is already pending", domain.ErrConflict)
		}
		if !e.IsParticipant(nomineeID) {
			return e, fmt.Errorf("%w: nominee is not a participant", domain.ErrNotRegistered)
		}
		e.PendingOrganizerID = nomineeID
		e.TransferRequestedAt = now
		return e, nil
	})
}

// RespondToTransfer lets the pending nominee accept or decline. On accept
// the nominee becomes organizer and the previous organizer joins the
// participant set; on decline only the proposal is cleared.
func (s *Service) RespondToTransfer(ctx context.Context, eventID, responderID string, accepted bool) (Event, error) {
	return s.update(ctx, eventID, func(e Event) (Event, error) {
		if e.PendingOrganizerID == "" {
			return e, fmt.Errorf("%w: no transfer is pending", domain.ErrInvalidState)
		}
		if e.PendingOrganizerID != responderID {
			return e, fmt.Errorf("%w: only the nominated user may respond", domain.ErrForbidden)
		}
		if accepted {
			previous := e.OrganizerID
			e.OrganizerID = responderID
			delete(e.ParticipantIDs, responderID)
			e.ParticipantIDs[previous] = struct{}{}
		}
		e.PendingOrganizerID = ""
		e.TransferRequestedAt = time.Time{}
		return e, nil
	})
}

// Delete removes an event. Only the organizer may delete, never while the
// event runs or while its zone awaits a cleanliness confirmation. The
// cascade detaches the zone and purges the chat history; the audit trail is
// immutable and stays.
func (s *Service) Delete(ctx context.Context, eventID, actorID string) error {
	ev, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if ev.OrganizerID != actorID {
		return fmt.Errorf("%w: only the organizer may delete the event", domain.ErrForbidden)
	}
	if ev.Status == StatusInProgress {
		return fmt.Errorf("%w: event is in progress", domain.ErrInvalidState)
	}
	if ev.ZoneID != "" {
		z, err := s.zones.Get(ctx, ev.ZoneID)
		if err == nil && z.AwaitingConfirmation(s.now().UTC()) {
			return fmt.Errorf("%w: zone confirmation is pending", domain.ErrInvalidState)
		}
		if err == nil && z.EventID == ev.ID {
			if _, err := s.zones.Detach(ctx, ev.ZoneID, ev.ID); err != nil {
				return err
			}
		}
	}
	if s.chat != nil {
		if err := s.chat.Purge(ctx, eventID); err != nil {
			return err
		}
	}
	if err := s.events.Delete(ctx, eventID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
		}
		return err
	}
	return nil
}

// organizerOnly gates a transition on the acting user being the organizer.
// The system actor bypasses the check.
func (s *Service) organizerOnly(actor domain.Actor) func(Event) error {
	return func(e Event) error {
		if actor.IsSystem() || e.OrganizerID == actor.ID {
			return nil
		}
		return fmt.Errorf("%w: organizer-only action", domain.ErrForbidden)
	}
}

// transition applies one state-machine move and appends the audit record. If
// the append fails the status change is rolled back, so a transition is
// never observable without its audit record.
func (s *Service) transition(ctx context.Context, eventID string, to Status, actor domain.Actor, guard func(Event) error, notice string) (Event, error) {
	var from Status
	ev, err := s.update(ctx, eventID, func(e Event) (Event, error) {
		if guard != nil {
			if err := guard(e); err != nil {
				return e, err
			}
		}
		if !ValidTransition(e.Status, to) {
			return e, fmt.Errorf("%w: event %s -> %s", domain.ErrInvalidStateTransition, e.Status, to)
		}
		from = e.Status
		e.Status = to
		return e, nil
	})
	if err != nil {
		return Event{}, err
	}

	if _, err := s.log.Record(ctx, eventID, string(to), actor); err != nil {
		_, rollbackErr := s.update(ctx, eventID, func(e Event) (Event, error) {
			if e.Status == to {
				e.Status = from
			}
			return e, nil
		})
		if rollbackErr != nil {
			obs.LogError("rollback after audit failure", map[string]any{
				"event_id": eventID, "error": rollbackErr.Error(),
			})
		}
		return Event{}, fmt.Errorf("record transition: %w", err)
	}

	kind := "user"
	if actor.IsSystem() {
		kind = "system"
	}
	obs.EventTransition(string(to), kind)

	if s.announce != nil && notice != "" {
		if err := s.announce.PostSystem(ctx, eventID, notice); err != nil {
			obs.LogError("post system notice", map[string]any{
				"event_id": eventID, "error": err.Error(),
			})
		}
	}
	return ev, nil
}

// update wraps store.Update, translating the store sentinel and bumping the
// UpdatedAt timestamp on success.
func (s *Service) update(ctx context.Context, eventID string, mutate func(Event) (Event, error)) (Event, error) {
	ev, err := s.events.Update(ctx, eventID, func(e Event) (Event, error) {
		next, err := mutate(e)
		if err != nil {
			return e, err
		}
		next.UpdatedAt = s.now().UTC()
		return next, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return Event{}, fmt.Errorf("%w: event %s", domain.ErrNotFound, eventID)
	}
	return ev, err
}
