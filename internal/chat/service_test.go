package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"ecosweep.org/internal/domain"
	"ecosweep.org/internal/event"
)

type stubEvents struct {
	mu     sync.Mutex
	events map[string]event.Event
}

func (s *stubEvents) Get(ctx context.Context, id string) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return event.Event{}, fmt.Errorf("%w: event %s", domain.ErrNotFound, id)
	}
	return ev.Clone(), nil
}

func (s *stubEvents) set(ev event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
}

func newStubEvents() *stubEvents {
	return &stubEvents{events: map[string]event.Event{}}
}

func openEvent(id string) event.Event {
	return event.Event{
		ID:          id,
		OrganizerID: "org",
		Status:      event.StatusInProgress,
		ParticipantIDs: map[string]struct{}{
			"u1": {},
		},
	}
}

var alice = domain.Actor{ID: "u1", Name: "Alice"}

func TestPostAndHistory(t *testing.T) {
	events := newStubEvents()
	events.set(openEvent("ev1"))
	svc := NewService(NewMemoryStore(), events, NewFanout())
	ctx := context.Background()

	first, err := svc.Post(ctx, "ev1", alice, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if first.Position != 0 || first.SenderName != "Alice" {
		t.Fatalf("unexpected message: %#v", first)
	}
	second, _ := svc.Post(ctx, "ev1", domain.Actor{ID: "org", Name: "Olive"}, "hi")
	if second.Position != 1 {
		t.Fatalf("position = %d, want 1", second.Position)
	}

	hist, err := svc.History(ctx, "ev1")
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].Content != "hello" || hist[1].Content != "hi" {
		t.Fatalf("unexpected history: %#v", hist)
	}
}

func TestPostAuthorization(t *testing.T) {
	events := newStubEvents()
	events.set(openEvent("ev1"))
	svc := NewService(NewMemoryStore(), events, NewFanout())
	ctx := context.Background()

	if _, err := svc.Post(ctx, "missing", alice, "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := svc.Post(ctx, "ev1", domain.Actor{ID: "stranger"}, "x"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if _, err := svc.Post(ctx, "ev1", alice, "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestPostRejectedOnClosedEvent(t *testing.T) {
	events := newStubEvents()
	svc := NewService(NewMemoryStore(), events, NewFanout())
	ctx := context.Background()

	for _, status := range []event.Status{event.StatusCompleted, event.StatusCancelled} {
		ev := openEvent("ev1")
		ev.Status = status
		events.set(ev)
		if _, err := svc.Post(ctx, "ev1", alice, "x"); !errors.Is(err, domain.ErrInvalidState) {
			t.Fatalf("status %s: expected InvalidState, got %v", status, err)
		}
	}
}

func TestPostSystemBypassesChecks(t *testing.T) {
	events := newStubEvents()
	ev := openEvent("ev1")
	ev.Status = event.StatusCompleted
	events.set(ev)
	svc := NewService(NewMemoryStore(), events, NewFanout())
	ctx := context.Background()

	if err := svc.PostSystem(ctx, "ev1", "Cleanup completed."); err != nil {
		t.Fatal(err)
	}
	hist, _ := svc.History(ctx, "ev1")
	if len(hist) != 1 || hist[0].SenderID != domain.SystemActor.ID {
		t.Fatalf("unexpected history: %#v", hist)
	}
	if err := svc.PostSystem(ctx, "missing", "x"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestConcurrentPostsAreGapFree(t *testing.T) {
	events := newStubEvents()
	events.set(openEvent("ev1"))
	svc := NewService(NewMemoryStore(), events, NewFanout())
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Post(ctx, "ev1", alice, fmt.Sprintf("msg %d", i)); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	hist, _ := svc.History(ctx, "ev1")
	if len(hist) != n {
		t.Fatalf("history length = %d, want %d", len(hist), n)
	}
	for i, msg := range hist {
		if msg.Position != uint64(i) {
			t.Fatalf("position at index %d = %d; sequence has a gap or duplicate", i, msg.Position)
		}
	}
}

func TestPurge(t *testing.T) {
	events := newStubEvents()
	events.set(openEvent("ev1"))
	svc := NewService(NewMemoryStore(), events, NewFanout())
	ctx := context.Background()

	_, _ = svc.Post(ctx, "ev1", alice, "hello")
	if err := svc.Purge(ctx, "ev1"); err != nil {
		t.Fatal(err)
	}
	hist, _ := svc.History(ctx, "ev1")
	if len(hist) != 0 {
		t.Fatalf("history not purged: %#v", hist)
	}
}
