package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ecosweep.org/internal/changelog"
	"ecosweep.org/internal/domain"
	"ecosweep.org/internal/store"
	"ecosweep.org/internal/zone"
)

type fixture struct {
	events *Service
	zones  *zone.Service
	log    *changelog.Log
	zoneID string
	now    time.Time
}

var organizer = domain.Actor{ID: "org", Name: "Olive"}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	log := changelog.NewLog(changelog.NewMemoryStore(), changelog.WithClock(func() time.Time { return now }))

	var events *Service
	zones := zone.NewService(store.NewMemory[zone.Zone](),
		zone.WithClock(func() time.Time { return now }),
		zone.WithOrganizerLookup(func(ctx context.Context, eventID string) (string, error) {
			return events.OrganizerOf(ctx, eventID)
		}),
	)
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	events = NewService(store.NewMemory[Event](), zones, log, opts...)

	z, err := zones.Report(context.Background(), zone.ReportInput{
		Lat: 52.52, Lon: 13.40, Description: "litter", ReporterID: "rep",
	})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{events: events, zones: zones, log: log, zoneID: z.ID, now: now}
}

func (f *fixture) create(t *testing.T, in CreateInput) Event {
	t.Helper()
	if in.Title == "" {
		in.Title = "River cleanup"
	}
	if in.StartAt.IsZero() {
		in.StartAt = f.now.Add(time.Hour)
	}
	if in.ZoneID == "" {
		in.ZoneID = f.zoneID
	}
	if in.Organizer.ID == "" {
		in.Organizer = organizer
	}
	ev, err := f.events.Create(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestCreateLinksZoneAndRecordsPlanned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{})

	z, _ := f.zones.Get(ctx, f.zoneID)
	if z.Status != zone.StatusCleaningScheduled || z.EventID != ev.ID {
		t.Fatalf("zone not scheduled: %#v", z)
	}

	hist, _ := f.log.History(ctx, ev.ID)
	if len(hist) != 1 || hist[0].NewStatus != string(StatusPlanned) || hist[0].ActorID != "org" {
		t.Fatalf("unexpected history: %#v", hist)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []CreateInput{
		{Title: " ", StartAt: f.now, ZoneID: f.zoneID, Organizer: organizer},
		{Title: "x", ZoneID: f.zoneID, Organizer: organizer},
		{Title: "x", StartAt: f.now.Add(2 * time.Hour), EndAt: f.now.Add(time.Hour), ZoneID: f.zoneID, Organizer: organizer},
		{Title: "x", StartAt: f.now, ZoneID: f.zoneID, MaxParticipants: -1, Organizer: organizer},
	}
	for i, in := range cases {
		if _, err := f.events.Create(ctx, in); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("case %d: expected InvalidInput, got %v", i, err)
		}
	}
}

func TestCreateAgainstTakenZoneFails(t *testing.T) {
	f := newFixture(t)
	f.create(t, CreateInput{})

	_, err := f.events.Create(context.Background(), CreateInput{
		Title: "Second", StartAt: f.now.Add(time.Hour), ZoneID: f.zoneID, Organizer: organizer,
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPlanned, StatusInProgress, true},
		{StatusPlanned, StatusCancelled, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusPlanned, StatusCompleted, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCancelled, StatusPlanned, false},
		{StatusInProgress, StatusPlanned, false},
		{StatusPlanned, StatusPlanned, false},
	}
	for _, c := range cases {
		if got := ValidTransition(c.from, c.to); got != c.ok {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.ok)
		}
	}
}

func TestJoinLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{})

	if _, err := f.events.Join(ctx, ev.ID, "org"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("organizer join should conflict, got %v", err)
	}
	if _, err := f.events.Join(ctx, ev.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.events.Join(ctx, ev.ID, "u1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate join should conflict, got %v", err)
	}
	if _, err := f.events.Leave(ctx, ev.ID, "u2"); !errors.Is(err, domain.ErrNotRegistered) {
		t.Fatalf("expected NotRegistered, got %v", err)
	}
	got, err := f.events.Leave(ctx, ev.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.ParticipantIDs) != 0 {
		t.Fatalf("participant set not empty: %#v", got.Participants())
	}
	if _, err := f.events.Join(ctx, "missing", "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestConcurrentJoinRespectsCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{MaxParticipants: 1})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, uid := range []string{"u1", "u2"} {
		wg.Add(1)
		go func(i int, uid string) {
			defer wg.Done()
			_, errs[i] = f.events.Join(ctx, ev.ID, uid)
		}(i, uid)
	}
	wg.Wait()

	var ok, full int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrCapacityExceeded):
			full++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || full != 1 {
		t.Fatalf("expected exactly one success and one CapacityExceeded, got ok=%d full=%d", ok, full)
	}
	got, _ := f.events.Get(ctx, ev.ID)
	if len(got.ParticipantIDs) != 1 {
		t.Fatalf("participant count = %d, want 1", len(got.ParticipantIDs))
	}
}

func TestStartLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{StartAt: f.now.Add(-time.Minute)})

	got, err := f.events.Start(ctx, ev.ID, domain.SystemActor)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", got.Status)
	}

	hist, _ := f.log.History(ctx, ev.ID)
	if len(hist) != 2 || hist[1].NewStatus != string(StatusInProgress) || hist[1].ActorID != "system" {
		t.Fatalf("unexpected history: %#v", hist)
	}

	// Second start must fail and leave state unchanged.
	if _, err := f.events.Start(ctx, ev.ID, domain.SystemActor); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
	if hist, _ = f.log.History(ctx, ev.ID); len(hist) != 2 {
		t.Fatalf("failed transition appended a record: %d", len(hist))
	}
}

func TestStartBeforeStartTimeFails(t *testing.T) {
	f := newFixture(t)
	ev := f.create(t, CreateInput{StartAt: f.now.Add(time.Hour)})

	if _, err := f.events.Start(context.Background(), ev.ID, domain.SystemActor); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected InvalidState before start time, got %v", err)
	}
}

func TestCompleteOpensConfirmationWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{StartAt: f.now.Add(-time.Minute)})
	_, _ = f.events.Start(ctx, ev.ID, domain.SystemActor)

	if _, err := f.events.Complete(ctx, ev.ID, domain.Actor{ID: "intruder"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	got, err := f.events.Complete(ctx, ev.ID, organizer)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}

	z, _ := f.zones.Get(ctx, f.zoneID)
	if z.ConfirmationDeadline.IsZero() {
		t.Fatal("confirmation window not opened")
	}
	if want := f.now.Add(defaultConfirmWindow); !z.ConfirmationDeadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v", z.ConfirmationDeadline, want)
	}
}

func TestCancelReleasesZone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{})

	got, err := f.events.Cancel(ctx, ev.ID, organizer)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", got.Status)
	}
	z, _ := f.zones.Get(ctx, f.zoneID)
	if z.Status != zone.StatusReported || z.EventID != "" {
		t.Fatalf("zone not released: %#v", z)
	}

	// Terminal: no way forward or back.
	if _, err := f.events.Start(ctx, ev.ID, domain.SystemActor); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Fatalf("expected InvalidStateTransition, got %v", err)
	}
}

func TestTransferWorkflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{})
	_, _ = f.events.Join(ctx, ev.ID, "u1")
	_, _ = f.events.Join(ctx, ev.ID, "u2")

	if _, err := f.events.InitiateTransfer(ctx, ev.ID, "u1", "u2"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-organizer initiation should be Forbidden, got %v", err)
	}
	if _, err := f.events.InitiateTransfer(ctx, ev.ID, "org", "stranger"); !errors.Is(err, domain.ErrNotRegistered) {
		t.Fatalf("non-participant nominee should be NotRegistered, got %v", err)
	}

	got, err := f.events.InitiateTransfer(ctx, ev.ID, "org", "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PendingOrganizerID != "u1" || got.TransferRequestedAt.IsZero() {
		t.Fatalf("transfer not pending: %#v", got)
	}
	if _, err := f.events.InitiateTransfer(ctx, ev.ID, "org", "u2"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second proposal should conflict, got %v", err)
	}

	if _, err := f.events.RespondToTransfer(ctx, ev.ID, "u2", true); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("non-nominee response should be Forbidden, got %v", err)
	}

	got, err = f.events.RespondToTransfer(ctx, ev.ID, "u1", true)
	if err != nil {
		t.Fatal(err)
	}
	if got.OrganizerID != "u1" {
		t.Fatalf("organizer = %s, want u1", got.OrganizerID)
	}
	if got.IsParticipant("u1") {
		t.Fatal("new organizer still in participant set")
	}
	if !got.IsParticipant("org") {
		t.Fatal("previous organizer not moved to participants")
	}
	if got.PendingOrganizerID != "" || !got.TransferRequestedAt.IsZero() {
		t.Fatalf("pending fields not cleared: %#v", got)
	}
}

func TestTransferDecline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{})
	_, _ = f.events.Join(ctx, ev.ID, "u1")
	_, _ = f.events.InitiateTransfer(ctx, ev.ID, "org", "u1")

	got, err := f.events.RespondToTransfer(ctx, ev.ID, "u1", false)
	if err != nil {
		t.Fatal(err)
	}
	if got.OrganizerID != "org" || got.PendingOrganizerID != "" {
		t.Fatalf("decline must only clear the proposal: %#v", got)
	}
	if !got.IsParticipant("u1") {
		t.Fatal("nominee dropped from participants on decline")
	}
}

func TestNomineeLeavingWithdrawsTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{})
	_, _ = f.events.Join(ctx, ev.ID, "u1")
	_, _ = f.events.InitiateTransfer(ctx, ev.ID, "org", "u1")

	got, err := f.events.Leave(ctx, ev.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.PendingOrganizerID != "" {
		t.Fatalf("pending transfer survived nominee leaving: %#v", got)
	}
}

type recordingPurger struct {
	mu     sync.Mutex
	purged []string
}

func (p *recordingPurger) Purge(ctx context.Context, eventID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.purged = append(p.purged, eventID)
	return nil
}

func TestDeleteCascade(t *testing.T) {
	purger := &recordingPurger{}
	f := newFixture(t, WithChatPurger(purger))
	ctx := context.Background()
	ev := f.create(t, CreateInput{})

	if err := f.events.Delete(ctx, ev.ID, "intruder"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}

	if err := f.events.Delete(ctx, ev.ID, "org"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.events.Get(ctx, ev.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("event still present after delete")
	}
	z, _ := f.zones.Get(ctx, f.zoneID)
	if z.EventID != "" || z.Status != zone.StatusReported {
		t.Fatalf("zone not detached by cascade: %#v", z)
	}
	if len(purger.purged) != 1 || purger.purged[0] != ev.ID {
		t.Fatalf("chat history not purged: %#v", purger.purged)
	}
}

func TestDeleteInProgressFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{StartAt: f.now.Add(-time.Minute)})
	_, _ = f.events.Start(ctx, ev.ID, domain.SystemActor)

	if err := f.events.Delete(ctx, ev.ID, "org"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected InvalidState, got %v", err)
	}
}

func TestDeleteDuringConfirmationFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{StartAt: f.now.Add(-time.Minute)})
	_, _ = f.events.Start(ctx, ev.ID, domain.SystemActor)
	_, _ = f.events.Complete(ctx, ev.ID, organizer)

	if err := f.events.Delete(ctx, ev.ID, "org"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected InvalidState while confirmation pending, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ev := f.create(t, CreateInput{})
	_, _ = f.events.Join(ctx, ev.ID, "u1")

	byStatus, _ := f.events.List(ctx, Filter{Status: StatusPlanned})
	if len(byStatus) != 1 {
		t.Fatalf("by status: %d", len(byStatus))
	}
	byParticipant, _ := f.events.List(ctx, Filter{ParticipantID: "u1"})
	if len(byParticipant) != 1 {
		t.Fatalf("by participant: %d", len(byParticipant))
	}
	byZone, _ := f.events.List(ctx, Filter{ZoneID: f.zoneID})
	if len(byZone) != 1 {
		t.Fatalf("by zone: %d", len(byZone))
	}
	none, _ := f.events.List(ctx, Filter{OrganizerID: "nobody"})
	if len(none) != 0 {
		t.Fatalf("by unknown organizer: %d", len(none))
	}
}

func TestDueForStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := f.create(t, CreateInput{StartAt: f.now.Add(-time.Minute)})

	got, err := f.events.DueForStart(ctx, f.now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Fatalf("unexpected due set: %#v", got)
	}
}

type failingChangeStore struct {
	fail bool
	mem  *changelog.MemoryStore
}

func (s *failingChangeStore) Append(ctx context.Context, c changelog.StateChange) (changelog.StateChange, error) {
	if s.fail {
		return changelog.StateChange{}, errors.New("storage unavailable")
	}
	return s.mem.Append(ctx, c)
}

func (s *failingChangeStore) History(ctx context.Context, eventID string) ([]changelog.StateChange, error) {
	return s.mem.History(ctx, eventID)
}

func TestAuditFailureRollsBackTransition(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	failing := &failingChangeStore{mem: changelog.NewMemoryStore()}
	log := changelog.NewLog(failing)

	var events *Service
	zones := zone.NewService(store.NewMemory[zone.Zone](),
		zone.WithClock(func() time.Time { return now }),
		zone.WithOrganizerLookup(func(ctx context.Context, eventID string) (string, error) {
			return events.OrganizerOf(ctx, eventID)
		}),
	)
	events = NewService(store.NewMemory[Event](), zones, log, WithClock(func() time.Time { return now }))

	ctx := context.Background()
	z, _ := zones.Report(ctx, zone.ReportInput{Lat: 0, Lon: 0, Description: "x", ReporterID: "rep"})
	ev, err := events.Create(ctx, CreateInput{
		Title: "x", StartAt: now.Add(-time.Minute), ZoneID: z.ID, Organizer: organizer,
	})
	if err != nil {
		t.Fatal(err)
	}

	failing.fail = true
	if _, err := events.Start(ctx, ev.ID, domain.SystemActor); err == nil {
		t.Fatal("expected error when audit append fails")
	}
	got, _ := events.Get(ctx, ev.ID)
	if got.Status != StatusPlanned {
		t.Fatalf("transition not rolled back: %s", got.Status)
	}

	// Once the store recovers the transition succeeds normally.
	failing.fail = false
	if _, err := events.Start(ctx, ev.ID, domain.SystemActor); err != nil {
		t.Fatal(err)
	}
}
