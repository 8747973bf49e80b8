// Package scheduler runs the periodic lifecycle sweeps: auto-starting
// events whose scheduled time has arrived and expiring cleanliness
// confirmation windows that were never answered.
package scheduler

import (
	"context"
	"time"

	"ecosweep.org/internal/domain"
	"ecosweep.org/internal/event"
	"ecosweep.org/internal/obs"
	"ecosweep.org/internal/zone"
)

// DefaultInterval is how often sweeps run unless overridden.
const DefaultInterval = 30 * time.Second

// Scheduler drives time-based transitions on behalf of the system actor.
type Scheduler struct {
	events   *event.Service
	zones    *zone.Service
	interval time.Duration
	now      func() time.Time
}

// Option configures Scheduler.
type Option func(*Scheduler)

// WithInterval overrides the sweep cadence.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New constructs a scheduler over the event and zone services.
func New(events *event.Service, zones *zone.Service, opts ...Option) *Scheduler {
	s := &Scheduler{
		events:   events,
		zones:    zones,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ticks until the context ends. Each tick runs both sweeps; failures on
// individual items are logged and counted, never fatal, so one broken record
// cannot stall the rest of the sweep.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one pass of both sweeps at the current time. Exported so a tick
// can be driven directly in tests and admin tooling.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()
	s.startDueEvents(ctx, now)
	s.expireConfirmations(ctx, now)
}

func (s *Scheduler) startDueEvents(ctx context.Context, now time.Time) {
	due, err := s.events.DueForStart(ctx, now)
	if err != nil {
		obs.SweepFailure("start_due_events")
		obs.LogError("scheduler: listing due events", map[string]any{"error": err.Error()})
		return
	}
	for _, ev := range due {
		if _, err := s.events.Start(ctx, ev.ID, domain.SystemActor); err != nil {
			obs.SweepFailure("start_due_events")
			obs.LogError("scheduler: auto-start failed", map[string]any{
				"event_id": ev.ID,
				"error":    err.Error(),
			})
		}
	}
}

func (s *Scheduler) expireConfirmations(ctx context.Context, now time.Time) {
	expired, err := s.zones.ConfirmationExpired(ctx, now)
	if err != nil {
		obs.SweepFailure("expire_confirmations")
		obs.LogError("scheduler: listing expired confirmations", map[string]any{"error": err.Error()})
		return
	}
	for _, z := range expired {
		if _, err := s.zones.ForceExpire(ctx, z.ID, now); err != nil {
			obs.SweepFailure("expire_confirmations")
			obs.LogError("scheduler: confirmation expiry failed", map[string]any{
				"zone_id": z.ID,
				"error":   err.Error(),
			})
		}
	}
}
