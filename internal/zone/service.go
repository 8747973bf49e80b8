package zone

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"ecosweep.org/internal/domain"
	"ecosweep.org/internal/store"
)

// OrganizerFn resolves the organizer of an event. Wired to the event service
// at startup; kept as a function to avoid a package cycle.
type OrganizerFn func(ctx context.Context, eventID string) (string, error)

// Service implements the zone lifecycle on top of the entity store.
type Service struct {
	zones     *store.Memory[Zone]
	organizer OrganizerFn
	now       func() time.Time
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

// WithOrganizerLookup wires the event-organizer resolver used by the
// confirmation workflow.
func WithOrganizerLookup(fn OrganizerFn) Option {
	return func(s *Service) { s.organizer = fn }
}

// NewService constructs the zone service.
func NewService(zones *store.Memory[Zone], opts ...Option) *Service {
	s := &Service{zones: zones, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReportInput describes a new pollution report.
type ReportInput struct {
	Lat         float64
	Lon         float64
	Description string
	ReporterID  string
	Severity    Severity
}

// Report creates a zone in REPORTED state.
func (s *Service) Report(ctx context.Context, in ReportInput) (Zone, error) {
	if in.Lat < -90 || in.Lat > 90 || in.Lon < -180 || in.Lon > 180 {
		return Zone{}, fmt.Errorf("%w: coordinates out of range", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Description) == "" {
		return Zone{}, fmt.Errorf("%w: description is required", domain.ErrInvalidInput)
	}
	if in.ReporterID == "" {
		return Zone{}, fmt.Errorf("%w: reporter is required", domain.ErrInvalidInput)
	}
	if in.Severity == "" {
		in.Severity = SeverityUnknown
	}
	if !ValidSeverity(in.Severity) {
		return Zone{}, fmt.Errorf("%w: unknown severity %q", domain.ErrInvalidInput, in.Severity)
	}

	now := s.now().UTC()
	z := Zone{
		ID:          store.NewID(),
		Lat:         in.Lat,
		Lon:         in.Lon,
		Description: strings.TrimSpace(in.Description),
		ReporterID:  in.ReporterID,
		Status:      StatusReported,
		Severity:    in.Severity,
		PhotoIDs:    map[string]struct{}{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.zones.Create(ctx, z); err != nil {
		return Zone{}, err
	}
	return z, nil
}

// Get returns the zone with the given id.
func (s *Service) Get(ctx context.Context, id string) (Zone, error) {
	z, err := s.zones.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Zone{}, fmt.Errorf("%w: zone %s", domain.ErrNotFound, id)
	}
	return z, err
}

// List returns all zones, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]Zone, error) {
	return s.zones.Find(ctx, func(z Zone) bool {
		return status == "" || z.Status == status
	})
}

const earthRadiusM = 6_371_000

// Nearby returns zones within radiusM meters of the given point.
func (s *Service) Nearby(ctx context.Context, lat, lon, radiusM float64) ([]Zone, error) {
	if radiusM <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive", domain.ErrInvalidInput)
	}
	return s.zones.Find(ctx, func(z Zone) bool {
		return haversineM(lat, lon, z.Lat, z.Lon) <= radiusM
	})
}

func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// AddPhoto attaches a photo id to the zone.
func (s *Service) AddPhoto(ctx context.Context, zoneID, photoID string) (Zone, error) {
	if strings.TrimSpace(photoID) == "" {
		return Zone{}, fmt.Errorf("%w: photo id is required", domain.ErrInvalidInput)
	}
	return s.update(ctx, zoneID, func(z Zone) (Zone, error) {
		if _, ok := z.PhotoIDs[photoID]; ok {
			return z, fmt.Errorf("%w: photo already attached", domain.ErrConflict)
		}
		z.PhotoIDs[photoID] = struct{}{}
		return z, nil
	})
}

// RemovePhoto detaches a photo id from the zone.
func (s *Service) RemovePhoto(ctx context.Context, zoneID, photoID string) (Zone, error) {
	return s.update(ctx, zoneID, func(z Zone) (Zone, error) {
		if _, ok := z.PhotoIDs[photoID]; !ok {
			return z, fmt.Errorf("%w: photo %s", domain.ErrNotFound, photoID)
		}
		delete(z.PhotoIDs, photoID)
		return z, nil
	})
}

// UpdateStatus moves the zone to newStatus if the state machine allows it.
// Semantics-heavy paths (event linking, confirmation) have dedicated
// operations; this is the plain guarded transition.
func (s *Service) UpdateStatus(ctx context.Context, zoneID string, newStatus Status) (Zone, error) {
	return s.update(ctx, zoneID, func(z Zone) (Zone, error) {
		if !ValidTransition(z.Status, newStatus) {
			return z, fmt.Errorf("%w: zone %s -> %s", domain.ErrInvalidStateTransition, z.Status, newStatus)
		}
		z.Status = newStatus
		return z, nil
	})
}

// Schedule links a cleanup event to the zone and moves it to
// CLEANING_SCHEDULED. Fails with Conflict if another event already targets it.
func (s *Service) Schedule(ctx context.Context, zoneID, eventID string) (Zone, error) {
	return s.update(ctx, zoneID, func(z Zone) (Zone, error) {
		if z.EventID != "" && z.EventID != eventID {
			return z, fmt.Errorf("%w: zone already targeted by event %s", domain.ErrConflict, z.EventID)
		}
		if !ValidTransition(z.Status, StatusCleaningScheduled) {
			return z, fmt.Errorf("%w: zone %s -> %s", domain.ErrInvalidStateTransition, z.Status, StatusCleaningScheduled)
		}
		z.EventID = eventID
		z.Status = StatusCleaningScheduled
		return z, nil
	})
}

// Detach unlinks the event from the zone as part of an event-deletion
// cascade. A CLEANING_SCHEDULED zone reverts to REPORTED so it can be
// targeted again; any open confirmation window is closed.
func (s *Service) Detach(ctx context.Context, zoneID, eventID string) (Zone, error) {
	return s.update(ctx, zoneID, func(z Zone) (Zone, error) {
		if z.EventID != eventID {
			return z, fmt.Errorf("%w: zone is not linked to event %s", domain.ErrConflict, eventID)
		}
		z.EventID = ""
		z.ConfirmationDeadline = time.Time{}
		if z.Status == StatusCleaningScheduled {
			z.Status = StatusReported
		}
		return z, nil
	})
}

// BeginConfirmation opens the cleanliness-confirmation window after the
// linked event completed.
func (s *Service) BeginConfirmation(ctx context.Context, zoneID, eventID string, deadline time.Time) (Zone, error) {
	return s.update(ctx, zoneID, func(z Zone) (Zone, error) {
		if z.EventID != eventID {
			return z, fmt.Errorf("%w: zone is not linked to event %s", domain.ErrConflict, eventID)
		}
		if z.Status != StatusCleaningScheduled {
			return z, fmt.Errorf("%w: zone is %s", domain.ErrInvalidState, z.Status)
		}
		z.ConfirmationDeadline = deadline
		return z, nil
	})
}

// ConfirmCleanliness resolves an open confirmation window. Only the event's
// organizer may confirm, and only before the deadline. wasCleaned moves the
// zone to CLEANED; a decline sends it back to REPORTED and unlinks the event
// so a new cleanup can be organized.
func (s *Service) ConfirmCleanliness(ctx context.Context, zoneID, eventID, actorID string, wasCleaned bool) (Zone, error) {
	if s.organizer == nil {
		return Zone{}, errors.New("zone: organizer lookup is not configured")
	}
	organizerID, err := s.organizer(ctx, eventID)
	if err != nil {
		return Zone{}, err
	}
	if actorID != organizerID {
		return Zone{}, fmt.Errorf("%w: only the event organizer may confirm", domain.ErrForbidden)
	}

	now := s.now().UTC()
	return s.update(ctx, zoneID, func(z Zone) (Zone, error) {
		if z.EventID != eventID {
			return z, fmt.Errorf("%w: zone is not linked to event %s", domain.ErrConflict, eventID)
		}
		if z.ConfirmationDeadline.IsZero() {
			return z, fmt.Errorf("%w: no confirmation window is open", domain.ErrInvalidState)
		}
		if now.After(z.ConfirmationDeadline) {
			return z, fmt.Errorf("%w: confirmation window expired", domain.ErrInvalidState)
		}
		z.ConfirmationDeadline = time.Time{}
		if wasCleaned {
			z.Status = StatusCleaned
			return z, nil
		}
		z.Status = StatusReported
		z.EventID = ""
		return z, nil
	})
}

// ConfirmationExpired returns zones whose confirmation window elapsed without
// an answer at the given instant.
func (s *Service) ConfirmationExpired(ctx context.Context, now time.Time) ([]Zone, error) {
	return s.zones.Find(ctx, func(z Zone) bool {
		return z.Status == StatusCleaningScheduled &&
			!z.ConfirmationDeadline.IsZero() &&
			now.After(z.ConfirmationDeadline)
	})
}

// ForceExpire resolves an unanswered confirmation window as "not cleaned":
// the zone goes back to REPORTED and is unlinked. The mutator re-validates
// state so a repeated sweep after a crash is a no-op.
func (s *Service) ForceExpire(ctx context.Context, zoneID string, now time.Time) (Zone, error) {
	return s.update(ctx, zoneID, func(z Zone) (Zone, error) {
		if z.Status != StatusCleaningScheduled || z.ConfirmationDeadline.IsZero() {
			return z, fmt.Errorf("%w: no expired confirmation to resolve", domain.ErrInvalidState)
		}
		if now.Before(z.ConfirmationDeadline) {
			return z, fmt.Errorf("%w: confirmation window still open", domain.ErrInvalidState)
		}
		z.Status = StatusReported
		z.EventID = ""
		z.ConfirmationDeadline = time.Time{}
		return z, nil
	})
}

// Delete removes a zone. Only the reporter may delete it, and never while a
// cleanup is scheduled against it.
func (s *Service) Delete(ctx context.Context, zoneID, actorID string) error {
	z, err := s.Get(ctx, zoneID)
	if err != nil {
		return err
	}
	if z.ReporterID != actorID {
		return fmt.Errorf("%w: only the reporter may delete the zone", domain.ErrForbidden)
	}
	if z.Status == StatusCleaningScheduled {
		return fmt.Errorf("%w: zone has a scheduled cleanup", domain.ErrInvalidState)
	}
	if err := s.zones.Delete(ctx, zoneID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: zone %s", domain.ErrNotFound, zoneID)
		}
		return err
	}
	return nil
}

// update wraps store.Update, translating the store sentinel and bumping the
// UpdatedAt timestamp on success.
func (s *Service) update(ctx context.Context, zoneID string, mutate func(Zone) (Zone, error)) (Zone, error) {
	z, err := s.zones.Update(ctx, zoneID, func(z Zone) (Zone, error) {
		next, err := mutate(z)
		if err != nil {
			return z, err
		}
		next.UpdatedAt = s.now().UTC()
		return next, nil
	})
	if errors.Is(err, store.ErrNotFound) {
		return Zone{}, fmt.Errorf("%w: zone %s", domain.ErrNotFound, zoneID)
	}
	return z, err
}
