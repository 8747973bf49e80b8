// Package zone implements the polluted-zone lifecycle: reporting, the status
// state machine, photo attachments, proximity lookup and the post-event
// cleanliness confirmation window.
package zone

import "time"

// Status is the zone lifecycle state.
type Status string

const (
	StatusReported          Status = "REPORTED"
	StatusCleaningScheduled Status = "CLEANING_SCHEDULED"
	StatusCleaned           Status = "CLEANED"
)

// Severity grades how polluted a reported zone is.
type Severity string

const (
	SeverityUnknown Severity = "UNKNOWN"
	SeverityLow     Severity = "LOW"
	SeverityMedium  Severity = "MEDIUM"
	SeverityHigh    Severity = "HIGH"
)

// ValidSeverity reports whether s is a known severity grade.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityUnknown, SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// transitions is the single source of truth for the zone state machine.
// Self-transitions are not listed and therefore invalid.
var transitions = map[Status][]Status{
	StatusReported:          {StatusCleaningScheduled},
	StatusCleaningScheduled: {StatusCleaned, StatusReported},
	StatusCleaned:           {StatusReported},
}

// ValidTransition reports whether the state machine allows from -> to.
func ValidTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Zone is a reported polluted area.
type Zone struct {
	ID          string   `json:"id"`
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	Description string   `json:"description"`
	ReporterID  string   `json:"reporter_id"`
	EventID     string   `json:"event_id,omitempty"`
	Status      Status   `json:"status"`
	Severity    Severity `json:"severity"`

	PhotoIDs map[string]struct{} `json:"photo_ids"`

	// ConfirmationDeadline is set when the linked event completes and the
	// organizer has to confirm cleanliness. Zero means no window is open.
	ConfirmationDeadline time.Time `json:"confirmation_deadline,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (z Zone) Key() string { return z.ID }

func (z Zone) Clone() Zone {
	out := z
	out.PhotoIDs = make(map[string]struct{}, len(z.PhotoIDs))
	for id := range z.PhotoIDs {
		out.PhotoIDs[id] = struct{}{}
	}
	return out
}

// AwaitingConfirmation reports whether the zone has an open confirmation
// window at the given instant.
func (z Zone) AwaitingConfirmation(now time.Time) bool {
	return z.Status == StatusCleaningScheduled && !z.ConfirmationDeadline.IsZero() && now.Before(z.ConfirmationDeadline)
}
