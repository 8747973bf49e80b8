// Package event implements the cleanup-event lifecycle: the status state
// machine, participant registration with capacity enforcement, organizer
// transfer, and the deletion cascade. Every successful transition appends one
// audit record; event mutation and audit append are treated as one logical
// unit via a compensating rollback.
package event

import (
	"sort"
	"time"
)

// Status is the event lifecycle state.
type Status string

const (
	StatusPlanned    Status = "PLANNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// transitions is the single source of truth for the event state machine.
// Self-transitions are not listed and therefore invalid; COMPLETED and
// CANCELLED are terminal.
var transitions = map[Status][]Status{
	StatusPlanned:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
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

// Event is a scheduled cleanup against a zone.
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at,omitzero"`
	ZoneID      string    `json:"zone_id"`
	OrganizerID string    `json:"organizer_id"`
	Status      Status    `json:"status"`

	// MaxParticipants caps the participant set when positive; zero means
	// unlimited. The organizer does not count against it.
	MaxParticipants int `json:"max_participants,omitempty"`

	ParticipantIDs map[string]struct{} `json:"-"`

	// PendingOrganizerID is set while an ownership-transfer proposal awaits
	// an answer. A pending transfer never expires on its own.
	PendingOrganizerID  string    `json:"pending_organizer_id,omitempty"`
	TransferRequestedAt time.Time `json:"transfer_requested_at,omitzero"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (e Event) Key() string { return e.ID }

func (e Event) Clone() Event {
	out := e
	out.ParticipantIDs = make(map[string]struct{}, len(e.ParticipantIDs))
	for id := range e.ParticipantIDs {
		out.ParticipantIDs[id] = struct{}{}
	}
	return out
}

// Participants returns the participant ids sorted for stable output. The
// organizer is never part of this set.
func (e Event) Participants() []string {
	out := make([]string, 0, len(e.ParticipantIDs))
	for id := range e.ParticipantIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsParticipant reports whether the user is currently registered.
func (e Event) IsParticipant(userID string) bool {
	_, ok := e.ParticipantIDs[userID]
	return ok
}

// IsMember reports whether the user may act inside the event (organizer or
// participant).
func (e Event) IsMember(userID string) bool {
	return e.OrganizerID == userID || e.IsParticipant(userID)
}

// Closed reports whether the event reached a terminal status.
func (e Event) Closed() bool {
	return e.Status == StatusCompleted || e.Status == StatusCancelled
}
