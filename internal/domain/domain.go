// Package domain holds the error taxonomy and the actor identity shared by
// every lifecycle service. Services wrap these sentinels with context via
// fmt.Errorf("%w: ..."); the HTTP layer maps them to status codes once.
package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrConflict               = errors.New("conflict")
	ErrForbidden              = errors.New("forbidden")
	ErrCapacityExceeded       = errors.New("capacity exceeded")
	ErrNotRegistered          = errors.New("not registered")
	ErrInvalidState           = errors.New("invalid state")
	ErrInvalidInput           = errors.New("invalid input")
)

// Actor identifies who performed a lifecycle operation. For scheduler-driven
// transitions it is SystemActor; otherwise it carries the authenticated user.
type Actor struct {
	ID   string
	Name string
}

// SystemActor attributes scheduler-driven transitions and system chat notices.
var SystemActor = Actor{ID: "system", Name: "Lifecycle Scheduler"}

// IsSystem reports whether the actor is the internal system principal.
func (a Actor) IsSystem() bool { return a.ID == SystemActor.ID }
