package httpapi

import (
	"net/http"
	"strings"
	"time"

	"ecosweep.org/internal/event"
)

type createEventRequest struct {
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at,omitzero"`
	ZoneID          string    `json:"zone_id"`
	MaxParticipants int       `json:"max_participants,omitempty"`
}

type transferRequest struct {
	NomineeID string `json:"nominee_id"`
}

type transferResponseRequest struct {
	Accept bool `json:"accept"`
}

func (a *API) handleEventsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createEvent(w, r)
	case http.MethodGet:
		a.listEvents(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleEventResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/events/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getEvent(w, r, id)
		case http.MethodDelete:
			a.deleteEvent(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "join":
		a.postAction(w, r, id, a.joinEvent)
	case len(parts) == 2 && parts[1] == "leave":
		a.postAction(w, r, id, a.leaveEvent)
	case len(parts) == 2 && parts[1] == "complete":
		a.postAction(w, r, id, a.completeEvent)
	case len(parts) == 2 && parts[1] == "cancel":
		a.postAction(w, r, id, a.cancelEvent)
	case len(parts) == 2 && parts[1] == "transfer":
		a.postAction(w, r, id, a.initiateTransfer)
	case len(parts) == 3 && parts[1] == "transfer" && parts[2] == "respond":
		a.postAction(w, r, id, a.respondToTransfer)
	case len(parts) == 2 && parts[1] == "history":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.eventHistory(w, r, id)
	case len(parts) == 2 && parts[1] == "chat":
		a.handleEventChat(w, r, id)
	case len(parts) == 3 && parts[1] == "chat" && parts[2] == "stream":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.streamChat(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) postAction(w http.ResponseWriter, r *http.Request, id string, fn func(http.ResponseWriter, *http.Request, string)) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	fn(w, r, id)
}

func (a *API) createEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req createEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := a.events.Create(r.Context(), event.CreateInput{
		Title:           req.Title,
		Description:     req.Description,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		ZoneID:          req.ZoneID,
		Organizer:       actor,
		MaxParticipants: req.MaxParticipants,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/events/"+ev.ID)
	writeJSON(w, http.StatusCreated, ev)
}

func (a *API) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := a.events.List(r.Context(), event.Filter{
		Status:        event.Status(strings.ToUpper(q.Get("status"))),
		OrganizerID:   q.Get("organizer_id"),
		ParticipantID: q.Get("participant_id"),
		ZoneID:        q.Get("zone_id"),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": events})
}

func (a *API) getEvent(w http.ResponseWriter, r *http.Request, id string) {
	ev, err := a.events.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) deleteEvent(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.events.Delete(r.Context(), id, actor.ID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) joinEvent(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	ev, err := a.events.Join(r.Context(), id, actor.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) leaveEvent(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	ev, err := a.events.Leave(r.Context(), id, actor.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) completeEvent(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	ev, err := a.events.Complete(r.Context(), id, actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) cancelEvent(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	ev, err := a.events.Cancel(r.Context(), id, actor)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) initiateTransfer(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req transferRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.NomineeID) == "" {
		writeError(w, r, http.StatusBadRequest, "nominee_id is required")
		return
	}
	ev, err := a.events.InitiateTransfer(r.Context(), id, actor.ID, req.NomineeID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) respondToTransfer(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req transferResponseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ev, err := a.events.RespondToTransfer(r.Context(), id, actor.ID, req.Accept)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// eventHistory intentionally skips the existence check: the audit trail
// outlives event deletion.
func (a *API) eventHistory(w http.ResponseWriter, r *http.Request, id string) {
	hist, err := a.log.History(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": hist})
}
