package httpapi

import (
	"encoding/json"
	"net/http"
)

type postMessageRequest struct {
	Content string `json:"content"`
}

func (a *API) handleEventChat(w http.ResponseWriter, r *http.Request, eventID string) {
	switch r.Method {
	case http.MethodGet:
		a.chatHistory(w, r, eventID)
	case http.MethodPost:
		a.postMessage(w, r, eventID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) chatHistory(w http.ResponseWriter, r *http.Request, eventID string) {
	msgs, err := a.chat.History(r.Context(), eventID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": msgs})
}

func (a *API) postMessage(w http.ResponseWriter, r *http.Request, eventID string) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req postMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	msg, err := a.chat.Post(r.Context(), eventID, actor, req.Content)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// streamChat serves the event's live messages over Server-Sent Events. The
// subscription ends with the request context, so a dropped client frees its
// slot in the fan-out.
func (a *API) streamChat(w http.ResponseWriter, r *http.Request, eventID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch, err := a.chat.Subscribe(r.Context(), eventID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for msg := range ch {
		payload, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}
