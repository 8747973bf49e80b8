package httpapi

import (
	"net/http"
	"strings"
)

type registerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type tokenRequest struct {
	UserID string `json:"user_id"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.users.Register(r.Context(), req.Name, req.Email)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/users/"+u.ID)
	writeJSON(w, http.StatusCreated, u)
}

// handleToken issues a bearer token for a registered user. Possession of the
// user id stands in for a credential check; real authentication sits in front
// of this service.
func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.tokens == nil {
		writeError(w, r, http.StatusServiceUnavailable, "token issuance disabled")
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}
	u, err := a.users.Get(r.Context(), req.UserID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	token, err := a.tokens.Issue(u.ID, u.Name)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token issuance failed")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}
