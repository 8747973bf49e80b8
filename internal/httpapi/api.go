// Package httpapi is the HTTP edge of the service: routing, middleware,
// request decoding and the single place where domain errors become status
// codes.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"ecosweep.org/internal/auth"
	"ecosweep.org/internal/changelog"
	"ecosweep.org/internal/chat"
	"ecosweep.org/internal/domain"
	"ecosweep.org/internal/event"
	"ecosweep.org/internal/obs"
	"ecosweep.org/internal/user"
	"ecosweep.org/internal/zone"
)

// ReadyProbe reports whether the service can take traffic. With no DB
// configured the in-memory stores are always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles the services the API fronts.
type Deps struct {
	Users  *user.Service
	Zones  *zone.Service
	Events *event.Service
	Chat   *chat.Service
	Log    *changelog.Log
	Tokens *auth.Tokens
	Ready  ReadyProbe
}

// API is the HTTP layer.
type API struct {
	mux     *http.ServeMux
	users   *user.Service
	zones   *zone.Service
	events  *event.Service
	chat    *chat.Service
	log     *changelog.Log
	tokens  *auth.Tokens
	ready   ReadyProbe
	version string

	rateBurst  int
	ratePerSec int
}

// New wires routes over the given services.
func New(deps Deps, version string) *API {
	a := &API{
		mux:        http.NewServeMux(),
		users:      deps.Users,
		zones:      deps.Zones,
		events:     deps.Events,
		chat:       deps.Chat,
		log:        deps.Log,
		tokens:     deps.Tokens,
		ready:      deps.Ready,
		version:    version,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.healthz)
	a.mux.HandleFunc("/readyz", a.readyz)
	a.mux.HandleFunc("/v1/info", a.info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/auth/token", a.handleToken)

	a.mux.HandleFunc("/v1/zones", a.handleZonesCollection)
	a.mux.HandleFunc("/v1/zones/", a.handleZoneResource)

	a.mux.HandleFunc("/v1/events", a.handleEventsCollection)
	a.mux.HandleFunc("/v1/events/", a.handleEventResource)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped handler for the server.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "ecosweep-api",
		"version": a.version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "ecosweep-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError is the single taxonomy-to-status mapping.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrNotRegistered):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInvalidStateTransition):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func principal(r *http.Request) (auth.Principal, bool) {
	return auth.PrincipalFromContext(r.Context())
}

func actorOf(r *http.Request) (domain.Actor, bool) {
	p, ok := principal(r)
	if !ok {
		return domain.Actor{}, false
	}
	return domain.Actor{ID: p.UserID, Name: p.Name}, true
}
