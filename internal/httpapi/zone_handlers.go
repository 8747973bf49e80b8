package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"ecosweep.org/internal/zone"
)

type reportZoneRequest struct {
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Description string  `json:"description"`
	Severity    string  `json:"severity,omitempty"`
}

type addPhotoRequest struct {
	PhotoID string `json:"photo_id"`
}

type confirmRequest struct {
	Cleaned bool `json:"cleaned"`
}

func (a *API) handleZonesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.reportZone(w, r)
	case http.MethodGet:
		a.listZones(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleZoneResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/zones/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.getZone(w, r, parts[0])
		case http.MethodDelete:
			a.deleteZone(w, r, parts[0])
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
		}
	case len(parts) == 2 && parts[1] == "photos":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.addZonePhoto(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "photos":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, r, http.MethodDelete)
			return
		}
		a.removeZonePhoto(w, r, parts[0], parts[2])
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.updateZoneStatus(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "confirm":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.confirmZone(w, r, parts[0])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) reportZone(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req reportZoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	z, err := a.zones.Report(r.Context(), zone.ReportInput{
		Lat:         req.Lat,
		Lon:         req.Lon,
		Description: req.Description,
		ReporterID:  actor.ID,
		Severity:    zone.Severity(strings.ToUpper(strings.TrimSpace(req.Severity))),
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/zones/"+z.ID)
	writeJSON(w, http.StatusCreated, z)
}

func (a *API) listZones(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// lat+lon+radius_m selects the proximity query, otherwise a status scan.
	if q.Get("lat") != "" || q.Get("lon") != "" || q.Get("radius_m") != "" {
		lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
		lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
		radius, err3 := strconv.ParseFloat(q.Get("radius_m"), 64)
		if err1 != nil || err2 != nil || err3 != nil {
			writeError(w, r, http.StatusBadRequest, "lat, lon and radius_m must all be numbers")
			return
		}
		zones, err := a.zones.Nearby(r.Context(), lat, lon, radius)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": zones})
		return
	}

	zones, err := a.zones.List(r.Context(), zone.Status(strings.ToUpper(q.Get("status"))))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": zones})
}

func (a *API) getZone(w http.ResponseWriter, r *http.Request, id string) {
	z, err := a.zones.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (a *API) deleteZone(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	if err := a.zones.Delete(r.Context(), id, actor.ID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) addZonePhoto(w http.ResponseWriter, r *http.Request, id string) {
	var req addPhotoRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.PhotoID) == "" {
		writeError(w, r, http.StatusBadRequest, "photo_id is required")
		return
	}
	z, err := a.zones.AddPhoto(r.Context(), id, req.PhotoID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (a *API) removeZonePhoto(w http.ResponseWriter, r *http.Request, id, photoID string) {
	z, err := a.zones.RemovePhoto(r.Context(), id, photoID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (a *API) updateZoneStatus(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	z, err := a.zones.UpdateStatus(r.Context(), id, zone.Status(strings.ToUpper(strings.TrimSpace(req.Status))))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}

func (a *API) confirmZone(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorOf(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	z, err := a.zones.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	z, err = a.zones.ConfirmCleanliness(r.Context(), id, z.EventID, actor.ID, req.Cleaned)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, z)
}
