package hunt

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/chasse/settings"
)

// Routes returns the HTTP surface: analysis requests, session queries,
// match queries, settings and the SSE event stream.
func (svc *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/analyze", svc.handleAnalyze)
	r.Get("/sessions/{id}", svc.handleGetSession)
	r.Post("/sessions/{id}/cancel", svc.handleCancelSession)
	r.Get("/matches", svc.handleListMatches)
	r.Delete("/matches", svc.handleClearMatches)
	r.Get("/settings", svc.handleGetSettings)
	r.Put("/settings", svc.handleUpdateSettings)
	r.Get("/events", svc.handleEvents)
	return r
}

func (svc *Service) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid JSON body", ErrValidation))
		return
	}
	id, err := svc.StartAnalysis(r.Context(), body.URL)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": id})
}

func (svc *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := svc.Session(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (svc *Service) handleCancelSession(w http.ResponseWriter, r *http.Request) {
	if err := svc.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (svc *Service) handleListMatches(w http.ResponseWriter, r *http.Request) {
	matches, err := svc.ListMatches(r.Context(), queryInt(r, "limit", defaultListLimit))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (svc *Service) handleClearMatches(w http.ResponseWriter, r *http.Request) {
	n, err := svc.ClearMatches(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

func (svc *Service) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	prefs, err := svc.GetSettings()
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (svc *Service) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var prefs settings.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: invalid JSON body", ErrValidation))
		return
	}
	stored, err := svc.UpdateSettings(&prefs)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// handleEvents streams bus events as server-sent events until the client
// disconnects. Events fired before the subscription are not replayed.
func (svc *Service) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	events, cancel := svc.bus.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

// --- Helpers ---

func statusFor(err error) int {
	switch Kind(err) {
	case "validation_failed":
		return http.StatusBadRequest
	case "session_busy":
		return http.StatusConflict
	case "unknown_session":
		return http.StatusNotFound
	case "store_unavailable":
		return http.StatusServiceUnavailable
	case "fetch_failed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{
		"error": err.Error(),
		"kind":  Kind(err),
	})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
