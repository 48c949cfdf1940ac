package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/travel-discovery-service/internal/coordinator"
	"github.com/kjstillabower/travel-discovery-service/internal/models"
	"github.com/kjstillabower/travel-discovery-service/internal/observability"
	"github.com/kjstillabower/travel-discovery-service/internal/session"
	"github.com/kjstillabower/travel-discovery-service/internal/validation"
	"github.com/kjstillabower/travel-discovery-service/internal/view"
	"github.com/kjstillabower/travel-discovery-service/internal/viewport"
)

// maxBodyBytes caps session request bodies.
const maxBodyBytes = 64 << 10

type createSessionRequest struct {
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
	Geolocation string   `json:"geolocation"`
}

type createSessionResponse struct {
	ID    string            `json:"id"`
	State coordinator.State `json:"state"`
	View  view.Page         `json:"view"`
}

// CreateSession handles POST /sessions. The body carries the device position
// ({"lat","lng"}) or {"geolocation":"denied"}; an empty body also falls back
// to the default location.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	var loc coordinator.Locator
	switch {
	case req.Geolocation == "denied":
		loc = coordinator.DeniedLocator
	case req.Lat != nil && req.Lng != nil:
		c, err := validation.CheckCoordinates(models.Coordinates{Lat: *req.Lat, Lng: *req.Lng})
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
			return
		}
		loc = coordinator.FixedLocator(c)
	case req.Lat != nil || req.Lng != nil:
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", "lat and lng must be sent together")
		return
	}

	sess, err := h.sessions.Create(r.Context(), loc)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	observability.LoggerFrom(r.Context(), h.logger).Info("session created",
		zap.String("session_id", sess.ID),
		zap.Bool("geolocation_denied", req.Geolocation == "denied"))
	writeJSON(w, http.StatusCreated, createSessionResponse{
		ID:    sess.ID,
		State: sess.Coordinator().State(),
		View:  sess.Page(),
	})
}

// GetSession handles GET /sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Page())
}

// DeleteSession handles DELETE /sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(mux.Vars(r)["id"]); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PutCategory handles PUT /sessions/{id}/category with {"category": "..."}.
func (h *Handler) PutCategory(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Category string `json:"category"`
	}
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := sess.Coordinator().SetCategory(models.Category(req.Category)); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Page())
}

// PutRating handles PUT /sessions/{id}/rating with {"rating": "4.5"}, a
// number, or "" to clear the filter.
func (h *Handler) PutRating(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req struct {
		Rating models.MinRating `json:"rating"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_RATING", err.Error())
		return
	}
	if err := sess.Coordinator().SetMinRating(req.Rating); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Page())
}

type viewportRequest struct {
	Event  string        `json:"event"`
	Bounds models.Bounds `json:"bounds"`
}

type viewportResponse struct {
	Reported bool      `json:"reported"`
	View     view.Page `json:"view"`
}

// PostViewport handles POST /sessions/{id}/viewport: one map event and the
// rectangle the map showed when it fired.
func (h *Handler) PostViewport(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req viewportRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	ev, err := viewport.ParseEvent(req.Event)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_EVENT", err.Error())
		return
	}
	reported, err := sess.HandleMapEvent(ev, req.Bounds)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewportResponse{Reported: reported, View: sess.Page()})
}

type indexRequest struct {
	Index *int `json:"index"`
}

// PostSelect handles POST /sessions/{id}/select with {"index": n}; -1 clears.
func (h *Handler) PostSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	i, ok := decodeIndex(w, r)
	if !ok {
		return
	}
	if i < 0 {
		i = coordinator.NoSelection
	}
	if err := sess.Coordinator().SelectPlace(i); err != nil {
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Page())
}

// GetSearch handles GET /sessions/{id}/search?q=. Short queries clear the
// results rather than failing.
func (h *Handler) GetSearch(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	q := r.URL.Query().Get("q")
	if len([]rune(q)) > h.maxQueryLength {
		writeError(w, r, http.StatusBadRequest, "INVALID_QUERY", validation.ErrQueryTooLong.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.Search().Type(r.Context(), q))
}

// PostSearchSelect handles POST /sessions/{id}/search/select with {"index": n}.
// A result without usable coordinates is ignored and the page returned as is.
func (h *Handler) PostSearchSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	i, ok := decodeIndex(w, r)
	if !ok {
		return
	}
	err := sess.Search().Select(i)
	switch {
	case errors.Is(err, coordinator.ErrInvalidLocation):
		observability.LoggerFrom(r.Context(), h.logger).Debug("search result without coordinates ignored",
			zap.String("session_id", sess.ID), zap.Int("index", i))
	case err != nil:
		h.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Page())
}

// PostSearchFocus handles POST /sessions/{id}/search/focus.
func (h *Handler) PostSearchFocus(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	sess.Search().Focus()
	writeJSON(w, http.StatusOK, sess.Search().State())
}

// PostSearchDismiss handles POST /sessions/{id}/search/dismiss.
func (h *Handler) PostSearchDismiss(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	sess.Search().Dismiss()
	writeJSON(w, http.StatusOK, sess.Search().State())
}

func (h *Handler) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeSessionError(w, r, err)
		return nil, false
	}
	return sess, true
}

// writeSessionError maps session and coordinator errors to responses.
func (h *Handler) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, coordinator.ErrClosed):
		writeError(w, r, http.StatusNotFound, "SESSION_NOT_FOUND", "session not found")
	case errors.Is(err, session.ErrTooManySessions):
		writeError(w, r, http.StatusServiceUnavailable, "TOO_MANY_SESSIONS", "session limit reached")
	case errors.Is(err, session.ErrStoreClosed):
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service is shutting down")
	case errors.Is(err, coordinator.ErrInvalidCategory):
		writeError(w, r, http.StatusBadRequest, "INVALID_CATEGORY", err.Error())
	case errors.Is(err, coordinator.ErrSelectionRange):
		writeError(w, r, http.StatusBadRequest, "INVALID_INDEX", err.Error())
	case errors.Is(err, models.ErrInvalidBounds):
		writeError(w, r, http.StatusBadRequest, "INVALID_BOUNDS", err.Error())
	case errors.Is(err, viewport.ErrUnknownEvent):
		writeError(w, r, http.StatusBadRequest, "INVALID_EVENT", err.Error())
	default:
		observability.LoggerFrom(r.Context(), h.logger).Error("session request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// decodeBody decodes a JSON body into v. allowEmpty accepts a missing body.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", "invalid JSON body: "+err.Error())
	return false
}

func decodeIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	var req indexRequest
	if !decodeBody(w, r, &req, false) {
		return 0, false
	}
	if req.Index == nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_INDEX", validation.ErrIndexInvalid.Error())
		return 0, false
	}
	return *req.Index, true
}
