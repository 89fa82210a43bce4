package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/buildrite/crewcal/internal/models"
	"github.com/buildrite/crewcal/internal/provider"
	"github.com/buildrite/crewcal/internal/services"
)

// CalendarOps is the slice of the calendar service the HTTP layer needs.
type CalendarOps interface {
	CreateEvent(ctx context.Context, event *models.CalendarEvent, opts *provider.GoogleOptions, userToken string) (*services.CreateEventResult, error)
	UpdateEvent(ctx context.Context, id string, patch models.EventPatch, opts *provider.GoogleOptions, userToken string) (*models.CalendarEvent, error)
	DeleteEvent(ctx context.Context, id, userToken string) error
	ListEvents(ctx context.Context, query services.ListEventsQuery, userToken string) ([]models.CalendarEvent, error)
	ListMirroredEvents(ctx context.Context, query services.ListEventsQuery) ([]models.CalendarEvent, error)
	SetupPushChannel(ctx context.Context, calendarID, address string) (*models.PushChannel, error)
}

// SyncOps triggers reconciliation runs.
type SyncOps interface {
	PerformTwoWaySync(ctx context.Context, calendarID string) (*models.SyncStats, error)
}

// AuthOps answers whether a caller holds a personal provider grant.
type AuthOps interface {
	IsAuthorized(ctx context.Context, userToken string) bool
}

type CalendarHandler struct {
	calendar CalendarOps
	sync     SyncOps
	auth     AuthOps
	logger   *slog.Logger
}

func NewCalendarHandler(calendar CalendarOps, sync SyncOps, auth AuthOps, logger *slog.Logger) *CalendarHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarHandler{calendar: calendar, sync: sync, auth: auth, logger: logger}
}

// Routes returns the router mounted under /api/calendar.
func (h *CalendarHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/events", h.CreateEvent)
	r.Get("/events", h.ListEvents)
	r.Put("/events/{eventID}", h.UpdateEvent)
	r.Delete("/events/{eventID}", h.DeleteEvent)
	r.Post("/sync/{calendarID}", h.SyncCalendar)
	r.Post("/watch", h.Watch)
	r.Get("/auth/status", h.AuthStatus)
	return r
}

type createEventRequest struct {
	models.CalendarEvent
	GoogleOptions *provider.GoogleOptions `json:"google_options,omitempty"`
}

func (h *CalendarHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		respondError(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.StartDatetime.IsZero() {
		respondError(w, http.StatusBadRequest, "start_datetime is required")
		return
	}

	result, err := h.calendar.CreateEvent(r.Context(), &req.CalendarEvent, req.GoogleOptions, bearerToken(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

// eventPatchRequest is the wire shape of a partial update. Absent fields are
// left untouched; an explicit empty attendee list clears the assignments.
type eventPatchRequest struct {
	Title              *string           `json:"title"`
	Description        *string           `json:"description"`
	Location           *string           `json:"location"`
	StartDatetime      *time.Time        `json:"start_datetime"`
	EndDatetime        *time.Time        `json:"end_datetime"`
	IsAllDay           *bool             `json:"is_all_day"`
	ExtendedProperties map[string]string `json:"extended_properties"`
	Attendees          []models.Attendee `json:"attendees"`

	GoogleOptions *provider.GoogleOptions `json:"google_options,omitempty"`
}

func (r eventPatchRequest) patch() models.EventPatch {
	return models.EventPatch{
		Title:              r.Title,
		Description:        r.Description,
		Location:           r.Location,
		StartDatetime:      r.StartDatetime,
		EndDatetime:        r.EndDatetime,
		IsAllDay:           r.IsAllDay,
		ExtendedProperties: r.ExtendedProperties,
		Attendees:          r.Attendees,
	}
}

func (h *CalendarHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req eventPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.calendar.UpdateEvent(r.Context(), eventID, req.patch(), req.GoogleOptions, bearerToken(r))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (h *CalendarHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	if err := h.calendar.DeleteEvent(r.Context(), eventID, bearerToken(r)); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CalendarHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	query := services.ListEventsQuery{
		EntityType: models.EntityType(r.URL.Query().Get("entity_type")),
		CalendarID: r.URL.Query().Get("calendar_id"),
	}
	if query.EntityType == "" {
		query.EntityType = models.EntityAdHoc
	}

	var err error
	if query.TimeMin, err = parseTimeParam(r, "time_min", time.Now().AddDate(0, -1, 0)); err != nil {
		respondError(w, http.StatusBadRequest, "invalid time_min, expected RFC 3339")
		return
	}
	if query.TimeMax, err = parseTimeParam(r, "time_max", time.Now().AddDate(0, 3, 0)); err != nil {
		respondError(w, http.StatusBadRequest, "invalid time_max, expected RFC 3339")
		return
	}

	// source=mirror answers from the local store without a gateway call.
	var events []models.CalendarEvent
	if r.URL.Query().Get("source") == "mirror" {
		events, err = h.calendar.ListMirroredEvents(r.Context(), query)
	} else {
		events, err = h.calendar.ListEvents(r.Context(), query, bearerToken(r))
	}
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *CalendarHandler) SyncCalendar(w http.ResponseWriter, r *http.Request) {
	calendarID := chi.URLParam(r, "calendarID")

	stats, err := h.sync.PerformTwoWaySync(r.Context(), calendarID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type watchRequest struct {
	CalendarID string `json:"calendar_id"`
	Address    string `json:"address"`
}

func (h *CalendarHandler) Watch(w http.ResponseWriter, r *http.Request) {
	var req watchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CalendarID == "" || req.Address == "" {
		respondError(w, http.StatusBadRequest, "calendar_id and address are required")
		return
	}

	channel, err := h.calendar.SetupPushChannel(r.Context(), req.CalendarID, req.Address)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, channel)
}

func (h *CalendarHandler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	authorized := h.auth.IsAuthorized(r.Context(), bearerToken(r))
	respondJSON(w, http.StatusOK, map[string]bool{"authorized": authorized})
}

func (h *CalendarHandler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *provider.RequestError

	switch {
	case errors.Is(err, services.ErrEventNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &reqErr):
		h.logger.Error("gateway request failed",
			"path", r.URL.Path, "status", reqErr.StatusCode, "error", reqErr.Message)
		respondError(w, http.StatusBadGateway, "calendar provider request failed")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// bearerToken extracts the caller's token from the Authorization header.
// Empty when the header is absent or not a bearer scheme.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func parseTimeParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
