package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildrite/crewcal/internal/models"
	"github.com/buildrite/crewcal/internal/provider"
	"github.com/buildrite/crewcal/internal/services"
)

type stubCalendar struct {
	createFn func(event *models.CalendarEvent, opts *provider.GoogleOptions, userToken string) (*services.CreateEventResult, error)
	updateFn func(id string, patch models.EventPatch, userToken string) (*models.CalendarEvent, error)
	deleteFn func(id, userToken string) error
	listFn   func(query services.ListEventsQuery) ([]models.CalendarEvent, error)
	mirrorFn func(query services.ListEventsQuery) ([]models.CalendarEvent, error)
	watchFn  func(calendarID, address string) (*models.PushChannel, error)
}

func (s *stubCalendar) CreateEvent(_ context.Context, event *models.CalendarEvent, opts *provider.GoogleOptions, userToken string) (*services.CreateEventResult, error) {
	return s.createFn(event, opts, userToken)
}

func (s *stubCalendar) UpdateEvent(_ context.Context, id string, patch models.EventPatch, _ *provider.GoogleOptions, userToken string) (*models.CalendarEvent, error) {
	return s.updateFn(id, patch, userToken)
}

func (s *stubCalendar) DeleteEvent(_ context.Context, id, userToken string) error {
	return s.deleteFn(id, userToken)
}

func (s *stubCalendar) ListEvents(_ context.Context, query services.ListEventsQuery, _ string) ([]models.CalendarEvent, error) {
	return s.listFn(query)
}

func (s *stubCalendar) ListMirroredEvents(_ context.Context, query services.ListEventsQuery) ([]models.CalendarEvent, error) {
	return s.mirrorFn(query)
}

func (s *stubCalendar) SetupPushChannel(_ context.Context, calendarID, address string) (*models.PushChannel, error) {
	return s.watchFn(calendarID, address)
}

type stubSync struct {
	fn func(calendarID string) (*models.SyncStats, error)
}

func (s *stubSync) PerformTwoWaySync(_ context.Context, calendarID string) (*models.SyncStats, error) {
	return s.fn(calendarID)
}

type stubAuth struct {
	authorized bool
	lastToken  string
}

func (s *stubAuth) IsAuthorized(_ context.Context, userToken string) bool {
	s.lastToken = userToken
	return s.authorized
}

func newTestServer(calendar *stubCalendar, sync *stubSync, auth *stubAuth) *httptest.Server {
	if sync == nil {
		sync = &stubSync{fn: func(string) (*models.SyncStats, error) { return &models.SyncStats{}, nil }}
	}
	if auth == nil {
		auth = &stubAuth{}
	}
	h := NewCalendarHandler(calendar, sync, auth, nil)
	return httptest.NewServer(h.Routes())
}

func TestCreateEvent(t *testing.T) {
	var gotToken string
	calendar := &stubCalendar{
		createFn: func(event *models.CalendarEvent, opts *provider.GoogleOptions, userToken string) (*services.CreateEventResult, error) {
			gotToken = userToken
			event.ID = "evt-1"
			return &services.CreateEventResult{Event: event, TotalDays: 1}, nil
		},
	}
	server := newTestServer(calendar, nil, nil)
	defer server.Close()

	body := `{"title":"Pour foundation","start_datetime":"2025-07-01T08:00:00Z","entity_type":"work_order","entity_id":"wo-7"}`
	req, _ := http.NewRequest(http.MethodPost, server.URL+"/events", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer user-token-1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "user-token-1", gotToken)

	var result services.CreateEventResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "evt-1", result.Event.ID)
	assert.Equal(t, models.EntityWorkOrder, result.Event.EntityType)
}

func TestCreateEvent_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"title":`},
		{"missing title", `{"start_datetime":"2025-07-01T08:00:00Z"}`},
		{"missing start", `{"title":"Pour foundation"}`},
	}

	var called bool
	calendar := &stubCalendar{
		createFn: func(*models.CalendarEvent, *provider.GoogleOptions, string) (*services.CreateEventResult, error) {
			called = true
			return nil, nil
		},
	}
	server := newTestServer(calendar, nil, nil)
	defer server.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(server.URL+"/events", "application/json", bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.False(t, called, "validation failures must not reach the service")
}

func TestUpdateEvent_NotFound(t *testing.T) {
	calendar := &stubCalendar{
		updateFn: func(id string, _ models.EventPatch, _ string) (*models.CalendarEvent, error) {
			return nil, fmt.Errorf("%w: %s", services.ErrEventNotFound, id)
		},
	}
	server := newTestServer(calendar, nil, nil)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPut, server.URL+"/events/missing", bytes.NewBufferString(`{"title":"x"}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateEvent_PartialPatch(t *testing.T) {
	var gotPatch models.EventPatch
	calendar := &stubCalendar{
		updateFn: func(_ string, patch models.EventPatch, _ string) (*models.CalendarEvent, error) {
			gotPatch = patch
			return &models.CalendarEvent{ID: "evt-1", Title: *patch.Title}, nil
		},
	}
	server := newTestServer(calendar, nil, nil)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodPut, server.URL+"/events/evt-1",
		bytes.NewBufferString(`{"title":"New title","attendees":[]}`))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, gotPatch.Title)
	assert.Equal(t, "New title", *gotPatch.Title)
	// Absent fields stay nil; the explicit empty list survives as a clear.
	assert.Nil(t, gotPatch.Description)
	require.NotNil(t, gotPatch.Attendees)
	assert.Empty(t, gotPatch.Attendees)
}

func TestDeleteEvent(t *testing.T) {
	var deleted string
	calendar := &stubCalendar{
		deleteFn: func(id, _ string) error {
			deleted = id
			return nil
		},
	}
	server := newTestServer(calendar, nil, nil)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/events/evt-9", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "evt-9", deleted)
}

func TestListEvents_GatewayFailureMapsToBadGateway(t *testing.T) {
	calendar := &stubCalendar{
		listFn: func(services.ListEventsQuery) ([]models.CalendarEvent, error) {
			return nil, &provider.RequestError{StatusCode: 503, Message: "backend unavailable"}
		},
	}
	server := newTestServer(calendar, nil, nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/events?entity_type=project")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestListEvents_TimeRange(t *testing.T) {
	var gotQuery services.ListEventsQuery
	calendar := &stubCalendar{
		listFn: func(query services.ListEventsQuery) ([]models.CalendarEvent, error) {
			gotQuery = query
			return []models.CalendarEvent{}, nil
		},
	}
	server := newTestServer(calendar, nil, nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/events?entity_type=work_order&time_min=2025-07-01T00:00:00Z&time_max=2025-08-01T00:00:00Z")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.EntityWorkOrder, gotQuery.EntityType)
	assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), gotQuery.TimeMin.UTC())
	assert.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), gotQuery.TimeMax.UTC())
}

func TestListEvents_MirrorSource(t *testing.T) {
	var providerCalled, mirrorCalled bool
	calendar := &stubCalendar{
		listFn: func(services.ListEventsQuery) ([]models.CalendarEvent, error) {
			providerCalled = true
			return nil, nil
		},
		mirrorFn: func(query services.ListEventsQuery) ([]models.CalendarEvent, error) {
			mirrorCalled = true
			return []models.CalendarEvent{{ID: "evt-1", Title: "Pour foundation"}}, nil
		},
	}
	server := newTestServer(calendar, nil, nil)
	defer server.Close()

	resp, err := http.Get(server.URL + "/events?entity_type=work_order&source=mirror")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, mirrorCalled)
	assert.False(t, providerCalled, "mirror reads must not reach the provider")

	var out struct {
		Events []models.CalendarEvent `json:"events"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Events, 1)
	assert.Equal(t, "evt-1", out.Events[0].ID)
}

func TestSyncCalendar(t *testing.T) {
	sync := &stubSync{fn: func(calendarID string) (*models.SyncStats, error) {
		return &models.SyncStats{Created: 2, Updated: 1}, nil
	}}
	server := newTestServer(&stubCalendar{}, sync, nil)
	defer server.Close()

	resp, err := http.Post(server.URL+"/sync/cal-1", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats models.SyncStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, models.SyncStats{Created: 2, Updated: 1}, stats)
}

func TestWatch_Validation(t *testing.T) {
	server := newTestServer(&stubCalendar{}, nil, nil)
	defer server.Close()

	resp, err := http.Post(server.URL+"/watch", "application/json",
		bytes.NewBufferString(`{"calendar_id":"cal-1"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuthStatus(t *testing.T) {
	auth := &stubAuth{authorized: true}
	server := newTestServer(&stubCalendar{}, nil, auth)
	defer server.Close()

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/auth/status", nil)
	req.Header.Set("Authorization", "Bearer user-token-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user-token-1", auth.lastToken)

	var out map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out["authorized"])
}
