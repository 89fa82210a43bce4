package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/buildrite/crewcal/internal/models"
	"github.com/buildrite/crewcal/internal/provider"
	"github.com/buildrite/crewcal/internal/repositories"
)

// fakeAPI is a scriptable provider.API. Each method records its requests and
// delegates to an optional func field; the zero value answers everything
// with empty success responses.
type fakeAPI struct {
	createRequests []*provider.CreateEventRequest
	updateRequests []*provider.UpdateEventRequest
	deleteCalls    int
	syncQueries    []provider.SyncQuery
	watchRequests  []*provider.WatchRequest

	createFn func(req *provider.CreateEventRequest) (*provider.EventResponse, error)
	updateFn func(googleEventID string, req *provider.UpdateEventRequest) (*provider.EventResponse, error)
	deleteFn func(googleEventID, calendarID string) error
	syncFn   func(q provider.SyncQuery) (*provider.SyncPage, error)
	authFn   func(userToken string) (bool, error)

	authCalls int
}

func (f *fakeAPI) AuthStatus(_ context.Context, userToken string) (bool, error) {
	f.authCalls++
	if f.authFn != nil {
		return f.authFn(userToken)
	}
	return false, nil
}

func (f *fakeAPI) CreateEvent(_ context.Context, req *provider.CreateEventRequest) (*provider.EventResponse, error) {
	f.createRequests = append(f.createRequests, req)
	if f.createFn != nil {
		return f.createFn(req)
	}
	n := len(f.createRequests)
	return &provider.EventResponse{
		GoogleEventID: fmt.Sprintf("g-%d", n),
		Etag:          fmt.Sprintf("e-%d", n),
	}, nil
}

func (f *fakeAPI) UpdateEvent(_ context.Context, googleEventID string, req *provider.UpdateEventRequest) (*provider.EventResponse, error) {
	f.updateRequests = append(f.updateRequests, req)
	if f.updateFn != nil {
		return f.updateFn(googleEventID, req)
	}
	return &provider.EventResponse{GoogleEventID: googleEventID, Etag: "e-updated"}, nil
}

func (f *fakeAPI) DeleteEvent(_ context.Context, googleEventID, calendarID string, _ provider.AuthStrategy) error {
	f.deleteCalls++
	if f.deleteFn != nil {
		return f.deleteFn(googleEventID, calendarID)
	}
	return nil
}

func (f *fakeAPI) ListEvents(_ context.Context, _ provider.ListQuery) ([]provider.Event, error) {
	return nil, nil
}

func (f *fakeAPI) SyncEvents(_ context.Context, q provider.SyncQuery) (*provider.SyncPage, error) {
	f.syncQueries = append(f.syncQueries, q)
	if f.syncFn != nil {
		return f.syncFn(q)
	}
	return &provider.SyncPage{NextSyncToken: "tok"}, nil
}

func (f *fakeAPI) Watch(_ context.Context, req *provider.WatchRequest) (*provider.WatchResponse, error) {
	f.watchRequests = append(f.watchRequests, req)
	return &provider.WatchResponse{ResourceID: "res-" + req.ChannelID}, nil
}

// memEventRepo is an in-memory EventRepository. conflictIDs forces
// ErrEtagConflict for specific rows; lookupErrs fails GetByGoogleEventID for
// specific google event ids.
type memEventRepo struct {
	rows        map[string]*models.CalendarEvent
	conflictIDs map[string]bool
	lookupErrs  map[string]error
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{
		rows:        make(map[string]*models.CalendarEvent),
		conflictIDs: make(map[string]bool),
		lookupErrs:  make(map[string]error),
	}
}

func (r *memEventRepo) Insert(_ context.Context, event *models.CalendarEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	copied := *event
	r.rows[event.ID] = &copied
	return event.ID, nil
}

func (r *memEventRepo) GetByID(_ context.Context, id string) (*models.CalendarEvent, error) {
	row, ok := r.rows[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *row
	return &copied, nil
}

func (r *memEventRepo) GetByGoogleEventID(_ context.Context, googleEventID, calendarID string) ([]*models.CalendarEvent, error) {
	if err := r.lookupErrs[googleEventID]; err != nil {
		return nil, err
	}
	var out []*models.CalendarEvent
	for _, row := range r.rows {
		if row.CalendarID == calendarID && row.GoogleEventID != nil && *row.GoogleEventID == googleEventID {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memEventRepo) ListByTimeRange(_ context.Context, calendarID string, timeMin, timeMax time.Time) ([]*models.CalendarEvent, error) {
	var out []*models.CalendarEvent
	for _, row := range r.rows {
		if row.CalendarID == calendarID && !row.StartDatetime.Before(timeMin) && row.StartDatetime.Before(timeMax) {
			copied := *row
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memEventRepo) Update(_ context.Context, id string, patch models.EventPatch) error {
	row, ok := r.rows[id]
	if !ok {
		return repositories.ErrNotFound
	}
	r.applyTo(row, patch)
	return nil
}

func (r *memEventRepo) UpdateIfEtag(_ context.Context, id string, patch models.EventPatch, expectedEtag string) error {
	row, ok := r.rows[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if r.conflictIDs[id] {
		return repositories.ErrEtagConflict
	}
	stored := ""
	if row.Etag != nil {
		stored = *row.Etag
	}
	if stored != expectedEtag {
		return repositories.ErrEtagConflict
	}
	r.applyTo(row, patch)
	return nil
}

func (r *memEventRepo) applyTo(row *models.CalendarEvent, patch models.EventPatch) {
	*row = applyPatch(*row, patch)
	if patch.GoogleEventID != nil {
		row.GoogleEventID = patch.GoogleEventID
	}
	if patch.Etag != nil {
		row.Etag = patch.Etag
	}
	if patch.LastSyncedAt != nil {
		row.LastSyncedAt = patch.LastSyncedAt
	}
}

func (r *memEventRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.rows[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *memEventRepo) DeleteByGoogleEventID(_ context.Context, googleEventID, calendarID string) (int64, error) {
	var n int64
	for id, row := range r.rows {
		if row.CalendarID == calendarID && row.GoogleEventID != nil && *row.GoogleEventID == googleEventID {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

type memCursorRepo struct {
	cursors map[string]*models.SyncCursor
	deletes int
}

func newMemCursorRepo() *memCursorRepo {
	return &memCursorRepo{cursors: make(map[string]*models.SyncCursor)}
}

func (r *memCursorRepo) GetByCalendarID(_ context.Context, calendarID string) (*models.SyncCursor, error) {
	cursor, ok := r.cursors[calendarID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *cursor
	return &copied, nil
}

func (r *memCursorRepo) Upsert(_ context.Context, cursor *models.SyncCursor) error {
	copied := *cursor
	r.cursors[cursor.CalendarID] = &copied
	return nil
}

func (r *memCursorRepo) Delete(_ context.Context, calendarID string) error {
	delete(r.cursors, calendarID)
	r.deletes++
	return nil
}

type memConflictRepo struct {
	entries []*models.ConflictLogEntry
}

func (r *memConflictRepo) Insert(_ context.Context, entry *models.ConflictLogEntry) error {
	copied := *entry
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *memConflictRepo) ListByCalendarID(_ context.Context, calendarID string) ([]*models.ConflictLogEntry, error) {
	var out []*models.ConflictLogEntry
	for _, e := range r.entries {
		if e.CalendarID == calendarID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memAssignmentRepo struct {
	assignments map[string]*models.Assignment
}

func newMemAssignmentRepo() *memAssignmentRepo {
	return &memAssignmentRepo{assignments: make(map[string]*models.Assignment)}
}

func assignmentKey(a *models.Assignment) string {
	return fmt.Sprintf("%s|%s|%s|%s", a.EntityType, a.EntityID, a.AssigneeID, a.StartDate.Format("2006-01-02"))
}

func (r *memAssignmentRepo) Upsert(_ context.Context, assignment *models.Assignment) error {
	copied := *assignment
	r.assignments[assignmentKey(assignment)] = &copied
	return nil
}

func (r *memAssignmentRepo) ListByEntity(_ context.Context, entityType models.EntityType, entityID string) ([]*models.Assignment, error) {
	var out []*models.Assignment
	for _, a := range r.assignments {
		if a.EntityType == entityType && a.EntityID == entityID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *memAssignmentRepo) DeleteByEntity(_ context.Context, entityType models.EntityType, entityID string) (int64, error) {
	var n int64
	for key, a := range r.assignments {
		if a.EntityType == entityType && a.EntityID == entityID {
			delete(r.assignments, key)
			n++
		}
	}
	return n, nil
}

type memChannelRepo struct {
	channels []*models.PushChannel
}

func (r *memChannelRepo) Insert(_ context.Context, channel *models.PushChannel) error {
	copied := *channel
	r.channels = append(r.channels, &copied)
	return nil
}

func (r *memChannelRepo) GetByID(_ context.Context, id string) (*models.PushChannel, error) {
	for _, c := range r.channels {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *memChannelRepo) ListByCalendarID(_ context.Context, calendarID string) ([]*models.PushChannel, error) {
	var out []*models.PushChannel
	for _, c := range r.channels {
		if c.CalendarID == calendarID {
			out = append(out, c)
		}
	}
	return out, nil
}

type memSettingsRepo struct {
	settings map[models.EntityType]*models.CalendarSettings
	org      *models.OrganizationCalendar
}

func newMemSettingsRepo() *memSettingsRepo {
	return &memSettingsRepo{settings: make(map[models.EntityType]*models.CalendarSettings)}
}

func (r *memSettingsRepo) GetByEntityType(_ context.Context, entityType models.EntityType) (*models.CalendarSettings, error) {
	s, ok := r.settings[entityType]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return s, nil
}

func (r *memSettingsRepo) Upsert(_ context.Context, settings *models.CalendarSettings) error {
	copied := *settings
	r.settings[settings.EntityType] = &copied
	return nil
}

func (r *memSettingsRepo) GetOrganizationCalendar(_ context.Context) (*models.OrganizationCalendar, error) {
	if r.org == nil {
		return nil, repositories.ErrNotFound
	}
	return r.org, nil
}

func (r *memSettingsRepo) SetOrganizationCalendar(_ context.Context, calendarID string) error {
	r.org = &models.OrganizationCalendar{CalendarID: calendarID}
	return nil
}

type memAuthCache struct {
	values map[string]bool
	gets   int
	sets   int
}

func newMemAuthCache() *memAuthCache {
	return &memAuthCache{values: make(map[string]bool)}
}

func (c *memAuthCache) Get(_ context.Context, userKey string) (*bool, error) {
	c.gets++
	v, ok := c.values[userKey]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (c *memAuthCache) Set(_ context.Context, userKey string, authorized bool) error {
	c.sets++
	c.values[userKey] = authorized
	return nil
}
