package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/buildrite/crewcal/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// ErrEtagConflict is returned when a guarded event update finds a different
// version tag than the caller observed.
var ErrEtagConflict = errors.New("etag conflict: event was modified since it was read")

type EventRepository interface {
	Insert(ctx context.Context, event *models.CalendarEvent) (string, error)
	GetByID(ctx context.Context, id string) (*models.CalendarEvent, error)
	GetByGoogleEventID(ctx context.Context, googleEventID, calendarID string) ([]*models.CalendarEvent, error)
	ListByTimeRange(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*models.CalendarEvent, error)
	Update(ctx context.Context, id string, patch models.EventPatch) error
	// UpdateIfEtag applies the patch only when the stored etag still equals
	// expectedEtag; returns ErrEtagConflict otherwise.
	UpdateIfEtag(ctx context.Context, id string, patch models.EventPatch, expectedEtag string) error
	Delete(ctx context.Context, id string) error
	DeleteByGoogleEventID(ctx context.Context, googleEventID, calendarID string) (int64, error)
}

type SyncCursorRepository interface {
	GetByCalendarID(ctx context.Context, calendarID string) (*models.SyncCursor, error)
	Upsert(ctx context.Context, cursor *models.SyncCursor) error
	Delete(ctx context.Context, calendarID string) error
}

type ConflictLogRepository interface {
	Insert(ctx context.Context, entry *models.ConflictLogEntry) error
	ListByCalendarID(ctx context.Context, calendarID string) ([]*models.ConflictLogEntry, error)
}

type AssignmentRepository interface {
	Upsert(ctx context.Context, assignment *models.Assignment) error
	ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Assignment, error)
	DeleteByEntity(ctx context.Context, entityType models.EntityType, entityID string) (int64, error)
}

type PushChannelRepository interface {
	Insert(ctx context.Context, channel *models.PushChannel) error
	GetByID(ctx context.Context, id string) (*models.PushChannel, error)
	ListByCalendarID(ctx context.Context, calendarID string) ([]*models.PushChannel, error)
}

type CalendarSettingsRepository interface {
	GetByEntityType(ctx context.Context, entityType models.EntityType) (*models.CalendarSettings, error)
	Upsert(ctx context.Context, settings *models.CalendarSettings) error
	GetOrganizationCalendar(ctx context.Context) (*models.OrganizationCalendar, error)
	SetOrganizationCalendar(ctx context.Context, calendarID string) error
}

// AuthStatusCache remembers recent provider auth-status probes per user.
// A nil result means the cache has no answer.
type AuthStatusCache interface {
	Get(ctx context.Context, userKey string) (*bool, error)
	Set(ctx context.Context, userKey string, authorized bool) error
}
