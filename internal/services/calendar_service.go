package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/buildrite/crewcal/internal/models"
	"github.com/buildrite/crewcal/internal/provider"
	"github.com/buildrite/crewcal/internal/repositories"
)

// ErrEventNotFound is returned when an operation names a local event id the
// mirror does not know.
var ErrEventNotFound = errors.New("calendar event not found")

// sharedCalendarIDs is the third tier of the calendar-id fallback chain: the
// built-in shared calendars that predate configurable settings. Kept for
// behavioral fidelity with older installs; removal needs product
// confirmation.
var sharedCalendarIDs = map[models.EntityType]string{
	models.EntityWorkOrder: "crewcal-work-orders",
	models.EntityProject:   "crewcal-projects",
}

// defaultCalendarID is the final fallback when no configuration exists.
const defaultCalendarID = "primary"

// suppressNotifications is sent on every expanded day after the first so
// attendees are not notified once per day.
var suppressNotifications = &provider.GoogleOptions{SendUpdates: "none"}

// CreateEventResult reports a create, including whether the event was
// expanded into multiple provider events. Event is the first day's copy.
type CreateEventResult struct {
	Event     *models.CalendarEvent `json:"event"`
	Expanded  bool                  `json:"expanded"`
	TotalDays int                   `json:"total_days"`
}

// ListEventsQuery selects a provider time-range listing. CalendarID and
// Strategy override resolution when set.
type ListEventsQuery struct {
	EntityType models.EntityType
	CalendarID string
	TimeMin    time.Time
	TimeMax    time.Time
	Strategy   provider.AuthStrategy
}

// CalendarService is the façade the rest of the application calls. It
// resolves calendar ids and auth strategies, drives the provider client on
// the write path, and keeps the local mirror and assignments in step.
type CalendarService struct {
	api         provider.API
	events      repositories.EventRepository
	channels    repositories.PushChannelRepository
	settings    repositories.CalendarSettingsRepository
	assignments *AssignmentService
	resolver    *AuthResolver
	logger      *slog.Logger
	now         func() time.Time

	// Resolved calendar ids are cached for the life of the process. The
	// lookup is idempotent, so singleflight only saves duplicate round
	// trips on a cold start.
	calendarIDs sync.Map
	lookups     singleflight.Group
}

func NewCalendarService(
	api provider.API,
	events repositories.EventRepository,
	channels repositories.PushChannelRepository,
	settings repositories.CalendarSettingsRepository,
	assignments *AssignmentService,
	resolver *AuthResolver,
	logger *slog.Logger,
) *CalendarService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CalendarService{
		api:         api,
		events:      events,
		channels:    channels,
		settings:    settings,
		assignments: assignments,
		resolver:    resolver,
		logger:      logger,
		now:         time.Now,
	}
}

// ResolveCalendarID walks the fallback chain for an entity type:
// per-entity settings, then the legacy org-wide config, then the built-in
// shared-calendar map, then "primary".
func (s *CalendarService) ResolveCalendarID(ctx context.Context, entityType models.EntityType) string {
	if cached, ok := s.calendarIDs.Load(entityType); ok {
		return cached.(string)
	}

	resolved, _, _ := s.lookups.Do(string(entityType), func() (any, error) {
		id := s.lookupCalendarID(ctx, entityType)
		s.calendarIDs.Store(entityType, id)
		return id, nil
	})
	return resolved.(string)
}

func (s *CalendarService) lookupCalendarID(ctx context.Context, entityType models.EntityType) string {
	settings, err := s.settings.GetByEntityType(ctx, entityType)
	if err == nil && settings.CalendarID != "" {
		return settings.CalendarID
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		s.logger.Warn("calendar settings lookup failed, falling back", "entity_type", entityType, "error", err)
	}

	org, err := s.settings.GetOrganizationCalendar(ctx)
	if err == nil && org.CalendarID != "" {
		return org.CalendarID
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		s.logger.Warn("organization calendar lookup failed, falling back", "error", err)
	}

	if id, ok := sharedCalendarIDs[entityType]; ok {
		return id
	}
	return defaultCalendarID
}

// CreateEvent writes an event to the provider and mirrors it locally. An
// all-day event spanning more than one day is expanded first and created as
// one provider event per day, serially in day order; each day's mirror row
// and assignments are persisted as that day succeeds, so a mid-expansion
// failure leaves a deterministic prefix of created days. Only the first day
// carries the caller's notification options.
func (s *CalendarService) CreateEvent(ctx context.Context, event *models.CalendarEvent, opts *provider.GoogleOptions, userToken string) (*CreateEventResult, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CalendarID == "" {
		event.CalendarID = s.ResolveCalendarID(ctx, event.EntityType)
	}
	strategy := s.resolver.Resolve(ctx, event.EntityType, userToken)

	totalDays := event.ExpansionDays()
	expanded := event.IsAllDay && totalDays > 1

	var days []models.CalendarEvent
	if expanded {
		days = models.ExpandEvent(*event)
	} else {
		totalDays = 1
		days = []models.CalendarEvent{*event}
	}

	var first *models.CalendarEvent
	for i := range days {
		day := &days[i]
		day.CalendarID = event.CalendarID
		day.SyncEnabled = true

		dayOpts := opts
		if i > 0 {
			dayOpts = suppressNotifications
		}

		resp, err := s.api.CreateEvent(ctx, &provider.CreateEventRequest{
			Event:         toProviderEvent(*day),
			CalendarID:    day.CalendarID,
			AuthStrategy:  strategy,
			GoogleOptions: dayOpts,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create event day %d/%d: %w", i+1, totalDays, err)
		}

		day.GoogleEventID = &resp.GoogleEventID
		day.Etag = &resp.Etag
		syncedAt := s.now()
		day.LastSyncedAt = &syncedAt

		if _, err := s.events.Insert(ctx, day); err != nil {
			return nil, fmt.Errorf("failed to mirror event day %d/%d: %w", i+1, totalDays, err)
		}
		if len(day.Attendees) > 0 {
			_ = s.assignments.CreateAssignments(ctx, day)
		}

		if first == nil {
			first = day
		}
	}

	return &CreateEventResult{Event: first, Expanded: expanded, TotalDays: totalDays}, nil
}

// UpdateEvent patches an existing mirror row and pushes the change to the
// provider. When the patch supplies attendees, the entity's assignments are
// replaced wholesale from the new list.
func (s *CalendarService) UpdateEvent(ctx context.Context, id string, patch models.EventPatch, opts *provider.GoogleOptions, userToken string) (*models.CalendarEvent, error) {
	existing, err := s.events.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	merged := applyPatch(*existing, patch)
	strategy := s.resolver.Resolve(ctx, existing.EntityType, userToken)

	// Local-only events (never synced) are patched in place without a
	// provider round trip.
	if existing.GoogleEventID != nil {
		resp, err := s.api.UpdateEvent(ctx, *existing.GoogleEventID, &provider.UpdateEventRequest{
			Event:         toProviderEvent(merged),
			CalendarID:    existing.CalendarID,
			AuthStrategy:  strategy,
			GoogleOptions: opts,
		})
		if err != nil {
			return nil, err
		}
		patch.Etag = &resp.Etag
		syncedAt := s.now()
		patch.LastSyncedAt = &syncedAt
	}

	if err := s.events.Update(ctx, id, patch); err != nil {
		return nil, err
	}

	updated, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Attendees != nil {
		if err := s.assignments.ReplaceAssignments(ctx, updated); err != nil {
			s.logger.Error("failed to replace assignments after update", "event_id", id, "error", err)
		}
	}
	return updated, nil
}

// DeleteEvent removes the mirror row and its assignments. The provider call
// is skipped entirely for events that never round-tripped to the provider:
// deleting something that was never remote must not attempt a remote delete.
func (s *CalendarService) DeleteEvent(ctx context.Context, id, userToken string) error {
	existing, err := s.events.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	if err != nil {
		return err
	}

	if existing.GoogleEventID != nil {
		strategy := s.resolver.Resolve(ctx, existing.EntityType, userToken)
		if err := s.api.DeleteEvent(ctx, *existing.GoogleEventID, existing.CalendarID, strategy); err != nil {
			return err
		}
	}

	if err := s.events.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.assignments.DeleteAssignments(ctx, existing.EntityType, existing.EntityID); err != nil {
		s.logger.Error("failed to delete assignments", "event_id", id, "error", err)
	}
	return nil
}

// ListEvents queries the provider for a time range and maps the response
// into local records without persisting them.
func (s *CalendarService) ListEvents(ctx context.Context, query ListEventsQuery, userToken string) ([]models.CalendarEvent, error) {
	calendarID := query.CalendarID
	if calendarID == "" {
		calendarID = s.ResolveCalendarID(ctx, query.EntityType)
	}
	strategy := query.Strategy
	if strategy == "" {
		strategy = s.resolver.Resolve(ctx, query.EntityType, userToken)
	}

	items, err := s.api.ListEvents(ctx, provider.ListQuery{
		CalendarID:   calendarID,
		TimeMin:      query.TimeMin.Format(time.RFC3339),
		TimeMax:      query.TimeMax.Format(time.RFC3339),
		AuthStrategy: strategy,
	})
	if err != nil {
		return nil, err
	}

	events := make([]models.CalendarEvent, 0, len(items))
	for _, item := range items {
		events = append(events, mapProviderEvent(item, calendarID))
	}
	return events, nil
}

// ListMirroredEvents reads a calendar's time range from the local mirror
// instead of the provider. Serves reads that must not depend on gateway
// availability; only mirrored (previously synced or created) events appear.
func (s *CalendarService) ListMirroredEvents(ctx context.Context, query ListEventsQuery) ([]models.CalendarEvent, error) {
	calendarID := query.CalendarID
	if calendarID == "" {
		calendarID = s.ResolveCalendarID(ctx, query.EntityType)
	}

	rows, err := s.events.ListByTimeRange(ctx, calendarID, query.TimeMin, query.TimeMax)
	if err != nil {
		return nil, err
	}

	events := make([]models.CalendarEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, *row)
	}
	return events, nil
}

// SetupPushChannel registers a provider watch channel for a calendar. The
// channel expires after seven days; renewal is an external responsibility.
func (s *CalendarService) SetupPushChannel(ctx context.Context, calendarID, address string) (*models.PushChannel, error) {
	channelID := uuid.New().String()
	expiration := s.now().Add(models.PushChannelTTL)

	resp, err := s.api.Watch(ctx, &provider.WatchRequest{
		CalendarID: calendarID,
		ChannelID:  channelID,
		Address:    address,
		Expiration: expiration.UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	channel := &models.PushChannel{
		ID:         channelID,
		CalendarID: calendarID,
		ResourceID: resp.ResourceID,
		Expiration: expiration,
	}
	if err := s.channels.Insert(ctx, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// applyPatch merges a patch over an event copy for building the provider
// payload. The repository applies the same patch to the stored row.
func applyPatch(event models.CalendarEvent, patch models.EventPatch) models.CalendarEvent {
	if patch.Title != nil {
		event.Title = *patch.Title
	}
	if patch.Description != nil {
		event.Description = *patch.Description
	}
	if patch.Location != nil {
		event.Location = *patch.Location
	}
	if patch.StartDatetime != nil {
		event.StartDatetime = *patch.StartDatetime
	}
	if patch.EndDatetime != nil {
		event.EndDatetime = patch.EndDatetime
	}
	if patch.IsAllDay != nil {
		event.IsAllDay = *patch.IsAllDay
	}
	if patch.ExtendedProperties != nil {
		event.ExtendedProperties = patch.ExtendedProperties
	}
	if patch.Attendees != nil {
		event.Attendees = patch.Attendees
	}
	return event
}
