package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/buildrite/crewcal/internal/models"
	"github.com/buildrite/crewcal/internal/provider"
	"github.com/buildrite/crewcal/internal/repositories"
)

// fullSyncWindow bounds a full resync: only events starting in the last 30
// days (or later) are fetched when no sync token exists.
const fullSyncWindow = 30 * 24 * time.Hour

// SyncService reconciles a calendar's provider state into the local mirror.
// Sync always runs under the service account; user grants never gate it.
type SyncService struct {
	api         provider.API
	events      repositories.EventRepository
	cursors     repositories.SyncCursorRepository
	conflicts   repositories.ConflictLogRepository
	assignments *AssignmentService
	logger      *slog.Logger
	now         func() time.Time
}

func NewSyncService(
	api provider.API,
	events repositories.EventRepository,
	cursors repositories.SyncCursorRepository,
	conflicts repositories.ConflictLogRepository,
	assignments *AssignmentService,
	logger *slog.Logger,
) *SyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncService{
		api:         api,
		events:      events,
		cursors:     cursors,
		conflicts:   conflicts,
		assignments: assignments,
		logger:      logger,
		now:         time.Now,
	}
}

// PerformTwoWaySync pulls provider changes for one calendar into the mirror,
// draining every page, and persists the new sync token so the next run is
// incremental. A 410 from the provider on an incremental run falls back to
// exactly one full resync within this call.
func (s *SyncService) PerformTwoWaySync(ctx context.Context, calendarID string) (*models.SyncStats, error) {
	syncToken := ""
	cursor, err := s.cursors.GetByCalendarID(ctx, calendarID)
	if err == nil {
		syncToken = cursor.NextSyncToken
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to load sync cursor: %w", err)
	}

	return s.syncCalendar(ctx, calendarID, syncToken)
}

func (s *SyncService) syncCalendar(ctx context.Context, calendarID, syncToken string) (*models.SyncStats, error) {
	stats := &models.SyncStats{}
	pageToken := ""
	nextSyncToken := ""
	recovered := false

	for {
		query := provider.SyncQuery{
			CalendarID:   calendarID,
			SyncToken:    syncToken,
			PageToken:    pageToken,
			AuthStrategy: provider.AuthServiceAccount,
		}
		if syncToken == "" {
			query.TimeMin = s.now().Add(-fullSyncWindow).Format(time.RFC3339)
		}

		page, err := s.api.SyncEvents(ctx, query)
		if errors.Is(err, provider.ErrSyncTokenExpired) && syncToken != "" {
			// The stored token is dead. Drop the cursor and restart as a
			// full sync; a full sync cannot expire again, so this branch
			// runs at most once per call.
			s.logger.Warn("sync token expired, restarting with full resync", "calendar_id", calendarID)
			if err := s.cursors.Delete(ctx, calendarID); err != nil {
				return nil, fmt.Errorf("failed to drop expired sync cursor: %w", err)
			}
			syncToken = ""
			pageToken = ""
			*stats = models.SyncStats{}
			recovered = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch sync page: %w", err)
		}

		for _, item := range page.Items {
			if err := s.reconcileItem(ctx, calendarID, item, stats); err != nil {
				s.recordConflict(ctx, calendarID, item, err)
			}
		}

		if page.NextSyncToken != "" {
			nextSyncToken = page.NextSyncToken
		}
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if nextSyncToken != "" {
		err := s.cursors.Upsert(ctx, &models.SyncCursor{
			CalendarID:    calendarID,
			NextSyncToken: nextSyncToken,
			LastSyncTime:  s.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to persist sync cursor: %w", err)
		}
	}

	s.logger.Info("sync complete",
		"calendar_id", calendarID,
		"created", stats.Created,
		"updated", stats.Updated,
		"deleted", stats.Deleted,
		"recovered", recovered)
	return stats, nil
}

// reconcileItem applies a single provider change to the mirror. Errors are
// reported to the caller and never abort the rest of the page.
func (s *SyncService) reconcileItem(ctx context.Context, calendarID string, item provider.Event, stats *models.SyncStats) error {
	if item.Status == provider.StatusCancelled {
		return s.reconcileCancelled(ctx, calendarID, item, stats)
	}

	local, err := s.events.GetByGoogleEventID(ctx, item.ID, calendarID)
	if err != nil {
		return fmt.Errorf("failed to look up mirrored event: %w", err)
	}

	if len(local) == 0 {
		mapped := mapProviderEvent(item, calendarID)
		syncedAt := s.now()
		mapped.LastSyncedAt = &syncedAt
		if _, err := s.events.Insert(ctx, &mapped); err != nil {
			return fmt.Errorf("failed to insert mirrored event: %w", err)
		}
		if len(mapped.Attendees) > 0 {
			_ = s.assignments.CreateAssignments(ctx, &mapped)
		}
		stats.Created++
		return nil
	}

	// All rows for a google event id carry the same etag; a multi-day
	// expansion maps day rows to distinct provider events.
	row := local[0]
	if row.Etag != nil && *row.Etag == item.Etag {
		return nil
	}

	mapped := mapProviderEvent(item, calendarID)
	patch := patchFromMapped(mapped, s.now())
	expected := ""
	if row.Etag != nil {
		expected = *row.Etag
	}
	if err := s.events.UpdateIfEtag(ctx, row.ID, patch, expected); err != nil {
		return err
	}
	stats.Updated++
	return nil
}

func (s *SyncService) reconcileCancelled(ctx context.Context, calendarID string, item provider.Event, stats *models.SyncStats) error {
	local, err := s.events.GetByGoogleEventID(ctx, item.ID, calendarID)
	if err != nil {
		return fmt.Errorf("failed to look up cancelled event: %w", err)
	}
	if len(local) == 0 {
		return nil
	}

	for _, row := range local {
		if err := s.assignments.DeleteAssignments(ctx, row.EntityType, row.EntityID); err != nil {
			s.logger.Error("failed to delete assignments for cancelled event",
				"event_id", row.ID, "error", err)
		}
	}

	deleted, err := s.events.DeleteByGoogleEventID(ctx, item.ID, calendarID)
	if err != nil {
		return fmt.Errorf("failed to delete mirrored events for %s: %w", item.ID, err)
	}
	stats.Deleted += int(deleted)
	return nil
}

// recordConflict logs a per-item failure. Etag conflicts are expected under
// concurrent edits and get a durable conflict-log row; anything else is
// logged and skipped.
func (s *SyncService) recordConflict(ctx context.Context, calendarID string, item provider.Event, cause error) {
	if errors.Is(cause, repositories.ErrEtagConflict) || strings.Contains(cause.Error(), "etag") {
		s.logger.Warn("sync conflict", "calendar_id", calendarID, "google_event_id", item.ID, "error", cause)
		entry := &models.ConflictLogEntry{
			CalendarID:    calendarID,
			GoogleEventID: item.ID,
			ErrorMessage:  cause.Error(),
		}
		if err := s.conflicts.Insert(ctx, entry); err != nil {
			s.logger.Error("failed to record sync conflict", "google_event_id", item.ID, "error", err)
		}
		return
	}
	s.logger.Error("failed to reconcile event", "calendar_id", calendarID, "google_event_id", item.ID, "error", cause)
}
