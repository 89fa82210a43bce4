package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/buildrite/crewcal/internal/models"
	"github.com/buildrite/crewcal/internal/repositories"
)

// AssignmentService turns event attendees into entity-assignment records:
// who is booked against which project or work order, for which dates, at
// what rate.
type AssignmentService struct {
	assignments repositories.AssignmentRepository
	logger      *slog.Logger
}

func NewAssignmentService(assignments repositories.AssignmentRepository, logger *slog.Logger) *AssignmentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssignmentService{assignments: assignments, logger: logger}
}

// CreateAssignments upserts one assignment per attendee. Attendees are
// independent: a failed upsert is logged and the rest of the batch proceeds.
func (s *AssignmentService) CreateAssignments(ctx context.Context, event *models.CalendarEvent) error {
	for _, attendee := range event.Attendees {
		assignment := assignmentFromAttendee(event, attendee)
		if err := s.assignments.Upsert(ctx, assignment); err != nil {
			s.logger.Error("failed to upsert assignment",
				"entity_type", event.EntityType,
				"entity_id", event.EntityID,
				"assignee_id", attendee.ID,
				"error", err)
		}
	}
	return nil
}

// ReplaceAssignments drops every assignment for the event's entity and
// recreates them from the current attendee list. No diffing: full replace.
func (s *AssignmentService) ReplaceAssignments(ctx context.Context, event *models.CalendarEvent) error {
	if _, err := s.assignments.DeleteByEntity(ctx, event.EntityType, event.EntityID); err != nil {
		return fmt.Errorf("failed to clear assignments: %w", err)
	}
	return s.CreateAssignments(ctx, event)
}

// DeleteAssignments removes all assignments for an entity, regardless of
// which provider event they reference.
func (s *AssignmentService) DeleteAssignments(ctx context.Context, entityType models.EntityType, entityID string) error {
	_, err := s.assignments.DeleteByEntity(ctx, entityType, entityID)
	return err
}

func assignmentFromAttendee(event *models.CalendarEvent, attendee models.Attendee) *models.Assignment {
	assignment := &models.Assignment{
		EntityType:   event.EntityType,
		EntityID:     event.EntityID,
		AssigneeID:   attendee.ID,
		AssigneeType: attendee.Type,
		CalendarID:   event.CalendarID,
		StartDate:    dateOnly(event.StartDatetime),
		RatePerHour:  attendee.RatePerHour,
	}
	if assignment.AssigneeType == "" {
		assignment.AssigneeType = models.AttendeeEmployee
	}
	if event.GoogleEventID != nil {
		assignment.GoogleEventID = *event.GoogleEventID
	}
	if event.Etag != nil {
		assignment.Etag = *event.Etag
	}
	if event.EndDatetime != nil {
		end := dateOnly(*event.EndDatetime)
		assignment.EndDate = &end
	}
	return assignment
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
