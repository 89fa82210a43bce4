package services

import (
	"time"

	"github.com/buildrite/crewcal/internal/models"
	"github.com/buildrite/crewcal/internal/provider"
)

const (
	providerDateLayout = "2006-01-02"
)

var knownEntityTypes = map[models.EntityType]bool{
	models.EntityWorkOrder: true,
	models.EntityProject:   true,
	models.EntityAdHoc:     true,
}

var knownAttendeeTypes = map[models.AttendeeType]bool{
	models.AttendeeEmployee:      true,
	models.AttendeeSubcontractor: true,
	models.AttendeeVendor:        true,
}

// mapProviderEvent converts the gateway's raw event shape into the local
// record, defaulting field by field. Provider-absent fields are never
// trusted: entity linkage falls back to an unassigned ad-hoc event, and
// attendee shapes are coerced into the known types.
func mapProviderEvent(item provider.Event, calendarID string) models.CalendarEvent {
	event := models.CalendarEvent{
		Title:              item.Summary,
		Description:        item.Description,
		Location:           item.Location,
		CalendarID:         calendarID,
		SyncEnabled:        true,
		EntityType:         models.EntityAdHoc,
		EntityID:           models.EntityIDUnassigned,
		ExtendedProperties: map[string]string{},
	}

	if item.ID != "" {
		googleID := item.ID
		event.GoogleEventID = &googleID
	}
	if item.Etag != "" {
		etag := item.Etag
		event.Etag = &etag
	}

	if start, allDay, ok := parseEventTime(item.Start); ok {
		event.StartDatetime = start
		event.IsAllDay = allDay
	}
	if end, _, ok := parseEventTime(item.End); ok {
		event.EndDatetime = &end
	}

	if item.ExtendedProperties != nil {
		for k, v := range item.ExtendedProperties.Private {
			event.ExtendedProperties[k] = v
		}
		if et := models.EntityType(event.ExtendedProperties[models.PropEntityType]); knownEntityTypes[et] {
			event.EntityType = et
		}
		if id := event.ExtendedProperties[models.PropEntityID]; id != "" {
			event.EntityID = id
		}
	}

	for _, raw := range item.Attendees {
		attendee := models.Attendee{
			ID:             raw.ID,
			Type:           models.AttendeeType(raw.Type),
			ResponseStatus: raw.ResponseStatus,
			RatePerHour:    raw.RatePerHour,
		}
		if attendee.ID == "" {
			attendee.ID = raw.Email
		}
		if attendee.ID == "" {
			continue
		}
		if !knownAttendeeTypes[attendee.Type] {
			attendee.Type = models.AttendeeEmployee
		}
		event.Attendees = append(event.Attendees, attendee)
	}

	return event
}

// parseEventTime reads the provider's date-or-datetime union. The second
// return reports whether the value was a bare date (all-day).
func parseEventTime(t *provider.EventTime) (time.Time, bool, bool) {
	if t == nil {
		return time.Time{}, false, false
	}
	if t.Date != "" {
		parsed, err := time.Parse(providerDateLayout, t.Date)
		if err != nil {
			return time.Time{}, false, false
		}
		return parsed, true, true
	}
	if t.DateTime != "" {
		parsed, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false, false
		}
		return parsed, false, true
	}
	return time.Time{}, false, false
}

// toProviderEvent converts a local event into the gateway's wire shape.
func toProviderEvent(event models.CalendarEvent) provider.Event {
	out := provider.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       formatEventTime(event.StartDatetime, event.IsAllDay),
	}
	if event.GoogleEventID != nil {
		out.ID = *event.GoogleEventID
	}
	if event.Etag != nil {
		out.Etag = *event.Etag
	}
	if event.EndDatetime != nil {
		out.End = formatEventTime(*event.EndDatetime, event.IsAllDay)
	}

	props := map[string]string{
		models.PropEntityType: string(event.EntityType),
		models.PropEntityID:   event.EntityID,
	}
	for k, v := range event.ExtendedProperties {
		props[k] = v
	}
	out.ExtendedProperties = &provider.ExtendedProperties{Private: props}

	for _, attendee := range event.Attendees {
		out.Attendees = append(out.Attendees, provider.EventAttendee{
			ID:             attendee.ID,
			Type:           string(attendee.Type),
			ResponseStatus: attendee.ResponseStatus,
			RatePerHour:    attendee.RatePerHour,
		})
	}
	return out
}

func formatEventTime(t time.Time, allDay bool) *provider.EventTime {
	if allDay {
		return &provider.EventTime{Date: t.Format(providerDateLayout)}
	}
	return &provider.EventTime{DateTime: t.Format(time.RFC3339)}
}

// patchFromMapped builds a full-field patch from a freshly mapped provider
// event, for applying over an existing mirror row.
func patchFromMapped(mapped models.CalendarEvent, syncedAt time.Time) models.EventPatch {
	start := mapped.StartDatetime
	allDay := mapped.IsAllDay
	title := mapped.Title
	description := mapped.Description
	location := mapped.Location

	patch := models.EventPatch{
		Etag:               mapped.Etag,
		StartDatetime:      &start,
		EndDatetime:        mapped.EndDatetime,
		IsAllDay:           &allDay,
		Title:              &title,
		Description:        &description,
		Location:           &location,
		LastSyncedAt:       &syncedAt,
		ExtendedProperties: mapped.ExtendedProperties,
		Attendees:          mapped.Attendees,
	}
	if patch.Attendees == nil {
		// A provider event with no attendees clears the stored list.
		patch.Attendees = []models.Attendee{}
	}
	return patch
}
