package models

import "time"

// Assignment links a person to a bookable entity for a date range, derived
// from calendar event attendance. One row per attendee per event day.
// Replaced wholesale (delete then recreate) when the owning event's
// attendees change.
type Assignment struct {
	ID            int64      `json:"id"`
	EntityType    EntityType `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	AssigneeID    string     `json:"assignee_id"`
	AssigneeType  AttendeeType `json:"assignee_type"`
	CalendarID    string     `json:"calendar_id"`
	GoogleEventID string     `json:"google_event_id"`
	Etag          string     `json:"etag"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       *time.Time `json:"end_date"`
	RatePerHour   *float64   `json:"rate_per_hour"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
