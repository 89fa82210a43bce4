package models

import (
	"time"
)

// EntityType classifies what a calendar event is booked against.
type EntityType string

const (
	EntityWorkOrder EntityType = "work_order"
	EntityProject   EntityType = "project"
	EntityAdHoc     EntityType = "ad_hoc"
)

// EntityIDUnassigned is the sentinel entity id used when a provider event
// carries no entity linkage in its extended properties.
const EntityIDUnassigned = "unassigned"

// Extended-property keys stored on the provider event so reconciliation can
// recover entity linkage and day-expansion metadata without a side lookup.
const (
	PropEntityType      = "entity_type"
	PropEntityID        = "entity_id"
	PropDayNumber       = "day_number"
	PropTotalDays       = "total_days"
	PropOriginalEventID = "original_event_id"
)

type AttendeeType string

const (
	AttendeeEmployee      AttendeeType = "employee"
	AttendeeSubcontractor AttendeeType = "subcontractor"
	AttendeeVendor        AttendeeType = "vendor"
)

// Attendee is a person booked onto an event.
type Attendee struct {
	ID             string       `json:"id"`
	Type           AttendeeType `json:"type"`
	RatePerHour    *float64     `json:"rate_per_hour,omitempty"`
	ResponseStatus string       `json:"response_status,omitempty"`
}

// CalendarEvent is the local mirror copy of a provider calendar event.
// GoogleEventID is nil until the event has round-tripped to the provider.
type CalendarEvent struct {
	ID            string  `json:"id"`
	GoogleEventID *string `json:"google_event_id"`
	Etag          *string `json:"etag"`

	StartDatetime time.Time  `json:"start_datetime"`
	EndDatetime   *time.Time `json:"end_datetime"`
	IsAllDay      bool       `json:"is_all_day"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Location    string `json:"location"`

	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`

	CalendarID   string     `json:"calendar_id"`
	SyncEnabled  bool       `json:"sync_enabled"`
	LastSyncedAt *time.Time `json:"last_synced_at"`

	ExtendedProperties map[string]string `json:"extended_properties"`
	Attendees          []Attendee        `json:"attendees"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventPatch is a partial update applied to a mirror row. Nil fields are
// left untouched.
type EventPatch struct {
	GoogleEventID      *string
	Etag               *string
	StartDatetime      *time.Time
	EndDatetime        *time.Time
	IsAllDay           *bool
	Title              *string
	Description        *string
	Location           *string
	LastSyncedAt       *time.Time
	ExtendedProperties map[string]string
	Attendees          []Attendee
}
