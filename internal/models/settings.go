package models

import "time"

// CalendarSettings maps one entity type to the provider calendar its events
// live in. First tier of the calendar-id fallback chain.
type CalendarSettings struct {
	EntityType  EntityType `json:"entity_type"`
	CalendarID  string     `json:"calendar_id"`
	SyncEnabled bool       `json:"sync_enabled"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// OrganizationCalendar is the legacy single org-wide calendar config, kept as
// the second fallback tier for installs that predate per-entity settings.
type OrganizationCalendar struct {
	CalendarID string    `json:"calendar_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}
