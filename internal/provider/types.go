// Package provider talks to the external calendar gateway. Everything here
// mirrors the gateway's JSON wire surface; mapping into the local event
// model happens in the services layer.
package provider

import (
	"errors"
	"fmt"
)

// AuthStrategy selects the identity a gateway call is authorized under.
type AuthStrategy string

const (
	// AuthOAuth acts as the calling user's personal grant.
	AuthOAuth AuthStrategy = "oauth"
	// AuthServiceAccount acts as the fixed service identity. Shared
	// organizational calendars are always written under this strategy so
	// event ownership does not depend on who triggered the write.
	AuthServiceAccount AuthStrategy = "service_account"
)

// ErrSyncTokenExpired reports a 410 on a sync-token request: the token is
// permanently invalid and the caller must fall back to a full sync.
var ErrSyncTokenExpired = errors.New("sync token expired")

// RequestError is a non-2xx gateway response.
type RequestError struct {
	StatusCode int
	Message    string
}

func (e *RequestError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("provider request failed with status %d", e.StatusCode)
}

// EventTime is the provider's date-or-datetime union. Exactly one of the
// fields is set: Date for all-day events, DateTime otherwise.
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

type EventAttendee struct {
	ID             string   `json:"id,omitempty"`
	Email          string   `json:"email,omitempty"`
	Type           string   `json:"type,omitempty"`
	ResponseStatus string   `json:"responseStatus,omitempty"`
	RatePerHour    *float64 `json:"ratePerHour,omitempty"`
}

type ExtendedProperties struct {
	Private map[string]string `json:"private,omitempty"`
}

// Event is the gateway's wire representation of a calendar event.
type Event struct {
	ID                 string              `json:"id,omitempty"`
	Etag               string              `json:"etag,omitempty"`
	Status             string              `json:"status,omitempty"`
	Summary            string              `json:"summary,omitempty"`
	Description        string              `json:"description,omitempty"`
	Location           string              `json:"location,omitempty"`
	Start              *EventTime          `json:"start,omitempty"`
	End                *EventTime          `json:"end,omitempty"`
	Attendees          []EventAttendee     `json:"attendees,omitempty"`
	ExtendedProperties *ExtendedProperties `json:"extendedProperties,omitempty"`
}

// StatusCancelled marks an item in a sync response as a deletion.
const StatusCancelled = "cancelled"

// GoogleOptions carries provider pass-through options, notably whether
// attendees are notified about the change.
type GoogleOptions struct {
	SendUpdates string `json:"sendUpdates,omitempty"`
}

type CreateEventRequest struct {
	Event         Event          `json:"event"`
	CalendarID    string         `json:"calendar_id"`
	AuthStrategy  AuthStrategy   `json:"authStrategy"`
	GoogleOptions *GoogleOptions `json:"googleOptions,omitempty"`
}

type UpdateEventRequest struct {
	Event         Event          `json:"event"`
	CalendarID    string         `json:"calendar_id"`
	AuthStrategy  AuthStrategy   `json:"authStrategy"`
	GoogleOptions *GoogleOptions `json:"googleOptions,omitempty"`
}

// EventResponse is the gateway's answer to a create or update.
type EventResponse struct {
	Event         *Event `json:"event"`
	GoogleEventID string `json:"google_event_id"`
	Etag          string `json:"etag"`
}

// ListQuery is a time-range event listing.
type ListQuery struct {
	CalendarID   string
	TimeMin      string
	TimeMax      string
	AuthStrategy AuthStrategy
}

// SyncQuery requests changes for one calendar: incremental when SyncToken is
// set, otherwise a full listing bounded by TimeMin. PageToken continues a
// paginated response within one logical pass.
type SyncQuery struct {
	CalendarID   string
	SyncToken    string
	PageToken    string
	TimeMin      string
	AuthStrategy AuthStrategy
}

// SyncPage is one page of a sync response.
type SyncPage struct {
	Items         []Event `json:"items"`
	NextSyncToken string  `json:"nextSyncToken,omitempty"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

type WatchRequest struct {
	CalendarID string `json:"calendarId"`
	ChannelID  string `json:"channelId"`
	Address    string `json:"address"`
	Expiration int64  `json:"expiration"`
}

type WatchResponse struct {
	ResourceID string `json:"resourceId"`
}
