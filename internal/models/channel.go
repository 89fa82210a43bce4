package models

import "time"

// PushChannelTTL is how long a new push-notification channel lives. Renewal
// is an external responsibility; this service never extends a channel.
const PushChannelTTL = 7 * 24 * time.Hour

// PushChannel records a provider push-notification registration.
type PushChannel struct {
	ID         string    `json:"id"`
	CalendarID string    `json:"calendar_id"`
	ResourceID string    `json:"resource_id"`
	Expiration time.Time `json:"expiration"`
	CreatedAt  time.Time `json:"created_at"`
}
