package models

import "time"

// SyncCursor stores the incremental sync position for one calendar. A cursor
// with a token implies the last sync for that calendar completed; deleting it
// forces the next pass to fall back to a full time-bounded sync.
type SyncCursor struct {
	CalendarID    string    `json:"calendar_id"`
	NextSyncToken string    `json:"next_sync_token"`
	LastSyncTime  time.Time `json:"last_sync_time"`
}

// SyncStats counts the changes applied by one sync pass.
type SyncStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// ConflictLogEntry is an append-only record of an etag mismatch that
// reconciliation could not resolve automatically. Never mutated or deleted
// by this service.
type ConflictLogEntry struct {
	ID            int64     `json:"id"`
	CalendarID    string    `json:"calendar_id"`
	GoogleEventID string    `json:"google_event_id"`
	ErrorMessage  string    `json:"error_message"`
	CreatedAt     time.Time `json:"created_at"`
}
