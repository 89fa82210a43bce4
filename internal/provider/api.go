package provider

import "context"

// API is the calendar gateway surface the services depend on. The live
// Client and the offline MockClient both implement it, so offline mode is a
// wiring decision rather than a branch inside every operation.
type API interface {
	// AuthStatus reports whether the given user token currently holds a
	// valid provider grant.
	AuthStatus(ctx context.Context, userToken string) (bool, error)

	CreateEvent(ctx context.Context, req *CreateEventRequest) (*EventResponse, error)
	UpdateEvent(ctx context.Context, googleEventID string, req *UpdateEventRequest) (*EventResponse, error)
	DeleteEvent(ctx context.Context, googleEventID, calendarID string, strategy AuthStrategy) error
	ListEvents(ctx context.Context, q ListQuery) ([]Event, error)

	// SyncEvents fetches one page of changes. Returns ErrSyncTokenExpired
	// when the gateway answers 410 to a sync-token request.
	SyncEvents(ctx context.Context, q SyncQuery) (*SyncPage, error)

	Watch(ctx context.Context, req *WatchRequest) (*WatchResponse, error)
}
