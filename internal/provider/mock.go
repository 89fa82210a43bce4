package provider

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is the offline implementation of API. Every call answers
// deterministically from memory with no network or retry activity, so the
// rest of the application and its tests run without gateway credentials.
type MockClient struct {
	mu      sync.Mutex
	counter int
	events  map[string]Event
}

func NewMockClient() *MockClient {
	return &MockClient{events: make(map[string]Event)}
}

func (m *MockClient) AuthStatus(ctx context.Context, userToken string) (bool, error) {
	return true, nil
}

func (m *MockClient) CreateEvent(ctx context.Context, req *CreateEventRequest) (*EventResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	event := req.Event
	event.ID = fmt.Sprintf("mock-event-%d", m.counter)
	event.Etag = fmt.Sprintf("mock-etag-%d", m.counter)
	m.events[event.ID] = event

	return &EventResponse{
		Event:         &event,
		GoogleEventID: event.ID,
		Etag:          event.Etag,
	}, nil
}

func (m *MockClient) UpdateEvent(ctx context.Context, googleEventID string, req *UpdateEventRequest) (*EventResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	event := req.Event
	event.ID = googleEventID
	event.Etag = fmt.Sprintf("mock-etag-%d", m.counter)
	m.events[googleEventID] = event

	return &EventResponse{
		Event:         &event,
		GoogleEventID: googleEventID,
		Etag:          event.Etag,
	}, nil
}

func (m *MockClient) DeleteEvent(ctx context.Context, googleEventID, calendarID string, strategy AuthStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.events, googleEventID)
	return nil
}

func (m *MockClient) ListEvents(ctx context.Context, q ListQuery) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]Event, 0, len(m.events))
	for _, event := range m.events {
		events = append(events, event)
	}
	return events, nil
}

func (m *MockClient) SyncEvents(ctx context.Context, q SyncQuery) (*SyncPage, error) {
	return &SyncPage{NextSyncToken: "mock-sync-token"}, nil
}

func (m *MockClient) Watch(ctx context.Context, req *WatchRequest) (*WatchResponse, error) {
	return &WatchResponse{ResourceID: "mock-resource-" + req.ChannelID}, nil
}
