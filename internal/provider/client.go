package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// MaxRetryAttempts bounds how many times one gateway round trip is tried.
const MaxRetryAttempts = 3

const defaultBaseDelay = 1 * time.Second

type ClientConfig struct {
	BaseURL   string
	AuthToken string
	// BaseDelay is the linear backoff unit: attempt n waits n * BaseDelay.
	BaseDelay  time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the live HTTP client for the calendar gateway.
type Client struct {
	baseURL    string
	token      string
	baseDelay  time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.AuthToken,
		baseDelay:  cfg.BaseDelay,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
	if c.baseDelay <= 0 {
		c.baseDelay = defaultBaseDelay
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// AuthStatus probes the gateway for the user's grant. Retried like every
// other round trip: the caller fails closed on error, so a transient blip
// that survives the retry budget would otherwise misreport an authorized
// user.
func (c *Client) AuthStatus(ctx context.Context, userToken string) (bool, error) {
	bearer := userToken
	if bearer == "" {
		bearer = c.token
	}

	var out struct {
		Authenticated bool `json:"authenticated"`
	}
	err := c.withRetry(ctx, "auth status", func() error {
		return c.do(ctx, http.MethodGet, "/calendar/auth/status", nil, nil, &out, bearer)
	})
	if err != nil {
		return false, err
	}
	return out.Authenticated, nil
}

func (c *Client) CreateEvent(ctx context.Context, req *CreateEventRequest) (*EventResponse, error) {
	var out EventResponse
	err := c.withRetry(ctx, "create event", func() error {
		return c.do(ctx, http.MethodPost, "/calendar/events", nil, req, &out, c.token)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateEvent(ctx context.Context, googleEventID string, req *UpdateEventRequest) (*EventResponse, error) {
	var out EventResponse
	path := "/calendar/events/" + url.PathEscape(googleEventID)
	err := c.withRetry(ctx, "update event", func() error {
		return c.do(ctx, http.MethodPut, path, nil, req, &out, c.token)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteEvent(ctx context.Context, googleEventID, calendarID string, strategy AuthStrategy) error {
	q := url.Values{}
	q.Set("calendarId", calendarID)
	q.Set("authStrategy", string(strategy))
	path := "/calendar/events/" + url.PathEscape(googleEventID)
	return c.withRetry(ctx, "delete event", func() error {
		return c.do(ctx, http.MethodDelete, path, q, nil, nil, c.token)
	})
}

func (c *Client) ListEvents(ctx context.Context, query ListQuery) ([]Event, error) {
	q := url.Values{}
	q.Set("calendarId", query.CalendarID)
	q.Set("timeMin", query.TimeMin)
	q.Set("timeMax", query.TimeMax)
	q.Set("authStrategy", string(query.AuthStrategy))

	var out struct {
		Events []Event `json:"events"`
	}
	err := c.withRetry(ctx, "list events", func() error {
		return c.do(ctx, http.MethodGet, "/calendar/events", q, nil, &out, c.token)
	})
	if err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) SyncEvents(ctx context.Context, query SyncQuery) (*SyncPage, error) {
	q := url.Values{}
	q.Set("calendarId", query.CalendarID)
	q.Set("authStrategy", string(query.AuthStrategy))
	if query.SyncToken != "" {
		q.Set("syncToken", query.SyncToken)
	} else {
		q.Set("timeMin", query.TimeMin)
	}
	if query.PageToken != "" {
		q.Set("pageToken", query.PageToken)
	}

	var out SyncPage
	err := c.withRetry(ctx, "sync events", func() error {
		return c.do(ctx, http.MethodGet, "/calendar/events", q, nil, &out, c.token)
	})
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusGone {
			return nil, ErrSyncTokenExpired
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) Watch(ctx context.Context, req *WatchRequest) (*WatchResponse, error) {
	var out WatchResponse
	err := c.withRetry(ctx, "watch calendar", func() error {
		return c.do(ctx, http.MethodPost, "/calendar/watch", nil, req, &out, c.token)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// withRetry runs op up to MaxRetryAttempts times with linear backoff
// (attempt × baseDelay). A 410 is definitive and not retried; the original
// error propagates after the final attempt.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= MaxRetryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var reqErr *RequestError
		if errors.As(lastErr, &reqErr) && reqErr.StatusCode == http.StatusGone {
			return lastErr
		}

		if attempt < MaxRetryAttempts {
			c.logger.Warn("provider request failed, retrying",
				"op", op, "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(time.Duration(attempt) * c.baseDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, bearer string) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var errBody struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &errBody)
		return &RequestError{StatusCode: resp.StatusCode, Message: errBody.Message}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
