package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildrite/crewcal/internal/models"
)

type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

const eventColumns = `id, google_event_id, etag, start_datetime, end_datetime, is_all_day,
	title, description, location, entity_type, entity_id, calendar_id, sync_enabled,
	last_synced_at, extended_properties, attendees, created_at, updated_at`

// Insert stores a new mirror row and returns its id, generating one when the
// event arrives without it.
func (r *PostgresEventRepository) Insert(ctx context.Context, event *models.CalendarEvent) (string, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.ExtendedProperties == nil {
		event.ExtendedProperties = map[string]string{}
	}

	props, err := json.Marshal(event.ExtendedProperties)
	if err != nil {
		return "", fmt.Errorf("failed to marshal extended properties: %w", err)
	}
	attendees, err := json.Marshal(event.Attendees)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attendees: %w", err)
	}

	query := `INSERT INTO calendar_events
	          (id, google_event_id, etag, start_datetime, end_datetime, is_all_day,
	           title, description, location, entity_type, entity_id, calendar_id,
	           sync_enabled, last_synced_at, extended_properties, attendees)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	          RETURNING created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		event.ID,
		event.GoogleEventID,
		event.Etag,
		event.StartDatetime,
		event.EndDatetime,
		event.IsAllDay,
		event.Title,
		event.Description,
		event.Location,
		event.EntityType,
		event.EntityID,
		event.CalendarID,
		event.SyncEnabled,
		event.LastSyncedAt,
		props,
		attendees,
	).Scan(&event.CreatedAt, &event.UpdatedAt)

	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}
	return event.ID, nil
}

func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*models.CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events WHERE id = $1`

	event, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event by ID: %w", err)
	}
	return event, nil
}

func (r *PostgresEventRepository) GetByGoogleEventID(ctx context.Context, googleEventID, calendarID string) ([]*models.CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
	          WHERE google_event_id = $1 AND calendar_id = $2
	          ORDER BY start_datetime ASC`

	return r.queryEvents(ctx, query, googleEventID, calendarID)
}

func (r *PostgresEventRepository) ListByTimeRange(ctx context.Context, calendarID string, timeMin, timeMax time.Time) ([]*models.CalendarEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM calendar_events
	          WHERE calendar_id = $1 AND start_datetime >= $2 AND start_datetime < $3
	          ORDER BY start_datetime ASC`

	return r.queryEvents(ctx, query, calendarID, timeMin, timeMax)
}

// Update applies a partial patch by id.
func (r *PostgresEventRepository) Update(ctx context.Context, id string, patch models.EventPatch) error {
	return r.applyPatch(ctx, id, patch, nil)
}

// UpdateIfEtag applies the patch only while the stored etag still equals
// expectedEtag. A row that exists with a different etag yields
// ErrEtagConflict.
func (r *PostgresEventRepository) UpdateIfEtag(ctx context.Context, id string, patch models.EventPatch, expectedEtag string) error {
	err := r.applyPatch(ctx, id, patch, &expectedEtag)
	if errors.Is(err, ErrNotFound) {
		// Distinguish "gone" from "moved": a present row means the guard failed.
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return ErrEtagConflict
		}
	}
	return err
}

func (r *PostgresEventRepository) applyPatch(ctx context.Context, id string, patch models.EventPatch, expectedEtag *string) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.GoogleEventID != nil {
		add("google_event_id", *patch.GoogleEventID)
	}
	if patch.Etag != nil {
		add("etag", *patch.Etag)
	}
	if patch.StartDatetime != nil {
		add("start_datetime", *patch.StartDatetime)
	}
	if patch.EndDatetime != nil {
		add("end_datetime", *patch.EndDatetime)
	}
	if patch.IsAllDay != nil {
		add("is_all_day", *patch.IsAllDay)
	}
	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	if patch.LastSyncedAt != nil {
		add("last_synced_at", *patch.LastSyncedAt)
	}
	if patch.ExtendedProperties != nil {
		props, err := json.Marshal(patch.ExtendedProperties)
		if err != nil {
			return fmt.Errorf("failed to marshal extended properties: %w", err)
		}
		add("extended_properties", props)
	}
	if patch.Attendees != nil {
		attendees, err := json.Marshal(patch.Attendees)
		if err != nil {
			return fmt.Errorf("failed to marshal attendees: %w", err)
		}
		add("attendees", attendees)
	}

	query := fmt.Sprintf("UPDATE calendar_events SET %s WHERE id = $1", strings.Join(sets, ", "))
	if expectedEtag != nil {
		args = append(args, *expectedEtag)
		query += fmt.Sprintf(" AND etag IS NOT DISTINCT FROM $%d", len(args))
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresEventRepository) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM calendar_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresEventRepository) DeleteByGoogleEventID(ctx context.Context, googleEventID, calendarID string) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM calendar_events WHERE google_event_id = $1 AND calendar_id = $2`,
		googleEventID, calendarID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events by google event ID: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *PostgresEventRepository) queryEvents(ctx context.Context, query string, args ...any) ([]*models.CalendarEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []*models.CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

func scanEvent(row pgx.Row) (*models.CalendarEvent, error) {
	var event models.CalendarEvent
	var props, attendees []byte

	err := row.Scan(
		&event.ID,
		&event.GoogleEventID,
		&event.Etag,
		&event.StartDatetime,
		&event.EndDatetime,
		&event.IsAllDay,
		&event.Title,
		&event.Description,
		&event.Location,
		&event.EntityType,
		&event.EntityID,
		&event.CalendarID,
		&event.SyncEnabled,
		&event.LastSyncedAt,
		&props,
		&attendees,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(props, &event.ExtendedProperties); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extended properties: %w", err)
	}
	if err := json.Unmarshal(attendees, &event.Attendees); err != nil {
		return nil, fmt.Errorf("failed to unmarshal attendees: %w", err)
	}
	return &event, nil
}
