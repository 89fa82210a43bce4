package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildrite/crewcal/internal/models"
)

type PostgresCalendarSettingsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresCalendarSettingsRepository(pool *pgxpool.Pool) *PostgresCalendarSettingsRepository {
	return &PostgresCalendarSettingsRepository{pool: pool}
}

func (r *PostgresCalendarSettingsRepository) GetByEntityType(ctx context.Context, entityType models.EntityType) (*models.CalendarSettings, error) {
	query := `SELECT entity_type, calendar_id, sync_enabled, updated_at
	          FROM calendar_settings
	          WHERE entity_type = $1`

	var settings models.CalendarSettings
	err := r.pool.QueryRow(ctx, query, entityType).Scan(
		&settings.EntityType,
		&settings.CalendarID,
		&settings.SyncEnabled,
		&settings.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get calendar settings: %w", err)
	}
	return &settings, nil
}

func (r *PostgresCalendarSettingsRepository) Upsert(ctx context.Context, settings *models.CalendarSettings) error {
	query := `INSERT INTO calendar_settings (entity_type, calendar_id, sync_enabled, updated_at)
	          VALUES ($1, $2, $3, NOW())
	          ON CONFLICT (entity_type)
	          DO UPDATE SET calendar_id = EXCLUDED.calendar_id,
	                        sync_enabled = EXCLUDED.sync_enabled,
	                        updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, settings.EntityType, settings.CalendarID, settings.SyncEnabled)
	if err != nil {
		return fmt.Errorf("failed to upsert calendar settings: %w", err)
	}
	return nil
}

// GetOrganizationCalendar reads the legacy single-row org config.
func (r *PostgresCalendarSettingsRepository) GetOrganizationCalendar(ctx context.Context) (*models.OrganizationCalendar, error) {
	query := `SELECT calendar_id, updated_at FROM organization_calendar WHERE id = TRUE`

	var org models.OrganizationCalendar
	err := r.pool.QueryRow(ctx, query).Scan(&org.CalendarID, &org.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization calendar: %w", err)
	}
	return &org, nil
}

func (r *PostgresCalendarSettingsRepository) SetOrganizationCalendar(ctx context.Context, calendarID string) error {
	query := `INSERT INTO organization_calendar (id, calendar_id, updated_at)
	          VALUES (TRUE, $1, NOW())
	          ON CONFLICT (id)
	          DO UPDATE SET calendar_id = EXCLUDED.calendar_id, updated_at = NOW()`

	_, err := r.pool.Exec(ctx, query, calendarID)
	if err != nil {
		return fmt.Errorf("failed to set organization calendar: %w", err)
	}
	return nil
}
