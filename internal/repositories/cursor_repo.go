package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildrite/crewcal/internal/models"
)

type PostgresSyncCursorRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSyncCursorRepository(pool *pgxpool.Pool) *PostgresSyncCursorRepository {
	return &PostgresSyncCursorRepository{pool: pool}
}

func (r *PostgresSyncCursorRepository) GetByCalendarID(ctx context.Context, calendarID string) (*models.SyncCursor, error) {
	query := `SELECT calendar_id, next_sync_token, last_sync_time
	          FROM sync_cursors
	          WHERE calendar_id = $1`

	var cursor models.SyncCursor
	err := r.pool.QueryRow(ctx, query, calendarID).Scan(
		&cursor.CalendarID,
		&cursor.NextSyncToken,
		&cursor.LastSyncTime,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync cursor: %w", err)
	}
	return &cursor, nil
}

func (r *PostgresSyncCursorRepository) Upsert(ctx context.Context, cursor *models.SyncCursor) error {
	query := `INSERT INTO sync_cursors (calendar_id, next_sync_token, last_sync_time)
	          VALUES ($1, $2, $3)
	          ON CONFLICT (calendar_id)
	          DO UPDATE SET next_sync_token = EXCLUDED.next_sync_token,
	                        last_sync_time = EXCLUDED.last_sync_time`

	_, err := r.pool.Exec(ctx, query, cursor.CalendarID, cursor.NextSyncToken, cursor.LastSyncTime)
	if err != nil {
		return fmt.Errorf("failed to upsert sync cursor: %w", err)
	}
	return nil
}

// Delete drops the cursor so the next sync falls back to a full pass. It is
// not an error if the cursor is already gone.
func (r *PostgresSyncCursorRepository) Delete(ctx context.Context, calendarID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sync_cursors WHERE calendar_id = $1`, calendarID)
	if err != nil {
		return fmt.Errorf("failed to delete sync cursor: %w", err)
	}
	return nil
}
