package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildrite/crewcal/internal/models"
)

// PostgresConflictLogRepository is append-only: this service never mutates
// or deletes conflict entries.
type PostgresConflictLogRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresConflictLogRepository(pool *pgxpool.Pool) *PostgresConflictLogRepository {
	return &PostgresConflictLogRepository{pool: pool}
}

func (r *PostgresConflictLogRepository) Insert(ctx context.Context, entry *models.ConflictLogEntry) error {
	query := `INSERT INTO conflict_logs (calendar_id, google_event_id, error_message)
	          VALUES ($1, $2, $3)
	          RETURNING id, created_at`

	err := r.pool.QueryRow(ctx, query,
		entry.CalendarID,
		entry.GoogleEventID,
		entry.ErrorMessage,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert conflict log entry: %w", err)
	}
	return nil
}

func (r *PostgresConflictLogRepository) ListByCalendarID(ctx context.Context, calendarID string) ([]*models.ConflictLogEntry, error) {
	query := `SELECT id, calendar_id, google_event_id, error_message, created_at
	          FROM conflict_logs
	          WHERE calendar_id = $1
	          ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, calendarID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conflict logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.ConflictLogEntry
	for rows.Next() {
		var entry models.ConflictLogEntry
		err := rows.Scan(&entry.ID, &entry.CalendarID, &entry.GoogleEventID, &entry.ErrorMessage, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict log entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating conflict logs: %w", err)
	}
	return entries, nil
}
