package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildrite/crewcal/internal/models"
)

type PostgresAssignmentRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAssignmentRepository(pool *pgxpool.Pool) *PostgresAssignmentRepository {
	return &PostgresAssignmentRepository{pool: pool}
}

// Upsert writes one assignment keyed on (entity, assignee, start date), so
// re-running the same event's assignment creation never duplicates rows.
func (r *PostgresAssignmentRepository) Upsert(ctx context.Context, assignment *models.Assignment) error {
	query := `INSERT INTO assignments
	          (entity_type, entity_id, assignee_id, assignee_type, calendar_id,
	           google_event_id, etag, start_date, end_date, rate_per_hour)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	          ON CONFLICT (entity_type, entity_id, assignee_id, start_date)
	          DO UPDATE SET assignee_type = EXCLUDED.assignee_type,
	                        calendar_id = EXCLUDED.calendar_id,
	                        google_event_id = EXCLUDED.google_event_id,
	                        etag = EXCLUDED.etag,
	                        end_date = EXCLUDED.end_date,
	                        rate_per_hour = EXCLUDED.rate_per_hour,
	                        updated_at = NOW()
	          RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		assignment.EntityType,
		assignment.EntityID,
		assignment.AssigneeID,
		assignment.AssigneeType,
		assignment.CalendarID,
		assignment.GoogleEventID,
		assignment.Etag,
		assignment.StartDate,
		assignment.EndDate,
		assignment.RatePerHour,
	).Scan(&assignment.ID, &assignment.CreatedAt, &assignment.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert assignment: %w", err)
	}
	return nil
}

func (r *PostgresAssignmentRepository) ListByEntity(ctx context.Context, entityType models.EntityType, entityID string) ([]*models.Assignment, error) {
	query := `SELECT id, entity_type, entity_id, assignee_id, assignee_type, calendar_id,
	                 google_event_id, etag, start_date, end_date, rate_per_hour, created_at, updated_at
	          FROM assignments
	          WHERE entity_type = $1 AND entity_id = $2
	          ORDER BY start_date ASC, assignee_id ASC`

	rows, err := r.pool.Query(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*models.Assignment
	for rows.Next() {
		var a models.Assignment
		err := rows.Scan(
			&a.ID, &a.EntityType, &a.EntityID, &a.AssigneeID, &a.AssigneeType,
			&a.CalendarID, &a.GoogleEventID, &a.Etag, &a.StartDate, &a.EndDate,
			&a.RatePerHour, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}
	return assignments, nil
}

// DeleteByEntity removes every assignment for the entity regardless of which
// provider event it references.
func (r *PostgresAssignmentRepository) DeleteByEntity(ctx context.Context, entityType models.EntityType, entityID string) (int64, error) {
	result, err := r.pool.Exec(ctx,
		`DELETE FROM assignments WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete assignments: %w", err)
	}
	return result.RowsAffected(), nil
}
