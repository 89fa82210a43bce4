package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/buildrite/crewcal/internal/models"
)

type PostgresPushChannelRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresPushChannelRepository(pool *pgxpool.Pool) *PostgresPushChannelRepository {
	return &PostgresPushChannelRepository{pool: pool}
}

func (r *PostgresPushChannelRepository) Insert(ctx context.Context, channel *models.PushChannel) error {
	query := `INSERT INTO push_channels (id, calendar_id, resource_id, expiration)
	          VALUES ($1, $2, $3, $4)
	          RETURNING created_at`

	err := r.pool.QueryRow(ctx, query,
		channel.ID,
		channel.CalendarID,
		channel.ResourceID,
		channel.Expiration,
	).Scan(&channel.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert push channel: %w", err)
	}
	return nil
}

func (r *PostgresPushChannelRepository) GetByID(ctx context.Context, id string) (*models.PushChannel, error) {
	query := `SELECT id, calendar_id, resource_id, expiration, created_at
	          FROM push_channels
	          WHERE id = $1`

	var channel models.PushChannel
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&channel.ID,
		&channel.CalendarID,
		&channel.ResourceID,
		&channel.Expiration,
		&channel.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get push channel: %w", err)
	}
	return &channel, nil
}

func (r *PostgresPushChannelRepository) ListByCalendarID(ctx context.Context, calendarID string) ([]*models.PushChannel, error) {
	query := `SELECT id, calendar_id, resource_id, expiration, created_at
	          FROM push_channels
	          WHERE calendar_id = $1
	          ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, calendarID)
	if err != nil {
		return nil, fmt.Errorf("failed to query push channels: %w", err)
	}
	defer rows.Close()

	var channels []*models.PushChannel
	for rows.Next() {
		var channel models.PushChannel
		err := rows.Scan(&channel.ID, &channel.CalendarID, &channel.ResourceID, &channel.Expiration, &channel.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan push channel: %w", err)
		}
		channels = append(channels, &channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating push channels: %w", err)
	}
	return channels, nil
}
