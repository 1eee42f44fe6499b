package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pcnpilot/pcn-service/internal/domain"
)

// StatusHistoryRepository stores audit entries for status writes.
type StatusHistoryRepository interface {
	Create(ctx context.Context, history *domain.StatusHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistory, error)
}

type statusHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewStatusHistoryRepository builds repository.
func NewStatusHistoryRepository(pool *pgxpool.Pool) StatusHistoryRepository {
	return &statusHistoryRepository{pool: pool}
}

func (r *statusHistoryRepository) Create(ctx context.Context, history *domain.StatusHistory) error {
	const query = `
        INSERT INTO status_history (ticket_id, old_status, new_status, actor, note)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		history.TicketID,
		history.OldStatus,
		history.NewStatus,
		history.Actor,
		history.Note,
	).Scan(&history.ID, &history.CreatedAt)
}

func (r *statusHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistory, error) {
	const query = `
        SELECT id, ticket_id, old_status, new_status, actor, note, created_at
        FROM status_history WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.StatusHistory
	for rows.Next() {
		var history domain.StatusHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.OldStatus,
			&history.NewStatus,
			&history.Actor,
			&history.Note,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
