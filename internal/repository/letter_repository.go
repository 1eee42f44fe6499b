package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pcnpilot/pcn-service/internal/domain"
)

// LetterRepository stores ingested correspondence.
type LetterRepository interface {
	Create(ctx context.Context, letter *domain.Letter) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Letter, error)
}

type letterRepository struct {
	pool *pgxpool.Pool
}

// NewLetterRepository instantiates repository.
func NewLetterRepository(pool *pgxpool.Pool) LetterRepository {
	return &letterRepository{pool: pool}
}

func (r *letterRepository) Create(ctx context.Context, letter *domain.Letter) error {
	const query = `
        INSERT INTO letters (ticket_id, type, flag, received_at)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		letter.TicketID,
		letter.Type,
		letter.Flag,
		letter.ReceivedAt,
	).Scan(&letter.ID, &letter.CreatedAt)
}

func (r *letterRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Letter, error) {
	const query = `
        SELECT id, ticket_id, type, flag, received_at, created_at
        FROM letters WHERE ticket_id=$1 ORDER BY received_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Letter
	for rows.Next() {
		var letter domain.Letter
		if err := rows.Scan(
			&letter.ID,
			&letter.TicketID,
			&letter.Type,
			&letter.Flag,
			&letter.ReceivedAt,
			&letter.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, letter)
	}
	return result, rows.Err()
}
