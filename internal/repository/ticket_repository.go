package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pcnpilot/pcn-service/internal/domain"
)

const ticketColumns = `id, reference, owner_user_id, pcn_number, vehicle_reg, issuer_id,
               status, status_updated_at, status_updated_by, issued_at, initial_amount,
               next_reminder_at, created_at, updated_at`

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Ticket, error)
	// ListEscalatable returns tickets still in the discount period whose
	// issue date is older than the cutoff.
	ListEscalatable(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error)
	CountEscalatable(ctx context.Context, cutoff time.Time) (int, error)
	// UpdateStatusIfCurrent writes the new status only when the stored
	// status still matches expected, keeping sweeps and concurrent pollers
	// idempotent. Returns pgx.ErrNoRows when the guard does not match.
	UpdateStatusIfCurrent(ctx context.Context, ticketID string, expected, next domain.TicketStatus, actor domain.StatusActor) error
	UpdateNextReminder(ctx context.Context, ticketID string, at *time.Time) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (reference, owner_user_id, pcn_number, vehicle_reg, issuer_id,
            status, status_updated_at, status_updated_by, issued_at, initial_amount)
        VALUES ($1,$2,$3,$4,$5,$6,NOW(),$7,$8,$9)
        RETURNING id, status_updated_at, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		ticket.Reference,
		ticket.OwnerID,
		ticket.PCNNumber,
		ticket.VehicleReg,
		ticket.IssuerID,
		ticket.Status,
		ticket.StatusUpdatedBy,
		ticket.IssuedAt,
		ticket.InitialAmount,
	).Scan(&ticket.ID, &ticket.StatusUpdatedAt, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(ticketFields(&ticket)...); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE owner_user_id=$1 ORDER BY issued_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListEscalatable(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE status=$1 AND issued_at < $2 ORDER BY issued_at ASC`
	rows, err := r.pool.Query(ctx, query, domain.StatusDiscountPeriod, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) CountEscalatable(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM tickets WHERE status=$1 AND issued_at < $2`
	var count int
	if err := r.pool.QueryRow(ctx, query, domain.StatusDiscountPeriod, cutoff).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *ticketRepository) UpdateStatusIfCurrent(ctx context.Context, ticketID string, expected, next domain.TicketStatus, actor domain.StatusActor) error {
	const query = `
        UPDATE tickets SET status=$1, status_updated_at=NOW(), status_updated_by=$2, updated_at=NOW()
        WHERE id=$3 AND status=$4`
	cmd, err := r.pool.Exec(ctx, query, next, actor, ticketID, expected)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) UpdateNextReminder(ctx context.Context, ticketID string, at *time.Time) error {
	const query = `UPDATE tickets SET next_reminder_at=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, at, ticketID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func ticketFields(ticket *domain.Ticket) []any {
	return []any{
		&ticket.ID,
		&ticket.Reference,
		&ticket.OwnerID,
		&ticket.PCNNumber,
		&ticket.VehicleReg,
		&ticket.IssuerID,
		&ticket.Status,
		&ticket.StatusUpdatedAt,
		&ticket.StatusUpdatedBy,
		&ticket.IssuedAt,
		&ticket.InitialAmount,
		&ticket.NextReminderAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	}
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(ticketFields(&ticket)...); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
