package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pcnpilot/pcn-service/internal/domain"
)

// PendingIssuerRepository stores not-yet-supported issuers.
type PendingIssuerRepository interface {
	Create(ctx context.Context, issuer *domain.PendingIssuer) error
	GetByIssuerID(ctx context.Context, issuerID string) (*domain.PendingIssuer, error)
	// UpdateStatus overwrites generation state for an issuer. Idempotent
	// under webhook re-delivery: replaying a payload converges to the same
	// row.
	UpdateStatus(ctx context.Context, issuerID string, status domain.PendingIssuerStatus, prURL, errorMessage *string) error
}

type pendingIssuerRepository struct {
	pool *pgxpool.Pool
}

// NewPendingIssuerRepository instantiates repository.
func NewPendingIssuerRepository(pool *pgxpool.Pool) PendingIssuerRepository {
	return &pendingIssuerRepository{pool: pool}
}

func (r *pendingIssuerRepository) Create(ctx context.Context, issuer *domain.PendingIssuer) error {
	const query = `
        INSERT INTO pending_issuers (issuer_id, name, portal_url, status)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		issuer.IssuerID,
		issuer.Name,
		issuer.PortalURL,
		issuer.Status,
	).Scan(&issuer.ID, &issuer.CreatedAt, &issuer.UpdatedAt)
}

func (r *pendingIssuerRepository) GetByIssuerID(ctx context.Context, issuerID string) (*domain.PendingIssuer, error) {
	const query = `
        SELECT id, issuer_id, name, portal_url, status, pull_request_url, error_message, created_at, updated_at
        FROM pending_issuers WHERE issuer_id=$1`
	var issuer domain.PendingIssuer
	if err := r.pool.QueryRow(ctx, query, issuerID).Scan(
		&issuer.ID,
		&issuer.IssuerID,
		&issuer.Name,
		&issuer.PortalURL,
		&issuer.Status,
		&issuer.PullRequestURL,
		&issuer.ErrorMessage,
		&issuer.CreatedAt,
		&issuer.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &issuer, nil
}

func (r *pendingIssuerRepository) UpdateStatus(ctx context.Context, issuerID string, status domain.PendingIssuerStatus, prURL, errorMessage *string) error {
	const query = `
        UPDATE pending_issuers SET status=$1, pull_request_url=$2, error_message=$3, updated_at=NOW()
        WHERE issuer_id=$4`
	cmd, err := r.pool.Exec(ctx, query, status, prURL, errorMessage, issuerID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// PendingChallengeRepository stores challenges queued behind issuer support.
type PendingChallengeRepository interface {
	Create(ctx context.Context, challenge *domain.PendingChallenge) error
	ListByIssuer(ctx context.Context, issuerID string) ([]domain.PendingChallenge, error)
	// UpdateManyByIssuer bulk-transitions every challenge for an issuer
	// currently in the from state. Returns the number updated.
	UpdateManyByIssuer(ctx context.Context, issuerID string, from, to domain.PendingChallengeStatus) (int64, error)
}

type pendingChallengeRepository struct {
	pool *pgxpool.Pool
}

// NewPendingChallengeRepository instantiates repository.
func NewPendingChallengeRepository(pool *pgxpool.Pool) PendingChallengeRepository {
	return &pendingChallengeRepository{pool: pool}
}

func (r *pendingChallengeRepository) Create(ctx context.Context, challenge *domain.PendingChallenge) error {
	const query = `
        INSERT INTO pending_challenges (issuer_id, ticket_id, owner_user_id, status)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		challenge.IssuerID,
		challenge.TicketID,
		challenge.OwnerID,
		challenge.Status,
	).Scan(&challenge.ID, &challenge.CreatedAt, &challenge.UpdatedAt)
}

func (r *pendingChallengeRepository) ListByIssuer(ctx context.Context, issuerID string) ([]domain.PendingChallenge, error) {
	const query = `
        SELECT id, issuer_id, ticket_id, owner_user_id, status, created_at, updated_at
        FROM pending_challenges WHERE issuer_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, issuerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.PendingChallenge
	for rows.Next() {
		var challenge domain.PendingChallenge
		if err := rows.Scan(
			&challenge.ID,
			&challenge.IssuerID,
			&challenge.TicketID,
			&challenge.OwnerID,
			&challenge.Status,
			&challenge.CreatedAt,
			&challenge.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, challenge)
	}
	return result, rows.Err()
}

func (r *pendingChallengeRepository) UpdateManyByIssuer(ctx context.Context, issuerID string, from, to domain.PendingChallengeStatus) (int64, error) {
	const query = `
        UPDATE pending_challenges SET status=$1, updated_at=NOW()
        WHERE issuer_id=$2 AND status=$3`
	cmd, err := r.pool.Exec(ctx, query, to, issuerID, from)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
