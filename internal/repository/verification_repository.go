package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pcnpilot/pcn-service/internal/domain"
)

// ErrJobInFlight is returned when a claim finds an existing PENDING record.
var ErrJobInFlight = errors.New("verification job already in flight")

// ErrRecordSuperseded is returned when a result arrives for a job handle that
// no longer owns the ticket's record.
var ErrRecordSuperseded = errors.New("verification record superseded")

// StatusPromotion describes the ticket status write performed atomically with
// a verified record when the mapped status is in the terminal allowlist.
type StatusPromotion struct {
	Expected domain.TicketStatus
	Next     domain.TicketStatus
	Note     string
}

// VerificationRepository stores the single per-ticket automation record.
type VerificationRepository interface {
	GetByTicket(ctx context.Context, ticketID string) (*domain.VerificationRecord, error)
	// Claim upserts the per-ticket record to PENDING with the given job
	// handle. The write is conditional: it succeeds only when no record
	// exists or the existing one is terminal, which makes the at-most-one
	// pending job invariant race-free. Returns ErrJobInFlight otherwise.
	Claim(ctx context.Context, ticketID string, vType domain.VerificationType, jobID string) (*domain.VerificationRecord, error)
	// Release deletes a PENDING claim that could not be honored, guarded
	// by the job handle so a newer claim is never disturbed.
	Release(ctx context.Context, ticketID, jobID string) error
	// MarkVerified finalizes the record and, when promotion is non-nil,
	// updates the ticket status and appends the audit row in the same
	// transaction.
	MarkVerified(ctx context.Context, ticketID, jobID string, result *domain.VerifiedResult, promotion *StatusPromotion) error
	MarkFailed(ctx context.Context, ticketID, jobID string, result *domain.FailedResult) error
}

type verificationRepository struct {
	pool *pgxpool.Pool
}

// NewVerificationRepository instantiates repository.
func NewVerificationRepository(pool *pgxpool.Pool) VerificationRepository {
	return &verificationRepository{pool: pool}
}

func (r *verificationRepository) GetByTicket(ctx context.Context, ticketID string) (*domain.VerificationRecord, error) {
	const query = `
        SELECT id, ticket_id, type, status, job_id, verified_payload, failed_payload, verified_at, created_at, updated_at
        FROM verification_records WHERE ticket_id=$1`
	return scanVerificationRecord(r.pool.QueryRow(ctx, query, ticketID))
}

func (r *verificationRepository) Claim(ctx context.Context, ticketID string, vType domain.VerificationType, jobID string) (*domain.VerificationRecord, error) {
	const query = `
        INSERT INTO verification_records (ticket_id, type, status, job_id)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (ticket_id) DO UPDATE
            SET type=EXCLUDED.type, status=EXCLUDED.status, job_id=EXCLUDED.job_id,
                verified_payload=NULL, failed_payload=NULL, verified_at=NULL, updated_at=NOW()
            WHERE verification_records.status <> $3
        RETURNING id, ticket_id, type, status, job_id, verified_payload, failed_payload, verified_at, created_at, updated_at`
	record, err := scanVerificationRecord(r.pool.QueryRow(ctx, query, ticketID, vType, domain.VerificationPending, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobInFlight
		}
		return nil, err
	}
	return record, nil
}

func (r *verificationRepository) Release(ctx context.Context, ticketID, jobID string) error {
	const query = `
        DELETE FROM verification_records WHERE ticket_id=$1 AND job_id=$2 AND status=$3`
	_, err := r.pool.Exec(ctx, query, ticketID, jobID, domain.VerificationPending)
	return err
}

func (r *verificationRepository) MarkVerified(ctx context.Context, ticketID, jobID string, result *domain.VerifiedResult, promotion *StatusPromotion) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal verified payload: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const recordQuery = `
        UPDATE verification_records
        SET status=$1, job_id=NULL, verified_payload=$2, verified_at=NOW(), updated_at=NOW()
        WHERE ticket_id=$3 AND job_id=$4 AND status=$5`
	cmd, err := tx.Exec(ctx, recordQuery, domain.VerificationVerified, payload, ticketID, jobID, domain.VerificationPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		// The claim was superseded by a newer dispatch and this job's
		// result is orphaned.
		return ErrRecordSuperseded
	}

	if promotion != nil {
		const ticketQuery = `
            UPDATE tickets SET status=$1, status_updated_at=NOW(), status_updated_by=$2, updated_at=NOW()
            WHERE id=$3 AND status=$4`
		cmd, err := tx.Exec(ctx, ticketQuery, promotion.Next, domain.ActorLiveStatusCheck, ticketID, promotion.Expected)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() > 0 {
			const historyQuery = `
                INSERT INTO status_history (ticket_id, old_status, new_status, actor, note)
                VALUES ($1,$2,$3,$4,$5)`
			if _, err := tx.Exec(ctx, historyQuery, ticketID, promotion.Expected, promotion.Next, domain.ActorLiveStatusCheck, promotion.Note); err != nil {
				return err
			}
		}
	}

	return tx.Commit(ctx)
}

func (r *verificationRepository) MarkFailed(ctx context.Context, ticketID, jobID string, result *domain.FailedResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal failed payload: %w", err)
	}
	const query = `
        UPDATE verification_records
        SET status=$1, job_id=NULL, failed_payload=$2, updated_at=NOW()
        WHERE ticket_id=$3 AND job_id=$4 AND status=$5`
	cmd, err := r.pool.Exec(ctx, query, domain.VerificationFailed, payload, ticketID, jobID, domain.VerificationPending)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrRecordSuperseded
	}
	return nil
}

func scanVerificationRecord(row pgx.Row) (*domain.VerificationRecord, error) {
	var record domain.VerificationRecord
	var verifiedPayload, failedPayload []byte
	if err := row.Scan(
		&record.ID,
		&record.TicketID,
		&record.Type,
		&record.Status,
		&record.JobID,
		&verifiedPayload,
		&failedPayload,
		&record.VerifiedAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(verifiedPayload) > 0 {
		record.Verified = &domain.VerifiedResult{}
		if err := json.Unmarshal(verifiedPayload, record.Verified); err != nil {
			return nil, fmt.Errorf("unmarshal verified payload: %w", err)
		}
	}
	if len(failedPayload) > 0 {
		record.Failed = &domain.FailedResult{}
		if err := json.Unmarshal(failedPayload, record.Failed); err != nil {
			return nil, fmt.Errorf("unmarshal failed payload: %w", err)
		}
	}
	return &record, nil
}
