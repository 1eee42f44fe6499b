package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pcnpilot/pcn-service/internal/automation"
	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/events"
	"github.com/pcnpilot/pcn-service/internal/persistence"
	"github.com/pcnpilot/pcn-service/internal/repository"
	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

const (
	healthSnapshotKey = "automation:health:latest"
	healthSnapshotTTL = 24 * time.Hour
)

// WorkerClient is the outbound contract to the browser-automation worker.
type WorkerClient interface {
	StartStatusCheck(ctx context.Context, req automation.StatusCheckRequest) (string, error)
	GetStatusCheck(ctx context.Context, jobID string) (*automation.JobStatus, error)
	RunHealthCheck(ctx context.Context) (*automation.HealthReport, error)
}

// PollState is the client-facing poll outcome.
type PollState string

const (
	PollNoJob     PollState = "no_job"
	PollRunning   PollState = "running"
	PollCompleted PollState = "completed"
	PollFailed    PollState = "failed"
)

// PollResult carries the poll outcome and whatever evidence is stored.
type PollResult struct {
	State    PollState
	Progress *int
	Verified *domain.VerifiedResult
	Failed   *domain.FailedResult
	// TransientError is set when the worker was unreachable; the job is
	// still pending and the client should retry later.
	TransientError string
}

// VerificationService dispatches status-check jobs, correlates their results
// back into the per-ticket verification record, and promotes ticket status
// for terminal observations.
type VerificationService struct {
	records    repository.VerificationRepository
	tickets    repository.TicketRepository
	worker     WorkerClient
	cache      *persistence.Redis
	reminders  *ReminderService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// VerificationDependencies bundles collaborator requirements.
type VerificationDependencies struct {
	RecordRepo repository.VerificationRepository
	TicketRepo repository.TicketRepository
	Worker     WorkerClient
	Cache      *persistence.Redis
	Reminders  *ReminderService
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewVerificationService constructs the service.
func NewVerificationService(deps VerificationDependencies) *VerificationService {
	return &VerificationService{
		records:    deps.RecordRepo,
		tickets:    deps.TicketRepo,
		worker:     deps.Worker,
		cache:      deps.Cache,
		reminders:  deps.Reminders,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// StartStatusCheck dispatches a live status check for a ticket the caller
// owns. Exactly one record per ticket exists afterwards, PENDING with the
// worker's job handle. A second dispatch while one is in flight is rejected.
func (s *VerificationService) StartStatusCheck(ctx context.Context, ticket *domain.Ticket) (string, error) {
	if record, err := s.records.GetByTicket(ctx, ticket.ID); err == nil {
		if record.Status == domain.VerificationPending {
			return "", apperrors.NewConflict("status check already in flight", map[string]any{"ticket_id": ticket.ID})
		}
	}

	jobID, err := s.worker.StartStatusCheck(ctx, automation.StatusCheckRequest{
		TicketID:   ticket.ID,
		PCNNumber:  ticket.PCNNumber,
		VehicleReg: ticket.VehicleReg,
		IssuerID:   ticket.IssuerID,
	})
	if err != nil {
		if errors.Is(err, automation.ErrWorkerUnavailable) {
			return "", apperrors.NewUpstreamUnavailable("automation worker unavailable, try again later", err)
		}
		return "", err
	}

	if _, err := s.records.Claim(ctx, ticket.ID, domain.VerificationTypeStatusCheck, jobID); err != nil {
		if errors.Is(err, repository.ErrJobInFlight) {
			// A concurrent dispatch won the claim; this job's eventual
			// result is orphaned since the worker cannot be cancelled.
			s.logger.Warn("dispatch lost claim race, orphaning job",
				zap.String("ticket_id", ticket.ID), zap.String("job_id", jobID))
			return "", apperrors.NewConflict("status check already in flight", map[string]any{"ticket_id": ticket.ID})
		}
		return "", err
	}
	s.logger.Info("status check dispatched",
		zap.String("ticket_id", ticket.ID), zap.String("job_id", jobID))
	return jobID, nil
}

// Poll reports progress for the ticket's latest automation attempt. Polls of
// a terminal record are cheap reads; only PENDING records query the worker.
func (s *VerificationService) Poll(ctx context.Context, ticket *domain.Ticket) (*PollResult, error) {
	record, err := s.records.GetByTicket(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &PollResult{State: PollNoJob}, nil
		}
		return nil, err
	}

	switch record.Status {
	case domain.VerificationVerified:
		return &PollResult{State: PollCompleted, Verified: record.Verified}, nil
	case domain.VerificationFailed:
		return &PollResult{State: PollFailed, Failed: record.Failed}, nil
	}

	if record.JobID == nil {
		// PENDING without a handle should not happen; surface as no job
		// rather than guessing.
		s.logger.Error("pending verification record without job id", zap.String("ticket_id", ticket.ID))
		return &PollResult{State: PollNoJob}, nil
	}

	status, err := s.worker.GetStatusCheck(ctx, *record.JobID)
	if err != nil {
		if errors.Is(err, automation.ErrWorkerUnavailable) {
			// Transport blip: the record stays PENDING; tell the client
			// to retry rather than corrupting the record.
			return &PollResult{State: PollRunning, TransientError: "worker unreachable, retry shortly"}, nil
		}
		return nil, err
	}

	switch status.State {
	case automation.JobRunning:
		return &PollResult{State: PollRunning, Progress: status.Progress}, nil
	case automation.JobCompleted:
		return s.completeVerified(ctx, ticket, *record.JobID, status.Result)
	case automation.JobFailed:
		return s.completeFailed(ctx, ticket, *record.JobID, status.Result)
	default:
		return &PollResult{State: PollRunning, TransientError: "worker reported unknown state"}, nil
	}
}

func (s *VerificationService) completeVerified(ctx context.Context, ticket *domain.Ticket, jobID string, raw *automation.StatusCheckResult) (*PollResult, error) {
	result := &domain.VerifiedResult{}
	if raw != nil {
		result.PortalStatus = raw.PortalStatus
		result.MappedStatus = domain.MapPortalStatus(raw.PortalStatus)
		result.OutstandingAmount = raw.OutstandingAmount
		result.CanChallenge = raw.CanChallenge
		result.CanPay = raw.CanPay
		result.ScreenshotKey = raw.ScreenshotKey
	}

	// Only terminal, unambiguous observations may overwrite the ticket;
	// everything else is recorded as evidence.
	var promotion *repository.StatusPromotion
	if result.MappedStatus != nil &&
		domain.IsTerminalAutoWrite(*result.MappedStatus) &&
		*result.MappedStatus != ticket.Status {
		promotion = &repository.StatusPromotion{
			Expected: ticket.Status,
			Next:     *result.MappedStatus,
			Note:     "portal status: " + result.PortalStatus,
		}
	}

	if err := s.records.MarkVerified(ctx, ticket.ID, jobID, result, promotion); err != nil {
		if errors.Is(err, repository.ErrRecordSuperseded) {
			return &PollResult{State: PollRunning, TransientError: "record superseded by newer dispatch"}, nil
		}
		return nil, err
	}

	if promotion != nil {
		if updated, err := s.tickets.GetByID(ctx, ticket.ID); err == nil {
			*ticket = *updated
			if s.reminders != nil {
				_ = s.reminders.Recalculate(ctx, ticket)
			}
		}
		s.publishEvent(ctx, events.Event{
			Type:     events.EventTicketStatusChanged,
			TicketID: ticket.ID,
			Actor:    domain.ActorLiveStatusCheck,
			Payload: events.TicketStatusChangedPayload{
				OldStatus: promotion.Expected,
				NewStatus: promotion.Next,
				Note:      promotion.Note,
			},
		})
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventStatusCheckCompleted,
		TicketID: ticket.ID,
		Actor:    domain.ActorLiveStatusCheck,
		Payload: events.StatusCheckCompletedPayload{
			JobID:        jobID,
			Outcome:      domain.VerificationVerified,
			PortalStatus: result.PortalStatus,
			MappedStatus: result.MappedStatus,
		},
	})

	return &PollResult{State: PollCompleted, Verified: result}, nil
}

func (s *VerificationService) completeFailed(ctx context.Context, ticket *domain.Ticket, jobID string, raw *automation.StatusCheckResult) (*PollResult, error) {
	result := &domain.FailedResult{ErrorMessage: "status check failed"}
	if raw != nil {
		if raw.ErrorMessage != "" {
			result.ErrorMessage = raw.ErrorMessage
		}
		result.ScreenshotKey = raw.ScreenshotKey
	}

	if err := s.records.MarkFailed(ctx, ticket.ID, jobID, result); err != nil {
		if errors.Is(err, repository.ErrRecordSuperseded) {
			return &PollResult{State: PollRunning, TransientError: "record superseded by newer dispatch"}, nil
		}
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventStatusCheckCompleted,
		TicketID: ticket.ID,
		Actor:    domain.ActorLiveStatusCheck,
		Payload: events.StatusCheckCompletedPayload{
			JobID:   jobID,
			Outcome: domain.VerificationFailed,
		},
	})
	return &PollResult{State: PollFailed, Failed: result}, nil
}

// RunHealthCheck triggers the fleet probe and caches the snapshot.
func (s *VerificationService) RunHealthCheck(ctx context.Context) (*automation.HealthReport, error) {
	report, err := s.worker.RunHealthCheck(ctx)
	if err != nil {
		if errors.Is(err, automation.ErrWorkerUnavailable) {
			return nil, apperrors.NewUpstreamUnavailable("automation worker unavailable", err)
		}
		return nil, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(report); err == nil {
			if err := s.cache.SetJSON(ctx, healthSnapshotKey, payload, healthSnapshotTTL); err != nil {
				s.logger.Warn("failed to cache health snapshot", zap.Error(err))
			}
		}
	}
	return report, nil
}

// CachedHealthReport returns the latest stored fleet snapshot, or nil when
// none has been recorded yet.
func (s *VerificationService) CachedHealthReport(ctx context.Context) (*automation.HealthReport, error) {
	if s.cache == nil {
		return nil, nil
	}
	payload, err := s.cache.GetJSON(ctx, healthSnapshotKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var report automation.HealthReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *VerificationService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
