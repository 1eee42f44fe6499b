package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/events"
	"github.com/pcnpilot/pcn-service/internal/repository"
	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

// GenerationUpdate is an issuer-automation progress report delivered over the
// signed webhook.
type GenerationUpdate struct {
	IssuerID       string
	Status         domain.PendingIssuerStatus
	PullRequestURL *string
	ErrorMessage   *string
}

// IssuerService tracks issuers whose portal automation is still being
// generated and applies webhook progress reports to them.
type IssuerService struct {
	issuers    repository.PendingIssuerRepository
	challenges repository.PendingChallengeRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// IssuerDependencies bundles collaborator requirements.
type IssuerDependencies struct {
	IssuerRepo    repository.PendingIssuerRepository
	ChallengeRepo repository.PendingChallengeRepository
	Dispatcher    events.Dispatcher
	Logger        *zap.Logger
}

// NewIssuerService constructs the service.
func NewIssuerService(deps IssuerDependencies) *IssuerService {
	return &IssuerService{
		issuers:    deps.IssuerRepo,
		challenges: deps.ChallengeRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// RequestGeneration records an issuer whose automation is not built yet. A
// repeat request for the same issuer is a no-op.
func (s *IssuerService) RequestGeneration(ctx context.Context, issuerID, name string) (*domain.PendingIssuer, error) {
	if existing, err := s.issuers.GetByIssuerID(ctx, issuerID); err == nil {
		return existing, nil
	}
	issuer := &domain.PendingIssuer{
		IssuerID: issuerID,
		Name:     name,
		Status:   domain.IssuerRequested,
	}
	if err := s.issuers.Create(ctx, issuer); err != nil {
		return nil, err
	}
	s.logger.Info("issuer generation requested", zap.String("issuer_id", issuerID))
	return issuer, nil
}

// QueueChallenge parks a challenge against an issuer whose automation is not
// ready. It is released when generation completes.
func (s *IssuerService) QueueChallenge(ctx context.Context, issuerID, ticketID, ownerID string) (*domain.PendingChallenge, error) {
	if _, err := s.issuers.GetByIssuerID(ctx, issuerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("pending issuer", map[string]any{"issuer_id": issuerID})
		}
		return nil, err
	}
	challenge := &domain.PendingChallenge{
		IssuerID: issuerID,
		TicketID: ticketID,
		OwnerID:  ownerID,
		Status:   domain.ChallengeWaiting,
	}
	if err := s.challenges.Create(ctx, challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// HandleGenerationUpdate applies one webhook progress report. Updates are
// idempotent and never move an issuer backwards: a replayed or late report
// for an earlier stage is acknowledged and dropped, so out-of-order delivery
// always converges on the most advanced state.
func (s *IssuerService) HandleGenerationUpdate(ctx context.Context, update GenerationUpdate) error {
	issuer, err := s.issuers.GetByIssuerID(ctx, update.IssuerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("pending issuer", map[string]any{"issuer_id": update.IssuerID})
		}
		return err
	}

	if !domain.IssuerStatusAdvances(issuer.Status, update.Status) {
		s.logger.Info("stale issuer update dropped",
			zap.String("issuer_id", update.IssuerID),
			zap.String("current", string(issuer.Status)),
			zap.String("reported", string(update.Status)))
		return nil
	}
	if issuer.Status == update.Status && update.Status != domain.IssuerPRCreated {
		// Same-rank replay with nothing new to record.
		return nil
	}

	if err := s.issuers.UpdateStatus(ctx, update.IssuerID, update.Status, update.PullRequestURL, update.ErrorMessage); err != nil {
		return err
	}

	var failedCount int64
	if update.Status == domain.IssuerFailed {
		failedCount, err = s.challenges.UpdateManyByIssuer(ctx, update.IssuerID, domain.ChallengeWaiting, domain.ChallengeFailed)
		if err != nil {
			return err
		}
	}

	s.logger.Info("issuer generation update applied",
		zap.String("issuer_id", update.IssuerID),
		zap.String("status", string(update.Status)),
		zap.Int64("failed_challenges", failedCount))

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventIssuerGenerationDone,
			Timestamp: time.Now(),
			Payload: events.IssuerGenerationDonePayload{
				IssuerID:       update.IssuerID,
				Status:         update.Status,
				PullRequestURL: update.PullRequestURL,
				FailedCount:    failedCount,
			},
		})
	}
	return nil
}
