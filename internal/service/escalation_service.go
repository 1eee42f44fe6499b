package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/pcnpilot/pcn-service/internal/config"
	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/events"
	"github.com/pcnpilot/pcn-service/internal/repository"
)

// SweepResult summarizes a single escalation run.
type SweepResult struct {
	Processed int      `json:"processed"`
	Escalated int      `json:"escalated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// EscalationService moves tickets out of the discount window once it lapses.
type EscalationService struct {
	tickets    repository.TicketRepository
	history    repository.StatusHistoryRepository
	reminders  *ReminderService
	dispatcher events.Dispatcher
	window     time.Duration
	logger     *zap.Logger
}

// EscalationDependencies bundles collaborator requirements.
type EscalationDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.StatusHistoryRepository
	Reminders   *ReminderService
	Dispatcher  events.Dispatcher
	Config      config.EscalationConfig
	Logger      *zap.Logger
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDependencies) *EscalationService {
	return &EscalationService{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		reminders:  deps.Reminders,
		dispatcher: deps.Dispatcher,
		window:     deps.Config.DiscountWindow(),
		logger:     deps.Logger,
	}
}

// Sweep escalates every ticket still in the discount period whose issue date
// is older than the window. Each ticket is handled independently so one
// failure never aborts the run, and the guarded status write makes concurrent
// or repeated sweeps converge without double escalation.
func (s *EscalationService) Sweep(ctx context.Context) (*SweepResult, error) {
	cutoff := time.Now().Add(-s.window)
	candidates, err := s.tickets.ListEscalatable(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Processed: len(candidates)}
	for i := range candidates {
		ticket := &candidates[i]
		if err := s.escalate(ctx, ticket); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				// Someone else moved the ticket between listing and
				// the guarded write. Nothing to do.
				result.Skipped++
				continue
			}
			s.logger.Error("escalation failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
			result.Errors = append(result.Errors, ticket.ID+": "+err.Error())
			continue
		}
		result.Escalated++
	}

	s.logger.Info("escalation sweep finished",
		zap.Int("processed", result.Processed),
		zap.Int("escalated", result.Escalated),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)))
	return result, nil
}

// DryRun counts the tickets a sweep would touch without writing anything.
func (s *EscalationService) DryRun(ctx context.Context) (int, error) {
	return s.tickets.CountEscalatable(ctx, time.Now().Add(-s.window))
}

func (s *EscalationService) escalate(ctx context.Context, ticket *domain.Ticket) error {
	oldStatus := ticket.Status
	if err := s.tickets.UpdateStatusIfCurrent(ctx, ticket.ID, domain.StatusDiscountPeriod, domain.StatusFullCharge, domain.ActorCronEscalation); err != nil {
		return err
	}
	ticket.Status = domain.StatusFullCharge
	ticket.StatusUpdatedAt = time.Now()
	ticket.StatusUpdatedBy = domain.ActorCronEscalation

	if err := s.history.Create(ctx, &domain.StatusHistory{
		TicketID:  ticket.ID,
		OldStatus: oldStatus,
		NewStatus: domain.StatusFullCharge,
		Actor:     domain.ActorCronEscalation,
		Note:      "discount window expired",
	}); err != nil {
		s.logger.Warn("failed to append status history",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
	}

	if s.reminders != nil {
		if err := s.reminders.Recalculate(ctx, ticket); err != nil {
			s.logger.Warn("failed to recalculate reminder",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketEscalated,
			TicketID:  ticket.ID,
			Actor:     domain.ActorCronEscalation,
			Timestamp: time.Now(),
			Payload: events.TicketEscalatedPayload{
				OldStatus:      oldStatus,
				NewStatus:      domain.StatusFullCharge,
				DiscountAmount: ticket.DiscountAmount(),
				FullAmount:     ticket.InitialAmount,
			},
		})
	}
	return nil
}
