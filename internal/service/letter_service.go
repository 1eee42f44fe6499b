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

// LetterInput is a parsed piece of correspondence reported for a ticket.
type LetterInput struct {
	Type       domain.LetterType
	ReceivedAt time.Time
}

// LetterService ingests parsed enforcement letters, annotates them against
// the ticket's stage, and advances the ticket when the letter is the next
// expected step.
type LetterService struct {
	letters    repository.LetterRepository
	tickets    repository.TicketRepository
	history    repository.StatusHistoryRepository
	reminders  *ReminderService
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// LetterDependencies bundles collaborator requirements.
type LetterDependencies struct {
	LetterRepo  repository.LetterRepository
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.StatusHistoryRepository
	Reminders   *ReminderService
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
}

// NewLetterService constructs the service.
func NewLetterService(deps LetterDependencies) *LetterService {
	return &LetterService{
		letters:    deps.LetterRepo,
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		reminders:  deps.Reminders,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

var knownLetterTypes = map[domain.LetterType]struct{}{
	domain.LetterInitialNotice:         {},
	domain.LetterNoticeToOwner:         {},
	domain.LetterChargeCertificate:     {},
	domain.LetterOrderForRecovery:      {},
	domain.LetterCCJNotice:             {},
	domain.LetterBailiffNotice:         {},
	domain.LetterChallengeRejection:    {},
	domain.LetterRepresentationOutcome: {},
	domain.LetterAppealDecision:        {},
}

// IngestLetter stores the letter with its sequence flag. Ingestion never
// refuses a letter for being out of sequence; the flag records the anomaly.
// A clean letter that is exactly the next expected enforcement step also
// advances the ticket status.
func (s *LetterService) IngestLetter(ctx context.Context, ticket *domain.Ticket, input LetterInput) (*domain.Letter, error) {
	if _, ok := knownLetterTypes[input.Type]; !ok {
		return nil, apperrors.NewValidationError("unknown letter type", map[string]any{"type": input.Type})
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	letter := &domain.Letter{
		TicketID:   ticket.ID,
		Type:       input.Type,
		Flag:       domain.CheckLetterSequence(ticket.Status, input.Type),
		ReceivedAt: receivedAt,
	}
	if err := s.letters.Create(ctx, letter); err != nil {
		return nil, err
	}

	if letter.Flag != domain.FlagNone {
		s.logger.Warn("letter flagged",
			zap.String("ticket_id", ticket.ID),
			zap.String("letter_type", string(letter.Type)),
			zap.String("flag", string(letter.Flag)))
		s.publishEvent(ctx, events.Event{
			Type:     events.EventLetterFlagged,
			TicketID: ticket.ID,
			Actor:    domain.ActorLetterParser,
			Payload: events.LetterFlaggedPayload{
				LetterID:   letter.ID,
				LetterType: letter.Type,
				Flag:       letter.Flag,
				Status:     ticket.Status,
			},
		})
		return letter, nil
	}

	s.advanceFromLetter(ctx, ticket, letter)
	return letter, nil
}

// ListLetters returns the ticket's correspondence, newest first.
func (s *LetterService) ListLetters(ctx context.Context, ticketID string) ([]domain.Letter, error) {
	return s.letters.ListByTicket(ctx, ticketID)
}

// advanceFromLetter performs the parser-driven status move. Only a clean
// sequenced letter implies a status, and the guarded write keeps a racing
// escalation or live check from being overwritten.
func (s *LetterService) advanceFromLetter(ctx context.Context, ticket *domain.Ticket, letter *domain.Letter) {
	implied, ok := domain.ImpliedStatus(letter.Type)
	if !ok || implied == ticket.Status || domain.IsClosed(ticket.Status) {
		return
	}

	oldStatus := ticket.Status
	if err := s.tickets.UpdateStatusIfCurrent(ctx, ticket.ID, oldStatus, implied, domain.ActorLetterParser); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Info("letter status advance lost to concurrent update",
				zap.String("ticket_id", ticket.ID))
			return
		}
		s.logger.Error("letter status advance failed",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return
	}
	ticket.Status = implied
	ticket.StatusUpdatedAt = time.Now()
	ticket.StatusUpdatedBy = domain.ActorLetterParser

	if err := s.history.Create(ctx, &domain.StatusHistory{
		TicketID:  ticket.ID,
		OldStatus: oldStatus,
		NewStatus: implied,
		Actor:     domain.ActorLetterParser,
		Note:      "letter received: " + string(letter.Type),
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

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		Actor:    domain.ActorLetterParser,
		Payload: events.TicketStatusChangedPayload{
			OldStatus: oldStatus,
			NewStatus: implied,
			Note:      "letter received: " + string(letter.Type),
		},
	})
}

func (s *LetterService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	_ = s.dispatcher.Publish(ctx, event)
}
