package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/events"
	"github.com/pcnpilot/pcn-service/internal/repository"
	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets    repository.TicketRepository
	history    repository.StatusHistoryRepository
	letters    repository.LetterRepository
	reminders  *ReminderService
	dispatcher events.Dispatcher
}

// TicketDependencies bundles repositories for ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.StatusHistoryRepository
	LetterRepo  repository.LetterRepository
	Reminders   *ReminderService
	Dispatcher  events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	PCNNumber     string
	VehicleReg    string
	IssuerID      string
	IssuedAt      time.Time
	InitialAmount int64
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		tickets:    deps.TicketRepo,
		history:    deps.HistoryRepo,
		letters:    deps.LetterRepo,
		reminders:  deps.Reminders,
		dispatcher: deps.Dispatcher,
	}
}

// CreateTicket registers a new PCN for an owner. New tickets start in the
// discount period.
func (s *TicketService) CreateTicket(ctx context.Context, ownerID string, input TicketCreateInput) (*domain.Ticket, error) {
	if input.InitialAmount <= 0 {
		return nil, apperrors.NewValidationError("initial amount must be positive", nil)
	}
	if input.IssuedAt.After(time.Now()) {
		return nil, apperrors.NewValidationError("issue date cannot be in the future", nil)
	}

	ticket := &domain.Ticket{
		Reference:       generateTicketReference(),
		OwnerID:         ownerID,
		PCNNumber:       strings.ToUpper(strings.TrimSpace(input.PCNNumber)),
		VehicleReg:      normalizeVehicleReg(input.VehicleReg),
		IssuerID:        input.IssuerID,
		Status:          domain.StatusDiscountPeriod,
		StatusUpdatedBy: domain.ActorUser,
		IssuedAt:        input.IssuedAt,
		InitialAmount:   input.InitialAmount,
	}
	if ticket.PCNNumber == "" || ticket.VehicleReg == "" || ticket.IssuerID == "" {
		return nil, apperrors.NewValidationError("pcn number, vehicle reg and issuer required", nil)
	}

	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	if s.reminders != nil {
		_ = s.reminders.Recalculate(ctx, ticket)
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    domain.ActorUser,
		Payload: events.TicketCreatedPayload{
			IssuerID:      ticket.IssuerID,
			PCNNumber:     ticket.PCNNumber,
			InitialAmount: ticket.InitialAmount,
		},
	})
	return ticket, nil
}

// ListOwnerTickets returns paginated tickets for an owner.
func (s *TicketService) ListOwnerTickets(ctx context.Context, ownerID string, limit, offset int) ([]domain.Ticket, error) {
	return s.tickets.ListByOwner(ctx, ownerID, limit, offset)
}

// GetTicketForOwner fetches a ticket ensuring ownership, with its letters
// and status audit trail.
func (s *TicketService) GetTicketForOwner(ctx context.Context, ownerID, ticketID string) (*domain.Ticket, []domain.Letter, []domain.StatusHistory, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, nil, nil, err
	}
	if ticket.OwnerID != ownerID {
		return nil, nil, nil, apperrors.NewForbidden("access denied")
	}
	letters, err := s.letters.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	history, err := s.history.ListByTicket(ctx, ticket.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return ticket, letters, history, nil
}

// RequireOwnedTicket loads a ticket and enforces ownership. Shared by the
// automation and letter flows so domain checks run before any job dispatch.
func (s *TicketService) RequireOwnedTicket(ctx context.Context, ownerID, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.OwnerID != ownerID {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
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

func generateTicketReference() string {
	return "PCN-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func normalizeVehicleReg(reg string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(reg), " ", ""))
}
