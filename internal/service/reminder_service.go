package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/repository"
)

// reminderOffsets maps each status to the number of days after the last
// status change at which the owner should be nudged, tracking the statutory
// response windows.
var reminderOffsets = map[domain.TicketStatus]int{
	domain.StatusDiscountPeriod:     10,
	domain.StatusFullCharge:         14,
	domain.StatusNoticeToOwner:      21,
	domain.StatusChargeCertificate:  14,
	domain.StatusOrderForRecovery:   14,
	domain.StatusCCJRegistered:      7,
	domain.StatusBailiffStage:       3,
	domain.StatusChallengeSubmitted: 28,
	domain.StatusRepresentationMade: 28,
	domain.StatusAppealSubmitted:    28,
}

// ReminderService recomputes the next reminder date for a ticket. Callers
// that commit a status write invoke it explicitly; reminder upkeep is never
// hidden inside the storage layer.
type ReminderService struct {
	tickets repository.TicketRepository
	logger  *zap.Logger
}

// NewReminderService builds the service.
func NewReminderService(tickets repository.TicketRepository, logger *zap.Logger) *ReminderService {
	return &ReminderService{tickets: tickets, logger: logger}
}

// Recalculate derives and stores the ticket's next reminder date from its
// current status. Closed tickets get no reminder.
func (s *ReminderService) Recalculate(ctx context.Context, ticket *domain.Ticket) error {
	next := NextReminderAt(ticket.Status, ticket.StatusUpdatedAt)
	if err := s.tickets.UpdateNextReminder(ctx, ticket.ID, next); err != nil {
		s.logger.Error("failed to update next reminder",
			zap.String("ticket_id", ticket.ID), zap.Error(err))
		return err
	}
	ticket.NextReminderAt = next
	return nil
}

// NextReminderAt is the pure reminder rule.
func NextReminderAt(status domain.TicketStatus, statusUpdatedAt time.Time) *time.Time {
	if domain.IsClosed(status) {
		return nil
	}
	days, ok := reminderOffsets[status]
	if !ok {
		return nil
	}
	next := statusUpdatedAt.Add(time.Duration(days) * 24 * time.Hour)
	return &next
}
