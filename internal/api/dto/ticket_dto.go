package dto

import (
	"time"

	"github.com/pcnpilot/pcn-service/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	PCNNumber     string    `json:"pcn_number"`
	VehicleReg    string    `json:"vehicle_reg"`
	IssuerID      string    `json:"issuer_id"`
	IssuedAt      time.Time `json:"issued_at"`
	InitialAmount int64     `json:"initial_amount"`
}

// TicketSummary response.
type TicketSummary struct {
	ID              string              `json:"id"`
	Reference       string              `json:"reference"`
	PCNNumber       string              `json:"pcn_number"`
	VehicleReg      string              `json:"vehicle_reg"`
	IssuerID        string              `json:"issuer_id"`
	Status          domain.TicketStatus `json:"status"`
	StatusUpdatedAt time.Time           `json:"status_updated_at"`
	StatusUpdatedBy domain.StatusActor  `json:"status_updated_by"`
	IssuedAt        time.Time           `json:"issued_at"`
	InitialAmount   int64               `json:"initial_amount"`
	DiscountAmount  int64               `json:"discount_amount"`
	NextReminderAt  *time.Time          `json:"next_reminder_at"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	Letters []LetterResponse        `json:"letters"`
	History []StatusHistoryResponse `json:"history"`
}

// SubmitChallengeRequest queues a challenge for a ticket whose issuer has no
// automation support yet.
type SubmitChallengeRequest struct {
	IssuerName string `json:"issuer_name"`
}

// CreateLetterRequest reports a parsed letter for a ticket.
type CreateLetterRequest struct {
	Type       domain.LetterType `json:"type"`
	ReceivedAt *time.Time        `json:"received_at"`
}

// LetterResponse represents one piece of correspondence.
type LetterResponse struct {
	ID         string            `json:"id"`
	Type       domain.LetterType `json:"type"`
	Flag       domain.LetterFlag `json:"flag"`
	ReceivedAt time.Time         `json:"received_at"`
	CreatedAt  time.Time         `json:"created_at"`
}

// StatusHistoryResponse represents one audit entry.
type StatusHistoryResponse struct {
	ID        string              `json:"id"`
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Actor     domain.StatusActor  `json:"actor"`
	Note      string              `json:"note,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}
