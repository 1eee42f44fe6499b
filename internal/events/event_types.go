package events

import (
	"time"

	"github.com/pcnpilot/pcn-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated        EventType = "ticket_created"
	EventTicketEscalated      EventType = "ticket_escalated"
	EventTicketStatusChanged  EventType = "ticket_status_changed"
	EventStatusCheckCompleted EventType = "status_check_completed"
	EventLetterFlagged        EventType = "letter_flagged"
	EventIssuerGenerationDone EventType = "issuer_generation_done"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string             `json:"id"`
	Type      EventType          `json:"type"`
	TicketID  string             `json:"ticket_id,omitempty"`
	Actor     domain.StatusActor `json:"actor,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
	Payload   interface{}        `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	IssuerID      string `json:"issuer_id"`
	PCNNumber     string `json:"pcn_number"`
	InitialAmount int64  `json:"initial_amount"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	OldStatus      domain.TicketStatus `json:"old_status"`
	NewStatus      domain.TicketStatus `json:"new_status"`
	DiscountAmount int64               `json:"discount_amount"`
	FullAmount     int64               `json:"full_amount"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Note      string              `json:"note,omitempty"`
}

// StatusCheckCompletedPayload payload.
type StatusCheckCompletedPayload struct {
	JobID        string                    `json:"job_id"`
	Outcome      domain.VerificationStatus `json:"outcome"`
	PortalStatus string                    `json:"portal_status,omitempty"`
	MappedStatus *domain.TicketStatus      `json:"mapped_status,omitempty"`
}

// LetterFlaggedPayload payload.
type LetterFlaggedPayload struct {
	LetterID   string              `json:"letter_id"`
	LetterType domain.LetterType   `json:"letter_type"`
	Flag       domain.LetterFlag   `json:"flag"`
	Status     domain.TicketStatus `json:"status"`
}

// IssuerGenerationDonePayload payload.
type IssuerGenerationDonePayload struct {
	IssuerID       string                     `json:"issuer_id"`
	Status         domain.PendingIssuerStatus `json:"status"`
	PullRequestURL *string                    `json:"pull_request_url,omitempty"`
	FailedCount    int64                      `json:"failed_count,omitempty"`
}
