package domain

import "time"

// StatusActor identifies which code path last wrote a ticket's status.
type StatusActor string

const (
	ActorUser            StatusActor = "USER"
	ActorCronEscalation  StatusActor = "CRON_ESCALATION"
	ActorLiveStatusCheck StatusActor = "LIVE_STATUS_CHECK"
	ActorLetterParser    StatusActor = "LETTER_PARSER"
)

// Ticket is the aggregate for one penalty charge notice.
type Ticket struct {
	ID              string
	Reference       string
	OwnerID         string
	PCNNumber       string
	VehicleReg      string
	IssuerID        string
	Status          TicketStatus
	StatusUpdatedAt time.Time
	StatusUpdatedBy StatusActor
	IssuedAt        time.Time
	// InitialAmount is the full charge in pence; the discounted amount
	// payable inside the discount window is half of it.
	InitialAmount  int64
	NextReminderAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DiscountAmount returns the reduced amount payable during the discount period.
func (t *Ticket) DiscountAmount() int64 {
	return t.InitialAmount / 2
}
