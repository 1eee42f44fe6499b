package domain

import "time"

// StatusHistory is an immutable audit trail entry for one status write.
type StatusHistory struct {
	ID        string
	TicketID  string
	OldStatus TicketStatus
	NewStatus TicketStatus
	Actor     StatusActor
	Note      string
	CreatedAt time.Time
}
