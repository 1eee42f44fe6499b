package domain

import "time"

// VerificationType enumerates automation attempt kinds.
type VerificationType string

const (
	VerificationTypeStatusCheck VerificationType = "TICKET_STATUS_CHECK"
)

// VerificationStatus tracks the lifecycle of one automation attempt.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationFailed   VerificationStatus = "FAILED"
)

// VerifiedResult carries the evidence of a successful status check.
type VerifiedResult struct {
	PortalStatus      string        `json:"portal_status"`
	MappedStatus      *TicketStatus `json:"mapped_status,omitempty"`
	OutstandingAmount *int64        `json:"outstanding_amount,omitempty"`
	CanChallenge      bool          `json:"can_challenge"`
	CanPay            bool          `json:"can_pay"`
	ScreenshotKey     *string       `json:"screenshot_key,omitempty"`
}

// FailedResult carries diagnostics for a failed status check.
type FailedResult struct {
	ErrorMessage  string  `json:"error_message"`
	ScreenshotKey *string `json:"screenshot_key,omitempty"`
}

// VerificationRecord is the durable record of the latest automation attempt
// for one ticket. At most one exists per ticket. JobID is non-nil exactly
// while the record is PENDING; Verified and Failed are mutually exclusive
// and set only in the matching terminal state.
type VerificationRecord struct {
	ID         string
	TicketID   string
	Type       VerificationType
	Status     VerificationStatus
	JobID      *string
	Verified   *VerifiedResult
	Failed     *FailedResult
	VerifiedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
