package domain

import "strings"

// TicketStatus enumerates the internal PCN lifecycle states.
type TicketStatus string

const (
	// Main enforcement progression.
	StatusDiscountPeriod    TicketStatus = "DISCOUNT_PERIOD"
	StatusFullCharge        TicketStatus = "FULL_CHARGE"
	StatusNoticeToOwner     TicketStatus = "NOTICE_TO_OWNER"
	StatusChargeCertificate TicketStatus = "CHARGE_CERTIFICATE"
	StatusOrderForRecovery  TicketStatus = "ORDER_FOR_RECOVERY"
	StatusCCJRegistered     TicketStatus = "CCJ_REGISTERED"
	StatusBailiffStage      TicketStatus = "BAILIFF_STAGE"

	// Challenge and appeal branches.
	StatusChallengeSubmitted     TicketStatus = "CHALLENGE_SUBMITTED"
	StatusRepresentationMade     TicketStatus = "REPRESENTATION_MADE"
	StatusAppealSubmitted        TicketStatus = "APPEAL_SUBMITTED"
	StatusRepresentationAccepted TicketStatus = "REPRESENTATION_ACCEPTED"

	// Terminal outcomes.
	StatusPaid      TicketStatus = "PAID"
	StatusCancelled TicketStatus = "CANCELLED"
)

// terminalAutoWrite is the only set of statuses an automation result may
// write directly onto a ticket. Portal observations come from scraping a
// third-party UI and are lower-trust than the internal escalation rule, so
// auto-write is restricted to unambiguous outcomes.
var terminalAutoWrite = map[TicketStatus]bool{
	StatusPaid:                   true,
	StatusCancelled:              true,
	StatusRepresentationAccepted: true,
	StatusChargeCertificate:      true,
	StatusBailiffStage:           true,
}

// IsTerminalAutoWrite reports whether a live-status result is allowed to
// promote the ticket to the given status.
func IsTerminalAutoWrite(status TicketStatus) bool {
	return terminalAutoWrite[status]
}

// IsClosed reports whether no further lifecycle progression is expected.
func IsClosed(status TicketStatus) bool {
	switch status {
	case StatusPaid, StatusCancelled, StatusRepresentationAccepted:
		return true
	}
	return false
}

// portalStatusMap translates the worker-reported portal vocabulary into
// internal statuses. Keys are normalized to lower case.
var portalStatusMap = map[string]TicketStatus{
	"paid":                      StatusPaid,
	"closed - paid":             StatusPaid,
	"payment received":          StatusPaid,
	"cancelled":                 StatusCancelled,
	"closed - cancelled":        StatusCancelled,
	"written off":               StatusCancelled,
	"representation accepted":   StatusRepresentationAccepted,
	"appeal allowed":            StatusRepresentationAccepted,
	"representation received":   StatusRepresentationMade,
	"challenge received":        StatusChallengeSubmitted,
	"notice to owner issued":    StatusNoticeToOwner,
	"notice to owner sent":      StatusNoticeToOwner,
	"charge certificate":        StatusChargeCertificate,
	"charge certificate issued": StatusChargeCertificate,
	"order for recovery":        StatusOrderForRecovery,
	"debt registered":           StatusCCJRegistered,
	"warrant issued":            StatusBailiffStage,
	"passed to bailiff":         StatusBailiffStage,
	"with enforcement agent":    StatusBailiffStage,
	"outstanding":               StatusFullCharge,
	"unpaid":                    StatusFullCharge,
}

// MapPortalStatus converts a worker-reported portal status string into an
// internal status. Returns nil when the string is not recognized; such
// observations are stored for audit but trigger no transition.
func MapPortalStatus(portal string) *TicketStatus {
	normalized := strings.ToLower(strings.TrimSpace(portal))
	if normalized == "" {
		return nil
	}
	if status, ok := portalStatusMap[normalized]; ok {
		return &status
	}
	return nil
}
