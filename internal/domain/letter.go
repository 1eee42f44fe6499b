package domain

import "time"

// LetterType enumerates the enforcement correspondence a ticket can receive.
type LetterType string

const (
	LetterInitialNotice     LetterType = "INITIAL_NOTICE"
	LetterNoticeToOwner     LetterType = "NOTICE_TO_OWNER"
	LetterChargeCertificate LetterType = "CHARGE_CERTIFICATE"
	LetterOrderForRecovery  LetterType = "ORDER_FOR_RECOVERY"
	LetterCCJNotice         LetterType = "CCJ_NOTICE"
	LetterBailiffNotice     LetterType = "BAILIFF_NOTICE"

	// Branch correspondence outside the strict ordinal sequence.
	LetterChallengeRejection    LetterType = "CHALLENGE_REJECTION"
	LetterRepresentationOutcome LetterType = "REPRESENTATION_OUTCOME"
	LetterAppealDecision        LetterType = "APPEAL_DECISION"
)

// LetterFlag annotates an ingested letter. Flags are advisory; ingestion is
// never refused.
type LetterFlag string

const (
	FlagNone              LetterFlag = "NONE"
	FlagPossibleDuplicate LetterFlag = "POSSIBLE_DUPLICATE"
	FlagStageSkip         LetterFlag = "STAGE_SKIP"
)

// Letter is one piece of ingested correspondence.
type Letter struct {
	ID         string
	TicketID   string
	Type       LetterType
	Flag       LetterFlag
	ReceivedAt time.Time
	CreatedAt  time.Time
}

// letterOrdinal positions each sequenced letter in the statutory enforcement
// order. Branch letters carry no ordinal and are exempt from sequence checks.
var letterOrdinal = map[LetterType]int{
	LetterInitialNotice:     1,
	LetterNoticeToOwner:     2,
	LetterChargeCertificate: 3,
	LetterOrderForRecovery:  4,
	LetterCCJNotice:         5,
	LetterBailiffNotice:     6,
}

// statusStage is the number of sequenced letters a ticket at this status is
// expected to have already received. The next expected letter is stage+1.
var statusStage = map[TicketStatus]int{
	StatusDiscountPeriod:     1,
	StatusFullCharge:         1,
	StatusChallengeSubmitted: 1,
	StatusNoticeToOwner:      1,
	StatusRepresentationMade: 2,
	StatusChargeCertificate:  2,
	StatusAppealSubmitted:    2,
	StatusOrderForRecovery:   3,
	StatusCCJRegistered:      4,
	StatusBailiffStage:       5,
}

// expectedLetterTable maps each status to the letter types plausibly
// arriving next, mirroring the UK enforcement sequence with challenge and
// appeal branches at the early stages.
var expectedLetterTable = map[TicketStatus][]LetterType{
	StatusDiscountPeriod:     {LetterNoticeToOwner, LetterChallengeRejection},
	StatusFullCharge:         {LetterNoticeToOwner, LetterChallengeRejection},
	StatusChallengeSubmitted: {LetterChallengeRejection, LetterNoticeToOwner},
	StatusNoticeToOwner:      {LetterNoticeToOwner, LetterRepresentationOutcome},
	StatusRepresentationMade: {LetterRepresentationOutcome, LetterChargeCertificate},
	StatusChargeCertificate:  {LetterChargeCertificate, LetterOrderForRecovery},
	StatusAppealSubmitted:    {LetterAppealDecision, LetterChargeCertificate},
	StatusOrderForRecovery:   {LetterOrderForRecovery, LetterCCJNotice},
	StatusCCJRegistered:      {LetterCCJNotice, LetterBailiffNotice},
	StatusBailiffStage:       {LetterBailiffNotice},
}

// ExpectedLetterTypes returns the letter types plausible for a ticket in the
// given status. Closed statuses expect nothing.
func ExpectedLetterTypes(status TicketStatus) []LetterType {
	return expectedLetterTable[status]
}

// CheckLetterSequence compares a letter against the ticket's current stage.
// A sequenced letter at or behind the current stage is a possible duplicate
// or late arrival; one more than a single stage ahead is a possible stage
// skip. Branch letters and closed tickets pass unflagged.
func CheckLetterSequence(status TicketStatus, letter LetterType) LetterFlag {
	ordinal, sequenced := letterOrdinal[letter]
	stage, staged := statusStage[status]
	if !sequenced || !staged {
		return FlagNone
	}
	switch {
	case ordinal <= stage:
		return FlagPossibleDuplicate
	case ordinal > stage+1:
		return FlagStageSkip
	default:
		return FlagNone
	}
}

// letterImpliedStatus is the status a clean, in-sequence letter moves the
// ticket into once parsed.
var letterImpliedStatus = map[LetterType]TicketStatus{
	LetterNoticeToOwner:     StatusNoticeToOwner,
	LetterChargeCertificate: StatusChargeCertificate,
	LetterOrderForRecovery:  StatusOrderForRecovery,
	LetterCCJNotice:         StatusCCJRegistered,
	LetterBailiffNotice:     StatusBailiffStage,
}

// ImpliedStatus returns the status a letter implies, when it implies one.
func ImpliedStatus(letter LetterType) (TicketStatus, bool) {
	status, ok := letterImpliedStatus[letter]
	return status, ok
}
