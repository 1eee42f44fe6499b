package domain

import "time"

// PendingIssuerStatus tracks automation code generation for an unsupported issuer.
type PendingIssuerStatus string

const (
	IssuerRequested  PendingIssuerStatus = "REQUESTED"
	IssuerGenerating PendingIssuerStatus = "GENERATING"
	IssuerPRCreated  PendingIssuerStatus = "PR_CREATED"
	IssuerFailed     PendingIssuerStatus = "FAILED"
)

// issuerStatusRank orders generation states by progress. Webhook re-delivery
// must never move an issuer backwards, so updates apply only when the new
// rank is at least the current one.
var issuerStatusRank = map[PendingIssuerStatus]int{
	IssuerRequested:  0,
	IssuerGenerating: 1,
	IssuerFailed:     2,
	IssuerPRCreated:  3,
}

// IssuerStatusAdvances reports whether moving from current to next preserves
// or advances progress.
func IssuerStatusAdvances(current, next PendingIssuerStatus) bool {
	return issuerStatusRank[next] >= issuerStatusRank[current]
}

// PendingIssuer is a council/operator the worker cannot automate yet.
type PendingIssuer struct {
	ID             string
	IssuerID       string
	Name           string
	PortalURL      string
	Status         PendingIssuerStatus
	PullRequestURL *string
	ErrorMessage   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// PendingChallengeStatus tracks a user challenge queued behind issuer support.
type PendingChallengeStatus string

const (
	ChallengeWaiting PendingChallengeStatus = "WAITING"
	ChallengeReady   PendingChallengeStatus = "READY"
	ChallengeFailed  PendingChallengeStatus = "FAILED"
)

// PendingChallenge is one queued user challenge. Many challenges wait on one
// issuer; they graduate to READY only once the generated code is merged,
// which happens outside this service.
type PendingChallenge struct {
	ID        string
	IssuerID  string
	TicketID  string
	OwnerID   string
	Status    PendingChallengeStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
