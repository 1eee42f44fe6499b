package dto

import (
	"time"

	"github.com/pcnpilot/pcn-service/internal/domain"
)

// StatusCheckAccepted acknowledges a dispatched live status check.
type StatusCheckAccepted struct {
	JobID string `json:"job_id"`
}

// LiveStatusResponse reports poll progress for a ticket's latest check.
type LiveStatusResponse struct {
	State          string                 `json:"state"`
	Progress       *int                   `json:"progress,omitempty"`
	Verified       *domain.VerifiedResult `json:"verified,omitempty"`
	Failed         *domain.FailedResult   `json:"failed,omitempty"`
	TransientError string                 `json:"transient_error,omitempty"`
}

// WebhookEnvelope is the signed payload delivered by the automation worker.
// Field casing follows the worker's JSON contract: a job handle, a type
// discriminator, a completed|failed outcome and a free-form result.
type WebhookEnvelope struct {
	JobID     string         `json:"jobId"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	IssuerID  string         `json:"issuerId"`
	Result    *WebhookResult `json:"result"`
	Timestamp *time.Time     `json:"timestamp"`
}

// WebhookResult carries outcome details for a generation job.
type WebhookResult struct {
	PullRequestURL *string `json:"pullRequestUrl"`
	ErrorMessage   *string `json:"errorMessage"`
}
