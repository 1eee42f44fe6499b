package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/pcnpilot/pcn-service/internal/config"
)

// ErrWorkerUnavailable wraps transport failures talking to the worker. It is
// retryable: callers surface "still pending, try later" instead of writing a
// terminal record state.
var ErrWorkerUnavailable = errors.New("automation worker unavailable")

// JobState reports worker-side progress of a status check.
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// StatusCheckRequest carries the minimum context the worker needs to drive a
// portal session.
type StatusCheckRequest struct {
	TicketID   string `json:"ticketId"`
	PCNNumber  string `json:"pcnNumber"`
	VehicleReg string `json:"vehicleReg"`
	IssuerID   string `json:"issuerId"`
}

// StatusCheckResult is the worker's raw observation of a portal.
type StatusCheckResult struct {
	PortalStatus      string  `json:"portalStatus"`
	OutstandingAmount *int64  `json:"outstandingAmount,omitempty"`
	CanChallenge      bool    `json:"canChallenge"`
	CanPay            bool    `json:"canPay"`
	ScreenshotKey     *string `json:"screenshotKey,omitempty"`
	ErrorMessage      string  `json:"errorMessage,omitempty"`
}

// JobStatus is the worker's report for one dispatched job.
type JobStatus struct {
	State    JobState           `json:"status"`
	Progress *int               `json:"progress,omitempty"`
	Result   *StatusCheckResult `json:"result,omitempty"`
}

// IssuerHealth is one issuer's portal health probe result.
type IssuerHealth struct {
	IssuerID         string    `json:"issuerId"`
	Status           string    `json:"status"`
	PortalAccessible bool      `json:"portalAccessible"`
	ElementsFound    []string  `json:"elementsFound"`
	ElementsMissing  []string  `json:"elementsMissing"`
	CaptchaDetected  bool      `json:"captchaDetected"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	ResponseTimeMs   int64     `json:"responseTimeMs"`
	CheckedAt        time.Time `json:"checkedAt"`
}

// HealthReport aggregates a fleet-wide portal health sweep.
type HealthReport struct {
	Results       []IssuerHealth `json:"results"`
	TotalIssuers  int            `json:"totalIssuers"`
	HealthyCount  int            `json:"healthyCount"`
	DegradedCount int            `json:"degradedCount"`
	BrokenCount   int            `json:"brokenCount"`
	CompletedAt   time.Time      `json:"completedAt"`
}

// Client talks to the browser-automation worker over HTTP with bearer auth.
// It returns correlation handles and never blocks on job completion; there is
// no retry loop inside, re-dispatch is the caller's call.
type Client struct {
	baseURL        string
	token          string
	callbackURL    string
	callbackSecret string
	httpClient     *http.Client
	logger         *zap.Logger
}

// NewClient builds a worker client from configuration.
func NewClient(cfg config.WorkerConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:        cfg.BaseURL,
		token:          cfg.APIToken,
		callbackURL:    cfg.CallbackURL,
		callbackSecret: cfg.WebhookSecret,
		httpClient:     &http.Client{Timeout: cfg.Timeout()},
		logger:         logger,
	}
}

type startJobResponse struct {
	JobID string `json:"jobId"`
}

// StartStatusCheck dispatches a live status check and returns the worker's
// correlation handle.
func (c *Client) StartStatusCheck(ctx context.Context, req StatusCheckRequest) (string, error) {
	payload := struct {
		StatusCheckRequest
		CallbackURL    string `json:"callbackUrl,omitempty"`
		CallbackSecret string `json:"callbackSecret,omitempty"`
	}{
		StatusCheckRequest: req,
		CallbackURL:        c.callbackURL,
		CallbackSecret:     c.callbackSecret,
	}

	var resp startJobResponse
	if err := c.do(ctx, http.MethodPost, "/status-check", payload, &resp); err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("%w: worker returned empty job id", ErrWorkerUnavailable)
	}
	return resp.JobID, nil
}

// GetStatusCheck queries progress for a dispatched job.
func (c *Client) GetStatusCheck(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	if err := c.do(ctx, http.MethodGet, "/status-check/"+jobID, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RunHealthCheck triggers a fleet-wide issuer portal probe.
func (c *Client) RunHealthCheck(ctx context.Context) (*HealthReport, error) {
	var report HealthReport
	if err := c.do(ctx, http.MethodPost, "/health-check", nil, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode worker request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build worker request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: worker responded %d", ErrWorkerUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("worker rejected %s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(raw))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", ErrWorkerUnavailable, err)
		}
	}
	return nil
}
