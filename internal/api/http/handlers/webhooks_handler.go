package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pcnpilot/pcn-service/internal/api/dto"
	"github.com/pcnpilot/pcn-service/internal/auth"
	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/service"
	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

const signatureHeader = "X-Webhook-Signature"

// WebhooksHandler receives signed callbacks from the automation worker.
type WebhooksHandler struct {
	issuers *service.IssuerService
	secret  string
	logger  *zap.Logger
}

// NewWebhooksHandler constructs handler.
func NewWebhooksHandler(issuerService *service.IssuerService, secret string, logger *zap.Logger) *WebhooksHandler {
	return &WebhooksHandler{issuers: issuerService, secret: secret, logger: logger}
}

// Receive POST /webhooks/automation. The signature covers the raw body, so
// it is verified before any parsing. Once the signature checks out the
// worker always gets a 200 acknowledgement; processing problems are logged
// and must not trigger re-delivery of a payload that was received intact.
func (h *WebhooksHandler) Receive(c *fiber.Ctx) error {
	body := c.Body()
	signature := c.Get(signatureHeader)
	if !auth.VerifySignature(body, signature, h.secret) {
		h.logger.Warn("webhook signature rejected", zap.Int("body_bytes", len(body)))
		return apperrors.NewUnauthorized("invalid webhook signature")
	}

	var envelope dto.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.logger.Error("webhook body unparseable", zap.Error(err))
		return c.JSON(fiber.Map{"success": true})
	}

	switch envelope.Type {
	case "generation":
		h.handleIssuerGeneration(c, envelope)
	case "learn", "run":
		// Legacy job notifications from older worker builds. Result
		// correlation happens over the poll API, so these are only
		// recorded.
		h.logger.Info("legacy webhook received", zap.String("type", envelope.Type))
	default:
		h.logger.Warn("unknown webhook type", zap.String("type", envelope.Type))
	}

	return c.JSON(fiber.Map{"success": true})
}

// handleIssuerGeneration translates the worker's completed|failed outcome
// into the issuer lifecycle: completed means a pull request was produced,
// failed cascades onto the challenges queued behind the issuer.
func (h *WebhooksHandler) handleIssuerGeneration(c *fiber.Ctx, envelope dto.WebhookEnvelope) {
	update := service.GenerationUpdate{IssuerID: envelope.IssuerID}
	switch envelope.Status {
	case "completed":
		update.Status = domain.IssuerPRCreated
		if envelope.Result != nil {
			update.PullRequestURL = envelope.Result.PullRequestURL
		}
	case "failed":
		update.Status = domain.IssuerFailed
		if envelope.Result != nil {
			update.ErrorMessage = envelope.Result.ErrorMessage
		}
	default:
		h.logger.Warn("unknown generation outcome",
			zap.String("status", envelope.Status), zap.String("job_id", envelope.JobID))
		return
	}

	err := h.issuers.HandleGenerationUpdate(c.Context(), update)
	if err != nil {
		h.logger.Error("issuer generation update failed",
			zap.String("issuer_id", envelope.IssuerID), zap.Error(err))
	}
}
