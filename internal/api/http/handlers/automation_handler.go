package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/pcnpilot/pcn-service/internal/api/dto"
	"github.com/pcnpilot/pcn-service/internal/auth"
	"github.com/pcnpilot/pcn-service/internal/service"
	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

// AutomationHandler exposes live status checks and worker fleet health.
type AutomationHandler struct {
	tickets      *service.TicketService
	verification *service.VerificationService
}

// NewAutomationHandler constructs handler.
func NewAutomationHandler(ticketService *service.TicketService, verificationService *service.VerificationService) *AutomationHandler {
	return &AutomationHandler{tickets: ticketService, verification: verificationService}
}

// StartStatusCheck POST /tickets/:id/status-check.
func (h *AutomationHandler) StartStatusCheck(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	ticket, err := h.tickets.RequireOwnedTicket(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}

	jobID, err := h.verification.StartStatusCheck(c.Context(), ticket)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"data": dto.StatusCheckAccepted{JobID: jobID},
	})
}

// LiveStatus GET /tickets/:id/live-status.
func (h *AutomationHandler) LiveStatus(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	ticket, err := h.tickets.RequireOwnedTicket(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}

	result, err := h.verification.Poll(c.Context(), ticket)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.LiveStatusResponse{
			State:          string(result.State),
			Progress:       result.Progress,
			Verified:       result.Verified,
			Failed:         result.Failed,
			TransientError: result.TransientError,
		},
		"ticket_status": ticket.Status,
	})
}

// RunHealthCheck POST /automation/health-check.
func (h *AutomationHandler) RunHealthCheck(c *fiber.Ctx) error {
	report, err := h.verification.RunHealthCheck(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// LatestHealthReport GET /automation/health-check.
func (h *AutomationHandler) LatestHealthReport(c *fiber.Ctx) error {
	report, err := h.verification.CachedHealthReport(c.Context())
	if err != nil {
		return err
	}
	if report == nil {
		return apperrors.NewNotFound("health report", nil)
	}
	return c.JSON(fiber.Map{"data": report})
}
