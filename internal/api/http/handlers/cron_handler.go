package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pcnpilot/pcn-service/internal/service"
)

// CronHandler exposes scheduler-triggered maintenance endpoints.
type CronHandler struct {
	escalation *service.EscalationService
}

// NewCronHandler constructs handler.
func NewCronHandler(escalationService *service.EscalationService) *CronHandler {
	return &CronHandler{escalation: escalationService}
}

// Escalate POST /cron/escalate-tickets.
func (h *CronHandler) Escalate(c *fiber.Ctx) error {
	result, err := h.escalation.Sweep(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// EscalateDryRun GET /cron/escalate-tickets. Reports how many tickets a
// sweep would escalate without writing anything.
func (h *CronHandler) EscalateDryRun(c *fiber.Ctx) error {
	count, err := h.escalation.DryRun(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"eligible": count}})
}
