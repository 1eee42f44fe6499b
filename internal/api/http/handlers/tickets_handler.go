package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/pcnpilot/pcn-service/internal/api/dto"
	"github.com/pcnpilot/pcn-service/internal/auth"
	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/service"
	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

// TicketsHandler manages owner-facing ticket endpoints.
type TicketsHandler struct {
	tickets *service.TicketService
	letters *service.LetterService
	issuers *service.IssuerService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, letterService *service.LetterService, issuerService *service.IssuerService) *TicketsHandler {
	return &TicketsHandler{tickets: ticketService, letters: letterService, issuers: issuerService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.tickets.CreateTicket(c.Context(), principal.User.ID, service.TicketCreateInput{
		PCNNumber:     req.PCNNumber,
		VehicleReg:    req.VehicleReg,
		IssuerID:      req.IssuerID,
		IssuedAt:      req.IssuedAt,
		InitialAmount: req.InitialAmount,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)

	tickets, err := h.tickets.ListOwnerTickets(c.Context(), principal.User.ID, limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	ticket, letters, history, err := h.tickets.GetTicketForOwner(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}

	detail := dto.TicketDetailResponse{
		TicketSummary: ticketSummary(ticket),
		Letters:       make([]dto.LetterResponse, 0, len(letters)),
		History:       make([]dto.StatusHistoryResponse, 0, len(history)),
	}
	for i := range letters {
		detail.Letters = append(detail.Letters, letterResponse(&letters[i]))
	}
	for _, entry := range history {
		detail.History = append(detail.History, dto.StatusHistoryResponse{
			ID:        entry.ID,
			OldStatus: entry.OldStatus,
			NewStatus: entry.NewStatus,
			Actor:     entry.Actor,
			Note:      entry.Note,
			CreatedAt: entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": detail})
}

// AddLetter POST /tickets/:id/letters.
func (h *TicketsHandler) AddLetter(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	var req dto.CreateLetterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Type == "" {
		return apperrors.NewValidationError("letter type required", nil)
	}

	ticket, err := h.tickets.RequireOwnedTicket(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}

	input := service.LetterInput{Type: req.Type}
	if req.ReceivedAt != nil {
		input.ReceivedAt = *req.ReceivedAt
	}
	letter, err := h.letters.IngestLetter(c.Context(), ticket, input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"data": fiber.Map{
			"letter": letterResponse(letter),
			"status": ticket.Status,
		},
	})
}

// SubmitChallenge POST /tickets/:id/challenge. The ticket's issuer has no
// portal automation yet, so the challenge is queued behind the issuer's code
// generation and released by the generation webhook.
func (h *TicketsHandler) SubmitChallenge(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("owner required")
	}
	ticket, err := h.tickets.RequireOwnedTicket(c.Context(), principal.User.ID, c.Params("id"))
	if err != nil {
		return err
	}

	var req dto.SubmitChallengeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	name := req.IssuerName
	if name == "" {
		name = ticket.IssuerID
	}

	issuer, err := h.issuers.RequestGeneration(c.Context(), ticket.IssuerID, name)
	if err != nil {
		return err
	}
	challenge, err := h.issuers.QueueChallenge(c.Context(), ticket.IssuerID, ticket.ID, principal.User.ID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{
		"data": fiber.Map{
			"challenge_id":     challenge.ID,
			"challenge_status": challenge.Status,
			"issuer_status":    issuer.Status,
		},
	})
}

func ticketSummary(t *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:              t.ID,
		Reference:       t.Reference,
		PCNNumber:       t.PCNNumber,
		VehicleReg:      t.VehicleReg,
		IssuerID:        t.IssuerID,
		Status:          t.Status,
		StatusUpdatedAt: t.StatusUpdatedAt,
		StatusUpdatedBy: t.StatusUpdatedBy,
		IssuedAt:        t.IssuedAt,
		InitialAmount:   t.InitialAmount,
		DiscountAmount:  t.DiscountAmount(),
		NextReminderAt:  t.NextReminderAt,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

func letterResponse(l *domain.Letter) dto.LetterResponse {
	return dto.LetterResponse{
		ID:         l.ID,
		Type:       l.Type,
		Flag:       l.Flag,
		ReceivedAt: l.ReceivedAt,
		CreatedAt:  l.CreatedAt,
	}
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
