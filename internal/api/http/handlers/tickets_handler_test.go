package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pcnpilot/pcn-service/internal/auth"
	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/repository"
	"github.com/pcnpilot/pcn-service/internal/service"
	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

// stubTicketRepo serves a fixed set of tickets; only GetByID is reachable
// from the challenge flow.
type stubTicketRepo struct {
	repository.TicketRepository
	tickets map[string]*domain.Ticket
}

func (r *stubTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

type challengeTestFixture struct {
	app        *fiber.App
	issuers    *memIssuerRepo
	challenges *memChallengeRepo
}

func newChallengeTestApp(t *testing.T, userID string) *challengeTestFixture {
	t.Helper()
	ticketRepo := &stubTicketRepo{tickets: map[string]*domain.Ticket{
		"ticket-1": {ID: "ticket-1", OwnerID: "owner-1", PCNNumber: "CM12345678", VehicleReg: "AB12CDE", IssuerID: "camden", Status: domain.StatusDiscountPeriod},
	}}
	issuerRepo := &memIssuerRepo{issuers: map[string]*domain.PendingIssuer{}}
	challengeRepo := &memChallengeRepo{}

	handler := NewTicketsHandler(
		service.NewTicketService(service.TicketDependencies{TicketRepo: ticketRepo}),
		nil,
		service.NewIssuerService(service.IssuerDependencies{
			IssuerRepo:    issuerRepo,
			ChallengeRepo: challengeRepo,
			Logger:        zap.NewNop(),
		}),
	)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"success": false, "code": domainErr.Code})
		},
	})
	app.Use(func(c *fiber.Ctx) error {
		auth.SetPrincipal(c, &auth.Principal{User: &domain.User{ID: userID, Status: domain.UserStatusActive}})
		return c.Next()
	})
	app.Post("/tickets/:id/challenge", handler.SubmitChallenge)
	return &challengeTestFixture{app: app, issuers: issuerRepo, challenges: challengeRepo}
}

func postChallenge(t *testing.T, app *fiber.App, ticketID string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/tickets/"+ticketID+"/challenge", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	return resp.StatusCode, decoded
}

func TestSubmitChallenge(t *testing.T) {
	t.Run("queues a challenge behind an unsupported issuer", func(t *testing.T) {
		f := newChallengeTestApp(t, "owner-1")

		status, decoded := postChallenge(t, f.app, "ticket-1")

		assert.Equal(t, fiber.StatusAccepted, status)
		data := decoded["data"].(map[string]any)
		assert.Equal(t, string(domain.ChallengeWaiting), data["challenge_status"])
		assert.Equal(t, string(domain.IssuerRequested), data["issuer_status"])

		issuer := f.issuers.issuers["camden"]
		require.NotNil(t, issuer)
		assert.Equal(t, domain.IssuerRequested, issuer.Status)
		require.Len(t, f.challenges.challenges, 1)
		assert.Equal(t, "ticket-1", f.challenges.challenges[0].TicketID)
		assert.Equal(t, "owner-1", f.challenges.challenges[0].OwnerID)
	})

	t.Run("repeat submissions reuse the pending issuer", func(t *testing.T) {
		f := newChallengeTestApp(t, "owner-1")

		first, _ := postChallenge(t, f.app, "ticket-1")
		second, _ := postChallenge(t, f.app, "ticket-1")

		assert.Equal(t, fiber.StatusAccepted, first)
		assert.Equal(t, fiber.StatusAccepted, second)
		assert.Len(t, f.issuers.issuers, 1)
		assert.Len(t, f.challenges.challenges, 2)
	})

	t.Run("another owner's ticket is denied", func(t *testing.T) {
		f := newChallengeTestApp(t, "owner-2")

		status, _ := postChallenge(t, f.app, "ticket-1")

		assert.Equal(t, fiber.StatusForbidden, status)
		assert.Empty(t, f.issuers.issuers)
		assert.Empty(t, f.challenges.challenges)
	})
}
