package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pcnpilot/pcn-service/internal/api/http/handlers"
	"github.com/pcnpilot/pcn-service/internal/config"
	"github.com/pcnpilot/pcn-service/internal/domain"
	"github.com/pcnpilot/pcn-service/internal/repository"
	"github.com/pcnpilot/pcn-service/internal/service"
	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

// countingTicketRepo serves only the escalation queries.
type countingTicketRepo struct {
	repository.TicketRepository
	eligible int
}

func (r *countingTicketRepo) CountEscalatable(context.Context, time.Time) (int, error) {
	return r.eligible, nil
}

func (r *countingTicketRepo) ListEscalatable(context.Context, time.Time) ([]domain.Ticket, error) {
	return nil, nil
}

func newRouterTestApp(t *testing.T) *fiber.App {
	t.Helper()
	escalation := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo: &countingTicketRepo{eligible: 3},
		Config:     config.EscalationConfig{DiscountWindowDays: 14},
		Logger:     zap.NewNop(),
	})

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			domainErr := apperrors.ToDomainError(err)
			return c.Status(domainErr.HTTPStatus).JSON(fiber.Map{"success": false, "code": domainErr.Code})
		},
	})
	RegisterRoutes(app, RouteConfig{
		Cron:       handlers.NewCronHandler(escalation),
		CronSecret: "s3cret",
	})
	return app
}

func TestCronRouteAccess(t *testing.T) {
	t.Run("dry run probe needs no credentials", func(t *testing.T) {
		app := newRouterTestApp(t)
		req := httptest.NewRequest(fiber.MethodGet, "/cron/escalate-tickets", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var decoded map[string]map[string]any
		require.NoError(t, json.Unmarshal(raw, &decoded))
		assert.Equal(t, float64(3), decoded["data"]["eligible"])
	})

	t.Run("the sweep trigger stays behind the cron secret", func(t *testing.T) {
		app := newRouterTestApp(t)
		req := httptest.NewRequest(fiber.MethodPost, "/cron/escalate-tickets", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("the sweep trigger accepts the cron secret", func(t *testing.T) {
		app := newRouterTestApp(t)
		req := httptest.NewRequest(fiber.MethodPost, "/cron/escalate-tickets", nil)
		req.Header.Set("Authorization", "Bearer s3cret")

		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
