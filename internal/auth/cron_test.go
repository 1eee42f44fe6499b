package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

func newCronTestApp(secret string) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/cron/ping", CronGuard(secret), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestCronGuard(t *testing.T) {
	t.Run("accepts the configured secret", func(t *testing.T) {
		app := newCronTestApp("s3cret")
		req := httptest.NewRequest(http.MethodGet, "/cron/ping", nil)
		req.Header.Set("Authorization", "Bearer s3cret")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("rejects a wrong secret", func(t *testing.T) {
		app := newCronTestApp("s3cret")
		req := httptest.NewRequest(http.MethodGet, "/cron/ping", nil)
		req.Header.Set("Authorization", "Bearer nope")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects a missing header", func(t *testing.T) {
		app := newCronTestApp("s3cret")
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/cron/ping", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("fails closed when no secret is configured", func(t *testing.T) {
		app := newCronTestApp("")
		req := httptest.NewRequest(http.MethodGet, "/cron/ping", nil)
		req.Header.Set("Authorization", "Bearer anything")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}
