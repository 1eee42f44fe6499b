package auth

import (
	"crypto/hmac"
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/pcnpilot/pcn-service/pkg/util"
)

// CronGuard authorizes scheduler trigger endpoints against a shared secret.
// The comparison is constant time so the secret cannot be probed byte by
// byte through response timing.
func CronGuard(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return apperrors.NewUnauthorized("cron secret not configured")
		}
		authHeader := c.Get("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return apperrors.NewUnauthorized("invalid authorization header")
		}
		if !hmac.Equal([]byte(parts[1]), []byte(secret)) {
			return apperrors.NewUnauthorized("invalid cron secret")
		}
		return c.Next()
	}
}
