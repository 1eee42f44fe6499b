package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pcnpilot/pcn-service/internal/api/http/handlers"
	"github.com/pcnpilot/pcn-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Automation     *handlers.AutomationHandler
	Webhooks       *handlers.WebhooksHandler
	Cron           *handlers.CronHandler
	AuthMiddleware *auth.AuthMiddleware
	CronSecret     string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/owners/register", cfg.Users.Register)
	authGroup.Post("/owners/login", cfg.Users.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/letters", cfg.Tickets.AddLetter)
	tickets.Post("/:id/challenge", cfg.Tickets.SubmitChallenge)
	tickets.Post("/:id/status-check", cfg.Automation.StartStatusCheck)
	tickets.Get("/:id/live-status", cfg.Automation.LiveStatus)

	app.Post("/webhooks/automation", cfg.Webhooks.Receive)

	app.Post("/cron/escalate-tickets", auth.CronGuard(cfg.CronSecret), cfg.Cron.Escalate)
	app.Get("/cron/escalate-tickets", cfg.Cron.EscalateDryRun)

	app.Post("/automation/health-check", auth.CronGuard(cfg.CronSecret), cfg.Automation.RunHealthCheck)
	app.Get("/automation/health-check", cfg.Automation.LatestHealthReport)
}
