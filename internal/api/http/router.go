package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Tickets *handlers.TicketsHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	tickets := app.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/stats", cfg.Tickets.Stats)
	tickets.Get("/:id/history", cfg.Tickets.History)

	byChannel := tickets.Group("/channel/:channelId")
	byChannel.Get("/", cfg.Tickets.GetByChannel)
	byChannel.Post("/claim", cfg.Tickets.Claim)
	byChannel.Post("/unclaim", cfg.Tickets.Unclaim)
	byChannel.Post("/close-request", cfg.Tickets.RequestClose)
	byChannel.Post("/close-request/resolve", cfg.Tickets.ResolveCloseRequest)
	byChannel.Post("/close", cfg.Tickets.Close)
	byChannel.Post("/switch", cfg.Tickets.SwitchType)

	byNumber := tickets.Group("/number/:number")
	byNumber.Get("/", cfg.Tickets.GetByNumber)
	byNumber.Post("/reopen", cfg.Tickets.Reopen)
	byNumber.Post("/rating", cfg.Tickets.Rate)
}
