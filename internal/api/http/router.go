package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-workflow/internal/api/http/handlers"
	"github.com/spec-kit/support-workflow/internal/auth"
	"github.com/spec-kit/support-workflow/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Invitations    *handlers.InvitationsHandler
	Catalog        *handlers.CatalogHandler
	Auth           *handlers.AuthHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/login", cfg.Auth.LoginUser)
	authGroup.Post("/agents/login", cfg.Auth.LoginAgent)

	app.Get("/catalog", cfg.Catalog.Get)

	tickets := app.Group("/tickets")
	tickets.Post("", cfg.AuthMiddleware.Optional, cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.AuthMiddleware.Handle, cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.AuthMiddleware.Handle, cfg.Tickets.GetTicket)
	tickets.Post("/:id/responses", cfg.AuthMiddleware.Handle, cfg.Tickets.AddResponse)

	agentOnly := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAgentRole()}
	tickets.Patch("/:id/status", append(agentOnly, cfg.Tickets.UpdateStatus)...)
	tickets.Patch("/:id/priority", append(agentOnly, cfg.Tickets.UpdatePriority)...)
	tickets.Patch("/:id/category", append(agentOnly, cfg.Tickets.UpdateCategory)...)
	tickets.Patch("/:id/assignee", append(agentOnly, cfg.Tickets.AssignTicket)...)

	app.Get("/agents", append(agentOnly, cfg.Tickets.ListAgents)...)

	invitations := app.Group("/invitations")
	invitations.Post("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Invitations.Issue)
	invitations.Get("/:token", cfg.Invitations.Load)
	invitations.Post("/:token/redeem", cfg.Invitations.Redeem)

	app.Get("/companies/:id/invitations",
		cfg.AuthMiddleware.Handle,
		auth.RequireAgentRole(domain.AgentRoleAdmin),
		cfg.Invitations.ListForCompany,
	)
}
