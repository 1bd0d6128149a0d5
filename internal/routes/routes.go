package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/clinicguard/internal/auth"
	"github.com/BradenHooton/clinicguard/internal/handlers"
	"github.com/BradenHooton/clinicguard/internal/middleware"
	"github.com/BradenHooton/clinicguard/internal/models"
)

// Handlers groups everything the router dispatches to
type Handlers struct {
	Auth      *handlers.AuthHandler
	TwoFactor *handlers.TwoFactorHandler
	Account   *handlers.AccountHandler
	Admin     *handlers.AdminHandler
	Health    *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	authenticator *auth.Authenticator,
	rateLimitConfig middleware.RateLimitConfig,
) {
	router.Get("/health", h.Health.Health)
	router.Get("/ready", h.Health.Ready)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(rateLimitConfig))
		r.Post("/auth/login", h.Auth.Login)
		r.Post("/auth/refresh", h.Auth.Refresh)
		r.Post("/auth/register", h.Auth.Register)
	})

	// Protected routes - authentication and account state checked
	router.Group(func(r chi.Router) {
		r.Use(authenticator.Middleware)

		r.Post("/auth/logout", h.Auth.Logout)
		r.Get("/auth/me", h.Auth.Me)

		r.Route("/auth/2fa", func(r chi.Router) {
			r.Get("/status", h.TwoFactor.Status)
			r.Post("/setup", h.TwoFactor.Setup)
			r.Post("/enable", h.TwoFactor.Enable)
			r.Post("/disable", h.TwoFactor.Disable)
		})

		r.Post("/account/disable", h.Account.Disable)

		// Admin-only routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))

			r.Route("/users/{id}", func(r chi.Router) {
				r.Post("/enable", h.Account.Enable)
				r.Post("/ban", h.Account.Ban)
				r.Post("/unban", h.Account.Unban)
				r.Post("/block", h.Account.Block)
				r.Post("/unblock", h.Account.Unblock)
				r.Post("/reset-password", h.Account.ResetPassword)
			})

			r.Get("/audit-logs", h.Admin.ListAuditLogs)
			r.Get("/security-metrics", h.Admin.ListSecurityMetrics)
			r.Get("/security-summary", h.Admin.GetSecuritySummary)
		})
	})
}
