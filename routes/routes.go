package routes

import (
	"net/http"
	"time"

	"github.com/agentbooks/portal-gateway/app"
	"github.com/agentbooks/portal-gateway/config"
	gwmiddleware "github.com/agentbooks/portal-gateway/middleware"
	"github.com/agentbooks/portal-gateway/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the routes of the portal named in deps.Config
func SetupRoutes(deps *app.Dependencies) http.Handler {
	cfg := deps.Config
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	if cfg.Server.TrustProxyHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(gwmiddleware.SecurityHeaders(cfg.IsProduction()))
	r.Use(gwmiddleware.Metrics(deps.Metrics))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Handoff capture runs ahead of every non-API GET on the destination portals
	if cfg.Portal != config.PortalAuth {
		r.Use(deps.AuthHandler.CaptureHandoff)
	}

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	if cfg.Observability.MetricsEnabled {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	if cfg.Portal == config.PortalAuth {
		setupAuthPortal(r, deps)
	} else {
		setupDestinationPortal(r, deps)
	}

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

// setupAuthPortal mounts the sign-on endpoints
func setupAuthPortal(r chi.Router, deps *app.Dependencies) {
	r.Route("/auth", func(r chi.Router) {
		r.With(deps.LoginLimiter.Middleware).Post("/login", deps.AuthHandler.HandleLogin)
		r.Get("/redirect", deps.AuthHandler.HandleRedirect)
		r.With(deps.AuthMiddleware.RequireAuth).Get("/session", deps.AuthHandler.HandleSession)
		r.Post("/logout", deps.AuthHandler.HandleLogout)
	})
}

// setupDestinationPortal mounts the practice or client portal BFF
func setupDestinationPortal(r chi.Router, deps *app.Dependencies) {
	r.Get("/", deps.AuthHandler.HandleLanding)

	r.Route("/auth", func(r chi.Router) {
		r.With(deps.AuthMiddleware.RequireAuth).Get("/session", deps.AuthHandler.HandleSession)
		r.Post("/logout", deps.AuthHandler.HandleLogout)
	})

	// Record API, on behalf of the signed-in user
	r.Route("/api", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.HandleFunc("/*", deps.ProxyHandler.HandleProxy)
	})
}
