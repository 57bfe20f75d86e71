package app

import (
	"context"
	"fmt"

	"github.com/agentbooks/portal-gateway/auth"
	"github.com/agentbooks/portal-gateway/config"
	"github.com/agentbooks/portal-gateway/handlers"
	"github.com/agentbooks/portal-gateway/internal/observability"
	"github.com/agentbooks/portal-gateway/middleware"
	"github.com/agentbooks/portal-gateway/services"
	"github.com/agentbooks/portal-gateway/services/proxy"
	"github.com/agentbooks/portal-gateway/services/routing"
	"github.com/agentbooks/portal-gateway/session"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Credential Store and session plumbing
	CredentialStore *services.HTTPCredentialStore
	Issuer          *services.SessionIssuer
	Resolver        *routing.Resolver
	Codec           *session.Codec
	CookieJar       *session.CookieJar
	Proxy           *proxy.Service

	// HTTP
	AuthMiddleware *middleware.AuthMiddleware
	LoginLimiter   *middleware.RateLimiter
	AuthHandler    *auth.Handler
	HealthHandler  *handlers.HealthHandler
	ProxyHandler   *handlers.ProxyHandler
}

// NewDependencies creates and wires up all application dependencies for the
// portal named in cfg.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger.With(zap.String("portal", string(cfg.Portal))),
		Metrics: observability.NewMetrics(string(cfg.Portal)),
	}

	if err := deps.initSession(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize session codec: %w", err)
	}

	if err := deps.initUpstream(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize record API client: %w", err)
	}

	deps.initHTTP(cfg)

	deps.Logger.Info("all dependencies initialized successfully",
		zap.String("record_api", cfg.API.BaseURL()),
		zap.String("session_issuer", cfg.Session.BaseURL))
	return deps, nil
}

// initSession builds the codec and cookie jar for this portal's session
func (d *Dependencies) initSession(cfg *config.Config) error {
	codec, err := session.NewCodec(cfg.Session.Secret, cfg.Session.BaseURL)
	if err != nil {
		return err
	}
	d.Codec = codec
	d.CookieJar = session.NewCookieJar(cfg.Session.CookieName, cfg.SecureCookies())
	return nil
}

// initUpstream builds the clients that talk to the record API
func (d *Dependencies) initUpstream(cfg *config.Config) error {
	d.CredentialStore = services.NewHTTPCredentialStore(cfg.API)
	d.Issuer = services.NewSessionIssuer(d.CredentialStore, cfg.Session.TTL, d.Logger)
	d.Resolver = routing.NewResolver(cfg.Portals)

	proxySvc, err := proxy.NewService(cfg.API, d.Logger, d.Metrics)
	if err != nil {
		return err
	}
	d.Proxy = proxySvc
	return nil
}

func (d *Dependencies) initHTTP(cfg *config.Config) {
	audience := auth.PortalAudience(cfg.Portal)

	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Codec, d.CookieJar, audience, d.Logger)
	d.LoginLimiter = middleware.NewRateLimiter(cfg.RateLimit.LoginPerMinute, cfg.RateLimit.LoginBurst)
	d.AuthHandler = auth.NewHandler(cfg, d.Issuer, d.Resolver, d.Codec, d.CookieJar, d.Metrics, d.Logger)
	d.HealthHandler = handlers.NewHealthHandler(string(cfg.Portal), d.CredentialStore, d.Logger)
	d.ProxyHandler = handlers.NewProxyHandler(d.Proxy, d.Logger)
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	if d.Logger == nil {
		return nil
	}
	d.Logger.Info("shutting down dependencies")
	_ = d.Logger.Sync()

	return nil
}
