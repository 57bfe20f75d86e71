package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// PortalKind identifies which portal backend this process serves
type PortalKind string

const (
	PortalAuth     PortalKind = "auth"
	PortalPractice PortalKind = "practice"
	PortalClient   PortalKind = "client"
)

// minSessionSecretLength is the shortest HS256 secret accepted
const minSessionSecretLength = 32

// Config represents the complete application configuration
type Config struct {
	Portal        PortalKind
	Server        ServerConfig
	API           APIConfig
	Session       SessionConfig
	Portals       PortalsConfig
	RateLimit     RateLimitConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// TrustProxyHeaders takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
}

// APIConfig holds record API (Credential Store) settings.
// InternalURL is the server-to-server address and wins over PublicURL when set.
type APIConfig struct {
	InternalURL string
	PublicURL   string
	Timeout     time.Duration
}

// SessionConfig holds session token settings
type SessionConfig struct {
	Secret     string
	BaseURL    string // Issuer of session tokens; this portal's own origin
	TTL        time.Duration
	CookieName string
}

// PortalsConfig holds the public origins of every portal
type PortalsConfig struct {
	AuthURL     string
	PracticeURL string
	ClientURL   string
}

// RateLimitConfig holds login throttling settings
type RateLimitConfig struct {
	LoginPerMinute int
	LoginBurst     int
}

// CORSConfig holds cross-origin settings for the BFF routes
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Portal:      PortalKind(strings.ToLower(getEnv("PORTAL", string(PortalAuth)))),
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),

			TrustProxyHeaders: getEnvAsBool("TRUST_PROXY_HEADERS", false),
		},
		API: APIConfig{
			InternalURL: getEnv("INTERNAL_API_URL", ""),
			PublicURL:   getEnv("NEXT_PUBLIC_API_URL", ""),
			Timeout:     getEnvAsDuration("API_TIMEOUT", 10*time.Second),
		},
		Session: SessionConfig{
			Secret:     getEnvFirst([]string{"SESSION_SECRET", "NEXTAUTH_SECRET"}, ""),
			BaseURL:    getEnvFirst([]string{"SESSION_URL", "NEXTAUTH_URL"}, ""),
			TTL:        getEnvAsDuration("SESSION_TTL", 24*time.Hour),
			CookieName: getEnv("SESSION_COOKIE_NAME", "portal_session"),
		},
		Portals: PortalsConfig{
			AuthURL:     getEnv("AUTH_PORTAL_URL", "http://localhost:3000"),
			PracticeURL: getEnv("PRACTICE_PORTAL_URL", "http://localhost:3001"),
			ClientURL:   getEnv("CLIENT_PORTAL_URL", "http://localhost:3002"),
		},
		RateLimit: RateLimitConfig{
			LoginPerMinute: getEnvAsInt("LOGIN_RATE_LIMIT", 10),
			LoginBurst:     getEnvAsInt("LOGIN_RATE_BURST", 5),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	if cfg.Session.BaseURL == "" {
		cfg.Session.BaseURL = cfg.OwnURL()
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{cfg.Portals.AuthURL, cfg.Portals.PracticeURL, cfg.Portals.ClientURL}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	switch c.Portal {
	case PortalAuth, PortalPractice, PortalClient:
	default:
		return fmt.Errorf("unknown portal %q: expected auth, practice or client", c.Portal)
	}

	if c.API.BaseURL() == "" {
		return fmt.Errorf("record API URL required: set INTERNAL_API_URL or NEXT_PUBLIC_API_URL")
	}
	if err := validateURL("record API URL", c.API.BaseURL()); err != nil {
		return err
	}
	if c.API.Timeout < time.Second || c.API.Timeout > time.Minute {
		return fmt.Errorf("API_TIMEOUT must be between 1s and 60s, got %s", c.API.Timeout)
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session secret is required: set SESSION_SECRET")
	}
	if len(c.Session.Secret) < minSessionSecretLength {
		return fmt.Errorf("session secret must be at least %d bytes", minSessionSecretLength)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}

	for name, u := range map[string]string{
		"AUTH_PORTAL_URL":     c.Portals.AuthURL,
		"PRACTICE_PORTAL_URL": c.Portals.PracticeURL,
		"CLIENT_PORTAL_URL":   c.Portals.ClientURL,
		"SESSION_URL":         c.Session.BaseURL,
	} {
		if err := validateURL(name, u); err != nil {
			return err
		}
	}

	if c.IsProduction() {
		for _, u := range []string{c.Portals.AuthURL, c.Portals.PracticeURL, c.Portals.ClientURL} {
			if !strings.HasPrefix(u, "https://") {
				return fmt.Errorf("portal URLs must use https in production: %s", u)
			}
		}
	}

	if c.RateLimit.LoginPerMinute <= 0 || c.RateLimit.LoginBurst <= 0 {
		return fmt.Errorf("login rate limit and burst must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// OwnURL returns the public origin of the portal this process serves
func (c *Config) OwnURL() string {
	switch c.Portal {
	case PortalPractice:
		return c.Portals.PracticeURL
	case PortalClient:
		return c.Portals.ClientURL
	default:
		return c.Portals.AuthURL
	}
}

// LoginURL returns the auth portal login page with a reason code
func (c *Config) LoginURL(reason string) string {
	base := strings.TrimSuffix(c.Portals.AuthURL, "/") + "/login"
	if reason == "" {
		return base
	}
	return base + "?" + url.Values{"reason": {reason}}.Encode()
}

// SecureCookies reports whether cookies should carry the Secure attribute
func (c *Config) SecureCookies() bool {
	return strings.HasPrefix(c.Session.BaseURL, "https")
}

// BaseURL returns the record API base URL, preferring the internal address
func (c *APIConfig) BaseURL() string {
	if c.InternalURL != "" {
		return strings.TrimSuffix(c.InternalURL, "/")
	}
	return strings.TrimSuffix(c.PublicURL, "/")
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", name, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", name, raw)
	}
	return nil
}

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFirst returns the first non-empty variable among keys
func getEnvFirst(keys []string, defaultValue string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
