package middleware

import (
	"context"

	"github.com/agentbooks/portal-gateway/models"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Context key type to avoid collisions
type contextKey string

// SessionKey is the context key for the decoded session
const SessionKey contextKey = "session"

// GetRequestIDFromContext retrieves the id assigned by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimiddleware.GetReqID(ctx)
}

// GetSessionFromContext retrieves the session decoded by RequireAuth
func GetSessionFromContext(ctx context.Context) *models.Session {
	if val := ctx.Value(SessionKey); val != nil {
		if s, ok := val.(*models.Session); ok {
			return s
		}
	}
	return nil
}

// WithSession adds a decoded session to the context
func WithSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}
