package middleware

import (
	"net/http"

	"github.com/agentbooks/portal-gateway/models"
	"github.com/agentbooks/portal-gateway/session"
	"github.com/agentbooks/portal-gateway/utils"
	"go.uber.org/zap"
)

// SessionDecoder verifies session tokens
type SessionDecoder interface {
	Decode(token string) (*models.Session, error)
}

// AuthMiddleware gates routes on a valid portal-local session
type AuthMiddleware struct {
	decoder  SessionDecoder
	jar      *session.CookieJar
	audience models.Audience
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. audience is the portal's own
// audience; AudienceNone accepts any role (the auth portal).
func NewAuthMiddleware(decoder SessionDecoder, jar *session.CookieJar, audience models.Audience, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		decoder:  decoder,
		jar:      jar,
		audience: audience,
		logger:   logger,
	}
}

// RequireAuth is a middleware that requires a valid session. Nothing past it
// runs for an absent, invalid or expired session.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		sess, ok := m.authenticate(w, r, requestID)
		if !ok {
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", sess.Subject.String()),
			zap.String("role", string(sess.Role)))

		next.ServeHTTP(w, r.WithContext(WithSession(ctx, sess)))
	})
}

func (m *AuthMiddleware) authenticate(w http.ResponseWriter, r *http.Request, requestID string) (*models.Session, bool) {
	token := m.jar.Token(r)
	if token == "" {
		m.logger.Debug("missing session",
			zap.String("request_id", requestID))
		_ = utils.WriteUnauthorized(w, "")
		return nil, false
	}

	sess, err := m.decoder.Decode(token)
	if err != nil {
		m.logger.Info("session rejected",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteUnauthorized(w, "Session invalid or expired")
		return nil, false
	}

	if m.audience != models.AudienceNone {
		audience, known := sess.Role.Audience()
		if !known || audience != m.audience {
			m.logger.Warn("session audience mismatch",
				zap.String("request_id", requestID),
				zap.String("role", string(sess.Role)),
				zap.String("portal_audience", string(m.audience)))
			_ = utils.WriteForbidden(w, "")
			return nil, false
		}
	}

	return sess, true
}
