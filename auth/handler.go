package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/agentbooks/portal-gateway/config"
	"github.com/agentbooks/portal-gateway/handlers"
	"github.com/agentbooks/portal-gateway/internal/observability"
	"github.com/agentbooks/portal-gateway/middleware"
	"github.com/agentbooks/portal-gateway/models"
	"github.com/agentbooks/portal-gateway/services"
	"github.com/agentbooks/portal-gateway/services/routing"
	"github.com/agentbooks/portal-gateway/session"
	"github.com/agentbooks/portal-gateway/utils"
	"go.uber.org/zap"
)

// Reason codes appended to the auth portal login URL
const (
	ReasonSessionExpired = "session_expired"
	ReasonUnauthorized   = "unauthorized"
)

// Authenticator mints sessions from credentials or a handed-over bearer credential
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*models.Session, error)
	Exchange(ctx context.Context, accessToken string) (*models.Session, error)
}

// DestinationResolver picks the portal a role is sent to
type DestinationResolver interface {
	ResolveDestination(role models.Role, requested models.Audience) (routing.Destination, error)
}

// SessionCodec signs and verifies portal-local session tokens
type SessionCodec interface {
	Encode(s *models.Session) (string, error)
	Decode(token string) (*models.Session, error)
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email       string `json:"email" validate:"required,max=254"`
	Password    string `json:"password" validate:"required,max=1024"`
	Destination string `json:"destination,omitempty" validate:"max=32"`
}

// LoginResponse tells the browser where to navigate next
type LoginResponse struct {
	RedirectURL string          `json:"redirect_url"`
	Role        models.Role     `json:"role"`
	Audience    models.Audience `json:"audience"`
}

// Handler serves the session endpoints of a portal: login and redirect on the
// auth portal, handoff capture on the practice and client portals, and session
// lookup and logout everywhere.
type Handler struct {
	cfg      *config.Config
	issuer   Authenticator
	resolver DestinationResolver
	codec    SessionCodec
	jar      *session.CookieJar
	audience models.Audience
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewHandler creates a new auth handler for the portal named in cfg
func NewHandler(
	cfg *config.Config,
	issuer Authenticator,
	resolver DestinationResolver,
	codec SessionCodec,
	jar *session.CookieJar,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		issuer:   issuer,
		resolver: resolver,
		codec:    codec,
		jar:      jar,
		audience: PortalAudience(cfg.Portal),
		metrics:  metrics,
		logger:   logger.With(zap.String("portal", string(cfg.Portal))),
	}
}

// PortalAudience returns the audience a portal serves. The auth portal serves none.
func PortalAudience(portal config.PortalKind) models.Audience {
	switch portal {
	case config.PortalPractice:
		return models.AudiencePractice
	case config.PortalClient:
		return models.AudienceClient
	default:
		return models.AudienceNone
	}
}

// HandleLogin authenticates against the Credential Store, sets the auth portal
// session cookie and answers with the handoff URL for the user's portal.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestIDFromContext(r.Context())
	utils.NoStore(w)

	var req LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.metrics.RecordLogin("invalid_input")
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.metrics.RecordLogin("invalid_input")
		handlers.HandleServiceError(w, services.ErrInvalidInput, h.logger)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		h.metrics.RecordLogin("invalid_input")
		handlers.HandleValidationError(w, err, h.logger)
		return
	}

	requested, err := models.ParseAudience(req.Destination)
	if err != nil {
		h.metrics.RecordLogin("invalid_input")
		_ = utils.WriteBadRequest(w, "destination must be one of: client practice", map[string]interface{}{
			"destination": req.Destination,
		})
		return
	}

	sess, err := h.issuer.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.metrics.RecordLogin(loginOutcome(err))
		handlers.HandleServiceError(w, err, h.logger.With(zap.String("request_id", requestID)))
		return
	}

	dest, err := h.resolver.ResolveDestination(sess.Role, requested)
	if err != nil {
		h.metrics.RecordLogin("unknown_role")
		handlers.HandleServiceError(w, err, h.logger.With(zap.String("request_id", requestID)))
		return
	}

	if err := h.setSession(w, sess); err != nil {
		h.metrics.RecordLogin("error")
		handlers.HandleServiceError(w, err, h.logger.With(zap.String("request_id", requestID)))
		return
	}

	h.metrics.RecordLogin("success")
	h.logger.Info("login succeeded",
		zap.String("request_id", requestID),
		zap.String("sub", sess.Subject.String()),
		zap.String("role", string(sess.Role)),
		zap.String("audience", string(dest.Audience)),
		zap.String("bearer_fp", observability.TokenFingerprint(sess.AccessToken)))

	_ = utils.WriteJSON(w, http.StatusOK, LoginResponse{
		RedirectURL: routing.HandoffURL(dest.Origin, sess.AccessToken),
		Role:        sess.Role,
		Audience:    dest.Audience,
	})
}

// HandleRedirect sends a user who already holds an auth portal session on to
// their portal. Without a session the browser goes back to the login page.
func (h *Handler) HandleRedirect(w http.ResponseWriter, r *http.Request) {
	utils.NoStore(w)

	sess := h.currentSession(r)
	if sess == nil {
		http.Redirect(w, r, "/login?reason="+ReasonSessionExpired, http.StatusFound)
		return
	}

	requested, err := models.ParseAudience(r.URL.Query().Get("destination"))
	if err != nil {
		h.logger.Debug("ignoring unknown destination", zap.Error(err))
		requested = models.AudienceNone
	}

	dest, err := h.resolver.ResolveDestination(sess.Role, requested)
	if err != nil {
		h.logger.Warn("session role has no portal",
			zap.String("role", string(sess.Role)),
			zap.Error(err))
		h.jar.Clear(w)
		http.Redirect(w, r, "/login?reason="+ReasonUnauthorized, http.StatusFound)
		return
	}

	http.Redirect(w, r, routing.HandoffURL(dest.Origin, sess.AccessToken), http.StatusFound)
}

// HandleSession returns the browser-facing view of the current session.
// Must run behind AuthMiddleware.RequireAuth.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	sess := middleware.GetSessionFromContext(r.Context())
	if sess == nil {
		handlers.HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}
	utils.NoStore(w)
	_ = utils.WriteJSON(w, http.StatusOK, sess.View())
}

// HandleLogout clears the portal-local session. The practice and client portals
// send the browser back to the auth portal login page.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.jar.Clear(w)
	utils.NoStore(w)

	if h.audience == models.AudienceNone {
		utils.WriteNoContent(w)
		return
	}
	http.Redirect(w, r, h.cfg.LoginURL(""), http.StatusSeeOther)
}

// HandleLanding answers GET / on the practice and client portals once any
// handoff has been captured.
func (h *Handler) HandleLanding(w http.ResponseWriter, r *http.Request) {
	utils.NoStore(w)

	sess := h.currentSession(r)
	if sess == nil || !h.servesRole(sess.Role) {
		http.Redirect(w, r, h.cfg.LoginURL(""), http.StatusFound)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, sess.View())
}

// CaptureHandoff consumes a bearer credential arriving in the URL of a non-API
// GET. The profile lookup is repeated, the role must belong to this portal, and
// the browser is sent to the same URL without the credential. Any failure clears
// the local session and sends the browser to the auth portal.
func (h *Handler) CaptureHandoff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method != http.MethodGet && r.Method != http.MethodHead) || strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}

		bearer := routing.HandoffToken(r)
		if bearer == "" {
			next.ServeHTTP(w, r)
			return
		}

		requestID := middleware.GetRequestIDFromContext(r.Context())
		logger := h.logger.With(
			zap.String("request_id", requestID),
			zap.String("bearer_fp", observability.TokenFingerprint(bearer)))

		utils.NoStore(w)
		w.Header().Set("Referrer-Policy", "no-referrer")

		sess, err := h.issuer.Exchange(r.Context(), bearer)
		if err != nil {
			logger.Info("handoff rejected", zap.Error(err))
			h.rejectHandoff(w, r, "exchange_failed")
			return
		}

		if !h.servesRole(sess.Role) {
			logger.Warn("handoff audience mismatch",
				zap.String("role", string(sess.Role)),
				zap.String("portal_audience", string(h.audience)))
			h.rejectHandoff(w, r, "audience_mismatch")
			return
		}

		if err := h.setSession(w, sess); err != nil {
			logger.Error("handoff session not stored", zap.Error(err))
			h.rejectHandoff(w, r, "error")
			return
		}

		h.metrics.RecordHandoff("success")
		logger.Info("handoff captured",
			zap.String("sub", sess.Subject.String()),
			zap.String("role", string(sess.Role)))

		http.Redirect(w, r, routing.StripHandoff(r.URL), http.StatusSeeOther)
	})
}

func (h *Handler) rejectHandoff(w http.ResponseWriter, r *http.Request, outcome string) {
	h.metrics.RecordHandoff(outcome)
	h.jar.Clear(w)
	http.Redirect(w, r, h.cfg.LoginURL(ReasonUnauthorized), http.StatusSeeOther)
}

func (h *Handler) setSession(w http.ResponseWriter, sess *models.Session) error {
	token, err := h.codec.Encode(sess)
	if err != nil {
		return services.WrapInternal("failed to encode session", err)
	}
	h.jar.Set(w, token, sess.ExpiresAt)
	return nil
}

func (h *Handler) currentSession(r *http.Request) *models.Session {
	token := h.jar.Token(r)
	if token == "" {
		return nil
	}
	sess, err := h.codec.Decode(token)
	if err != nil {
		h.logger.Debug("session rejected", zap.Error(err))
		return nil
	}
	return sess
}

// servesRole reports whether this portal accepts the role
func (h *Handler) servesRole(role models.Role) bool {
	audience, ok := role.Audience()
	if !ok {
		return false
	}
	return h.audience == models.AudienceNone || audience == h.audience
}

func loginOutcome(err error) string {
	switch {
	case services.IsInvalidInputError(err):
		return "invalid_input"
	case services.IsInvalidCredentialsError(err):
		return "invalid_credentials"
	case services.IsAuthenticationFailedError(err):
		return "failed"
	default:
		return "error"
	}
}
