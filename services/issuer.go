package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentbooks/portal-gateway/models"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// exchangeLookupTimeout bounds a shared profile lookup once it is detached from
// the request that started it
const exchangeLookupTimeout = 30 * time.Second

// CredentialStore is the identity provider behind the record API
type CredentialStore interface {
	Login(ctx context.Context, email, password string) (accessToken string, err error)
	TokenData(ctx context.Context, accessToken string) (*models.Identity, error)
}

// SessionIssuer authenticates users against the Credential Store and mints sessions
type SessionIssuer struct {
	store  CredentialStore
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	// exchanges collapses concurrent lookups of the same bearer credential
	exchanges singleflight.Group
}

// NewSessionIssuer creates a new SessionIssuer. ttl bounds the session lifetime;
// the bearer credential's own expiry may shorten it further.
func NewSessionIssuer(store CredentialStore, ttl time.Duration, logger *zap.Logger) *SessionIssuer {
	return &SessionIssuer{
		store:  store,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Authenticate logs in with email and password and returns a session whose claims
// come from the profile lookup made with the freshly issued access token.
func (i *SessionIssuer) Authenticate(ctx context.Context, email, password string) (*models.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, ErrInvalidInput
	}

	accessToken, err := i.store.Login(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrLoginRejected) {
			i.logger.Info("login rejected by credential store", zap.Error(err))
			return nil, ErrInvalidCredentials
		}
		i.logFailure("login failed", err)
		return nil, WrapAuthenticationFailed(err)
	}

	return i.sessionFor(ctx, accessToken)
}

// Exchange derives a session from a bearer credential handed over from another
// origin. The profile lookup is always repeated; nothing is taken from the caller.
// Callers presenting the same credential at the same moment share one lookup;
// the lookup outlives any single caller going away, and each caller stops
// waiting when its own ctx is done.
func (i *SessionIssuer) Exchange(ctx context.Context, accessToken string) (*models.Session, error) {
	if strings.TrimSpace(accessToken) == "" {
		return nil, NewDomainError(ErrorTypeInvalidInput, "access token is required", nil)
	}

	ch := i.exchanges.DoChan(accessToken, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeLookupTimeout)
		defer cancel()
		return i.sessionFor(lookupCtx, accessToken)
	})

	select {
	case <-ctx.Done():
		return nil, WrapAuthenticationFailed(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			i.logger.Debug("profile lookup shared")
		}
		sess := *res.Val.(*models.Session)
		return &sess, nil
	}
}

func (i *SessionIssuer) sessionFor(ctx context.Context, accessToken string) (*models.Session, error) {
	identity, err := i.store.TokenData(ctx, accessToken)
	if err != nil {
		i.logFailure("profile lookup failed", err)
		return nil, WrapAuthenticationFailed(err)
	}

	now := i.now()
	expiresAt := now.Add(i.ttl)
	if bearerExp, ok := BearerExpiry(accessToken); ok {
		if !bearerExp.After(now) {
			err := fmt.Errorf("bearer credential expired at %s", bearerExp.UTC().Format(time.RFC3339))
			i.logFailure("profile lookup failed", err)
			return nil, WrapAuthenticationFailed(err)
		}
		if bearerExp.Before(expiresAt) {
			expiresAt = bearerExp
		}
	}

	i.logger.Debug("session issued",
		zap.String("user_id", identity.UserID.String()),
		zap.String("role", string(identity.Role)),
		zap.Time("expires_at", expiresAt))

	return models.NewSession(identity, accessToken, now, expiresAt), nil
}

func (i *SessionIssuer) logFailure(msg string, err error) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		i.logger.Warn(msg,
			zap.String("path", statusErr.Path),
			zap.Int("upstream_status", statusErr.StatusCode),
			zap.String("upstream_body", truncate(statusErr.Body, 512)))
		return
	}
	i.logger.Warn(msg, zap.Error(err))
}

// BearerExpiry reads the exp claim of a bearer credential that happens to be a JWT.
// The signature is not checked: the Credential Store owns that key and still
// validates the token on every call. ok is false for opaque credentials.
func BearerExpiry(accessToken string) (time.Time, bool) {
	if strings.Count(accessToken, ".") != 2 {
		return time.Time{}, false
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := &jwt.RegisteredClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
