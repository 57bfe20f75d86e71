package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/agentbooks/portal-gateway/models"
	"github.com/agentbooks/portal-gateway/services"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest HS256 signing secret accepted
const MinSecretLength = 32

var (
	// ErrWeakSecret is returned when the signing secret is too short
	ErrWeakSecret = errors.New("session secret too short")

	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims represents the claims carried by a session token
type Claims struct {
	jwt.RegisteredClaims
	Email       string      `json:"email,omitempty"`
	Role        models.Role `json:"role"`
	PracticeID  models.ID   `json:"practiceId,omitempty"`
	ClientIDs   []models.ID `json:"clientIds"`
	AccessToken string      `json:"accessToken"`
}

// Codec signs and verifies session tokens with a shared HS256 secret.
// Tokens are only accepted by a codec with the same issuer.
type Codec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewCodec creates a codec. issuer is the origin of the portal that owns the cookie.
func NewCodec(secret, issuer string) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrWeakSecret, MinSecretLength)
	}
	return &Codec{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}, nil
}

// Encode serializes a session into a signed token that expires with the session
func (c *Codec) Encode(s *models.Session) (string, error) {
	if s == nil {
		return "", errors.New("nil session")
	}
	if s.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if s.Role == "" {
		return "", fmt.Errorf("%w: role", ErrMissingClaim)
	}
	if s.ExpiresAt.IsZero() {
		return "", fmt.Errorf("%w: exp", ErrMissingClaim)
	}

	issuedAt := s.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = c.now()
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   s.Subject.String(),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
		Email:       s.Email,
		Role:        s.Role,
		PracticeID:  s.PracticeID,
		ClientIDs:   s.ClientIDs,
		AccessToken: s.AccessToken,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Decode verifies a token and rebuilds the session from its claims alone.
// Every failure is a SessionInvalid domain error.
func (c *Codec) Decode(tokenString string) (*models.Session, error) {
	if tokenString == "" {
		return nil, services.WrapSessionInvalid(errors.New("empty token"))
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, services.WrapSessionInvalid(err)
	}
	if !token.Valid {
		return nil, services.WrapSessionInvalid(errors.New("token invalid"))
	}

	if claims.Subject == "" {
		return nil, services.WrapSessionInvalid(fmt.Errorf("%w: sub", ErrMissingClaim))
	}
	if claims.Role == "" {
		return nil, services.WrapSessionInvalid(fmt.Errorf("%w: role", ErrMissingClaim))
	}

	s := &models.Session{
		Subject:     models.ID(claims.Subject),
		Email:       claims.Email,
		Role:        claims.Role,
		PracticeID:  claims.PracticeID,
		ClientIDs:   claims.ClientIDs,
		AccessToken: claims.AccessToken,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	if s.ClientIDs == nil {
		s.ClientIDs = []models.ID{}
	}

	return s, nil
}
