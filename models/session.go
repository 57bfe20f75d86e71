package models

import (
	"time"
)

// Session is a short-lived projection of an Identity plus the bearer credential
// returned by the Credential Store. It lives only inside a signed token held by
// the browser.
type Session struct {
	Subject     ID
	Email       string
	Role        Role
	PracticeID  ID
	ClientIDs   []ID
	AccessToken string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// NewSession derives a session from a freshly fetched identity
func NewSession(identity *Identity, accessToken string, issuedAt, expiresAt time.Time) *Session {
	clientIDs := make([]ID, len(identity.ClientIDs))
	copy(clientIDs, identity.ClientIDs)
	return &Session{
		Subject:     identity.UserID,
		Email:       identity.Email,
		Role:        identity.Role,
		PracticeID:  identity.PracticeID,
		ClientIDs:   clientIDs,
		AccessToken: accessToken,
		IssuedAt:    issuedAt,
		ExpiresAt:   expiresAt,
	}
}

// IsExpired reports whether the session is past its expiry at the given instant
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SessionView is the browser-facing projection of a session. It never carries
// the access token.
type SessionView struct {
	UserID     ID        `json:"userId"`
	Email      string    `json:"email,omitempty"`
	Role       Role      `json:"role"`
	Audience   Audience  `json:"audience"`
	PracticeID ID        `json:"practiceId,omitempty"`
	ClientIDs  []ID      `json:"clientIds"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// View builds the browser-facing projection
func (s *Session) View() SessionView {
	audience, _ := s.Role.Audience()
	clientIDs := s.ClientIDs
	if clientIDs == nil {
		clientIDs = []ID{}
	}
	return SessionView{
		UserID:     s.Subject,
		Email:      s.Email,
		Role:       s.Role,
		Audience:   audience,
		PracticeID: s.PracticeID,
		ClientIDs:  clientIDs,
		ExpiresAt:  s.ExpiresAt,
	}
}
