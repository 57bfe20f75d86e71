package session

import (
	"net/http"
	"strings"
	"time"
)

// CookieJar writes and reads the portal-local session cookie
type CookieJar struct {
	Name   string
	Secure bool
	now    func() time.Time
}

// NewCookieJar creates a CookieJar for the given cookie name
func NewCookieJar(name string, secure bool) *CookieJar {
	return &CookieJar{Name: name, Secure: secure, now: time.Now}
}

// Set stores a session token that expires together with the session
func (j *CookieJar) Set(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(j.now()).Seconds())
	if maxAge <= 0 {
		j.Clear(w)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     j.Name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear expires the session cookie
func (j *CookieJar) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   j.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Token extracts the session token from the cookie, or from an
// "Authorization: Bearer" header for non-browser callers. The cookie wins.
func (j *CookieJar) Token(r *http.Request) string {
	if cookie, err := r.Cookie(j.Name); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return BearerToken(r)
}

// BearerToken extracts the Bearer token from the Authorization header
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
