package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieJar_SetAndClear(t *testing.T) {
	jar := NewCookieJar("portal_session", true)
	jar.now = func() time.Time { return codecNow }

	t.Run("set", func(t *testing.T) {
		w := httptest.NewRecorder()
		jar.Set(w, "signed-token", codecNow.Add(30*time.Minute))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, "portal_session", cookies[0].Name)
		assert.Equal(t, "signed-token", cookies[0].Value)
		assert.Equal(t, 1800, cookies[0].MaxAge)
		assert.True(t, cookies[0].HttpOnly)
		assert.True(t, cookies[0].Secure)
		assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
		assert.Equal(t, "/", cookies[0].Path)
	})

	t.Run("set with past expiry clears", func(t *testing.T) {
		w := httptest.NewRecorder()
		jar.Set(w, "signed-token", codecNow.Add(-time.Minute))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Empty(t, cookies[0].Value)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})

	t.Run("clear", func(t *testing.T) {
		w := httptest.NewRecorder()
		jar.Clear(w)

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Empty(t, cookies[0].Value)
		assert.Equal(t, -1, cookies[0].MaxAge)
	})
}

func TestCookieJar_Token(t *testing.T) {
	jar := NewCookieJar("portal_session", false)

	tests := []struct {
		name   string
		cookie string
		header string
		want   string
	}{
		{name: "cookie", cookie: "from-cookie", want: "from-cookie"},
		{name: "bearer header", header: "Bearer from-header", want: "from-header"},
		{name: "lowercase scheme", header: "bearer from-header", want: "from-header"},
		{name: "cookie wins", cookie: "from-cookie", header: "Bearer from-header", want: "from-cookie"},
		{name: "basic auth ignored", header: "Basic dXNlcjpwYXNz", want: ""},
		{name: "nothing", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/customers", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "portal_session", Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			assert.Equal(t, tt.want, jar.Token(req))
		})
	}
}
