package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentbooks/portal-gateway/middleware"
	"github.com/agentbooks/portal-gateway/models"
	"github.com/agentbooks/portal-gateway/services"
	"github.com/agentbooks/portal-gateway/services/proxy"
	"github.com/agentbooks/portal-gateway/session"
	"github.com/agentbooks/portal-gateway/utils"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockForwarder is a mock implementation of Forwarder
type MockForwarder struct {
	mock.Mock
}

func (m *MockForwarder) Forward(ctx context.Context, sess *models.Session, req *proxy.Request) (*proxy.Response, error) {
	args := m.Called(ctx, sess, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*proxy.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

// stubDecoder accepts exactly one token
type stubDecoder struct {
	token string
	sess  *models.Session
}

func (d stubDecoder) Decode(token string) (*models.Session, error) {
	if token != d.token {
		return nil, services.WrapSessionInvalid(errors.New("bad token"))
	}
	return d.sess, nil
}

func proxyRouter(forwarder Forwarder, decoder middleware.SessionDecoder) http.Handler {
	auth := middleware.NewAuthMiddleware(decoder, session.NewCookieJar("portal_session", false), models.AudiencePractice, zap.NewNop())
	r := chi.NewRouter()
	r.With(auth.RequireAuth).HandleFunc("/api/*", NewProxyHandler(forwarder, zap.NewNop()).HandleProxy)
	return r
}

func TestProxyHandler_ForwardsEscapedPath(t *testing.T) {
	sess := &models.Session{Subject: "1", Role: models.RolePracticeOwner, AccessToken: "opaque-bearer", ExpiresAt: time.Now().Add(time.Hour)}

	tests := []struct {
		target string
		want   string
	}{
		{"/api/customers/", "customers/"},
		{"/api/customers/a%2Fb", "customers/a%2Fb"},
		{"/api/documents/q1%20report.pdf", "documents/q1%20report.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			var gotPath string
			forwarder := new(MockForwarder)
			forwarder.On("Forward", mock.Anything, sess, mock.Anything).
				Run(func(args mock.Arguments) { gotPath = args.Get(2).(*proxy.Request).Path }).
				Return(&proxy.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(strings.NewReader(""))}, nil)

			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.AddCookie(&http.Cookie{Name: "portal_session", Value: "signed-token"})
			w := httptest.NewRecorder()

			proxyRouter(forwarder, stubDecoder{token: "signed-token", sess: sess}).ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, gotPath)
		})
	}
}

func TestProxyHandler_PassesThroughSuccess(t *testing.T) {
	sess := &models.Session{Subject: "1", Role: models.RolePracticeOwner, AccessToken: "opaque-bearer", ExpiresAt: time.Now().Add(time.Hour)}
	forwarder := new(MockForwarder)
	forwarder.On("Forward", mock.Anything, sess, mock.MatchedBy(func(req *proxy.Request) bool {
		return req.Method == http.MethodGet && req.Path == "customers" && req.RawQuery == "page=2" && req.RequestID != ""
	})).Return(&proxy.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"application/json"}, "Set-Cookie": {"upstream=1"}},
		Body:       io.NopCloser(strings.NewReader(`[{"id":42}]`)),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/customers?page=2", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "signed-token"})
	w := httptest.NewRecorder()

	proxyRouter(forwarder, stubDecoder{token: "signed-token", sess: sess}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Empty(t, w.Header().Get("Set-Cookie"))
	assert.JSONEq(t, `[{"id":42}]`, w.Body.String())
	forwarder.AssertExpectations(t)
}

func TestProxyHandler_NoSessionNeverForwards(t *testing.T) {
	var hits int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer upstream.Close()

	svc, err := proxy.NewServiceWithClient(upstream.URL, upstream.Client(), zap.NewNop(), nil)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	proxyRouter(svc, stubDecoder{token: "signed-token"}).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/customers", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, int32(0), atomic.LoadInt32(&hits))
}

func TestProxyHandler_UpstreamNotFound(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/42", r.URL.Path)
		assert.Equal(t, "Bearer opaque-bearer", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Cookie"))
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"Customer 42 not found in practice 10"}`))
	}))
	defer upstream.Close()

	svc, err := proxy.NewServiceWithClient(upstream.URL, upstream.Client(), zap.NewNop(), nil)
	require.NoError(t, err)

	sess := &models.Session{Subject: "1", Role: models.RoleBookkeeper, PracticeID: "10", AccessToken: "opaque-bearer", ExpiresAt: time.Now().Add(time.Hour)}
	req := httptest.NewRequest(http.MethodGet, "/api/customers/42", nil)
	req.AddCookie(&http.Cookie{Name: "portal_session", Value: "signed-token"})
	w := httptest.NewRecorder()

	proxyRouter(svc, stubDecoder{token: "signed-token", sess: sess}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	var response utils.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "not_found", response.Error)
	assert.NotContains(t, response.Message, "practice 10")
}

func TestProxyHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"unauthorized", services.ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", services.ErrForbidden, http.StatusForbidden},
		{"not found", services.ErrNotFound, http.StatusNotFound},
		{"upstream conflict", services.NewUpstreamError(http.StatusConflict, nil), http.StatusConflict},
		{"transport", services.NewUpstreamError(http.StatusInternalServerError, errors.New("dial tcp")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := &models.Session{Subject: "1", Role: models.RolePayroll, AccessToken: "b", ExpiresAt: time.Now().Add(time.Hour)}
			forwarder := new(MockForwarder)
			forwarder.On("Forward", mock.Anything, sess, mock.Anything).Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodPost, "/api/payroll/runs", strings.NewReader(`{}`))
			req.AddCookie(&http.Cookie{Name: "portal_session", Value: "signed-token"})
			w := httptest.NewRecorder()

			proxyRouter(forwarder, stubDecoder{token: "signed-token", sess: sess}).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "dial tcp")
		})
	}
}

func TestProxyHandler_MissingSessionInContext(t *testing.T) {
	forwarder := new(MockForwarder)
	handler := NewProxyHandler(forwarder, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleProxy(w, httptest.NewRequest(http.MethodGet, "/api/customers", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	forwarder.AssertNotCalled(t, "Forward", mock.Anything, mock.Anything, mock.Anything)
}
