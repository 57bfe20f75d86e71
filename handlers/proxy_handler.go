package handlers

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/agentbooks/portal-gateway/middleware"
	"github.com/agentbooks/portal-gateway/models"
	"github.com/agentbooks/portal-gateway/services"
	"github.com/agentbooks/portal-gateway/services/proxy"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// passthroughHeaders are copied from a successful record API response
var passthroughHeaders = []string{"Content-Type", "Content-Disposition", "ETag", "Last-Modified", "Location"}

// Forwarder sends a request to the record API on behalf of a session
type Forwarder interface {
	Forward(ctx context.Context, sess *models.Session, req *proxy.Request) (*proxy.Response, error)
}

// ProxyHandler exposes the record API under /api/* for the signed-in user
type ProxyHandler struct {
	forwarder Forwarder
	logger    *zap.Logger
}

// NewProxyHandler creates a new ProxyHandler
func NewProxyHandler(forwarder Forwarder, logger *zap.Logger) *ProxyHandler {
	return &ProxyHandler{
		forwarder: forwarder,
		logger:    logger,
	}
}

// HandleProxy handles /api/*. Must run behind AuthMiddleware.RequireAuth.
func (h *ProxyHandler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess := middleware.GetSessionFromContext(ctx)
	if sess == nil {
		HandleServiceError(w, services.ErrUnauthorized, h.logger)
		return
	}

	requestID := middleware.GetRequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	resp, err := h.forwarder.Forward(ctx, sess, &proxy.Request{
		Method:    r.Method,
		Path:      escapedWildcard(r),
		RawQuery:  r.URL.RawQuery,
		Header:    r.Header,
		Body:      r.Body,
		RequestID: requestID,
	})
	if err != nil {
		HandleServiceError(w, err, h.logger.With(zap.String("request_id", requestID)))
		return
	}
	defer resp.Body.Close()

	for _, name := range passthroughHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Warn("copy upstream body failed",
			zap.String("request_id", requestID),
			zap.Error(err))
	}
}

// escapedWildcard returns the /api/* remainder in its escaped form. chi matches
// on RawPath when the request has one, so the param is already escaped then.
func escapedWildcard(r *http.Request) string {
	p := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		return p
	}
	return (&url.URL{Path: p}).EscapedPath()
}
