package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/agentbooks/portal-gateway/config"
	"github.com/agentbooks/portal-gateway/internal/observability"
	"github.com/agentbooks/portal-gateway/models"
	"github.com/agentbooks/portal-gateway/services"
	"go.uber.org/zap"
)

// maxLoggedBodyBytes bounds how much of an upstream error body is kept for logs
const maxLoggedBodyBytes = 2048

// forwardedHeaders are the only incoming headers copied to the record API.
// Cookie and Authorization never cross: the session stays on the portal.
var forwardedHeaders = []string{"Content-Type", "Accept", "Accept-Language", "If-None-Match", "If-Modified-Since"}

// Request is a call to be made against the record API on behalf of a session
type Request struct {
	Method    string
	Path      string // escaped, relative to the record API base URL
	RawQuery  string
	Header    http.Header
	Body      io.Reader
	RequestID string
}

// Response is a successful record API response. The caller must close Body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Service attaches a session's bearer credential to record API calls
type Service struct {
	baseURL    *url.URL
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewService creates a proxy for the configured record API
func NewService(cfg config.APIConfig, logger *zap.Logger, metrics *observability.Metrics) (*Service, error) {
	return NewServiceWithClient(cfg.BaseURL(), &http.Client{Timeout: cfg.Timeout}, logger, metrics)
}

// NewServiceWithClient creates a proxy with a caller-supplied http.Client
func NewServiceWithClient(baseURL string, httpClient *http.Client, logger *zap.Logger, metrics *observability.Metrics) (*Service, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse record API URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("record API URL must be absolute: %q", baseURL)
	}
	return &Service{
		baseURL:    u,
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
	}, nil
}

// Forward sends req upstream with the session's bearer credential.
// Non-2xx responses become domain errors: 401 Unauthorized, 403 Forbidden,
// 404 NotFound, anything else Internal carrying the upstream status.
func (s *Service) Forward(ctx context.Context, sess *models.Session, req *Request) (*Response, error) {
	if sess == nil || sess.AccessToken == "" {
		s.metrics.RecordProxy(req.Method, "unauthorized")
		return nil, services.ErrUnauthorized
	}

	target, err := s.resolve(req.Path, req.RawQuery)
	if err != nil {
		s.metrics.RecordProxy(req.Method, "invalid_path")
		return nil, err
	}
	upstreamReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), req.Body)
	if err != nil {
		return nil, services.WrapInternal("build upstream request", err)
	}

	for _, name := range forwardedHeaders {
		if v := req.Header.Get(name); v != "" {
			upstreamReq.Header.Set(name, v)
		}
	}
	upstreamReq.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	if req.RequestID != "" {
		upstreamReq.Header.Set("X-Request-ID", req.RequestID)
	}

	start := time.Now()
	resp, err := s.httpClient.Do(upstreamReq)
	s.metrics.ObserveUpstream("proxy", time.Since(start))
	if err != nil {
		s.logger.Error("upstream request failed",
			zap.String("request_id", req.RequestID),
			zap.String("method", req.Method),
			zap.String("path", target.Path),
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded) || isTimeout(err)),
			zap.Error(err))
		s.metrics.RecordProxy(req.Method, "transport_error")
		return nil, services.NewUpstreamError(http.StatusInternalServerError, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		s.metrics.RecordProxy(req.Method, "success")
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: resp.Body}, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBodyBytes))
	statusErr := &services.StatusError{Path: target.Path, StatusCode: resp.StatusCode, Body: string(body)}

	mapped := mapStatus(statusErr)
	s.logger.Warn("upstream returned error status",
		zap.String("request_id", req.RequestID),
		zap.String("method", req.Method),
		zap.String("path", target.Path),
		zap.Int("upstream_status", resp.StatusCode),
		zap.String("upstream_body", string(body)),
		zap.String("role", string(sess.Role)),
		zap.String("outcome", string(services.GetErrorType(mapped))))
	s.metrics.RecordProxy(req.Method, string(services.GetErrorType(mapped)))

	return nil, mapped
}

func mapStatus(statusErr *services.StatusError) error {
	switch statusErr.StatusCode {
	case http.StatusUnauthorized:
		return services.NewDomainError(services.ErrorTypeUnauthorized, services.ErrUnauthorized.Message, statusErr)
	case http.StatusForbidden:
		return services.NewDomainError(services.ErrorTypeForbidden, services.ErrForbidden.Message, statusErr)
	case http.StatusNotFound:
		return services.NewDomainError(services.ErrorTypeNotFound, services.ErrNotFound.Message, statusErr)
	default:
		return services.NewUpstreamError(statusErr.StatusCode, statusErr)
	}
}

// resolve joins an escaped request path onto the base URL. Escaping and any
// trailing slash are kept as sent; dot segments, encoded or not, are refused
// so the path cannot climb out of the base path.
func (s *Service) resolve(escapedPath, rawQuery string) (*url.URL, error) {
	rel := strings.TrimPrefix(escapedPath, "/")
	for _, seg := range strings.Split(rel, "/") {
		decoded, err := url.PathUnescape(seg)
		if err != nil || decoded == "." || decoded == ".." {
			return nil, services.NewDomainError(services.ErrorTypeInvalidInput, "invalid path", err).
				WithDetail("path", escapedPath)
		}
	}

	rawPath := strings.TrimSuffix(s.baseURL.EscapedPath(), "/") + "/" + rel
	decodedPath, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeInvalidInput, "invalid path", err)
	}

	target := *s.baseURL
	target.Path = decodedPath
	target.RawPath = rawPath
	target.RawQuery = rawQuery
	return &target, nil
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
