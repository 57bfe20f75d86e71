package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agentbooks/portal-gateway/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsRoutePattern(t *testing.T) {
	m := observability.NewMetrics("client")

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/api/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/customers/42", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `portal_gateway_http_requests_total{method="GET",portal="client",route="/api/*",status="404"} 1`)
}
