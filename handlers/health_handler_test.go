package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockPinger is a mock implementation of Pinger
type MockPinger struct {
	mock.Mock
}

func (m *MockPinger) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestHandleHealth(t *testing.T) {
	handler := NewHealthHandler("practice", nil, zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "practice", response.Portal)
	assert.NotEmpty(t, response.Timestamp)
}

func TestHandleReadiness(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		nilPinger  bool
		wantStatus int
		wantCheck  string
	}{
		{name: "record API reachable", wantStatus: http.StatusOK, wantCheck: "healthy"},
		{name: "record API down", pingErr: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantCheck: "unhealthy"},
		{name: "not configured", nilPinger: true, wantStatus: http.StatusServiceUnavailable, wantCheck: "not_configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var handler *HealthHandler
			if tt.nilPinger {
				handler = NewHealthHandler("auth", nil, zap.NewNop())
			} else {
				pinger := new(MockPinger)
				pinger.On("Ping", mock.Anything).Return(tt.pingErr)
				handler = NewHealthHandler("auth", pinger, zap.NewNop())
			}

			w := httptest.NewRecorder()
			handler.HandleReadiness(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			var response HealthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantCheck, response.Checks["record_api"])
		})
	}
}
