package control

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purefinance/mmb/internal/config"
	"github.com/purefinance/mmb/internal/logging"
	"github.com/purefinance/mmb/internal/risk"
)

type fakeStats struct{}

func (fakeStats) Stats() map[string]any                 { return map[string]any{"orders_active": 0} }
func (fakeStats) CircuitBreakerStatuses() []risk.Status { return nil }

func TestHealthEndpoint(t *testing.T) {
	cfg := &config.Config{Control: config.ControlConfig{ListenAddr: ":0"}}
	_, cancel := context.WithCancel(context.Background())
	s := NewServer(cfg, fakeStats{}, logging.Noop{}, cancel)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestStatsEndpoint(t *testing.T) {
	cfg := &config.Config{Control: config.ControlConfig{ListenAddr: ":0"}}
	_, cancel := context.WithCancel(context.Background())
	s := NewServer(cfg, fakeStats{}, logging.Noop{}, cancel)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	rec := httptest.NewRecorder()
	s.http.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "orders_active")
}
