package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthStatus(t *testing.T, h *HealthChecker) (int, HealthStatus) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return rec.Code, status
}

func TestHealthTransitions(t *testing.T) {
	h := NewHealthChecker()

	// Disconnected on boot: degraded until the feed is up.
	code, status := healthStatus(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", status.Status)

	h.SetConnected(true)
	code, status = healthStatus(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status.Status)

	// Sticky errors outrank connectivity.
	h.RecordError("feed channel closed")
	code, status = healthStatus(t, h)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, []string{"feed channel closed"}, status.Errors)

	h.ClearErrors()
	code, status = healthStatus(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", status.Status)
	assert.Empty(t, status.Errors)
}

func TestHealthErrorListBounded(t *testing.T) {
	h := NewHealthChecker()
	h.SetConnected(true)
	for i := 0; i < 15; i++ {
		h.RecordError("liquidate 005930: rejected by broker")
	}

	_, status := healthStatus(t, h)
	assert.Len(t, status.Errors, 10)
}
