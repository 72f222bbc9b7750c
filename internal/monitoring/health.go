package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker tracks feed connectivity and recent activity for /healthz.
type HealthChecker struct {
	mu          sync.RWMutex
	lastTick    time.Time
	isConnected bool
	errors      []string
}

type HealthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	LastTick    time.Time `json:"last_tick"`
	IsConnected bool      `json:"is_connected"`
	Uptime      string    `json:"uptime"`
	Errors      []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		errors: make([]string, 0),
	}
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, code := "healthy", http.StatusOK
	if !h.isConnected {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	if len(h.errors) > 0 {
		status, code = "unhealthy", http.StatusInternalServerError
	}

	health := HealthStatus{
		Status:      status,
		Timestamp:   time.Now(),
		LastTick:    h.lastTick,
		IsConnected: h.isConnected,
		Uptime:      time.Since(startTime).String(),
		Errors:      h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(health)
}

// SetConnected marks the market-data feed connection state.
func (h *HealthChecker) SetConnected(connected bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isConnected = connected
}

// RecordTick marks feed liveness.
func (h *HealthChecker) RecordTick() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastTick = time.Now()
}

// RecordError appends a sticky error, keeping the most recent ten.
func (h *HealthChecker) RecordError(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
}

// ClearErrors resets the sticky error list.
func (h *HealthChecker) ClearErrors() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = h.errors[:0]
}
