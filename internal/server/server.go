package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"quant-trader/internal/engine"
	"quant-trader/internal/logger"
	"quant-trader/internal/monitoring"
	"quant-trader/internal/screener"
	"quant-trader/internal/types"
)

type contextKey string

const requestIDKey contextKey = "request_id"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the HTTP and WebSocket boundary of the trader.
type Server struct {
	router   *mux.Router
	server   *http.Server
	coord    *engine.Coordinator
	hub      *Hub
	selector *screener.Selector
	health   *monitoring.HealthChecker
}

func New(addr string, coord *engine.Coordinator, hub *Hub, selector *screener.Selector, health *monitoring.HealthChecker) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		coord:    coord,
		hub:      hub,
		selector: selector,
		health:   health,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/system/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/system/start", s.handleStart).Methods("POST")
	api.HandleFunc("/system/stop", s.handleStop).Methods("POST")

	api.HandleFunc("/positions", s.handlePositions).Methods("GET")
	api.HandleFunc("/trades", s.handleTrades).Methods("GET")

	api.HandleFunc("/signals", s.handleSignals).Methods("GET")
	api.HandleFunc("/signals/{id}/approve", s.handleApprove).Methods("POST")
	api.HandleFunc("/signals/{id}/reject", s.handleReject).Methods("POST")

	api.HandleFunc("/order/manual", s.handleManualOrder).Methods("POST")

	api.HandleFunc("/config/risk", s.handleRiskConfig).Methods("POST")
	api.HandleFunc("/config/strategy", s.handleStrategyConfig).Methods("POST")

	api.HandleFunc("/screener/presets", s.handlePresets).Methods("GET")
	api.HandleFunc("/screener/presets/{name}", s.handlePreset).Methods("GET")
	api.HandleFunc("/screener/select", s.handleScreenerSelect).Methods("POST")

	s.router.Handle("/healthz", s.health).Methods("GET")
	s.router.Handle("/metrics", monitoring.Handler()).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapper, r)

		logger.Info(r.Context(), "HTTP request",
			"request_id", r.Context().Value(requestIDKey),
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapper.statusCode,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// handleWebSocket upgrades the connection and replays the current state so a
// fresh client starts in sync.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn(r.Context(), "WebSocket upgrade failed", "error", err)
		return
	}
	s.hub.register(conn)
	logger.Info(r.Context(), "WebSocket client connected",
		"remote", r.RemoteAddr,
		"clients", s.hub.ClientCount())

	for _, env := range []types.Envelope{
		{Type: types.EnvStatus, Data: s.coord.Status()},
		{Type: types.EnvPosition, Data: s.coord.Positions()},
		{Type: types.EnvSignalSnapshot, Data: s.coord.Registry().ListPending()},
	} {
		if err := conn.WriteJSON(env); err != nil {
			s.hub.unregister(conn)
			return
		}
	}

	// Read pump: clients send nothing meaningful, but reading is the only
	// way to observe the close.
	go func() {
		defer s.hub.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
