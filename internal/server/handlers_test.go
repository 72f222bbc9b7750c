package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quant-trader/internal/engine"
	"quant-trader/internal/monitoring"
	"quant-trader/internal/screener"
	"quant-trader/internal/store"
	"quant-trader/internal/types"
)

type stubFeed struct {
	ticks chan types.Tick
}

func (f *stubFeed) Subscribe(ctx context.Context, symbols []string) error { return nil }
func (f *stubFeed) Ticks() <-chan types.Tick                              { return f.ticks }
func (f *stubFeed) Close() error                                          { return nil }

type stubExecutor struct{ accepted bool }

func (e *stubExecutor) Execute(ctx context.Context, direction types.Direction, symbol string, price float64) (bool, error) {
	return e.accepted, nil
}

type stubRanking struct{ candidates []screener.Candidate }

func (s *stubRanking) FetchRanking(ctx context.Context) ([]screener.Candidate, error) {
	return s.candidates, nil
}

func testConfig() *store.Config {
	cfg := &store.Config{}
	cfg.Mode = "DRY_RUN"
	cfg.Symbols = []string{"005930"}
	cfg.Account.InitialBalance = 10000000
	cfg.Risk.RiskConfig = store.RiskConfig{
		MaxSingleTradeAmount: 1000000,
		PositionSizeRatio:    0.1,
		StopLossRatio:        0.02,
		TakeProfitRatio:      0.05,
		DailyLossLimit:       500000,
		MaxDailyTrades:       5,
	}
	cfg.Strategy = store.StrategyConfig{ShortPeriod: 3, LongPeriod: 10, MinChangeRatio: 0.01}
	return cfg
}

func newTestServer(t *testing.T) *Server {
	s, _ := newTestServerAndCoord(t)
	return s
}

func newTestServerAndCoord(t *testing.T) (*Server, *engine.Coordinator) {
	t.Helper()
	t.Setenv("TRADER_LOG_DIR", t.TempDir())
	hub := NewHub()
	coord, err := engine.New(testConfig(), &stubFeed{ticks: make(chan types.Tick)}, &stubExecutor{accepted: true}, hub, monitoring.NewHealthChecker())
	require.NoError(t, err)

	selector := screener.NewSelector(&stubRanking{candidates: []screener.Candidate{
		{Code: "000660", Name: "SK hynix", Price: 45000, ChangeRate: 0.03, Volume: 900000, TradeAmount: 50000000000},
	}})
	return New(":0", coord, hub, selector, monitoring.NewHealthChecker()), coord
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, "GET", "/api/system/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var status types.StatusSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Running)
	assert.Equal(t, 10000000.0, status.Balance)
	assert.Equal(t, []string{"005930"}, status.Symbols)
}

func TestStartStopEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/system/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, "POST", "/api/system/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(s, "POST", "/api/system/stop", map[string]bool{"liquidate": false})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, "POST", "/api/system/stop", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApproveUnknownSignal(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, "POST", "/api/signals/deadbeef/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s, "POST", "/api/signals/deadbeef/reject", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveRejectedByRiskRules(t *testing.T) {
	s, coord := newTestServerAndCoord(t)
	sig := coord.Registry().Create("005930", types.Buy, 50000, "golden_cross")

	// A manual buy opens the position while the signal is still pending.
	rec := doRequest(s, "POST", "/api/order/manual", map[string]any{"direction": "buy", "symbol": "005930", "price": 50000})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, "POST", "/api/signals/"+sig.ID+"/approve", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp struct {
		Error  string              `json:"error"`
		Signal types.PendingSignal `json:"signal"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Error, "position already open")
	assert.Equal(t, types.StatusFailed, resp.Signal.Status)
}

func TestSignalsEmptyList(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, "GET", "/api/signals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestManualOrderValidation(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/order/manual", map[string]any{"direction": "hold", "symbol": "005930", "price": 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, "POST", "/api/order/manual", map[string]any{"direction": "buy", "symbol": "", "price": 100})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Selling with no position is a risk-level rejection, not a bad request.
	rec = doRequest(s, "POST", "/api/order/manual", map[string]any{"direction": "sell", "symbol": "005930", "price": 100})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestManualOrderBuyAndTrades(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/order/manual", map[string]any{"direction": "buy", "symbol": "005930", "price": 50000})
	require.Equal(t, http.StatusOK, rec.Code)

	var trade types.TradeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trade))
	assert.Equal(t, types.Buy, trade.Direction)
	assert.Equal(t, 20, trade.Quantity)

	rec = doRequest(s, "GET", "/api/trades?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var trades []types.TradeRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &trades))
	require.Len(t, trades, 1)

	rec = doRequest(s, "GET", "/api/positions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var positions []engine.PositionStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "005930", positions[0].Symbol)
}

func TestTradesLimitValidation(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, "GET", "/api/trades?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, "GET", "/api/trades?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRiskConfigEndpoint(t *testing.T) {
	s := newTestServer(t)

	bad := testConfig().Risk.RiskConfig
	bad.PositionSizeRatio = 2.0
	rec := doRequest(s, "POST", "/api/config/risk", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	good := testConfig().Risk.RiskConfig
	good.MaxDailyTrades = 7
	rec = doRequest(s, "POST", "/api/config/risk", good)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStrategyConfigEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/config/strategy", store.StrategyConfig{ShortPeriod: 10, LongPeriod: 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, "POST", "/api/config/strategy", store.StrategyConfig{ShortPeriod: 5, LongPeriod: 20, MinChangeRatio: 0.01})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScreenerPresetEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "GET", "/api/screener/presets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var presets map[string]screener.Criteria
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &presets))
	assert.Len(t, presets, 4)

	rec = doRequest(s, "GET", "/api/screener/presets/common", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(s, "GET", "/api/screener/presets/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScreenerSelectAppliesUniverse(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(s, "POST", "/api/screener/select", map[string]any{"preset": "common", "apply": true})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Preset     string               `json:"preset"`
		Candidates []screener.Candidate `json:"candidates"`
		Applied    bool                 `json:"applied"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Applied)
	require.Len(t, resp.Candidates, 1)
	assert.Equal(t, "000660", resp.Candidates[0].Code)

	status := doRequest(s, "GET", "/api/system/status", nil)
	var snapshot types.StatusSnapshot
	require.NoError(t, json.Unmarshal(status.Body.Bytes(), &snapshot))
	assert.Equal(t, []string{"000660"}, snapshot.Symbols)
}

func TestScreenerSelectUnknownPreset(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, "POST", "/api/screener/select", map[string]any{"preset": "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, "GET", "/healthz", nil)
	// Feed is disconnected before start, the checker reports degraded.
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
