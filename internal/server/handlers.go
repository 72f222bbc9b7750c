package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"quant-trader/internal/engine"
	"quant-trader/internal/logger"
	"quant-trader/internal/risk"
	"quant-trader/internal/screener"
	"quant-trader/internal/signals"
	"quant-trader/internal/store"
	"quant-trader/internal/types"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.coord.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.Start(r.Context()); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.coord.Status())
}

type stopRequest struct {
	Liquidate bool `json:"liquidate"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means no liquidation
	}

	err := s.coord.Stop(r.Context(), req.Liquidate)
	switch {
	case errors.Is(err, engine.ErrNotRunning):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		// Stopped, but some liquidations failed; report them with the result.
		respondJSON(w, http.StatusOK, map[string]any{
			"status":             s.coord.Status(),
			"liquidation_errors": err.Error(),
		})
	default:
		respondJSON(w, http.StatusOK, map[string]any{"status": s.coord.Status()})
	}
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.coord.Positions())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	respondJSON(w, http.StatusOK, s.coord.Trades(limit))
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.coord.Registry().ListPending())
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sig, err := s.coord.Registry().Approve(r.Context(), id)
	switch {
	case errors.Is(err, signals.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, signals.ErrAlreadyResolved):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, signals.ErrExpired):
		respondError(w, http.StatusGone, err.Error())
	case errors.Is(err, engine.ErrRiskRejected):
		// The ledger moved between signal creation and approval.
		respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  err.Error(),
			"signal": sig,
		})
	case err != nil:
		// Executor or fill failure: the signal is terminally failed.
		respondJSON(w, http.StatusBadGateway, map[string]any{
			"error":  err.Error(),
			"signal": sig,
		})
	default:
		respondJSON(w, http.StatusOK, sig)
	}
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sig, err := s.coord.Registry().Reject(id)
	switch {
	case errors.Is(err, signals.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, signals.ErrAlreadyResolved):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, signals.ErrExpired):
		respondError(w, http.StatusGone, err.Error())
	default:
		respondJSON(w, http.StatusOK, sig)
	}
}

type manualOrderRequest struct {
	Direction string  `json:"direction"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
}

func (s *Server) handleManualOrder(w http.ResponseWriter, r *http.Request) {
	var req manualOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	direction := types.Direction(req.Direction)
	if direction != types.Buy && direction != types.Sell {
		respondError(w, http.StatusBadRequest, "direction must be buy or sell")
		return
	}
	if req.Symbol == "" || req.Price <= 0 {
		respondError(w, http.StatusBadRequest, "symbol and a positive price are required")
		return
	}

	rec, err := s.coord.ManualOrder(r.Context(), direction, req.Symbol, req.Price)
	switch {
	case errors.Is(err, engine.ErrRiskRejected), errors.Is(err, risk.ErrNoPosition):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		respondError(w, http.StatusBadGateway, err.Error())
	default:
		respondJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleRiskConfig(w http.ResponseWriter, r *http.Request) {
	var cfg store.RiskConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.coord.ApplyRiskConfig(cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStrategyConfig(w http.ResponseWriter, r *http.Request) {
	var cfg store.StrategyConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.coord.ApplyStrategyConfig(cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, screener.Presets())
}

func (s *Server) handlePreset(w http.ResponseWriter, r *http.Request) {
	preset, err := screener.Preset(mux.Vars(r)["name"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, preset)
}

type screenerSelectRequest struct {
	Preset string `json:"preset"`
	Apply  bool   `json:"apply"`
}

func (s *Server) handleScreenerSelect(w http.ResponseWriter, r *http.Request) {
	var req screenerSelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	criteria, err := screener.Preset(req.Preset)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	selected, err := s.selector.Select(r.Context(), criteria)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	applied := false
	if req.Apply && len(selected) > 0 {
		if err := s.coord.SetSymbols(screener.Codes(selected)); err != nil {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		applied = true
		logger.Info(r.Context(), "Trading universe replaced",
			"preset", criteria.Name,
			"symbols", screener.Codes(selected))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"preset":     criteria.Name,
		"candidates": selected,
		"applied":    applied,
	})
}
