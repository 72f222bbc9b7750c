package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quant-trader/internal/interfaces"
	"quant-trader/internal/logger"
	"quant-trader/internal/monitoring"
	"quant-trader/internal/risk"
	"quant-trader/internal/signals"
	"quant-trader/internal/store"
	"quant-trader/internal/strategy"
	"quant-trader/internal/tradelog"
	"quant-trader/internal/types"
)

const tradeHistorySize = 100

var (
	// ErrRiskRejected wraps the reason a trading rule blocked an action.
	ErrRiskRejected = errors.New("trade blocked by risk rules")

	ErrAlreadyRunning = errors.New("engine already running")
	ErrNotRunning     = errors.New("engine not running")
)

// Broadcaster fans envelopes out to dashboard clients. Implementations must
// not block the caller.
type Broadcaster interface {
	Broadcast(types.Envelope)
}

// PositionStatus is an open position annotated with the latest market price.
type PositionStatus struct {
	types.Position
	CurrentPrice  float64 `json:"current_price"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// Coordinator consumes the market-data feed and drives the ledger, the
// strategy and the signal registry. One mutex guards that composite; the
// registry carries its own. The order executor is only ever invoked outside
// the tick path.
type Coordinator struct {
	cfg      *store.Config
	feed     interfaces.MarketDataFeed
	executor interfaces.OrderExecutor
	bus      Broadcaster
	health   *monitoring.HealthChecker

	mu       sync.Mutex
	ledger   *risk.Ledger
	strat    *strategy.Engine
	registry *signals.Registry
	trades   []types.TradeRecord
	symbols  []string
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(cfg *store.Config, feed interfaces.MarketDataFeed, executor interfaces.OrderExecutor, bus Broadcaster, health *monitoring.HealthChecker) (*Coordinator, error) {
	c := &Coordinator{
		cfg:      cfg,
		feed:     feed,
		executor: executor,
		bus:      bus,
		health:   health,
		symbols:  append([]string(nil), cfg.Symbols...),
	}

	c.ledger = risk.NewLedger(cfg.Account.InitialBalance, cfg.Risk.RiskConfig, cfg.Strategy.MinChangeRatio)

	strat, err := strategy.NewEngine(cfg.Strategy.ShortPeriod, cfg.Strategy.LongPeriod, c.ledger)
	if err != nil {
		return nil, err
	}
	c.strat = strat

	c.registry = signals.NewRegistry(c.ledger, executor, c.gateFill, c.applyFill, c.notifySignal)
	return c, nil
}

// gateFill re-checks the trading rules for a buy just before approval sends
// the order. Sells are never gated: closing an open position is always
// allowed. The price-change rule is skipped here because the signal's own
// tick is already the recorded last price.
func (c *Coordinator) gateFill(ctx context.Context, sig types.PendingSignal) error {
	if sig.Direction != types.Buy {
		return nil
	}
	c.mu.Lock()
	qty := sig.SuggestedQuantity
	if qty <= 0 {
		qty = c.ledger.CalculateQuantity(sig.Price)
	}
	ok, reason := c.ledger.CanTradeFrom(sig.Symbol, sig.Price, qty, 0, false)
	c.mu.Unlock()
	if !ok {
		monitoring.RecordRiskRejection(sig.Symbol)
		logger.Risk(ctx, sig.Symbol, "fill_rejected", "signal_id", sig.ID, "reason", reason)
		return fmt.Errorf("%w: %s", ErrRiskRejected, reason)
	}
	return nil
}

// Registry exposes the pending-signal state machine to the HTTP layer.
func (c *Coordinator) Registry() *signals.Registry {
	return c.registry
}

// Start subscribes the feed and launches the ingestion loop.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	symbols := append([]string(nil), c.symbols...)
	c.running = true
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	if err := c.feed.Subscribe(ctx, symbols); err != nil {
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		cancel()
		close(done)
		return fmt.Errorf("subscribe feed: %w", err)
	}
	c.health.ClearErrors()
	c.health.SetConnected(true)

	go c.run(runCtx, done)
	if resetAt := c.cfg.Risk.DailyReset; resetAt != "" {
		go c.resetLoop(runCtx, resetAt)
	}

	logger.Info(ctx, "Engine started", "symbols", symbols)
	c.broadcastLog("info", "engine started", "")
	c.broadcastStatus()
	return nil
}

// Stop halts the ingestion loop cooperatively, clears pending signals and
// optionally liquidates every open position. Per-symbol liquidation failures
// are collected, never aborting the remaining sells.
func (c *Coordinator) Stop(ctx context.Context, liquidate bool) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return ErrNotRunning
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
	}
	c.health.SetConnected(false)

	c.registry.Clear()
	c.bus.Broadcast(types.Envelope{Type: types.EnvSignalSnapshot, Data: []types.PendingSignal{}})

	var err error
	if liquidate {
		if err = c.liquidateAll(ctx); err != nil {
			c.health.RecordError(err.Error())
		}
	}

	logger.Info(ctx, "Engine stopped", "liquidated", liquidate)
	c.broadcastLog("info", "engine stopped", "")
	c.broadcastStatus()
	return err
}

// Running reports whether the ingestion loop is live.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticks := c.feed.Ticks()
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				logger.Warn(ctx, "Feed channel closed")
				c.health.SetConnected(false)
				c.health.RecordError("feed channel closed")
				return
			}
			c.handleTick(ctx, tick)
		}
	}
}

// handleTick processes one tick under the engine lock. Any failure is logged
// and isolated to this tick.
func (c *Coordinator) handleTick(ctx context.Context, tick types.Tick) {
	if tick.Symbol == "" || tick.Price <= 0 {
		logger.Debug(ctx, "Skipping malformed tick", "symbol", tick.Symbol, "price", tick.Price)
		monitoring.RecordError("malformed_tick")
		return
	}
	c.health.RecordTick()
	monitoring.RecordTick(tick.Symbol, tick.Price)

	c.mu.Lock()
	prevPrice, hadPrev := c.ledger.LastPrice(tick.Symbol)
	c.ledger.UpdatePrice(tick.Symbol, tick.Price)
	c.strat.UpdatePrice(tick.Symbol, tick.Price)

	// Stop-loss / take-profit outranks crossover evaluation.
	if fire, reason := c.ledger.CheckStopLossTakeProfit(tick.Symbol, tick.Price); fire {
		sig := c.registry.Create(tick.Symbol, types.Sell, tick.Price, reason)
		c.mu.Unlock()
		logger.Risk(ctx, tick.Symbol, reason, "signal_id", sig.ID, "price", tick.Price)
		c.broadcastLog("warn", reason+" triggered", tick.Symbol)
		return
	}

	switch c.strat.Evaluate(tick.Symbol, tick.Price) {
	case strategy.BuySignal:
		// The trade gate suppresses rejected buys at the source; the
		// price-change rule compares against the previous tick.
		qty := c.ledger.CalculateQuantity(tick.Price)
		if ok, reason := c.ledger.CanTradeFrom(tick.Symbol, tick.Price, qty, prevPrice, hadPrev); !ok {
			c.mu.Unlock()
			monitoring.RecordRiskRejection(tick.Symbol)
			logger.Risk(ctx, tick.Symbol, "signal_suppressed", "reason", reason, "price", tick.Price)
			return
		}
		sig := c.registry.Create(tick.Symbol, types.Buy, tick.Price, "golden_cross")
		c.mu.Unlock()
		logger.Signal(ctx, sig.Symbol, string(sig.Direction), sig.Reason, "signal_id", sig.ID, "price", sig.Price, "qty", sig.SuggestedQuantity)
	case strategy.SellSignal:
		sig := c.registry.Create(tick.Symbol, types.Sell, tick.Price, "death_cross")
		c.mu.Unlock()
		logger.Signal(ctx, sig.Symbol, string(sig.Direction), sig.Reason, "signal_id", sig.ID, "price", sig.Price, "qty", sig.SuggestedQuantity)
	default:
		c.mu.Unlock()
	}
}

// notifySignal forwards registry events to the hub, the metrics and the
// signal log.
func (c *Coordinator) notifySignal(env types.Envelope) {
	c.bus.Broadcast(env)
	sig, ok := env.Data.(types.PendingSignal)
	if !ok {
		return
	}
	switch env.Type {
	case types.EnvSignalPending:
		monitoring.RecordSignal(sig.Symbol, string(sig.Direction), sig.Reason)
	case types.EnvSignalResolved:
		monitoring.RecordSignalResolution(string(sig.Status))
	}
	if err := tradelog.AppendSignal(tradelog.SignalEntry{
		ID:        sig.ID,
		Symbol:    sig.Symbol,
		Direction: string(sig.Direction),
		Reason:    sig.Reason,
		Status:    string(sig.Status),
		Price:     sig.Price,
		Qty:       sig.SuggestedQuantity,
	}); err != nil {
		logger.Warn(context.Background(), "Signal log append failed", "error", err)
	}
}

// applyFill commits an executor-accepted order to the ledger. Runs outside
// the registry mutex, in the approving request's context.
func (c *Coordinator) applyFill(ctx context.Context, sig types.PendingSignal) (types.TradeRecord, error) {
	qty := sig.SuggestedQuantity
	if qty <= 0 && sig.Direction == types.Sell {
		c.mu.Lock()
		if pos, ok := c.ledger.Position(sig.Symbol); ok {
			qty = pos.Quantity
		}
		c.mu.Unlock()
	}
	return c.applyOrder(ctx, sig.Direction, sig.Symbol, sig.Price, qty, sig.Reason)
}

// applyOrder updates the ledger for a filled order and emits every
// notification the fill produces.
func (c *Coordinator) applyOrder(ctx context.Context, direction types.Direction, symbol string, price float64, qty int, reason string) (types.TradeRecord, error) {
	c.mu.Lock()
	pnl, err := c.ledger.UpdatePosition(symbol, price, qty, direction)
	if err != nil {
		c.mu.Unlock()
		return types.TradeRecord{}, err
	}

	rec := types.TradeRecord{
		Symbol:    symbol,
		Direction: direction,
		Quantity:  qty,
		Price:     price,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	if direction == types.Sell {
		rec.PnL = ptr(pnl)
	}
	c.trades = append(c.trades, rec)
	if len(c.trades) > tradeHistorySize {
		c.trades = c.trades[len(c.trades)-tradeHistorySize:]
	}
	dailyPnL := c.ledger.DailyPnL()
	c.mu.Unlock()

	logger.Trade(ctx, symbol, string(direction), qty, price, "reason", reason, "pnl", pnl)
	monitoring.RecordTrade(symbol, string(direction), price*float64(qty))
	monitoring.UpdateDailyPnL(dailyPnL)
	if err := tradelog.Append(tradelog.Entry{Symbol: symbol, Side: string(direction), Qty: qty, Price: price, PnL: rec.PnL, Reason: reason}); err != nil {
		logger.Warn(ctx, "Trade log append failed", "error", err)
	}

	c.bus.Broadcast(types.Envelope{Type: types.EnvTrade, Data: rec})
	c.bus.Broadcast(types.Envelope{Type: types.EnvPosition, Data: c.Positions()})
	c.broadcastStatus()
	return rec, nil
}

// ManualOrder executes a risk-gated order outside the signal workflow.
func (c *Coordinator) ManualOrder(ctx context.Context, direction types.Direction, symbol string, price float64) (types.TradeRecord, error) {
	c.mu.Lock()
	var qty int
	switch direction {
	case types.Buy:
		qty = c.ledger.CalculateQuantity(price)
		if ok, reason := c.ledger.CanTrade(symbol, price, qty); !ok {
			c.mu.Unlock()
			monitoring.RecordRiskRejection(symbol)
			return types.TradeRecord{}, fmt.Errorf("%w: %s", ErrRiskRejected, reason)
		}
	case types.Sell:
		pos, ok := c.ledger.Position(symbol)
		if !ok {
			c.mu.Unlock()
			return types.TradeRecord{}, fmt.Errorf("manual sell %s: %w", symbol, risk.ErrNoPosition)
		}
		qty = pos.Quantity
	default:
		c.mu.Unlock()
		return types.TradeRecord{}, fmt.Errorf("unknown direction %q", direction)
	}
	c.mu.Unlock()

	accepted, err := c.executor.Execute(ctx, direction, symbol, price)
	if err != nil {
		monitoring.RecordError("manual_order")
		return types.TradeRecord{}, fmt.Errorf("manual order %s %s: %w", direction, symbol, err)
	}
	if !accepted {
		monitoring.RecordError("manual_order")
		return types.TradeRecord{}, fmt.Errorf("manual order %s %s rejected by broker", direction, symbol)
	}
	return c.applyOrder(ctx, direction, symbol, price, qty, "manual")
}

// liquidateAll market-sells every open position, collecting failures.
func (c *Coordinator) liquidateAll(ctx context.Context) error {
	c.mu.Lock()
	positions := c.ledger.Positions()
	prices := make(map[string]float64, len(positions))
	for _, pos := range positions {
		if last, ok := c.ledger.LastPrice(pos.Symbol); ok {
			prices[pos.Symbol] = last
		} else {
			prices[pos.Symbol] = pos.BuyPrice
		}
	}
	c.mu.Unlock()

	var errs []error
	for _, pos := range positions {
		price := prices[pos.Symbol]
		accepted, err := c.executor.Execute(ctx, types.Sell, pos.Symbol, price)
		if err != nil {
			errs = append(errs, fmt.Errorf("liquidate %s: %w", pos.Symbol, err))
			continue
		}
		if !accepted {
			errs = append(errs, fmt.Errorf("liquidate %s: rejected by broker", pos.Symbol))
			continue
		}
		if _, err := c.applyOrder(ctx, types.Sell, pos.Symbol, price, pos.Quantity, "liquidation"); err != nil {
			errs = append(errs, fmt.Errorf("liquidate %s: %w", pos.Symbol, err))
		}
	}
	return errors.Join(errs...)
}

// resetLoop fires the daily counter reset at the configured KST wall-clock
// time until the run context is cancelled.
func (c *Coordinator) resetLoop(ctx context.Context, at string) {
	for {
		next, err := nextReset(time.Now(), at)
		if err != nil {
			logger.Warn(ctx, "Daily reset disabled", "error", err)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.mu.Lock()
			c.ledger.ResetDaily()
			c.mu.Unlock()
			monitoring.UpdateDailyPnL(0)
			logger.Info(ctx, "Daily counters reset", "at", at)
			c.broadcastStatus()
		}
	}
}

// Status snapshots the engine for the presentation layer.
func (c *Coordinator) Status() types.StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return types.StatusSnapshot{
		Running:         c.running,
		Balance:         c.ledger.Balance(),
		DailyPnL:        c.ledger.DailyPnL(),
		DailyTradeCount: c.ledger.DailyTradeCount(),
		Symbols:         append([]string(nil), c.symbols...),
	}
}

// Positions lists open positions annotated with the latest market price.
func (c *Coordinator) Positions() []PositionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	positions := c.ledger.Positions()
	out := make([]PositionStatus, 0, len(positions))
	for _, pos := range positions {
		price, ok := c.ledger.LastPrice(pos.Symbol)
		if !ok {
			price = pos.BuyPrice
		}
		out = append(out, PositionStatus{
			Position:      pos,
			CurrentPrice:  price,
			UnrealizedPnL: (price - pos.BuyPrice) * float64(pos.Quantity),
		})
	}
	return out
}

// Trades returns the most recent trade records, newest first.
func (c *Coordinator) Trades(limit int) []types.TradeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.trades)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.TradeRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, c.trades[i])
	}
	return out
}

// ApplyRiskConfig hot-reloads the risk limits.
func (c *Coordinator) ApplyRiskConfig(cfg store.RiskConfig) error {
	c.mu.Lock()
	err := c.ledger.ApplyRiskConfig(cfg)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	logger.Info(context.Background(), "Risk config applied",
		"max_single_trade", cfg.MaxSingleTradeAmount,
		"max_daily_trades", cfg.MaxDailyTrades)
	c.broadcastStatus()
	return nil
}

// ApplyStrategyConfig hot-reloads the MA periods and the price-change gate.
func (c *Coordinator) ApplyStrategyConfig(cfg store.StrategyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	err := c.strat.Reconfigure(cfg.ShortPeriod, cfg.LongPeriod)
	if err == nil && cfg.MinChangeRatio > 0 {
		c.ledger.SetMinChangeRatio(cfg.MinChangeRatio)
	}
	c.mu.Unlock()
	if err != nil {
		return err
	}
	logger.Info(context.Background(), "Strategy config applied",
		"short_period", cfg.ShortPeriod,
		"long_period", cfg.LongPeriod)
	return nil
}

// SetSymbols replaces the trading universe. Only allowed while stopped.
func (c *Coordinator) SetSymbols(symbols []string) error {
	if len(symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return errors.New("cannot replace symbols while running")
	}
	c.symbols = append([]string(nil), symbols...)
	return nil
}

// SuggestQuantity sizes an executor order: ledger sizing for buys, the open
// position quantity for sells.
func (c *Coordinator) SuggestQuantity(direction types.Direction, symbol string, price float64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if direction == types.Sell {
		if pos, ok := c.ledger.Position(symbol); ok {
			return pos.Quantity
		}
		return 1
	}
	return c.ledger.CalculateQuantity(price)
}

func (c *Coordinator) broadcastStatus() {
	c.bus.Broadcast(types.Envelope{Type: types.EnvStatus, Data: c.Status()})
}

func (c *Coordinator) broadcastLog(level, message, symbol string) {
	c.bus.Broadcast(types.Envelope{Type: types.EnvLog, Data: types.LogEvent{
		Level:   level,
		Message: message,
		Symbol:  symbol,
	}})
}
