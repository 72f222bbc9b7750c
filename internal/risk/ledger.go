package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"quant-trader/internal/store"
	"quant-trader/internal/types"
)

// ErrNoPosition is returned by a sell against a symbol with no open position.
var ErrNoPosition = errors.New("no open position")

// Ledger tracks the account, open positions and every risk gating rule.
// It is not safe for concurrent use; callers hold the engine lock.
type Ledger struct {
	cfg        store.RiskConfig
	balance    float64
	dailyPnL   float64
	dailyCount int
	positions  map[string]*types.Position
	lastPrices map[string]float64
	minChange  float64
}

func NewLedger(initialBalance float64, cfg store.RiskConfig, minChangeRatio float64) *Ledger {
	return &Ledger{
		cfg:        cfg,
		balance:    initialBalance,
		positions:  make(map[string]*types.Position),
		lastPrices: make(map[string]float64),
		minChange:  minChangeRatio,
	}
}

// CanTrade evaluates the gating rules in fixed order against the last
// recorded price. The order only determines which reason is reported when
// several rules would reject.
func (l *Ledger) CanTrade(symbol string, price float64, qty int) (bool, string) {
	last, ok := l.lastPrices[symbol]
	return l.CanTradeFrom(symbol, price, qty, last, ok)
}

// CanTradeFrom evaluates the gating rules with an explicit reference price
// for the minimum price-change rule. hasRef false skips that rule; the tick
// pipeline records the tick before evaluating, so the stored last price would
// compare the tick to itself.
func (l *Ledger) CanTradeFrom(symbol string, price float64, qty int, refPrice float64, hasRef bool) (bool, string) {
	if l.dailyCount >= l.cfg.MaxDailyTrades {
		return false, fmt.Sprintf("daily trade limit reached (%d)", l.cfg.MaxDailyTrades)
	}
	if l.dailyPnL <= -l.cfg.DailyLossLimit {
		return false, fmt.Sprintf("daily loss limit reached (%.0f)", l.cfg.DailyLossLimit)
	}
	amount := price * float64(qty)
	if amount > l.cfg.MaxSingleTradeAmount {
		return false, fmt.Sprintf("order amount %.0f exceeds single-trade cap %.0f", amount, l.cfg.MaxSingleTradeAmount)
	}
	if amount > l.balance*l.cfg.PositionSizeRatio {
		return false, fmt.Sprintf("order amount %.0f exceeds position size cap %.0f", amount, l.balance*l.cfg.PositionSizeRatio)
	}
	if _, ok := l.positions[symbol]; ok {
		return false, "position already open"
	}
	if hasRef && refPrice > 0 {
		if math.Abs(price-refPrice)/refPrice < l.minChange {
			return false, fmt.Sprintf("price change below %.2f%%", l.minChange*100)
		}
	}
	return true, "OK"
}

// CalculateQuantity sizes an order at the given price, clamped to at least 1.
func (l *Ledger) CalculateQuantity(price float64) int {
	if price <= 0 {
		return 1
	}
	budget := math.Min(l.cfg.MaxSingleTradeAmount, l.balance*l.cfg.PositionSizeRatio)
	qty := int(budget / price)
	if qty < 1 {
		qty = 1
	}
	return qty
}

// UpdatePosition applies a filled order. A buy opens the position and counts
// against the daily trade limit; a sell realizes pnl and closes it. The
// returned pnl is zero for buys.
func (l *Ledger) UpdatePosition(symbol string, price float64, qty int, direction types.Direction) (float64, error) {
	switch direction {
	case types.Buy:
		l.positions[symbol] = &types.Position{
			Symbol:   symbol,
			Quantity: qty,
			BuyPrice: price,
			BuyTime:  time.Now(),
		}
		l.dailyCount++
		l.lastPrices[symbol] = price
		return 0, nil
	case types.Sell:
		pos, ok := l.positions[symbol]
		if !ok {
			return 0, fmt.Errorf("sell %s: %w", symbol, ErrNoPosition)
		}
		pnl := (price - pos.BuyPrice) * float64(qty)
		l.dailyPnL += pnl
		delete(l.positions, symbol)
		delete(l.lastPrices, symbol)
		return pnl, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", direction)
	}
}

// UpdatePrice records the last seen price for a symbol.
func (l *Ledger) UpdatePrice(symbol string, price float64) {
	l.lastPrices[symbol] = price
}

// CheckStopLossTakeProfit reports whether the open position for symbol should
// be force-sold at the given price. Thresholds are boundary inclusive.
func (l *Ledger) CheckStopLossTakeProfit(symbol string, price float64) (bool, string) {
	pos, ok := l.positions[symbol]
	if !ok || pos.BuyPrice <= 0 {
		return false, ""
	}
	ratio := (price - pos.BuyPrice) / pos.BuyPrice
	if ratio <= -l.cfg.StopLossRatio {
		return true, "stop_loss"
	}
	if ratio >= l.cfg.TakeProfitRatio {
		return true, "take_profit"
	}
	return false, ""
}

// LastPrice returns the last seen price for symbol, if any.
func (l *Ledger) LastPrice(symbol string) (float64, bool) {
	price, ok := l.lastPrices[symbol]
	return price, ok
}

// Position returns the open position for symbol, if any.
func (l *Ledger) Position(symbol string) (types.Position, bool) {
	pos, ok := l.positions[symbol]
	if !ok {
		return types.Position{}, false
	}
	return *pos, true
}

// Positions returns a copy of every open position.
func (l *Ledger) Positions() []types.Position {
	out := make([]types.Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	return out
}

func (l *Ledger) Balance() float64     { return l.balance }
func (l *Ledger) DailyPnL() float64    { return l.dailyPnL }
func (l *Ledger) DailyTradeCount() int { return l.dailyCount }

// ResetDaily zeroes the daily counters at the configured rollover time.
func (l *Ledger) ResetDaily() {
	l.dailyPnL = 0
	l.dailyCount = 0
}

// ApplyRiskConfig hot-swaps the risk limits after validation. The current
// counters and positions are untouched.
func (l *Ledger) ApplyRiskConfig(cfg store.RiskConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	l.cfg = cfg
	return nil
}

// SetMinChangeRatio updates the minimum price-change gate, applied together
// with a strategy reload.
func (l *Ledger) SetMinChangeRatio(ratio float64) {
	l.minChange = ratio
}

// Config returns the active risk limits.
func (l *Ledger) Config() store.RiskConfig {
	return l.cfg
}
