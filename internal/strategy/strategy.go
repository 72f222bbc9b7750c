package strategy

import (
	"fmt"

	"quant-trader/internal/types"
)

// Signal is the outcome of a crossover evaluation.
type Signal int

const (
	None Signal = iota
	BuySignal
	SellSignal
)

func (s Signal) Direction() types.Direction {
	if s == SellSignal {
		return types.Sell
	}
	return types.Buy
}

// PositionReader is the slice of the risk ledger the strategy consults to
// avoid duplicate buys.
type PositionReader interface {
	Position(symbol string) (types.Position, bool)
}

// Engine derives moving-average crossover signals from bounded per-symbol
// price history. Not safe for concurrent use; callers hold the engine lock.
type Engine struct {
	shortPeriod int
	longPeriod  int
	history     map[string][]float64
	positions   PositionReader
}

func NewEngine(shortPeriod, longPeriod int, positions PositionReader) (*Engine, error) {
	e := &Engine{
		history:   make(map[string][]float64),
		positions: positions,
	}
	if err := e.Reconfigure(shortPeriod, longPeriod); err != nil {
		return nil, err
	}
	return e, nil
}

// UpdatePrice appends to the symbol history, keeping the most recent
// 3×longPeriod entries.
func (e *Engine) UpdatePrice(symbol string, price float64) {
	h := append(e.history[symbol], price)
	if max := 3 * e.longPeriod; len(h) > max {
		h = h[len(h)-max:]
	}
	e.history[symbol] = h
}

// MovingAverage returns the arithmetic mean of the last period prices, or
// false when the history is too short.
func (e *Engine) MovingAverage(symbol string, period int) (float64, bool) {
	h := e.history[symbol]
	if period <= 0 || len(h) < period {
		return 0, false
	}
	var sum float64
	for _, p := range h[len(h)-period:] {
		sum += p
	}
	return sum / float64(period), true
}

// Evaluate derives a signal for the symbol at the current price. A buy needs
// the golden cross with the price above the short MA and no open position; a
// sell needs the death cross with an open position.
func (e *Engine) Evaluate(symbol string, price float64) Signal {
	if len(e.history[symbol]) < e.longPeriod {
		return None
	}
	shortMA, ok := e.MovingAverage(symbol, e.shortPeriod)
	if !ok {
		return None
	}
	longMA, ok := e.MovingAverage(symbol, e.longPeriod)
	if !ok {
		return None
	}

	_, hasPosition := e.positions.Position(symbol)
	if shortMA > longMA && price > shortMA && !hasPosition {
		return BuySignal
	}
	if shortMA < longMA && hasPosition {
		return SellSignal
	}
	return None
}

// Reconfigure swaps the MA periods after validation. Existing history is kept.
func (e *Engine) Reconfigure(shortPeriod, longPeriod int) error {
	if shortPeriod < 2 {
		return fmt.Errorf("short period must be >= 2, got %d", shortPeriod)
	}
	if longPeriod < 3 {
		return fmt.Errorf("long period must be >= 3, got %d", longPeriod)
	}
	if shortPeriod >= longPeriod {
		return fmt.Errorf("short period (%d) must be less than long period (%d)", shortPeriod, longPeriod)
	}
	e.shortPeriod = shortPeriod
	e.longPeriod = longPeriod
	return nil
}

// Periods returns the active short and long MA periods.
func (e *Engine) Periods() (short, long int) {
	return e.shortPeriod, e.longPeriod
}

// HistoryLen reports the current history depth for a symbol.
func (e *Engine) HistoryLen(symbol string) int {
	return len(e.history[symbol])
}
