// Package sim provides an offline market-data feed and a paper executor for
// DRY_RUN mode.
package sim

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quant-trader/internal/interfaces"
	"quant-trader/internal/logger"
	"quant-trader/internal/types"
)

// Feed emits random-walk ticks for the subscribed symbols at a fixed
// interval.
type Feed struct {
	interval  time.Duration
	basePrice float64
	ticks     chan types.Tick

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

var _ interfaces.MarketDataFeed = (*Feed)(nil)

func NewFeed(interval time.Duration, basePrice float64) *Feed {
	if interval <= 0 {
		interval = time.Second
	}
	if basePrice <= 0 {
		basePrice = 70000
	}
	return &Feed{
		interval:  interval,
		basePrice: basePrice,
		ticks:     make(chan types.Tick, 256),
	}
}

func (f *Feed) Ticks() <-chan types.Tick {
	return f.ticks
}

func (f *Feed) Subscribe(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return context.Canceled
	}
	if f.cancel != nil {
		f.cancel()
	}
	runCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go f.generate(runCtx, symbols)
	return nil
}

func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	return nil
}

func (f *Feed) generate(ctx context.Context, symbols []string) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	prices := make(map[string]float64, len(symbols))
	opens := make(map[string]float64, len(symbols))
	for _, s := range symbols {
		p := f.basePrice * (0.5 + rng.Float64())
		prices[s] = p
		opens[s] = p
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range symbols {
				// ±0.5% random walk per step
				step := 1 + (rng.Float64()-0.5)/100
				prices[s] *= step
				tick := types.Tick{
					Symbol:     s,
					Price:      prices[s],
					Volume:     float64(rng.Intn(10000)),
					ChangeRate: prices[s]/opens[s] - 1,
				}
				select {
				case f.ticks <- tick:
				default:
				}
			}
		}
	}
}

// Executor accepts every order without touching a broker.
type Executor struct{}

var _ interfaces.OrderExecutor = (*Executor)(nil)

func NewExecutor() *Executor {
	return &Executor{}
}

func (e *Executor) Execute(ctx context.Context, direction types.Direction, symbol string, price float64) (bool, error) {
	logger.Info(ctx, "Paper order filled", "symbol", symbol, "side", string(direction), "price", price)
	return true, nil
}
