package interfaces

import (
	"context"

	"quant-trader/internal/types"
)

// MarketDataFeed delivers realtime execution ticks for subscribed symbols.
type MarketDataFeed interface {
	Subscribe(ctx context.Context, symbols []string) error
	Ticks() <-chan types.Tick
	Close() error
}
