package interfaces

import (
	"context"

	"quant-trader/internal/types"
)

// OrderExecutor submits a market order to the broker. The boolean reports
// whether the order was accepted; any transport error counts as a failure.
type OrderExecutor interface {
	Execute(ctx context.Context, direction types.Direction, symbol string, price float64) (bool, error)
}
