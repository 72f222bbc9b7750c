package execobs

import (
	"context"

	"quant-trader/internal/interfaces"
	"quant-trader/internal/logger"
	"quant-trader/internal/trace"
	"quant-trader/internal/types"
)

// observableExecutor wraps an OrderExecutor with logging and tracing.
type observableExecutor struct {
	executor interfaces.OrderExecutor
}

var _ interfaces.OrderExecutor = (*observableExecutor)(nil)

// Wrap wraps an executor with observability middleware.
func Wrap(executor interfaces.OrderExecutor) interfaces.OrderExecutor {
	return &observableExecutor{
		executor: executor,
	}
}

func (oe *observableExecutor) Execute(ctx context.Context, direction types.Direction, symbol string, price float64) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "executor.Execute")
	defer span.End()

	logger.InfoSkip(ctx, 1, "Submitting order",
		"symbol", symbol,
		"side", string(direction),
		"price", price,
	)

	accepted, err := oe.executor.Execute(ctx, direction, symbol, price)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Order submission failed", err,
			"symbol", symbol,
			"side", string(direction),
		)
		return false, err
	}

	logger.InfoSkip(ctx, 1, "Order submission finished",
		"symbol", symbol,
		"side", string(direction),
		"accepted", accepted,
	)
	return accepted, nil
}
