package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Tick pipeline metrics
	ticksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_trader_ticks_total",
			Help: "Total number of market ticks processed",
		},
		[]string{"symbol"},
	)

	currentPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quant_trader_current_price",
			Help: "Last seen price per symbol",
		},
		[]string{"symbol"},
	)

	// Signal metrics
	signalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_trader_signals_total",
			Help: "Total number of pending signals created",
		},
		[]string{"symbol", "direction", "reason"},
	)

	signalResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_trader_signal_resolutions_total",
			Help: "Total number of signal resolutions by final status",
		},
		[]string{"status"},
	)

	// Trading metrics
	tradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_trader_trades_total",
			Help: "Total number of filled orders",
		},
		[]string{"symbol", "side"},
	)

	tradeAmount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "quant_trader_trade_amount",
			Help:    "Distribution of filled order amounts",
			Buckets: prometheus.ExponentialBuckets(10000, 4, 8),
		},
		[]string{"symbol"},
	)

	dailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "quant_trader_daily_pnl",
			Help: "Realized profit and loss since the daily reset",
		},
	)

	riskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_trader_risk_rejections_total",
			Help: "Total number of trades blocked by a risk rule",
		},
		[]string{"symbol"},
	)

	// Error metrics
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quant_trader_errors_total",
			Help: "Total number of errors",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(ticksTotal)
	prometheus.MustRegister(currentPrice)
	prometheus.MustRegister(signalsTotal)
	prometheus.MustRegister(signalResolutions)
	prometheus.MustRegister(tradesTotal)
	prometheus.MustRegister(tradeAmount)
	prometheus.MustRegister(dailyPnL)
	prometheus.MustRegister(riskRejections)
	prometheus.MustRegister(errorsTotal)
}

// Handler serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTick records a processed tick and the latest price
func RecordTick(symbol string, price float64) {
	ticksTotal.WithLabelValues(symbol).Inc()
	currentPrice.WithLabelValues(symbol).Set(price)
}

// RecordSignal records a created pending signal
func RecordSignal(symbol, direction, reason string) {
	signalsTotal.WithLabelValues(symbol, direction, reason).Inc()
}

// RecordSignalResolution records the final status of a signal
func RecordSignalResolution(status string) {
	signalResolutions.WithLabelValues(status).Inc()
}

// RecordTrade records a filled order
func RecordTrade(symbol, side string, amount float64) {
	tradesTotal.WithLabelValues(symbol, side).Inc()
	tradeAmount.WithLabelValues(symbol).Observe(amount)
}

// UpdateDailyPnL updates the realized pnl gauge
func UpdateDailyPnL(pnl float64) {
	dailyPnL.Set(pnl)
}

// RecordRiskRejection records a trade blocked by a risk rule
func RecordRiskRejection(symbol string) {
	riskRejections.WithLabelValues(symbol).Inc()
}

// RecordError records an error metric
func RecordError(errorType string) {
	errorsTotal.WithLabelValues(errorType).Inc()
}
