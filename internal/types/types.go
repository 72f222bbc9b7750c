package types

import "time"

// Direction of a proposed or executed trade.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
)

// SignalStatus is the lifecycle state of a pending signal.
// pending is the only non-terminal state.
type SignalStatus string

const (
	StatusPending  SignalStatus = "pending"
	StatusApproved SignalStatus = "approved"
	StatusRejected SignalStatus = "rejected"
	StatusFailed   SignalStatus = "failed"
	StatusExpired  SignalStatus = "expired"
)

// Terminal reports whether the status can no longer change.
func (s SignalStatus) Terminal() bool {
	return s != StatusPending
}

// Tick is a single realtime execution report from the market-data feed.
type Tick struct {
	Symbol     string
	Price      float64
	Volume     float64
	ChangeRate float64 // vs previous close, fractional
}

// Position is an open holding for a symbol. At most one per symbol.
type Position struct {
	Symbol   string    `json:"symbol"`
	Quantity int       `json:"quantity"`
	BuyPrice float64   `json:"buy_price"`
	BuyTime  time.Time `json:"buy_time"`
}

// PendingSignal is a proposed trade awaiting human approval.
type PendingSignal struct {
	ID                string       `json:"id"`
	Symbol            string       `json:"symbol"`
	Direction         Direction    `json:"direction"`
	Price             float64      `json:"price"`
	SuggestedQuantity int          `json:"suggested_quantity"`
	Reason            string       `json:"reason"`
	Status            SignalStatus `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
	ExpiresAt         time.Time    `json:"expires_at"`
}

// TradeRecord describes a filled order.
type TradeRecord struct {
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
	PnL       *float64  `json:"pnl,omitempty"` // set on sells only
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusSnapshot is the presentation-layer view of the engine.
type StatusSnapshot struct {
	Running         bool     `json:"running"`
	Balance         float64  `json:"balance"`
	DailyPnL        float64  `json:"daily_pnl"`
	DailyTradeCount int      `json:"daily_trades"`
	Symbols         []string `json:"symbols"`
}

// Envelope types pushed over the websocket boundary.
const (
	EnvStatus         = "status"
	EnvPosition       = "position"
	EnvTrade          = "trade"
	EnvSignalPending  = "signal_pending"
	EnvSignalResolved = "signal_resolved"
	EnvSignalSnapshot = "signal_snapshot"
	EnvLog            = "log"
)

// LogEvent is the payload of a log envelope.
type LogEvent struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Symbol  string `json:"symbol,omitempty"`
}

// Envelope is the broadcast frame consumed by dashboard clients.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
