package kis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quant-trader/internal/interfaces"
	"quant-trader/internal/logger"
	"quant-trader/internal/monitoring"
	"quant-trader/internal/types"
)

// trIDExecution is the KIS realtime execution-report stream.
const trIDExecution = "H0STCNT0"

// execFieldCount is the field stride of one H0STCNT0 record.
const execFieldCount = 46

const reconnectWait = 5 * time.Second

// Feed streams realtime execution ticks over the KIS websocket, reconnecting
// with a fixed backoff until Close is called.
type Feed struct {
	client *Client
	wsURL  string
	ticks  chan types.Tick

	mu      sync.Mutex
	symbols []string
	cancel  context.CancelFunc
	closed  bool
}

var _ interfaces.MarketDataFeed = (*Feed)(nil)

func NewFeed(client *Client, wsURL string) *Feed {
	return &Feed{
		client: client,
		wsURL:  wsURL,
		ticks:  make(chan types.Tick, 256),
	}
}

func (f *Feed) Ticks() <-chan types.Tick {
	return f.ticks
}

// Subscribe connects the websocket and registers every symbol, then keeps
// reading in the background until Close.
func (f *Feed) Subscribe(ctx context.Context, symbols []string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New("feed closed")
	}
	if f.cancel != nil {
		f.cancel()
	}
	f.symbols = append([]string(nil), symbols...)
	runCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.mu.Unlock()

	conn, err := f.connect(ctx, symbols)
	if err != nil {
		return err
	}

	go f.readLoop(runCtx, conn)
	return nil
}

// Close stops the read loop. The tick channel stays open; the engine stops
// consuming on its own context.
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

type subscribeFrame struct {
	Header struct {
		ApprovalKey string `json:"approval_key"`
		CustType    string `json:"custtype"`
		TrType      string `json:"tr_type"`
		ContentType string `json:"content-type"`
	} `json:"header"`
	Body struct {
		Input struct {
			TrID  string `json:"tr_id"`
			TrKey string `json:"tr_key"`
		} `json:"input"`
	} `json:"body"`
}

func (f *Feed) connect(ctx context.Context, symbols []string) (*websocket.Conn, error) {
	approvalKey, err := f.client.ApprovalKey(ctx)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return nil, err
	}

	for _, symbol := range symbols {
		var frame subscribeFrame
		frame.Header.ApprovalKey = approvalKey
		frame.Header.CustType = "P"
		frame.Header.TrType = "1" // register
		frame.Header.ContentType = "utf-8"
		frame.Body.Input.TrID = trIDExecution
		frame.Body.Input.TrKey = symbol
		if err := conn.WriteJSON(frame); err != nil {
			conn.Close()
			return nil, err
		}
	}

	logger.Info(ctx, "Feed connected", "url", f.wsURL, "symbols", symbols)
	return conn, nil
}

func (f *Feed) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "Feed read failed, reconnecting", "error", err, "wait", reconnectWait)
			monitoring.RecordError("feed_read")
			conn.Close()
			conn = f.reconnect(ctx)
			if conn == nil {
				return
			}
			continue
		}
		f.handleMessage(ctx, conn, msg)
	}
}

// reconnect re-dials until it succeeds or the context is cancelled.
func (f *Feed) reconnect(ctx context.Context) *websocket.Conn {
	f.mu.Lock()
	symbols := append([]string(nil), f.symbols...)
	f.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnectWait):
		}
		conn, err := f.connect(ctx, symbols)
		if err == nil {
			return conn
		}
		logger.Warn(ctx, "Feed reconnect failed", "error", err)
		monitoring.RecordError("feed_reconnect")
	}
}

func (f *Feed) handleMessage(ctx context.Context, conn *websocket.Conn, msg []byte) {
	// Realtime payloads are pipe delimited and start with the encryption
	// flag; everything else is a JSON control frame.
	if len(msg) > 0 && (msg[0] == '0' || msg[0] == '1') {
		f.handleRealtime(ctx, string(msg))
		return
	}

	var control struct {
		Header struct {
			TrID string `json:"tr_id"`
		} `json:"header"`
	}
	if err := json.Unmarshal(msg, &control); err != nil {
		logger.Debug(ctx, "Unparseable feed frame", "error", err)
		return
	}
	if control.Header.TrID == "PINGPONG" {
		_ = conn.WriteMessage(websocket.TextMessage, msg)
	}
}

// handleRealtime parses "0|H0STCNT0|<count>|<rec^...^rec>" frames.
func (f *Feed) handleRealtime(ctx context.Context, msg string) {
	parts := strings.SplitN(msg, "|", 4)
	if len(parts) < 4 || parts[1] != trIDExecution {
		return
	}
	count, err := strconv.Atoi(parts[2])
	if err != nil || count < 1 {
		count = 1
	}

	fields := strings.Split(parts[3], "^")
	for i := 0; i < count; i++ {
		base := i * execFieldCount
		if base+13 >= len(fields) {
			break
		}
		tick, ok := parseTick(fields[base:])
		if !ok {
			monitoring.RecordError("feed_parse")
			continue
		}
		select {
		case f.ticks <- tick:
		default:
			logger.Warn(ctx, "Tick buffer full, dropping", "symbol", tick.Symbol)
			monitoring.RecordError("tick_dropped")
		}
	}
}

// parseTick extracts symbol, price, change rate and volume from one
// execution record.
func parseTick(fields []string) (types.Tick, bool) {
	symbol := fields[0]
	price, err := strconv.ParseFloat(fields[2], 64)
	if err != nil || price <= 0 {
		return types.Tick{}, false
	}
	changePct, _ := strconv.ParseFloat(fields[5], 64)
	volume, _ := strconv.ParseFloat(fields[13], 64)
	return types.Tick{
		Symbol:     symbol,
		Price:      price,
		Volume:     volume,
		ChangeRate: changePct / 100,
	}, true
}
