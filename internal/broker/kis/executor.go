package kis

import (
	"context"
	"fmt"
	"strconv"

	"quant-trader/internal/api"
	"quant-trader/internal/interfaces"
	"quant-trader/internal/types"
)

// KIS transaction ids for domestic cash orders.
const (
	trIDCashBuy  = "TTTC0802U"
	trIDCashSell = "TTTC0801U"

	ordDvsnMarket = "01"
)

// SizerFunc decides the order quantity for an executor call. The executor
// contract itself carries no quantity.
type SizerFunc func(direction types.Direction, symbol string, price float64) int

// Executor places market cash orders against the KIS open API.
type Executor struct {
	client      *Client
	accountNo   string
	productCode string
	sizer       SizerFunc
}

var _ interfaces.OrderExecutor = (*Executor)(nil)

func NewExecutor(client *Client, accountNo, productCode string) *Executor {
	return &Executor{
		client:      client,
		accountNo:   accountNo,
		productCode: productCode,
		sizer:       func(types.Direction, string, float64) int { return 1 },
	}
}

// SetSizer installs the quantity callback. Wired after construction because
// sizing depends on the ledger, which is built later.
func (e *Executor) SetSizer(sizer SizerFunc) {
	if sizer != nil {
		e.sizer = sizer
	}
}

type orderResponse struct {
	RtCd   string `json:"rt_cd"`
	MsgCd  string `json:"msg_cd"`
	Msg    string `json:"msg1"`
	Output struct {
		OrderNo string `json:"ODNO"`
	} `json:"output"`
}

// Execute submits a market order. Any transport error counts as failure and
// is never retried here.
func (e *Executor) Execute(ctx context.Context, direction types.Direction, symbol string, price float64) (bool, error) {
	token, err := e.client.AccessToken(ctx)
	if err != nil {
		return false, err
	}

	trID := trIDCashBuy
	if direction == types.Sell {
		trID = trIDCashSell
	}
	qty := e.sizer(direction, symbol, price)
	if qty < 1 {
		qty = 1
	}

	req := api.NewRequest("POST", "/uapi/domestic-stock/v1/trading/order-cash").
		WithContext(ctx).
		WithBody(map[string]string{
			"CANO":         e.accountNo,
			"ACNT_PRDT_CD": e.productCode,
			"PDNO":         symbol,
			"ORD_DVSN":     ordDvsnMarket,
			"ORD_QTY":      strconv.Itoa(qty),
			"ORD_UNPR":     "0", // market orders carry no price
		}).
		WithHeader("authorization", "Bearer "+token).
		WithHeader("appkey", e.client.creds.AppKey).
		WithHeader("appsecret", e.client.creds.AppSecret).
		WithHeader("tr_id", trID)

	resp, err := e.client.http.Do(req)
	if err != nil {
		return false, err
	}

	var order orderResponse
	if err := resp.ParseJSON(&order); err != nil {
		return false, err
	}
	if order.RtCd != "0" {
		return false, fmt.Errorf("order rejected: %s %s", order.MsgCd, order.Msg)
	}
	return true, nil
}
