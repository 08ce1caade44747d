package broker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Order sides as reported by the broker
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// PriceInfo is a quote for a single symbol
type PriceInfo struct {
	Symbol       string          `json:"symbol"`
	SymbolName   string          `json:"symbol_name"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	PrevClose    decimal.Decimal `json:"prev_close"`
	ChangeRate   decimal.Decimal `json:"change_rate"`
}

// BalanceInfo is the account cash balance
type BalanceInfo struct {
	TotalDeposit    decimal.Decimal `json:"total_deposit"`
	AvailableAmount decimal.Decimal `json:"available_amount"`
}

// HoldingInfo is one externally reported holding. The broker is the source
// of truth for fills; local positions are reconciled against this.
type HoldingInfo struct {
	Symbol       string          `json:"symbol"`
	SymbolName   string          `json:"symbol_name"`
	Quantity     int64           `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	ProfitRate   decimal.Decimal `json:"profit_rate"`
}

// OrderResult is the broker's acknowledgement of a submitted or open order
type OrderResult struct {
	OrderID  string          `json:"order_id"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Status   string          `json:"status"`
}

// Error is a vendor-coded brokerage failure
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Broker is the brokerage contract the trading engine depends on. Swapping
// brokers means implementing this interface only.
type Broker interface {
	GetPrice(ctx context.Context, symbol string) (*PriceInfo, error)
	GetBalance(ctx context.Context) (*BalanceInfo, error)
	GetHoldings(ctx context.Context) ([]HoldingInfo, error)
	SubmitBuy(ctx context.Context, symbol string, quantity int64, price decimal.Decimal) (*OrderResult, error)
	SubmitSell(ctx context.Context, symbol string, quantity int64, price decimal.Decimal) (*OrderResult, error)
	Cancel(ctx context.Context, orderID, symbol string, quantity int64) (bool, error)
	GetPendingOrders(ctx context.Context) ([]OrderResult, error)
}
