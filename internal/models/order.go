package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order side constants
const (
	OrderSideBuy  = "BUY"
	OrderSideSell = "SELL"
)

// Order status constants
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPartial   = "PARTIAL"
	OrderStatusFilled    = "FILLED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusFailed    = "FAILED"
)

// Order is the append-only record of a submitted order. TrancheIndex is 0
// for sell and emergency orders, 1..N for the Nth split buy of a cycle.
type Order struct {
	ID             int              `json:"id"`
	Symbol         string           `json:"symbol"`
	Side           string           `json:"side"`
	Price          decimal.Decimal  `json:"price"`
	Quantity       int64            `json:"quantity"`
	FilledQuantity int64            `json:"filled_quantity"`
	FilledPrice    *decimal.Decimal `json:"filled_price,omitempty"`
	Status         string           `json:"status"`
	CycleNumber    int              `json:"cycle_number"`
	TrancheIndex   int              `json:"tranche_index"`
	BrokerOrderID  string           `json:"broker_order_id,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	FilledAt       *time.Time       `json:"filled_at,omitempty"`
}

// MarkFilled records broker-confirmed fill data and derives the status
func (o *Order) MarkFilled(filledQuantity int64, filledPrice decimal.Decimal, at time.Time) {
	o.FilledQuantity = filledQuantity
	o.FilledPrice = &filledPrice
	o.FilledAt = &at

	switch {
	case filledQuantity >= o.Quantity:
		o.Status = OrderStatusFilled
	case filledQuantity > 0:
		o.Status = OrderStatusPartial
	}
}
