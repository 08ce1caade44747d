package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position represents the live holding for a symbol in the current cycle.
// There is at most one row per symbol; it is reset in place, never deleted,
// when a cycle completes.
type Position struct {
	ID                int              `json:"id"`
	Symbol            string           `json:"symbol"`
	SymbolName        string           `json:"symbol_name"`
	Quantity          int64            `json:"quantity"`
	AvgPrice          *decimal.Decimal `json:"avg_price,omitempty"`
	SplitsUsed        int              `json:"splits_used"`
	CycleNumber       int              `json:"cycle_number"`
	CurrentInvestment decimal.Decimal  `json:"current_investment"`
	InitialInvestment decimal.Decimal  `json:"initial_investment"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TotalCost returns quantity * average price, or zero for an empty position
func (p *Position) TotalCost() decimal.Decimal {
	if p.AvgPrice == nil {
		return decimal.Zero
	}
	return decimal.NewFromInt(p.Quantity).Mul(*p.AvgPrice)
}

// UpdateAfterBuy applies a confirmed fill: the first fill sets the average
// price directly, later fills blend it quantity-weighted. Each confirmed
// fill consumes exactly one split regardless of the filled quantity.
func (p *Position) UpdateAfterBuy(buyQuantity int64, buyPrice decimal.Decimal) {
	if p.AvgPrice == nil {
		p.AvgPrice = &buyPrice
		p.Quantity = buyQuantity
	} else {
		totalCost := p.TotalCost().Add(decimal.NewFromInt(buyQuantity).Mul(buyPrice))
		p.Quantity += buyQuantity
		avg := totalCost.Div(decimal.NewFromInt(p.Quantity))
		p.AvgPrice = &avg
	}
	p.SplitsUsed++
}

// ResetForNewCycle rolls the position over: the sell proceeds become the
// next cycle's capital base.
func (p *Position) ResetForNewCycle(sellProceeds decimal.Decimal) {
	p.Quantity = 0
	p.AvgPrice = nil
	p.SplitsUsed = 0
	p.CycleNumber++
	p.CurrentInvestment = sellProceeds
}
