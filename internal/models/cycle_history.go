package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleHistory is the immutable record of one completed cycle
type CycleHistory struct {
	ID              int             `json:"id"`
	Symbol          string          `json:"symbol"`
	CycleNumber     int             `json:"cycle_number"`
	StartInvestment decimal.Decimal `json:"start_investment"`
	EndProceeds     decimal.Decimal `json:"end_proceeds"`
	Profit          decimal.Decimal `json:"profit"`
	ProfitRate      decimal.Decimal `json:"profit_rate"`
	TotalTrades     int             `json:"total_trades"`
	StartedAt       time.Time       `json:"started_at"`
	EndedAt         time.Time       `json:"ended_at"`
}

// NewCycleHistory derives the P&L summary for a closing cycle. ProfitRate is
// zero when the cycle started with no capital.
func NewCycleHistory(symbol string, cycleNumber int, startInvestment, endProceeds decimal.Decimal, totalTrades int, startedAt, endedAt time.Time) *CycleHistory {
	profit := endProceeds.Sub(startInvestment)
	profitRate := decimal.Zero
	if startInvestment.IsPositive() {
		profitRate = profit.Div(startInvestment)
	}

	return &CycleHistory{
		Symbol:          symbol,
		CycleNumber:     cycleNumber,
		StartInvestment: startInvestment,
		EndProceeds:     endProceeds,
		Profit:          profit,
		ProfitRate:      profitRate,
		TotalTrades:     totalTrades,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
	}
}
