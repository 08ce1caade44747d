package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// EmergencyMode controls what happens when every split is consumed without
// reaching the profit target
type EmergencyMode string

const (
	// EmergencyQuarter liquidates a quarter of the position and keeps going
	EmergencyQuarter EmergencyMode = "quarter"
	// EmergencyWait holds the full position until the target is reached
	EmergencyWait EmergencyMode = "wait"
)

// BuyOrder is a computed buy decision. HalfAmount marks the premium entry
// made while the price is at or above the average cost.
type BuyOrder struct {
	Price      decimal.Decimal
	Quantity   int64
	HalfAmount bool
}

// SellOrder is a computed sell decision. A zero price means market order.
type SellOrder struct {
	Price     decimal.Decimal
	Quantity  int64
	Emergency bool
}

// InfiniteBuy implements the infinite-buying strategy: a fixed budget split
// into NumSplits tranches, one tranche bought per trading day, the whole
// position sold at AvgPrice * ProfitTarget. It holds no mutable state; all
// decisions are pure functions of the inputs.
type InfiniteBuy struct {
	TotalInvestment decimal.Decimal
	NumSplits       int
	ProfitTarget    decimal.Decimal
	EmergencyMode   EmergencyMode
}

// New builds a strategy instance for one cycle's capital base
func New(totalInvestment decimal.Decimal, numSplits int, profitTarget decimal.Decimal, mode EmergencyMode) InfiniteBuy {
	return InfiniteBuy{
		TotalInvestment: totalInvestment,
		NumSplits:       numSplits,
		ProfitTarget:    profitTarget,
		EmergencyMode:   mode,
	}
}

// InvestmentPerSplit returns the budget for a single tranche
func (s InfiniteBuy) InvestmentPerSplit() decimal.Decimal {
	return s.TotalInvestment.Div(decimal.NewFromInt(int64(s.NumSplits)))
}

// DecideBuy computes today's buy, or nil when no buy should happen.
// Below the average cost (or on the cycle's first buy) it spends a full
// tranche at the current price. At or above the average cost it spends half
// a tranche at a premium limit of currentPrice * ProfitTarget, accumulating
// more slowly while the position is already in profit territory.
func (s InfiniteBuy) DecideBuy(currentPrice decimal.Decimal, avgPrice *decimal.Decimal, splitsUsed int) *BuyOrder {
	if splitsUsed >= s.NumSplits {
		return nil
	}

	perSplit := s.InvestmentPerSplit()

	if avgPrice == nil || currentPrice.LessThan(*avgPrice) {
		quantity := perSplit.Div(currentPrice).Floor().IntPart()
		if quantity <= 0 {
			return nil
		}
		return &BuyOrder{Price: currentPrice, Quantity: quantity, HalfAmount: false}
	}

	premiumPrice := currentPrice.Mul(s.ProfitTarget)
	quantity := perSplit.Div(decimal.NewFromInt(2)).Div(premiumPrice).Floor().IntPart()
	if quantity <= 0 {
		return nil
	}
	return &BuyOrder{Price: premiumPrice, Quantity: quantity, HalfAmount: true}
}

// SellTarget returns the limit price at which the whole position is sold
func (s InfiniteBuy) SellTarget(avgPrice decimal.Decimal) decimal.Decimal {
	return avgPrice.Mul(s.ProfitTarget)
}

// ShouldSell reports whether the current price has reached the sell target.
// The boundary is inclusive: the target price itself triggers a sell.
func (s InfiniteBuy) ShouldSell(currentPrice, avgPrice decimal.Decimal) bool {
	return currentPrice.GreaterThanOrEqual(s.SellTarget(avgPrice))
}

// EmergencySell computes the forced partial liquidation applied when all
// splits are spent: a quarter of the holding, market-priced. Returns nil in
// wait mode or when a quarter rounds down to zero shares.
func (s InfiniteBuy) EmergencySell(totalQuantity int64) *SellOrder {
	if s.EmergencyMode == EmergencyWait {
		return nil
	}

	sellQuantity := totalQuantity / 4
	if sellQuantity <= 0 {
		return nil
	}
	return &SellOrder{Price: decimal.Zero, Quantity: sellQuantity, Emergency: true}
}

// ValidateInvestment checks that the budget can carry all splits at the
// current price. This is a pre-flight check run at startup, not mid-cycle.
func (s InfiniteBuy) ValidateInvestment(currentPrice decimal.Decimal) (bool, string) {
	minRequired := currentPrice.Mul(decimal.NewFromInt(int64(s.NumSplits)))
	if s.TotalInvestment.LessThan(minRequired) {
		return false, fmt.Sprintf("insufficient capital: required %s, have %s",
			minRequired.StringFixed(0), s.TotalInvestment.StringFixed(0))
	}
	return true, "OK"
}

// Rebase returns a strategy for the next cycle with the sell proceeds as the
// new capital base
func (s InfiniteBuy) Rebase(proceeds decimal.Decimal) InfiniteBuy {
	return InfiniteBuy{
		TotalInvestment: proceeds,
		NumSplits:       s.NumSplits,
		ProfitTarget:    s.ProfitTarget,
		EmergencyMode:   s.EmergencyMode,
	}
}
