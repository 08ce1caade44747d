package trading

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/broker"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/config"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/strategy"
)

const testSymbol = "133690"

// tradingDay is a Monday
var tradingDay = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		Symbol:            testSymbol,
		TotalInvestment:   dec("10000000"),
		NumSplits:         40,
		ProfitTarget:      dec("1.10"),
		EmergencySellMode: strategy.EmergencyQuarter,
	}
}

func newTestService(store *fakeStore, b *fakeBroker) *Service {
	svc := NewService(testTradingConfig(), store, b, time.UTC)
	svc.now = func() time.Time { return tradingDay }
	return svc
}

func heldPosition(quantity int64, avg string, splitsUsed int) *models.Position {
	return &models.Position{
		ID:                1,
		Symbol:            testSymbol,
		SymbolName:        "KODEX 레버리지",
		Quantity:          quantity,
		AvgPrice:          decPtr(avg),
		SplitsUsed:        splitsUsed,
		CycleNumber:       1,
		CurrentInvestment: dec("10000000"),
		InitialInvestment: dec("10000000"),
		CreatedAt:         tradingDay.Add(-10 * 24 * time.Hour),
	}
}

func TestArmSell(t *testing.T) {
	t.Run("no-op when no position exists", func(t *testing.T) {
		svc := newTestService(&fakeStore{}, &fakeBroker{})

		result := svc.ArmSell(context.Background())
		assert.Equal(t, ResultNoOp, result.Kind)
	})

	t.Run("no-op when position is empty", func(t *testing.T) {
		store := &fakeStore{position: &models.Position{
			Symbol: testSymbol, Quantity: 0, CycleNumber: 1,
			CurrentInvestment: dec("10000000"), InitialInvestment: dec("10000000"),
		}}
		svc := newTestService(store, &fakeBroker{})

		result := svc.ArmSell(context.Background())
		assert.Equal(t, ResultNoOp, result.Kind)
	})

	t.Run("submits full-quantity limit sell at target", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(10, "160000", 5)}
		b := &fakeBroker{}
		svc := newTestService(store, b)

		result := svc.ArmSell(context.Background())
		require.Equal(t, ResultSellArmed, result.Kind)

		require.Len(t, b.sells, 1)
		assert.Equal(t, int64(10), b.sells[0].Quantity)
		assert.True(t, dec("176000").Equal(b.sells[0].Price), "target = 160,000 * 1.10")

		require.Len(t, store.orders, 1)
		order := store.orders[0]
		assert.Equal(t, models.OrderSideSell, order.Side)
		assert.Equal(t, 0, order.TrancheIndex)
		assert.Equal(t, models.OrderStatusPending, order.Status)
		assert.Equal(t, "SELL-1", order.BrokerOrderID)
	})

	t.Run("cancels stale pending sell before re-arming", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(10, "160000", 5)}
		store.orders = []*models.Order{{
			ID: 99, Symbol: testSymbol, Side: models.OrderSideSell,
			Status: models.OrderStatusPending, Quantity: 10, Price: dec("175000"),
		}}
		b := &fakeBroker{pending: []broker.OrderResult{
			{OrderID: "OLD-1", Symbol: testSymbol, Side: broker.SideSell, Quantity: 10},
			{OrderID: "OTHER", Symbol: "005930", Side: broker.SideSell, Quantity: 1},
		}}
		svc := newTestService(store, b)

		result := svc.ArmSell(context.Background())
		require.Equal(t, ResultSellArmed, result.Kind)

		assert.Equal(t, []string{"OLD-1"}, b.cancelled, "only this symbol's sells are cancelled")
		assert.Equal(t, models.OrderStatusCancelled, store.orders[0].Status)
	})

	t.Run("broker failure leaves state unchanged", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(10, "160000", 5)}
		b := &fakeBroker{submitErr: &broker.Error{Code: "5001", Message: "market closed"}}
		svc := newTestService(store, b)

		result := svc.ArmSell(context.Background())
		assert.Equal(t, ResultError, result.Kind)
		assert.Empty(t, store.orders)
	})
}

func TestExecuteBuyOrEmergency(t *testing.T) {
	t.Run("initializes position on first run", func(t *testing.T) {
		store := &fakeStore{}
		b := &fakeBroker{price: broker.PriceInfo{
			SymbolName: "KODEX 레버리지", CurrentPrice: dec("167750"),
		}}
		svc := newTestService(store, b)

		result := svc.ExecuteBuyOrEmergency(context.Background())
		require.Equal(t, ResultBuySubmitted, result.Kind)

		require.NotNil(t, store.position)
		assert.Equal(t, "KODEX 레버리지", store.position.SymbolName)
		assert.Equal(t, 1, store.position.CycleNumber)

		// floor(250,000 / 167,750) = 1 full-tranche share
		require.Len(t, b.buys, 1)
		assert.Equal(t, int64(1), b.buys[0].Quantity)
		assert.True(t, dec("167750").Equal(b.buys[0].Price))
		assert.Equal(t, 1, store.orders[0].TrancheIndex)
	})

	t.Run("fails loudly when capital cannot carry all splits", func(t *testing.T) {
		store := &fakeStore{}
		b := &fakeBroker{price: broker.PriceInfo{CurrentPrice: dec("300000")}}
		svc := NewService(config.TradingConfig{
			Symbol:            testSymbol,
			TotalInvestment:   dec("5000000"),
			NumSplits:         40,
			ProfitTarget:      dec("1.10"),
			EmergencySellMode: strategy.EmergencyQuarter,
		}, store, b, time.UTC)
		svc.now = func() time.Time { return tradingDay }

		result := svc.ExecuteBuyOrEmergency(context.Background())
		assert.Equal(t, ResultError, result.Kind)
		assert.Contains(t, result.Reason, "insufficient capital")
		assert.Empty(t, b.buys)
	})

	t.Run("no-op while awaiting the armed sell to fill", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(10, "160000", 5)}
		b := &fakeBroker{price: broker.PriceInfo{CurrentPrice: dec("176000")}}
		svc := newTestService(store, b)

		result := svc.ExecuteBuyOrEmergency(context.Background())
		assert.Equal(t, ResultNoOp, result.Kind)
		assert.Empty(t, b.buys)
	})

	t.Run("half tranche rounding to zero is a no-op", func(t *testing.T) {
		// price 170,000 >= avg 160,000: premium 187,000, floor(125,000/187,000) = 0
		store := &fakeStore{position: heldPosition(10, "160000", 5)}
		b := &fakeBroker{price: broker.PriceInfo{CurrentPrice: dec("170000")}}
		svc := newTestService(store, b)

		result := svc.ExecuteBuyOrEmergency(context.Background())
		assert.Equal(t, ResultNoOp, result.Kind)
		assert.Empty(t, b.buys)
	})

	t.Run("quarter liquidation when splits are exhausted", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(40, "160000", 40)}
		b := &fakeBroker{price: broker.PriceInfo{CurrentPrice: dec("150000")}}
		svc := newTestService(store, b)

		result := svc.ExecuteBuyOrEmergency(context.Background())
		require.Equal(t, ResultEmergencySell, result.Kind)

		require.Len(t, b.sells, 1)
		assert.Equal(t, int64(10), b.sells[0].Quantity, "a quarter of 40 shares")
		assert.True(t, dec("150000").Equal(b.sells[0].Price))
		assert.Equal(t, 0, store.orders[0].TrancheIndex)
		assert.Empty(t, b.buys)
	})

	t.Run("wait mode holds through exhaustion", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(40, "160000", 40)}
		b := &fakeBroker{price: broker.PriceInfo{CurrentPrice: dec("150000")}}
		cfg := testTradingConfig()
		cfg.EmergencySellMode = strategy.EmergencyWait
		svc := NewService(cfg, store, b, time.UTC)
		svc.now = func() time.Time { return tradingDay }

		result := svc.ExecuteBuyOrEmergency(context.Background())
		assert.Equal(t, ResultNoOp, result.Kind)
		assert.Empty(t, b.sells)
		assert.Empty(t, b.buys)
	})
}

func TestReconcile(t *testing.T) {
	t.Run("applies a detected buy fill", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(2, "160000", 2)}
		store.orders = []*models.Order{{
			ID: 10, Symbol: testSymbol, Side: models.OrderSideBuy,
			Status: models.OrderStatusPending, Quantity: 1, Price: dec("150000"),
			CycleNumber: 1, TrancheIndex: 3,
		}}
		b := &fakeBroker{holdings: []broker.HoldingInfo{{
			Symbol: testSymbol, Quantity: 3, AvgPrice: dec("156000"),
		}}}
		svc := newTestService(store, b)

		result := svc.Reconcile(context.Background())
		require.Equal(t, ResultFillApplied, result.Kind)
		assert.Equal(t, int64(1), result.FilledQuantity)

		p := store.position
		assert.Equal(t, int64(3), p.Quantity)
		assert.Equal(t, 3, p.SplitsUsed, "one reconciliation event consumes one split")
		// blended avg: (2*160,000 + 1*156,000) / 3
		require.NotNil(t, p.AvgPrice)
		assert.True(t, dec("158666.6666666666666667").Equal(*p.AvgPrice) ||
			p.AvgPrice.Sub(dec("158666.67")).Abs().LessThan(dec("0.01")),
			"avg should blend to ~158,666.67, got %s", p.AvgPrice)

		assert.Equal(t, models.OrderStatusFilled, store.orders[0].Status)
		require.NotNil(t, store.orders[0].FilledPrice)
		assert.True(t, dec("156000").Equal(*store.orders[0].FilledPrice))
	})

	t.Run("resting unfilled buy order is expired, not confirmed", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(2, "160000", 2)}
		store.orders = []*models.Order{
			{
				ID: 10, Symbol: testSymbol, Side: models.OrderSideBuy,
				Status: models.OrderStatusPending, Quantity: 1, Price: dec("150000"),
				CycleNumber: 1, TrancheIndex: 3,
			},
			{
				// premium half-tranche limit resting above market, never filled
				ID: 11, Symbol: testSymbol, Side: models.OrderSideBuy,
				Status: models.OrderStatusPending, Quantity: 1, Price: dec("187000"),
				CycleNumber: 1, TrancheIndex: 4,
			},
		}
		b := &fakeBroker{holdings: []broker.HoldingInfo{{
			Symbol: testSymbol, Quantity: 3, AvgPrice: dec("156000"),
		}}}
		svc := newTestService(store, b)

		result := svc.Reconcile(context.Background())
		require.Equal(t, ResultFillApplied, result.Kind)

		assert.Equal(t, models.OrderStatusFilled, store.orders[0].Status)
		assert.Equal(t, int64(1), store.orders[0].FilledQuantity)
		assert.Equal(t, models.OrderStatusCancelled, store.orders[1].Status)
		assert.Equal(t, int64(0), store.orders[1].FilledQuantity)
		assert.Nil(t, store.orders[1].FilledPrice)
	})

	t.Run("delta smaller than the order quantity marks a partial fill", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(2, "160000", 2)}
		store.orders = []*models.Order{{
			ID: 10, Symbol: testSymbol, Side: models.OrderSideBuy,
			Status: models.OrderStatusPending, Quantity: 2, Price: dec("150000"),
			CycleNumber: 1, TrancheIndex: 3,
		}}
		b := &fakeBroker{holdings: []broker.HoldingInfo{{
			Symbol: testSymbol, Quantity: 3, AvgPrice: dec("156000"),
		}}}
		svc := newTestService(store, b)

		result := svc.Reconcile(context.Background())
		require.Equal(t, ResultFillApplied, result.Kind)

		assert.Equal(t, models.OrderStatusPartial, store.orders[0].Status)
		assert.Equal(t, int64(1), store.orders[0].FilledQuantity)
	})

	t.Run("is idempotent when broker state is unchanged", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(2, "160000", 2)}
		b := &fakeBroker{holdings: []broker.HoldingInfo{{
			Symbol: testSymbol, Quantity: 3, AvgPrice: dec("156000"),
		}}}
		svc := newTestService(store, b)

		first := svc.Reconcile(context.Background())
		require.Equal(t, ResultFillApplied, first.Kind)
		after := *store.position

		second := svc.Reconcile(context.Background())
		assert.Equal(t, ResultNoOp, second.Kind)
		assert.Equal(t, after.Quantity, store.position.Quantity)
		assert.Equal(t, after.SplitsUsed, store.position.SplitsUsed)
		assert.True(t, after.AvgPrice.Equal(*store.position.AvgPrice))
	})

	t.Run("closes the cycle when holdings emptied", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(10, "160000", 12)}
		store.orders = []*models.Order{{
			ID: 20, Symbol: testSymbol, Side: models.OrderSideSell,
			Status: models.OrderStatusPending, Quantity: 10, Price: dec("176000"),
			CycleNumber: 1,
		}}
		b := &fakeBroker{
			holdings: nil, // symbol disappeared from holdings entirely
			balance:  broker.BalanceInfo{AvailableAmount: dec("11000000")},
		}
		svc := newTestService(store, b)

		result := svc.Reconcile(context.Background())
		require.Equal(t, ResultCycleClosed, result.Kind)

		require.Len(t, store.histories, 1)
		h := store.histories[0]
		assert.Equal(t, 1, h.CycleNumber)
		assert.True(t, dec("10000000").Equal(h.StartInvestment))
		assert.True(t, dec("11000000").Equal(h.EndProceeds))
		assert.True(t, dec("1000000").Equal(h.Profit))
		assert.True(t, dec("0.1").Equal(h.ProfitRate))
		assert.Equal(t, 12, h.TotalTrades)

		p := store.position
		assert.Equal(t, int64(0), p.Quantity)
		assert.Nil(t, p.AvgPrice)
		assert.Equal(t, 0, p.SplitsUsed)
		assert.Equal(t, 2, p.CycleNumber)
		assert.True(t, dec("11000000").Equal(p.CurrentInvestment))
		assert.True(t, dec("10000000").Equal(p.InitialInvestment), "initial investment is immutable")

		assert.Equal(t, models.OrderStatusFilled, store.orders[0].Status)
	})

	t.Run("failed cycle close writes nothing and retries cleanly", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(10, "160000", 12), failCloseCycle: true}
		b := &fakeBroker{
			holdings: nil,
			balance:  broker.BalanceInfo{AvailableAmount: dec("11000000")},
		}
		svc := newTestService(store, b)

		first := svc.Reconcile(context.Background())
		assert.Equal(t, ResultError, first.Kind)
		assert.Empty(t, store.histories, "no history row without the matching reset")
		assert.Equal(t, int64(10), store.position.Quantity, "stored position must be untouched")
		assert.Equal(t, 1, store.position.CycleNumber)

		store.failCloseCycle = false
		second := svc.Reconcile(context.Background())
		require.Equal(t, ResultCycleClosed, second.Kind)

		require.Len(t, store.histories, 1, "the retry records the cycle exactly once")
		assert.Equal(t, 1, store.histories[0].CycleNumber)
		assert.Equal(t, 2, store.position.CycleNumber)
		assert.True(t, dec("11000000").Equal(store.position.CurrentInvestment))
	})

	t.Run("zero start investment yields zero profit rate", func(t *testing.T) {
		h := models.NewCycleHistory(testSymbol, 3, decimal.Zero, dec("500"), 1, tradingDay, tradingDay)
		assert.True(t, h.ProfitRate.IsZero())
	})

	t.Run("holdings at zero with empty position is a no-op", func(t *testing.T) {
		store := &fakeStore{position: &models.Position{
			Symbol: testSymbol, Quantity: 0, CycleNumber: 2,
			CurrentInvestment: dec("11000000"), InitialInvestment: dec("10000000"),
		}}
		b := &fakeBroker{}
		svc := newTestService(store, b)

		result := svc.Reconcile(context.Background())
		assert.Equal(t, ResultNoOp, result.Kind)
		assert.Empty(t, store.histories)
	})

	t.Run("store failure aborts without ledger writes", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(2, "160000", 2), failUpdatePosition: true}
		b := &fakeBroker{holdings: []broker.HoldingInfo{{
			Symbol: testSymbol, Quantity: 3, AvgPrice: dec("156000"),
		}}}
		svc := newTestService(store, b)

		result := svc.Reconcile(context.Background())
		assert.Equal(t, ResultError, result.Kind)
		assert.Equal(t, int64(2), store.position.Quantity, "stored position must be untouched")
	})
}

func TestPhaseGuards(t *testing.T) {
	t.Run("overlapping trigger is skipped", func(t *testing.T) {
		svc := newTestService(&fakeStore{}, &fakeBroker{})
		require.True(t, svc.guard.tryAcquire())
		defer svc.guard.release()

		result := svc.ArmSell(context.Background())
		assert.Equal(t, ResultSkippedOverlap, result.Kind)
	})

	t.Run("guard is released after a phase", func(t *testing.T) {
		svc := newTestService(&fakeStore{}, &fakeBroker{})

		first := svc.ArmSell(context.Background())
		assert.Equal(t, ResultNoOp, first.Kind)

		second := svc.ArmSell(context.Background())
		assert.NotEqual(t, ResultSkippedOverlap, second.Kind)
	})

	t.Run("non-trading day is skipped", func(t *testing.T) {
		store := &fakeStore{position: heldPosition(10, "160000", 5)}
		b := &fakeBroker{}
		svc := newTestService(store, b)
		saturday := time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC)
		svc.now = func() time.Time { return saturday }

		result := svc.ArmSell(context.Background())
		assert.Equal(t, ResultSkippedNonTradingDay, result.Kind)
		assert.Empty(t, b.sells)
	})
}

func TestInitialize(t *testing.T) {
	t.Run("creates position and passes validation", func(t *testing.T) {
		store := &fakeStore{}
		b := &fakeBroker{price: broker.PriceInfo{
			SymbolName: "KODEX 레버리지", CurrentPrice: dec("167750"),
		}}
		svc := newTestService(store, b)

		position, err := svc.Initialize(context.Background())
		require.NoError(t, err)
		assert.Equal(t, testSymbol, position.Symbol)
		assert.True(t, dec("10000000").Equal(position.CurrentInvestment))
	})

	t.Run("returns existing position without recreating", func(t *testing.T) {
		existing := heldPosition(10, "160000", 5)
		existing.CycleNumber = 3
		store := &fakeStore{position: existing}
		b := &fakeBroker{price: broker.PriceInfo{CurrentPrice: dec("150000")}}
		svc := newTestService(store, b)

		position, err := svc.Initialize(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 3, position.CycleNumber)
	})

	t.Run("insufficient capital is fatal", func(t *testing.T) {
		store := &fakeStore{}
		b := &fakeBroker{price: broker.PriceInfo{CurrentPrice: dec("300000")}}
		svc := newTestService(store, b)

		_, err := svc.Initialize(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insufficient capital")
	})
}
