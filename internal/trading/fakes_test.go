package trading

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/broker"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
)

// fakeStore is an in-memory Store for orchestrator tests
type fakeStore struct {
	position  *models.Position
	orders    []*models.Order
	histories []*models.CycleHistory
	nextID    int

	failUpdatePosition bool
	failCloseCycle     bool
}

func (f *fakeStore) GetPositionBySymbol(symbol string) (*models.Position, error) {
	if f.position == nil || f.position.Symbol != symbol {
		return nil, nil
	}
	copied := *f.position
	return &copied, nil
}

func (f *fakeStore) CreateOrGetPosition(symbol, symbolName string, initialInvestment decimal.Decimal) (*models.Position, error) {
	if f.position != nil && f.position.Symbol == symbol {
		copied := *f.position
		return &copied, nil
	}
	f.nextID++
	f.position = &models.Position{
		ID:                f.nextID,
		Symbol:            symbol,
		SymbolName:        symbolName,
		CycleNumber:       1,
		CurrentInvestment: initialInvestment,
		InitialInvestment: initialInvestment,
	}
	copied := *f.position
	return &copied, nil
}

func (f *fakeStore) UpdatePosition(p *models.Position) error {
	if f.failUpdatePosition {
		return fmt.Errorf("store unavailable")
	}
	copied := *p
	f.position = &copied
	return nil
}

func (f *fakeStore) CreateOrder(o *models.Order) error {
	f.nextID++
	o.ID = f.nextID
	copied := *o
	f.orders = append(f.orders, &copied)
	return nil
}

func (f *fakeStore) GetPendingOrders(symbol, side string) ([]*models.Order, error) {
	var pending []*models.Order
	for _, o := range f.orders {
		if o.Symbol == symbol && o.Side == side && o.Status == models.OrderStatusPending {
			copied := *o
			pending = append(pending, &copied)
		}
	}
	return pending, nil
}

func (f *fakeStore) UpdateOrderFill(o *models.Order) error {
	for _, existing := range f.orders {
		if existing.ID == o.ID {
			*existing = *o
			return nil
		}
	}
	return fmt.Errorf("order with id %d not found", o.ID)
}

func (f *fakeStore) UpdateOrderStatus(id int, status string) error {
	for _, existing := range f.orders {
		if existing.ID == id {
			existing.Status = status
			return nil
		}
	}
	return fmt.Errorf("order with id %d not found", id)
}

// CloseCycle mirrors the transactional store method: the history insert and
// the position write succeed or fail together, and a repeated cycle number
// is rejected like the unique constraint would.
func (f *fakeStore) CloseCycle(h *models.CycleHistory, p *models.Position) error {
	if f.failCloseCycle {
		return fmt.Errorf("store unavailable")
	}
	for _, existing := range f.histories {
		if existing.Symbol == h.Symbol && existing.CycleNumber == h.CycleNumber {
			return fmt.Errorf("cycle %d for %s already recorded", h.CycleNumber, h.Symbol)
		}
	}
	f.nextID++
	h.ID = f.nextID
	copiedHistory := *h
	f.histories = append(f.histories, &copiedHistory)
	copiedPosition := *p
	f.position = &copiedPosition
	return nil
}

// fakeBroker is a scripted broker for orchestrator tests
type fakeBroker struct {
	price    broker.PriceInfo
	priceErr error
	balance  broker.BalanceInfo
	holdings []broker.HoldingInfo
	pending  []broker.OrderResult

	submitErr  error
	buys       []broker.OrderResult
	sells      []broker.OrderResult
	cancelled  []string
	orderSeq   int
	holdingErr error
}

func (f *fakeBroker) GetPrice(ctx context.Context, symbol string) (*broker.PriceInfo, error) {
	if f.priceErr != nil {
		return nil, f.priceErr
	}
	info := f.price
	info.Symbol = symbol
	return &info, nil
}

func (f *fakeBroker) GetBalance(ctx context.Context) (*broker.BalanceInfo, error) {
	b := f.balance
	return &b, nil
}

func (f *fakeBroker) GetHoldings(ctx context.Context) ([]broker.HoldingInfo, error) {
	if f.holdingErr != nil {
		return nil, f.holdingErr
	}
	return f.holdings, nil
}

func (f *fakeBroker) SubmitBuy(ctx context.Context, symbol string, quantity int64, price decimal.Decimal) (*broker.OrderResult, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.orderSeq++
	result := broker.OrderResult{
		OrderID:  fmt.Sprintf("BUY-%d", f.orderSeq),
		Symbol:   symbol,
		Side:     broker.SideBuy,
		Quantity: quantity,
		Price:    price,
		Status:   "PENDING",
	}
	f.buys = append(f.buys, result)
	return &result, nil
}

func (f *fakeBroker) SubmitSell(ctx context.Context, symbol string, quantity int64, price decimal.Decimal) (*broker.OrderResult, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.orderSeq++
	result := broker.OrderResult{
		OrderID:  fmt.Sprintf("SELL-%d", f.orderSeq),
		Symbol:   symbol,
		Side:     broker.SideSell,
		Quantity: quantity,
		Price:    price,
		Status:   "PENDING",
	}
	f.sells = append(f.sells, result)
	return &result, nil
}

func (f *fakeBroker) Cancel(ctx context.Context, orderID, symbol string, quantity int64) (bool, error) {
	f.cancelled = append(f.cancelled, orderID)
	return true, nil
}

func (f *fakeBroker) GetPendingOrders(ctx context.Context) ([]broker.OrderResult, error) {
	return f.pending, nil
}
