package trading

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/broker"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/config"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/strategy"
)

// Store is what the orchestrator needs from the persistence layer
type Store interface {
	GetPositionBySymbol(symbol string) (*models.Position, error)
	CreateOrGetPosition(symbol, symbolName string, initialInvestment decimal.Decimal) (*models.Position, error)
	UpdatePosition(p *models.Position) error
	CreateOrder(o *models.Order) error
	GetPendingOrders(symbol, side string) ([]*models.Order, error)
	UpdateOrderFill(o *models.Order) error
	UpdateOrderStatus(id int, status string) error
	CloseCycle(h *models.CycleHistory, p *models.Position) error
}

// Service is the trading orchestrator: a three-phase daily state machine
// driving the strategy engine against the broker and the store. Phases only
// submit orders; fills and cycle rollover are applied exclusively by
// Reconcile, with the broker as the source of truth.
type Service struct {
	cfg      config.TradingConfig
	store    Store
	broker   broker.Broker
	guard    execGuard
	location *time.Location
	now      func() time.Time
}

// NewService creates the orchestrator for one symbol
func NewService(cfg config.TradingConfig, store Store, b broker.Broker, location *time.Location) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		broker:   b,
		location: location,
		now:      time.Now,
	}
}

func (s *Service) strategyFor(p *models.Position) strategy.InfiniteBuy {
	return strategy.New(
		p.CurrentInvestment,
		s.cfg.NumSplits,
		s.cfg.ProfitTarget,
		s.cfg.EmergencySellMode,
	)
}

func (s *Service) isTradingDay() bool {
	wd := s.now().In(s.location).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// runPhase wraps a phase body with the execution token and the trading-day
// gate. The token is released on every exit path.
func (s *Service) runPhase(ctx context.Context, phase string, body func(ctx context.Context) PhaseResult) PhaseResult {
	if !s.guard.tryAcquire() {
		log.Printf("%s skipped: another phase is in flight", phase)
		return skipped(phase, ResultSkippedOverlap, "another phase is in flight")
	}
	defer s.guard.release()

	if !s.isTradingDay() {
		log.Printf("%s skipped: not a trading day", phase)
		return skipped(phase, ResultSkippedNonTradingDay, "not a trading day")
	}

	result := body(ctx)
	if result.Err != nil {
		log.Printf("%s failed: %v", phase, result.Err)
	}
	return result
}

// Initialize creates the position on first run and validates that the
// configured capital can carry every split at the current price. A
// validation failure is a configuration error and must stop the process.
func (s *Service) Initialize(ctx context.Context) (*models.Position, error) {
	price, err := s.broker.GetPrice(ctx, s.cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price for %s: %w", s.cfg.Symbol, err)
	}

	position, err := s.store.CreateOrGetPosition(s.cfg.Symbol, price.SymbolName, s.cfg.TotalInvestment)
	if err != nil {
		return nil, err
	}

	strat := s.strategyFor(position)
	if ok, msg := strat.ValidateInvestment(price.CurrentPrice); !ok {
		return nil, fmt.Errorf("investment validation failed for %s: %s", s.cfg.Symbol, msg)
	}

	return position, nil
}

// ArmSell is the market-open phase: it places the full-quantity limit sell
// at the profit target. No-op when nothing is held.
func (s *Service) ArmSell(ctx context.Context) PhaseResult {
	return s.runPhase(ctx, PhaseSellArm, s.armSell)
}

func (s *Service) armSell(ctx context.Context) PhaseResult {
	position, err := s.store.GetPositionBySymbol(s.cfg.Symbol)
	if err != nil {
		return failed(PhaseSellArm, err)
	}
	if position == nil || position.Quantity == 0 || position.AvgPrice == nil {
		return noop(PhaseSellArm, "no position to sell")
	}

	s.cancelStaleSellOrders(ctx, position)

	strat := s.strategyFor(position)
	targetPrice := strat.SellTarget(*position.AvgPrice)

	result, err := s.broker.SubmitSell(ctx, s.cfg.Symbol, position.Quantity, targetPrice)
	if err != nil {
		return failed(PhaseSellArm, err)
	}

	order := &models.Order{
		Symbol:        s.cfg.Symbol,
		Side:          models.OrderSideSell,
		Price:         targetPrice,
		Quantity:      position.Quantity,
		Status:        models.OrderStatusPending,
		CycleNumber:   position.CycleNumber,
		TrancheIndex:  0,
		BrokerOrderID: result.OrderID,
	}
	if err := s.store.CreateOrder(order); err != nil {
		// The broker accepted the order; losing the ledger row must be loud.
		log.Printf("sell order %s submitted but not recorded: %v", result.OrderID, err)
		return failed(PhaseSellArm, err)
	}

	log.Printf("sell armed: %d shares @ %s", order.Quantity, targetPrice.StringFixed(0))
	return PhaseResult{Phase: PhaseSellArm, Kind: ResultSellArmed, Order: order, Position: position}
}

// cancelStaleSellOrders clears yesterday's unfilled sell order before
// re-arming at today's target. Best effort: failures are logged, the new
// order is placed regardless.
func (s *Service) cancelStaleSellOrders(ctx context.Context, position *models.Position) {
	pending, err := s.broker.GetPendingOrders(ctx)
	if err != nil {
		log.Printf("pending order lookup failed (continuing): %v", err)
		return
	}

	for _, p := range pending {
		if p.Symbol != s.cfg.Symbol || p.Side != broker.SideSell {
			continue
		}
		ok, err := s.broker.Cancel(ctx, p.OrderID, p.Symbol, 0)
		if err != nil || !ok {
			log.Printf("cancel of stale sell %s failed (continuing): ok=%v err=%v", p.OrderID, ok, err)
			continue
		}
		log.Printf("cancelled stale sell order %s", p.OrderID)
	}

	stale, err := s.store.GetPendingOrders(s.cfg.Symbol, models.OrderSideSell)
	if err != nil {
		log.Printf("stale sell ledger lookup failed (continuing): %v", err)
		return
	}
	for _, o := range stale {
		if err := s.store.UpdateOrderStatus(o.ID, models.OrderStatusCancelled); err != nil {
			log.Printf("failed to mark order %d cancelled (continuing): %v", o.ID, err)
		}
	}
}

// ExecuteBuyOrEmergency is the mid-session phase: one split buy per trading
// day, or the quarter liquidation once every split is spent.
func (s *Service) ExecuteBuyOrEmergency(ctx context.Context) PhaseResult {
	return s.runPhase(ctx, PhaseBuyOrEmergency, s.executeBuyOrEmergency)
}

func (s *Service) executeBuyOrEmergency(ctx context.Context) PhaseResult {
	position, err := s.store.GetPositionBySymbol(s.cfg.Symbol)
	if err != nil {
		return failed(PhaseBuyOrEmergency, err)
	}
	if position == nil {
		position, err = s.Initialize(ctx)
		if err != nil {
			return failed(PhaseBuyOrEmergency, err)
		}
	}

	strat := s.strategyFor(position)

	if position.SplitsUsed >= s.cfg.NumSplits && s.cfg.EmergencySellMode == strategy.EmergencyQuarter {
		return s.executeEmergencySell(ctx, position, strat)
	}

	price, err := s.broker.GetPrice(ctx, s.cfg.Symbol)
	if err != nil {
		return failed(PhaseBuyOrEmergency, err)
	}

	if position.AvgPrice != nil && strat.ShouldSell(price.CurrentPrice, *position.AvgPrice) {
		log.Printf("target reached at %s, awaiting sell fill", price.CurrentPrice.StringFixed(0))
		return noop(PhaseBuyOrEmergency, "profit target reached, awaiting sell fill")
	}

	buy := strat.DecideBuy(price.CurrentPrice, position.AvgPrice, position.SplitsUsed)
	if buy == nil {
		return noop(PhaseBuyOrEmergency, "buy conditions not met")
	}

	result, err := s.broker.SubmitBuy(ctx, s.cfg.Symbol, buy.Quantity, buy.Price)
	if err != nil {
		return failed(PhaseBuyOrEmergency, err)
	}

	order := &models.Order{
		Symbol:        s.cfg.Symbol,
		Side:          models.OrderSideBuy,
		Price:         buy.Price,
		Quantity:      buy.Quantity,
		Status:        models.OrderStatusPending,
		CycleNumber:   position.CycleNumber,
		TrancheIndex:  position.SplitsUsed + 1,
		BrokerOrderID: result.OrderID,
	}
	if err := s.store.CreateOrder(order); err != nil {
		log.Printf("buy order %s submitted but not recorded: %v", result.OrderID, err)
		return failed(PhaseBuyOrEmergency, err)
	}

	amount := "full"
	if buy.HalfAmount {
		amount = "half"
	}
	log.Printf("buy submitted: %d shares @ %s (%s tranche %d/%d)",
		buy.Quantity, buy.Price.StringFixed(0), amount, order.TrancheIndex, s.cfg.NumSplits)
	return PhaseResult{Phase: PhaseBuyOrEmergency, Kind: ResultBuySubmitted, Order: order, Position: position}
}

func (s *Service) executeEmergencySell(ctx context.Context, position *models.Position, strat strategy.InfiniteBuy) PhaseResult {
	sell := strat.EmergencySell(position.Quantity)
	if sell == nil {
		return noop(PhaseBuyOrEmergency, "splits exhausted, nothing to liquidate")
	}

	price, err := s.broker.GetPrice(ctx, s.cfg.Symbol)
	if err != nil {
		return failed(PhaseBuyOrEmergency, err)
	}

	result, err := s.broker.SubmitSell(ctx, s.cfg.Symbol, sell.Quantity, price.CurrentPrice)
	if err != nil {
		return failed(PhaseBuyOrEmergency, err)
	}

	order := &models.Order{
		Symbol:        s.cfg.Symbol,
		Side:          models.OrderSideSell,
		Price:         price.CurrentPrice,
		Quantity:      sell.Quantity,
		Status:        models.OrderStatusPending,
		CycleNumber:   position.CycleNumber,
		TrancheIndex:  0,
		BrokerOrderID: result.OrderID,
	}
	if err := s.store.CreateOrder(order); err != nil {
		log.Printf("emergency sell %s submitted but not recorded: %v", result.OrderID, err)
		return failed(PhaseBuyOrEmergency, err)
	}

	log.Printf("emergency sell submitted: %d of %d shares", sell.Quantity, position.Quantity)
	return PhaseResult{Phase: PhaseBuyOrEmergency, Kind: ResultEmergencySell, Order: order, Position: position}
}

// Reconcile is the market-close phase: it compares broker-reported holdings
// against the stored position, applies detected fills, and rolls the cycle
// over when the position emptied. Running it twice with unchanged broker
// state is a no-op the second time.
func (s *Service) Reconcile(ctx context.Context) PhaseResult {
	return s.runPhase(ctx, PhaseReconcile, s.reconcile)
}

func (s *Service) reconcile(ctx context.Context) PhaseResult {
	position, err := s.store.GetPositionBySymbol(s.cfg.Symbol)
	if err != nil {
		return failed(PhaseReconcile, err)
	}
	if position == nil {
		return noop(PhaseReconcile, "no position")
	}

	holdings, err := s.broker.GetHoldings(ctx)
	if err != nil {
		return failed(PhaseReconcile, err)
	}

	var held *broker.HoldingInfo
	for i := range holdings {
		if holdings[i].Symbol == s.cfg.Symbol {
			held = &holdings[i]
			break
		}
	}

	switch {
	case held != nil && held.Quantity > position.Quantity:
		return s.applyBuyFill(position, held)
	case (held == nil || held.Quantity == 0) && position.Quantity > 0:
		return s.closeCycle(ctx, position)
	default:
		return noop(PhaseReconcile, "no change")
	}
}

// applyBuyFill folds a detected fill into the position. The broker may
// coalesce several orders into one delta; each reconciliation event still
// consumes exactly one split.
func (s *Service) applyBuyFill(position *models.Position, held *broker.HoldingInfo) PhaseResult {
	delta := held.Quantity - position.Quantity
	position.UpdateAfterBuy(delta, held.AvgPrice)

	if err := s.store.UpdatePosition(position); err != nil {
		return failed(PhaseReconcile, err)
	}

	s.confirmBuyFills(delta, held.AvgPrice)

	avg := decimal.Zero
	if position.AvgPrice != nil {
		avg = *position.AvgPrice
	}
	log.Printf("buy fill reconciled: +%d shares, avg now %s, splits %d/%d",
		delta, avg.StringFixed(0), position.SplitsUsed, s.cfg.NumSplits)

	return PhaseResult{
		Phase:          PhaseReconcile,
		Kind:           ResultFillApplied,
		Position:       position,
		FilledQuantity: delta,
		FilledPrice:    held.AvgPrice,
	}
}

// closeCycle handles the explicit CYCLE_ACTIVE -> CYCLE_CLOSING ->
// CYCLE_ACTIVE transition once the broker reports the position empty
func (s *Service) closeCycle(ctx context.Context, position *models.Position) PhaseResult {
	log.Printf("cycle %d: CYCLE_ACTIVE -> CYCLE_CLOSING (holdings empty)", position.CycleNumber)

	balance, err := s.broker.GetBalance(ctx)
	if err != nil {
		return failed(PhaseReconcile, err)
	}
	proceeds := balance.AvailableAmount

	startInvestment := position.CurrentInvestment
	if position.CycleNumber == 1 {
		startInvestment = position.InitialInvestment
	}

	history := models.NewCycleHistory(
		s.cfg.Symbol,
		position.CycleNumber,
		startInvestment,
		proceeds,
		position.SplitsUsed,
		position.CreatedAt,
		s.now(),
	)

	s.confirmSellFills(decimal.Zero)

	next := s.strategyFor(position).Rebase(proceeds)
	position.ResetForNewCycle(proceeds)
	if err := s.store.CloseCycle(history, position); err != nil {
		return failed(PhaseReconcile, err)
	}

	log.Printf("cycle %d closed with profit rate %s: CYCLE_CLOSING -> CYCLE_ACTIVE (cycle %d, per-split %s)",
		history.CycleNumber, history.ProfitRate.StringFixed(4), position.CycleNumber,
		next.InvestmentPerSplit().StringFixed(0))

	return PhaseResult{Phase: PhaseReconcile, Kind: ResultCycleClosed, Position: position, History: history}
}

// confirmBuyFills attributes a reconciled quantity delta to the ledger's
// pending buy orders, oldest first. An order the delta cannot fully cover is
// marked partial; one it cannot touch never filled at all, and since the
// venue expires day orders at the close it is marked cancelled. The ledger
// is a projection of broker truth, so failures here are logged rather than
// aborting the phase.
func (s *Service) confirmBuyFills(delta int64, fillPrice decimal.Decimal) {
	pending, err := s.store.GetPendingOrders(s.cfg.Symbol, models.OrderSideBuy)
	if err != nil {
		log.Printf("pending BUY order lookup failed (continuing): %v", err)
		return
	}

	remaining := delta
	for _, o := range pending {
		fill := o.Quantity
		if fill > remaining {
			fill = remaining
		}
		if fill <= 0 {
			if err := s.store.UpdateOrderStatus(o.ID, models.OrderStatusCancelled); err != nil {
				log.Printf("failed to expire order %d (continuing): %v", o.ID, err)
			}
			continue
		}

		price := fillPrice
		if price.IsZero() {
			price = o.Price
		}
		o.MarkFilled(fill, price, s.now())
		if err := s.store.UpdateOrderFill(o); err != nil {
			log.Printf("failed to confirm order %d (continuing): %v", o.ID, err)
		}
		remaining -= fill
	}
}

// confirmSellFills marks pending sell orders filled at their full quantity.
// A cycle close means the whole position left the account.
func (s *Service) confirmSellFills(fillPrice decimal.Decimal) {
	pending, err := s.store.GetPendingOrders(s.cfg.Symbol, models.OrderSideSell)
	if err != nil {
		log.Printf("pending SELL order lookup failed (continuing): %v", err)
		return
	}

	for _, o := range pending {
		price := fillPrice
		if price.IsZero() {
			price = o.Price
		}
		o.MarkFilled(o.Quantity, price, s.now())
		if err := s.store.UpdateOrderFill(o); err != nil {
			log.Printf("failed to confirm order %d (continuing): %v", o.ID, err)
		}
	}
}
