package trading

import (
	"github.com/shopspring/decimal"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
)

// Phase names
const (
	PhaseSellArm        = "SELL_ARM"
	PhaseBuyOrEmergency = "BUY_OR_EMERGENCY"
	PhaseReconcile      = "RECONCILE"
)

// ResultKind classifies the outcome of a phase run
type ResultKind string

const (
	// ResultSkippedOverlap means another phase held the execution token
	ResultSkippedOverlap ResultKind = "SKIPPED_OVERLAP"
	// ResultSkippedNonTradingDay means the trigger fired outside a trading day
	ResultSkippedNonTradingDay ResultKind = "SKIPPED_NON_TRADING_DAY"
	// ResultNoOp means the phase ran and decided to do nothing
	ResultNoOp ResultKind = "NO_OP"
	// ResultSellArmed means the daily target sell order was submitted
	ResultSellArmed ResultKind = "SELL_ARMED"
	// ResultBuySubmitted means a split buy order was submitted
	ResultBuySubmitted ResultKind = "BUY_SUBMITTED"
	// ResultEmergencySell means a quarter liquidation was submitted
	ResultEmergencySell ResultKind = "EMERGENCY_SELL_SUBMITTED"
	// ResultFillApplied means reconciliation confirmed a buy fill
	ResultFillApplied ResultKind = "FILL_APPLIED"
	// ResultCycleClosed means reconciliation detected a full sell and rolled
	// the cycle over
	ResultCycleClosed ResultKind = "CYCLE_CLOSED"
	// ResultError means the phase aborted; stored state is unchanged
	ResultError ResultKind = "ERROR"
)

// PhaseResult is the typed outcome of one orchestrator phase. The
// notification dispatcher pattern-matches on it; the phases themselves never
// perform notification side effects.
type PhaseResult struct {
	Phase          string
	Kind           ResultKind
	Reason         string
	Order          *models.Order
	Position       *models.Position
	History        *models.CycleHistory
	FilledQuantity int64
	FilledPrice    decimal.Decimal
	Err            error
}

func skipped(phase string, kind ResultKind, reason string) PhaseResult {
	return PhaseResult{Phase: phase, Kind: kind, Reason: reason}
}

func noop(phase, reason string) PhaseResult {
	return PhaseResult{Phase: phase, Kind: ResultNoOp, Reason: reason}
}

func failed(phase string, err error) PhaseResult {
	return PhaseResult{Phase: phase, Kind: ResultError, Reason: err.Error(), Err: err}
}
