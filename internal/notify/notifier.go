package notify

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
)

// Notifier is the outbound notification capability. Implementations must
// never let a delivery failure propagate into trading logic; every method is
// fire-and-forget from the caller's point of view.
type Notifier interface {
	Startup(ctx context.Context, position *models.Position)
	BuyOrder(ctx context.Context, order *models.Order)
	SellOrder(ctx context.Context, order *models.Order)
	EmergencySell(ctx context.Context, order *models.Order)
	Execution(ctx context.Context, side string, quantity int64, price decimal.Decimal, position *models.Position)
	CycleComplete(ctx context.Context, history *models.CycleHistory)
	Error(ctx context.Context, message string)
}

// Nop is the default Notifier used when no channel is configured, so the
// orchestrator never branches on notifier presence
type Nop struct{}

func (Nop) Startup(context.Context, *models.Position)                                   {}
func (Nop) BuyOrder(context.Context, *models.Order)                                     {}
func (Nop) SellOrder(context.Context, *models.Order)                                    {}
func (Nop) EmergencySell(context.Context, *models.Order)                                {}
func (Nop) Execution(context.Context, string, int64, decimal.Decimal, *models.Position) {}
func (Nop) CycleComplete(context.Context, *models.CycleHistory)                         {}
func (Nop) Error(context.Context, string)                                               {}
