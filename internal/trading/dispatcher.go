package trading

import (
	"context"
	"log"

	"github.com/jaehoon-lee/infinite-buying-bot/internal/events"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/models"
	"github.com/jaehoon-lee/infinite-buying-bot/internal/notify"
)

// Dispatcher turns phase results into outbound notifications and trade
// events. It keeps every side effect out of the state machine itself:
// phases return data, the dispatcher pattern-matches on it.
type Dispatcher struct {
	notifier notify.Notifier
	producer *events.Producer
}

// NewDispatcher creates a dispatcher. A nil producer disables trade events.
func NewDispatcher(notifier notify.Notifier, producer *events.Producer) *Dispatcher {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Dispatcher{notifier: notifier, producer: producer}
}

// Dispatch fans a phase result out to the notifier and the event producer.
// Delivery failures are logged and never propagate.
func (d *Dispatcher) Dispatch(ctx context.Context, result PhaseResult) {
	switch result.Kind {
	case ResultSellArmed:
		d.notifier.SellOrder(ctx, result.Order)
		d.publishOrder(ctx, result.Order)

	case ResultBuySubmitted:
		d.notifier.BuyOrder(ctx, result.Order)
		d.publishOrder(ctx, result.Order)

	case ResultEmergencySell:
		d.notifier.EmergencySell(ctx, result.Order)
		d.publishOrder(ctx, result.Order)

	case ResultFillApplied:
		d.notifier.Execution(ctx, models.OrderSideBuy, result.FilledQuantity, result.FilledPrice, result.Position)

	case ResultCycleClosed:
		d.notifier.CycleComplete(ctx, result.History)
		if err := d.producer.PublishCycleCompleted(ctx, result.History); err != nil {
			log.Printf("cycle event publish failed (ignored): %v", err)
		}

	case ResultError:
		d.notifier.Error(ctx, result.Phase+": "+result.Reason)
	}
}

func (d *Dispatcher) publishOrder(ctx context.Context, order *models.Order) {
	if err := d.producer.PublishOrderSubmitted(ctx, order); err != nil {
		log.Printf("order event publish failed (ignored): %v", err)
	}
}
