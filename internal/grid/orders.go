package grid

import (
	"sort"

	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

// reconcile applies an execution report to the matching local order and
// reports whether one matched.
func (p *pass) reconcile(rep domain.OrderExecutionReport) bool {
	idx := p.matchOrder(rep.CorrelationIDs)
	if idx < 0 {
		p.r.l.Warn("unreconciled execution report dropped",
			zap.Strings("correlation_ids", rep.CorrelationIDs),
			zap.Int64("exchange_id", rep.ExchangeID),
			zap.String("side", rep.Side.String()),
			zap.String("status", string(rep.Status)),
			zap.String("price", rep.Price.String()),
			zap.String("quantity", rep.Quantity.String()),
			zap.Int64("trade_id", rep.TradeID))
		return false
	}

	order := p.state.Orders[idx]

	switch {
	case rep.Status.IsLive():
		if rep.Status == domain.OrderStatusNew && order.Lifecycle == domain.LifecycleCreating {
			p.r.l.Info("order created",
				zap.String("side", order.Side.String()),
				zap.Int("level", order.Level),
				zap.String("quantity", rep.Quantity.String()),
				zap.String("price", rep.Price.String()),
				zap.String("correlation_id", order.CorrelationID))
			p.hold(order.Side, rep.Price, rep.Quantity)
		}

		exchangeID := rep.ExchangeID
		order.ExchangeID = &exchangeID
		order.Price = rep.Price
		order.Quantity = rep.Quantity
		// a cancel already requested stays requested
		if order.Lifecycle != domain.LifecycleCancelling {
			order.Lifecycle = domain.LifecycleActive
		}
		p.replaceOrder(idx, order)

	case rep.Status.IsTerminal():
		if rep.Status == domain.OrderStatusFilled {
			p.r.l.Info("order filled",
				zap.String("side", order.Side.String()),
				zap.Int("level", order.Level),
				zap.String("quantity", rep.Quantity.String()),
				zap.String("price", rep.Price.String()),
				zap.String("correlation_id", order.CorrelationID))
			p.emit(domain.IgnoreCancelConflict{ExchangeID: rep.ExchangeID})
		} else {
			p.r.l.Info("order closed",
				zap.String("status", string(rep.Status)),
				zap.String("side", order.Side.String()),
				zap.Int("level", order.Level),
				zap.String("correlation_id", order.CorrelationID))
		}
		p.removeOrder(idx)

	default:
		p.r.l.Warn("execution report with unknown status ignored",
			zap.String("status", string(rep.Status)),
			zap.String("correlation_id", order.CorrelationID))
	}
	return true
}

// matchOrder returns the index of the first order matching any of ids, or -1.
func (p *pass) matchOrder(ids []string) int {
	for _, id := range ids {
		if id == "" {
			continue
		}
		for i, o := range p.state.Orders {
			if o.CorrelationID == id {
				return i
			}
		}
	}
	return -1
}

func (p *pass) replaceOrder(idx int, order domain.Order) {
	orders := make([]domain.Order, len(p.state.Orders))
	copy(orders, p.state.Orders)
	orders[idx] = order
	sortByLevel(orders)
	p.state.Orders = orders
}

func (p *pass) removeOrder(idx int) {
	orders := make([]domain.Order, 0, len(p.state.Orders)-1)
	orders = append(orders, p.state.Orders[:idx]...)
	orders = append(orders, p.state.Orders[idx+1:]...)
	p.state.Orders = orders
}

func (p *pass) addOrder(order domain.Order) {
	orders := make([]domain.Order, 0, len(p.state.Orders)+1)
	orders = append(orders, p.state.Orders...)
	orders = append(orders, order)
	sortByLevel(orders)
	p.state.Orders = orders
}

func (p *pass) markCancelling(correlationID string) {
	orders := make([]domain.Order, len(p.state.Orders))
	for i, o := range p.state.Orders {
		if o.CorrelationID == correlationID {
			o = o.WithLifecycle(domain.LifecycleCancelling)
		}
		orders[i] = o
	}
	p.state.Orders = orders
}

func sortByLevel(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].Level < orders[j].Level
	})
}
