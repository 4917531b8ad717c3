package grid

import (
	"sort"

	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

// cancelOutdated keeps the orders of a side packed next to the anchor. For every
// ideal level nobody covers, the active order furthest from the anchor is
// cancelled, minus cancels already in flight.
func (p *pass) cancelOutdated(side domain.Side) {
	orders := p.state.OrdersBySide(side)
	if len(orders) <= p.r.params.CancelThreshold {
		return
	}

	// furthest from the anchor first
	sort.SliceStable(orders, func(i, j int) bool {
		if side == domain.SideBuy {
			return orders[i].Level < orders[j].Level
		}
		return orders[i].Level > orders[j].Level
	})

	present := make(map[int]struct{}, len(orders))
	cancelling := 0
	for _, o := range orders {
		present[o.Level] = struct{}{}
		if o.Lifecycle == domain.LifecycleCancelling {
			cancelling++
		}
	}

	var missing []int
	for i := range orders {
		level := p.state.AnchorIndex + i + 1
		if side == domain.SideBuy {
			level = p.state.AnchorIndex - i - 1
		}
		if _, ok := present[level]; !ok {
			missing = append(missing, level)
		}
	}

	toCancel := len(missing) - cancelling
	if toCancel <= 0 {
		return
	}

	var cancelled []int
	for _, o := range orders {
		if len(cancelled) == toCancel {
			break
		}
		if o.Lifecycle != domain.LifecycleActive {
			continue
		}
		p.markCancelling(o.CorrelationID)
		p.emit(domain.CancelOrder{Order: o.WithLifecycle(domain.LifecycleCancelling)})
		cancelled = append(cancelled, o.Level)
	}

	if len(cancelled) > 0 {
		p.r.l.Info("cancelling outdated orders",
			zap.String("side", side.String()),
			zap.Ints("levels", cancelled),
			zap.Ints("missing_levels", missing),
			zap.Int("anchor_level", p.state.AnchorIndex))
	}
}
