package grid

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

// createMissing places orders until free capital no longer covers another
// level or the target is reached. Each pass creates at most one buy and one sell.
func (p *pass) createMissing() error {
	// every productive pass adds an order, so more passes than target levels is a defect
	limit := max(p.r.params.MaxCreatePasses, p.state.TargetTotalLevels+1)

	for passes := 0; p.belowTarget(); passes++ {
		if passes >= limit {
			return p.invariant("createMissing", "runaway loop after %d passes, %d orders", passes, len(p.state.Orders))
		}
		if !p.createPass() {
			return nil
		}
	}
	return nil
}

// createPass reports whether any order was created.
func (p *pass) createPass() bool {
	params := p.r.params
	created := false

	equity, ok := p.state.Equity()
	if !ok || !equity.IsPositive() {
		return false
	}
	freeBase, freeQuote := FreeCapital(p.state)
	target := decimal.NewFromInt(int64(p.state.TargetTotalLevels))
	lastPrice := p.state.LastTrade.Price

	quoteQty := equity.Mul(params.EquityUtilization).Div(target)
	baseQty := equity.Div(lastPrice).Mul(params.EquityUtilization).Div(target)

	safeQuote := decimal.Min(decimal.Max(freeQuote.Sub(equity.Mul(params.SafetyFraction)), decimal.Zero), equity)

	if p.belowTarget() && safeQuote.GreaterThan(quoteQty.Mul(params.BuyTriggerRatio)) {
		level := p.nextLevel(domain.SideBuy)
		if safeQuote.LessThanOrEqual(quoteQty.Mul(params.BuyClampRatio)) {
			quoteQty = safeQuote
		}

		if level.Price.IsPositive() {
			p.r.l.Info("creating BUY order",
				zap.Int("level", level.Index),
				zap.String("price", level.Price.String()),
				zap.String("quote_quantity", quoteQty.String()),
				zap.String("safe_quote", safeQuote.String()),
				zap.String("equity", equity.String()))
			created = p.create(domain.SideBuy, level, floorDiv(quoteQty, level.Price)) || created
		} else {
			p.r.l.Warn("buy level price is not positive, skipping",
				zap.Int("level", level.Index),
				zap.String("price", level.Price.String()))
		}
	}

	if p.belowTarget() && freeBase.GreaterThan(baseQty) {
		level := p.nextLevel(domain.SideSell)
		if freeBase.LessThanOrEqual(baseQty.Mul(params.SellClampRatio).Add(params.MinBaseUnit)) {
			baseQty = freeBase.Sub(params.MinBaseUnit)
		}

		p.r.l.Info("creating SELL order",
			zap.Int("level", level.Index),
			zap.String("price", level.Price.String()),
			zap.String("base_quantity", baseQty.String()),
			zap.String("free_base", freeBase.String()),
			zap.String("equity", equity.String()))
		created = p.create(domain.SideSell, level, baseQty) || created
	}

	return created
}

// floorDiv truncates the quotient so quantity times price never exceeds quote.
func floorDiv(quote, price decimal.Decimal) decimal.Decimal {
	q, _ := quote.QuoRem(price, int32(decimal.DivisionPrecision))
	return q
}

func (p *pass) belowTarget() bool {
	return len(p.state.Orders) < p.state.TargetTotalLevels
}

func (p *pass) create(side domain.Side, level Level, quantity decimal.Decimal) bool {
	if !quantity.IsPositive() {
		p.r.l.Info("order quantity is not positive, skipping",
			zap.String("side", side.String()),
			zap.Int("level", level.Index),
			zap.String("quantity", quantity.String()))
		return false
	}

	req := domain.CreateOrder{
		Side:          side,
		Price:         level.Price,
		Quantity:      quantity,
		Level:         level.Index,
		CorrelationID: p.r.newCorrelationID(),
	}
	p.addOrder(req.Order())
	p.emit(req)

	return true
}
