package grid

import (
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

// mergeBalances overwrites the pair assets present in the update only.
func (p *pass) mergeBalances(a domain.AccountBalanceUpdate) {
	if b, ok := a.Balances[p.r.pair.From]; ok {
		p.state.Base = &b
	}
	if b, ok := a.Balances[p.r.pair.To]; ok {
		p.state.Quote = &b
	}
}

// hold moves the exchange hold of a freshly confirmed order from free to locked.
func (p *pass) hold(side domain.Side, price, quantity decimal.Decimal) {
	switch side {
	case domain.SideSell:
		if p.state.Base == nil {
			return
		}
		b := p.state.Base.Hold(quantity)
		p.state.Base = &b
	case domain.SideBuy:
		if p.state.Quote == nil {
			return
		}
		q := p.state.Quote.Hold(quantity.Mul(price))
		p.state.Quote = &q
	default:
		p.r.l.Warn("hold for unknown side skipped", zap.String("side", side.String()))
	}
}

// FreeCapital returns free base and free quote net of funds reserved by orders
// the exchange has not confirmed yet.
func FreeCapital(s domain.State) (base, quote decimal.Decimal) {
	if s.Base != nil {
		base = s.Base.Free
	}
	if s.Quote != nil {
		quote = s.Quote.Free
	}

	for _, o := range s.Orders {
		if o.Lifecycle != domain.LifecycleCreating {
			continue
		}
		switch o.Side {
		case domain.SideSell:
			base = base.Sub(o.Quantity)
		case domain.SideBuy:
			quote = quote.Sub(o.QuoteValue())
		}
	}

	return base, quote
}
