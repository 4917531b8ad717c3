package grid

import (
	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

// trackTrade records a trade and moves the anchor toward its price.
// Trades not newer than the last one are ignored.
func (p *pass) trackTrade(t domain.Trade) error {
	if p.state.LastTrade != nil && t.ID <= p.state.LastTrade.ID {
		return nil
	}

	trade := t
	p.state.LastTrade = &trade
	if p.state.AnchorPrice == nil {
		p.state.AnchorPrice = domain.DecimalPtr(t.Price)
	}

	return p.walkAnchor()
}

// walkAnchor steps the anchor one level at a time until the last trade lies
// strictly within one level size of it.
func (p *pass) walkAnchor() error {
	s := p.state
	if s.AnchorPrice == nil || s.LastTrade == nil || s.LevelSizeQuote == nil {
		return nil
	}

	price := s.LastTrade.Price
	size := *s.LevelSizeQuote
	anchor := *s.AnchorPrice
	index := s.AnchorIndex

	for steps := 0; price.GreaterThanOrEqual(anchor.Add(size)); steps++ {
		if steps >= p.r.params.MaxAnchorSteps {
			return p.invariant("walkAnchor", "runaway loop moving level up: trade %s, anchor %s, level size %s",
				price.String(), anchor.String(), size.String())
		}
		index++
		anchor = anchor.Add(size)
	}

	for steps := 0; price.LessThanOrEqual(anchor.Sub(size)); steps++ {
		if steps >= p.r.params.MaxAnchorSteps {
			return p.invariant("walkAnchor", "runaway loop moving level down: trade %s, anchor %s, level size %s",
				price.String(), anchor.String(), size.String())
		}
		index--
		anchor = anchor.Sub(size)
	}

	if index != s.AnchorIndex {
		p.r.l.Info("anchor moved",
			zap.Int("from_level", s.AnchorIndex),
			zap.Int("to_level", index),
			zap.String("anchor_price", anchor.String()),
			zap.String("trade_price", price.String()))
	}

	p.state.AnchorIndex = index
	p.state.AnchorPrice = domain.DecimalPtr(anchor)

	return nil
}
