package grid

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gridbot/internal/domain"
)

// Level grid level index and its price.
type Level struct {
	Index int
	Price decimal.Decimal
}

// NextAvailableLevel scans outward from the anchor on the given side and
// returns the first level not occupied by an order of that side.
func NextAvailableLevel(orders []domain.Order, anchorIndex int, anchorPrice, levelSize decimal.Decimal, side domain.Side) Level {
	step := 1
	if side == domain.SideBuy {
		step = -1
	}

	// occupied levels on the side, nearest to the anchor first, anchor included
	levels := []int{anchorIndex}
	for _, o := range orders {
		if o.Side != side {
			continue
		}
		if (side == domain.SideBuy && o.Level < anchorIndex) || (side == domain.SideSell && o.Level > anchorIndex) {
			levels = append(levels, o.Level)
		}
	}
	sort.Slice(levels, func(i, j int) bool {
		return levels[i]*step < levels[j]*step
	})

	index, price := anchorIndex, anchorPrice
	delta := levelSize
	if side == domain.SideBuy {
		delta = levelSize.Neg()
	}

	for i := range levels {
		index += step
		price = price.Add(delta)

		if i+1 >= len(levels) || levels[i]+step != levels[i+1] {
			break
		}
	}

	return Level{Index: index, Price: price}
}

func (p *pass) nextLevel(side domain.Side) Level {
	s := p.state
	return NextAvailableLevel(s.Orders, s.AnchorIndex, *s.AnchorPrice, *s.LevelSizeQuote, side)
}
