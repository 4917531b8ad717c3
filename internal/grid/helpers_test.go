package grid

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/gridbot/internal/domain"
	"go.uber.org/zap"
)

var testPair = domain.Pair{From: "BTC", To: "FDUSD"}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("c%d", n)
	}
}

func newTestReducer(t testing.TB) *Reducer {
	r, err := NewReducer(zap.NewNop(), testPair, DefaultParams(), WithCorrelationIDs(sequentialIDs()))
	require.NoError(t, err)
	return r
}

// gridState returns an initialized state anchored at level 0.
func gridState(base, quote, price, levelSize string) domain.State {
	s := domain.NewState(10)
	s.LevelSizeQuote = domain.DecimalPtr(d(levelSize))
	s.AnchorPrice = domain.DecimalPtr(d(price))
	s.Base = &domain.Balance{Free: d(base), Locked: decimal.Zero}
	s.Quote = &domain.Balance{Free: d(quote), Locked: decimal.Zero}
	s.LastTrade = &domain.Trade{ID: 1, Price: d(price)}
	return s
}

func order(id string, side domain.Side, level int, lc domain.Lifecycle) domain.Order {
	return domain.Order{
		Side:          side,
		CorrelationID: id,
		Level:         level,
		Price:         decimal.NewFromInt(int64(100 + level)),
		Quantity:      d("0.1"),
		Lifecycle:     lc,
	}
}

func createEffects(effects []domain.Effect) []domain.CreateOrder {
	var out []domain.CreateOrder
	for _, e := range effects {
		if c, ok := e.(domain.CreateOrder); ok {
			out = append(out, c)
		}
	}
	return out
}

func cancelEffects(effects []domain.Effect) []domain.CancelOrder {
	var out []domain.CancelOrder
	for _, e := range effects {
		if c, ok := e.(domain.CancelOrder); ok {
			out = append(out, c)
		}
	}
	return out
}
