package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initializedState() State {
	s := NewState(10)
	s.LevelSizeQuote = DecimalPtr(decimal.NewFromInt(20))
	s.AnchorPrice = DecimalPtr(decimal.NewFromInt(100))
	s.Base = &Balance{Free: decimal.NewFromInt(1)}
	s.Quote = &Balance{Free: decimal.NewFromInt(1000), Locked: decimal.NewFromInt(200)}
	s.LastTrade = &Trade{ID: 1, Price: decimal.NewFromInt(105)}
	return s
}

func TestState_Initialized(t *testing.T) {
	s := NewState(0)
	assert.Equal(t, DefaultTargetTotalLevels, s.TargetTotalLevels)
	assert.False(t, s.Initialized())

	s = initializedState()
	assert.True(t, s.Initialized())

	s.LastTrade = nil
	assert.False(t, s.Initialized())
}

func TestState_Equity(t *testing.T) {
	_, ok := NewState(10).Equity()
	assert.False(t, ok)

	eq, ok := initializedState().Equity()
	require.True(t, ok)
	// 1000 + 200 + 1 * 105
	assert.True(t, eq.Equal(decimal.NewFromInt(1305)), eq.String())
}

func TestState_Validate(t *testing.T) {
	order := func(id string) Order {
		return Order{
			Side:          SideBuy,
			CorrelationID: id,
			Level:         -1,
			Price:         decimal.NewFromInt(80),
			Quantity:      decimal.NewFromFloat(0.1),
			Lifecycle:     LifecycleCreating,
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *State)
		wantErr bool
	}{
		{name: "valid", mutate: func(s *State) { s.Orders = []Order{order("a"), order("b")} }},
		{name: "duplicate correlation id", mutate: func(s *State) { s.Orders = []Order{order("a"), order("a")} }, wantErr: true},
		{name: "empty correlation id", mutate: func(s *State) { s.Orders = []Order{order("")} }, wantErr: true},
		{name: "zero quantity", mutate: func(s *State) {
			o := order("a")
			o.Quantity = decimal.Zero
			s.Orders = []Order{o}
		}, wantErr: true},
		{name: "anchor too far from last trade", mutate: func(s *State) {
			s.LastTrade = &Trade{ID: 2, Price: decimal.NewFromInt(120)}
		}, wantErr: true},
		{name: "non-positive target", mutate: func(s *State) { s.TargetTotalLevels = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := initializedState()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestState_ChangedFields(t *testing.T) {
	prev := initializedState()

	next := prev
	next.LastTrade = &Trade{ID: 2, Price: decimal.NewFromInt(106)}
	next.Book = &Book{Bid: decimal.NewFromInt(105), Ask: decimal.NewFromInt(106)}
	assert.ElementsMatch(t, []Field{FieldLastTrade, FieldBook}, next.ChangedFields(prev))
	assert.False(t, next.HasEssentialChanges(prev))

	next.Quote = &Balance{Free: decimal.NewFromInt(1)}
	assert.True(t, next.HasEssentialChanges(prev))

	// numerically equal decimals are not a change
	same := prev
	same.AnchorPrice = DecimalPtr(decimal.RequireFromString("100.000"))
	assert.True(t, same.Equal(prev))
}

func TestOrderStatus(t *testing.T) {
	assert.True(t, OrderStatusNew.IsLive())
	assert.True(t, OrderStatusPartiallyFilled.IsLive())
	for _, s := range []OrderStatus{OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired, OrderStatusRejected, OrderStatusPendingCancel} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsLive(), s)
	}
}

func TestParsePair(t *testing.T) {
	p, err := ParsePair("btc_fdusd")
	require.NoError(t, err)
	assert.Equal(t, "BTC_FDUSD", p.String())
	assert.Equal(t, "BTCFDUSD", p.Symbol())

	_, err = ParsePair("BTCFDUSD")
	assert.Error(t, err)
}

func TestBalance_Hold(t *testing.T) {
	b := NewBalance(decimal.NewFromInt(10), decimal.NewFromInt(1)).Hold(decimal.NewFromInt(4))
	assert.True(t, b.Free.Equal(decimal.NewFromInt(6)))
	assert.True(t, b.Locked.Equal(decimal.NewFromInt(5)))
	assert.True(t, b.Total().Equal(decimal.NewFromInt(11)))
}
