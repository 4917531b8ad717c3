package simstate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/gridbot/internal/domain"
)

func TestStore_SaveLoad(t *testing.T) {
	pair := domain.Pair{From: "BTC", To: "FDUSD"}
	store, err := NewStore(t.TempDir(), pair)
	require.NoError(t, err)

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Nil(t, loaded)

	wallet := map[string]decimal.Decimal{
		"BTC":   decimal.RequireFromString("0.01234"),
		"FDUSD": decimal.RequireFromString("1200.5"),
	}
	require.NoError(t, store.Save(NewState(pair, wallet)))

	loaded, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, "BTC_FDUSD", loaded.Pair)

	amounts, err := loaded.Amounts()
	require.NoError(t, err)
	require.True(t, amounts["BTC"].Equal(wallet["BTC"]))
	require.True(t, amounts["FDUSD"].Equal(wallet["FDUSD"]))
}

func TestState_AmountsRejectsGarbage(t *testing.T) {
	s := State{Wallet: map[string]string{"BTC": "lots"}}
	_, err := s.Amounts()
	require.Error(t, err)
}
