package domain

import "github.com/shopspring/decimal"

// Balance free and exchange-held amounts of a single asset.
type Balance struct {
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

// NewBalance creates a balance from free and locked amounts.
func NewBalance(free, locked decimal.Decimal) Balance {
	return Balance{Free: free, Locked: locked}
}

// ParseBalance parses exchange string amounts.
func ParseBalance(free, locked string) (Balance, error) {
	f, err := decimal.NewFromString(free)
	if err != nil {
		return Balance{}, err
	}
	l, err := decimal.NewFromString(locked)
	if err != nil {
		return Balance{}, err
	}
	return Balance{Free: f, Locked: l}, nil
}

// Total returns free plus locked.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// Hold moves amount from free to locked.
func (b Balance) Hold(amount decimal.Decimal) Balance {
	return Balance{Free: b.Free.Sub(amount), Locked: b.Locked.Add(amount)}
}

// Equal reports whether both amounts are numerically equal.
func (b Balance) Equal(o Balance) bool {
	return b.Free.Equal(o.Free) && b.Locked.Equal(o.Locked)
}
