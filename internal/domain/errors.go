package domain

import "github.com/pkg/errors"

// ErrUnknownOrder the exchange does not know the order or it is already resolved.
var ErrUnknownOrder = errors.New("unknown or already resolved order")
