package scheduler

import (
	"container/list"
	"sync"
	"time"

	"github.com/vadiminshakov/gridbot/internal/domain"
)

const (
	defaultCorrelationTTL     = 10 * time.Minute
	defaultCorrelationMaxSize = 10_000
	defaultFilledMaxSize      = 10_000
)

// Correlation what this process knows about a client order id.
type Correlation struct {
	ID         string
	Side       domain.Side
	Level      int
	Registered time.Time
	// Released is set once the order left the grid state.
	Released time.Time
}

// Correlations bounded table of client order ids created by this process, plus
// the exchange ids of orders seen filled. Safe for concurrent use.
type Correlations struct {
	mu      sync.Mutex
	ttl     time.Duration
	maxSize int
	order   *list.List
	byID    map[string]*list.Element

	filled      map[int64]struct{}
	filledOrder []int64
	filledMax   int

	now func() time.Time
}

// CorrelationOption configures Correlations.
type CorrelationOption func(*Correlations)

// WithTTL sets how long released ids stay known.
func WithTTL(ttl time.Duration) CorrelationOption {
	return func(c *Correlations) {
		c.ttl = ttl
	}
}

// WithMaxSize bounds the number of tracked ids and filled exchange ids.
func WithMaxSize(n int) CorrelationOption {
	return func(c *Correlations) {
		c.maxSize = n
		c.filledMax = n
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) CorrelationOption {
	return func(c *Correlations) {
		c.now = now
	}
}

// NewCorrelations creates an empty table.
func NewCorrelations(opts ...CorrelationOption) *Correlations {
	c := &Correlations{
		ttl:       defaultCorrelationTTL,
		maxSize:   defaultCorrelationMaxSize,
		order:     list.New(),
		byID:      make(map[string]*list.Element),
		filled:    make(map[int64]struct{}),
		filledMax: defaultFilledMaxSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register starts tracking a client order id.
func (c *Correlations) Register(id string, side domain.Side, level int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byID[id]; ok {
		c.order.Remove(el)
	}
	c.byID[id] = c.order.PushBack(&Correlation{ID: id, Side: side, Level: level, Registered: c.now()})
	c.pruneLocked()
}

// Release marks an id as no longer in the grid. It stays known for the TTL so
// late reports still reach the reducer.
func (c *Correlations) Release(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.byID[id]; ok {
		el.Value.(*Correlation).Released = c.now()
	}
	c.pruneLocked()
}

// Lookup returns the correlation for id.
func (c *Correlations) Lookup(id string) (Correlation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.byID[id]
	if !ok {
		return Correlation{}, false
	}
	return *el.Value.(*Correlation), true
}

// Known reports whether any of ids was created by this process.
func (c *Correlations) Known(ids ...string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		if _, ok := c.byID[id]; ok {
			return true
		}
	}
	return false
}

// MarkFilled remembers that the exchange order was filled.
func (c *Correlations) MarkFilled(exchangeID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.filled[exchangeID]; ok {
		return
	}
	c.filled[exchangeID] = struct{}{}
	c.filledOrder = append(c.filledOrder, exchangeID)

	for len(c.filledOrder) > c.filledMax {
		delete(c.filled, c.filledOrder[0])
		c.filledOrder = c.filledOrder[1:]
	}
}

// IsFilled reports whether the exchange order was seen filled.
func (c *Correlations) IsFilled(exchangeID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.filled[exchangeID]
	return ok
}

// Len returns the number of tracked ids.
func (c *Correlations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Correlations) pruneLocked() {
	now := c.now()

	for el := c.order.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*Correlation)
		if !entry.Released.IsZero() && now.Sub(entry.Released) >= c.ttl {
			c.order.Remove(el)
			delete(c.byID, entry.ID)
		}
		el = next
	}

	// over the bound released ids go first, live ones only when nothing else is left
	for el := c.order.Front(); el != nil && c.order.Len() > c.maxSize; {
		next := el.Next()
		if entry := el.Value.(*Correlation); !entry.Released.IsZero() {
			c.order.Remove(el)
			delete(c.byID, entry.ID)
		}
		el = next
	}

	for c.order.Len() > c.maxSize {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.byID, oldest.Value.(*Correlation).ID)
	}
}
