package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/gridbot/internal/domain"
)

func TestCorrelations_ReleaseAndTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCorrelations(WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	c.Register("a", domain.SideBuy, -1)
	c.Register("b", domain.SideSell, 2)
	assert.True(t, c.Known("x", "b"))

	entry, ok := c.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, domain.SideSell, entry.Side)
	assert.Equal(t, 2, entry.Level)

	c.Release("a")
	assert.True(t, c.Known("a"), "released ids stay known during the grace period")

	now = now.Add(2 * time.Minute)
	c.Register("c", domain.SideBuy, -2)
	assert.False(t, c.Known("a"))
	// never released, so never expires
	assert.True(t, c.Known("b"))
	assert.Equal(t, 2, c.Len())
}

func TestCorrelations_MaxSize(t *testing.T) {
	c := NewCorrelations(WithMaxSize(2))
	c.Register("a", domain.SideBuy, -1)
	c.Register("b", domain.SideBuy, -2)
	c.Register("c", domain.SideBuy, -3)

	assert.False(t, c.Known("a"))
	assert.True(t, c.Known("b"))
	assert.True(t, c.Known("c"))
	assert.Equal(t, 2, c.Len())

	for id := int64(1); id <= 3; id++ {
		c.MarkFilled(id)
	}
	assert.False(t, c.IsFilled(1))
	assert.True(t, c.IsFilled(2))
	assert.True(t, c.IsFilled(3))
}

func TestCorrelations_MaxSizeEvictsReleasedFirst(t *testing.T) {
	c := NewCorrelations(WithMaxSize(2))
	c.Register("live", domain.SideBuy, -1)
	c.Register("done", domain.SideBuy, -2)
	c.Release("done")

	c.Register("new", domain.SideSell, 1)

	assert.True(t, c.Known("live"))
	assert.True(t, c.Known("new"))
	assert.False(t, c.Known("done"))
	assert.Equal(t, 2, c.Len())
}

func TestCorrelations_ReRegister(t *testing.T) {
	c := NewCorrelations()
	c.Register("a", domain.SideBuy, -1)
	c.Register("a", domain.SideBuy, -4)

	entry, ok := c.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, -4, entry.Level)
	assert.Equal(t, 1, c.Len())
}
