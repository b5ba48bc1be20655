package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickerHeight(t *testing.T) {
	base := time.Now().Add(-10 * time.Second)
	clock := NewTicker(base, time.Second)
	h := clock.CurrentHeight()
	assert.GreaterOrEqual(t, h, int64(10))
	assert.Less(t, h, int64(12))

	// heights never decrease
	assert.GreaterOrEqual(t, clock.CurrentHeight(), h)
}

func TestTickerBeforeBase(t *testing.T) {
	clock := NewTicker(time.Now().Add(time.Hour), time.Second)
	assert.Equal(t, int64(0), clock.CurrentHeight())
}

func TestManual(t *testing.T) {
	clock := NewManual(100)
	assert.Equal(t, int64(100), clock.CurrentHeight())
	clock.Advance(5)
	assert.Equal(t, int64(105), clock.CurrentHeight())
	clock.Set(42)
	assert.Equal(t, int64(42), clock.CurrentHeight())
}
