// Package chain supplies the monotonic height counter the marketplace uses
// as its clock for due dates and record timestamps.
package chain

import (
	"sync/atomic"
	"time"
)

// Clock reports the current height. Heights never decrease.
type Clock interface {
	CurrentHeight() int64
}

// Ticker derives height from wall time: one height unit per interval since
// a fixed base. Two processes with the same base and interval agree on
// height to within clock skew.
type Ticker struct {
	base     time.Time
	interval time.Duration
}

func NewTicker(base time.Time, interval time.Duration) *Ticker {
	if interval <= 0 {
		interval = time.Second
	}
	return &Ticker{base: base, interval: interval}
}

func (t *Ticker) CurrentHeight() int64 {
	elapsed := time.Since(t.base)
	if elapsed < 0 {
		return 0
	}
	return int64(elapsed / t.interval)
}

// Manual is a hand-advanced clock for tests.
type Manual struct {
	height atomic.Int64
}

func NewManual(start int64) *Manual {
	m := &Manual{}
	m.height.Store(start)
	return m
}

func (m *Manual) CurrentHeight() int64 { return m.height.Load() }

func (m *Manual) Advance(n int64) { m.height.Add(n) }

func (m *Manual) Set(h int64) { m.height.Store(h) }
