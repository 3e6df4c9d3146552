package market

import (
	"sync"
	"time"
)

// Tick is a point-in-time price observation for one symbol.
type Tick struct {
	Symbol       string
	Price        float64
	LiquidityUSD float64 // 0 when the source does not report it
	Volume24hUSD float64
	Source       string
	At           time.Time
}

// PriceStore caches the last accepted tick per symbol. Reads are safe for
// any number of concurrent readers; writes are last-write-wins by tick
// timestamp, since staleness is judged by wall clock rather than version.
type PriceStore struct {
	mu         sync.RWMutex
	ticks      map[string]Tick
	staleAfter time.Duration
	now        func() time.Time
}

func NewPriceStore(staleAfter time.Duration) *PriceStore {
	return &PriceStore{
		ticks:      make(map[string]Tick),
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// Set caches t unless a newer tick for the same symbol is already present.
func (ps *PriceStore) Set(t Tick) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if prev, ok := ps.ticks[t.Symbol]; ok && prev.At.After(t.At) {
		return
	}
	ps.ticks[t.Symbol] = t
}

// Get returns the cached tick for symbol. ok is false when no tick exists
// or the cached one is older than the staleness horizon.
func (ps *PriceStore) Get(symbol string) (Tick, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	t, ok := ps.ticks[symbol]
	if !ok {
		return Tick{}, false
	}
	if ps.now().Sub(t.At) > ps.staleAfter {
		return Tick{}, false
	}
	return t, true
}

// Last returns the most recent tick regardless of staleness. Used as the
// fallback mark when force-closing positions without a live quote.
func (ps *PriceStore) Last(symbol string) (Tick, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	t, ok := ps.ticks[symbol]
	return t, ok
}

// GetAll returns cached, non-stale ticks for each requested symbol.
// Symbols with no usable quote are absent from the result.
func (ps *PriceStore) GetAll(symbols []string) map[string]Tick {
	out := make(map[string]Tick, len(symbols))
	for _, s := range symbols {
		if t, ok := ps.Get(s); ok {
			out[s] = t
		}
	}
	return out
}
