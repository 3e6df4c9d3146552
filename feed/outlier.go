// Package feed ingests market data: it polls independent price sources,
// reconciles them, filters spikes through a rolling-median outlier
// detector, and maintains the tradable-symbol universe.
package feed

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/tradeforge/papertrade/market"
)

// OutlierDetector keeps a short window of recently accepted prices per
// symbol and rejects ticks that deviate too far from the window median.
// It is a cheap spike filter assuming one bad source at a time, not a
// statistical model. Rejected ticks never enter the window.
type OutlierDetector struct {
	mu         sync.Mutex
	windows    map[string][]float64
	windowSize int
	maxDevPct  float64
}

// OutlierResult reports whether a tick passed the filter.
type OutlierResult struct {
	Valid  bool
	Reason string
}

func NewOutlierDetector() *OutlierDetector {
	return &OutlierDetector{
		windows:    make(map[string][]float64),
		windowSize: market.OutlierWindowSize,
		maxDevPct:  market.MaxOutlierDeviationPct,
	}
}

// Validate accepts or rejects a tick. With fewer than two samples any
// price is accepted (cold start). Acceptance pushes the price into the
// window, evicting the oldest entry beyond the fixed size. Access to a
// symbol's window is serialized so concurrent ingestion stays coherent.
func (d *OutlierDetector) Validate(t market.Tick) OutlierResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	window := d.windows[t.Symbol]
	if len(window) < 2 {
		d.push(t.Symbol, t.Price)
		return OutlierResult{Valid: true}
	}

	med := median(window)
	devPct := math.Abs(t.Price-med) / med * 100
	if devPct > d.maxDevPct {
		return OutlierResult{
			Reason: fmt.Sprintf("price deviates %.1f%% from rolling median (max %.0f%%)", devPct, d.maxDevPct),
		}
	}

	d.push(t.Symbol, t.Price)
	return OutlierResult{Valid: true}
}

// push prepends price and trims the window, most-recent-first.
func (d *OutlierDetector) push(symbol string, price float64) {
	window := append([]float64{price}, d.windows[symbol]...)
	if len(window) > d.windowSize {
		window = window[:d.windowSize]
	}
	d.windows[symbol] = window
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
