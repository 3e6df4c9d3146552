package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tradeforge/papertrade/market"
)

// Storage is the slice of persistence the aggregator needs. Implemented
// by store.SQLite.
type Storage interface {
	InsertTicks(ctx context.Context, ticks []market.Tick) error
	LatestTicks(ctx context.Context) ([]market.Tick, error)
	UpsertUniverseToken(ctx context.Context, t market.UniverseToken, refreshedAt time.Time) error
	ActiveUniverse(ctx context.Context) ([]market.UniverseToken, error)
}

// Aggregator pulls ticks from independent sources, reconciles them,
// pushes them through the outlier detector into the price store, and
// maintains the tradable universe. It implements exchange.MarketData.
type Aggregator struct {
	storage  Storage
	prices   *market.PriceStore
	detector *OutlierDetector
	majors   []Source
	memecoin *DexScreener
	log      *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	universe   []market.UniverseToken
	universeAt time.Time
}

func NewAggregator(storage Storage, majors []Source, memecoin *DexScreener, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		storage:  storage,
		prices:   market.NewPriceStore(market.PriceCacheTTL),
		detector: NewOutlierDetector(),
		majors:   majors,
		memecoin: memecoin,
		log:      log,
		now:      time.Now,
	}
}

// WarmCache rehydrates the price store from the durable tick history.
func (a *Aggregator) WarmCache(ctx context.Context) error {
	ticks, err := a.storage.LatestTicks(ctx)
	if err != nil {
		return fmt.Errorf("warm price cache: %w", err)
	}
	for _, t := range ticks {
		a.prices.Set(t)
	}
	return nil
}

// Quote returns a usable (non-stale) tick for symbol.
func (a *Aggregator) Quote(symbol string) (market.Tick, bool) {
	return a.prices.Get(symbol)
}

// LastMark returns the freshest cached tick regardless of staleness.
func (a *Aggregator) LastMark(symbol string) (market.Tick, bool) {
	return a.prices.Last(symbol)
}

// GetQuotes returns usable ticks for each symbol; symbols without a
// usable quote are absent from the map.
func (a *Aggregator) GetQuotes(symbols []string) map[string]market.Tick {
	return a.prices.GetAll(symbols)
}

// IngestTick runs one tick through the outlier detector and, when
// accepted, caches and persists it. The rejection is an expected outcome
// for the caller, not an error.
func (a *Aggregator) IngestTick(ctx context.Context, t market.Tick) (OutlierResult, error) {
	res := a.detector.Validate(t)
	if !res.Valid {
		a.log.Warn("tick rejected as outlier", "symbol", t.Symbol, "price", t.Price, "reason", res.Reason)
		return res, nil
	}
	a.prices.Set(t)
	if err := a.storage.InsertTicks(ctx, []market.Tick{t}); err != nil {
		return res, fmt.Errorf("persist tick: %w", err)
	}
	return res, nil
}

// PollMajors fetches the majors allowlist from every configured source
// concurrently, reconciles per symbol, and ingests the result. Rejected
// outliers are dropped silently from this cycle.
func (a *Aggregator) PollMajors(ctx context.Context) ([]market.Tick, error) {
	type fetchResult struct {
		source string
		ticks  []market.Tick
	}

	results := make(chan fetchResult, len(a.majors))
	var wg sync.WaitGroup
	for _, src := range a.majors {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			ticks, err := src.FetchTicks(ctx, market.Majors)
			if err != nil {
				a.log.Warn("majors source failed", "source", src.Name(), "error", err)
				return
			}
			results <- fetchResult{source: src.Name(), ticks: ticks}
		}(src)
	}
	wg.Wait()
	close(results)

	bySymbol := make(map[string][]market.Tick)
	for res := range results {
		for _, t := range res.ticks {
			bySymbol[t.Symbol] = append(bySymbol[t.Symbol], t)
		}
	}

	now := a.now()
	var accepted []market.Tick
	for _, sym := range market.Majors {
		reports := bySymbol[sym]
		if len(reports) == 0 {
			continue
		}
		tick := a.reconcile(sym, reports, now)
		if res := a.detector.Validate(tick); !res.Valid {
			a.log.Warn("tick rejected as outlier", "symbol", sym, "price", tick.Price, "reason", res.Reason)
			continue
		}
		a.prices.Set(tick)
		accepted = append(accepted, tick)
	}

	if err := a.storage.InsertTicks(ctx, accepted); err != nil {
		return accepted, fmt.Errorf("persist majors ticks: %w", err)
	}
	return accepted, nil
}

// reconcile merges the reports for one symbol into a single mark: the
// median of the sources (mean when two report). Divergence beyond the
// warning threshold is logged but the merged price still proceeds.
func (a *Aggregator) reconcile(symbol string, reports []market.Tick, now time.Time) market.Tick {
	if len(reports) == 1 {
		t := reports[0]
		t.At = now
		return t
	}

	prices := make([]float64, len(reports))
	names := make([]string, len(reports))
	var volume float64
	for i, r := range reports {
		prices[i] = r.Price
		names[i] = r.Source
		if volume == 0 {
			volume = r.Volume24hUSD
		}
	}
	sort.Float64s(prices)
	sort.Strings(names)

	lo, hi := prices[0], prices[len(prices)-1]
	if divergence := math.Abs(hi-lo) / lo * 100; divergence > market.SourceDivergenceWarnPct {
		a.log.Warn("source divergence on majors tick",
			"symbol", symbol,
			"low", lo,
			"high", hi,
			"divergence_pct", divergence,
		)
	}

	return market.Tick{
		Symbol:       symbol,
		Price:        median(prices),
		Volume24hUSD: volume,
		Source:       "median:" + strings.Join(names, "+"),
		At:           now,
	}
}

// PollMemecoins fetches pool prices for the discovered part of the
// universe and ingests them through the detector.
func (a *Aggregator) PollMemecoins(ctx context.Context) ([]market.Tick, error) {
	universe, err := a.Universe(ctx)
	if err != nil {
		return nil, err
	}

	var symbols []string
	for _, t := range universe {
		if !t.IsMajor {
			symbols = append(symbols, t.Symbol)
		}
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	ticks, err := a.memecoin.FetchTicks(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("poll memecoins: %w", err)
	}

	var accepted []market.Tick
	for _, t := range ticks {
		if res := a.detector.Validate(t); !res.Valid {
			a.log.Warn("tick rejected as outlier", "symbol", t.Symbol, "price", t.Price, "reason", res.Reason)
			continue
		}
		a.prices.Set(t)
		accepted = append(accepted, t)
	}

	if err := a.storage.InsertTicks(ctx, accepted); err != nil {
		return accepted, fmt.Errorf("persist memecoin ticks: %w", err)
	}
	return accepted, nil
}

// RefreshUniverse re-runs memecoin discovery, upserts the full universe
// (majors plus discoveries) and refreshes the in-memory cache.
func (a *Aggregator) RefreshUniverse(ctx context.Context) ([]market.UniverseToken, error) {
	discovered, err := a.memecoin.DiscoverUniverse(ctx)
	if err != nil {
		return nil, err
	}
	a.log.Info("universe discovery complete", "memecoins", len(discovered))

	full := append(market.MajorTokens(), discovered...)
	now := a.now()
	for _, t := range full {
		if err := a.storage.UpsertUniverseToken(ctx, t, now); err != nil {
			return nil, fmt.Errorf("upsert universe token %s: %w", t.Symbol, err)
		}
	}

	a.mu.Lock()
	a.universe = full
	a.universeAt = now
	a.mu.Unlock()

	return full, nil
}

// Universe returns the tradable universe from the in-memory cache, the
// store, or the majors allowlist as a last resort.
func (a *Aggregator) Universe(ctx context.Context) ([]market.UniverseToken, error) {
	a.mu.Lock()
	if a.universe != nil && a.now().Sub(a.universeAt) < market.UniverseCacheTTL {
		cached := a.universe
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	stored, err := a.storage.ActiveUniverse(ctx)
	if err != nil {
		return nil, fmt.Errorf("load universe: %w", err)
	}
	if len(stored) == 0 {
		stored = market.MajorTokens()
	}

	a.mu.Lock()
	a.universe = stored
	a.universeAt = a.now()
	a.mu.Unlock()

	return stored, nil
}

// HealthCheck probes every source and reports failures by source name.
func (a *Aggregator) HealthCheck(ctx context.Context) map[string]error {
	out := make(map[string]error, len(a.majors)+1)
	for _, src := range a.majors {
		out[src.Name()] = src.HealthCheck(ctx)
	}
	out[a.memecoin.Name()] = a.memecoin.HealthCheck(ctx)
	return out
}
