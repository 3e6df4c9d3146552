package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tradeforge/papertrade/market"
)

// DefaultCoinbaseURL is the Coinbase Exchange public REST API.
const DefaultCoinbaseURL = "https://api.exchange.coinbase.com"

// Coinbase fetches majors ticks from per-product ticker endpoints.
type Coinbase struct {
	baseURL string
	client  *http.Client
}

func NewCoinbase(baseURL string) *Coinbase {
	if baseURL == "" {
		baseURL = DefaultCoinbaseURL
	}
	return &Coinbase{baseURL: baseURL, client: newHTTPClient()}
}

func (c *Coinbase) Name() string { return "coinbase" }

// productID converts "MAJOR:BTC-USD" to Coinbase's "BTC-USD".
func productID(symbol string) (string, bool) {
	if !market.IsMajor(symbol) {
		return "", false
	}
	return strings.TrimPrefix(symbol, "MAJOR:"), true
}

type coinbaseTicker struct {
	Price  string `json:"price"`
	Volume string `json:"volume"`
}

// FetchTicks queries product tickers concurrently, one request per
// symbol. A symbol whose request fails is simply absent from the result;
// the aggregator falls back to the other source.
func (c *Coinbase) FetchTicks(ctx context.Context, symbols []string) ([]market.Tick, error) {
	now := time.Now()

	var (
		mu    sync.Mutex
		ticks []market.Tick
		wg    sync.WaitGroup
	)

	for _, sym := range symbols {
		product, ok := productID(sym)
		if !ok {
			continue
		}

		wg.Add(1)
		go func(sym, product string) {
			defer wg.Done()

			var ticker coinbaseTicker
			url := fmt.Sprintf("%s/products/%s/ticker", c.baseURL, product)
			if err := getJSON(ctx, c.client, url, &ticker); err != nil {
				return
			}
			price, err := strconv.ParseFloat(ticker.Price, 64)
			if err != nil || price <= 0 {
				return
			}
			volume, _ := strconv.ParseFloat(ticker.Volume, 64)

			mu.Lock()
			ticks = append(ticks, market.Tick{
				Symbol:       sym,
				Price:        price,
				Volume24hUSD: volume * price,
				Source:       c.Name(),
				At:           now,
			})
			mu.Unlock()
		}(sym, product)
	}

	wg.Wait()
	return ticks, nil
}

func (c *Coinbase) HealthCheck(ctx context.Context) error {
	var ticker coinbaseTicker
	return getJSON(ctx, c.client, c.baseURL+"/products/BTC-USD/ticker", &ticker)
}
