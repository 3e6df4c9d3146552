package feed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tradeforge/papertrade/market"
)

// DefaultKrakenURL is Kraken's public REST API.
const DefaultKrakenURL = "https://api.kraken.com"

// krakenPairs maps canonical major symbols to Kraken pair codes.
var krakenPairs = map[string]string{
	"MAJOR:BTC-USD":  "XXBTZUSD",
	"MAJOR:ETH-USD":  "XETHZUSD",
	"MAJOR:SOL-USD":  "SOLUSD",
	"MAJOR:AVAX-USD": "AVAXUSD",
	"MAJOR:LINK-USD": "LINKUSD",
	"MAJOR:DOGE-USD": "XDGUSD",
	"MAJOR:ADA-USD":  "ADAUSD",
}

// Kraken fetches majors ticks from the Kraken public ticker endpoint.
type Kraken struct {
	baseURL string
	client  *http.Client
}

func NewKraken(baseURL string) *Kraken {
	if baseURL == "" {
		baseURL = DefaultKrakenURL
	}
	return &Kraken{baseURL: baseURL, client: newHTTPClient()}
}

func (k *Kraken) Name() string { return "kraken" }

type krakenTicker struct {
	C []string `json:"c"` // last trade: [price, lot volume]
	V []string `json:"v"` // volume: [today, last 24h]
	P []string `json:"p"` // vwap: [today, last 24h]
}

type krakenTickerResponse struct {
	Error  []string                `json:"error"`
	Result map[string]krakenTicker `json:"result"`
}

// FetchTicks requests all mapped pairs in a single call and converts the
// results back to canonical symbols. Unknown symbols are skipped.
func (k *Kraken) FetchTicks(ctx context.Context, symbols []string) ([]market.Tick, error) {
	pairs := make([]string, 0, len(symbols))
	bySymbol := make(map[string]string, len(symbols))
	for _, sym := range symbols {
		if pair, ok := krakenPairs[sym]; ok {
			pairs = append(pairs, pair)
			bySymbol[pair] = sym
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	url := fmt.Sprintf("%s/0/public/Ticker?pair=%s", k.baseURL, strings.Join(pairs, ","))
	var resp krakenTickerResponse
	if err := getJSON(ctx, k.client, url, &resp); err != nil {
		return nil, fmt.Errorf("kraken ticker: %w", err)
	}
	if len(resp.Error) > 0 {
		return nil, fmt.Errorf("kraken ticker: %s", strings.Join(resp.Error, "; "))
	}

	now := time.Now()
	var ticks []market.Tick
	for pair, ticker := range resp.Result {
		sym, ok := bySymbol[pair]
		if !ok || len(ticker.C) == 0 {
			continue
		}
		price, err := strconv.ParseFloat(ticker.C[0], 64)
		if err != nil || price <= 0 {
			continue
		}
		var volume24h float64
		if len(ticker.V) > 1 && len(ticker.P) > 1 {
			vol, verr := strconv.ParseFloat(ticker.V[1], 64)
			vwap, perr := strconv.ParseFloat(ticker.P[1], 64)
			if verr == nil && perr == nil {
				volume24h = vol * vwap
			}
		}
		ticks = append(ticks, market.Tick{
			Symbol:       sym,
			Price:        price,
			Volume24hUSD: volume24h,
			Source:       k.Name(),
			At:           now,
		})
	}
	return ticks, nil
}

func (k *Kraken) HealthCheck(ctx context.Context) error {
	var resp struct {
		Error []string `json:"error"`
	}
	return getJSON(ctx, k.client, k.baseURL+"/0/public/SystemStatus", &resp)
}
