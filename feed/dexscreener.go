package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tradeforge/papertrade/market"
)

// DefaultDexScreenerURL is the DexScreener public API.
const DefaultDexScreenerURL = "https://api.dexscreener.com"

// dexBatchSize is the address limit DexScreener accepts per lookup call.
const dexBatchSize = 30

// discoveryCandidates caps how many boosted tokens per chain are examined
// during a universe refresh.
const discoveryCandidates = 50

// DexScreener serves memecoin ticks from liquidity-pool data, one source
// per chain, and discovers the memecoin universe.
type DexScreener struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func NewDexScreener(baseURL string, log *slog.Logger) *DexScreener {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	if log == nil {
		log = slog.Default()
	}
	return &DexScreener{baseURL: baseURL, client: newHTTPClient(), log: log}
}

func (d *DexScreener) Name() string { return "dexscreener" }

type dexPair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PairCreatedAt int64 `json:"pairCreatedAt"` // unix millis
}

// FetchTicks resolves memecoin symbols ("SOL:<addr>", "BASE:<addr>") to
// pool prices, batched by chain. For tokens trading in several pools the
// pair with the highest liquidity wins.
func (d *DexScreener) FetchTicks(ctx context.Context, symbols []string) ([]market.Tick, error) {
	byChain := make(map[string][]string)
	for _, sym := range symbols {
		prefix, addr, ok := strings.Cut(sym, ":")
		if !ok || market.IsMajor(sym) {
			continue
		}
		switch prefix {
		case "SOL":
			byChain["solana"] = append(byChain["solana"], addr)
		case "BASE":
			byChain["base"] = append(byChain["base"], addr)
		}
	}

	now := time.Now()
	var ticks []market.Tick

	for chain, addrs := range byChain {
		prefix := market.ChainPrefix(chain)
		for i := 0; i < len(addrs); i += dexBatchSize {
			batch := addrs[i:min(i+dexBatchSize, len(addrs))]

			var pairs []dexPair
			url := fmt.Sprintf("%s/tokens/v1/%s/%s", d.baseURL, chain, strings.Join(batch, ","))
			if err := getJSON(ctx, d.client, url, &pairs); err != nil {
				d.log.Warn("dexscreener fetch failed", "chain", chain, "error", err)
				continue
			}

			for _, pair := range bestPairs(pairs) {
				price, err := strconv.ParseFloat(pair.PriceUSD, 64)
				if err != nil || price <= 0 {
					continue
				}
				ticks = append(ticks, market.Tick{
					Symbol:       prefix + ":" + pair.BaseToken.Address,
					Price:        price,
					LiquidityUSD: pair.Liquidity.USD,
					Volume24hUSD: pair.Volume.H24,
					Source:       d.Name(),
					At:           now,
				})
			}
		}
	}
	return ticks, nil
}

// bestPairs keeps, per base token address, the pair with the highest
// liquidity.
func bestPairs(pairs []dexPair) map[string]dexPair {
	best := make(map[string]dexPair)
	for _, pair := range pairs {
		addr := pair.BaseToken.Address
		if existing, ok := best[addr]; !ok || pair.Liquidity.USD > existing.Liquidity.USD {
			best[addr] = pair
		}
	}
	return best
}

type dexBoost struct {
	TokenAddress string `json:"tokenAddress"`
	ChainID      string `json:"chainId"`
}

// DiscoverUniverse scans boosted tokens on the configured chains and
// returns those whose best pair passes the universe filters.
func (d *DexScreener) DiscoverUniverse(ctx context.Context) ([]market.UniverseToken, error) {
	var boosts []dexBoost
	if err := getJSON(ctx, d.client, d.baseURL+"/token-boosts/top/v1", &boosts); err != nil {
		return nil, fmt.Errorf("dexscreener discovery: %w", err)
	}

	now := time.Now()
	var tokens []market.UniverseToken

	for _, chain := range market.MemecoinChains {
		prefix := market.ChainPrefix(chain)
		seen := 0
		for _, boost := range boosts {
			if boost.ChainID != chain {
				continue
			}
			if seen++; seen > discoveryCandidates {
				break
			}

			var pairs []dexPair
			url := fmt.Sprintf("%s/tokens/v1/%s/%s", d.baseURL, chain, boost.TokenAddress)
			if err := getJSON(ctx, d.client, url, &pairs); err != nil || len(pairs) == 0 {
				continue
			}

			best := pairs[0]
			for _, p := range pairs[1:] {
				if p.Liquidity.USD > best.Liquidity.USD {
					best = p
				}
			}

			price, err := strconv.ParseFloat(best.PriceUSD, 64)
			if err != nil || price <= 0 {
				continue
			}

			token := market.UniverseToken{
				Symbol:        prefix + ":" + best.BaseToken.Address,
				Name:          best.BaseToken.Name,
				Chain:         chain,
				Address:       best.BaseToken.Address,
				LiquidityUSD:  best.Liquidity.USD,
				Volume24hUSD:  best.Volume.H24,
				PairCreatedAt: time.UnixMilli(best.PairCreatedAt),
			}
			if !token.MeetsUniverseFilters(now) {
				continue
			}
			tokens = append(tokens, token)
		}
	}
	return tokens, nil
}

func (d *DexScreener) HealthCheck(ctx context.Context) error {
	// Wrapped SOL always has at least one pool.
	var pairs []dexPair
	url := d.baseURL + "/tokens/v1/solana/So11111111111111111111111111111111111111112"
	return getJSON(ctx, d.client, url, &pairs)
}
