package market

import (
	"strings"
	"time"
)

// UniverseToken describes one tradable symbol. Majors are static; memecoins
// are discovered and re-validated against the universe filters on refresh.
type UniverseToken struct {
	Symbol        string
	Name          string
	Chain         string // empty for majors
	Address       string // empty for majors
	IsMajor       bool
	LiquidityUSD  float64
	Volume24hUSD  float64
	PairCreatedAt time.Time
}

// MajorTokens returns the allowlisted majors as universe entries.
func MajorTokens() []UniverseToken {
	out := make([]UniverseToken, 0, len(Majors))
	for _, sym := range Majors {
		name := strings.TrimSuffix(strings.TrimPrefix(sym, "MAJOR:"), "-USD")
		out = append(out, UniverseToken{Symbol: sym, Name: name, IsMajor: true})
	}
	return out
}

// MeetsUniverseFilters reports whether a discovered pair qualifies for the
// tradable universe at the given instant.
func (t UniverseToken) MeetsUniverseFilters(now time.Time) bool {
	if t.IsMajor {
		return true
	}
	if t.LiquidityUSD < MinLiquidityUSD {
		return false
	}
	if t.Volume24hUSD < MinVolume24hUSD {
		return false
	}
	if t.PairCreatedAt.IsZero() || now.Sub(t.PairCreatedAt) < MinPairAge {
		return false
	}
	return true
}

// Symbols projects a universe to its symbol set.
func Symbols(universe []UniverseToken) []string {
	out := make([]string, 0, len(universe))
	for _, t := range universe {
		out = append(out, t.Symbol)
	}
	return out
}
