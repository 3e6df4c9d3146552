package market

import "strings"

// OrderSide is the direction of an order.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide is the direction of an open position.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
)

// Opposite returns the order side that closes a position on this side.
func (s PositionSide) Opposite() OrderSide {
	if s == Long {
		return Sell
	}
	return Buy
}

// SideFor maps an order side to the position side it establishes.
func SideFor(s OrderSide) PositionSide {
	if s == Buy {
		return Long
	}
	return Short
}

// AssetClass is resolved once per symbol and threaded through the
// validator, fee and margin calculators, so asset rules live in one place.
type AssetClass int

const (
	// ClassMajor instruments come from the fixed allowlist and may be
	// held long or short with leverage up to LeverageCap.
	ClassMajor AssetClass = iota
	// ClassMemecoin instruments are discovered dynamically and trade
	// spot only: no leverage, no shorting.
	ClassMemecoin
)

// MaxLeverage returns the leverage cap for the class.
func (c AssetClass) MaxLeverage() float64 {
	if c == ClassMajor {
		return LeverageCap
	}
	return 1
}

func (c AssetClass) String() string {
	if c == ClassMajor {
		return "major"
	}
	return "memecoin"
}

// Majors is the fixed allowlist of leveraged instruments.
var Majors = []string{
	"MAJOR:BTC-USD",
	"MAJOR:ETH-USD",
	"MAJOR:SOL-USD",
	"MAJOR:AVAX-USD",
	"MAJOR:LINK-USD",
	"MAJOR:DOGE-USD",
	"MAJOR:ADA-USD",
}

var majorsSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Majors))
	for _, s := range Majors {
		m[s] = struct{}{}
	}
	return m
}()

// IsMajor reports whether symbol is on the majors allowlist.
func IsMajor(symbol string) bool {
	_, ok := majorsSet[symbol]
	return ok
}

// Classify resolves the asset class for a canonical symbol.
func Classify(symbol string) AssetClass {
	if IsMajor(symbol) {
		return ClassMajor
	}
	return ClassMemecoin
}

// MemecoinChains are the chains the universe discovery scans.
var MemecoinChains = []string{"solana", "base"}

// ChainPrefix maps a chain id to its symbol prefix ("SOL:<addr>").
func ChainPrefix(chain string) string {
	if chain == "solana" {
		return "SOL"
	}
	return strings.ToUpper(chain)
}
