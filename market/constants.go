package market

import "time"

// Trading constants. These are authoritative: every calculator derives from
// them rather than carrying its own copies.
const (
	LeverageCap      = 5.0
	MaintenanceRatio = 0.5
	ZeroEpsilon      = 0.01

	StartingBalance = 10_000.0

	MajorsFeeBps   = 5.0
	MemecoinFeeBps = 30.0

	MajorsSlippageBps       = 5.0
	MemecoinBaseSlippageBps = 10.0
	MaxSlippageBps          = 200.0

	// PriceStaleness is the horizon after which a cached tick no longer
	// counts as a usable quote.
	PriceStaleness = 60 * time.Second

	// PriceCacheTTL / UniverseCacheTTL bound how long the in-memory caches
	// serve reads before falling back to the store.
	PriceCacheTTL    = 30 * time.Second
	UniverseCacheTTL = 10 * time.Minute
)

// Universe discovery filters for memecoins.
const (
	MinLiquidityUSD = 50_000.0
	MinVolume24hUSD = 25_000.0
	MinPairAge      = 24 * time.Hour
)

// Outlier detection parameters.
const (
	OutlierWindowSize      = 5
	MaxOutlierDeviationPct = 20.0
)

// Per-account order throttle: at most OrderBurst orders per OrderRateWindow.
const (
	OrderBurst      = 3
	OrderRateWindow = 60 * time.Second
)

// SourceDivergenceWarnPct is the spread between two majors sources above
// which the aggregator logs a warning (it still proceeds with the mean).
const SourceDivergenceWarnPct = 2.0
