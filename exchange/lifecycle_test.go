package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/papertrade/market"
)

func seedAccount(store *memStore, id string, cash float64) {
	store.accounts[id] = Account{
		ID:        id,
		Cash:      cash,
		Equity:    cash,
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}
}

func seedPosition(store *memStore, p Position) {
	p.Open = true
	cp := p
	store.positions[p.ID] = &cp
}

func TestCheckAndTransitionHealthy(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	md := newMemMarket(map[string]float64{"MAJOR:BTC-USD": 50_000})
	e := testEngine(store, md)

	seedAccount(store, "acct1", 10_000)
	seedPosition(store, Position{
		ID: "pos1", AccountID: "acct1", Symbol: "MAJOR:BTC-USD",
		Side: market.Long, Quantity: 0.1, AvgEntryPrice: 48_000,
	})

	tr, err := e.CheckAndTransition(context.Background(), "acct1")
	require.NoError(t, err)
	assert.False(t, tr.Transitioned)

	// the pass refreshed marks and solvency even without a transition
	a := store.accounts["acct1"]
	assert.InDelta(t, 10_000+(50_000-48_000)*0.1, a.Equity, 1e-9)
	assert.InDelta(t, 0.1*50_000/market.LeverageCap, a.MarginUsed, 1e-9)
	assert.InDelta(t, 50_000, store.positions["pos1"].MarkPrice, 1e-9)
	assert.Equal(t, StatusActive, a.Status)
}

func TestCheckAndTransitionLiquidates(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	md := newMemMarket(map[string]float64{"MAJOR:BTC-USD": 40_000})
	e := testEngine(store, md)

	// long 0.5 BTC from 50k: at 40k the loss is 5000, equity 1500 against
	// a 2000 maintenance requirement on 4000 of margin
	seedAccount(store, "acct1", 6_500)
	seedPosition(store, Position{
		ID: "pos1", AccountID: "acct1", Symbol: "MAJOR:BTC-USD",
		Side: market.Long, Quantity: 0.5, AvgEntryPrice: 50_000,
	})

	tr, err := e.CheckAndTransition(context.Background(), "acct1")
	require.NoError(t, err)
	require.True(t, tr.Transitioned)
	assert.Equal(t, StatusLiquidated, tr.NewState)

	a := store.accounts["acct1"]
	assert.Equal(t, StatusLiquidated, a.Status)
	assert.Equal(t, "MAINTENANCE_MARGIN_BREACH", a.DeathReason)
	// death equity is the equity at the moment of breach, pre-close
	assert.InDelta(t, 1_500, a.DeathEquity, 1e-9)
	require.NotNil(t, a.DeathAt)

	// every position force-closed as a fill opposite the position
	p := store.positions["pos1"]
	assert.False(t, p.Open)
	assert.Zero(t, p.Quantity)
	closePrice := 40_000 * (1 - 0.0005)
	closeFee := 0.5 * 40_000 * 5 / 10_000
	assert.InDelta(t, closePrice, p.MarkPrice, 1e-9)
	assert.InDelta(t, (closePrice-50_000)*0.5-closeFee, p.RealizedPnL, 1e-9)

	assert.Equal(t, "LIQUIDATED", store.lastEventType())
}

func TestCheckAndTransitionZeroes(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	md := newMemMarket(map[string]float64{"MAJOR:ETH-USD": 3_000})
	e := testEngine(store, md)

	seedAccount(store, "acct1", 1_000)
	seedPosition(store, Position{
		ID: "pos1", AccountID: "acct1", Symbol: "MAJOR:ETH-USD",
		Side: market.Long, Quantity: 1, AvgEntryPrice: 4_000,
	})

	tr, err := e.CheckAndTransition(context.Background(), "acct1")
	require.NoError(t, err)
	require.True(t, tr.Transitioned)
	assert.Equal(t, StatusZeroed, tr.NewState)

	a := store.accounts["acct1"]
	assert.Equal(t, "EQUITY_DEPLETED", a.DeathReason)
	assert.Equal(t, "ZEROED", store.lastEventType())
}

func TestCheckAndTransitionIdempotent(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	md := newMemMarket(map[string]float64{"MAJOR:BTC-USD": 40_000})
	e := testEngine(store, md)

	seedAccount(store, "acct1", 6_500)
	seedPosition(store, Position{
		ID: "pos1", AccountID: "acct1", Symbol: "MAJOR:BTC-USD",
		Side: market.Long, Quantity: 0.5, AvgEntryPrice: 50_000,
	})

	ctx := context.Background()
	tr, err := e.CheckAndTransition(ctx, "acct1")
	require.NoError(t, err)
	require.True(t, tr.Transitioned)

	events := len(store.events)
	death := *store.accounts["acct1"].DeathAt

	tr, err = e.CheckAndTransition(ctx, "acct1")
	require.NoError(t, err)
	assert.False(t, tr.Transitioned, "a dead account stays as it died")
	assert.Len(t, store.events, events)
	assert.Equal(t, death, *store.accounts["acct1"].DeathAt)
}

func TestSweep(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	md := newMemMarket(map[string]float64{"MAJOR:BTC-USD": 40_000})
	e := testEngine(store, md)

	seedAccount(store, "healthy", 10_000)
	seedAccount(store, "doomed", 6_500)
	seedPosition(store, Position{
		ID: "pos1", AccountID: "doomed", Symbol: "MAJOR:BTC-USD",
		Side: market.Long, Quantity: 0.5, AvgEntryPrice: 50_000,
	})

	res, err := e.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.Transitioned)

	assert.Equal(t, StatusActive, store.accounts["healthy"].Status)
	assert.Equal(t, StatusLiquidated, store.accounts["doomed"].Status)
}

func TestForceCloseShortPaysBuyFill(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	md := newMemMarket(map[string]float64{"MAJOR:SOL-USD": 150})
	e := testEngine(store, md)

	seedAccount(store, "acct1", 100)
	seedPosition(store, Position{
		ID: "pos1", AccountID: "acct1", Symbol: "MAJOR:SOL-USD",
		Side: market.Short, Quantity: 10, AvgEntryPrice: 100,
	})

	// short from 100 marked at 150: -500 against 100 cash, ZEROED
	tr, err := e.CheckAndTransition(context.Background(), "acct1")
	require.NoError(t, err)
	require.True(t, tr.Transitioned)
	assert.Equal(t, StatusZeroed, tr.NewState)

	// a short closes by buying, so the forced fill lands above mark
	p := store.positions["pos1"]
	assert.False(t, p.Open)
	assert.InDelta(t, 150*(1+0.0005), p.MarkPrice, 1e-9)
}
