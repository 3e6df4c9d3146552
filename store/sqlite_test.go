package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeforge/papertrade/exchange"
	"github.com/tradeforge/papertrade/market"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "papertrade.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedAccount(t *testing.T, s *SQLite, id string, cash float64) {
	t.Helper()
	require.NoError(t, s.CreateAccount(context.Background(), exchange.Account{
		ID:        id,
		Cash:      cash,
		Equity:    cash,
		Status:    exchange.StatusActive,
		CreatedAt: time.Now(),
	}))
}

func TestAccountRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAccount(t, s, "acct1", market.StartingBalance)

	got, err := s.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.Equal(t, "acct1", got.ID)
	assert.Equal(t, market.StartingBalance, got.Cash)
	assert.Equal(t, exchange.StatusActive, got.Status)
	assert.Nil(t, got.DeathAt)

	_, err = s.GetAccount(ctx, "missing")
	assert.Error(t, err)
}

func TestListActiveAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAccount(t, s, "a1", 10_000)
	seedAccount(t, s, "a2", 10_000)
	require.NoError(t, s.MarkAccountTerminal(ctx, "a2", exchange.StatusZeroed, "EQUITY_DEPLETED", 0, time.Now()))

	active, err := s.ListActiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "a1", active[0].ID)
}

func TestMarkAccountTerminalGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedAccount(t, s, "acct1", 100)

	first := time.Now().Add(-time.Minute).UTC()
	require.NoError(t, s.MarkAccountTerminal(ctx, "acct1", exchange.StatusLiquidated, "MAINTENANCE_MARGIN_BREACH", 1_500, first))
	// a second transition must not overwrite how the account died
	require.NoError(t, s.MarkAccountTerminal(ctx, "acct1", exchange.StatusZeroed, "EQUITY_DEPLETED", 0, time.Now()))

	got, err := s.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.Equal(t, exchange.StatusLiquidated, got.Status)
	assert.Equal(t, "MAINTENANCE_MARGIN_BREACH", got.DeathReason)
	assert.InDelta(t, 1_500, got.DeathEquity, 1e-9)
	require.NotNil(t, got.DeathAt)
	assert.WithinDuration(t, first, *got.DeathAt, time.Second)
}

func TestApplySettlementOpensPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seedAccount(t, s, "acct1", 10_000)

	st := exchange.Settlement{
		Order: exchange.Order{
			ID: "ord1", AccountID: "acct1", Symbol: "MAJOR:BTC-USD",
			Side: market.Buy, Quantity: 0.1, Leverage: 5,
			Status: exchange.OrderFilled, RequestedPrice: 50_000,
			FilledPrice: 50_025, Fee: 2.5, SlippageBps: 5, CreatedAt: now,
		},
		Trade: exchange.Trade{
			ID: "trd1", OrderID: "ord1", AccountID: "acct1",
			Symbol: "MAJOR:BTC-USD", Side: market.Buy, Quantity: 0.1,
			Price: 50_025, Fee: 2.5, CreatedAt: now,
		},
		InsertPosition: &exchange.Position{
			ID: "pos1", AccountID: "acct1", Symbol: "MAJOR:BTC-USD",
			Side: market.Long, Quantity: 0.1, AvgEntryPrice: 50_025,
			MarkPrice: 50_025, Open: true, OpenedAt: now,
		},
		AccountID: "acct1",
		NewCash:   10_000 - (0.1*50_025 + 2.5),
		Event: exchange.AccountEvent{
			ID: "evt1", AccountID: "acct1", Type: "ORDER_FILLED",
			Payload:   map[string]any{"orderId": "ord1"},
			CreatedAt: now,
		},
	}
	require.NoError(t, s.ApplySettlement(ctx, st))

	account, err := s.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.InDelta(t, st.NewCash, account.Cash, 1e-9)

	positions, err := s.OpenPositions(ctx, "acct1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, market.Long, positions[0].Side)
	assert.InDelta(t, 50_025, positions[0].AvgEntryPrice, 1e-9)

	orders, err := s.ListOrders(ctx, "acct1", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, exchange.OrderFilled, orders[0].Status)

	trades, err := s.ListTrades(ctx, "acct1", 0)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "ord1", trades[0].OrderID)

	events, err := s.ListEvents(ctx, "acct1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "ORDER_FILLED", events[0].Type)
	assert.Equal(t, "ord1", events[0].Payload["orderId"])
}

func TestApplySettlementClosesPosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seedAccount(t, s, "acct1", 5_000)
	require.NoError(t, s.ApplySettlement(ctx, exchange.Settlement{
		Order: exchange.Order{ID: "ord1", AccountID: "acct1", Symbol: "MAJOR:SOL-USD",
			Side: market.Buy, Quantity: 1, Status: exchange.OrderFilled, CreatedAt: now},
		Trade: exchange.Trade{ID: "trd1", OrderID: "ord1", AccountID: "acct1",
			Symbol: "MAJOR:SOL-USD", Side: market.Buy, Quantity: 1, Price: 100, CreatedAt: now},
		InsertPosition: &exchange.Position{ID: "pos1", AccountID: "acct1",
			Symbol: "MAJOR:SOL-USD", Side: market.Long, Quantity: 1,
			AvgEntryPrice: 100, MarkPrice: 100, Open: true, OpenedAt: now},
		AccountID: "acct1", NewCash: 4_900,
		Event: exchange.AccountEvent{ID: "evt1", AccountID: "acct1",
			Type: "ORDER_FILLED", Payload: map[string]any{}, CreatedAt: now},
	}))

	require.NoError(t, s.ApplySettlement(ctx, exchange.Settlement{
		Order: exchange.Order{ID: "ord2", AccountID: "acct1", Symbol: "MAJOR:SOL-USD",
			Side: market.Sell, Quantity: 1, Status: exchange.OrderFilled, CreatedAt: now},
		Trade: exchange.Trade{ID: "trd2", OrderID: "ord2", AccountID: "acct1",
			Symbol: "MAJOR:SOL-USD", Side: market.Sell, Quantity: 1, Price: 110,
			RealizedPnL: 10, CreatedAt: now},
		ClosePosition: &exchange.PositionClose{
			PositionID: "pos1", ClosePrice: 110, RealizedPnL: 10, ClosedAt: now,
		},
		AccountID: "acct1", NewCash: 5_020,
		Event: exchange.AccountEvent{ID: "evt2", AccountID: "acct1",
			Type: "ORDER_FILLED", Payload: map[string]any{}, CreatedAt: now},
	}))

	positions, err := s.OpenPositions(ctx, "acct1")
	require.NoError(t, err)
	assert.Empty(t, positions)

	account, err := s.GetAccount(ctx, "acct1")
	require.NoError(t, err)
	assert.InDelta(t, 5_020, account.Cash, 1e-9)
}

func TestForceClosePosition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	seedAccount(t, s, "acct1", 5_000)
	require.NoError(t, s.ApplySettlement(ctx, exchange.Settlement{
		Order: exchange.Order{ID: "ord1", AccountID: "acct1", Symbol: "MAJOR:BTC-USD",
			Side: market.Buy, Quantity: 0.5, Status: exchange.OrderFilled, CreatedAt: now},
		Trade: exchange.Trade{ID: "trd1", OrderID: "ord1", AccountID: "acct1",
			Symbol: "MAJOR:BTC-USD", Side: market.Buy, Quantity: 0.5, Price: 50_000, CreatedAt: now},
		InsertPosition: &exchange.Position{ID: "pos1", AccountID: "acct1",
			Symbol: "MAJOR:BTC-USD", Side: market.Long, Quantity: 0.5,
			AvgEntryPrice: 50_000, MarkPrice: 50_000, Open: true, OpenedAt: now},
		AccountID: "acct1", NewCash: 5_000,
		Event: exchange.AccountEvent{ID: "evt1", AccountID: "acct1",
			Type: "ORDER_FILLED", Payload: map[string]any{}, CreatedAt: now},
	}))

	require.NoError(t, s.ForceClosePosition(ctx, exchange.PositionClose{
		PositionID: "pos1", ClosePrice: 39_980, RealizedPnL: -5_011, ClosedAt: now,
	}))

	positions, err := s.OpenPositions(ctx, "acct1")
	require.NoError(t, err)
	assert.Empty(t, positions)

	// closing again is a no-op thanks to the is_open guard
	require.NoError(t, s.ForceClosePosition(ctx, exchange.PositionClose{
		PositionID: "pos1", ClosePrice: 1, RealizedPnL: 0, ClosedAt: now,
	}))
}

func TestTickHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	require.NoError(t, s.InsertTicks(ctx, []market.Tick{
		{Symbol: "MAJOR:BTC-USD", Price: 49_000, Source: "kraken", At: base},
		{Symbol: "MAJOR:BTC-USD", Price: 50_000, Source: "kraken", At: base.Add(30 * time.Second)},
		{Symbol: "MAJOR:ETH-USD", Price: 3_000, Source: "coinbase", At: base},
	}))
	require.NoError(t, s.InsertTicks(ctx, nil), "empty batch is a no-op")

	latest, err := s.LatestTicks(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 2)

	bySym := make(map[string]market.Tick, len(latest))
	for _, tk := range latest {
		bySym[tk.Symbol] = tk
	}
	assert.InDelta(t, 50_000, bySym["MAJOR:BTC-USD"].Price, 1e-9)
	assert.InDelta(t, 3_000, bySym["MAJOR:ETH-USD"].Price, 1e-9)
}

func TestUniverseUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	tok := market.UniverseToken{
		Symbol:        "SOL:Bonk111",
		Name:          "Bonk",
		Chain:         "solana",
		Address:       "Bonk111",
		LiquidityUSD:  80_000,
		Volume24hUSD:  40_000,
		PairCreatedAt: now.Add(-48 * time.Hour),
	}
	require.NoError(t, s.UpsertUniverseToken(ctx, tok, now))

	tok.LiquidityUSD = 95_000
	require.NoError(t, s.UpsertUniverseToken(ctx, tok, now.Add(time.Minute)))
	require.NoError(t, s.UpsertUniverseToken(ctx, market.UniverseToken{
		Symbol: "MAJOR:BTC-USD", Name: "BTC", IsMajor: true,
	}, now))

	universe, err := s.ActiveUniverse(ctx)
	require.NoError(t, err)
	require.Len(t, universe, 2)

	// majors sort first
	assert.Equal(t, "MAJOR:BTC-USD", universe[0].Symbol)
	assert.True(t, universe[0].IsMajor)
	assert.Equal(t, "SOL:Bonk111", universe[1].Symbol)
	assert.InDelta(t, 95_000, universe[1].LiquidityUSD, 1e-9)
}
