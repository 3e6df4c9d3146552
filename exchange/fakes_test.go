package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tradeforge/papertrade/market"
)

// memStore is an in-memory Store for engine tests, mirroring the sqlite
// implementation's semantics including the terminal-transition guard.
type memStore struct {
	mu        sync.Mutex
	accounts  map[string]Account
	positions map[string]*Position
	orders    []Order
	trades    []Trade
	events    []AccountEvent

	failSettle bool
}

func newMemStore() *memStore {
	return &memStore{
		accounts:  make(map[string]Account),
		positions: make(map[string]*Position),
	}
}

func (m *memStore) CreateAccount(_ context.Context, a Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = a
	return nil
}

func (m *memStore) GetAccount(_ context.Context, id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("account %s not found", id)
	}
	return a, nil
}

func (m *memStore) ListActiveAccounts(context.Context) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Account
	for _, a := range m.accounts {
		if a.Status == StatusActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memStore) UpdateAccountSolvency(_ context.Context, id string, equity, marginUsed float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	a.Equity = equity
	a.MarginUsed = marginUsed
	m.accounts[id] = a
	return nil
}

func (m *memStore) MarkAccountTerminal(_ context.Context, id string, status AccountStatus, reason string, equity float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	if a.Status != StatusActive {
		return nil
	}
	a.Status = status
	a.DeathReason = reason
	a.DeathEquity = equity
	a.DeathAt = &at
	m.accounts[id] = a
	return nil
}

func (m *memStore) OpenPositions(_ context.Context, accountID string) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Position
	for _, p := range m.positions {
		if p.AccountID == accountID && p.Open {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *memStore) RefreshPositionMark(_ context.Context, positionID string, markPrice, unrealizedPnL float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.positions[positionID]; ok {
		p.MarkPrice = markPrice
		p.UnrealizedPnL = unrealizedPnL
	}
	return nil
}

func (m *memStore) ForceClosePosition(_ context.Context, c PositionClose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[c.PositionID]
	if !ok {
		return fmt.Errorf("position %s not found", c.PositionID)
	}
	p.Open = false
	p.Quantity = 0
	p.UnrealizedPnL = 0
	p.RealizedPnL = c.RealizedPnL
	p.MarkPrice = c.ClosePrice
	p.ClosedAt = &c.ClosedAt
	return nil
}

func (m *memStore) InsertOrder(_ context.Context, o Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, o)
	return nil
}

func (m *memStore) ApplySettlement(_ context.Context, s Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSettle {
		return fmt.Errorf("database is locked")
	}

	m.orders = append(m.orders, s.Order)
	m.trades = append(m.trades, s.Trade)

	if s.ClosePosition != nil {
		if p, ok := m.positions[s.ClosePosition.PositionID]; ok {
			p.Open = false
			p.Quantity = 0
			p.UnrealizedPnL = 0
			p.RealizedPnL = s.ClosePosition.RealizedPnL
			p.MarkPrice = s.ClosePosition.ClosePrice
			p.ClosedAt = &s.ClosePosition.ClosedAt
		}
	}
	if s.UpdatePosition != nil {
		cp := *s.UpdatePosition
		m.positions[cp.ID] = &cp
	}
	if s.InsertPosition != nil {
		cp := *s.InsertPosition
		m.positions[cp.ID] = &cp
	}

	a := m.accounts[s.AccountID]
	a.Cash = s.NewCash
	m.accounts[s.AccountID] = a

	m.events = append(m.events, s.Event)
	return nil
}

func (m *memStore) AppendEvent(_ context.Context, e AccountEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) openCount(accountID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.positions {
		if p.AccountID == accountID && p.Open {
			n++
		}
	}
	return n
}

func (m *memStore) lastEventType() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return ""
	}
	return m.events[len(m.events)-1].Type
}

// memMarket serves quotes from a fixed map, every symbol tradable.
type memMarket struct {
	mu     sync.Mutex
	quotes map[string]market.Tick
}

func newMemMarket(prices map[string]float64) *memMarket {
	quotes := make(map[string]market.Tick, len(prices))
	now := time.Now()
	for sym, p := range prices {
		quotes[sym] = market.Tick{Symbol: sym, Price: p, At: now}
	}
	return &memMarket{quotes: quotes}
}

func (m *memMarket) setPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = market.Tick{Symbol: symbol, Price: price, At: time.Now()}
}

func (m *memMarket) Quote(symbol string) (market.Tick, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.quotes[symbol]
	return t, ok
}

func (m *memMarket) LastMark(symbol string) (market.Tick, bool) {
	return m.Quote(symbol)
}

func (m *memMarket) Universe(context.Context) ([]market.UniverseToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]market.UniverseToken, 0, len(m.quotes))
	for sym := range m.quotes {
		out = append(out, market.UniverseToken{
			Symbol:       sym,
			IsMajor:      market.IsMajor(sym),
			LiquidityUSD: 1_000_000,
		})
	}
	return out, nil
}
