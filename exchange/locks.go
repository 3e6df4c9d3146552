package exchange

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/tradeforge/papertrade/market"
)

// accountLocks serializes all mutation per account. The order pipeline
// reads account and position state, computes, then writes back; without a
// transaction spanning the whole pipeline, concurrent fills on the same
// account would lose updates. Different accounts proceed concurrently.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

func (al *accountLocks) lock(accountID string) func() {
	al.mu.Lock()
	l, ok := al.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		al.locks[accountID] = l
	}
	al.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// accountLimiters enforces the cooperative per-account order throttle.
// It is a throttle only; correctness comes from accountLocks.
type accountLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newAccountLimiters() *accountLimiters {
	return &accountLimiters{limiters: make(map[string]*rate.Limiter)}
}

func (rl *accountLimiters) allow(accountID string) bool {
	rl.mu.Lock()
	lim, ok := rl.limiters[accountID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(market.OrderRateWindow/market.OrderBurst), market.OrderBurst)
		rl.limiters[accountID] = lim
	}
	rl.mu.Unlock()
	return lim.Allow()
}
