package ledger

import "sync"

// MarketLocks is the arena of per-market exclusive locks. Every trade and
// every dividend distribution against a market holds that market's lock for
// its full duration (precondition check + pricing + commit), so trades on
// one market are strictly ordered while different markets proceed
// independently. Readers never take these locks.
type MarketLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMarketLocks creates an empty lock arena.
func NewMarketLocks() *MarketLocks {
	return &MarketLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the exclusive lock for one market, creating it on first use.
// The returned function releases it.
func (l *MarketLocks) Lock(contentID string) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[contentID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[contentID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
