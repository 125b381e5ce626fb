package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/droply/share-exchange/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	markets  map[string]*model.Market            // contentID → market
	holdings map[string]map[string]*model.Holding // contentID → userID → holding
	trades   []model.Trade
	events   map[string]*model.DividendEvent // eventID → event
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:  make(map[string]*model.Market),
		holdings: make(map[string]map[string]*model.Holding),
		events:   make(map[string]*model.DividendEvent),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ContentID]; ok {
		return fmt.Errorf("%w: %s", ErrMarketExists, m.ContentID)
	}

	// Store a copy to avoid external mutation.
	cp := *m
	s.markets[m.ContentID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, contentID string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[contentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, contentID)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.Before(markets[j].CreatedAt)
	})
	return markets, nil
}

// GetMarketForUpdate is GetMarket; there is no cache layer here.
func (s *MemoryStore) GetMarketForUpdate(ctx context.Context, contentID string) (*model.Market, error) {
	return s.GetMarket(ctx, contentID)
}

func (s *MemoryStore) GetHolding(_ context.Context, userID, contentID string) (*model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.holdings[contentID][userID]
	if !ok {
		return nil, fmt.Errorf("%w: user %s content %s", ErrHoldingNotFound, userID, contentID)
	}
	cp := *h
	return &cp, nil
}

func (s *MemoryStore) GetHoldingForUpdate(ctx context.Context, userID, contentID string) (*model.Holding, error) {
	return s.GetHolding(ctx, userID, contentID)
}

func (s *MemoryStore) ListHolders(_ context.Context, contentID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holders []model.Holding
	for _, h := range s.holdings[contentID] {
		if h.SharesOwned > 0 {
			holders = append(holders, *h)
		}
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i].UserID < holders[j].UserID })
	return holders, nil
}

func (s *MemoryStore) ListUserHoldings(_ context.Context, userID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var holdings []model.Holding
	for _, byUser := range s.holdings {
		if h, ok := byUser[userID]; ok {
			holdings = append(holdings, *h)
		}
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].ContentID < holdings[j].ContentID })
	return holdings, nil
}

func (s *MemoryStore) SumHeldShares(_ context.Context, contentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sum int64
	for _, h := range s.holdings[contentID] {
		sum += h.SharesOwned
	}
	return sum, nil
}

func (s *MemoryStore) ApplyTrade(_ context.Context, commit *TradeCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[commit.Market.ContentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, commit.Market.ContentID)
	}

	m.AvailableShares = commit.Market.AvailableShares
	m.CurrentPrice = commit.Market.CurrentPrice

	byUser := s.holdings[commit.Holding.ContentID]
	if byUser == nil {
		byUser = make(map[string]*model.Holding)
		s.holdings[commit.Holding.ContentID] = byUser
	}
	hcp := *commit.Holding
	byUser[commit.Holding.UserID] = &hcp

	s.trades = append(s.trades, *commit.Trade)
	return nil
}

func (s *MemoryStore) GetTradesByMarket(_ context.Context, contentID string, since time.Time) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.ContentID != contentID {
			continue
		}
		if !since.IsZero() && t.Timestamp.Before(since) {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

func (s *MemoryStore) GetTradesByUser(_ context.Context, userID string) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Trade
	for _, t := range s.trades {
		if t.UserID == userID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) ApplyDividend(_ context.Context, commit *DividendCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[commit.Event.ID]; ok {
		return fmt.Errorf("%w: %s", ErrEventExists, commit.Event.ID)
	}
	m, ok := s.markets[commit.Market.ContentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, commit.Market.ContentID)
	}

	m.DividendPool = commit.Market.DividendPool
	m.TotalDividendsPaid = commit.Market.TotalDividendsPaid

	ev := *commit.Event
	ev.Lines = make([]model.DividendLine, len(commit.Event.Lines))
	copy(ev.Lines, commit.Event.Lines)
	s.events[ev.ID] = &ev
	return nil
}

func (s *MemoryStore) CreditLine(_ context.Context, contentID, eventID, userID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	for i := range ev.Lines {
		if ev.Lines[i].UserID == userID {
			ev.Lines[i].Credited = true
			break
		}
	}
	if h, ok := s.holdings[contentID][userID]; ok {
		h.DividendsEarned = h.DividendsEarned.Add(amount)
		h.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) GetDividendEvent(_ context.Context, eventID string) (*model.DividendEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, eventID)
	}
	cp := *ev
	cp.Lines = make([]model.DividendLine, len(ev.Lines))
	copy(cp.Lines, ev.Lines)
	return &cp, nil
}

func (s *MemoryStore) ListDividendEvents(_ context.Context, contentID string) ([]model.DividendEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []model.DividendEvent
	for _, ev := range s.events {
		if ev.ContentID != contentID {
			continue
		}
		cp := *ev
		cp.Lines = make([]model.DividendLine, len(ev.Lines))
		copy(cp.Lines, ev.Lines)
		events = append(events, cp)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}
