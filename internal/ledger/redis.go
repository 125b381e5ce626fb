package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/droply/share-exchange/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot display reads: market snapshots and holdings. Writes go
// to the primary store and invalidate the cache. Reads served from the cache
// are last-committed snapshots, for display only; the trade processor and
// dividend distributor read through GetMarketForUpdate and
// GetHoldingForUpdate, which bypass the cache entirely, so an unlocked
// reader re-populating a just-invalidated key can never feed a stale price
// into a commit.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) ApplyTrade(ctx context.Context, commit *TradeCommit) error {
	if err := s.primary.ApplyTrade(ctx, commit); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(commit.Market.ContentID),
		holdingKey(commit.Holding.UserID, commit.Holding.ContentID))
	return nil
}

func (s *CachedStore) ApplyDividend(ctx context.Context, commit *DividendCommit) error {
	if err := s.primary.ApplyDividend(ctx, commit); err != nil {
		return err
	}
	// Invalidate the market and every paid holder.
	keys := []string{marketKey(commit.Market.ContentID)}
	for _, line := range commit.Event.Lines {
		keys = append(keys, holdingKey(line.UserID, commit.Market.ContentID))
	}
	s.rdb.Del(ctx, keys...)
	return nil
}

func (s *CachedStore) CreditLine(ctx context.Context, contentID, eventID, userID string, amount decimal.Decimal) error {
	if err := s.primary.CreditLine(ctx, contentID, eventID, userID, amount); err != nil {
		return err
	}
	s.rdb.Del(ctx, holdingKey(userID, contentID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, contentID string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(contentID)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, contentID)
	if err != nil {
		return nil, err
	}
	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetHolding(ctx context.Context, userID, contentID string) (*model.Holding, error) {
	data, err := s.rdb.Get(ctx, holdingKey(userID, contentID)).Bytes()
	if err == nil {
		var h model.Holding
		if json.Unmarshal(data, &h) == nil {
			return &h, nil
		}
	}

	h, err := s.primary.GetHolding(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(h); err == nil {
		s.rdb.Set(ctx, holdingKey(userID, contentID), data, s.ttl)
	}
	return h, nil
}

// --- Reads feeding writes (never cached) ---

func (s *CachedStore) GetMarketForUpdate(ctx context.Context, contentID string) (*model.Market, error) {
	return s.primary.GetMarketForUpdate(ctx, contentID)
}

func (s *CachedStore) GetHoldingForUpdate(ctx context.Context, userID, contentID string) (*model.Holding, error) {
	return s.primary.GetHoldingForUpdate(ctx, userID, contentID)
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) ListHolders(ctx context.Context, contentID string) ([]model.Holding, error) {
	return s.primary.ListHolders(ctx, contentID)
}

func (s *CachedStore) ListUserHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	return s.primary.ListUserHoldings(ctx, userID)
}

func (s *CachedStore) SumHeldShares(ctx context.Context, contentID string) (int64, error) {
	return s.primary.SumHeldShares(ctx, contentID)
}

func (s *CachedStore) GetTradesByMarket(ctx context.Context, contentID string, since time.Time) ([]model.Trade, error) {
	return s.primary.GetTradesByMarket(ctx, contentID, since)
}

func (s *CachedStore) GetTradesByUser(ctx context.Context, userID string) ([]model.Trade, error) {
	return s.primary.GetTradesByUser(ctx, userID)
}

func (s *CachedStore) GetDividendEvent(ctx context.Context, eventID string) (*model.DividendEvent, error) {
	return s.primary.GetDividendEvent(ctx, eventID)
}

func (s *CachedStore) ListDividendEvents(ctx context.Context, contentID string) ([]model.DividendEvent, error) {
	return s.primary.ListDividendEvents(ctx, contentID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ContentID), data, s.ttl)
	}
}

func marketKey(contentID string) string { return fmt.Sprintf("market:%s", contentID) }

func holdingKey(userID, contentID string) string {
	return fmt.Sprintf("holding:%s:%s", userID, contentID)
}
