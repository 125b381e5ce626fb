// Package ledger is the durable record of every share market, holder
// position, and the append-only trade/dividend history. It exclusively owns
// all four entity types; no other component mutates them directly.
//
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/droply/share-exchange/internal/model"
)

var (
	// ErrMarketNotFound is returned when no market exists for a content ID.
	ErrMarketNotFound = errors.New("ledger: market not found")

	// ErrHoldingNotFound is returned when a user has never traded a market.
	ErrHoldingNotFound = errors.New("ledger: holding not found")

	// ErrEventNotFound is returned when no dividend event has the given ID.
	ErrEventNotFound = errors.New("ledger: dividend event not found")

	// ErrMarketExists is returned when creating a market for content that
	// already has one.
	ErrMarketExists = errors.New("ledger: market already exists")

	// ErrEventExists is returned when a dividend event ID was already
	// recorded. Distribution retries rely on it for idempotency.
	ErrEventExists = errors.New("ledger: dividend event already exists")
)

// TradeCommit is the atomic unit applied for one executed trade: the
// post-trade market state, the post-trade holding, and the immutable trade
// entry. Implementations apply all three or none.
type TradeCommit struct {
	Market  *model.Market
	Holding *model.Holding
	Trade   *model.Trade
}

// DividendCommit is the atomic unit recorded when a distribution starts:
// the event with its payout lines (not yet credited) plus the post-snapshot
// market state (pool zeroed, lifetime total bumped).
type DividendCommit struct {
	Market *model.Market
	Event  *model.DividendEvent
}

// Store is the persistence interface for the exchange.
type Store interface {
	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves a market by content ID. May serve a cached
	// last-committed snapshot; display reads only.
	GetMarket(ctx context.Context, contentID string) (*model.Market, error)

	// GetMarketForUpdate retrieves a market for a read that feeds a write.
	// Implementations must bypass any cache layer and read the primary
	// store, so a trade holding the market lock never prices off a stale
	// snapshot.
	GetMarketForUpdate(ctx context.Context, contentID string) (*model.Market, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// GetHolding retrieves one user's position in one market. May serve a
	// cached snapshot; display reads only.
	GetHolding(ctx context.Context, userID, contentID string) (*model.Holding, error)

	// GetHoldingForUpdate is GetHolding bypassing any cache layer, for
	// reads that feed a write.
	GetHoldingForUpdate(ctx context.Context, userID, contentID string) (*model.Holding, error)

	// ListHolders returns all holdings with shares_owned > 0 for a market.
	ListHolders(ctx context.Context, contentID string) ([]model.Holding, error)

	// ListUserHoldings returns all of a user's holdings, including rows
	// sold down to zero shares.
	ListUserHoldings(ctx context.Context, userID string) ([]model.Holding, error)

	// SumHeldShares returns Σ shares_owned across a market's holders.
	// Used for the post-commit conservation check.
	SumHeldShares(ctx context.Context, contentID string) (int64, error)

	// ApplyTrade commits one trade atomically.
	ApplyTrade(ctx context.Context, commit *TradeCommit) error

	// GetTradesByMarket returns a market's trades in chronological order,
	// optionally restricted to those at or after since.
	GetTradesByMarket(ctx context.Context, contentID string, since time.Time) ([]model.Trade, error)

	// GetTradesByUser returns all trades for a user in chronological order.
	GetTradesByUser(ctx context.Context, userID string) ([]model.Trade, error)

	// ApplyDividend records a distribution event atomically.
	ApplyDividend(ctx context.Context, commit *DividendCommit) error

	// CreditLine marks one payout line credited after the wallet credit
	// succeeded and adds the amount to the holder's dividends_earned.
	CreditLine(ctx context.Context, contentID, eventID, userID string, amount decimal.Decimal) error

	// GetDividendEvent retrieves an event with its lines.
	GetDividendEvent(ctx context.Context, eventID string) (*model.DividendEvent, error)

	// ListDividendEvents returns a market's events in chronological order.
	ListDividendEvents(ctx context.Context, contentID string) ([]model.DividendEvent, error)
}
