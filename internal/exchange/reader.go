package exchange

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/droply/share-exchange/internal/ledger"
	"github.com/droply/share-exchange/internal/model"
	"github.com/shopspring/decimal"
)

// Read-only valuation queries. None of these take the market lock: they
// serve last-committed snapshots, which is sufficient for display. Anything
// used as input to a write (the slippage guard) is re-validated under the
// lock at trade time.

// GetMarket returns one market's current state.
func (s *Service) GetMarket(ctx context.Context, contentID string) (*model.Market, error) {
	m, err := s.store.GetMarket(ctx, contentID)
	if err != nil {
		if errors.Is(err, ledger.ErrMarketNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMarketNotFound, contentID)
		}
		return nil, err
	}
	return m, nil
}

// ListMarkets returns all markets.
func (s *Service) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.store.ListMarkets(ctx)
}

// GetHolding returns one user's position in one market. A user who never
// traded the market gets ledger.ErrHoldingNotFound.
func (s *Service) GetHolding(ctx context.Context, userID, contentID string) (*model.Holding, error) {
	return s.store.GetHolding(ctx, userID, contentID)
}

// GetPriceHistory reconstructs a market's price path from the trade ledger,
// optionally restricted to trades at or after since.
func (s *Service) GetPriceHistory(ctx context.Context, contentID string, since time.Time) ([]model.PricePoint, error) {
	if _, err := s.GetMarket(ctx, contentID); err != nil {
		return nil, err
	}
	trades, err := s.store.GetTradesByMarket(ctx, contentID, since)
	if err != nil {
		return nil, err
	}

	points := make([]model.PricePoint, 0, len(trades))
	for _, t := range trades {
		points = append(points, model.PricePoint{
			Price:     t.Price,
			Side:      t.Side,
			Shares:    t.Shares,
			Timestamp: t.Timestamp,
		})
	}
	return points, nil
}

// GetUserTrades returns a user's full trade history across all markets in
// chronological order.
func (s *Service) GetUserTrades(ctx context.Context, userID string) ([]model.Trade, error) {
	return s.store.GetTradesByUser(ctx, userID)
}

// GetPortfolio aggregates all of a user's holdings with mark-to-market value
// against each market's current price.
func (s *Service) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	holdings, err := s.store.ListUserHoldings(ctx, userID)
	if err != nil {
		return nil, err
	}

	p := &model.Portfolio{
		UserID:        userID,
		Holdings:      holdings,
		TotalValue:    decimal.Zero,
		TotalInvested: decimal.Zero,
		TotalEarned:   decimal.Zero,
		UnrealizedPnL: decimal.Zero,
	}

	for _, h := range holdings {
		p.TotalInvested = p.TotalInvested.Add(h.TotalInvested)
		p.TotalEarned = p.TotalEarned.Add(h.DividendsEarned)

		if h.SharesOwned == 0 {
			continue
		}
		m, err := s.store.GetMarket(ctx, h.ContentID)
		if err != nil {
			return nil, err
		}
		value := m.CurrentPrice.Mul(decimal.NewFromInt(h.SharesOwned))
		cost := h.AvgBuyPrice.Mul(decimal.NewFromInt(h.SharesOwned))
		p.TotalValue = p.TotalValue.Add(value)
		p.UnrealizedPnL = p.UnrealizedPnL.Add(value.Sub(cost))
	}
	return p, nil
}
