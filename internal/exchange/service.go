// Package exchange implements the trade processor and valuation reader for
// content share markets: it validates and serializes buys and sells, prices
// them through the bonding curve, commits results to the ledger, and settles
// currency through the external wallet service.
//
// All monetary values use shopspring/decimal — never float64 for money.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/droply/share-exchange/internal/curve"
	"github.com/droply/share-exchange/internal/ledger"
	"github.com/droply/share-exchange/internal/limits"
	"github.com/droply/share-exchange/internal/listing"
	"github.com/droply/share-exchange/internal/metrics"
	"github.com/droply/share-exchange/internal/model"
	"github.com/droply/share-exchange/internal/wallet"
)

// Service is the trade processor. Every buy and sell runs entirely under the
// target market's exclusive lock: precondition checks, pricing, the wallet
// call, and the ledger commit. Markets are independently lockable, so trades
// on different content proceed concurrently.
type Service struct {
	store   ledger.Store
	wallet  wallet.Service
	engine  *curve.Engine
	locks   *ledger.MarketLocks
	limiter *limits.Limiter // optional, nil disables concentration limits
	hub     *Hub            // optional WebSocket hub for price-tick broadcasts
	now     func() time.Time
}

// NewService creates a trade service. limiter and hub may be nil.
func NewService(st ledger.Store, w wallet.Service, eng *curve.Engine, locks *ledger.MarketLocks, limiter *limits.Limiter, hub *Hub) *Service {
	return &Service{
		store:   st,
		wallet:  w,
		engine:  eng,
		locks:   locks,
		limiter: limiter,
		hub:     hub,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// TradeReceipt is returned from every executed buy or sell.
type TradeReceipt struct {
	TradeID        string          `json:"trade_id"`
	ContentID      string          `json:"content_id"`
	UserID         string          `json:"user_id"`
	Side           string          `json:"side"`
	Shares         int64           `json:"shares"`
	ExecutionPrice decimal.Decimal `json:"execution_price"`
	Cost           decimal.Decimal `json:"cost"`
	NewPrice       decimal.Decimal `json:"new_price"`
	Position       model.Holding   `json:"position"`
}

// CreateMarket lists a new content share market. InitialPrice and elasticity
// fall back to curve defaults when zero.
func (s *Service) CreateMarket(ctx context.Context, contentID string, totalShares int64, initialPrice, elasticity decimal.Decimal, closesAt time.Time) (*model.Market, error) {
	if totalShares <= 0 {
		return nil, ErrInvalidQuantity
	}
	if initialPrice.LessThanOrEqual(decimal.Zero) {
		initialPrice = decimal.NewFromInt(1)
	}
	if elasticity.LessThanOrEqual(decimal.Zero) {
		elasticity = s.engine.K()
	}

	now := s.now()
	var ticker string
	if !closesAt.IsZero() {
		ticker = listing.Format(contentID, totalShares, closesAt)
	}
	m := &model.Market{
		ContentID:          contentID,
		Ticker:             ticker,
		TotalShares:        totalShares,
		AvailableShares:    totalShares,
		CurrentPrice:       initialPrice.Round(curve.PriceScale),
		Elasticity:         elasticity,
		DividendPool:       decimal.Zero,
		TotalDividendsPaid: decimal.Zero,
		Status:             model.MarketOpen,
		OpensAt:            now,
		ClosesAt:           closesAt,
		CreatedAt:          now,
	}

	if err := s.store.CreateMarket(ctx, m); err != nil {
		return nil, err
	}

	slog.Info("market created",
		"content", contentID,
		"total_shares", totalShares,
		"initial_price", m.CurrentPrice.String(),
		"k", elasticity.String(),
	)
	metrics.ActiveMarkets.Inc()
	return m, nil
}

// Buy executes one share purchase. maxPrice, when non-nil, is the client's
// slippage guard: it is re-validated against the authoritative price under
// the market lock, never trusted from an earlier unlocked read.
func (s *Service) Buy(ctx context.Context, userID, contentID string, shares int64, maxPrice *decimal.Decimal) (*TradeReceipt, error) {
	start := time.Now()
	unlock := s.locks.Lock(contentID)
	defer unlock()

	m, err := s.getOpenMarket(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if shares <= 0 {
		return nil, s.reject(ErrInvalidQuantity)
	}
	if shares > m.AvailableShares {
		return nil, s.reject(fmt.Errorf("%w: requested %d, available %d",
			ErrInsufficientSupply, shares, m.AvailableShares))
	}

	quote, err := s.engine.ForMarket(m.Elasticity).PriceBuy(m.CurrentPrice, shares, m.TotalShares)
	if err != nil {
		return nil, s.reject(err)
	}
	if maxPrice != nil && quote.ExecutionPrice.GreaterThan(*maxPrice) {
		return nil, s.reject(fmt.Errorf("%w: price %s, max %s",
			ErrPriceSlippageExceeded, quote.ExecutionPrice, maxPrice))
	}

	holding, err := s.holdingOrNew(ctx, userID, contentID)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		invested, err := s.investedAcrossMarkets(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := s.limiter.CheckBuy(m.TotalShares, holding.SharesOwned, shares, quote.Cost, invested); err != nil {
			return nil, s.reject(err)
		}
	}

	// Debit before commit: the trade must never be recorded without the
	// corresponding wallet debit having succeeded.
	if err := s.wallet.Debit(ctx, userID, quote.Cost); err != nil {
		switch {
		case errors.Is(err, wallet.ErrInsufficientFunds):
			return nil, s.reject(fmt.Errorf("%w: need %s", ErrInsufficientFunds, quote.Cost))
		default:
			return nil, s.reject(fmt.Errorf("%w: %v", ErrWalletUnavailable, err))
		}
	}

	now := s.now()
	oldShares := holding.SharesOwned
	holding.SharesOwned += shares
	holding.AvgBuyPrice = weightedAvg(holding.AvgBuyPrice, oldShares, quote.ExecutionPrice, shares)
	holding.TotalInvested = holding.TotalInvested.Add(quote.Cost)
	holding.UpdatedAt = now

	m.AvailableShares -= shares
	m.CurrentPrice = quote.NewPrice

	trade := &model.Trade{
		ID:        uuid.New().String(),
		ContentID: contentID,
		UserID:    userID,
		Side:      model.SideBuy,
		Shares:    shares,
		Price:     quote.ExecutionPrice,
		Cost:      quote.Cost,
		Timestamp: now,
	}

	if err := s.store.ApplyTrade(ctx, &ledger.TradeCommit{Market: m, Holding: holding, Trade: trade}); err != nil {
		// The debit already happened; compensate before reporting failure.
		if crErr := s.wallet.Credit(ctx, userID, quote.Cost); crErr != nil {
			slog.Error("buy commit failed and refund failed; wallet and ledger diverged",
				"user", userID, "content", contentID, "amount", quote.Cost.String(), "err", crErr)
		}
		return nil, fmt.Errorf("commit buy: %w", err)
	}

	if err := s.checkConservation(ctx, m); err != nil {
		return nil, err
	}

	s.finishTrade(trade, quote.NewPrice, start)
	return s.receipt(trade, quote, holding), nil
}

// Sell executes one share sale. The wallet credit happens after the ledger
// commit; a failed credit is surfaced as WalletUnavailable with the trade
// already committed, and the client re-queries its position before retrying.
func (s *Service) Sell(ctx context.Context, userID, contentID string, shares int64) (*TradeReceipt, error) {
	start := time.Now()
	unlock := s.locks.Lock(contentID)
	defer unlock()

	m, err := s.getOpenMarket(ctx, contentID)
	if err != nil {
		return nil, err
	}
	if shares <= 0 {
		return nil, s.reject(ErrInvalidQuantity)
	}

	holding, err := s.store.GetHoldingForUpdate(ctx, userID, contentID)
	if err != nil {
		if errors.Is(err, ledger.ErrHoldingNotFound) {
			return nil, s.reject(fmt.Errorf("%w: no position", ErrInsufficientPosition))
		}
		return nil, err
	}
	if holding.SharesOwned < shares {
		return nil, s.reject(fmt.Errorf("%w: owned %d, requested %d",
			ErrInsufficientPosition, holding.SharesOwned, shares))
	}

	quote, err := s.engine.ForMarket(m.Elasticity).PriceSell(m.CurrentPrice, shares, m.TotalShares)
	if err != nil {
		return nil, s.reject(err)
	}

	now := s.now()
	// Cost basis is a historical fact: AvgBuyPrice and TotalInvested are
	// untouched on sells.
	holding.SharesOwned -= shares
	holding.UpdatedAt = now

	m.AvailableShares += shares
	m.CurrentPrice = quote.NewPrice

	trade := &model.Trade{
		ID:        uuid.New().String(),
		ContentID: contentID,
		UserID:    userID,
		Side:      model.SideSell,
		Shares:    shares,
		Price:     quote.ExecutionPrice,
		Cost:      quote.Cost,
		Timestamp: now,
	}

	if err := s.store.ApplyTrade(ctx, &ledger.TradeCommit{Market: m, Holding: holding, Trade: trade}); err != nil {
		return nil, fmt.Errorf("commit sell: %w", err)
	}

	if err := s.checkConservation(ctx, m); err != nil {
		return nil, err
	}

	if err := s.wallet.Credit(ctx, userID, quote.Cost); err != nil {
		slog.Error("sell committed but wallet credit failed",
			"user", userID, "content", contentID, "amount", quote.Cost.String(), "err", err)
		return nil, fmt.Errorf("%w: sale committed, credit pending", ErrWalletUnavailable)
	}

	s.finishTrade(trade, quote.NewPrice, start)
	return s.receipt(trade, quote, holding), nil
}

// --- helpers ---

// getOpenMarket reads the market for a trade. The read feeds the commit, so
// it goes through the uncached path; a cached snapshot is never trusted
// under the lock.
func (s *Service) getOpenMarket(ctx context.Context, contentID string) (*model.Market, error) {
	m, err := s.store.GetMarketForUpdate(ctx, contentID)
	if err != nil {
		if errors.Is(err, ledger.ErrMarketNotFound) {
			return nil, s.reject(fmt.Errorf("%w: %s", ErrMarketNotFound, contentID))
		}
		return nil, err
	}
	if !m.TradingOpen(s.now()) {
		return nil, s.reject(fmt.Errorf("%w: %s", ErrMarketClosed, contentID))
	}
	return m, nil
}

func (s *Service) holdingOrNew(ctx context.Context, userID, contentID string) (*model.Holding, error) {
	holding, err := s.store.GetHoldingForUpdate(ctx, userID, contentID)
	if err == nil {
		return holding, nil
	}
	if !errors.Is(err, ledger.ErrHoldingNotFound) {
		return nil, err
	}
	now := s.now()
	return &model.Holding{
		UserID:          userID,
		ContentID:       contentID,
		AvgBuyPrice:     decimal.Zero,
		TotalInvested:   decimal.Zero,
		DividendsEarned: decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (s *Service) investedAcrossMarkets(ctx context.Context, userID string) (decimal.Decimal, error) {
	holdings, err := s.store.ListUserHoldings(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(h.TotalInvested)
	}
	return total, nil
}

// checkConservation verifies available + Σ held == total after a commit.
// A violation is fatal and never silently corrected.
func (s *Service) checkConservation(ctx context.Context, m *model.Market) error {
	held, err := s.store.SumHeldShares(ctx, m.ContentID)
	if err != nil {
		return err
	}
	if m.AvailableShares+held != m.TotalShares {
		slog.Error("share conservation violated",
			"content", m.ContentID,
			"available", m.AvailableShares,
			"held", held,
			"total", m.TotalShares,
		)
		return fmt.Errorf("%w: available %d + held %d != total %d",
			ErrConservationViolated, m.AvailableShares, held, m.TotalShares)
	}
	return nil
}

func (s *Service) reject(err error) error {
	metrics.TradeRejections.WithLabelValues(rejectionReason(err)).Inc()
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMarketNotFound):
		return "market_not_found"
	case errors.Is(err, ErrMarketClosed):
		return "market_closed"
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, curve.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, ErrInsufficientSupply):
		return "insufficient_supply"
	case errors.Is(err, ErrInsufficientPosition):
		return "insufficient_position"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrPriceSlippageExceeded):
		return "price_slippage"
	case errors.Is(err, ErrWalletUnavailable):
		return "wallet_unavailable"
	case errors.Is(err, limits.ErrConcentrationExceeded),
		errors.Is(err, limits.ErrInvestmentLimitExceeded):
		return "limit_exceeded"
	default:
		return "other"
	}
}

func (s *Service) finishTrade(t *model.Trade, newPrice decimal.Decimal, start time.Time) {
	metrics.TradesTotal.WithLabelValues(t.Side).Inc()
	metrics.TradeLatency.WithLabelValues(t.Side).Observe(time.Since(start).Seconds())
	metrics.MarketVolume.WithLabelValues(t.ContentID, t.Side).Add(float64(t.Shares))

	slog.Info("trade executed",
		"trade_id", t.ID,
		"user", t.UserID,
		"content", t.ContentID,
		"side", t.Side,
		"shares", t.Shares,
		"price", t.Price.String(),
		"cost", t.Cost.String(),
		"new_price", newPrice.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(TickMessage{
			Type:      "trade_executed",
			ContentID: t.ContentID,
			Price:     newPrice.String(),
			Side:      t.Side,
			Shares:    t.Shares,
		})
	}
}

func (s *Service) receipt(t *model.Trade, q curve.Quote, h *model.Holding) *TradeReceipt {
	return &TradeReceipt{
		TradeID:        t.ID,
		ContentID:      t.ContentID,
		UserID:         t.UserID,
		Side:           t.Side,
		Shares:         t.Shares,
		ExecutionPrice: q.ExecutionPrice,
		Cost:           q.Cost,
		NewPrice:       q.NewPrice,
		Position:       *h,
	}
}

// weightedAvg recomputes the average cost basis after a buy:
// (oldAvg×oldShares + price×shares) / (oldShares+shares).
func weightedAvg(oldAvg decimal.Decimal, oldShares int64, price decimal.Decimal, shares int64) decimal.Decimal {
	total := oldAvg.Mul(decimal.NewFromInt(oldShares)).
		Add(price.Mul(decimal.NewFromInt(shares)))
	return total.Div(decimal.NewFromInt(oldShares + shares)).Round(curve.PriceScale)
}
