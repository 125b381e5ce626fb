// Package model defines the core domain types shared across the share
// exchange. Share counts are int64; all monetary values use
// shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market states.
const (
	MarketOpen   = "open"
	MarketClosed = "closed"
)

// Trade sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Market is the tradable-share record for one content item. TotalShares is
// fixed at creation; AvailableShares is the unsold inventory. The invariant
// AvailableShares + Σ(Holding.SharesOwned) == TotalShares holds at all times.
type Market struct {
	ContentID          string          `json:"content_id" db:"content_id"`
	Ticker             string          `json:"ticker" db:"ticker"`
	TotalShares        int64           `json:"total_shares" db:"total_shares"`
	AvailableShares    int64           `json:"available_shares" db:"available_shares"`
	CurrentPrice       decimal.Decimal `json:"current_price" db:"current_price"`
	Elasticity         decimal.Decimal `json:"elasticity" db:"elasticity"`
	DividendPool       decimal.Decimal `json:"dividend_pool" db:"dividend_pool"`
	TotalDividendsPaid decimal.Decimal `json:"total_dividends_paid" db:"total_dividends_paid"`
	Status             string          `json:"status" db:"status"`
	OpensAt            time.Time       `json:"opens_at" db:"opens_at"`
	ClosesAt           time.Time       `json:"closes_at" db:"closes_at"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
}

// TradingOpen reports whether the market accepts trades at the given instant.
func (m *Market) TradingOpen(now time.Time) bool {
	if m.Status != MarketOpen {
		return false
	}
	if now.Before(m.OpensAt) {
		return false
	}
	if !m.ClosesAt.IsZero() && now.After(m.ClosesAt) {
		return false
	}
	return true
}

// Holding is one user's position in one market. Created on the first buy and
// never deleted: when SharesOwned returns to zero via sells the row remains
// so AvgBuyPrice and DividendsEarned survive for reporting.
type Holding struct {
	UserID          string          `json:"user_id" db:"user_id"`
	ContentID       string          `json:"content_id" db:"content_id"`
	SharesOwned     int64           `json:"shares_owned" db:"shares_owned"`
	AvgBuyPrice     decimal.Decimal `json:"avg_buy_price" db:"avg_buy_price"`
	TotalInvested   decimal.Decimal `json:"total_invested" db:"total_invested"`
	DividendsEarned decimal.Decimal `json:"dividends_earned" db:"dividends_earned"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// Trade is an immutable ledger entry for one executed buy or sell. Once
// created, these are never modified or deleted; they are the sole source of
// truth for price history and audit.
type Trade struct {
	ID        string          `json:"id" db:"id"`
	ContentID string          `json:"content_id" db:"content_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	Side      string          `json:"side" db:"side"`
	Shares    int64           `json:"shares" db:"shares"`
	Price     decimal.Decimal `json:"price_per_share" db:"price_per_share"` // price actually executed
	Cost      decimal.Decimal `json:"cost" db:"cost"`                       // shares × price, rounded to cents
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// DividendLine is one holder's payout within a DividendEvent. Credited flips
// to true only after the wallet credit succeeds, so a retried distribution
// can skip holders that were already paid.
type DividendLine struct {
	EventID  string          `json:"event_id" db:"event_id"`
	UserID   string          `json:"user_id" db:"user_id"`
	Shares   int64           `json:"shares" db:"shares"`
	Amount   decimal.Decimal `json:"amount" db:"amount"`
	Credited bool            `json:"credited" db:"credited"`
}

// DividendEvent is an immutable record of one pool distribution.
type DividendEvent struct {
	ID             string          `json:"id" db:"id"`
	ContentID      string          `json:"content_id" db:"content_id"`
	PoolAmount     decimal.Decimal `json:"pool_amount" db:"pool_amount"`
	EligibleShares int64           `json:"eligible_shares" db:"eligible_shares"`
	Lines          []DividendLine  `json:"lines"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}

// PricePoint is one step of a market's price history, reconstructed from the
// trade ledger.
type PricePoint struct {
	Price     decimal.Decimal `json:"price"`
	Side      string          `json:"side"`
	Shares    int64           `json:"shares"`
	Timestamp time.Time       `json:"timestamp"`
}

// Portfolio aggregates all of one user's holdings with mark-to-market value.
type Portfolio struct {
	UserID        string          `json:"user_id"`
	Holdings      []Holding       `json:"holdings"`
	TotalValue    decimal.Decimal `json:"total_value"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	TotalEarned   decimal.Decimal `json:"total_dividends_earned"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}
