// Package limits enforces holder concentration limits on buys.
//
// A single account accumulating most of a content market's supply defeats
// the point of a shared dividend pool and makes the price trivially
// manipulable. The limiter caps how large a fraction of one market's total
// supply a single holder may own, and how much currency one user may have
// invested across all markets combined.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrConcentrationExceeded is returned when a buy would push a holder's
	// share of one market's total supply beyond the per-market maximum.
	ErrConcentrationExceeded = errors.New("limits: per-market ownership limit exceeded")

	// ErrInvestmentLimitExceeded is returned when a buy would push the
	// user's cumulative invested currency across all markets beyond the
	// aggregate maximum.
	ErrInvestmentLimitExceeded = errors.New("limits: aggregate investment limit exceeded")
)

// Limiter enforces buy-side concentration limits. Sells are never limited.
type Limiter struct {
	// MaxOwnershipFraction is the largest share of a market's total supply
	// one holder may own, in (0, 1]. Zero disables the check.
	MaxOwnershipFraction decimal.Decimal

	// MaxTotalInvested is the largest cumulative currency amount one user
	// may have spent on buys across all markets. Zero disables the check.
	MaxTotalInvested decimal.Decimal
}

// NewLimiter creates a limiter with the given per-market ownership fraction
// and aggregate invested cap.
func NewLimiter(maxOwnershipFraction, maxTotalInvested decimal.Decimal) *Limiter {
	return &Limiter{
		MaxOwnershipFraction: maxOwnershipFraction,
		MaxTotalInvested:     maxTotalInvested,
	}
}

// CheckBuy validates a buy against both limits.
//
// Parameters:
//   - totalShares: the market's fixed total supply
//   - ownedShares: the buyer's current position in this market
//   - buyShares: the requested buy size
//   - cost: the currency cost of this buy
//   - investedAcrossMarkets: the buyer's cumulative total_invested over all markets
func (l *Limiter) CheckBuy(
	totalShares, ownedShares, buyShares int64,
	cost, investedAcrossMarkets decimal.Decimal,
) error {
	if l.MaxOwnershipFraction.IsPositive() {
		newOwned := decimal.NewFromInt(ownedShares + buyShares)
		maxOwned := l.MaxOwnershipFraction.Mul(decimal.NewFromInt(totalShares))
		if newOwned.GreaterThan(maxOwned) {
			return ErrConcentrationExceeded
		}
	}

	if l.MaxTotalInvested.IsPositive() {
		if investedAcrossMarkets.Add(cost).GreaterThan(l.MaxTotalInvested) {
			return ErrInvestmentLimitExceeded
		}
	}

	return nil
}
