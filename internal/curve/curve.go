// Package curve implements the bonding-curve pricing engine for content
// share markets.
//
// The curve is deliberately simple and auditable: shares fill at the
// pre-trade price (no intra-trade slippage — quantities are small integers),
// and the post-trade price moves proportionally to the fraction of total
// supply traded:
//
//	buy:  p' = p × (1 + k × shares/total)
//	sell: p' = p × (1 − k × shares/total), clamped at the price floor
//
// The contract that must hold regardless of curve shape: price strictly
// increases on any buy, strictly decreases on any sell (floor clamp
// excepted), and the result is fully determined by the pre-trade state and
// the request. No hidden randomness, no I/O.
//
// All monetary values use shopspring/decimal — never float64 for money.
package curve

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidQuantity is returned when shares_requested <= 0.
	ErrInvalidQuantity = errors.New("curve: share quantity must be positive")

	// ErrInvalidElasticity is returned when k <= 0.
	ErrInvalidElasticity = errors.New("curve: elasticity k must be positive")

	// ErrInvalidPrice is returned when the pre-trade price is not positive.
	ErrInvalidPrice = errors.New("curve: current price must be positive")

	// PriceScale is the number of decimal places prices are rounded to.
	PriceScale int32 = 4

	// MoneyScale is the number of decimal places for currency amounts.
	MoneyScale int32 = 2
)

// DefaultFloor is the minimum price a sell can move a market to.
var DefaultFloor = decimal.NewFromFloat(0.01)

// Engine computes trade prices. It is stateless — market state is passed as
// arguments, not stored.
type Engine struct {
	k     decimal.Decimal
	floor decimal.Decimal
}

// NewEngine creates a pricing engine with elasticity k and a price floor.
// Higher k → larger price impact per traded share.
func NewEngine(k, floor decimal.Decimal) (*Engine, error) {
	if k.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidElasticity
	}
	if floor.LessThanOrEqual(decimal.Zero) {
		floor = DefaultFloor
	}
	return &Engine{k: k, floor: floor}, nil
}

// K returns the elasticity constant.
func (e *Engine) K() decimal.Decimal { return e.k }

// ForMarket returns an engine pricing with a market's own elasticity,
// keeping the configured floor. A non-positive k falls back to this
// engine's k.
func (e *Engine) ForMarket(k decimal.Decimal) *Engine {
	if k.LessThanOrEqual(decimal.Zero) {
		return e
	}
	return &Engine{k: k, floor: e.floor}
}

// Floor returns the price floor.
func (e *Engine) Floor() decimal.Decimal { return e.floor }

// Quote is the result of pricing one trade.
type Quote struct {
	// ExecutionPrice is the per-share price the trade fills at
	// (the pre-trade market price).
	ExecutionPrice decimal.Decimal

	// Cost is shares × ExecutionPrice rounded to cents. For buys this is
	// the wallet debit; for sells the wallet credit.
	Cost decimal.Decimal

	// NewPrice is the post-trade market price.
	NewPrice decimal.Decimal
}

// PriceBuy prices a buy of the given share count against a market with the
// given current price and fixed total supply.
func (e *Engine) PriceBuy(currentPrice decimal.Decimal, shares, totalShares int64) (Quote, error) {
	if err := e.validate(currentPrice, shares, totalShares); err != nil {
		return Quote{}, err
	}
	newPrice := currentPrice.Mul(decimal.NewFromInt(1).Add(e.impact(shares, totalShares))).Round(PriceScale)
	// Rounding at small k must still move the price: a buy strictly raises it.
	if !newPrice.GreaterThan(currentPrice) {
		newPrice = currentPrice.Add(decimal.New(1, -PriceScale))
	}
	return Quote{
		ExecutionPrice: currentPrice,
		Cost:           currentPrice.Mul(decimal.NewFromInt(shares)).Round(MoneyScale),
		NewPrice:       newPrice,
	}, nil
}

// PriceSell prices a sell. The post-trade price is clamped at the floor;
// at the floor a sell no longer moves the price.
func (e *Engine) PriceSell(currentPrice decimal.Decimal, shares, totalShares int64) (Quote, error) {
	if err := e.validate(currentPrice, shares, totalShares); err != nil {
		return Quote{}, err
	}
	newPrice := currentPrice.Mul(decimal.NewFromInt(1).Sub(e.impact(shares, totalShares))).Round(PriceScale)
	if newPrice.LessThan(e.floor) {
		newPrice = e.floor
	} else if !newPrice.LessThan(currentPrice) && currentPrice.GreaterThan(e.floor) {
		newPrice = currentPrice.Sub(decimal.New(1, -PriceScale))
		if newPrice.LessThan(e.floor) {
			newPrice = e.floor
		}
	}
	return Quote{
		ExecutionPrice: currentPrice,
		Cost:           currentPrice.Mul(decimal.NewFromInt(shares)).Round(MoneyScale),
		NewPrice:       newPrice,
	}, nil
}

// impact returns k × shares/total.
func (e *Engine) impact(shares, totalShares int64) decimal.Decimal {
	return e.k.Mul(decimal.NewFromInt(shares)).Div(decimal.NewFromInt(totalShares))
}

func (e *Engine) validate(currentPrice decimal.Decimal, shares, totalShares int64) error {
	if shares <= 0 {
		return ErrInvalidQuantity
	}
	if totalShares <= 0 {
		return ErrInvalidQuantity
	}
	if currentPrice.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidPrice
	}
	return nil
}
