package exchange

import "errors"

// Trade error taxonomy. All are user-actionable, returned synchronously,
// and never retried by the engine itself.
var (
	// ErrMarketNotFound is returned when no market exists for the content.
	ErrMarketNotFound = errors.New("exchange: market not found")

	// ErrMarketClosed is returned when the trading window is not open.
	ErrMarketClosed = errors.New("exchange: market closed for trading")

	// ErrInvalidQuantity is returned when shares <= 0.
	ErrInvalidQuantity = errors.New("exchange: share quantity must be positive")

	// ErrInsufficientSupply is returned when a buy exceeds the market's
	// unsold inventory.
	ErrInsufficientSupply = errors.New("exchange: not enough shares available")

	// ErrInsufficientPosition is returned when a sell exceeds the caller's
	// holding.
	ErrInsufficientPosition = errors.New("exchange: not enough shares owned")

	// ErrInsufficientFunds is returned when the wallet debit is declined.
	ErrInsufficientFunds = errors.New("exchange: insufficient wallet funds")

	// ErrPriceSlippageExceeded is returned when the market price has moved
	// above the client-supplied max_price_per_share since it last read it.
	ErrPriceSlippageExceeded = errors.New("exchange: price moved beyond max_price_per_share")

	// ErrWalletUnavailable is returned when the wallet service call fails or
	// times out. Retryable by the client; the trade was not committed.
	ErrWalletUnavailable = errors.New("exchange: wallet service unavailable")

	// ErrConservationViolated signals that the post-commit share
	// conservation check failed. This is a fatal internal error; the ledger
	// is never silently corrected.
	ErrConservationViolated = errors.New("exchange: share conservation violated")
)
