// Package wallet is the client for the external wallet-balance service.
// The exchange does not keep its own currency ledger: every buy debits and
// every sell or dividend credits through this interface, one transactional
// call at a time.
package wallet

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the user's balance.
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")

	// ErrUnavailable is returned when the wallet service cannot be reached
	// or times out. The caller surfaces it as retryable; the exchange never
	// retries on its own.
	ErrUnavailable = errors.New("wallet: service unavailable")
)

// Service debits and credits user currency balances. Each call is
// transactional on the wallet side.
type Service interface {
	// Debit removes amount from the user's balance.
	Debit(ctx context.Context, userID string, amount decimal.Decimal) error

	// Credit adds amount to the user's balance.
	Credit(ctx context.Context, userID string, amount decimal.Decimal) error
}
