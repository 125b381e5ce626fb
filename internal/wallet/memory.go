package wallet

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryService implements Service with in-memory balances. Used for testing
// and local development.
type MemoryService struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal

	// FailCredits, when set, makes Credit calls for the listed users return
	// ErrUnavailable. Tests use it to simulate partial dividend failures.
	FailCredits map[string]bool
}

// NewMemoryService creates an empty in-memory wallet.
func NewMemoryService() *MemoryService {
	return &MemoryService{balances: make(map[string]decimal.Decimal)}
}

// Fund sets a user's balance directly.
func (s *MemoryService) Fund(userID string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = amount
}

// Balance returns a user's current balance.
func (s *MemoryService) Balance(userID string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

func (s *MemoryService) Debit(_ context.Context, userID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal := s.balances[userID]
	if bal.LessThan(amount) {
		return ErrInsufficientFunds
	}
	s.balances[userID] = bal.Sub(amount)
	return nil
}

func (s *MemoryService) Credit(_ context.Context, userID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCredits[userID] {
		return ErrUnavailable
	}
	s.balances[userID] = s.balances[userID].Add(amount)
	return nil
}
