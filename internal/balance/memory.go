package balance

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/poolhouse/internal/domain"
)

// MemoryService is an in-process funds ledger for tests and demo mode.
// Accounts start at the configured opening balance the first time they are
// touched.
type MemoryService struct {
	mu       sync.Mutex
	opening  float64
	balances map[string]float64
}

var _ domain.BalanceService = (*MemoryService)(nil)

// NewMemoryService creates a MemoryService with the given opening balance
// per account.
func NewMemoryService(opening float64) *MemoryService {
	return &MemoryService{
		opening:  opening,
		balances: make(map[string]float64),
	}
}

// Debit withdraws amount, rejecting overdrafts.
func (s *MemoryService) Debit(_ context.Context, userID string, amount float64, _ string) error {
	if amount < 0 {
		return fmt.Errorf("%w: negative debit %.2f", domain.ErrValidation, amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	bal := s.balance(userID)
	if bal < amount {
		return fmt.Errorf("%w: user %s has %.2f, needs %.2f", domain.ErrValidation, userID, bal, amount)
	}
	s.balances[userID] = bal - amount
	return nil
}

// Credit deposits amount.
func (s *MemoryService) Credit(_ context.Context, userID string, amount float64, _ string) error {
	if amount < 0 {
		return fmt.Errorf("%w: negative credit %.2f", domain.ErrValidation, amount)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = s.balance(userID) + amount
	return nil
}

// Balance returns the current balance of an account.
func (s *MemoryService) Balance(userID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance(userID)
}

func (s *MemoryService) balance(userID string) float64 {
	if bal, ok := s.balances[userID]; ok {
		return bal
	}
	s.balances[userID] = s.opening
	return s.opening
}
