package organizations

import (
	"context"
	"sync"
)

// MemoryRepository stores balances in memory for tests and DB-less runs.
type MemoryRepository struct {
	mu       sync.RWMutex
	balances map[string]Balance
}

// NewMemoryRepository constructs an in-memory balance repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{balances: make(map[string]Balance)}
}

// GetBalance returns the stored balance for the organization.
func (r *MemoryRepository) GetBalance(_ context.Context, orgID string) (Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	balance, ok := r.balances[orgID]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return balance, nil
}

// SeedBalance stores a balance row, replacing any existing one.
func (r *MemoryRepository) SeedBalance(balance Balance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[balance.OrgID] = balance
}
