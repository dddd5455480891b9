package cards

import (
	"context"
	"sync"
)

// MemoryRepository keeps cards in memory for tests and DB-less runs.
type MemoryRepository struct {
	mu       sync.RWMutex
	byNumber map[string]Card
}

// NewMemoryRepository constructs an in-memory card repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byNumber: make(map[string]Card)}
}

// FindByNumber returns the card stored under the number.
func (r *MemoryRepository) FindByNumber(_ context.Context, cardNumber string) (Card, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	card, ok := r.byNumber[cardNumber]
	if !ok {
		return Card{}, ErrNotFound
	}
	return card, nil
}

// Seed stores a card, replacing any existing one with the same number.
func (r *MemoryRepository) Seed(card Card) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byNumber[card.CardNumber] = card
}
