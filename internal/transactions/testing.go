package transactions

import (
	"github.com/shopspring/decimal"

	"github.com/petrolink/petrolink/internal/organizations"
)

// SeedBalance is a test helper that sets an organization's balance row when
// using the in-memory store.
func SeedBalance(s Store, orgID string, amount decimal.Decimal) {
	if mem, ok := s.(*MemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[orgID] = organizations.Balance{OrgID: orgID, Amount: amount}
	}
}

// SeedCounter is a test helper that records prior spend for a period when
// using the in-memory store.
func SeedCounter(s Store, counter LimitCounter) {
	if mem, ok := s.(*MemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.counters[counterKey(counter.CardID, counter.PeriodType, counter.PeriodKey)] = counter
	}
}

// Balance returns the stored balance for inspection in tests.
func (s *MemoryStore) Balance(orgID string) (organizations.Balance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	balance, ok := s.balances[orgID]
	return balance, ok
}

// LedgerEntries returns the appended entries in insertion order.
func (s *MemoryStore) LedgerEntries() []organizations.LedgerEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]organizations.LedgerEntry, 0, len(s.ledgerIDs))
	for _, id := range s.ledgerIDs {
		entries = append(entries, s.ledger[id])
	}
	return entries
}

// Counter returns the stored counter for inspection in tests.
func (s *MemoryStore) Counter(cardID string, periodType PeriodType, periodKey string) (LimitCounter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counter, ok := s.counters[counterKey(cardID, periodType, periodKey)]
	return counter, ok
}

// Transactions returns every committed transaction record.
func (s *MemoryStore) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	txns := make([]Transaction, 0, len(s.txnsByID))
	for _, txn := range s.txnsByID {
		txns = append(txns, txn)
	}
	return txns
}
