package transactions

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/petrolink/petrolink/internal/organizations"
)

// MemoryStore is a concurrency-safe in-memory Store for unit tests and
// DB-less runs. One mutex plays the role of the balance row lock: units of
// work on the store serialize against each other and against lookups, and a
// failed unit restores the state it started from.
type MemoryStore struct {
	mu        sync.Mutex
	balances  map[string]organizations.Balance
	counters  map[string]LimitCounter
	ledger    map[string]organizations.LedgerEntry
	ledgerIDs []string
	txnsByKey map[string]Transaction
	txnsByID  map[string]Transaction
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances:  make(map[string]organizations.Balance),
		counters:  make(map[string]LimitCounter),
		ledger:    make(map[string]organizations.LedgerEntry),
		txnsByKey: make(map[string]Transaction),
		txnsByID:  make(map[string]Transaction),
	}
}

func counterKey(cardID string, periodType PeriodType, periodKey string) string {
	return cardID + "|" + string(periodType) + "|" + periodKey
}

// FindByIdempotencyKey returns the committed transaction for the key.
func (s *MemoryStore) FindByIdempotencyKey(_ context.Context, key string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.txnsByKey[key]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return txn, nil
}

// WithinTx serializes the unit of work behind the store mutex and rolls the
// state back when fn fails.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx TxStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.snapshot()
	if err := fn(&memoryTxStore{store: s}); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type memoryState struct {
	balances  map[string]organizations.Balance
	counters  map[string]LimitCounter
	ledger    map[string]organizations.LedgerEntry
	ledgerIDs []string
	txnsByKey map[string]Transaction
	txnsByID  map[string]Transaction
}

func (s *MemoryStore) snapshot() memoryState {
	st := memoryState{
		balances:  make(map[string]organizations.Balance, len(s.balances)),
		counters:  make(map[string]LimitCounter, len(s.counters)),
		ledger:    make(map[string]organizations.LedgerEntry, len(s.ledger)),
		ledgerIDs: append([]string(nil), s.ledgerIDs...),
		txnsByKey: make(map[string]Transaction, len(s.txnsByKey)),
		txnsByID:  make(map[string]Transaction, len(s.txnsByID)),
	}
	for k, v := range s.balances {
		st.balances[k] = v
	}
	for k, v := range s.counters {
		st.counters[k] = v
	}
	for k, v := range s.ledger {
		st.ledger[k] = v
	}
	for k, v := range s.txnsByKey {
		st.txnsByKey[k] = v
	}
	for k, v := range s.txnsByID {
		st.txnsByID[k] = v
	}
	return st
}

func (s *MemoryStore) restore(st memoryState) {
	s.balances = st.balances
	s.counters = st.counters
	s.ledger = st.ledger
	s.ledgerIDs = st.ledgerIDs
	s.txnsByKey = st.txnsByKey
	s.txnsByID = st.txnsByID
}

type memoryTxStore struct {
	store *MemoryStore
}

func (t *memoryTxStore) LockBalance(_ context.Context, orgID string) (organizations.Balance, error) {
	balance, ok := t.store.balances[orgID]
	if !ok {
		return organizations.Balance{}, ErrBalanceMissing
	}
	return balance, nil
}

func (t *memoryTxStore) LockCounter(_ context.Context, cardID string, periodType PeriodType, periodKey string) (LimitCounter, bool, error) {
	counter, ok := t.store.counters[counterKey(cardID, periodType, periodKey)]
	if !ok {
		return LimitCounter{}, false, nil
	}
	return counter, true, nil
}

func (t *memoryTxStore) SaveBalance(_ context.Context, balance organizations.Balance) error {
	if _, ok := t.store.balances[balance.OrgID]; !ok {
		return ErrBalanceMissing
	}
	t.store.balances[balance.OrgID] = balance
	return nil
}

func (t *memoryTxStore) AppendLedgerEntry(_ context.Context, entry *organizations.LedgerEntry) error {
	entry.ID = uuid.NewString()
	t.store.ledger[entry.ID] = *entry
	t.store.ledgerIDs = append(t.store.ledgerIDs, entry.ID)
	return nil
}

func (t *memoryTxStore) UpsertCounter(_ context.Context, counter LimitCounter) error {
	key := counterKey(counter.CardID, counter.PeriodType, counter.PeriodKey)
	if existing, ok := t.store.counters[key]; ok {
		counter.ID = existing.ID
	} else {
		counter.ID = uuid.NewString()
	}
	t.store.counters[key] = counter
	return nil
}

func (t *memoryTxStore) InsertTransaction(_ context.Context, txn *Transaction) error {
	if _, exists := t.store.txnsByKey[txn.IdempotencyKey]; exists {
		return ErrDuplicateIdempotencyKey
	}
	txn.ID = uuid.NewString()
	t.store.txnsByKey[txn.IdempotencyKey] = *txn
	t.store.txnsByID[txn.ID] = *txn
	return nil
}

func (t *memoryTxStore) LinkLedgerEntry(_ context.Context, entryID, txnID string) error {
	entry, ok := t.store.ledger[entryID]
	if !ok {
		return ErrNotFound
	}
	entry.TxnID = txnID
	t.store.ledger[entryID] = entry
	return nil
}

func (t *memoryTxStore) UpdateTransactionResponse(_ context.Context, txn Transaction) error {
	stored, ok := t.store.txnsByID[txn.ID]
	if !ok {
		return ErrNotFound
	}
	stored.ResponseBody = txn.ResponseBody
	t.store.txnsByID[txn.ID] = stored
	t.store.txnsByKey[stored.IdempotencyKey] = stored
	return nil
}
