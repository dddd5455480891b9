package transactions

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/petrolink/petrolink/internal/cards"
	"github.com/petrolink/petrolink/internal/logging"
	"github.com/petrolink/petrolink/internal/organizations"
	"github.com/petrolink/petrolink/internal/period"
	"github.com/petrolink/petrolink/internal/rules"
)

const testCardNumber = "4111111111111111"

var testTxnAt = time.Date(2025, time.September, 4, 12, 0, 0, 0, time.UTC)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", s, err)
	}
	return d
}

func newFixture(t *testing.T, balance string) (*Service, *MemoryStore, cards.Card) {
	t.Helper()

	store := NewMemoryStore()
	repo := cards.NewMemoryRepository()

	orgID := uuid.NewString()
	card := cards.Card{
		ID:           uuid.NewString(),
		CardNumber:   testCardNumber,
		DailyLimit:   dec(t, "1000.00"),
		MonthlyLimit: dec(t, "5000.00"),
		Status:       cards.StatusActive,
		OrgID:        orgID,
		Organization: organizations.Organization{ID: orgID, Name: "Acme Haulage", Timezone: "America/Chicago"},
	}
	repo.Seed(card)
	SeedBalance(store, orgID, dec(t, balance))

	svc := NewService(store, repo, nil, logging.Discard())
	return svc, store, card
}

func authRequest(t *testing.T, amount string) AuthorizationRequest {
	t.Helper()
	return AuthorizationRequest{
		CardNumber: testCardNumber,
		Amount:     dec(t, amount),
		TxnAtUtc:   testTxnAt,
		StationID:  "ST-001",
	}
}

func TestAuthorizeApproves(t *testing.T) {
	svc, store, card := newFixture(t, "2000.00")
	ctx := context.Background()

	result, err := svc.Authorize(ctx, authRequest(t, "100.00"), "key-a")
	if err != nil {
		t.Fatalf("authorize failed: %v", err)
	}

	if result.Response.Status != StatusApproved {
		t.Fatalf("expected APPROVED, got %s", result.Response.Status)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected status code 200, got %d", result.StatusCode)
	}
	if result.Response.TransactionID == "" {
		t.Fatal("expected a backfilled transaction id")
	}
	if !result.Response.BalanceAfter.Equal(dec(t, "1900.00")) {
		t.Fatalf("expected balanceAfter 1900.00, got %s", result.Response.BalanceAfter)
	}

	balance, ok := store.Balance(card.OrgID)
	if !ok || !balance.Amount.Equal(dec(t, "1900.00")) {
		t.Fatalf("expected stored balance 1900.00, got %v", balance.Amount)
	}

	dailyKey, monthlyKey, err := period.Keys(testTxnAt, card.Organization.Timezone)
	if err != nil {
		t.Fatalf("period keys: %v", err)
	}
	daily, ok := store.Counter(card.ID, PeriodDaily, dailyKey)
	if !ok || !daily.UsedAmount.Equal(dec(t, "100.00")) {
		t.Fatalf("expected daily counter 100.00, got %v", daily.UsedAmount)
	}
	monthly, ok := store.Counter(card.ID, PeriodMonthly, monthlyKey)
	if !ok || !monthly.UsedAmount.Equal(dec(t, "100.00")) {
		t.Fatalf("expected monthly counter 100.00, got %v", monthly.UsedAmount)
	}

	entries := store.LedgerEntries()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.TxnID != result.Response.TransactionID {
		t.Fatalf("ledger entry txn id %q does not match transaction id %q", entry.TxnID, result.Response.TransactionID)
	}
	if !entry.DeltaAmount.Equal(dec(t, "-100.00")) {
		t.Fatalf("expected delta -100.00, got %s", entry.DeltaAmount)
	}
	if !entry.BalanceAfter.Equal(result.Response.BalanceAfter) {
		t.Fatalf("ledger balanceAfter %s does not match response %s", entry.BalanceAfter, result.Response.BalanceAfter)
	}

	txns := store.Transactions()
	if len(txns) != 1 {
		t.Fatalf("expected exactly one transaction record, got %d", len(txns))
	}
	record := txns[0]
	if record.Status != StatusApproved || record.ResponseStatusCode != http.StatusOK {
		t.Fatalf("unexpected record: status=%s code=%d", record.Status, record.ResponseStatusCode)
	}
	if record.ResponseBody.TransactionID != record.ID {
		t.Fatalf("frozen response id %q not backfilled with record id %q", record.ResponseBody.TransactionID, record.ID)
	}
}

func TestAuthorizeInsufficientFunds(t *testing.T) {
	svc, store, card := newFixture(t, "50.00")
	ctx := context.Background()

	result, err := svc.Authorize(ctx, authRequest(t, "100.00"), "key-b")

	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rejection.Response.Reason != rules.ReasonInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %s", rejection.Response.Reason)
	}
	if result.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected status code 422, got %d", result.StatusCode)
	}

	balance, _ := store.Balance(card.OrgID)
	if !balance.Amount.Equal(dec(t, "50.00")) {
		t.Fatalf("balance mutated on rejection: %s", balance.Amount)
	}
	if len(store.LedgerEntries()) != 0 {
		t.Fatal("rejection must not append ledger entries")
	}

	txns := store.Transactions()
	if len(txns) != 1 {
		t.Fatalf("expected the rejection to be persisted, got %d records", len(txns))
	}
	record := txns[0]
	if record.Status != StatusRejected || record.ReasonCode != rules.ReasonInsufficientFunds {
		t.Fatalf("unexpected rejection record: status=%s reason=%s", record.Status, record.ReasonCode)
	}
	if record.ResponseStatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected frozen status code 422, got %d", record.ResponseStatusCode)
	}
}

func TestAuthorizeDailyLimitExceeded(t *testing.T) {
	svc, store, card := newFixture(t, "2000.00")
	ctx := context.Background()

	dailyKey, _, err := period.Keys(testTxnAt, card.Organization.Timezone)
	if err != nil {
		t.Fatalf("period keys: %v", err)
	}
	SeedCounter(store, LimitCounter{
		OrgID:      card.OrgID,
		CardID:     card.ID,
		PeriodType: PeriodDaily,
		PeriodKey:  dailyKey,
		UsedAmount: dec(t, "60.00"),
	})

	// tighter limit than the fixture default
	card.DailyLimit = dec(t, "100.00")
	repo := cards.NewMemoryRepository()
	repo.Seed(card)
	svc = NewService(store, repo, nil, logging.Discard())

	_, err = svc.Authorize(ctx, authRequest(t, "50.00"), "key-c")

	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if rejection.Response.Reason != rules.ReasonDailyLimitExceeded {
		t.Fatalf("expected DAILY_LIMIT_EXCEEDED, got %s", rejection.Response.Reason)
	}

	counter, _ := store.Counter(card.ID, PeriodDaily, dailyKey)
	if !counter.UsedAmount.Equal(dec(t, "60.00")) {
		t.Fatalf("counter mutated on rejection: %s", counter.UsedAmount)
	}
}

func TestAuthorizeIdempotentReplay(t *testing.T) {
	svc, store, card := newFixture(t, "2000.00")
	ctx := context.Background()

	first, err := svc.Authorize(ctx, authRequest(t, "100.00"), "key-d")
	if err != nil {
		t.Fatalf("first authorize failed: %v", err)
	}

	second, err := svc.Authorize(ctx, authRequest(t, "100.00"), "key-d")
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if !second.Replayed {
		t.Fatal("expected the second call to be a replay")
	}
	if second.Response.TransactionID != first.Response.TransactionID {
		t.Fatalf("replay returned a different transaction id: %q vs %q",
			second.Response.TransactionID, first.Response.TransactionID)
	}
	if !second.Response.BalanceAfter.Equal(first.Response.BalanceAfter) {
		t.Fatalf("replay returned a different balanceAfter: %s vs %s",
			second.Response.BalanceAfter, first.Response.BalanceAfter)
	}

	balance, _ := store.Balance(card.OrgID)
	if !balance.Amount.Equal(dec(t, "1900.00")) {
		t.Fatalf("balance debited twice: %s", balance.Amount)
	}
	if len(store.Transactions()) != 1 {
		t.Fatalf("expected one transaction record, got %d", len(store.Transactions()))
	}
	if len(store.LedgerEntries()) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(store.LedgerEntries()))
	}
}

func TestAuthorizeRejectedReplayKeepsStoredCode(t *testing.T) {
	svc, _, _ := newFixture(t, "50.00")
	ctx := context.Background()

	if _, err := svc.Authorize(ctx, authRequest(t, "100.00"), "key-e"); err == nil {
		t.Fatal("expected the first attempt to be rejected")
	}

	replay, err := svc.Authorize(ctx, authRequest(t, "100.00"), "key-e")
	if err != nil {
		t.Fatalf("replay of a committed rejection must not error: %v", err)
	}
	if replay.Response.Status != StatusRejected || replay.Response.Reason != rules.ReasonInsufficientFunds {
		t.Fatalf("unexpected replayed response: %+v", replay.Response)
	}
	if replay.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected stored status code 422, got %d", replay.StatusCode)
	}
}

func TestAuthorizeMissingIdempotencyKey(t *testing.T) {
	svc, store, _ := newFixture(t, "2000.00")

	if _, err := svc.Authorize(context.Background(), authRequest(t, "100.00"), ""); !errors.Is(err, ErrMissingIdempotencyKey) {
		t.Fatalf("expected ErrMissingIdempotencyKey, got %v", err)
	}
	if len(store.Transactions()) != 0 {
		t.Fatal("nothing may be persisted without an idempotency key")
	}
}

func TestAuthorizeCardNotFound(t *testing.T) {
	svc, store, _ := newFixture(t, "2000.00")

	req := authRequest(t, "100.00")
	req.CardNumber = "5555555555554444"

	if _, err := svc.Authorize(context.Background(), req, "key-f"); !errors.Is(err, cards.ErrNotFound) {
		t.Fatalf("expected cards.ErrNotFound, got %v", err)
	}
	if len(store.Transactions()) != 0 {
		t.Fatal("unknown cards must not be persisted as transactions")
	}
}

func TestAuthorizeCardInactive(t *testing.T) {
	for _, status := range []cards.Status{cards.StatusInactive, cards.StatusBlocked} {
		svc, store, card := newFixture(t, "2000.00")
		card.Status = status
		repo := cards.NewMemoryRepository()
		repo.Seed(card)
		svc = NewService(store, repo, nil, logging.Discard())

		if _, err := svc.Authorize(context.Background(), authRequest(t, "100.00"), "key-g"); !errors.Is(err, ErrCardInactive) {
			t.Fatalf("status %s: expected ErrCardInactive, got %v", status, err)
		}
		if len(store.Transactions()) != 0 {
			t.Fatalf("status %s: inactive-card attempts must not be persisted", status)
		}

		balance, _ := store.Balance(card.OrgID)
		if !balance.Amount.Equal(dec(t, "2000.00")) {
			t.Fatalf("status %s: balance mutated", status)
		}
	}
}

func TestAuthorizeMissingBalanceIsFatal(t *testing.T) {
	store := NewMemoryStore()
	repo := cards.NewMemoryRepository()
	orgID := uuid.NewString()
	card := cards.Card{
		ID:           uuid.NewString(),
		CardNumber:   testCardNumber,
		DailyLimit:   dec(t, "1000.00"),
		MonthlyLimit: dec(t, "5000.00"),
		Status:       cards.StatusActive,
		OrgID:        orgID,
		Organization: organizations.Organization{ID: orgID, Timezone: "UTC"},
	}
	repo.Seed(card)
	svc := NewService(store, repo, nil, logging.Discard())

	_, err := svc.Authorize(context.Background(), authRequest(t, "100.00"), "key-h")
	if !errors.Is(err, ErrBalanceMissing) {
		t.Fatalf("expected ErrBalanceMissing, got %v", err)
	}
	if len(store.Transactions()) != 0 {
		t.Fatal("integrity faults must not persist transactions")
	}
}

func TestAuthorizeUnknownTimezoneIsFatal(t *testing.T) {
	svc, store, card := newFixture(t, "2000.00")
	card.Organization.Timezone = "Nowhere/Invalid"
	repo := cards.NewMemoryRepository()
	repo.Seed(card)
	svc = NewService(store, repo, nil, logging.Discard())

	if _, err := svc.Authorize(context.Background(), authRequest(t, "100.00"), "key-i"); err == nil {
		t.Fatal("expected a configuration error for the unknown timezone")
	}
	if len(store.Transactions()) != 0 {
		t.Fatal("configuration faults must not persist transactions")
	}
}

type insertFailTx struct {
	TxStore
}

func (t *insertFailTx) InsertTransaction(context.Context, *Transaction) error {
	return errors.New("store connection lost")
}

type insertFailStore struct {
	*MemoryStore
}

func (s *insertFailStore) WithinTx(ctx context.Context, fn func(tx TxStore) error) error {
	return s.MemoryStore.WithinTx(ctx, func(tx TxStore) error {
		return fn(&insertFailTx{tx})
	})
}

func TestAuthorizeRollsBackOnLateFailure(t *testing.T) {
	_, store, card := newFixture(t, "2000.00")
	repo := cards.NewMemoryRepository()
	repo.Seed(card)
	svc := NewService(&insertFailStore{store}, repo, nil, logging.Discard())

	// The failure fires after the balance debit, ledger append and counter
	// upserts have all been issued inside the unit of work.
	if _, err := svc.Authorize(context.Background(), authRequest(t, "100.00"), "key-j"); err == nil {
		t.Fatal("expected the unit of work to fail")
	}

	balance, _ := store.Balance(card.OrgID)
	if !balance.Amount.Equal(dec(t, "2000.00")) {
		t.Fatalf("balance debit survived the rollback: %s", balance.Amount)
	}
	if len(store.LedgerEntries()) != 0 {
		t.Fatal("ledger entry survived the rollback")
	}
	dailyKey, monthlyKey, _ := period.Keys(testTxnAt, card.Organization.Timezone)
	if _, ok := store.Counter(card.ID, PeriodDaily, dailyKey); ok {
		t.Fatal("daily counter survived the rollback")
	}
	if _, ok := store.Counter(card.ID, PeriodMonthly, monthlyKey); ok {
		t.Fatal("monthly counter survived the rollback")
	}
	if len(store.Transactions()) != 0 {
		t.Fatal("transaction record survived the rollback")
	}
}

type racingStore struct {
	*MemoryStore
	mu     sync.Mutex
	missed bool
}

func (s *racingStore) FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error) {
	s.mu.Lock()
	first := !s.missed
	s.missed = true
	s.mu.Unlock()
	if first {
		// simulate the losing side of the race: the winner commits between
		// this lookup and our insert
		return Transaction{}, ErrNotFound
	}
	return s.MemoryStore.FindByIdempotencyKey(ctx, key)
}

func TestAuthorizeResolvesIdempotencyKeyRace(t *testing.T) {
	svc, store, card := newFixture(t, "2000.00")
	ctx := context.Background()

	winner, err := svc.Authorize(ctx, authRequest(t, "100.00"), "key-k")
	if err != nil {
		t.Fatalf("winner authorize failed: %v", err)
	}

	repo := cards.NewMemoryRepository()
	repo.Seed(card)
	loser := NewService(&racingStore{MemoryStore: store}, repo, nil, logging.Discard())

	result, err := loser.Authorize(ctx, authRequest(t, "100.00"), "key-k")
	if err != nil {
		t.Fatalf("duplicate-key race must resolve by replay, got %v", err)
	}
	if !result.Replayed {
		t.Fatal("expected the losing request to replay the winner's response")
	}
	if result.Response.TransactionID != winner.Response.TransactionID {
		t.Fatalf("replayed id %q does not match winner %q", result.Response.TransactionID, winner.Response.TransactionID)
	}

	balance, _ := store.Balance(card.OrgID)
	if !balance.Amount.Equal(dec(t, "1900.00")) {
		t.Fatalf("balance debited twice: %s", balance.Amount)
	}
}

func TestAuthorizeConcurrentSerialization(t *testing.T) {
	svc, store, card := newFixture(t, "2000.00")
	card.DailyLimit = dec(t, "100.00")
	repo := cards.NewMemoryRepository()
	repo.Seed(card)
	svc = NewService(store, repo, nil, logging.Discard())

	// Each request fits the daily limit alone; together they exceed it.
	amounts := []string{"60.00", "60.00"}
	results := make([]Result, len(amounts))
	errs := make([]error, len(amounts))

	var wg sync.WaitGroup
	for i, amount := range amounts {
		wg.Add(1)
		go func(i int, amount string) {
			defer wg.Done()
			req := AuthorizationRequest{
				CardNumber: testCardNumber,
				Amount:     dec(t, amount),
				TxnAtUtc:   testTxnAt,
				StationID:  "ST-001",
			}
			results[i], errs[i] = svc.Authorize(context.Background(), req, "key-conc-"+amount+"-"+string(rune('a'+i)))
		}(i, amount)
	}
	wg.Wait()

	approved, rejected := 0, 0
	for i := range results {
		var rejection *RejectionError
		switch {
		case errs[i] == nil:
			approved++
		case errors.As(errs[i], &rejection):
			rejected++
			if rejection.Response.Reason != rules.ReasonDailyLimitExceeded {
				t.Fatalf("expected DAILY_LIMIT_EXCEEDED, got %s", rejection.Response.Reason)
			}
		default:
			t.Fatalf("unexpected error: %v", errs[i])
		}
	}
	if approved != 1 || rejected != 1 {
		t.Fatalf("expected exactly one approval and one rejection, got %d/%d", approved, rejected)
	}

	balance, _ := store.Balance(card.OrgID)
	if !balance.Amount.Equal(dec(t, "1940.00")) {
		t.Fatalf("expected balance 1940.00 after one 60.00 debit, got %s", balance.Amount)
	}

	dailyKey, _, _ := period.Keys(testTxnAt, card.Organization.Timezone)
	counter, _ := store.Counter(card.ID, PeriodDaily, dailyKey)
	if !counter.UsedAmount.Equal(dec(t, "60.00")) {
		t.Fatalf("expected daily counter 60.00, got %s", counter.UsedAmount)
	}
}

func TestAuthorizeExactBoundaries(t *testing.T) {
	svc, _, card := newFixture(t, "100.00")

	// exactly the remaining balance
	result, err := svc.Authorize(context.Background(), authRequest(t, "100.00"), "key-l")
	if err != nil {
		t.Fatalf("spending the exact balance must approve: %v", err)
	}
	if !result.Response.BalanceAfter.Equal(decimal.Zero) {
		t.Fatalf("expected balanceAfter 0, got %s", result.Response.BalanceAfter)
	}

	// one cent more than the now-empty balance
	_, err = svc.Authorize(context.Background(), authRequest(t, "0.01"), "key-m")
	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Response.Reason != rules.ReasonInsufficientFunds {
		t.Fatalf("expected INSUFFICIENT_FUNDS, got %v", err)
	}
	_ = card
}
