package transactions

import (
	"context"
	"errors"

	"github.com/petrolink/petrolink/internal/organizations"
)

var (
	// ErrNotFound indicates no transaction exists for the lookup key.
	ErrNotFound = errors.New("transaction not found")

	// ErrBalanceMissing indicates the organization has no balance row. The
	// balance is provisioned with the organization, so its absence is a data
	// integrity fault, never a business rejection.
	ErrBalanceMissing = errors.New("organization balance row is missing")

	// ErrDuplicateIdempotencyKey indicates a concurrent request committed a
	// transaction with the same idempotency key first. Callers resolve it by
	// re-reading and replaying the winner's stored response.
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already committed")
)

// Store is the persistence boundary of the authorizer.
type Store interface {
	// FindByIdempotencyKey is the replay fast path. It runs outside any unit
	// of work and takes no locks.
	FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error)

	// WithinTx runs fn inside one atomic unit of work. A nil return commits
	// every write made through the TxStore handle; any error rolls all of
	// them back. Locks acquired through the handle are held until then.
	WithinTx(ctx context.Context, fn func(tx TxStore) error) error
}

// TxStore exposes the locked operations available inside one unit of work.
// Locks must be acquired in a stable order, balance first, then the daily
// counter, then the monthly counter, so concurrent authorizations cannot
// deadlock each other.
type TxStore interface {
	// LockBalance acquires an exclusive row lock on the organization's
	// balance, blocking concurrent units on the same organization until this
	// unit ends. Missing row: ErrBalanceMissing.
	LockBalance(ctx context.Context, orgID string) (organizations.Balance, error)

	// LockCounter acquires an exclusive lock on the counter row, reporting
	// found=false when no spend has been recorded for the period yet.
	LockCounter(ctx context.Context, cardID string, periodType PeriodType, periodKey string) (counter LimitCounter, found bool, err error)

	SaveBalance(ctx context.Context, balance organizations.Balance) error

	// AppendLedgerEntry inserts the entry and assigns entry.ID.
	AppendLedgerEntry(ctx context.Context, entry *organizations.LedgerEntry) error

	// UpsertCounter inserts or updates the counter keyed by
	// (cardID, periodType, periodKey).
	UpsertCounter(ctx context.Context, counter LimitCounter) error

	// InsertTransaction inserts the record and assigns txn.ID. A unique
	// violation on the idempotency key maps to ErrDuplicateIdempotencyKey.
	InsertTransaction(ctx context.Context, txn *Transaction) error

	// LinkLedgerEntry backfills the ledger entry's transaction id.
	LinkLedgerEntry(ctx context.Context, entryID, txnID string) error

	// UpdateTransactionResponse rewrites the frozen response body, used once
	// to backfill the approved response's own transaction id.
	UpdateTransactionResponse(ctx context.Context, txn Transaction) error
}
