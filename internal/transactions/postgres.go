package transactions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrolink/petrolink/internal/organizations"
	"github.com/petrolink/petrolink/internal/rules"
)

const uniqueViolationCode = "23505"

// PostgresStore persists authorization state in PostgreSQL, relying on
// SELECT ... FOR UPDATE row locks for serialization and on the unique
// idempotency-key constraint as the final backstop against double spends.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectTransaction = `
        SELECT id, org_id, card_id, station_id, amount, idempotency_key, txn_at_utc,
               status, reason_code, response_body, response_status_code, created_at
        FROM transactions`

// FindByIdempotencyKey looks up a committed transaction without locking.
func (s *PostgresStore) FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error) {
	row := s.db.QueryRow(ctx, selectTransaction+` WHERE idempotency_key = $1`, key)
	return scanTransaction(row)
}

// WithinTx opens one database transaction, runs fn against it, and commits
// when fn returns nil. Every error path rolls back.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx TxStore) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(&postgresTxStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

type postgresTxStore struct {
	tx pgx.Tx
}

func (s *postgresTxStore) LockBalance(ctx context.Context, orgID string) (organizations.Balance, error) {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return organizations.Balance{}, fmt.Errorf("invalid organization id: %w", err)
	}

	row := s.tx.QueryRow(ctx,
		`SELECT org_id, balance_amount, as_of FROM org_balances WHERE org_id = $1 FOR UPDATE`, id)

	var balance organizations.Balance
	var orgUUID uuid.UUID
	var amount pgtype.Numeric
	if err := row.Scan(&orgUUID, &amount, &balance.AsOf); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return organizations.Balance{}, ErrBalanceMissing
		}
		return organizations.Balance{}, err
	}

	balance.OrgID = orgUUID.String()
	balance.Amount, err = organizations.DecimalFromNumeric(amount)
	if err != nil {
		return organizations.Balance{}, fmt.Errorf("decode balance amount: %w", err)
	}
	return balance, nil
}

func (s *postgresTxStore) LockCounter(ctx context.Context, cardID string, periodType PeriodType, periodKey string) (LimitCounter, bool, error) {
	id, err := uuid.Parse(cardID)
	if err != nil {
		return LimitCounter{}, false, fmt.Errorf("invalid card id: %w", err)
	}

	row := s.tx.QueryRow(ctx, `
        SELECT id, org_id, card_id, period_type, period_key, used_amount, updated_at
        FROM limit_counters
        WHERE card_id = $1 AND period_type = $2 AND period_key = $3
        FOR UPDATE`, id, periodType, periodKey)

	var counter LimitCounter
	var counterID, orgID, cardUUID uuid.UUID
	var used pgtype.Numeric
	if err := row.Scan(&counterID, &orgID, &cardUUID, &counter.PeriodType, &counter.PeriodKey, &used, &counter.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return LimitCounter{}, false, nil
		}
		return LimitCounter{}, false, err
	}

	counter.ID = counterID.String()
	counter.OrgID = orgID.String()
	counter.CardID = cardUUID.String()
	counter.UsedAmount, err = organizations.DecimalFromNumeric(used)
	if err != nil {
		return LimitCounter{}, false, fmt.Errorf("decode used amount: %w", err)
	}
	return counter, true, nil
}

func (s *postgresTxStore) SaveBalance(ctx context.Context, balance organizations.Balance) error {
	amount, err := organizations.NumericFromDecimal(balance.Amount)
	if err != nil {
		return fmt.Errorf("encode balance amount: %w", err)
	}

	tag, err := s.tx.Exec(ctx,
		`UPDATE org_balances SET balance_amount = $2, as_of = $3 WHERE org_id = $1`,
		uuid.MustParse(balance.OrgID), amount, balance.AsOf)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBalanceMissing
	}
	return nil
}

func (s *postgresTxStore) AppendLedgerEntry(ctx context.Context, entry *organizations.LedgerEntry) error {
	delta, err := organizations.NumericFromDecimal(entry.DeltaAmount)
	if err != nil {
		return fmt.Errorf("encode delta amount: %w", err)
	}
	after, err := organizations.NumericFromDecimal(entry.BalanceAfter)
	if err != nil {
		return fmt.Errorf("encode balance after: %w", err)
	}

	id := uuid.New()
	_, err = s.tx.Exec(ctx, `
        INSERT INTO balance_ledger (id, org_id, delta_amount, balance_after, created_at)
        VALUES ($1, $2, $3, $4, $5)`,
		id, uuid.MustParse(entry.OrgID), delta, after, entry.CreatedAt)
	if err != nil {
		return err
	}

	entry.ID = id.String()
	return nil
}

func (s *postgresTxStore) UpsertCounter(ctx context.Context, counter LimitCounter) error {
	used, err := organizations.NumericFromDecimal(counter.UsedAmount)
	if err != nil {
		return fmt.Errorf("encode used amount: %w", err)
	}

	_, err = s.tx.Exec(ctx, `
        INSERT INTO limit_counters (id, org_id, card_id, period_type, period_key, used_amount, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (card_id, period_type, period_key)
        DO UPDATE SET used_amount = EXCLUDED.used_amount, updated_at = EXCLUDED.updated_at`,
		uuid.New(), uuid.MustParse(counter.OrgID), uuid.MustParse(counter.CardID),
		counter.PeriodType, counter.PeriodKey, used, counter.UpdatedAt)
	return err
}

func (s *postgresTxStore) InsertTransaction(ctx context.Context, txn *Transaction) error {
	amount, err := organizations.NumericFromDecimal(txn.Amount)
	if err != nil {
		return fmt.Errorf("encode amount: %w", err)
	}
	body, err := json.Marshal(txn.ResponseBody)
	if err != nil {
		return fmt.Errorf("encode response body: %w", err)
	}

	var reason *string
	if txn.ReasonCode != "" {
		r := string(txn.ReasonCode)
		reason = &r
	}

	id := uuid.New()
	_, err = s.tx.Exec(ctx, `
        INSERT INTO transactions (id, org_id, card_id, station_id, amount, idempotency_key,
                                  txn_at_utc, status, reason_code, response_body, response_status_code, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12)`,
		id, uuid.MustParse(txn.OrgID), uuid.MustParse(txn.CardID), txn.StationID, amount,
		txn.IdempotencyKey, txn.TxnAtUtc, txn.Status, reason, string(body),
		txn.ResponseStatusCode, txn.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrDuplicateIdempotencyKey
		}
		return err
	}

	txn.ID = id.String()
	return nil
}

func (s *postgresTxStore) LinkLedgerEntry(ctx context.Context, entryID, txnID string) error {
	_, err := s.tx.Exec(ctx, `UPDATE balance_ledger SET txn_id = $2 WHERE id = $1`,
		uuid.MustParse(entryID), uuid.MustParse(txnID))
	return err
}

func (s *postgresTxStore) UpdateTransactionResponse(ctx context.Context, txn Transaction) error {
	body, err := json.Marshal(txn.ResponseBody)
	if err != nil {
		return fmt.Errorf("encode response body: %w", err)
	}
	_, err = s.tx.Exec(ctx, `UPDATE transactions SET response_body = $2::jsonb WHERE id = $1`,
		uuid.MustParse(txn.ID), string(body))
	return err
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var txn Transaction
	var id, orgID, cardID uuid.UUID
	var amount pgtype.Numeric
	var reason *string
	var body []byte

	err := row.Scan(&id, &orgID, &cardID, &txn.StationID, &amount, &txn.IdempotencyKey,
		&txn.TxnAtUtc, &txn.Status, &reason, &body, &txn.ResponseStatusCode, &txn.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}

	txn.ID = id.String()
	txn.OrgID = orgID.String()
	txn.CardID = cardID.String()
	txn.TxnAtUtc = txn.TxnAtUtc.UTC()
	txn.CreatedAt = txn.CreatedAt.UTC()
	if reason != nil {
		txn.ReasonCode = rules.Reason(*reason)
	}

	txn.Amount, err = organizations.DecimalFromNumeric(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("decode amount: %w", err)
	}
	if err := json.Unmarshal(body, &txn.ResponseBody); err != nil {
		return Transaction{}, fmt.Errorf("decode response body: %w", err)
	}
	return txn, nil
}
