package organizations

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrBalanceNotFound indicates no balance row exists for the organization.
var ErrBalanceNotFound = errors.New("organization balance not found")

// Repository exposes read access to organization balances.
type Repository interface {
	GetBalance(ctx context.Context, orgID string) (Balance, error)
}

// PostgresRepository reads organization data from PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetBalance fetches the current balance row without locking it.
func (r *PostgresRepository) GetBalance(ctx context.Context, orgID string) (Balance, error) {
	id, err := uuid.Parse(orgID)
	if err != nil {
		return Balance{}, fmt.Errorf("invalid organization id: %w", err)
	}

	row := r.db.QueryRow(ctx, `SELECT org_id, balance_amount, as_of FROM org_balances WHERE org_id = $1`, id)

	var b Balance
	var orgUUID uuid.UUID
	var amount pgtype.Numeric
	if err := row.Scan(&orgUUID, &amount, &b.AsOf); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Balance{}, ErrBalanceNotFound
		}
		return Balance{}, err
	}

	b.OrgID = orgUUID.String()
	b.Amount, err = DecimalFromNumeric(amount)
	if err != nil {
		return Balance{}, fmt.Errorf("decode balance amount: %w", err)
	}
	b.AsOf = b.AsOf.UTC()
	return b, nil
}

// DecimalFromNumeric converts a scanned numeric column into an exact decimal.
func DecimalFromNumeric(n pgtype.Numeric) (decimal.Decimal, error) {
	if !n.Valid {
		return decimal.Decimal{}, fmt.Errorf("numeric value is null")
	}
	v, err := n.Value()
	if err != nil {
		return decimal.Decimal{}, err
	}
	s, ok := v.(string)
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("unexpected numeric driver value %T", v)
	}
	return decimal.NewFromString(s)
}

// NumericFromDecimal converts a decimal into a numeric parameter value.
func NumericFromDecimal(d decimal.Decimal) (pgtype.Numeric, error) {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{}, err
	}
	return n, nil
}
