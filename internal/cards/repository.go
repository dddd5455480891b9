package cards

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petrolink/petrolink/internal/organizations"
)

// ErrNotFound indicates no card exists with the requested number.
var ErrNotFound = errors.New("card not found")

// Repository resolves cards for authorization.
type Repository interface {
	// FindByNumber returns the card with its owning organization loaded.
	FindByNumber(ctx context.Context, cardNumber string) (Card, error)
}

// PostgresRepository reads cards from PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindByNumber resolves a card by its unique number, joining the owning
// organization so the authorizer has the timezone at hand.
func (r *PostgresRepository) FindByNumber(ctx context.Context, cardNumber string) (Card, error) {
	const query = `
        SELECT c.id, c.card_number, c.daily_limit, c.monthly_limit, c.status, c.org_id,
               o.name, o.timezone, o.created_at
        FROM cards c
        INNER JOIN organizations o ON o.id = c.org_id
        WHERE c.card_number = $1`

	row := r.db.QueryRow(ctx, query, cardNumber)

	var card Card
	var cardID, orgID uuid.UUID
	var dailyLimit, monthlyLimit pgtype.Numeric
	if err := row.Scan(&cardID, &card.CardNumber, &dailyLimit, &monthlyLimit, &card.Status, &orgID,
		&card.Organization.Name, &card.Organization.Timezone, &card.Organization.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Card{}, ErrNotFound
		}
		return Card{}, err
	}

	card.ID = cardID.String()
	card.OrgID = orgID.String()
	card.Organization.ID = card.OrgID

	var err error
	card.DailyLimit, err = organizations.DecimalFromNumeric(dailyLimit)
	if err != nil {
		return Card{}, fmt.Errorf("decode daily limit: %w", err)
	}
	card.MonthlyLimit, err = organizations.DecimalFromNumeric(monthlyLimit)
	if err != nil {
		return Card{}, fmt.Errorf("decode monthly limit: %w", err)
	}

	return card, nil
}
