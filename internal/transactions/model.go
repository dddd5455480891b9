package transactions

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrolink/petrolink/internal/rules"
)

// Status is the terminal outcome of an authorization attempt.
type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// PeriodType scopes a spending counter to a local calendar bucket.
type PeriodType string

const (
	PeriodDaily   PeriodType = "DAILY"
	PeriodMonthly PeriodType = "MONTHLY"
)

// LimitCounter accumulates the amount a card has spent within one period.
// Rows are created lazily on first spend; a missing row means zero usage.
// (cardID, periodType, periodKey) is unique.
type LimitCounter struct {
	ID         string
	OrgID      string
	CardID     string
	PeriodType PeriodType
	PeriodKey  string
	UsedAmount decimal.Decimal
	UpdatedAt  time.Time
}

// Transaction is the append-only audit record of an authorization attempt
// that reached rule evaluation. The idempotency key is globally unique; once
// a transaction exists for a key its frozen response is replayed verbatim and
// nothing is mutated again.
type Transaction struct {
	ID                 string
	OrgID              string
	CardID             string
	StationID          string
	Amount             decimal.Decimal
	IdempotencyKey     string
	TxnAtUtc           time.Time
	Status             Status
	ReasonCode         rules.Reason
	ResponseBody       Response
	ResponseStatusCode int
	CreatedAt          time.Time
}
