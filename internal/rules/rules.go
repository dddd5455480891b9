package rules

import "github.com/shopspring/decimal"

// Reason identifies why an authorization attempt was rejected.
type Reason string

const (
	ReasonInsufficientFunds    Reason = "INSUFFICIENT_FUNDS"
	ReasonDailyLimitExceeded   Reason = "DAILY_LIMIT_EXCEEDED"
	ReasonMonthlyLimitExceeded Reason = "MONTHLY_LIMIT_EXCEEDED"
	// ReasonCardInactive is surfaced before the locked evaluation runs and is
	// never produced by Evaluate.
	ReasonCardInactive Reason = "CARD_INACTIVE"
)

// Input carries the locked state an authorization is evaluated against.
// DailyUsed and MonthlyUsed are zero when no counter row exists yet.
type Input struct {
	Balance      decimal.Decimal
	DailyUsed    decimal.Decimal
	MonthlyUsed  decimal.Decimal
	DailyLimit   decimal.Decimal
	MonthlyLimit decimal.Decimal
	Amount       decimal.Decimal
}

// Evaluate applies the business rules in fixed precedence and returns the
// first matching rejection reason. Boundaries are inclusive: spending exactly
// up to the balance or a limit is approved.
func Evaluate(in Input) (Reason, bool) {
	switch {
	case in.Balance.LessThan(in.Amount):
		return ReasonInsufficientFunds, false
	case in.DailyUsed.Add(in.Amount).GreaterThan(in.DailyLimit):
		return ReasonDailyLimitExceeded, false
	case in.MonthlyUsed.Add(in.Amount).GreaterThan(in.MonthlyLimit):
		return ReasonMonthlyLimitExceeded, false
	default:
		return "", true
	}
}
