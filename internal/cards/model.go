package cards

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrolink/petrolink/internal/organizations"
)

// Status is the lifecycle state of a fuel card. Only active cards may
// transact.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
	StatusBlocked  Status = "BLOCKED"
)

// Card is a fuel card issued to an organization, with per-period spending
// limits enforced against the organization's local calendar.
type Card struct {
	ID           string
	CardNumber   string
	DailyLimit   decimal.Decimal
	MonthlyLimit decimal.Decimal
	Status       Status
	OrgID        string
	Organization organizations.Organization
	CreatedAt    time.Time
}
