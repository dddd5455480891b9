package organizations

import (
	"time"

	"github.com/shopspring/decimal"
)

// Organization owns cards and a single prepaid balance. Timezone is the IANA
// zone its accounting periods are computed in.
type Organization struct {
	ID        string
	Name      string
	Timezone  string
	CreatedAt time.Time
}

// Balance is the one prepaid balance row per organization. It is only ever
// mutated inside an authorization's atomic unit of work, under an exclusive
// row lock.
type Balance struct {
	OrgID  string
	Amount decimal.Decimal
	AsOf   time.Time
}

// LedgerEntry is an append-only record of one balance mutation. TxnID is
// empty until the owning transaction row has been assigned an id, then
// backfilled exactly once within the same unit of work.
type LedgerEntry struct {
	ID           string
	OrgID        string
	TxnID        string
	DeltaAmount  decimal.Decimal
	BalanceAfter decimal.Decimal
	CreatedAt    time.Time
}
