package transactions

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/petrolink/petrolink/internal/rules"
)

// Response is the caller-visible outcome of an authorization, a tagged
// variant: the APPROVED arm carries TransactionID and BalanceAfter, the
// REJECTED arm carries Reason. Exactly the active arm's fields appear in the
// JSON encoding, which is also the form frozen on the transaction record.
type Response struct {
	Status        Status
	TransactionID string
	BalanceAfter  decimal.Decimal
	Reason        rules.Reason
}

// Approved builds the APPROVED arm. The transaction id may be empty at build
// time and backfilled once the record has been assigned an id.
func Approved(transactionID string, balanceAfter decimal.Decimal) Response {
	return Response{Status: StatusApproved, TransactionID: transactionID, BalanceAfter: balanceAfter}
}

// Rejected builds the REJECTED arm.
func Rejected(reason rules.Reason) Response {
	return Response{Status: StatusRejected, Reason: reason}
}

type approvedJSON struct {
	Status        Status      `json:"status"`
	TransactionID string      `json:"transactionId"`
	BalanceAfter  json.Number `json:"balanceAfter"`
}

type rejectedJSON struct {
	Status Status       `json:"status"`
	Reason rules.Reason `json:"reason"`
}

// MarshalJSON encodes only the active arm.
func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Status {
	case StatusApproved:
		return json.Marshal(approvedJSON{
			Status:        r.Status,
			TransactionID: r.TransactionID,
			BalanceAfter:  json.Number(r.BalanceAfter.StringFixed(2)),
		})
	case StatusRejected:
		return json.Marshal(rejectedJSON{Status: r.Status, Reason: r.Reason})
	default:
		return nil, fmt.Errorf("unknown response status %q", r.Status)
	}
}

// UnmarshalJSON decodes a frozen response back into the variant.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		Status        Status       `json:"status"`
		TransactionID string       `json:"transactionId"`
		BalanceAfter  json.Number  `json:"balanceAfter"`
		Reason        rules.Reason `json:"reason"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch raw.Status {
	case StatusApproved:
		balance, err := decimal.NewFromString(raw.BalanceAfter.String())
		if err != nil {
			return fmt.Errorf("decode balanceAfter: %w", err)
		}
		*r = Approved(raw.TransactionID, balance)
	case StatusRejected:
		*r = Rejected(raw.Reason)
	default:
		return fmt.Errorf("unknown response status %q", raw.Status)
	}
	return nil
}
