package transactions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/petrolink/petrolink/internal/cards"
	"github.com/petrolink/petrolink/internal/notification"
	"github.com/petrolink/petrolink/internal/organizations"
	"github.com/petrolink/petrolink/internal/period"
	"github.com/petrolink/petrolink/internal/rules"
)

var (
	// ErrMissingIdempotencyKey indicates the caller supplied no idempotency
	// key. Rejected before any store access.
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")

	// ErrCardInactive indicates the resolved card is not ACTIVE. Surfaced
	// before the unit of work opens; unlike rule rejections, no transaction
	// record is persisted for it.
	ErrCardInactive = errors.New("card is not active")
)

// RejectionError signals a business rejection that has already been committed
// as a REJECTED transaction record. It is the system completing correctly,
// not a storage fault: the record and this signal commit together.
type RejectionError struct {
	Response Response
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("transaction rejected: %s", e.Response.Reason)
}

// AuthorizationRequest is the validated payload of one fuel-purchase webhook.
type AuthorizationRequest struct {
	CardNumber string
	Amount     decimal.Decimal
	TxnAtUtc   time.Time
	StationID  string
}

// Result is the outcome handed back to the transport layer: the response body
// plus the HTTP-equivalent status code frozen on the transaction record.
type Result struct {
	Response   Response
	StatusCode int
	Replayed   bool
}

// Service is the transaction authorizer. It deduplicates requests by
// idempotency key, resolves the card, and runs the locked
// evaluate-and-commit sequence inside one atomic unit of work.
type Service struct {
	store    Store
	cards    cards.Repository
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs the authorizer.
func NewService(store Store, cardRepo cards.Repository, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: store, cards: cardRepo, notifier: notifier, logger: logger}
}

// Authorize processes one fuel-purchase authorization attempt.
//
// Replays return the stored response verbatim without taking any locks. Fresh
// rejections return the REJECTED response together with a *RejectionError;
// the record behind them is already committed. Approvals commit the balance
// debit, ledger entry, counter increments and transaction record atomically.
func (s *Service) Authorize(ctx context.Context, req AuthorizationRequest, idempotencyKey string) (Result, error) {
	if idempotencyKey == "" {
		return Result{}, ErrMissingIdempotencyKey
	}

	prior, err := s.store.FindByIdempotencyKey(ctx, idempotencyKey)
	if err == nil {
		return Result{Response: prior.ResponseBody, StatusCode: prior.ResponseStatusCode, Replayed: true}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Result{}, fmt.Errorf("idempotency lookup: %w", err)
	}

	card, err := s.cards.FindByNumber(ctx, req.CardNumber)
	if err != nil {
		return Result{}, err
	}
	if card.Status != cards.StatusActive {
		return Result{}, ErrCardInactive
	}

	result, err := s.authorizeLocked(ctx, card, req, idempotencyKey)
	if err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			// A concurrent request with the same key committed first. Replay
			// the winner's stored response instead of failing.
			winner, lookupErr := s.store.FindByIdempotencyKey(ctx, idempotencyKey)
			if lookupErr != nil {
				return Result{}, fmt.Errorf("resolve idempotency race: %w", lookupErr)
			}
			return Result{Response: winner.ResponseBody, StatusCode: winner.ResponseStatusCode, Replayed: true}, nil
		}

		var rejection *RejectionError
		if errors.As(err, &rejection) {
			s.notify(ctx, notification.KindAuthorizationRejected, card, req, string(rejection.Response.Reason))
			return Result{Response: rejection.Response, StatusCode: http.StatusUnprocessableEntity}, err
		}
		return Result{}, err
	}

	s.notify(ctx, notification.KindAuthorizationApproved, card, req, result.Response.TransactionID)
	return result, nil
}

// authorizeLocked runs the atomic portion of the state machine: period
// computation, lock acquisition in the fixed order (balance, daily counter,
// monthly counter), rule evaluation, and either the rejection persist or the
// approval mutations. A rejection commits its record and is signalled after
// the commit; every other error rolls the unit back.
func (s *Service) authorizeLocked(ctx context.Context, card cards.Card, req AuthorizationRequest, idempotencyKey string) (Result, error) {
	var (
		result    Result
		rejection *RejectionError
	)

	err := s.store.WithinTx(ctx, func(tx TxStore) error {
		dailyKey, monthlyKey, err := period.Keys(req.TxnAtUtc, card.Organization.Timezone)
		if err != nil {
			return err
		}

		balance, err := tx.LockBalance(ctx, card.OrgID)
		if err != nil {
			return err
		}
		daily, dailyFound, err := tx.LockCounter(ctx, card.ID, PeriodDaily, dailyKey)
		if err != nil {
			return err
		}
		monthly, monthlyFound, err := tx.LockCounter(ctx, card.ID, PeriodMonthly, monthlyKey)
		if err != nil {
			return err
		}

		dailyUsed := decimal.Zero
		if dailyFound {
			dailyUsed = daily.UsedAmount
		}
		monthlyUsed := decimal.Zero
		if monthlyFound {
			monthlyUsed = monthly.UsedAmount
		}

		now := time.Now().UTC()
		reason, approved := rules.Evaluate(rules.Input{
			Balance:      balance.Amount,
			DailyUsed:    dailyUsed,
			MonthlyUsed:  monthlyUsed,
			DailyLimit:   card.DailyLimit,
			MonthlyLimit: card.MonthlyLimit,
			Amount:       req.Amount,
		})

		if !approved {
			resp := Rejected(reason)
			txn := Transaction{
				OrgID:              card.OrgID,
				CardID:             card.ID,
				StationID:          req.StationID,
				Amount:             req.Amount,
				IdempotencyKey:     idempotencyKey,
				TxnAtUtc:           req.TxnAtUtc,
				Status:             StatusRejected,
				ReasonCode:         reason,
				ResponseBody:       resp,
				ResponseStatusCode: http.StatusUnprocessableEntity,
				CreatedAt:          now,
			}
			if err := tx.InsertTransaction(ctx, &txn); err != nil {
				return err
			}
			// Returning nil commits the rejection record; the signal is
			// raised after the unit of work ends.
			rejection = &RejectionError{Response: resp}
			return nil
		}

		balance.Amount = balance.Amount.Sub(req.Amount)
		balance.AsOf = now
		if err := tx.SaveBalance(ctx, balance); err != nil {
			return err
		}

		entry := organizations.LedgerEntry{
			OrgID:        card.OrgID,
			DeltaAmount:  req.Amount.Neg(),
			BalanceAfter: balance.Amount,
			CreatedAt:    now,
		}
		if err := tx.AppendLedgerEntry(ctx, &entry); err != nil {
			return err
		}

		for _, upsert := range []LimitCounter{
			{OrgID: card.OrgID, CardID: card.ID, PeriodType: PeriodDaily, PeriodKey: dailyKey, UsedAmount: dailyUsed.Add(req.Amount), UpdatedAt: now},
			{OrgID: card.OrgID, CardID: card.ID, PeriodType: PeriodMonthly, PeriodKey: monthlyKey, UsedAmount: monthlyUsed.Add(req.Amount), UpdatedAt: now},
		} {
			if err := tx.UpsertCounter(ctx, upsert); err != nil {
				return err
			}
		}

		txn := Transaction{
			OrgID:              card.OrgID,
			CardID:             card.ID,
			StationID:          req.StationID,
			Amount:             req.Amount,
			IdempotencyKey:     idempotencyKey,
			TxnAtUtc:           req.TxnAtUtc,
			Status:             StatusApproved,
			ResponseBody:       Approved("", balance.Amount),
			ResponseStatusCode: http.StatusOK,
			CreatedAt:          now,
		}
		if err := tx.InsertTransaction(ctx, &txn); err != nil {
			return err
		}

		if err := tx.LinkLedgerEntry(ctx, entry.ID, txn.ID); err != nil {
			return err
		}

		txn.ResponseBody.TransactionID = txn.ID
		if err := tx.UpdateTransactionResponse(ctx, txn); err != nil {
			return err
		}

		result = Result{Response: txn.ResponseBody, StatusCode: txn.ResponseStatusCode}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	if rejection != nil {
		return Result{}, rejection
	}
	return result, nil
}

func (s *Service) notify(ctx context.Context, kind string, card cards.Card, req AuthorizationRequest, detail string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:      kind,
		OrgID:     card.OrgID,
		CardID:    card.ID,
		StationID: req.StationID,
		Detail:    detail,
	}); err != nil && s.logger != nil {
		s.logger.Warn("send notification", "kind", kind, "error", err)
	}
}
