package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/genflow-backend/internal/data/aggregates"
	"github.com/yungbote/genflow-backend/internal/data/repos"
	types "github.com/yungbote/genflow-backend/internal/domain"
	"github.com/yungbote/genflow-backend/internal/platform/dbctx"
	"github.com/yungbote/genflow-backend/internal/platform/logger"
)

type RefundOutcome string

const (
	RefundOK              RefundOutcome = "ok"
	RefundAlreadyRefunded RefundOutcome = "already_refunded"
)

// CreditLedger is the only writer of credit balances. Every successful debit
// or refund appends exactly one usage event in the same transaction.
type CreditLedger interface {
	Debit(dbc dbctx.Context, ownerID uuid.UUID, amount int64, generationID uuid.UUID) (*types.UsageEvent, error)
	Refund(dbc dbctx.Context, ownerID uuid.UUID, amount int64, generationID uuid.UUID, reason string) (RefundOutcome, error)
	Balance(dbc dbctx.Context, ownerID uuid.UUID) (*types.CreditAccount, error)
	History(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.UsageEvent, error)
}

type creditLedger struct {
	log      *logger.Logger
	txr      aggregates.TxRunner
	accounts repos.CreditAccountRepo
	events   repos.UsageEventRepo
}

func NewCreditLedger(baseLog *logger.Logger, txr aggregates.TxRunner, accounts repos.CreditAccountRepo, events repos.UsageEventRepo) CreditLedger {
	return &creditLedger{
		log:      baseLog.With("service", "CreditLedger"),
		txr:      txr,
		accounts: accounts,
		events:   events,
	}
}

func (l *creditLedger) Debit(dbc dbctx.Context, ownerID uuid.UUID, amount int64, generationID uuid.UUID) (*types.UsageEvent, error) {
	if ownerID == uuid.Nil || generationID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner and generation ids are required", types.ErrInvalidArgument)
	}
	if amount < 0 {
		return nil, fmt.Errorf("%w: negative debit amount", types.ErrInvalidArgument)
	}
	var ev *types.UsageEvent
	err := l.txr.InTxWith(dbc, func(dbc dbctx.Context) error {
		acct, err := l.accounts.LockByOwner(dbc, ownerID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if acct == nil {
			return &types.InsufficientBalanceError{Balance: 0, Required: amount}
		}
		if acct.CreditsBalance < amount {
			return &types.InsufficientBalanceError{Balance: acct.CreditsBalance, Required: amount}
		}
		ok, err := l.accounts.DebitIfSufficient(dbc, ownerID, amount)
		if err != nil {
			return fmt.Errorf("debit: %w", err)
		}
		if !ok {
			return &types.InsufficientBalanceError{Balance: acct.CreditsBalance, Required: amount}
		}
		ev = &types.UsageEvent{
			ID:           uuid.New(),
			OwnerID:      ownerID,
			EventType:    types.UsageEventDebit,
			Amount:       amount,
			GenerationID: generationID,
			BalanceAfter: acct.CreditsBalance - amount,
			Reason:       "generation started",
			CreatedAt:    time.Now().UTC(),
		}
		if err := l.events.Create(dbc, ev); err != nil {
			return fmt.Errorf("append debit event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Info("Credits debited", "owner_id", ownerID, "generation_id", generationID, "amount", amount, "balance_after", ev.BalanceAfter)
	return ev, nil
}

// Refund credits amount back for generationID at most once. A repeated refund
// reports RefundAlreadyRefunded with a nil error.
func (l *creditLedger) Refund(dbc dbctx.Context, ownerID uuid.UUID, amount int64, generationID uuid.UUID, reason string) (RefundOutcome, error) {
	if ownerID == uuid.Nil || generationID == uuid.Nil {
		return "", fmt.Errorf("%w: owner and generation ids are required", types.ErrInvalidArgument)
	}
	if amount < 0 {
		return "", fmt.Errorf("%w: negative refund amount", types.ErrInvalidArgument)
	}
	outcome := RefundOK
	var balanceAfter int64
	err := l.txr.InTxWith(dbc, func(dbc dbctx.Context) error {
		acct, err := l.accounts.LockByOwner(dbc, ownerID)
		if err != nil {
			return fmt.Errorf("lock account: %w", err)
		}
		if acct == nil {
			return fmt.Errorf("%w: credit account for owner", types.ErrNotFound)
		}
		exists, err := l.events.ExistsForGeneration(dbc, generationID, types.UsageEventRefund)
		if err != nil {
			return fmt.Errorf("check refund: %w", err)
		}
		if exists {
			outcome = RefundAlreadyRefunded
			return nil
		}
		if err := l.accounts.Credit(dbc, ownerID, amount); err != nil {
			return fmt.Errorf("credit: %w", err)
		}
		balanceAfter = acct.CreditsBalance + amount
		ev := &types.UsageEvent{
			ID:           uuid.New(),
			OwnerID:      ownerID,
			EventType:    types.UsageEventRefund,
			Amount:       amount,
			GenerationID: generationID,
			BalanceAfter: balanceAfter,
			Reason:       strings.TrimSpace(reason),
			CreatedAt:    time.Now().UTC(),
		}
		if err := l.events.Create(dbc, ev); err != nil {
			if aggregates.IsUniqueViolation(err) {
				// The unique index caught a concurrent refund; roll back our credit.
				return types.ErrAlreadyRefunded
			}
			return fmt.Errorf("append refund event: %w", err)
		}
		return nil
	})
	if errors.Is(err, types.ErrAlreadyRefunded) && dbc.Tx == nil {
		outcome, err = RefundAlreadyRefunded, nil
	}
	if err != nil {
		return "", err
	}
	if outcome == RefundAlreadyRefunded {
		l.log.Debug("Refund skipped; already refunded", "owner_id", ownerID, "generation_id", generationID)
		return outcome, nil
	}
	l.log.Info("Credits refunded", "owner_id", ownerID, "generation_id", generationID, "amount", amount, "balance_after", balanceAfter, "reason", reason)
	return outcome, nil
}

func (l *creditLedger) Balance(dbc dbctx.Context, ownerID uuid.UUID) (*types.CreditAccount, error) {
	acct, err := l.accounts.Get(dbc, ownerID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("%w: credit account for owner", types.ErrNotFound)
	}
	return acct, nil
}

func (l *creditLedger) History(dbc dbctx.Context, ownerID uuid.UUID, limit int) ([]*types.UsageEvent, error) {
	return l.events.ListByOwner(dbc, ownerID, limit)
}
