package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khidma/service-settlement/pkg/domain"
)

// Ledger applies balance changes through a transaction-bound Repository.
// It must be built from the repository of the enclosing unit of work so the
// account lock is held until commit.
type Ledger struct {
	repo Repository
	now  func() time.Time
}

// NewLedger creates a Ledger over repo.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo, now: time.Now}
}

// Debit subtracts e.Amount, failing with ErrInsufficientFunds when the balance
// does not cover it.
func (l *Ledger) Debit(ctx context.Context, e Entry) (*Transaction, error) {
	if e.Type.IsCredit() {
		return nil, domain.NewValidationError(fmt.Sprintf("%s is not a debit type", e.Type))
	}
	return l.append(ctx, e, true)
}

// Credit adds e.Amount.
func (l *Ledger) Credit(ctx context.Context, e Entry) (*Transaction, error) {
	if !e.Type.IsCredit() {
		return nil, domain.NewValidationError(fmt.Sprintf("%s is not a credit type", e.Type))
	}
	return l.append(ctx, e, false)
}

func (l *Ledger) append(ctx context.Context, e Entry, checkFunds bool) (*Transaction, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if err := l.repo.LockAccount(ctx, e.OwnerID, e.Account); err != nil {
		return nil, fmt.Errorf("failed to lock %s account: %w", e.Account, err)
	}

	prev, err := l.repo.Latest(ctx, e.OwnerID, e.Account)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest ledger row: %w", err)
	}

	if checkFunds {
		balance := decimal.Zero
		if prev != nil {
			balance = prev.BalanceAfter
		}
		if e.Amount.GreaterThan(balance) {
			sentinel := domain.ErrInsufficientFunds
			if e.Account == AccountPayable {
				sentinel = domain.ErrInsufficientPayableBalance
			}
			return nil, domain.NewBusinessError(sentinel, "",
				fmt.Sprintf("balance %s does not cover %s", balance.StringFixed(2), e.Amount.StringFixed(2)))
		}
	}

	tx, err := Next(prev, e, l.now())
	if err != nil {
		return nil, err
	}
	if err := l.repo.Append(ctx, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Balance returns the latest balance_after, or zero for an empty account.
func (l *Ledger) Balance(ctx context.Context, ownerID uuid.UUID, account Account) (decimal.Decimal, error) {
	prev, err := l.repo.Latest(ctx, ownerID, account)
	if err != nil {
		return decimal.Zero, err
	}
	if prev == nil {
		return decimal.Zero, nil
	}
	return prev.BalanceAfter, nil
}

// Verification is the outcome of replaying an account.
type Verification struct {
	OwnerID  uuid.UUID       `json:"owner_id"`
	Account  Account         `json:"account"`
	Rows     int             `json:"rows"`
	Balance  decimal.Decimal `json:"balance"`
	Valid    bool            `json:"valid"`
	BrokenAt *int64          `json:"broken_at_sequence,omitempty"`
	Problem  string          `json:"problem,omitempty"`
}

// Verify replays rows in sequence order and reports the first broken link.
func Verify(ownerID uuid.UUID, account Account, rows []*Transaction) Verification {
	v := Verification{OwnerID: ownerID, Account: account, Rows: len(rows), Balance: decimal.Zero, Valid: true}

	fail := func(seq int64, problem string) Verification {
		v.Valid = false
		v.BrokenAt = &seq
		v.Problem = problem
		return v
	}

	running := decimal.Zero
	for i, row := range rows {
		wantSeq := int64(i + 1)
		switch {
		case row.Sequence != wantSeq:
			return fail(row.Sequence, fmt.Sprintf("expected sequence %d", wantSeq))
		case !row.BalanceBefore.Equal(running):
			return fail(row.Sequence, fmt.Sprintf("balance_before %s does not match running balance %s", row.BalanceBefore, running))
		case !row.BalanceAfter.Equal(row.BalanceBefore.Add(row.Amount)):
			return fail(row.Sequence, "balance_after != balance_before + amount")
		case row.BalanceAfter.IsNegative():
			return fail(row.Sequence, "negative balance")
		case row.Type.IsCredit() != row.Amount.IsPositive():
			return fail(row.Sequence, fmt.Sprintf("amount sign does not match type %s", row.Type))
		}
		running = row.BalanceAfter
	}
	v.Balance = running
	return v
}
