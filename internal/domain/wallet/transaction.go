package wallet

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khidma/service-settlement/pkg/domain"
)

// Account selects one of an owner's balances.
type Account string

const (
	// AccountWallet is the client spending wallet.
	AccountWallet Account = "wallet"
	// AccountPayable is what the platform owes a provider.
	AccountPayable Account = "payable"
)

// IsValid reports whether a is a known account.
func (a Account) IsValid() bool {
	return a == AccountWallet || a == AccountPayable
}

// TransactionType classifies a ledger row and fixes the sign of its amount.
type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypePayment    TransactionType = "payment"
	TypeRefund     TransactionType = "refund"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeEarning    TransactionType = "earning"
)

// IsCredit reports whether rows of this type add to the balance.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TypeDeposit, TypeRefund, TypeEarning:
		return true
	}
	return false
}

// IsValid reports whether t is a known type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TypeDeposit, TypePayment, TypeRefund, TypeWithdrawal, TypeEarning:
		return true
	}
	return false
}

// ReferenceType names the entity a row settles.
type ReferenceType string

const (
	RefBooking    ReferenceType = "booking"
	RefDeposit    ReferenceType = "deposit"
	RefWithdrawal ReferenceType = "withdrawal"
)

// Transaction is one immutable ledger row.
type Transaction struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	Account       Account
	Sequence      int64
	Type          TransactionType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceType ReferenceType
	ReferenceID   string
	CreatedAt     time.Time
}

// Entry is a requested balance change. Amount is always positive; the type
// decides the direction.
type Entry struct {
	OwnerID       uuid.UUID
	Account       Account
	Type          TransactionType
	Amount        decimal.Decimal
	ReferenceType ReferenceType
	ReferenceID   string
}

func (e Entry) validate() error {
	if e.OwnerID == uuid.Nil {
		return domain.NewValidationError("ledger entry requires an owner")
	}
	if !e.Account.IsValid() {
		return domain.NewValidationError(fmt.Sprintf("unknown account %q", e.Account))
	}
	if !e.Type.IsValid() {
		return domain.NewValidationError(fmt.Sprintf("unknown transaction type %q", e.Type))
	}
	if !e.Amount.IsPositive() {
		return domain.NewValidationError("ledger amount must be positive")
	}
	if !e.Amount.Equal(e.Amount.Round(2)) {
		return domain.NewValidationError("ledger amount has more than two decimals")
	}
	return nil
}

// signed returns the amount as it is stored on the row.
func (e Entry) signed() decimal.Decimal {
	if e.Type.IsCredit() {
		return e.Amount
	}
	return e.Amount.Neg()
}

// Next builds the row that follows prev (nil for the first row of an account).
func Next(prev *Transaction, e Entry, now time.Time) (*Transaction, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	before := decimal.Zero
	seq := int64(1)
	if prev != nil {
		if prev.OwnerID != e.OwnerID || prev.Account != e.Account {
			return nil, fmt.Errorf("ledger chain mismatch: previous row belongs to %s/%s", prev.OwnerID, prev.Account)
		}
		before = prev.BalanceAfter
		seq = prev.Sequence + 1
	}

	amount := e.signed()
	after := before.Add(amount)
	if after.IsNegative() {
		return nil, fmt.Errorf("ledger invariant violated: balance_after %s is negative", after)
	}

	return &Transaction{
		ID:            uuid.New(),
		OwnerID:       e.OwnerID,
		Account:       e.Account,
		Sequence:      seq,
		Type:          e.Type,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		CreatedAt:     now.UTC(),
	}, nil
}
