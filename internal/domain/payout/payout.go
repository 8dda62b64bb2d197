package payout

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khidma/service-settlement/pkg/domain"
)

var hundred = decimal.NewFromInt(100)

// CalculateCommission returns amount * rate / 100 rounded half-up to 2 decimals.
func CalculateCommission(amount, ratePercent decimal.Decimal) decimal.Decimal {
	return amount.Mul(ratePercent).Div(hundred).Round(2)
}

// ValidateRate checks a percentage rate is within [0, 100].
func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return domain.NewValidationError("rate must be between 0 and 100")
	}
	return nil
}

// BankDetails identifies where a payout is sent.
type BankDetails struct {
	BankName      string `json:"bank_name"`
	AccountHolder string `json:"account_holder"`
	IBAN          string `json:"iban,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
}

// IsZero reports whether no details were supplied.
func (b BankDetails) IsZero() bool {
	return b == BankDetails{}
}

// Validate checks the details are complete enough to pay out.
func (b BankDetails) Validate() error {
	if strings.TrimSpace(b.BankName) == "" || strings.TrimSpace(b.AccountHolder) == "" {
		return domain.NewValidationError("bank_name and account_holder are required")
	}
	if strings.TrimSpace(b.IBAN) == "" && strings.TrimSpace(b.AccountNumber) == "" {
		return domain.NewValidationError("iban or account_number is required")
	}
	return nil
}

// ProviderProfile holds the provider data settlement needs.
type ProviderProfile struct {
	ProviderID     uuid.UUID
	CommissionRate *decimal.Decimal
	Bank           BankDetails
	UpdatedAt      time.Time
}

// EffectiveRate returns the provider's rate, or fallback when none is set.
func (p *ProviderProfile) EffectiveRate(fallback decimal.Decimal) decimal.Decimal {
	if p == nil || p.CommissionRate == nil {
		return fallback
	}
	return *p.CommissionRate
}

// Status represents the state of a withdrawal request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusApproved   Status = "approved"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// ReservingStatuses are the states whose amount is held against the payable balance.
var ReservingStatuses = []Status{StatusPending, StatusApproved, StatusProcessing}

// Action is an admin review decision.
type Action string

const (
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
	ActionProcess  Action = "process"
	ActionComplete Action = "complete"
)

// WithdrawalRequest is the aggregate root for provider payouts.
type WithdrawalRequest struct {
	id                   uuid.UUID
	providerID           uuid.UUID
	amount               decimal.Decimal
	commissionAmount     decimal.Decimal
	netAmount            decimal.Decimal
	currency             string
	status               Status
	bank                 BankDetails
	reviewNote           string
	rejectionReason      string
	transactionReference string
	reviewedBy           *uuid.UUID
	approvedAt           *time.Time
	processedAt          *time.Time
	completedAt          *time.Time
	rejectedAt           *time.Time
	version              int64
	createdAt            time.Time
	updatedAt            time.Time
}

// NewWithdrawalRequest creates a pending request. feeRate is a percentage.
func NewWithdrawalRequest(providerID uuid.UUID, amount, feeRate decimal.Decimal, currency string, bank BankDetails, now time.Time) (*WithdrawalRequest, error) {
	if providerID == uuid.Nil {
		return nil, domain.NewValidationError("provider is required")
	}
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("withdrawal amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, domain.NewValidationError("withdrawal amount has more than two decimals")
	}
	if err := ValidateRate(feeRate); err != nil {
		return nil, err
	}
	if err := bank.Validate(); err != nil {
		return nil, err
	}

	commission := CalculateCommission(amount, feeRate)
	now = now.UTC()
	return &WithdrawalRequest{
		id:               uuid.New(),
		providerID:       providerID,
		amount:           amount,
		commissionAmount: commission,
		netAmount:        amount.Sub(commission),
		currency:         strings.ToUpper(currency),
		status:           StatusPending,
		bank:             bank,
		version:          1,
		createdAt:        now,
		updatedAt:        now,
	}, nil
}

// Approve moves a pending request to approved.
func (w *WithdrawalRequest) Approve(adminID uuid.UUID, note string, now time.Time) error {
	if w.status != StatusPending {
		return domain.NewInvalidStateError(string(w.status), string(StatusApproved))
	}
	now = now.UTC()
	w.status = StatusApproved
	w.review(adminID, note, now)
	w.approvedAt = &now
	return nil
}

// Reject closes a pending or approved request. A reason is mandatory.
func (w *WithdrawalRequest) Reject(adminID uuid.UUID, reason string, now time.Time) error {
	if w.status != StatusPending && w.status != StatusApproved {
		return domain.NewInvalidStateError(string(w.status), string(StatusRejected))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.NewValidationError("rejection reason is required")
	}
	now = now.UTC()
	w.status = StatusRejected
	w.rejectionReason = reason
	w.review(adminID, reason, now)
	w.rejectedAt = &now
	return nil
}

// Process marks an approved request as being paid out.
func (w *WithdrawalRequest) Process(adminID uuid.UUID, note string, now time.Time) error {
	if w.status != StatusApproved {
		return domain.NewInvalidStateError(string(w.status), string(StatusProcessing))
	}
	now = now.UTC()
	w.status = StatusProcessing
	w.review(adminID, note, now)
	w.processedAt = &now
	return nil
}

// Complete records the bank transfer. The caller must debit the provider's
// payable account in the same transaction.
func (w *WithdrawalRequest) Complete(adminID uuid.UUID, reference, note string, now time.Time) error {
	if w.status != StatusApproved && w.status != StatusProcessing {
		return domain.NewInvalidStateError(string(w.status), string(StatusCompleted))
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return domain.NewValidationError("transaction reference is required")
	}
	now = now.UTC()
	w.status = StatusCompleted
	w.transactionReference = reference
	w.review(adminID, note, now)
	w.completedAt = &now
	return nil
}

func (w *WithdrawalRequest) review(adminID uuid.UUID, note string, now time.Time) {
	w.reviewedBy = &adminID
	if note = strings.TrimSpace(note); note != "" {
		w.reviewNote = note
	}
	w.version++
	w.updatedAt = now
}

// --- Getters ---

func (w *WithdrawalRequest) ID() uuid.UUID                     { return w.id }
func (w *WithdrawalRequest) ProviderID() uuid.UUID             { return w.providerID }
func (w *WithdrawalRequest) Amount() decimal.Decimal           { return w.amount }
func (w *WithdrawalRequest) CommissionAmount() decimal.Decimal { return w.commissionAmount }
func (w *WithdrawalRequest) NetAmount() decimal.Decimal        { return w.netAmount }
func (w *WithdrawalRequest) Currency() string                  { return w.currency }
func (w *WithdrawalRequest) Status() Status                    { return w.status }
func (w *WithdrawalRequest) Bank() BankDetails                 { return w.bank }
func (w *WithdrawalRequest) ReviewNote() string                { return w.reviewNote }
func (w *WithdrawalRequest) RejectionReason() string           { return w.rejectionReason }
func (w *WithdrawalRequest) TransactionReference() string      { return w.transactionReference }
func (w *WithdrawalRequest) ReviewedBy() *uuid.UUID            { return w.reviewedBy }
func (w *WithdrawalRequest) ApprovedAt() *time.Time            { return w.approvedAt }
func (w *WithdrawalRequest) ProcessedAt() *time.Time           { return w.processedAt }
func (w *WithdrawalRequest) CompletedAt() *time.Time           { return w.completedAt }
func (w *WithdrawalRequest) RejectedAt() *time.Time            { return w.rejectedAt }
func (w *WithdrawalRequest) Version() int64                    { return w.version }
func (w *WithdrawalRequest) CreatedAt() time.Time              { return w.createdAt }
func (w *WithdrawalRequest) UpdatedAt() time.Time              { return w.updatedAt }

// Snapshot is the persisted form of a WithdrawalRequest.
type Snapshot struct {
	ID                   uuid.UUID
	ProviderID           uuid.UUID
	Amount               decimal.Decimal
	CommissionAmount     decimal.Decimal
	NetAmount            decimal.Decimal
	Currency             string
	Status               Status
	Bank                 BankDetails
	ReviewNote           string
	RejectionReason      string
	TransactionReference string
	ReviewedBy           *uuid.UUID
	ApprovedAt           *time.Time
	ProcessedAt          *time.Time
	CompletedAt          *time.Time
	RejectedAt           *time.Time
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Reconstitute rebuilds a WithdrawalRequest from persisted data.
func Reconstitute(s Snapshot) *WithdrawalRequest {
	return &WithdrawalRequest{
		id: s.ID, providerID: s.ProviderID, amount: s.Amount, commissionAmount: s.CommissionAmount,
		netAmount: s.NetAmount, currency: s.Currency, status: s.Status, bank: s.Bank,
		reviewNote: s.ReviewNote, rejectionReason: s.RejectionReason, transactionReference: s.TransactionReference,
		reviewedBy: s.ReviewedBy, approvedAt: s.ApprovedAt, processedAt: s.ProcessedAt,
		completedAt: s.CompletedAt, rejectedAt: s.RejectedAt,
		version: s.Version, createdAt: s.CreatedAt, updatedAt: s.UpdatedAt,
	}
}

// Snapshot returns the persisted form of w.
func (w *WithdrawalRequest) Snapshot() Snapshot {
	return Snapshot{
		ID: w.id, ProviderID: w.providerID, Amount: w.amount, CommissionAmount: w.commissionAmount,
		NetAmount: w.netAmount, Currency: w.currency, Status: w.status, Bank: w.bank,
		ReviewNote: w.reviewNote, RejectionReason: w.rejectionReason, TransactionReference: w.transactionReference,
		ReviewedBy: w.reviewedBy, ApprovedAt: w.approvedAt, ProcessedAt: w.processedAt,
		CompletedAt: w.completedAt, RejectedAt: w.rejectedAt,
		Version: w.version, CreatedAt: w.createdAt, UpdatedAt: w.updatedAt,
	}
}
