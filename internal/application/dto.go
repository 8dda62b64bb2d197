package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	bookingDomain "github.com/khidma/service-settlement/internal/domain/booking"
	payoutDomain "github.com/khidma/service-settlement/internal/domain/payout"
	promoDomain "github.com/khidma/service-settlement/internal/domain/promo"
	walletDomain "github.com/khidma/service-settlement/internal/domain/wallet"
)

// PromoDTO is the API response representation of a promo code.
type PromoDTO struct {
	ID                   uuid.UUID        `json:"id"`
	Code                 string           `json:"code"`
	DiscountType         string           `json:"discount_type"`
	DiscountValue        decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount    *decimal.Decimal `json:"max_discount_amount,omitempty"`
	FreeServiceID        string           `json:"free_service_id,omitempty"`
	FreeServicePrice     *decimal.Decimal `json:"free_service_price,omitempty"`
	MinOrderValue        decimal.Decimal  `json:"min_order_value"`
	ValidFrom            time.Time        `json:"valid_from"`
	ValidUntil           time.Time        `json:"valid_until"`
	UsageLimit           *int             `json:"usage_limit,omitempty"`
	UsageLimitPerUser    int              `json:"usage_limit_per_user"`
	UsedCount            int              `json:"used_count"`
	IsActive             bool             `json:"is_active"`
	ApplicableServiceIDs []string         `json:"applicable_service_ids"`
	OwnerID              *uuid.UUID       `json:"owner_id,omitempty"`
	Version              int64            `json:"version"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// PromoValidationDTO is the result of validating a promo code.
type PromoValidationDTO struct {
	Valid          bool            `json:"valid"`
	Code           string          `json:"code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Reason         string          `json:"reason,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// BookingDTO is the API response representation of a booking.
type BookingDTO struct {
	ID                 uuid.UUID       `json:"id"`
	ClientID           uuid.UUID       `json:"client_id"`
	ProviderID         uuid.UUID       `json:"provider_id"`
	ServiceIDs         []string        `json:"service_ids"`
	Currency           string          `json:"currency"`
	Status             string          `json:"status"`
	PaymentStatus      string          `json:"payment_status"`
	PaymentMethod      string          `json:"payment_method,omitempty"`
	PaymentReference   string          `json:"payment_reference,omitempty"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	TaxAmount          decimal.Decimal `json:"tax_amount"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	CommissionRate     decimal.Decimal `json:"commission_rate"`
	CommissionAmount   decimal.Decimal `json:"commission_amount"`
	PaymentDeadline    *time.Time      `json:"payment_deadline,omitempty"`
	PromoCodeID        *uuid.UUID      `json:"promo_code_id,omitempty"`
	ProviderAcceptedAt *time.Time      `json:"provider_accepted_at,omitempty"`
	CancelReason       string          `json:"cancel_reason,omitempty"`
	ConfirmedAt        *time.Time      `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// LedgerEntryDTO is one wallet ledger row.
type LedgerEntryDTO struct {
	ID            uuid.UUID       `json:"id"`
	Account       string          `json:"account"`
	Sequence      int64           `json:"sequence"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	ReferenceType string          `json:"reference_type"`
	ReferenceID   string          `json:"reference_id"`
	CreatedAt     time.Time       `json:"created_at"`
}

// WalletBalanceDTO is a client's spendable wallet balance.
type WalletBalanceDTO struct {
	OwnerID  uuid.UUID       `json:"owner_id"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// PayableBalanceDTO breaks down what a provider can withdraw.
type PayableBalanceDTO struct {
	ProviderID uuid.UUID       `json:"provider_id"`
	Balance    decimal.Decimal `json:"balance"`
	Reserved   decimal.Decimal `json:"reserved"`
	Available  decimal.Decimal `json:"available"`
	Currency   string          `json:"currency"`
}

// BankDetailsDTO carries payout destination details.
type BankDetailsDTO struct {
	BankName      string `json:"bank_name" binding:"required"`
	AccountHolder string `json:"account_holder" binding:"required"`
	IBAN          string `json:"iban,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
}

// WithdrawalDTO is the API response representation of a withdrawal request.
type WithdrawalDTO struct {
	ID                   uuid.UUID       `json:"id"`
	ProviderID           uuid.UUID       `json:"provider_id"`
	Amount               decimal.Decimal `json:"amount"`
	CommissionAmount     decimal.Decimal `json:"commission_amount"`
	NetAmount            decimal.Decimal `json:"net_amount"`
	Currency             string          `json:"currency"`
	Status               string          `json:"status"`
	Bank                 BankDetailsDTO  `json:"bank_details"`
	ReviewNote           string          `json:"review_note,omitempty"`
	RejectionReason      string          `json:"rejection_reason,omitempty"`
	TransactionReference string          `json:"transaction_reference,omitempty"`
	ReviewedBy           *uuid.UUID      `json:"reviewed_by,omitempty"`
	ApprovedAt           *time.Time      `json:"approved_at,omitempty"`
	ProcessedAt          *time.Time      `json:"processed_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	RejectedAt           *time.Time      `json:"rejected_at,omitempty"`
	Version              int64           `json:"version"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// ProviderProfileDTO is a provider's commission and payout settings.
type ProviderProfileDTO struct {
	ProviderID     uuid.UUID        `json:"provider_id"`
	CommissionRate decimal.Decimal  `json:"commission_rate"`
	CustomRate     *decimal.Decimal `json:"custom_rate,omitempty"`
	Bank           *BankDetailsDTO  `json:"bank_details,omitempty"`
	UpdatedAt      *time.Time       `json:"updated_at,omitempty"`
}

// Page is a slice of results with its total count.
type Page[T any] struct {
	Items []T
	Total int64
	Page  int
	Limit int
}

func toPromoDTO(p *promoDomain.PromoCode) *PromoDTO {
	d := p.Discount()
	dto := &PromoDTO{
		ID:                   p.ID(),
		Code:                 p.Code(),
		DiscountType:         string(d.Type),
		DiscountValue:        d.Value,
		MaxDiscountAmount:    d.MaxDiscountAmount,
		FreeServiceID:        d.FreeServiceID,
		MinOrderValue:        p.MinOrderValue(),
		ValidFrom:            p.ValidFrom(),
		ValidUntil:           p.ValidUntil(),
		UsageLimit:           p.UsageLimit(),
		UsageLimitPerUser:    p.UsageLimitPerUser(),
		UsedCount:            p.UsedCount(),
		IsActive:             p.IsActive(),
		ApplicableServiceIDs: p.ApplicableServiceIDs(),
		OwnerID:              p.OwnerID(),
		Version:              p.Version(),
		CreatedAt:            p.CreatedAt(),
		UpdatedAt:            p.UpdatedAt(),
	}
	if d.Type == promoDomain.DiscountFreeService {
		price := d.FreeServicePrice
		dto.FreeServicePrice = &price
	}
	if dto.ApplicableServiceIDs == nil {
		dto.ApplicableServiceIDs = []string{}
	}
	return dto
}

func toBookingDTO(b *bookingDomain.Booking) *BookingDTO {
	return &BookingDTO{
		ID:                 b.ID(),
		ClientID:           b.ClientID(),
		ProviderID:         b.ProviderID(),
		ServiceIDs:         b.ServiceIDs(),
		Currency:           b.Currency(),
		Status:             string(b.Status()),
		PaymentStatus:      string(b.PaymentStatus()),
		PaymentMethod:      string(b.PaymentMethod()),
		PaymentReference:   b.PaymentReference(),
		Subtotal:           b.Subtotal(),
		TaxAmount:          b.TaxAmount(),
		DiscountAmount:     b.DiscountAmount(),
		TotalAmount:        b.TotalAmount(),
		CommissionRate:     b.CommissionRate(),
		CommissionAmount:   b.CommissionAmount(),
		PaymentDeadline:    b.PaymentDeadline(),
		PromoCodeID:        b.PromoCodeID(),
		ProviderAcceptedAt: b.ProviderAcceptedAt(),
		CancelReason:       b.CancelReason(),
		ConfirmedAt:        b.ConfirmedAt(),
		CompletedAt:        b.CompletedAt(),
		CancelledAt:        b.CancelledAt(),
		Version:            b.Version(),
		CreatedAt:          b.CreatedAt(),
		UpdatedAt:          b.UpdatedAt(),
	}
}

func toLedgerEntryDTO(tx *walletDomain.Transaction) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:            tx.ID,
		Account:       string(tx.Account),
		Sequence:      tx.Sequence,
		Type:          string(tx.Type),
		Amount:        tx.Amount,
		BalanceBefore: tx.BalanceBefore,
		BalanceAfter:  tx.BalanceAfter,
		ReferenceType: string(tx.ReferenceType),
		ReferenceID:   tx.ReferenceID,
		CreatedAt:     tx.CreatedAt,
	}
}

func toBankDetailsDTO(b payoutDomain.BankDetails) BankDetailsDTO {
	return BankDetailsDTO{
		BankName:      b.BankName,
		AccountHolder: b.AccountHolder,
		IBAN:          b.IBAN,
		AccountNumber: b.AccountNumber,
	}
}

func (b BankDetailsDTO) toDomain() payoutDomain.BankDetails {
	return payoutDomain.BankDetails{
		BankName:      b.BankName,
		AccountHolder: b.AccountHolder,
		IBAN:          b.IBAN,
		AccountNumber: b.AccountNumber,
	}
}

func toWithdrawalDTO(w *payoutDomain.WithdrawalRequest) *WithdrawalDTO {
	return &WithdrawalDTO{
		ID:                   w.ID(),
		ProviderID:           w.ProviderID(),
		Amount:               w.Amount(),
		CommissionAmount:     w.CommissionAmount(),
		NetAmount:            w.NetAmount(),
		Currency:             w.Currency(),
		Status:               string(w.Status()),
		Bank:                 toBankDetailsDTO(w.Bank()),
		ReviewNote:           w.ReviewNote(),
		RejectionReason:      w.RejectionReason(),
		TransactionReference: w.TransactionReference(),
		ReviewedBy:           w.ReviewedBy(),
		ApprovedAt:           w.ApprovedAt(),
		ProcessedAt:          w.ProcessedAt(),
		CompletedAt:          w.CompletedAt(),
		RejectedAt:           w.RejectedAt(),
		Version:              w.Version(),
		CreatedAt:            w.CreatedAt(),
		UpdatedAt:            w.UpdatedAt(),
	}
}
