package booking

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/khidma/service-settlement/pkg/domain"
)

// Booking is the aggregate root tying a client order to its money movement.
type Booking struct {
	id                 uuid.UUID
	clientID           uuid.UUID
	providerID         uuid.UUID
	serviceIDs         []string
	currency           string
	status             Status
	paymentStatus      PaymentStatus
	paymentMethod      PaymentMethod
	paymentReference   string
	subtotal           decimal.Decimal
	taxAmount          decimal.Decimal
	discountAmount     decimal.Decimal
	totalAmount        decimal.Decimal
	commissionAmount   decimal.Decimal
	commissionRate     decimal.Decimal
	paymentDeadline    *time.Time
	promoCodeID        *uuid.UUID
	providerAcceptedAt *time.Time
	cancelReason       string
	cancelledBy        *uuid.UUID
	confirmedAt        *time.Time
	completedAt        *time.Time
	cancelledAt        *time.Time
	version            int64
	createdAt          time.Time
	updatedAt          time.Time
}

// NewBookingParams holds the priced order a booking is created from.
type NewBookingParams struct {
	// ID is optional; a new one is generated when zero.
	ID             uuid.UUID
	ClientID       uuid.UUID
	ProviderID     uuid.UUID
	ServiceIDs     []string
	Currency       string
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	PromoCodeID    *uuid.UUID
	PaymentTimeout time.Duration
	Now            time.Time
}

// NewBooking creates a pending, unpaid booking with a payment deadline.
// total = subtotal + tax - discount and must not be negative.
func NewBooking(p NewBookingParams) (*Booking, error) {
	if p.ClientID == uuid.Nil || p.ProviderID == uuid.Nil {
		return nil, domain.NewValidationError("client and provider are required")
	}
	if len(p.ServiceIDs) == 0 {
		return nil, domain.NewValidationError("at least one service is required")
	}
	for _, v := range []decimal.Decimal{p.Subtotal, p.TaxAmount, p.DiscountAmount} {
		if v.IsNegative() {
			return nil, domain.NewValidationError("booking amounts cannot be negative")
		}
	}
	if p.PaymentTimeout <= 0 {
		return nil, domain.NewValidationError("payment timeout must be positive")
	}

	subtotal := p.Subtotal.Round(2)
	tax := p.TaxAmount.Round(2)
	discount := p.DiscountAmount.Round(2)
	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		return nil, domain.NewValidationError("discount exceeds order total")
	}
	if p.PromoCodeID == nil && discount.IsPositive() {
		return nil, domain.NewValidationError("discount requires a promo code")
	}

	id := p.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := p.Now.UTC()
	deadline := now.Add(p.PaymentTimeout)
	return &Booking{
		id:              id,
		clientID:        p.ClientID,
		providerID:      p.ProviderID,
		serviceIDs:      p.ServiceIDs,
		currency:        strings.ToUpper(p.Currency),
		status:          StatusPending,
		paymentStatus:   PaymentUnpaid,
		subtotal:        subtotal,
		taxAmount:       tax,
		discountAmount:  discount,
		totalAmount:     total,
		paymentDeadline: &deadline,
		promoCodeID:     p.PromoCodeID,
		version:         1,
		createdAt:       now,
		updatedAt:       now,
	}, nil
}

// --- Behavior / State Transitions ---

// CheckPayable reports whether the booking can be paid at now.
func (b *Booking) CheckPayable(now time.Time) error {
	if !b.status.CanTransitionTo(StatusConfirmed) {
		return domain.NewInvalidStateError(string(b.status), string(StatusConfirmed))
	}
	if b.paymentStatus != PaymentUnpaid {
		return domain.NewInvalidStateError(string(b.paymentStatus), string(PaymentPaid))
	}
	if b.IsOverdue(now) {
		return domain.NewBusinessError(domain.ErrConflict, "payment_deadline_passed", "payment deadline has passed")
	}
	return nil
}

// MarkPaid confirms the booking after a successful debit or charge.
func (b *Booking) MarkPaid(method PaymentMethod, reference string, now time.Time) error {
	if !method.IsValid() {
		return domain.NewValidationError("payment method must be wallet or gateway")
	}
	if err := b.CheckPayable(now); err != nil {
		return err
	}
	now = now.UTC()
	b.status = StatusConfirmed
	b.paymentStatus = PaymentPaid
	b.paymentMethod = method
	b.paymentReference = reference
	b.paymentDeadline = nil
	b.confirmedAt = &now
	b.touch(now)
	return nil
}

// Accept records the provider's acceptance. Only pending, unpaid bookings can be
// accepted; accepting twice is a no-op.
func (b *Booking) Accept(now time.Time) error {
	if b.status != StatusPending || b.paymentStatus != PaymentUnpaid {
		return domain.NewInvalidStateError(string(b.status), "accepted")
	}
	if b.providerAcceptedAt != nil {
		return nil
	}
	now = now.UTC()
	b.providerAcceptedAt = &now
	b.touch(now)
	return nil
}

// Reject cancels a pending, unpaid booking on behalf of the provider.
func (b *Booking) Reject(providerID uuid.UUID, now time.Time) error {
	if b.status != StatusPending || b.paymentStatus != PaymentUnpaid {
		return domain.NewInvalidStateError(string(b.status), string(StatusCancelled))
	}
	_, err := b.Cancel(ReasonProviderRejected, &providerID, now)
	return err
}

// Cancel moves the booking to cancelled. When the booking was paid it becomes
// refunded and the returned amount must be credited back to the client.
func (b *Booking) Cancel(reason string, by *uuid.UUID, now time.Time) (decimal.Decimal, error) {
	if !b.status.CanTransitionTo(StatusCancelled) {
		return decimal.Zero, domain.NewInvalidStateError(string(b.status), string(StatusCancelled))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return decimal.Zero, domain.NewValidationError("cancel reason is required")
	}

	refund := decimal.Zero
	if b.paymentStatus == PaymentPaid {
		refund = b.totalAmount
		b.paymentStatus = PaymentRefunded
	}

	now = now.UTC()
	b.status = StatusCancelled
	b.cancelReason = reason
	b.cancelledBy = by
	b.cancelledAt = &now
	b.paymentDeadline = nil
	b.touch(now)
	return refund, nil
}

// Expire cancels an overdue, unpaid booking.
func (b *Booking) Expire(now time.Time) error {
	if b.status != StatusPending || b.paymentStatus != PaymentUnpaid || !b.IsOverdue(now) {
		return domain.NewInvalidStateError(string(b.status), string(StatusCancelled))
	}
	_, err := b.Cancel(ReasonPaymentTimeout, nil, now)
	return err
}

// Complete finishes a confirmed booking and stores its commission. It reports
// false without error when the booking is already completed.
func (b *Booking) Complete(commissionRate, commissionAmount decimal.Decimal, now time.Time) (bool, error) {
	if b.status == StatusCompleted {
		return false, nil
	}
	if !b.status.CanTransitionTo(StatusCompleted) {
		return false, domain.NewInvalidStateError(string(b.status), string(StatusCompleted))
	}
	if commissionAmount.IsNegative() || commissionAmount.GreaterThan(b.totalAmount) {
		return false, domain.NewValidationError("commission must be within the booking total")
	}
	now = now.UTC()
	b.status = StatusCompleted
	b.commissionRate = commissionRate
	b.commissionAmount = commissionAmount
	b.completedAt = &now
	b.touch(now)
	return true, nil
}

// ProviderEarning is what the provider is owed for a completed booking.
func (b *Booking) ProviderEarning() decimal.Decimal {
	return b.totalAmount.Sub(b.commissionAmount)
}

// IsOverdue reports whether the payment deadline passed before now.
func (b *Booking) IsOverdue(now time.Time) bool {
	return b.paymentDeadline != nil && b.paymentDeadline.Before(now)
}

// IsParticipant reports whether userID is the client or provider.
func (b *Booking) IsParticipant(userID uuid.UUID) bool {
	return b.clientID == userID || b.providerID == userID
}

func (b *Booking) touch(now time.Time) {
	b.version++
	b.updatedAt = now
}

// --- Getters ---

func (b *Booking) ID() uuid.UUID                     { return b.id }
func (b *Booking) ClientID() uuid.UUID               { return b.clientID }
func (b *Booking) ProviderID() uuid.UUID             { return b.providerID }
func (b *Booking) ServiceIDs() []string              { return b.serviceIDs }
func (b *Booking) Currency() string                  { return b.currency }
func (b *Booking) Status() Status                    { return b.status }
func (b *Booking) PaymentStatus() PaymentStatus      { return b.paymentStatus }
func (b *Booking) PaymentMethod() PaymentMethod      { return b.paymentMethod }
func (b *Booking) PaymentReference() string          { return b.paymentReference }
func (b *Booking) Subtotal() decimal.Decimal         { return b.subtotal }
func (b *Booking) TaxAmount() decimal.Decimal        { return b.taxAmount }
func (b *Booking) DiscountAmount() decimal.Decimal   { return b.discountAmount }
func (b *Booking) TotalAmount() decimal.Decimal      { return b.totalAmount }
func (b *Booking) CommissionAmount() decimal.Decimal { return b.commissionAmount }
func (b *Booking) CommissionRate() decimal.Decimal   { return b.commissionRate }
func (b *Booking) PaymentDeadline() *time.Time       { return b.paymentDeadline }
func (b *Booking) PromoCodeID() *uuid.UUID           { return b.promoCodeID }
func (b *Booking) ProviderAcceptedAt() *time.Time    { return b.providerAcceptedAt }
func (b *Booking) CancelReason() string              { return b.cancelReason }
func (b *Booking) CancelledBy() *uuid.UUID           { return b.cancelledBy }
func (b *Booking) ConfirmedAt() *time.Time           { return b.confirmedAt }
func (b *Booking) CompletedAt() *time.Time           { return b.completedAt }
func (b *Booking) CancelledAt() *time.Time           { return b.cancelledAt }
func (b *Booking) Version() int64                    { return b.version }
func (b *Booking) CreatedAt() time.Time              { return b.createdAt }
func (b *Booking) UpdatedAt() time.Time              { return b.updatedAt }

// --- Reconstitution ---

// Snapshot is the persisted form of a Booking.
type Snapshot struct {
	ID                 uuid.UUID
	ClientID           uuid.UUID
	ProviderID         uuid.UUID
	ServiceIDs         []string
	Currency           string
	Status             Status
	PaymentStatus      PaymentStatus
	PaymentMethod      PaymentMethod
	PaymentReference   string
	Subtotal           decimal.Decimal
	TaxAmount          decimal.Decimal
	DiscountAmount     decimal.Decimal
	TotalAmount        decimal.Decimal
	CommissionAmount   decimal.Decimal
	CommissionRate     decimal.Decimal
	PaymentDeadline    *time.Time
	PromoCodeID        *uuid.UUID
	ProviderAcceptedAt *time.Time
	CancelReason       string
	CancelledBy        *uuid.UUID
	ConfirmedAt        *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Reconstitute rebuilds a Booking from persisted data.
func Reconstitute(s Snapshot) *Booking {
	return &Booking{
		id: s.ID, clientID: s.ClientID, providerID: s.ProviderID, serviceIDs: s.ServiceIDs,
		currency: s.Currency, status: s.Status, paymentStatus: s.PaymentStatus,
		paymentMethod: s.PaymentMethod, paymentReference: s.PaymentReference,
		subtotal: s.Subtotal, taxAmount: s.TaxAmount, discountAmount: s.DiscountAmount,
		totalAmount: s.TotalAmount, commissionAmount: s.CommissionAmount, commissionRate: s.CommissionRate,
		paymentDeadline: s.PaymentDeadline, promoCodeID: s.PromoCodeID,
		providerAcceptedAt: s.ProviderAcceptedAt, cancelReason: s.CancelReason, cancelledBy: s.CancelledBy,
		confirmedAt: s.ConfirmedAt, completedAt: s.CompletedAt, cancelledAt: s.CancelledAt,
		version: s.Version, createdAt: s.CreatedAt, updatedAt: s.UpdatedAt,
	}
}

// Snapshot returns the persisted form of b.
func (b *Booking) Snapshot() Snapshot {
	return Snapshot{
		ID: b.id, ClientID: b.clientID, ProviderID: b.providerID, ServiceIDs: b.serviceIDs,
		Currency: b.currency, Status: b.status, PaymentStatus: b.paymentStatus,
		PaymentMethod: b.paymentMethod, PaymentReference: b.paymentReference,
		Subtotal: b.subtotal, TaxAmount: b.taxAmount, DiscountAmount: b.discountAmount,
		TotalAmount: b.totalAmount, CommissionAmount: b.commissionAmount, CommissionRate: b.commissionRate,
		PaymentDeadline: b.paymentDeadline, PromoCodeID: b.promoCodeID,
		ProviderAcceptedAt: b.providerAcceptedAt, CancelReason: b.cancelReason, CancelledBy: b.cancelledBy,
		ConfirmedAt: b.confirmedAt, CompletedAt: b.completedAt, CancelledAt: b.cancelledAt,
		Version: b.version, CreatedAt: b.createdAt, UpdatedAt: b.updatedAt,
	}
}
